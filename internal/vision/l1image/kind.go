package l1image

// Kind is the tagged variant over supported pixel element types. Code that
// must branch on signedness or bit width switches over Kind instead of
// inspecting image types.
type Kind int

const (
	KindInvalid Kind = iota
	KindU8
	KindU16
	KindS16
	KindS32
	KindF32
	KindF64
)

// KindOf returns the Kind for element type T.
func KindOf[T Pixel]() Kind {
	var zero T
	switch any(zero).(type) {
	case uint8:
		return KindU8
	case uint16:
		return KindU16
	case int16:
		return KindS16
	case int32:
		return KindS32
	case float32:
		return KindF32
	case float64:
		return KindF64
	}
	// Named types with a supported underlying type land here.
	return KindInvalid
}

// Signed reports whether the kind can hold negative values.
func (k Kind) Signed() bool {
	switch k {
	case KindS16, KindS32, KindF32, KindF64:
		return true
	case KindU8, KindU16:
		return false
	}
	return false
}

// Float reports whether the kind is floating point.
func (k Kind) Float() bool {
	switch k {
	case KindF32, KindF64:
		return true
	case KindU8, KindU16, KindS16, KindS32:
		return false
	}
	return false
}

// BitWidth returns the element size in bits, 0 for KindInvalid.
func (k Kind) BitWidth() int {
	switch k {
	case KindU8:
		return 8
	case KindU16, KindS16:
		return 16
	case KindS32, KindF32:
		return 32
	case KindF64:
		return 64
	}
	return 0
}

// MaxValue is the largest representable intensity for integer kinds and 1
// for float kinds, where intensities are not range limited.
func (k Kind) MaxValue() float64 {
	switch k {
	case KindU8:
		return 255
	case KindU16:
		return 65535
	case KindS16:
		return 32767
	case KindS32:
		return 2147483647
	case KindF32, KindF64:
		return 1
	}
	return 0
}

func (k Kind) String() string {
	switch k {
	case KindU8:
		return "u8"
	case KindU16:
		return "u16"
	case KindS16:
		return "s16"
	case KindS32:
		return "s32"
	case KindF32:
		return "f32"
	case KindF64:
		return "f64"
	}
	return "invalid"
}
