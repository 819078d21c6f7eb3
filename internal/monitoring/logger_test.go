package monitoring

import (
	"fmt"
	"testing"
)

func TestSetLoggerRedirectsSummaries(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var lines []string
	SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})
	Logf("frame %d: total features: %d", 3, 120)

	if len(lines) != 1 || lines[0] != "frame 3: total features: 120" {
		t.Errorf("captured %q", lines)
	}

	SetLogger(nil)
	Logf("muted %d", 1)
	if len(lines) != 1 {
		t.Errorf("muted logger still forwarded: %q", lines)
	}
}

func TestLogfDefaultIsSet(t *testing.T) {
	if Logf == nil {
		t.Fatal("Logf should default to log.Printf")
	}
}
