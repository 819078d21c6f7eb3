package monitoring

import (
	"fmt"
	"io"

	"github.com/banshee-data/featuretrack/internal/vision/cvbridge"
	"github.com/banshee-data/featuretrack/internal/vision/l2pyramid"
	"github.com/banshee-data/featuretrack/internal/vision/l3klt"
	"github.com/banshee-data/featuretrack/internal/vision/l4dda"
	"github.com/banshee-data/featuretrack/internal/vision/l5tracks"
	"github.com/banshee-data/featuretrack/internal/vision/pipeline"
)

// Stream levels accepted by ConfigureStreams. Each level enables itself
// and every level before it.
const (
	LevelOff   = "off"
	LevelOps   = "ops"
	LevelDiag  = "diag"
	LevelTrace = "trace"
)

// streamSetters lists every vision package with its own log streams.
var streamSetters = []func(ops, diag, trace io.Writer){
	l2pyramid.SetLogWriters,
	l3klt.SetLogWriters,
	l4dda.SetLogWriters,
	l5tracks.SetLogWriters,
	pipeline.SetLogWriters,
	cvbridge.SetLogWriters,
}

// ConfigureStreams points the ops, diag and trace streams of every vision
// package at w, up to and including level.
func ConfigureStreams(level string, w io.Writer) error {
	var ops, diag, trace io.Writer
	switch level {
	case LevelOff:
	case LevelOps:
		ops = w
	case LevelDiag:
		ops, diag = w, w
	case LevelTrace:
		ops, diag, trace = w, w, w
	default:
		return fmt.Errorf("unknown log level %q", level)
	}
	for _, set := range streamSetters {
		set(ops, diag, trace)
	}
	return nil
}
