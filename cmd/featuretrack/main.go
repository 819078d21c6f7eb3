// Command featuretrack runs the sparse feature tracker over a directory of
// image frames, optionally recording every frame to SQLite and exposing
// Prometheus metrics while it runs.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/featuretrack/internal/version"
)

var (
	framesDir     = flag.String("frames", "", "Directory of image frames, processed in lexical order (required)")
	configPath    = flag.String("config", "", "Path to a JSON tuning file (defaults to config/tuning.defaults.json)")
	dbPath        = flag.String("db", "", "SQLite file to record the session to (disabled when empty)")
	backend       = flag.String("backend", "", "Capability backend: native or opencv (overrides the tuning file)")
	workers       = flag.Int("workers", -1, "KLT and describe workers, 0 for one per CPU (overrides the tuning file)")
	keyFrameEvery = flag.Int("keyframe-every", 0, "Mark a key frame every N frames (0 disables)")
	metricsListen = flag.String("metrics-listen", "", "Address to serve /metrics on, e.g. :9090 (disabled when empty)")
	diag          = flag.Bool("diag", false, "Enable the diag log stream")
	trace         = flag.Bool("trace", false, "Enable the trace log stream (implies -diag)")
	showVersion   = flag.Bool("version", false, "Print version information and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	if *framesDir == "" {
		log.Fatal("-frames is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := options{
		FramesDir:     *framesDir,
		ConfigPath:    *configPath,
		DBPath:        *dbPath,
		Backend:       *backend,
		Workers:       *workers,
		KeyFrameEvery: *keyFrameEvery,
		MetricsListen: *metricsListen,
		LogLevel:      logLevel(*diag, *trace),
	}
	if _, err := run(ctx, opts, os.Stderr); err != nil {
		if errors.Is(err, context.Canceled) {
			log.Printf("interrupted")
			return
		}
		log.Fatalf("featuretrack: %v", err)
	}
}
