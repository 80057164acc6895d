package main

import (
	"fmt"
	"os"
	"runtime/pprof"
)

// profiler writes a pprof profile for the lifetime of a command. The CPU
// profile is sampled from start to stop, the allocation profile is
// snapshotted at stop.
type profiler struct {
	kind string
	file *os.File
}

// startProfiler returns nil without error when path is empty.
func startProfiler(kind, path string) (*profiler, error) {
	if path == "" {
		return nil, nil //nolint:nilnil
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("(profiler) could not create %s profile: %w", kind, err)
	}

	if kind == "cpu" {
		if err := pprof.StartCPUProfile(f); err != nil {
			f.Close()

			return nil, fmt.Errorf("(profiler) could not start cpu profile: %w", err)
		}
	}

	return &profiler{kind: kind, file: f}, nil
}

func (p *profiler) Stop() error {
	if p == nil {
		return nil
	}
	defer p.file.Close()

	if p.kind == "cpu" {
		pprof.StopCPUProfile()

		return nil
	}

	if err := pprof.Lookup(p.kind).WriteTo(p.file, 0); err != nil {
		return fmt.Errorf("(profiler) could not write %s profile: %w", p.kind, err)
	}

	return nil
}
