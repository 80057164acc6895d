package main

import (
	"context"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

const memoryMonitorInterval = 100 * time.Millisecond

// memoryObserver records the peak heap allocation while the program runs.
type memoryObserver struct {
	maxAlloc atomic.Uint64
	stopChan chan struct{}
	doneChan chan struct{}
}

func newMemoryObserver(ctx context.Context) *memoryObserver {
	obs := &memoryObserver{
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
	go obs.monitor(ctx)

	return obs
}

func (o *memoryObserver) MaxAlloc() uint64 {
	return o.maxAlloc.Load()
}

// Stop ends the sampling and logs the peak at debug level. It is safe to call
// more than once.
func (o *memoryObserver) Stop() {
	select {
	case <-o.stopChan:
	default:
		close(o.stopChan)
	}
	<-o.doneChan

	slog.Debug("Memory consumption peaked", "maxAlloc", humanize.IBytes(o.MaxAlloc()))
}

func (o *memoryObserver) sample() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	for {
		current := o.maxAlloc.Load()
		if m.Alloc <= current || o.maxAlloc.CompareAndSwap(current, m.Alloc) {
			return
		}
	}
}

func (o *memoryObserver) monitor(ctx context.Context) {
	defer close(o.doneChan)

	ticker := time.NewTicker(memoryMonitorInterval)
	defer ticker.Stop()

	o.sample()

	for {
		select {
		case <-o.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.sample()
		}
	}
}
