package host

import (
	"context"
	"time"

	"github.com/tliron/commonlog"

	"github.com/chazu/nifki/vm"
)

var log = commonlog.GetLogger("nifki.host")

// DefaultFrameInterval is the frame period when none is configured.
const DefaultFrameInterval = 40 * time.Millisecond

// Runner drives a machine from a frame clock: one tick per frame, and a
// render after every tick that ends in WAIT.
type Runner struct {
	Machine  *vm.Machine
	Renderer Renderer // may be nil
	Interval time.Duration
	// MaxFrames stops the run after that many ticks; zero means no limit.
	MaxFrames int
}

// Run ticks until the program ends or faults, MaxFrames is reached or
// ctx is done. It returns the last signal; the error is the fault, a
// render error or the context's error.
func (r *Runner) Run(ctx context.Context) (vm.Signal, error) {
	interval := r.Interval
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	frames := 0
	for {
		start := time.Now()
		sig, err := r.Machine.Tick()
		frames++
		switch sig {
		case vm.Terminated:
			log.Infof("program ended after %d frames", frames)
			return sig, nil
		case vm.Faulted:
			log.Errorf("program faulted after %d frames: %s", frames, err)
			return sig, err
		}

		scene := CollectScene(r.Machine)
		if r.Renderer != nil {
			if err := r.Renderer.Render(scene); err != nil {
				return sig, err
			}
		}
		if elapsed := time.Since(start); elapsed > interval {
			log.Debugf("frame %d took %s, longer than %s", frames, elapsed, interval)
		}

		if r.MaxFrames > 0 && frames >= r.MaxFrames {
			return sig, nil
		}
		select {
		case <-ctx.Done():
			return sig, ctx.Err()
		case <-ticker.C:
		}
	}
}
