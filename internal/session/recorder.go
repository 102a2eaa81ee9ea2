package session

import (
	"sync"
	"time"
)

// Recorder tracks a voice note being recorded on the client. It ticks the
// elapsed whole seconds while recording.
type Recorder struct {
	tick   time.Duration
	now    func() time.Time
	onTick func(seconds int)

	mu      sync.Mutex
	started time.Time
	stop    chan struct{}
	done    chan struct{}
}

func NewRecorder(tick time.Duration, now func() time.Time, onTick func(seconds int)) *Recorder {
	if tick <= 0 {
		tick = time.Second
	}
	if now == nil {
		now = time.Now
	}
	if onTick == nil {
		onTick = func(int) {}
	}
	return &Recorder{tick: tick, now: now, onTick: onTick}
}

// Start begins a recording; it does nothing while one is running
func (r *Recorder) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stop != nil {
		return
	}
	r.started = r.now()
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	go r.run(r.stop, r.done)
}

func (r *Recorder) run(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()

	seconds := 0
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			seconds++
			r.onTick(seconds)
		}
	}
}

// Stop ends the recording and returns its duration. ok is false when no
// recording was running.
func (r *Recorder) Stop() (d time.Duration, ok bool) {
	started, running := r.halt()
	if !running {
		return 0, false
	}
	return r.now().Sub(started), true
}

// Cancel discards the running recording, if any
func (r *Recorder) Cancel() {
	r.halt()
}

// Recording reports whether a recording is running
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stop != nil
}

func (r *Recorder) halt() (time.Time, bool) {
	r.mu.Lock()
	stop, done, started := r.stop, r.done, r.started
	r.stop, r.done = nil, nil
	r.mu.Unlock()

	if stop == nil {
		return time.Time{}, false
	}
	close(stop)
	<-done
	return started, true
}
