package syncer

import (
	"context"

	log "github.com/sirupsen/logrus"
)

// Listener is one running store watch. Stop cancels it and waits until the
// watch has returned, so no callback runs after Stop.
type Listener struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Listen runs watch in its own goroutine until Stop is called or the watch
// fails. A failure has already been reported through the watch callback and
// is only logged here.
func Listen(name string, watch func(ctx context.Context) error) *Listener {
	ctx, cancel := context.WithCancel(context.Background())
	l := &Listener{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(l.done)
		if err := watch(ctx); err != nil {
			log.WithError(err).WithField("listener", name).Warn("⚠️ Listener stopped")
		}
	}()
	return l
}

// Stop is safe on a nil Listener and may be called more than once
func (l *Listener) Stop() {
	if l == nil {
		return
	}
	l.cancel()
	<-l.done
}

// Done is closed once the watch has returned
func (l *Listener) Done() <-chan struct{} {
	return l.done
}
