package backend

import (
	"context"
	"fmt"
	"sync"

	xglog "github.com/ManuGH/playm3u/internal/log"
	"github.com/rs/zerolog"
)

// probeFunc inspects the stream before playback starts. A non-nil error is
// fatal; warnings are reported as non-fatal events.
type probeFunc func(ctx context.Context, locator string) (warnings []string, err error)

const eventBuffer = 8

// engine is the shared session lifecycle: probe, hand the locator to the
// sink, report readiness, then watch for the end of playback.
type engine struct {
	kind   Kind
	probe  probeFunc
	events chan Event
	logger zerolog.Logger

	mu       sync.Mutex
	sink     Sink
	cancel   context.CancelFunc
	done     chan struct{}
	loaded   bool
	detached bool
}

func newEngine(kind Kind, probe probeFunc) *engine {
	return &engine{
		kind:   kind,
		probe:  probe,
		events: make(chan Event, eventBuffer),
		logger: xglog.WithComponent("backend").With().Str(xglog.FieldBackend, string(kind)).Logger(),
	}
}

func (e *engine) Kind() Kind { return e.kind }

func (e *engine) Events() <-chan Event { return e.events }

func (e *engine) Attach(sink Sink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sink = sink
}

// Load starts the session in the background and returns immediately.
func (e *engine) Load(ctx context.Context, locator string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sink == nil {
		return ErrNoSink
	}
	if e.loaded || e.detached {
		return ErrLoaded
	}
	e.loaded = true

	// The session outlives the caller's request; only Detach ends it.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	e.cancel = cancel
	e.done = make(chan struct{})
	go e.run(runCtx, e.sink, locator)
	return nil
}

func (e *engine) run(ctx context.Context, sink Sink, locator string) {
	defer close(e.done)

	if e.probe != nil {
		warnings, err := e.probe(ctx, locator)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			e.emit(ctx, Event{Kind: EventFatal, Message: err.Error()})
			return
		}
		for _, w := range warnings {
			e.emit(ctx, Event{Kind: EventNonFatal, Message: w})
		}
	}

	ended, err := sink.Play(ctx, locator)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		e.emit(ctx, Event{Kind: EventFatal, Message: fmt.Sprintf("playback failed: %v", err)})
		return
	}
	e.emit(ctx, Event{Kind: EventReady})

	select {
	case <-ctx.Done():
	case err, ok := <-ended:
		if ctx.Err() != nil || !ok {
			return
		}
		if err != nil {
			e.emit(ctx, Event{Kind: EventFatal, Message: fmt.Sprintf("playback stopped: %v", err)})
			return
		}
		e.emit(ctx, Event{Kind: EventNonFatal, Message: "stream ended"})
	}
}

// emit delivers ev unless the session has been detached.
func (e *engine) emit(ctx context.Context, ev Event) {
	select {
	case e.events <- ev:
	case <-ctx.Done():
	}
}

// Detach stops the session and waits for its goroutine to exit.
func (e *engine) Detach() error {
	e.mu.Lock()
	if e.detached {
		e.mu.Unlock()
		return nil
	}
	e.detached = true
	cancel, done, sink, loaded := e.cancel, e.done, e.sink, e.loaded
	e.mu.Unlock()

	if !loaded {
		return nil
	}
	cancel()
	<-done
	err := sink.Stop()
	if err != nil {
		e.logger.Warn().Err(err).Str(xglog.FieldEvent, "backend.stop_failed").Msg("sink stop failed")
	}
	return err
}
