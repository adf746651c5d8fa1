// Package player drives the single active stream: channel selection,
// backend choice, readiness tracking, the channel overlay and
// remote-control style numeric entry.
package player

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ManuGH/playm3u/internal/backend"
	"github.com/ManuGH/playm3u/internal/library"
	xglog "github.com/ManuGH/playm3u/internal/log"
	"github.com/ManuGH/playm3u/internal/m3u"
	"github.com/ManuGH/playm3u/internal/metrics"
	"github.com/ManuGH/playm3u/internal/notify"
	"github.com/ManuGH/playm3u/internal/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

type command struct {
	ctx   context.Context
	fn    func(ctx context.Context) error
	reply chan error
}

// Controller owns the playback session. All state lives in the Run loop;
// the exported methods submit commands to it and wait for the result.
type Controller struct {
	cfg     Config
	lib     Library
	factory backend.Factory
	sink    backend.Sink
	notices notify.Sink
	logger  zerolog.Logger
	tracer  trace.Tracer

	cmds chan command
	done chan struct{}

	// Loop-owned state below. Only touched from Run.
	state       State
	active      backend.Backend
	kind        backend.Kind
	playlistIdx int
	playlist    string
	playlistSrc string
	channelIdx  int
	channel     m3u.Channel
	overlay     Overlay
	digits      string
	lastErr     string
	loadStarted time.Time

	overlayTimer *time.Timer
	digitTimer   *time.Timer
	readyTimer   *time.Timer
}

// New returns a controller. Call Run to start processing.
func New(cfg Config, lib Library, factory backend.Factory, sink backend.Sink, notices notify.Sink) *Controller {
	if cfg.OverlayDuration <= 0 {
		cfg.OverlayDuration = DefaultOverlayDuration
	}
	if cfg.NumericCommitDelay <= 0 {
		cfg.NumericCommitDelay = DefaultNumericCommitDelay
	}
	if cfg.ReadyTimeout < 0 {
		cfg.ReadyTimeout = 0
	}
	if notices == nil {
		notices = notify.Discard{}
	}
	return &Controller{
		cfg:     cfg,
		lib:     lib,
		factory: factory,
		sink:    sink,
		notices: notices,
		logger:  xglog.WithComponent("player"),
		tracer:  telemetry.Tracer("github.com/ManuGH/playm3u/internal/player"),
		cmds:    make(chan command),
		done:    make(chan struct{}),
		state:   StateIdle,
		kind:    backend.KindNone,
	}
}

// submit runs fn on the loop goroutine.
func (c *Controller) submit(ctx context.Context, fn func(ctx context.Context) error) error {
	cmd := command{ctx: ctx, fn: fn, reply: make(chan error, 1)}
	select {
	case c.cmds <- cmd:
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-c.done:
		return ErrStopped
	}
}

// PlayChannel switches to channel index of the current playlist. The call
// returns once the new backend is loading; readiness arrives later.
func (c *Controller) PlayChannel(ctx context.Context, index int) error {
	return c.submit(ctx, func(ctx context.Context) error {
		return c.play(ctx, index)
	})
}

// ChannelUp plays the next channel, wrapping to the first.
func (c *Controller) ChannelUp(ctx context.Context) error {
	return c.submit(ctx, func(ctx context.Context) error { return c.step(ctx, +1) })
}

// ChannelDown plays the previous channel, wrapping to the last.
func (c *Controller) ChannelDown(ctx context.Context) error {
	return c.submit(ctx, func(ctx context.Context) error { return c.step(ctx, -1) })
}

// PressDigit appends d to the numeric entry buffer. The entry is committed
// after the commit delay passes without another key.
func (c *Controller) PressDigit(ctx context.Context, d int) error {
	if d < 0 || d > 9 {
		return fmt.Errorf("%w: %d", ErrInvalidDigit, d)
	}
	return c.submit(ctx, func(context.Context) error {
		if len(c.digits) >= MaxNumericDigits {
			c.digits = ""
		}
		c.digits += strconv.Itoa(d)
		resetTimer(&c.digitTimer, c.cfg.NumericCommitDelay)
		return nil
	})
}

// Resume plays the last-watched channel of the current playlist, clamped
// into range.
func (c *Controller) Resume(ctx context.Context) error {
	return c.submit(ctx, func(ctx context.Context) error {
		_, _, ch, ok := c.lib.Current()
		if !ok {
			return ErrNoChannels
		}
		return c.play(ctx, ch)
	})
}

// Stop ends playback and returns to idle.
func (c *Controller) Stop(ctx context.Context) error {
	return c.submit(ctx, func(context.Context) error {
		c.teardown()
		c.setState(StateIdle)
		c.lastErr = ""
		return nil
	})
}

// Snapshot returns the current state.
func (c *Controller) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := c.submit(ctx, func(context.Context) error {
		c.resyncPlaylistIndex()
		snap = Snapshot{
			State:         c.state,
			Backend:       c.kind,
			PlaylistIndex: c.playlistIdx,
			PlaylistName:  c.playlist,
			ChannelIndex:  c.channelIdx,
			ChannelName:   c.channel.Name,
			ChannelURL:    c.channel.URL,
			Overlay:       c.overlay,
			NumericBuffer: c.digits,
			LastError:     c.lastErr,
		}
		return nil
	})
	return snap, err
}

// resyncPlaylistIndex follows the session's playlist when removals before it
// have shifted its position in the library.
func (c *Controller) resyncPlaylistIndex() {
	if c.playlist == "" {
		return
	}
	p, idx, _, ok := c.lib.Current()
	if ok && p.Name == c.playlist && p.SourceLocator == c.playlistSrc {
		c.playlistIdx = idx
	}
}

// Done is closed when Run has returned.
func (c *Controller) Done() <-chan struct{} { return c.done }

// Run processes commands, backend events and timers until ctx is cancelled.
// The active session is torn down before Run returns.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.done)
	defer func() {
		c.teardown()
		stopTimer(&c.digitTimer)
		metrics.SetPlaybackState(string(StateIdle))
	}()
	metrics.SetPlaybackState(string(c.state))

	for {
		var events <-chan backend.Event
		if c.active != nil {
			events = c.active.Events()
		}

		select {
		case <-ctx.Done():
			return nil
		case cmd := <-c.cmds:
			cmd.reply <- cmd.fn(cmd.ctx)
		case ev := <-events:
			c.handleEvent(ctx, ev)
		case <-timerC(c.overlayTimer):
			c.overlay = Overlay{}
			c.overlayTimer = nil
		case <-timerC(c.digitTimer):
			c.digitTimer = nil
			c.commitDigits(ctx)
		case <-timerC(c.readyTimer):
			c.readyTimer = nil
			c.fail(fmt.Sprintf("no playback within %s", c.cfg.ReadyTimeout))
		}
	}
}

func (c *Controller) step(ctx context.Context, delta int) error {
	p, _, cur, ok := c.lib.Current()
	n := len(p.Channels)
	if !ok || n == 0 {
		return ErrNoChannels
	}
	next := ((cur+delta)%n + n) % n
	return c.play(ctx, next)
}

func (c *Controller) commitDigits(ctx context.Context) {
	entry := c.digits
	c.digits = ""
	if entry == "" {
		return
	}
	n, err := strconv.Atoi(entry)
	if err != nil || n < 1 {
		c.reject(entry)
		return
	}
	if err := c.play(ctx, n-1); err != nil && !errors.Is(err, ErrChannelNotFound) {
		c.logger.Warn().Err(err).Str(xglog.FieldEvent, "player.numeric_failed").Msg("numeric entry failed")
	}
}

// play is the channel-switch transaction. Out-of-range requests leave the
// session untouched.
func (c *Controller) play(ctx context.Context, index int) error {
	p, pIdx, _, ok := c.lib.Current()
	if !ok || len(p.Channels) == 0 {
		metrics.RecordChannelReject("no_channels")
		c.notices.Notify(notify.KindError, "No channels available")
		return ErrNoChannels
	}
	if index < 0 || index >= len(p.Channels) {
		c.reject(strconv.Itoa(index + 1))
		return fmt.Errorf("%w: %d", ErrChannelNotFound, index)
	}
	ch := p.Channels[index]

	c.teardown()

	if err := c.lib.SelectChannel(ctx, index); err != nil {
		c.logger.Warn().
			Err(err).
			Str(xglog.FieldEvent, "player.persist_failed").
			Int(xglog.FieldChannelIndex, index).
			Msg("could not persist last channel")
	}

	kind := backend.Classify(ch.URL, c.cfg.Capabilities)
	ctx, span := c.tracer.Start(ctx, "playback.switch",
		trace.WithAttributes(telemetry.ChannelAttributes(p.Name, ch.Name, index, string(kind))...))
	defer span.End()

	b := c.factory(kind)
	b.Attach(c.sink)

	c.playlistIdx, c.playlist, c.playlistSrc = pIdx, p.Name, p.SourceLocator
	c.channelIdx, c.channel = index, ch
	c.kind = kind
	c.lastErr = ""
	c.loadStarted = time.Now()

	c.logger.Info().
		Str(xglog.FieldEvent, "player.switch").
		Str(xglog.FieldPlaylist, p.Name).
		Int(xglog.FieldChannelIndex, index).
		Str(xglog.FieldChannel, ch.Name).
		Str(xglog.FieldBackend, string(kind)).
		Msg("switching channel")
	metrics.RecordChannelSwitch(string(kind))

	if err := b.Load(ctx, ch.URL); err != nil {
		span.RecordError(err)
		_ = b.Detach()
		c.fail(err.Error())
		return nil
	}
	c.active = b
	c.setState(StateLoading)
	if c.cfg.ReadyTimeout > 0 {
		resetTimer(&c.readyTimer, c.cfg.ReadyTimeout)
	}
	return nil
}

func (c *Controller) reject(entry string) {
	metrics.RecordChannelReject("not_found")
	c.notices.Notify(notify.KindError, fmt.Sprintf("Channel %s not found", entry))
	c.logger.Info().
		Str(xglog.FieldEvent, "player.channel_rejected").
		Str("entry", entry).
		Msg("channel not found")
}

func (c *Controller) handleEvent(ctx context.Context, ev backend.Event) {
	switch ev.Kind {
	case backend.EventReady:
		if c.state != StateLoading {
			return
		}
		stopTimer(&c.readyTimer)
		startup := time.Since(c.loadStarted)
		metrics.ObserveChannelStartup(string(c.kind), startup)
		telemetry.RecordChannelStartup(ctx, string(c.kind), startup)
		c.setState(StatePlaying)
		c.showOverlay()
	case backend.EventFatal:
		metrics.RecordBackendError(string(c.kind), true)
		c.fail(ev.Message)
	case backend.EventNonFatal:
		metrics.RecordBackendError(string(c.kind), false)
		c.logger.Warn().
			Str(xglog.FieldEvent, "player.backend_warning").
			Str(xglog.FieldBackend, string(c.kind)).
			Str(xglog.FieldChannel, c.channel.Name).
			Msg(ev.Message)
		c.notices.Notify(notify.KindInfo, ev.Message)
	}
}

// fail moves the session to error. The channel selection is kept and no
// retry is scheduled.
func (c *Controller) fail(reason string) {
	c.teardown()
	c.lastErr = reason
	c.setState(StateError)
	c.notices.Notify(notify.KindError, fmt.Sprintf("Cannot play %s: %s", c.channel.Name, reason))
	c.logger.Error().
		Str(xglog.FieldEvent, "player.fatal").
		Str(xglog.FieldBackend, string(c.kind)).
		Str(xglog.FieldChannel, c.channel.Name).
		Int(xglog.FieldChannelIndex, c.channelIdx).
		Msg(reason)
}

func (c *Controller) showOverlay() {
	d := c.cfg.OverlayDuration
	c.overlay = Overlay{
		Visible:  true,
		Number:   c.channelIdx + 1,
		Name:     c.channel.Name,
		Group:    c.channel.Group,
		Logo:     c.channel.Logo,
		Playlist: c.playlist,
		Until:    time.Now().Add(d),
	}
	resetTimer(&c.overlayTimer, d)
}

// teardown detaches the active backend, if any. Safe to call repeatedly.
func (c *Controller) teardown() {
	stopTimer(&c.readyTimer)
	stopTimer(&c.overlayTimer)
	c.overlay = Overlay{}
	if c.active == nil {
		return
	}
	b := c.active
	c.active = nil
	if err := b.Detach(); err != nil {
		c.logger.Warn().Err(err).Str(xglog.FieldEvent, "player.detach_failed").Msg("backend detach failed")
	}
}

func (c *Controller) setState(s State) {
	if c.state == s {
		return
	}
	c.logger.Debug().
		Str(xglog.FieldEvent, "player.state").
		Str(xglog.FieldOldState, string(c.state)).
		Str(xglog.FieldNewState, string(s)).
		Msg("playback state changed")
	c.state = s
	metrics.SetPlaybackState(string(s))
}

var _ Library = (*library.Store)(nil)
