package backend

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"sync"
	"time"

	xglog "github.com/ManuGH/playm3u/internal/log"
	"github.com/ManuGH/playm3u/internal/procgroup"
	"github.com/rs/zerolog"
)

// ErrNoPlayer is returned when the process sink has no binary configured.
var ErrNoPlayer = errors.New("no player binary configured")

// ProcessConfig describes the external player. Args may contain the {url}
// placeholder; without it the locator is appended as the last argument.
type ProcessConfig struct {
	Binary string
	Args   []string
	Grace  time.Duration
}

type process struct {
	cmd    *exec.Cmd
	exited chan struct{}
	err    error
}

// ProcessSink renders streams by running an external player process, one at
// a time. Each player runs in its own process group.
type ProcessSink struct {
	cfg    ProcessConfig
	logger zerolog.Logger

	mu  sync.Mutex
	cur *process
}

// NewProcessSink returns a sink for cfg. Grace defaults to 3s.
func NewProcessSink(cfg ProcessConfig) *ProcessSink {
	if cfg.Grace <= 0 {
		cfg.Grace = 3 * time.Second
	}
	return &ProcessSink{cfg: cfg, logger: xglog.WithComponent("sink")}
}

func (s *ProcessSink) args(locator string) []string {
	out := make([]string, 0, len(s.cfg.Args)+1)
	substituted := false
	for _, a := range s.cfg.Args {
		if strings.Contains(a, "{url}") {
			a = strings.ReplaceAll(a, "{url}", locator)
			substituted = true
		}
		out = append(out, a)
	}
	if !substituted {
		out = append(out, locator)
	}
	return out
}

// Play stops any running player and starts a new one for locator.
func (s *ProcessSink) Play(_ context.Context, locator string) (<-chan error, error) {
	if s.cfg.Binary == "" {
		return nil, ErrNoPlayer
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.stopLocked()

	cmd := exec.Command(s.cfg.Binary, s.args(locator)...)
	procgroup.Set(cmd)
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	p := &process{cmd: cmd, exited: make(chan struct{})}
	ended := make(chan error, 1)
	go func() {
		p.err = cmd.Wait()
		close(p.exited)
		ended <- p.err
		close(ended)
	}()
	s.cur = p

	s.logger.Info().
		Str(xglog.FieldEvent, "sink.started").
		Int("pid", cmd.Process.Pid).
		Str("binary", s.cfg.Binary).
		Msg("player process started")
	return ended, nil
}

// Stop terminates the running player, if any.
func (s *ProcessSink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked()
}

func (s *ProcessSink) stopLocked() error {
	p := s.cur
	s.cur = nil
	if p == nil {
		return nil
	}
	select {
	case <-p.exited:
		return nil
	default:
	}

	waitCh := make(chan error, 1)
	go func() {
		<-p.exited
		waitCh <- p.err
	}()
	err := procgroup.Terminate(p.cmd, waitCh, s.cfg.Grace)
	if errors.Is(err, procgroup.ErrKillFailed) {
		return err
	}
	// A signalled exit is the expected outcome of stopping.
	return nil
}

// NullSink accepts every locator without rendering it. It backs headless
// mode and tests.
type NullSink struct {
	mu      sync.Mutex
	current string
	played  []string
	ended   chan error
	// PlayErr, when set, is returned by Play.
	PlayErr error
}

// Play records locator.
func (s *NullSink) Play(_ context.Context, locator string) (<-chan error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.PlayErr != nil {
		return nil, s.PlayErr
	}
	s.stopLocked()
	s.current = locator
	s.played = append(s.played, locator)
	s.ended = make(chan error, 1)
	return s.ended, nil
}

// End simulates the stream finishing with err.
func (s *NullSink) End(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended != nil {
		s.ended <- err
		close(s.ended)
		s.ended = nil
	}
}

// Stop clears the current locator.
func (s *NullSink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	return nil
}

func (s *NullSink) stopLocked() {
	if s.ended != nil {
		close(s.ended)
		s.ended = nil
	}
	s.current = ""
}

// Current returns the locator being played, or "".
func (s *NullSink) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Played returns every locator passed to Play.
func (s *NullSink) Played() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.played...)
}
