// Package activation implements C6 Activation Switch: a runtime-selectable
// choice of which trigger source (VAD or hotkey) feeds the pipeline, fanned
// out to any number of subscribers.
package activation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/coldvox/coldvox/internal/vad"
)

// Mode selects the active trigger source.
type Mode int

const (
	ModeVAD Mode = iota
	ModeHotkey
)

func (m Mode) String() string {
	if m == ModeHotkey {
		return "hotkey"
	}
	return "vad"
}

// Source is anything that produces a VadEvent stream when run: the VAD
// engine loop or the hotkey listener.
type Source interface {
	Events() <-chan vad.Event
	Run(ctx context.Context) error
}

// UnloadFunc is invoked on every mode switch so the STT plugin manager can
// reset to clean state before the new trigger starts (spec.md §4.6).
type UnloadFunc func()

// Switch holds the current mode behind a lock and fans the active source's
// events out to any number of subscribers.
type Switch struct {
	mu      sync.RWMutex
	mode    Mode
	sources map[Mode]Source
	unload  UnloadFunc
	log     *slog.Logger

	subsMu sync.Mutex
	subs   map[int]chan vad.Event
	nextID int

	cancelCurrent context.CancelFunc
	wg            sync.WaitGroup
}

// New constructs a Switch starting in initialMode, with sources registered
// per Mode (at least the initial mode's source must be present).
func New(initialMode Mode, sources map[Mode]Source, unload UnloadFunc, log *slog.Logger) (*Switch, error) {
	if log == nil {
		log = slog.Default()
	}
	if _, ok := sources[initialMode]; !ok {
		return nil, fmt.Errorf("activation: no source registered for initial mode %s", initialMode)
	}
	return &Switch{
		mode:    initialMode,
		sources: sources,
		unload:  unload,
		log:     log,
		subs:    make(map[int]chan vad.Event),
	}, nil
}

// Subscribe registers a new receiver of fanned-out VadEvents.
func (s *Switch) Subscribe(buffer int) (<-chan vad.Event, func()) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	id := s.nextID
	s.nextID++
	ch := make(chan vad.Event, buffer)
	s.subs[id] = ch
	return ch, func() {
		s.subsMu.Lock()
		defer s.subsMu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

func (s *Switch) fanOut(ev vad.Event) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			s.log.Warn("activation: subscriber buffer full, dropping event")
		}
	}
}

// Mode reports the currently active trigger mode.
func (s *Switch) Mode() Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// Start begins running the current mode's source under ctx, fanning its
// events out until ctx is canceled or SwitchTo changes the mode.
func (s *Switch) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startLocked(ctx)
}

func (s *Switch) startLocked(ctx context.Context) {
	src, ok := s.sources[s.mode]
	if !ok {
		s.log.Error("activation: no source for mode, nothing started", "mode", s.mode)
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelCurrent = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := src.Run(runCtx); err != nil {
			s.log.Error("activation: source run failed", "mode", s.mode, "error", err)
		}
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-runCtx.Done():
				return
			case ev, ok := <-src.Events():
				if !ok {
					return
				}
				s.fanOut(ev)
			}
		}
	}()
}

// SwitchTo changes the active trigger mode: unloads STT plugins for a clean
// state, aborts the current trigger task, and starts a new one for the
// target mode (spec.md §4.6). A no-op if already in targetMode.
func (s *Switch) SwitchTo(ctx context.Context, target Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if target == s.mode {
		return nil
	}
	if _, ok := s.sources[target]; !ok {
		return fmt.Errorf("activation: no source registered for mode %s", target)
	}

	if s.unload != nil {
		s.unload()
	}
	if s.cancelCurrent != nil {
		s.cancelCurrent()
	}
	s.wg.Wait()

	s.mode = target
	s.startLocked(ctx)
	return nil
}

// Stop cancels the current trigger task and waits for it to exit.
func (s *Switch) Stop() {
	s.mu.Lock()
	cancel := s.cancelCurrent
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}
