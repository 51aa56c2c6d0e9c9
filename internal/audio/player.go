package audio

import (
	"errors"
	"sync"
	"time"
)

// ErrReleased indicates that a released player was asked to play.
var ErrReleased = errors.New("audio handle has been released")

// PlaybackState is the transport state of a Player.
type PlaybackState int

// Playback states.
const (
	Stopped PlaybackState = iota
	Playing
	Paused
)

func (s PlaybackState) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return "unknown"
	}
}

// Player controls playback of one Handle. Stop rewinds to the start.
type Player struct {
	mu        sync.Mutex
	handle    *Handle
	state     PlaybackState
	position  time.Duration
	startedAt time.Time
	now       func() time.Time
}

// NewPlayer creates a stopped player for handle. A nil clock uses time.Now.
func NewPlayer(handle *Handle, now func() time.Time) *Player {
	if now == nil {
		now = time.Now
	}

	return &Player{
		mu:        sync.Mutex{},
		handle:    handle,
		state:     Stopped,
		position:  0,
		startedAt: time.Time{},
		now:       now,
	}
}

// Handle returns the audio handle, or nil once released.
func (p *Player) Handle() *Handle {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.handle
}

// Play starts or resumes playback.
func (p *Player) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.handle == nil {
		return ErrReleased
	}

	if p.state != Playing {
		p.state = Playing
		p.startedAt = p.now()
	}

	return nil
}

// Pause suspends playback, keeping the position.
func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != Playing {
		return
	}

	p.position += p.now().Sub(p.startedAt)
	p.state = Paused
}

// Stop halts playback and resets the position.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()
}

// Release stops playback and drops the handle.
func (p *Player) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()
	p.handle = nil
}

// State returns the current playback state.
func (p *Player) State() PlaybackState {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.state
}

// Position returns the elapsed playback time.
func (p *Player) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == Playing {
		return p.position + p.now().Sub(p.startedAt)
	}

	return p.position
}

func (p *Player) stopLocked() {
	p.state = Stopped
	p.position = 0
	p.startedAt = time.Time{}
}
