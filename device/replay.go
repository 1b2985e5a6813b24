package device

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
)

// ErrNoDumps is returned by a Replay with nothing to serve.
var ErrNoDumps = errors.New("device: replay has no dumps")

// Tap is one recorded tap.
type Tap struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Replay serves recorded dumps in order, repeating the last one, and
// records taps instead of performing them. A tap can advance to the next
// dump, mimicking a screen change.
type Replay struct {
	mu           sync.Mutex
	dumps        []string
	next         int
	taps         []Tap
	advanceOnTap bool
}

// NewReplay serves dumps in order.
func NewReplay(dumps ...string) *Replay {
	return &Replay{dumps: dumps}
}

// LoadReplay reads each file as one dump.
func LoadReplay(paths ...string) (*Replay, error) {
	dumps := make([]string, 0, len(paths))
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("device: load replay: %w", err)
		}
		dumps = append(dumps, string(b))
	}
	return NewReplay(dumps...), nil
}

// AdvanceOnTap makes each tap move to the next dump.
func (r *Replay) AdvanceOnTap() *Replay {
	r.mu.Lock()
	r.advanceOnTap = true
	r.mu.Unlock()
	return r
}

func (r *Replay) Dump(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.dumps) == 0 {
		return "", ErrNoDumps
	}
	i := min(r.next, len(r.dumps)-1)
	if !r.advanceOnTap {
		r.next++
	}
	return r.dumps[i], nil
}

func (r *Replay) Tap(ctx context.Context, x, y int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.taps = append(r.taps, Tap{X: x, Y: y})
	if r.advanceOnTap {
		r.next++
	}
	return nil
}

// Taps returns the recorded taps.
func (r *Replay) Taps() []Tap {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Tap(nil), r.taps...)
}
