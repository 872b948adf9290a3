package filter

import (
	"errors"
	"fmt"

	"github.com/jaennil/guide_helper/backend/wmscache/internal/grid"
)

var ErrRejected = errors.New("request rejected")

// Request is what filters get to see before a fetch starts.
type Request struct {
	Layer  string
	SRS    grid.SRS
	Cell   grid.Cell
	Format string
}

// Layer is the part of a layer filters need to initialize themselves.
type Layer interface {
	Name() string
	Grids() map[grid.SRS]grid.Calculator
}

type Filter interface {
	Name() string
	Apply(req Request) error
}

// Initializer is implemented by filters that precompute state per layer.
type Initializer interface {
	Initialize(l Layer) error
}

// Updater is implemented by filters whose state can be refreshed at runtime.
type Updater interface {
	Update(l Layer) error
}

type RejectedError struct {
	Filter string
	Reason string
}

func (e *RejectedError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("rejected by filter %s", e.Filter)
	}
	return fmt.Sprintf("rejected by filter %s: %s", e.Filter, e.Reason)
}

func (e *RejectedError) Is(target error) bool {
	return target == ErrRejected
}

func reject(f Filter, format string, args ...any) error {
	return &RejectedError{Filter: f.Name(), Reason: fmt.Sprintf(format, args...)}
}

// Chain applies filters in order and stops at the first rejection.
type Chain []Filter

func (c Chain) Apply(req Request) error {
	for _, f := range c {
		if err := f.Apply(req); err != nil {
			return err
		}
	}
	return nil
}

func (c Chain) Initialize(l Layer) error {
	for _, f := range c {
		i, ok := f.(Initializer)
		if !ok {
			continue
		}
		if err := i.Initialize(l); err != nil {
			return fmt.Errorf("failed to initialize filter %s: %w", f.Name(), err)
		}
	}
	return nil
}

func (c Chain) Update(l Layer) error {
	for _, f := range c {
		u, ok := f.(Updater)
		if !ok {
			continue
		}
		if err := u.Update(l); err != nil {
			return fmt.Errorf("failed to update filter %s: %w", f.Name(), err)
		}
	}
	return nil
}
