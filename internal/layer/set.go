package layer

import (
	"fmt"

	"github.com/jaennil/guide_helper/backend/wmscache/pkg/config"
)

// Set holds the configured layers by name.
type Set struct {
	layers map[string]*Layer
	order  []string
}

func NewSet(cfgs []config.Layer, d Defaults) (*Set, error) {
	s := &Set{layers: make(map[string]*Layer, len(cfgs))}

	for _, cfg := range cfgs {
		if _, ok := s.layers[cfg.Name]; ok {
			return nil, fmt.Errorf("duplicate layer %q", cfg.Name)
		}
		l, err := New(cfg, d)
		if err != nil {
			return nil, err
		}
		s.layers[cfg.Name] = l
		s.order = append(s.order, cfg.Name)
	}

	return s, nil
}

func (s *Set) Get(name string) (*Layer, error) {
	l, ok := s.layers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLayer, name)
	}
	return l, nil
}

func (s *Set) All() []*Layer {
	all := make([]*Layer, 0, len(s.order))
	for _, name := range s.order {
		all = append(all, s.layers[name])
	}
	return all
}
