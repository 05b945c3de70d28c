package engine

import (
	"log/slog"

	"github.com/tuannm99/geovec/internal/geom"
	"github.com/tuannm99/geovec/internal/record"
)

type ChangeKind uint8

const (
	FeaturesAdded ChangeKind = iota + 1
	FeaturesModified
	FeaturesRemoved
)

func (k ChangeKind) String() string {
	switch k {
	case FeaturesAdded:
		return "added"
	case FeaturesModified:
		return "modified"
	case FeaturesRemoved:
		return "removed"
	}
	return "unknown"
}

// ChangeEvent is published after a commit, once per kind of change.
type ChangeEvent struct {
	Dataset string
	Kind    ChangeKind
	IDs     []string
	// Envelope covers every feature the commit touched.
	Envelope geom.Envelope
}

// Watch subscribes to change events. A subscriber that falls more than
// buffer events behind misses events. Call cancel to unsubscribe.
func (s *Store) Watch(buffer int) (events <-chan ChangeEvent, cancel func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan ChangeEvent, buffer)
	s.mu.Lock()
	s.watchers = append(s.watchers, ch)
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, w := range s.watchers {
			if w == ch {
				s.watchers = append(s.watchers[:i], s.watchers[i+1:]...)
				close(ch)
				return
			}
		}
	}
}

func (s *Store) publish(cs *record.ChangeSet) {
	if cs == nil || cs.Empty() {
		return
	}
	var evs []ChangeEvent
	add := func(k ChangeKind, ids []string) {
		if len(ids) > 0 {
			evs = append(evs, ChangeEvent{Dataset: s.name, Kind: k, IDs: ids, Envelope: cs.Envelope})
		}
	}
	add(FeaturesAdded, cs.Added)
	add(FeaturesModified, cs.Modified)
	add(FeaturesRemoved, cs.Removed)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.watchers {
		for _, ev := range evs {
			select {
			case ch <- ev:
			default:
				slog.Warn("engine: watcher is behind, dropping event", "dataset", s.name, "kind", ev.Kind)
			}
		}
	}
}

func (s *Store) closeWatchers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.watchers {
		close(ch)
	}
	s.watchers = nil
}
