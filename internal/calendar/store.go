package calendar

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"questboard/internal/models"
	"questboard/internal/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrUnsupportedRecurrence indicates a repeat policy the matcher does not implement.
	ErrUnsupportedRecurrence = errors.New("calendar: unsupported recurrence")
	// ErrInvalidEvent indicates an event that cannot be stored.
	ErrInvalidEvent = errors.New("calendar: invalid event")
)

// Persister loads and saves the complete event collection.
type Persister interface {
	LoadEvents(ctx context.Context) ([]models.CalendarEvent, error)
	SaveEvents(ctx context.Context, events []models.CalendarEvent) error
}

type cacheKey struct {
	year, day int
}

// Store is the calendar event collection. Lookups by date are cached until the next mutation.
type Store struct {
	def       *Definition
	persister Persister
	log       *logger.Logger
	newID     func() string

	mu      sync.RWMutex
	events  []models.CalendarEvent
	version uint64

	cacheMu      sync.Mutex
	cache        map[cacheKey][]string
	cacheVersion uint64
}

// NewStore loads the persisted events. Events with a repeat policy the matcher does not
// support are kept but never match.
func NewStore(ctx context.Context, def *Definition, p Persister, log *logger.Logger) (*Store, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	events, err := p.LoadEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading calendar events: %w", err)
	}

	s := &Store{
		def:       def,
		persister: p,
		log:       log,
		newID:     uuid.NewString,
		events:    make([]models.CalendarEvent, 0, len(events)),
	}
	for _, event := range events {
		if len(event.Pages) == 0 {
			continue
		}
		if !supported(event.Repeat) {
			log.Warn("calendar event has an unsupported repeat policy and will never match",
				zap.String("event", event.ID), zap.String("repeat", event.Repeat))
		}
		s.events = append(s.events, event)
	}
	return s, nil
}

// Definition returns the calendar the store matches against.
func (s *Store) Definition() *Definition {
	return s.def
}

// StoreEvents creates one event referencing pages. A zero duration is stored as one day.
func (s *Store) StoreEvents(ctx context.Context, pages []string, event models.CalendarEvent) (models.CalendarEvent, error) {
	event.Pages = uniquePages(pages)
	if len(event.Pages) == 0 {
		return models.CalendarEvent{}, fmt.Errorf("%w: no pages", ErrInvalidEvent)
	}
	if event.Duration == 0 {
		event.Duration = 1
	}
	if event.Duration < 1 {
		return models.CalendarEvent{}, fmt.Errorf("%w: duration %d", ErrInvalidEvent, event.Duration)
	}
	if !supported(event.Repeat) {
		return models.CalendarEvent{}, fmt.Errorf("%w: %q", ErrUnsupportedRecurrence, event.Repeat)
	}
	if err := s.def.ValidDate(event.Date); err != nil {
		return models.CalendarEvent{}, fmt.Errorf("%w: %s", ErrInvalidEvent, err)
	}
	event.ID = s.newID()

	err := s.mutate(ctx, func(events []models.CalendarEvent) []models.CalendarEvent {
		return append(events, event)
	})
	if err != nil {
		return models.CalendarEvent{}, err
	}

	s.log.Info("calendar event stored", zap.String("event", event.ID), zap.Int("pages", len(event.Pages)))
	return event, nil
}

// RemoveEvent removes page from every event, deleting events left without pages. It returns
// the number of events that referenced the page.
func (s *Store) RemoveEvent(ctx context.Context, page string) (int, error) {
	var touched int
	err := s.mutate(ctx, func(events []models.CalendarEvent) []models.CalendarEvent {
		out := events[:0]
		for _, event := range events {
			kept := event.Pages[:0:0]
			for _, p := range event.Pages {
				if p != page {
					kept = append(kept, p)
				}
			}
			if len(kept) != len(event.Pages) {
				touched++
			}
			if len(kept) == 0 {
				continue
			}
			event.Pages = kept
			out = append(out, event)
		}
		return out
	})
	return touched, err
}

// Clear deletes every event.
func (s *Store) Clear(ctx context.Context) error {
	return s.mutate(ctx, func([]models.CalendarEvent) []models.CalendarEvent {
		return []models.CalendarEvent{}
	})
}

// Events returns a copy of all events.
func (s *Store) Events() []models.CalendarEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneEvents(s.events)
}

// ActiveOn returns the pages of every event active on date, each page once.
func (s *Store) ActiveOn(date models.EventDate) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key := cacheKey{year: date.Year, day: date.Day}
	s.cacheMu.Lock()
	if s.cache == nil || s.cacheVersion != s.version {
		s.cache = make(map[cacheKey][]string)
		s.cacheVersion = s.version
	}
	pages, ok := s.cache[key]
	s.cacheMu.Unlock()
	if ok {
		return copyPages(pages)
	}

	seen := make(map[string]bool)
	pages = []string{}
	for _, event := range s.events {
		if !s.matches(event, date) {
			continue
		}
		for _, page := range event.Pages {
			if !seen[page] {
				seen[page] = true
				pages = append(pages, page)
			}
		}
	}

	s.cacheMu.Lock()
	if s.cacheVersion == s.version {
		s.cache[key] = pages
	}
	s.cacheMu.Unlock()
	return copyPages(pages)
}

// copyPages never returns nil so an empty result encodes as [].
func copyPages(pages []string) []string {
	out := make([]string, len(pages))
	copy(out, pages)
	return out
}

// HasEvents reports whether any event is active on date.
func (s *Store) HasEvents(date models.EventDate) bool {
	return len(s.ActiveOn(date)) > 0
}

func (s *Store) matches(event models.CalendarEvent, date models.EventDate) bool {
	span := event.Duration - 1
	if span < 0 {
		span = 0
	}

	switch event.Repeat {
	case models.RepeatNone:
		return s.def.Between(date, event.Date, s.def.Add(event.Date, span))
	case models.RepeatYearly:
		year := date.Year
		if date.Day < event.Date.Day {
			year--
		}
		if year < event.Date.Year {
			return false
		}
		start := models.EventDate{Day: event.Date.Day, Year: year}
		return s.def.Between(date, start, s.def.Add(start, span))
	default:
		s.log.Warn("skipping calendar event with unsupported repeat policy",
			zap.String("event", event.ID), zap.String("repeat", event.Repeat))
		return false
	}
}

// mutate persists the result of fn applied to a copy of the events and publishes it only
// after the save succeeded.
func (s *Store) mutate(ctx context.Context, fn func([]models.CalendarEvent) []models.CalendarEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := fn(cloneEvents(s.events))
	if err := s.persister.SaveEvents(ctx, next); err != nil {
		s.log.Sugar().Errorf("Failed to save calendar events: %s", err)
		return fmt.Errorf("saving calendar events: %w", err)
	}
	s.events = next
	s.version++
	return nil
}

func supported(repeat string) bool {
	return repeat == models.RepeatNone || repeat == models.RepeatYearly
}

func uniquePages(pages []string) []string {
	seen := make(map[string]bool, len(pages))
	out := make([]string, 0, len(pages))
	for _, p := range pages {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

func cloneEvents(events []models.CalendarEvent) []models.CalendarEvent {
	out := make([]models.CalendarEvent, len(events))
	for i, event := range events {
		event.Pages = append([]string(nil), event.Pages...)
		out[i] = event
	}
	return out
}
