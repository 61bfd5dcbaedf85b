package search

import (
	"context"
	"log"
	"time"

	"pairmood/api/internal/store"
)

// Engine is the primary search backend.
type Engine interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
	IndexMood(record MoodRecord) error
}

// NoteStore is the Postgres fallback used when the engine is down.
type NoteStore interface {
	SearchMoodNotes(ctx context.Context, userIDs []string, query string, limit int) ([]store.MoodEntry, error)
}

// Service tries the search engine first and falls back to a Postgres
// ILIKE scan. engine may be nil when Meilisearch is not configured.
type Service struct {
	engine Engine
	notes  NoteStore
}

func NewService(engine Engine, notes NoteStore) *Service {
	return &Service{engine: engine, notes: notes}
}

// Search executes a full-text search over the given users' entries.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.engine != nil && s.engine.Healthy() {
		results, total, err := s.engine.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: engine error, falling back to postgres: %v", err)
	}

	entries, err := s.notes.SearchMoodNotes(ctx, q.UserIDs, q.Text, q.Limit)
	if err != nil {
		log.Printf("search: postgres fallback error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}

	results := make([]Result, 0, len(entries))
	for _, e := range entries {
		results = append(results, Result{
			ID:        e.ID,
			UserID:    e.UserID,
			Mood:      string(e.Mood),
			Intensity: e.Intensity,
			Snippet:   e.Note,
			CreatedAt: e.Timestamp.Format(time.RFC3339),
		})
	}
	return Response{Results: results, Total: len(results), Query: q.Text}
}

// IndexMood pushes a mood entry into the engine, fire-and-forget.
func (s *Service) IndexMood(entry store.MoodEntry) {
	if s.engine == nil || !s.engine.Healthy() {
		return
	}
	record := MoodRecord{
		ID:        entry.ID,
		UserID:    entry.UserID,
		Mood:      string(entry.Mood),
		Intensity: entry.Intensity,
		Note:      entry.Note,
		CreatedAt: entry.Timestamp.Format(time.RFC3339),
	}
	go func() {
		if err := s.engine.IndexMood(record); err != nil {
			log.Printf("search: index mood %s: %v", record.ID, err)
		}
	}()
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
