package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"pairmood/api/internal/store"
)

type fakeEngine struct {
	healthy bool
	results []Result
	err     error
}

func (f *fakeEngine) Search(q Query) ([]Result, int, error) {
	if f.err != nil {
		return nil, 0, f.err
	}
	return f.results, len(f.results), nil
}

func (f *fakeEngine) Healthy() bool { return f.healthy }

func (f *fakeEngine) IndexMood(record MoodRecord) error { return nil }

type fakeNoteStore struct {
	entries []store.MoodEntry
	err     error
	gotIDs  []string
}

func (f *fakeNoteStore) SearchMoodNotes(ctx context.Context, userIDs []string, query string, limit int) ([]store.MoodEntry, error) {
	f.gotIDs = userIDs
	return f.entries, f.err
}

func TestSearchUsesEngineWhenHealthy(t *testing.T) {
	engine := &fakeEngine{
		healthy: true,
		results: []Result{{ID: "mood_1", UserID: "usr_a", Mood: "happy", Snippet: "picnic in the <mark>park</mark>"}},
	}
	svc := NewService(engine, &fakeNoteStore{})

	resp := svc.Search(context.Background(), Query{Text: "park", UserIDs: []string{"usr_a"}})
	if resp.Total != 1 || resp.Results[0].ID != "mood_1" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestSearchFallsBackWhenEngineErrors(t *testing.T) {
	engine := &fakeEngine{healthy: true, err: errors.New("boom")}
	notes := &fakeNoteStore{entries: []store.MoodEntry{{
		ID:        "mood_2",
		UserID:    "usr_b",
		Mood:      store.MoodCalm,
		Intensity: 5,
		Note:      "quiet evening",
		Timestamp: time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC),
	}}}
	svc := NewService(engine, notes)

	resp := svc.Search(context.Background(), Query{Text: "quiet", UserIDs: []string{"usr_a", "usr_b"}})
	if resp.Total != 1 {
		t.Fatalf("expected one fallback hit, got %+v", resp)
	}
	got := resp.Results[0]
	if got.ID != "mood_2" || got.Mood != "calm" || got.Snippet != "quiet evening" {
		t.Fatalf("unexpected fallback result %+v", got)
	}
	if len(notes.gotIDs) != 2 {
		t.Fatalf("fallback should scope to both users, got %v", notes.gotIDs)
	}
}

func TestSearchFallsBackWhenEngineUnhealthy(t *testing.T) {
	engine := &fakeEngine{healthy: false, results: []Result{{ID: "should-not-appear"}}}
	notes := &fakeNoteStore{}
	svc := NewService(engine, notes)

	resp := svc.Search(context.Background(), Query{Text: "x", UserIDs: []string{"usr_a"}})
	if len(resp.Results) != 0 {
		t.Fatalf("expected empty results from fallback, got %+v", resp.Results)
	}
	if notes.gotIDs == nil {
		t.Fatal("expected fallback store to be queried")
	}
}

func TestSearchNilEngine(t *testing.T) {
	notes := &fakeNoteStore{}
	svc := NewService(nil, notes)

	resp := svc.Search(context.Background(), Query{Text: "x", UserIDs: []string{"usr_a"}})
	if resp.Results == nil {
		t.Fatal("results must be non-nil for JSON encoding")
	}
}

func TestSearchFallbackErrorYieldsEmptyResponse(t *testing.T) {
	notes := &fakeNoteStore{err: errors.New("db down")}
	svc := NewService(nil, notes)

	resp := svc.Search(context.Background(), Query{Text: "x", UserIDs: []string{"usr_a"}})
	if len(resp.Results) != 0 || resp.Total != 0 {
		t.Fatalf("expected empty response, got %+v", resp)
	}
}
