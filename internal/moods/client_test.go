package moods

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"pairmood/api/internal/store"
)

type memMoodStore struct {
	mu      sync.Mutex
	entries []store.MoodEntry
	clock   time.Time

	insertErr error
}

func (m *memMoodStore) InsertMood(_ context.Context, entry store.MoodEntry) (store.MoodEntry, error) {
	if m.insertErr != nil {
		return store.MoodEntry{}, m.insertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.clock.IsZero() {
		m.clock = time.Now()
	}
	m.clock = m.clock.Add(time.Millisecond)
	entry.Timestamp = m.clock
	m.entries = append(m.entries, entry)
	return entry, nil
}

func (m *memMoodStore) ListMoodsByUser(_ context.Context, userID string, _ int) ([]store.MoodEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]store.MoodEntry, 0)
	for _, entry := range m.entries {
		if entry.UserID == userID {
			result = append(result, entry)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Timestamp.After(result[j].Timestamp) })
	return result, nil
}

func setupClient(t *testing.T) (*Client, *memMoodStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	mem := &memMoodStore{}
	return NewClient(mem, rdb), mem
}

func collectUpdates(t *testing.T) (func([]store.MoodEntry), <-chan []store.MoodEntry) {
	t.Helper()
	updates := make(chan []store.MoodEntry, 16)
	return func(entries []store.MoodEntry) { updates <- entries }, updates
}

func waitForUpdate(t *testing.T, updates <-chan []store.MoodEntry) []store.MoodEntry {
	t.Helper()
	select {
	case entries := <-updates:
		return entries
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for subscription callback")
		return nil
	}
}

func TestAppendRejectsInvalidMood(t *testing.T) {
	client, _ := setupClient(t)

	_, err := client.Append(context.Background(), "usr_1", "ecstatic", 5, "")
	if !errors.Is(err, ErrInvalidMood) {
		t.Fatalf("expected ErrInvalidMood, got %v", err)
	}
}

func TestAppendSurfacesStoreFailure(t *testing.T) {
	client, mem := setupClient(t)
	mem.insertErr = errors.New("quota exceeded")

	_, err := client.Append(context.Background(), "usr_1", store.MoodHappy, 5, "")
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
}

func TestSubscribeFiresImmediatelyWithSnapshot(t *testing.T) {
	client, _ := setupClient(t)
	ctx := context.Background()

	if _, err := client.Append(ctx, "usr_1", store.MoodCalm, 6, "quiet morning"); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	onUpdate, updates := collectUpdates(t)
	cancel, err := client.Subscribe(ctx, "usr_1", onUpdate)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer cancel()

	snapshot := waitForUpdate(t, updates)
	if len(snapshot) != 1 {
		t.Fatalf("expected 1 entry in snapshot, got %d", len(snapshot))
	}
	if snapshot[0].Mood != store.MoodCalm || snapshot[0].Note != "quiet morning" {
		t.Fatalf("unexpected snapshot entry: %+v", snapshot[0])
	}
}

func TestAppendSurfacesInNextCallback(t *testing.T) {
	client, _ := setupClient(t)
	ctx := context.Background()

	onUpdate, updates := collectUpdates(t)
	cancel, err := client.Subscribe(ctx, "usr_1", onUpdate)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer cancel()

	if got := waitForUpdate(t, updates); len(got) != 0 {
		t.Fatalf("expected empty initial snapshot, got %d entries", len(got))
	}

	before := time.Now()
	if _, err := client.Append(ctx, "usr_1", store.MoodHappy, 7, "great day"); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	got := waitForUpdate(t, updates)
	if len(got) != 1 {
		t.Fatalf("expected 1 entry after append, got %d", len(got))
	}
	entry := got[0]
	if entry.Mood != store.MoodHappy || entry.Intensity != 7 || entry.Note != "great day" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if entry.Timestamp.Before(before.Add(-time.Second)) || entry.Timestamp.IsZero() {
		t.Fatalf("expected store-assigned timestamp, got %v", entry.Timestamp)
	}
}

func TestEntriesOrderedMostRecentFirst(t *testing.T) {
	client, _ := setupClient(t)
	ctx := context.Background()

	for _, mood := range []store.Mood{store.MoodSad, store.MoodCalm, store.MoodHappy} {
		if _, err := client.Append(ctx, "usr_1", mood, 5, ""); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	onUpdate, updates := collectUpdates(t)
	cancel, err := client.Subscribe(ctx, "usr_1", onUpdate)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer cancel()

	got := waitForUpdate(t, updates)
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
	if got[0].Mood != store.MoodHappy || got[2].Mood != store.MoodSad {
		t.Fatalf("expected most recent first, got %s..%s", got[0].Mood, got[2].Mood)
	}
}

func TestUnsubscribeStopsCallbacks(t *testing.T) {
	client, _ := setupClient(t)
	ctx := context.Background()

	onUpdate, updates := collectUpdates(t)
	cancel, err := client.Subscribe(ctx, "usr_1", onUpdate)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	waitForUpdate(t, updates)

	cancel()

	if _, err := client.Append(ctx, "usr_1", store.MoodAngry, 9, ""); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	select {
	case entries := <-updates:
		t.Fatalf("expected no callback after unsubscribe, got %d entries", len(entries))
	case <-time.After(200 * time.Millisecond):
	}
}

func TestSubscriptionsForDifferentUsersAreIndependent(t *testing.T) {
	client, _ := setupClient(t)
	ctx := context.Background()

	onA, updatesA := collectUpdates(t)
	cancelA, err := client.Subscribe(ctx, "usr_a", onA)
	if err != nil {
		t.Fatalf("Subscribe(a) error = %v", err)
	}
	defer cancelA()
	waitForUpdate(t, updatesA)

	onB, updatesB := collectUpdates(t)
	cancelB, err := client.Subscribe(ctx, "usr_b", onB)
	if err != nil {
		t.Fatalf("Subscribe(b) error = %v", err)
	}
	defer cancelB()
	waitForUpdate(t, updatesB)

	if _, err := client.Append(ctx, "usr_b", store.MoodLoved, 9, ""); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	got := waitForUpdate(t, updatesB)
	if len(got) != 1 || got[0].UserID != "usr_b" {
		t.Fatalf("unexpected partner feed update: %+v", got)
	}

	select {
	case entries := <-updatesA:
		t.Fatalf("expected no update on usr_a subscription, got %d entries", len(entries))
	case <-time.After(200 * time.Millisecond):
	}
}

func TestNoRedisDisablesLiveUpdates(t *testing.T) {
	client := NewClient(&memMoodStore{}, nil)
	ctx := context.Background()

	entry, err := client.Append(ctx, "usr_a", store.MoodHappy, 7, "offline write")
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if entry.ID == "" {
		t.Fatal("expected a stored entry without redis")
	}

	entries, err := client.List(ctx, "usr_a", 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}

	if _, err := client.Subscribe(ctx, "usr_a", func([]store.MoodEntry) {}); !errors.Is(err, ErrNoLiveUpdates) {
		t.Fatalf("expected ErrNoLiveUpdates, got %v", err)
	}
}
