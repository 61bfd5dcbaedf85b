// Package moods wraps the mood entry store: append-only writes plus
// live per-user subscriptions with immediate-snapshot-then-update
// semantics, backed by Redis pub/sub change notifications.
package moods

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"

	"pairmood/api/internal/store"
	"pairmood/api/internal/util"
)

var (
	// ErrInvalidMood indicates a mood outside the closed category set.
	ErrInvalidMood = errors.New("invalid mood category")
	// ErrPersistence indicates a store-level failure on write or subscribe.
	ErrPersistence = errors.New("persistence error")
	// ErrNoLiveUpdates indicates live subscriptions are disabled
	// because no Redis backend is configured.
	ErrNoLiveUpdates = errors.New("live updates unavailable")
)

// Unsubscribe cancels a live subscription. After it returns, no further
// callbacks fire, even for an in-flight change notification.
type Unsubscribe func()

// Store defines the mood storage the client depends on.
type Store interface {
	InsertMood(ctx context.Context, entry store.MoodEntry) (store.MoodEntry, error)
	ListMoodsByUser(ctx context.Context, userID string, limit int) ([]store.MoodEntry, error)
}

// Client is the mood store client. rdb may be nil, in which case
// writes still persist but Subscribe reports ErrNoLiveUpdates.
type Client struct {
	store Store
	rdb   *redis.Client
}

func NewClient(moodStore Store, rdb *redis.Client) *Client {
	return &Client{store: moodStore, rdb: rdb}
}

func channelFor(userID string) string {
	return "moods:" + userID
}

// Append inserts a new entry with a store-assigned id and timestamp and
// notifies live subscribers for that user. Returns the stored entry.
func (c *Client) Append(ctx context.Context, userID string, mood store.Mood, intensity int, note string) (store.MoodEntry, error) {
	if !store.ValidMood(mood) {
		return store.MoodEntry{}, fmt.Errorf("%w: %q", ErrInvalidMood, mood)
	}
	entry := store.MoodEntry{
		ID:        util.NewID("mood"),
		UserID:    userID,
		Mood:      mood,
		Intensity: intensity,
		Note:      note,
	}
	stored, err := c.store.InsertMood(ctx, entry)
	if err != nil {
		return store.MoodEntry{}, fmt.Errorf("%w: append mood: %v", ErrPersistence, err)
	}
	if c.rdb != nil {
		if err := c.rdb.Publish(ctx, channelFor(userID), entry.ID).Err(); err != nil {
			return store.MoodEntry{}, fmt.Errorf("%w: publish mood change: %v", ErrPersistence, err)
		}
	}
	return stored, nil
}

// List returns the user's entries most recent first. limit <= 0 means
// no cap.
func (c *Client) List(ctx context.Context, userID string, limit int) ([]store.MoodEntry, error) {
	entries, err := c.store.ListMoodsByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list moods: %v", ErrPersistence, err)
	}
	if entries == nil {
		entries = []store.MoodEntry{}
	}
	return entries, nil
}

// Subscribe opens a live query for the user's entries ordered most
// recent first. onUpdate fires once immediately with the current
// snapshot and again after every subsequent insert, each time with the
// full replacement list. Subscriptions for different users are
// independent. The returned Unsubscribe is unconditional: once called,
// no further callbacks are delivered.
func (c *Client) Subscribe(ctx context.Context, userID string, onUpdate func([]store.MoodEntry)) (Unsubscribe, error) {
	if c.rdb == nil {
		return nil, ErrNoLiveUpdates
	}
	pubsub := c.rdb.Subscribe(ctx, channelFor(userID))
	// Confirm the subscription before taking the snapshot so an insert
	// landing in between still produces a notification.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("%w: subscribe moods: %v", ErrPersistence, err)
	}

	entries, err := c.store.ListMoodsByUser(ctx, userID, 0)
	if err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("%w: load mood snapshot: %v", ErrPersistence, err)
	}

	sub := &subscription{
		client:   c,
		userID:   userID,
		pubsub:   pubsub,
		onUpdate: onUpdate,
	}
	sub.deliver(entries)
	go sub.loop(ctx)

	return sub.cancel, nil
}

type subscription struct {
	client   *Client
	userID   string
	pubsub   *redis.PubSub
	onUpdate func([]store.MoodEntry)

	mu     sync.Mutex
	closed bool
}

// deliver invokes the callback under the subscription lock, so a
// concurrent cancel either completes before the delivery or waits for
// it; a cancelled subscription never fires.
func (s *subscription) deliver(entries []store.MoodEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.onUpdate(entries)
}

func (s *subscription) loop(ctx context.Context) {
	for range s.pubsub.Channel() {
		entries, err := s.client.store.ListMoodsByUser(ctx, s.userID, 0)
		if err != nil {
			log.Printf("moods: refresh subscription for %s: %v", s.userID, err)
			continue
		}
		s.deliver(entries)
	}
}

func (s *subscription) cancel() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	_ = s.pubsub.Close()
}
