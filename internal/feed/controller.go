// Package feed maintains live mood lists for a signed-in user and
// their linked partner.
package feed

import (
	"context"
	"sync"

	"pairmood/api/internal/moods"
	"pairmood/api/internal/store"
)

// Controller holds the current mood feeds for one session. It owns up
// to two live subscriptions, one for the user and one for the partner,
// and replaces the stored lists wholesale on every update.
type Controller struct {
	moods *moods.Client

	mu         sync.RWMutex
	userID     string
	own        []store.MoodEntry
	partner    []store.MoodEntry
	cancelOwn  moods.Unsubscribe
	cancelPart moods.Unsubscribe

	updates chan struct{}
}

// NewController creates a feed controller with no identity attached.
func NewController(moodClient *moods.Client) *Controller {
	return &Controller{
		moods:   moodClient,
		updates: make(chan struct{}, 1),
	}
}

// SetIdentity re-targets the feeds at the given user and partner. Any
// prior subscriptions are torn down first. An empty userID detaches
// the controller entirely; an empty partnerID leaves only the user's
// own feed live.
func (c *Controller) SetIdentity(ctx context.Context, userID, partnerID string) error {
	c.mu.Lock()
	if c.cancelOwn != nil {
		c.cancelOwn()
		c.cancelOwn = nil
	}
	if c.cancelPart != nil {
		c.cancelPart()
		c.cancelPart = nil
	}
	c.userID = userID
	c.own = nil
	c.partner = nil
	c.mu.Unlock()

	if userID == "" {
		c.notify()
		return nil
	}

	cancelOwn, err := c.moods.Subscribe(ctx, userID, func(entries []store.MoodEntry) {
		c.mu.Lock()
		c.own = entries
		c.mu.Unlock()
		c.notify()
	})
	if err != nil {
		return err
	}

	var cancelPart moods.Unsubscribe
	if partnerID != "" {
		cancelPart, err = c.moods.Subscribe(ctx, partnerID, func(entries []store.MoodEntry) {
			c.mu.Lock()
			c.partner = entries
			c.mu.Unlock()
			c.notify()
		})
		if err != nil {
			cancelOwn()
			return err
		}
	}

	c.mu.Lock()
	c.cancelOwn = cancelOwn
	c.cancelPart = cancelPart
	c.mu.Unlock()
	return nil
}

// Submit records a new mood entry for the current user. The live
// subscription picks up the change and refreshes the own feed.
func (c *Controller) Submit(ctx context.Context, mood store.Mood, intensity int, note string) error {
	c.mu.RLock()
	userID := c.userID
	c.mu.RUnlock()
	_, err := c.moods.Append(ctx, userID, mood, intensity, note)
	return err
}

// Own returns the current user's mood entries, most recent first.
func (c *Controller) Own() []store.MoodEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.own
}

// PartnerMoods returns the partner's mood entries, most recent first.
// Empty when no partner is linked.
func (c *Controller) PartnerMoods() []store.MoodEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.partner
}

// Updates signals when either feed has changed. Signals are coalesced;
// consumers should re-read both feeds on each receive.
func (c *Controller) Updates() <-chan struct{} {
	return c.updates
}

func (c *Controller) notify() {
	select {
	case c.updates <- struct{}{}:
	default:
	}
}

// Close tears down all live subscriptions.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelOwn != nil {
		c.cancelOwn()
		c.cancelOwn = nil
	}
	if c.cancelPart != nil {
		c.cancelPart()
		c.cancelPart = nil
	}
}
