package session

import (
	"context"
	"log"
	"sync"
	"time"

	"pairmood/api/internal/identity"
	"pairmood/api/internal/store"
)

// Controller tracks the current authenticated user by consuming auth
// state notifications from the identity client. Until the first
// notification arrives the session is not ready and callers should
// treat the auth state as unknown rather than signed out.
//
// A controller bound to a specific user (NewControllerFor) instead
// follows that one account: it is ready immediately and re-resolves
// the record whenever a notification for that user arrives.
type Controller struct {
	idc    *identity.Client
	cancel func()
	userID string

	mu      sync.RWMutex
	current *store.User
	ready   bool

	changes chan struct{}
	done    chan struct{}
}

// NewController registers with the identity client and starts
// processing auth state changes.
func NewController(idc *identity.Client) *Controller {
	events, cancel := idc.Watch()
	c := &Controller{
		idc:     idc,
		cancel:  cancel,
		changes: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go c.run(events)
	return c
}

// NewControllerFor tracks one known account, for server-side
// connections established from a bearer token. The user is resolved
// before returning, so the controller starts ready; subsequent account
// changes, such as a partner link, re-resolve the record and signal
// Changes.
func NewControllerFor(ctx context.Context, idc *identity.Client, userID string) (*Controller, error) {
	user, err := idc.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, identity.ErrNotFound
	}

	events, cancel := idc.Watch()
	c := &Controller{
		idc:     idc,
		cancel:  cancel,
		userID:  userID,
		current: user,
		ready:   true,
		changes: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go c.run(events)
	return c, nil
}

func (c *Controller) run(events <-chan identity.AuthState) {
	defer close(c.done)
	for state := range events {
		c.apply(state)
	}
}

func (c *Controller) apply(state identity.AuthState) {
	if c.userID != "" {
		// Bound controller: only this account's events matter, and a
		// broadcast sign-out from some other client is not ours.
		if state.UserID != c.userID {
			return
		}
		c.resolve(state.UserID)
		return
	}

	if state.Refresh {
		current := c.CurrentUser()
		if current == nil || current.ID != state.UserID {
			return
		}
		c.resolve(state.UserID)
		return
	}

	var user *store.User
	if state.UserID != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		resolved, err := c.idc.GetByID(ctx, state.UserID)
		cancel()
		if err != nil {
			// Keep the previous session rather than dropping the
			// user on a transient lookup failure.
			log.Printf("session: resolve user %s: %v", state.UserID, err)
			c.mu.Lock()
			c.ready = true
			c.mu.Unlock()
			return
		}
		user = resolved
	}

	c.mu.Lock()
	c.current = user
	c.ready = true
	c.mu.Unlock()
	c.notify()
}

// resolve re-reads the user record and signals Changes. A transient
// lookup failure keeps the previous record.
func (c *Controller) resolve(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	user, err := c.idc.GetByID(ctx, userID)
	cancel()
	if err != nil {
		log.Printf("session: resolve user %s: %v", userID, err)
		return
	}

	c.mu.Lock()
	c.current = user
	c.ready = true
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) notify() {
	select {
	case c.changes <- struct{}{}:
	default:
	}
}

// Changes signals after the tracked account record has been
// re-resolved. Notifications coalesce; read CurrentUser for the state.
func (c *Controller) Changes() <-chan struct{} {
	return c.changes
}

// CurrentUser returns the signed-in user, or nil when signed out or
// before the first auth notification.
func (c *Controller) CurrentUser() *store.User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// AuthReady reports whether at least one auth state notification has
// been processed.
func (c *Controller) AuthReady() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// Partner resolves the current user's linked partner. Returns nil when
// signed out, unlinked, or when the lookup fails.
func (c *Controller) Partner(ctx context.Context) *store.User {
	current := c.CurrentUser()
	if current == nil || current.PartnerID == "" {
		return nil
	}
	partner, err := c.idc.GetByID(ctx, current.PartnerID)
	if err != nil {
		log.Printf("session: resolve partner %s: %v", current.PartnerID, err)
		return nil
	}
	return partner
}

// Refresh re-reads the current user from the store, picking up partner
// links made since sign-in.
func (c *Controller) Refresh(ctx context.Context) {
	current := c.CurrentUser()
	if current == nil {
		return
	}
	user, err := c.idc.GetByID(ctx, current.ID)
	if err != nil {
		log.Printf("session: refresh user %s: %v", current.ID, err)
		return
	}
	c.mu.Lock()
	c.current = user
	c.mu.Unlock()
	c.notify()
}

// Close detaches from the identity client and waits for the event loop
// to drain.
func (c *Controller) Close() {
	c.cancel()
	<-c.done
}
