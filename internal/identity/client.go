// Package identity wraps the account store: sign-up, sign-in,
// point lookups and the symmetric partner-link transaction. It also
// emits an auth-state event stream that session controllers consume.
package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"pairmood/api/internal/store"
	"pairmood/api/internal/util"
)

// AuthState carries the current credential, or none when UserID is
// empty (signed out). Refresh marks an account record change, such as
// a partner link, for a user who is already signed in.
type AuthState struct {
	UserID  string
	Refresh bool
}

// UserStore defines the storage interface the client depends on.
type UserStore interface {
	CreateUser(ctx context.Context, user store.User) error
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	GetUserByID(ctx context.Context, id string) (store.User, error)
	LinkPartners(ctx context.Context, userID, partnerID string) error
}

// Client is the identity store client.
type Client struct {
	store UserStore

	mu       sync.Mutex
	watchers map[int]chan AuthState
	nextID   int
}

func NewClient(userStore UserStore) *Client {
	return &Client{
		store:    userStore,
		watchers: make(map[int]chan AuthState),
	}
}

// Watch registers for auth-state change notifications. Events are
// delivered in order on the returned channel until the cancel func is
// called. A slow consumer that falls more than a buffer's worth behind
// loses events rather than blocking sign-in paths.
func (c *Client) Watch() (<-chan AuthState, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	ch := make(chan AuthState, 16)
	c.watchers[id] = ch
	cancel := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if existing, ok := c.watchers[id]; ok {
			delete(c.watchers, id)
			close(existing)
		}
	}
	return ch, cancel
}

func (c *Client) broadcast(state AuthState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.watchers {
		select {
		case ch <- state:
		default:
			log.Printf("identity: dropping auth-state event for slow watcher")
		}
	}
}

// SignUp creates a credential and the matching user record, seeds a
// deterministic avatar from the new id, and establishes an
// authenticated session.
func (c *Client) SignUp(ctx context.Context, email, password, name string) (store.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	name = strings.TrimSpace(name)
	if email == "" || !strings.Contains(email, "@") {
		return store.User{}, fmt.Errorf("%w: a valid email is required", ErrValidation)
	}
	if name == "" {
		return store.User{}, fmt.Errorf("%w: display name is required", ErrValidation)
	}
	if len(password) < 8 {
		return store.User{}, fmt.Errorf("%w: password must be at least 8 characters", ErrValidation)
	}

	if _, err := c.store.GetUserByEmail(ctx, email); err == nil {
		return store.User{}, ErrCredentialConflict
	} else if !errors.Is(err, sql.ErrNoRows) {
		return store.User{}, fmt.Errorf("%w: lookup email: %v", ErrPersistence, err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return store.User{}, fmt.Errorf("hash password: %w", err)
	}

	user := store.User{
		ID:           util.NewID("usr"),
		DisplayName:  name,
		Email:        email,
		PasswordHash: string(hash),
		PartnerID:    "",
	}
	user.AvatarURL = DefaultAvatarURL(user.ID)

	if err := c.store.CreateUser(ctx, user); err != nil {
		// A concurrent sign-up can slip past the lookup above; the
		// unique index is the arbiter.
		if errors.Is(err, store.ErrEmailTaken) {
			return store.User{}, ErrCredentialConflict
		}
		return store.User{}, fmt.Errorf("%w: create user: %v", ErrPersistence, err)
	}

	c.broadcast(AuthState{UserID: user.ID})
	return user, nil
}

// SignIn verifies the credential and fetches the matching user record.
func (c *Client) SignIn(ctx context.Context, email, password string) (store.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return store.User{}, fmt.Errorf("%w: email and password are required", ErrValidation)
	}

	user, err := c.store.GetUserByEmail(ctx, email)
	if errors.Is(err, sql.ErrNoRows) {
		return store.User{}, ErrAuthentication
	}
	if err != nil {
		return store.User{}, fmt.Errorf("%w: lookup email: %v", ErrPersistence, err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return store.User{}, ErrAuthentication
	}

	c.broadcast(AuthState{UserID: user.ID})
	return user, nil
}

// SignOut terminates the session. Idempotent.
func (c *Client) SignOut() {
	c.broadcast(AuthState{})
}

// GetByID is a point lookup that returns nil rather than failing when
// the user is absent.
func (c *Client) GetByID(ctx context.Context, userID string) (*store.User, error) {
	if userID == "" {
		return nil, nil
	}
	user, err := c.store.GetUserByID(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get user: %v", ErrPersistence, err)
	}
	return &user, nil
}

// LinkPartner couples the current user with the account registered
// under partnerEmail. Both partner_id fields change in one atomic
// transaction; a reader never observes only one side of the link.
// Linking an account that already points back at the caller succeeds
// idempotently. Returns the caller's updated record.
func (c *Client) LinkPartner(ctx context.Context, current store.User, partnerEmail string) (store.User, error) {
	partnerEmail = strings.TrimSpace(strings.ToLower(partnerEmail))
	if partnerEmail == "" {
		return store.User{}, fmt.Errorf("%w: partner email is required", ErrValidation)
	}
	if partnerEmail == strings.ToLower(current.Email) {
		return store.User{}, fmt.Errorf("%w: cannot link to yourself", ErrValidation)
	}

	partner, err := c.store.GetUserByEmail(ctx, partnerEmail)
	if errors.Is(err, sql.ErrNoRows) {
		return store.User{}, ErrNotFound
	}
	if err != nil {
		return store.User{}, fmt.Errorf("%w: lookup partner: %v", ErrPersistence, err)
	}

	if partner.PartnerID != "" && partner.PartnerID != current.ID {
		return store.User{}, ErrAlreadyLinked
	}
	if current.PartnerID != "" && current.PartnerID != partner.ID {
		return store.User{}, ErrAlreadyLinked
	}

	if err := c.store.LinkPartners(ctx, current.ID, partner.ID); err != nil {
		if errors.Is(err, store.ErrPartnerConflict) {
			return store.User{}, ErrAlreadyLinked
		}
		if errors.Is(err, sql.ErrNoRows) {
			return store.User{}, ErrNotFound
		}
		return store.User{}, fmt.Errorf("%w: link partners: %v", ErrPersistence, err)
	}

	current.PartnerID = partner.ID

	// Both account records changed; session controllers tracking
	// either side re-resolve their user.
	c.broadcast(AuthState{UserID: current.ID, Refresh: true})
	c.broadcast(AuthState{UserID: partner.ID, Refresh: true})
	return current, nil
}

// DefaultAvatarURL returns the deterministic identicon URI seeded by
// the user id.
func DefaultAvatarURL(seed string) string {
	return "https://api.dicebear.com/7.x/avataaars/svg?seed=" + seed
}
