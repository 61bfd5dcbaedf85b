package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	"pairmood/api/internal/auth"
	"pairmood/api/internal/avatar"
	"pairmood/api/internal/config"
	"pairmood/api/internal/email"
	"pairmood/api/internal/export"
	"pairmood/api/internal/feed"
	"pairmood/api/internal/identity"
	"pairmood/api/internal/moods"
	"pairmood/api/internal/search"
	"pairmood/api/internal/session"
	"pairmood/api/internal/store"
	"pairmood/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	PartnerID    string
	JTI          string
	ExpiresAt    time.Time
}

type dataStore interface {
	GetUserByID(context.Context, string) (store.User, error)
	UpdateUserAvatar(context.Context, string, string) error
	ListMoodsByUser(context.Context, string, int) ([]store.MoodEntry, error)
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
	Ping(ctx context.Context) error
}

// RefreshStore holds refresh sessions; backed by Redis, or by Postgres
// when Redis is not configured.
type RefreshStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions RefreshStore
	identity *identity.Client
	moods    *moods.Client
	search   *search.Service
	export   *export.Service
	email    *email.Service
	avatars  *avatar.Service
}

// Options carries the optional backends; any of them may be nil.
type Options struct {
	Search  *search.Service
	Export  *export.Service
	Email   *email.Service
	Avatars *avatar.Service
}

func New(cfg config.Config, dataStore dataStore, sessions RefreshStore, identityClient *identity.Client, moodClient *moods.Client, opts Options) *Service {
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: sessions,
		identity: identityClient,
		moods:    moodClient,
		search:   opts.Search,
		export:   opts.Export,
		email:    opts.Email,
		avatars:  opts.Avatars,
	}
}

// SignUp registers a new account and opens a session for it.
func (s *Service) SignUp(ctx context.Context, emailAddr, password, displayName string) (Session, error) {
	user, err := s.identity.SignUp(ctx, emailAddr, password, displayName)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

// SignIn verifies credentials and opens a session.
func (s *Service) SignIn(ctx context.Context, emailAddr, password string) (Session, error) {
	user, err := s.identity.SignIn(ctx, emailAddr, password)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

// SignOut revokes the access and refresh tokens and broadcasts the
// signed-out state.
func (s *Service) SignOut(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	s.identity.SignOut()
	return nil
}

// Refresh rotates a refresh token into a fresh session.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.DisplayName,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		PartnerID:    user.PartnerID,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

// SessionFromToken validates an access token and resolves its session.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		PartnerID: user.PartnerID,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

// Profile returns the user's account details plus the linked partner,
// if any.
func (s *Service) Profile(ctx context.Context, session Session) (map[string]any, error) {
	user, err := s.store.GetUserByID(ctx, session.UserID)
	if err != nil {
		return nil, err
	}

	profile := map[string]any{
		"userId":      user.ID,
		"displayName": user.DisplayName,
		"email":       user.Email,
		"avatarUrl":   user.AvatarURL,
		"partner":     nil,
	}

	if user.PartnerID != "" {
		partner, err := s.store.GetUserByID(ctx, user.PartnerID)
		if err != nil {
			log.Printf("profile: resolve partner %s: %v", user.PartnerID, err)
		} else {
			profile["partner"] = map[string]any{
				"userId":      partner.ID,
				"displayName": partner.DisplayName,
				"email":       partner.Email,
				"avatarUrl":   partner.AvatarURL,
			}
		}
	}
	return profile, nil
}

// LinkPartner atomically links the current user with the account
// registered under partnerEmail.
func (s *Service) LinkPartner(ctx context.Context, session Session, partnerEmail string) (map[string]any, error) {
	current, err := s.store.GetUserByID(ctx, session.UserID)
	if err != nil {
		return nil, err
	}

	updated, err := s.identity.LinkPartner(ctx, current, partnerEmail)
	if err != nil {
		return nil, err
	}

	partner, err := s.store.GetUserByID(ctx, updated.PartnerID)
	if err != nil {
		return nil, err
	}

	if s.email != nil && s.email.IsConfigured() {
		go s.notifyLinked(updated, partner)
	}

	return map[string]any{
		"userId":    updated.ID,
		"partnerId": updated.PartnerID,
		"partner": map[string]any{
			"userId":      partner.ID,
			"displayName": partner.DisplayName,
			"email":       partner.Email,
			"avatarUrl":   partner.AvatarURL,
		},
	}, nil
}

func (s *Service) notifyLinked(user, partner store.User) {
	if err := s.email.SendPartnerLinked(user.Email, user.DisplayName, partner.DisplayName); err != nil {
		log.Printf("email: partner linked notification to %s: %v", user.Email, err)
	}
	if err := s.email.SendPartnerLinked(partner.Email, partner.DisplayName, user.DisplayName); err != nil {
		log.Printf("email: partner linked notification to %s: %v", partner.Email, err)
	}
}

// InvitePartner emails a signup invite to someone without an account.
func (s *Service) InvitePartner(ctx context.Context, session Session, inviteeEmail string) error {
	inviteeEmail = strings.TrimSpace(strings.ToLower(inviteeEmail))
	if inviteeEmail == "" || !strings.Contains(inviteeEmail, "@") {
		return fmt.Errorf("%w: invitee email is invalid", identity.ErrValidation)
	}
	if s.email == nil || !s.email.IsConfigured() {
		return domainError(http.StatusServiceUnavailable, "EMAIL_UNAVAILABLE", "Email delivery is not configured", nil)
	}

	signupURL := strings.TrimRight(s.cfg.AppBaseURL, "/") + "/signup?invited_by=" + session.UserID
	if err := s.email.SendPartnerInvite(inviteeEmail, session.UserName, signupURL); err != nil {
		return fmt.Errorf("send partner invite: %w", err)
	}
	return nil
}

// SubmitMood records a mood entry for the session user.
func (s *Service) SubmitMood(ctx context.Context, session Session, mood store.Mood, intensity int, note string) (store.MoodEntry, error) {
	if intensity < 1 || intensity > 10 {
		return store.MoodEntry{}, fmt.Errorf("%w: intensity must be between 1 and 10", identity.ErrValidation)
	}

	entry, err := s.moods.Append(ctx, session.UserID, mood, intensity, note)
	if err != nil {
		return store.MoodEntry{}, err
	}

	if s.search != nil {
		s.search.IndexMood(entry)
	}
	return entry, nil
}

// ListMoods returns entries for the requested scope, most recent
// first. Scope is "self" (alias "me"), "partner" or "both".
func (s *Service) ListMoods(ctx context.Context, session Session, scope string, limit int) ([]store.MoodEntry, error) {
	switch scope {
	case "", "self", "me":
		return s.moods.List(ctx, session.UserID, limit)
	case "partner":
		if session.PartnerID == "" {
			return []store.MoodEntry{}, nil
		}
		return s.moods.List(ctx, session.PartnerID, limit)
	case "both":
		own, err := s.moods.List(ctx, session.UserID, limit)
		if err != nil {
			return nil, err
		}
		if session.PartnerID == "" {
			return own, nil
		}
		partner, err := s.moods.List(ctx, session.PartnerID, limit)
		if err != nil {
			return nil, err
		}
		merged := append(own, partner...)
		sort.Slice(merged, func(i, j int) bool {
			return merged[i].Timestamp.After(merged[j].Timestamp)
		})
		if limit > 0 && len(merged) > limit {
			merged = merged[:limit]
		}
		return merged, nil
	default:
		return nil, fmt.Errorf("%w: scope must be me, self, partner or both", identity.ErrValidation)
	}
}

// ChartPoint is one plotted value in a mood series.
type ChartPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Mood      string    `json:"mood"`
	Intensity int       `json:"intensity"`
	Value     float64   `json:"value"`
}

// ChartSeries is a labeled sequence of chart points in ascending time
// order.
type ChartSeries struct {
	Label  string       `json:"label"`
	UserID string       `json:"userId"`
	Points []ChartPoint `json:"points"`
}

// Chart builds the plottable series for the user and their partner.
// Entries are labeled by comparing their owner against the session
// user, so the series stay correct whichever side logged first.
func (s *Service) Chart(ctx context.Context, session Session, limit int) ([]ChartSeries, error) {
	entries, err := s.ListMoods(ctx, session, "both", limit)
	if err != nil {
		return nil, err
	}

	own := ChartSeries{Label: "you", UserID: session.UserID, Points: []ChartPoint{}}
	partner := ChartSeries{Label: "partner", UserID: session.PartnerID, Points: []ChartPoint{}}

	// entries arrive most recent first; charts plot oldest first
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		point := ChartPoint{
			Timestamp: e.Timestamp,
			Mood:      string(e.Mood),
			Intensity: e.Intensity,
			Value:     moods.ChartValue(e.Mood, e.Intensity),
		}
		if e.UserID == session.UserID {
			own.Points = append(own.Points, point)
		} else {
			partner.Points = append(partner.Points, point)
		}
	}

	series := []ChartSeries{own}
	if session.PartnerID != "" {
		series = append(series, partner)
	}
	return series, nil
}

// Dashboard aggregates the profile, latest moods and recent history
// into one payload.
func (s *Service) Dashboard(ctx context.Context, session Session) (map[string]any, error) {
	profile, err := s.Profile(ctx, session)
	if err != nil {
		return nil, err
	}

	own, err := s.moods.List(ctx, session.UserID, 20)
	if err != nil {
		return nil, err
	}

	partnerEntries := []store.MoodEntry{}
	if session.PartnerID != "" {
		partnerEntries, err = s.moods.List(ctx, session.PartnerID, 20)
		if err != nil {
			return nil, err
		}
	}

	dashboard := map[string]any{
		"profile":       profile,
		"moods":         own,
		"partnerMoods":  partnerEntries,
		"latestMood":    nil,
		"partnerLatest": nil,
	}
	if len(own) > 0 {
		dashboard["latestMood"] = own[0]
	}
	if len(partnerEntries) > 0 {
		dashboard["partnerLatest"] = partnerEntries[0]
	}
	return dashboard, nil
}

// Search runs a full-text query over the couple's mood notes.
func (s *Service) Search(ctx context.Context, session Session, query string, limit int) (search.Response, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return search.Response{}, fmt.Errorf("%w: query is required", identity.ErrValidation)
	}
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: query}, nil
	}

	userIDs := []string{session.UserID}
	if session.PartnerID != "" {
		userIDs = append(userIDs, session.PartnerID)
	}
	return s.search.Search(ctx, search.Query{Text: query, UserIDs: userIDs, Limit: limit}), nil
}

// ExportReport renders the session user's mood history as a download.
func (s *Service) ExportReport(ctx context.Context, session Session, format export.Format, includePartner bool) (*export.Result, error) {
	if s.export == nil {
		return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Export is not configured", nil)
	}
	return s.export.Export(ctx, export.Request{
		UserID:         session.UserID,
		Format:         format,
		IncludePartner: includePartner,
		Limit:          500,
	})
}

// UploadAvatar stores a new avatar image and updates the profile.
func (s *Service) UploadAvatar(ctx context.Context, session Session, data []byte, contentType string) (string, error) {
	if s.avatars == nil {
		return "", domainError(http.StatusServiceUnavailable, "AVATARS_UNAVAILABLE", "Avatar storage is not configured", nil)
	}

	url, err := s.avatars.Upload(ctx, session.UserID, data, contentType)
	if err != nil {
		if errors.Is(err, avatar.ErrInvalidImage) {
			return "", fmt.Errorf("%w: %v", identity.ErrValidation, err)
		}
		return "", fmt.Errorf("%w: upload avatar: %v", identity.ErrPersistence, err)
	}
	if err := s.store.UpdateUserAvatar(ctx, session.UserID, url); err != nil {
		return "", err
	}
	return url, nil
}

// OpenFeed creates a live mood feed controller bound to the mood
// client. The caller owns its lifecycle.
func (s *Service) OpenFeed() *feed.Controller {
	return feed.NewController(s.moods)
}

// TrackSession opens a live view of one account record, used by the
// mood stream to pick up partner links made while the connection is
// open. The caller owns its lifecycle.
func (s *Service) TrackSession(ctx context.Context, userID string) (*session.Controller, error) {
	return session.NewControllerFor(ctx, s.identity, userID)
}

// SMTPConfigured reports whether outbound email is available.
func (s *Service) SMTPConfigured() bool {
	return s.email != nil && s.email.IsConfigured()
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// isValidationErr reports whether err belongs to the caller-correctable
// class.
func isValidationErr(err error) bool {
	return errors.Is(err, identity.ErrValidation) || errors.Is(err, moods.ErrInvalidMood)
}
