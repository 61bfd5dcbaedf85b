package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrPartnerConflict is returned by LinkPartners when one side of the
// requested link is already linked to a third user.
var ErrPartnerConflict = errors.New("partner already linked")

// ErrEmailTaken is returned by CreateUser when the email unique index
// rejects the insert. Callers race the pre-insert lookup, so this is
// the authoritative duplicate check.
var ErrEmailTaken = errors.New("email already registered")

const pgUniqueViolation = "23505"

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email, password_hash, avatar_url, partner_id)
		VALUES ($1, $2, $3, $4, $5, '')
	`, user.ID, user.DisplayName, user.Email, user.PasswordHash, user.AvatarURL)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrEmailTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

const userColumns = `id, display_name, email, password_hash, avatar_url, partner_id, created_at, updated_at`

func (s *PostgresStore) scanUser(row *sql.Row) (User, error) {
	var user User
	err := row.Scan(
		&user.ID,
		&user.DisplayName,
		&user.Email,
		&user.PasswordHash,
		&user.AvatarURL,
		&user.PartnerID,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id=$1`, userID))
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE LOWER(email)=LOWER($1)`, email))
}

func (s *PostgresStore) UpdateUserAvatar(ctx context.Context, userID, avatarURL string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET avatar_url=$2, updated_at=NOW() WHERE id=$1
	`, userID, avatarURL)
	if err != nil {
		return fmt.Errorf("update user avatar: %w", err)
	}
	return nil
}

// LinkPartners sets both users' partner_id fields to reference each
// other in a single transaction. Both rows are locked before the
// precondition check so a concurrent reader observes either no link or
// the complete symmetric link, never one side of it. Re-establishing an
// existing link between the same two users succeeds.
func (s *PostgresStore) LinkPartners(ctx context.Context, userID, partnerID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin link tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Lock in id order so two concurrent links cannot deadlock.
	rows, err := tx.QueryContext(ctx, `
		SELECT id, partner_id FROM users WHERE id IN ($1, $2) ORDER BY id FOR UPDATE
	`, userID, partnerID)
	if err != nil {
		return fmt.Errorf("lock users: %w", err)
	}
	current := make(map[string]string, 2)
	for rows.Next() {
		var id, linked string
		if err := rows.Scan(&id, &linked); err != nil {
			rows.Close()
			return fmt.Errorf("scan locked user: %w", err)
		}
		current[id] = linked
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate locked users: %w", err)
	}
	if len(current) != 2 {
		return sql.ErrNoRows
	}

	if linked := current[partnerID]; linked != "" && linked != userID {
		return ErrPartnerConflict
	}
	if linked := current[userID]; linked != "" && linked != partnerID {
		return ErrPartnerConflict
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE users SET partner_id=$2, updated_at=NOW() WHERE id=$1
	`, userID, partnerID); err != nil {
		return fmt.Errorf("link user side: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE users SET partner_id=$2, updated_at=NOW() WHERE id=$1
	`, partnerID, userID); err != nil {
		return fmt.Errorf("link partner side: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit link tx: %w", err)
	}
	return nil
}

// InsertMood stores a new mood entry. The id and timestamp are assigned
// here, never by the caller.
func (s *PostgresStore) InsertMood(ctx context.Context, entry MoodEntry) (MoodEntry, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO moods (id, user_id, mood, intensity, note)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, entry.ID, entry.UserID, string(entry.Mood), entry.Intensity, entry.Note).Scan(&entry.Timestamp)
	if err != nil {
		return MoodEntry{}, fmt.Errorf("insert mood: %w", err)
	}
	return entry, nil
}

// ListMoodsByUser returns the user's entries most recent first.
// limit <= 0 means no limit.
func (s *PostgresStore) ListMoodsByUser(ctx context.Context, userID string, limit int) ([]MoodEntry, error) {
	query := `
		SELECT id, user_id, mood, intensity, note, created_at
		FROM moods
		WHERE user_id=$1
		ORDER BY created_at DESC
	`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list moods: %w", err)
	}
	defer rows.Close()

	entries := make([]MoodEntry, 0)
	for rows.Next() {
		var entry MoodEntry
		var mood string
		if err := rows.Scan(&entry.ID, &entry.UserID, &mood, &entry.Intensity, &entry.Note, &entry.Timestamp); err != nil {
			return nil, fmt.Errorf("scan mood: %w", err)
		}
		entry.Mood = Mood(mood)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate moods: %w", err)
	}
	return entries, nil
}

// SearchMoodNotes is the Postgres fallback for note search when
// Meilisearch is unavailable.
func (s *PostgresStore) SearchMoodNotes(ctx context.Context, userIDs []string, query string, limit int) ([]MoodEntry, error) {
	if len(userIDs) == 0 {
		return []MoodEntry{}, nil
	}
	if limit <= 0 {
		limit = 20
	}
	placeholders := make([]string, len(userIDs))
	args := make([]any, 0, len(userIDs)+2)
	for i, id := range userIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args = append(args, id)
	}
	args = append(args, query, limit)
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, user_id, mood, intensity, note, created_at
		FROM moods
		WHERE user_id IN (%s)
		  AND (note ILIKE '%%' || $%d || '%%' OR mood = LOWER($%d))
		ORDER BY created_at DESC
		LIMIT $%d
	`, strings.Join(placeholders, ", "), len(userIDs)+1, len(userIDs)+1, len(userIDs)+2), args...)
	if err != nil {
		return nil, fmt.Errorf("search mood notes: %w", err)
	}
	defer rows.Close()

	entries := make([]MoodEntry, 0)
	for rows.Next() {
		var entry MoodEntry
		var mood string
		if err := rows.Scan(&entry.ID, &entry.UserID, &mood, &entry.Intensity, &entry.Note, &entry.Timestamp); err != nil {
			return nil, fmt.Errorf("scan mood search hit: %w", err)
		}
		entry.Mood = Mood(mood)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mood search hits: %w", err)
	}
	return entries, nil
}

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT u.id, u.display_name, u.email, u.password_hash, u.avatar_url, u.partner_id, u.created_at, u.updated_at
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`, tokenHash))
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
