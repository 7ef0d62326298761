package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Session is a saved login for one profile.
type Session struct {
	Profile   string    `json:"profile"`
	Token     string    `json:"-"`
	UserID    string    `json:"user_id,omitempty"`
	Username  string    `json:"username,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SaveSession stores or replaces the session for a profile.
func (s *Store) SaveSession(ctx context.Context, session Session) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	profile := strings.TrimSpace(session.Profile)
	if profile == "" {
		return errors.New("profile is required")
	}
	if strings.TrimSpace(session.Token) == "" {
		return errors.New("token is required")
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO sessions (profile, token, user_id, username, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(profile) DO UPDATE SET
			token = excluded.token,
			user_id = excluded.user_id,
			username = excluded.username,
			updated_at = excluded.updated_at
	`, profile, session.Token, session.UserID, session.Username, time.Now().UTC().Unix())
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// GetSession returns the session for a profile, or nil when none is saved.
func (s *Store) GetSession(ctx context.Context, profile string) (*Session, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	profile = strings.TrimSpace(profile)
	if profile == "" {
		return nil, errors.New("profile is required")
	}

	var (
		session   Session
		updatedAt int64
	)
	row := s.DB.QueryRowContext(ctx, `
		SELECT profile, token, user_id, username, updated_at
		FROM sessions
		WHERE profile = ?
	`, profile)
	if err := row.Scan(&session.Profile, &session.Token, &session.UserID, &session.Username, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch session: %w", err)
	}
	session.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &session, nil
}

// DeleteSession removes the session for a profile.
func (s *Store) DeleteSession(ctx context.Context, profile string) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	_, err := s.DB.ExecContext(ctx, `DELETE FROM sessions WHERE profile = ?`, strings.TrimSpace(profile))
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
