package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/playperu/partyquest/internal/quest"
)

type AdminSession struct {
	AdminID string
	Email   string
}

// EnsureAdmin creates the admin account if no admin with that email exists.
func (s *Store) EnsureAdmin(ctx context.Context, email, password string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil
	}

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM admins WHERE email = ?`, email).Scan(&n); err != nil {
		return classify("check admin", err)
	}
	if n > 0 {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO admins (id, email, password_hash) VALUES (?, ?, ?)`, newID(), email, string(hash))
	return classify("create admin", err)
}

func (s *Store) AdminByEmail(ctx context.Context, email string) (adminID, passwordHash string, err error) {
	err = s.db.QueryRowContext(ctx, `SELECT id, password_hash FROM admins WHERE email = ?`, email).Scan(&adminID, &passwordHash)
	return adminID, passwordHash, classify("find admin", err)
}

func (s *Store) CreateAdminSession(ctx context.Context, adminID string) (string, error) {
	id := newID()
	_, err := s.db.ExecContext(ctx, `INSERT INTO admin_sessions (id, admin_id, created_at) VALUES (?, ?, ?)`, id, adminID, formatTime(s.now()))
	if err != nil {
		return "", classify("create admin session", err)
	}
	return id, nil
}

func (s *Store) DeleteAdminSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM admin_sessions WHERE id = ?`, sessionID)
	return classify("delete admin session", err)
}

func (s *Store) AdminFromSession(ctx context.Context, sessionID string) (AdminSession, error) {
	var sess AdminSession
	err := s.db.QueryRowContext(ctx, `
		SELECT a.id, a.email
		FROM admin_sessions s
		JOIN admins a ON a.id = s.admin_id
		WHERE s.id = ?
	`, sessionID).Scan(&sess.AdminID, &sess.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return AdminSession{}, fmt.Errorf("admin session: %w", quest.ErrNotFound)
	}
	return sess, classify("admin session", err)
}
