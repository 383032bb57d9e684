package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/ernie/trinity-link/internal/domain"
	_ "modernc.org/sqlite"
)

// formatTimestamp converts time.Time to SQLite-compatible UTC ISO8601 string
// The Z suffix ensures the Go sqlite driver parses it back as UTC
func formatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

//go:embed schema.sql
var schema string

// Store provides database access
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON; PRAGMA journal_mode = WAL; PRAGMA busy_timeout = 5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting pragmas: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// --- Link methods ---

// ReadLinks returns every persisted link
func (s *Store) ReadLinks(ctx context.Context) ([]domain.Link, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT game_id, chat_id, linked_at FROM links ORDER BY game_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []domain.Link
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, *l)
	}
	return links, rows.Err()
}

// WriteLinks replaces the persisted link set in a single transaction
func (s *Store) WriteLinks(ctx context.Context, links []domain.Link) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM links`); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO links (game_id, chat_id, linked_at) VALUES (?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, l := range links {
		if _, err := stmt.ExecContext(ctx, string(l.Game), string(l.Chat), formatTimestamp(l.LinkedAt)); err != nil {
			return fmt.Errorf("inserting link %s: %w", l.Game, err)
		}
	}

	return tx.Commit()
}

// --- Group methods ---

// AddToGroup adds identity to group. Adding an existing member is a no-op.
func (s *Store) AddToGroup(ctx context.Context, identity domain.Identity, group string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO group_members (group_name, identity, added_at) VALUES (?, ?, ?)
		ON CONFLICT(group_name, identity) DO NOTHING
	`, group, string(identity), formatTimestamp(time.Now()))
	return err
}

// RemoveFromGroup removes identity from group. Removing a non-member is a no-op.
func (s *Store) RemoveFromGroup(ctx context.Context, identity domain.Identity, group string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM group_members WHERE group_name = ? AND identity = ?
	`, group, string(identity))
	return err
}

// InGroup reports whether identity is a member of group
func (s *Store) InGroup(ctx context.Context, identity domain.Identity, group string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM group_members WHERE group_name = ? AND identity = ?
	`, group, string(identity)).Scan(&count)
	return count > 0, err
}

// GroupMembers returns the members of group
func (s *Store) GroupMembers(ctx context.Context, group string) ([]domain.Identity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT identity FROM group_members WHERE group_name = ? ORDER BY identity
	`, group)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []domain.Identity
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		members = append(members, domain.Identity(id))
	}
	return members, rows.Err()
}

// --- Permission methods ---

// PermissionGrant is a single permission granted to a game identity
type PermissionGrant struct {
	Identity   domain.Identity `json:"identity"`
	Permission string          `json:"permission"`
	GrantedAt  time.Time       `json:"granted_at"`
}

// GrantPermission grants permission to identity
func (s *Store) GrantPermission(ctx context.Context, identity domain.Identity, permission string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO permissions (identity, permission, granted_at) VALUES (?, ?, ?)
		ON CONFLICT(identity, permission) DO NOTHING
	`, string(identity), permission, formatTimestamp(time.Now()))
	return err
}

// RevokePermission removes a granted permission
func (s *Store) RevokePermission(ctx context.Context, identity domain.Identity, permission string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM permissions WHERE identity = ? AND permission = ?
	`, string(identity), permission)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("permission %s not granted to %s", permission, identity)
	}
	return nil
}

// HasPermission reports whether permission was granted to identity
func (s *Store) HasPermission(ctx context.Context, identity domain.Identity, permission string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM permissions WHERE identity = ? AND permission = ?
	`, string(identity), permission).Scan(&count)
	return count > 0, err
}

// ListPermissions returns every grant, optionally filtered to one identity
func (s *Store) ListPermissions(ctx context.Context, identity domain.Identity) ([]PermissionGrant, error) {
	query := `SELECT identity, permission, granted_at FROM permissions`
	var args []any
	if identity != "" {
		query += ` WHERE identity = ?`
		args = append(args, string(identity))
	}
	query += ` ORDER BY identity, permission`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grants []PermissionGrant
	for rows.Next() {
		var g PermissionGrant
		var id string
		if err := rows.Scan(&id, &g.Permission, &g.GrantedAt); err != nil {
			return nil, err
		}
		g.Identity = domain.Identity(id)
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

// --- User methods ---

// User represents an API operator account
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	IsAdmin      bool
	CreatedAt    time.Time
	LastLogin    *time.Time
}

// CreateUser creates a new user account
func (s *Store) CreateUser(ctx context.Context, username, passwordHash string, isAdmin bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password_hash, is_admin) VALUES (?, ?, ?)
	`, username, passwordHash, isAdmin)
	return err
}

// GetUserByUsername retrieves a user by username
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, is_admin, created_at, last_login
		FROM users WHERE username = ?
	`, username)
	return scanUser(row)
}

// DeleteUser removes a user by username
func (s *Store) DeleteUser(ctx context.Context, username string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE username = ?`, username)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("user not found: %s", username)
	}
	return nil
}

// ListUsers returns all users
func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, password_hash, is_admin, created_at, last_login
		FROM users ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

// UpdateUserLastLogin updates the last login timestamp
func (s *Store) UpdateUserLastLogin(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET last_login = ? WHERE id = ?
	`, formatTimestamp(time.Now()), userID)
	return err
}

// UpdateUserPassword replaces a user's password hash
func (s *Store) UpdateUserPassword(ctx context.Context, userID int64, newPasswordHash string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_hash = ? WHERE id = ?
	`, newPasswordHash, userID)
	return err
}

// UpdateUserAdmin updates the admin status of a user
func (s *Store) UpdateUserAdmin(ctx context.Context, userID int64, isAdmin bool) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET is_admin = ? WHERE id = ?
	`, isAdmin, userID)
	return err
}
