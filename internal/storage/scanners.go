package storage

import (
	"database/sql"
	"time"

	"github.com/ernie/trinity-link/internal/domain"
)

func scanNullTime(nt sql.NullTime) *time.Time {
	if nt.Valid {
		return &nt.Time
	}
	return nil
}

// scanner is an interface satisfied by both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

// scanLink scans a links row
func scanLink(row scanner) (*domain.Link, error) {
	var game, chat string
	var linkedAt time.Time
	if err := row.Scan(&game, &chat, &linkedAt); err != nil {
		return nil, err
	}
	return &domain.Link{
		Game:     domain.Identity(game),
		Chat:     domain.Identity(chat),
		LinkedAt: linkedAt.UTC(),
	}, nil
}

// scanUser scans a user row from the database
func scanUser(row scanner) (*User, error) {
	var user User
	var lastLogin sql.NullTime
	err := row.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.IsAdmin, &user.CreatedAt, &lastLogin)
	if err != nil {
		return nil, err
	}
	user.LastLogin = scanNullTime(lastLogin)
	return &user, nil
}
