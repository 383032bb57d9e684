package domain

import "errors"

var (
	ErrNoPermission      = errors.New("no permission")
	ErrInvalidCode       = errors.New("malformed code")
	ErrRateLimited       = errors.New("too many code submissions")
	ErrCodeNotFound      = errors.New("code not found")
	ErrNotLinked         = errors.New("identity not linked")
	ErrAlreadyLinked     = errors.New("identity already linked")
	ErrChatAlreadyLinked = errors.New("chat identity already linked to another game identity")
	ErrVetoed            = errors.New("vetoed by hook")
	ErrRoleNotFound      = errors.New("role not found")
	ErrPersistence       = errors.New("persisting links")
)

// ErrorKind groups errors by how callers must react to them
type ErrorKind string

const (
	KindNone        ErrorKind = ""
	KindValidation  ErrorKind = "validation"
	KindNotFound    ErrorKind = "not_found"
	KindConflict    ErrorKind = "conflict"
	KindExternal    ErrorKind = "external"
	KindPersistence ErrorKind = "persistence"
)

// Kind classifies err. Unknown errors are treated as external failures.
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrPersistence):
		return KindPersistence
	case errors.Is(err, ErrNoPermission), errors.Is(err, ErrInvalidCode), errors.Is(err, ErrRateLimited):
		return KindValidation
	case errors.Is(err, ErrCodeNotFound), errors.Is(err, ErrNotLinked):
		return KindNotFound
	case errors.Is(err, ErrAlreadyLinked), errors.Is(err, ErrChatAlreadyLinked), errors.Is(err, ErrVetoed):
		return KindConflict
	default:
		return KindExternal
	}
}
