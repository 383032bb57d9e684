package rolesync

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/ernie/trinity-link/internal/domain"
	"github.com/ernie/trinity-link/internal/metrics"
	"github.com/ernie/trinity-link/internal/worker"
)

// ErrQueueFull is reported when the worker pool could not accept the request
var ErrQueueFull = errors.New("role sync queue full")

// Platform is the subset of the bot platform needed to manage roles
type Platform interface {
	// ResolveRole returns the platform role ID for a configured role name,
	// or an error wrapping domain.ErrRoleNotFound.
	ResolveRole(ctx context.Context, name string) (string, error)
	AddRole(ctx context.Context, chat domain.Identity, roleID string) error
	RemoveRole(ctx context.Context, chat domain.Identity, roleID string) error
}

// RoleError is the failure for a single configured role
type RoleError struct {
	Role string
	Err  error
}

func (e RoleError) Error() string {
	return fmt.Sprintf("role %q: %v", e.Role, e.Err)
}

func (e RoleError) Unwrap() error {
	return e.Err
}

// Report is the outcome of one Apply call. Partial success is normal.
type Report struct {
	Chat    domain.Identity
	Mode    domain.RoleMode
	Applied []string
	Errors  []RoleError
}

// OK reports whether every role was applied
func (r Report) OK() bool {
	return len(r.Errors) == 0
}

// Synchronizer grants or revokes the configured roles for a chat identity
type Synchronizer struct {
	platform Platform
	roles    []string
	pool     *worker.Pool
	metrics  metrics.Recorder
}

// New creates a Synchronizer running on pool
func New(platform Platform, roles []string, pool *worker.Pool, rec metrics.Recorder) *Synchronizer {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Synchronizer{
		platform: platform,
		roles:    append([]string(nil), roles...),
		pool:     pool,
		metrics:  rec,
	}
}

// Apply grants or revokes every configured role for chat in the background.
// The returned channel yields exactly one Report and is then closed.
func (s *Synchronizer) Apply(chat domain.Identity, mode domain.RoleMode) <-chan Report {
	out := make(chan Report, 1)
	if len(s.roles) == 0 {
		out <- Report{Chat: chat, Mode: mode}
		close(out)
		return out
	}

	ok := s.pool.Submit(func(ctx context.Context) {
		out <- s.apply(ctx, chat, mode)
		close(out)
	})
	if !ok {
		report := Report{Chat: chat, Mode: mode}
		for _, role := range s.roles {
			report.Errors = append(report.Errors, RoleError{Role: role, Err: ErrQueueFull})
		}
		log.Printf("Role %s for %s skipped: %v", mode, chat, ErrQueueFull)
		out <- report
		close(out)
	}
	return out
}

func (s *Synchronizer) apply(ctx context.Context, chat domain.Identity, mode domain.RoleMode) Report {
	report := Report{Chat: chat, Mode: mode}

	for _, role := range s.roles {
		roleID, err := s.platform.ResolveRole(ctx, role)
		if err != nil {
			log.Printf("Unable to find role %q: %v", role, err)
			report.Errors = append(report.Errors, RoleError{Role: role, Err: err})
			s.metrics.RecordRoleOperation(mode.String(), false)
			continue
		}

		if mode == domain.RoleGrant {
			err = s.platform.AddRole(ctx, chat, roleID)
		} else {
			err = s.platform.RemoveRole(ctx, chat, roleID)
		}
		if err != nil {
			log.Printf("Error applying role %s %q to %s: %v", mode, role, chat, err)
			report.Errors = append(report.Errors, RoleError{Role: role, Err: err})
			s.metrics.RecordRoleOperation(mode.String(), false)
			continue
		}

		report.Applied = append(report.Applied, role)
		s.metrics.RecordRoleOperation(mode.String(), true)
	}
	return report
}
