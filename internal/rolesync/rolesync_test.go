package rolesync

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/ernie/trinity-link/internal/domain"
	"github.com/ernie/trinity-link/internal/worker"
)

type fakePlatform struct {
	roles map[string]string

	mu      sync.Mutex
	added   []string
	removed []string
	addErr  map[string]error
}

func (f *fakePlatform) ResolveRole(ctx context.Context, name string) (string, error) {
	if id, ok := f.roles[name]; ok {
		return id, nil
	}
	return "", fmt.Errorf("%w: %s", domain.ErrRoleNotFound, name)
}

func (f *fakePlatform) AddRole(ctx context.Context, chat domain.Identity, roleID string) error {
	if err := f.addErr[roleID]; err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, string(chat)+":"+roleID)
	return nil
}

func (f *fakePlatform) RemoveRole(ctx context.Context, chat domain.Identity, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, string(chat)+":"+roleID)
	return nil
}

func waitReport(t *testing.T, ch <-chan Report) Report {
	t.Helper()
	select {
	case r, ok := <-ch:
		if !ok {
			t.Fatal("report channel closed without a report")
		}
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for report")
	}
	return Report{}
}

func newTestPool(t *testing.T) *worker.Pool {
	p := worker.NewPool("roles", 2, 8)
	t.Cleanup(func() { p.Close(context.Background()) })
	return p
}

func TestApplyGrantsEveryRole(t *testing.T) {
	platform := &fakePlatform{roles: map[string]string{"Authenticated": "r1", "Verified": "r2"}}
	s := New(platform, []string{"Authenticated", "Verified"}, newTestPool(t), nil)

	report := waitReport(t, s.Apply("c1", domain.RoleGrant))
	if !report.OK() {
		t.Fatalf("errors: %v", report.Errors)
	}
	if want := []string{"c1:r1", "c1:r2"}; !reflect.DeepEqual(platform.added, want) {
		t.Errorf("added = %v, want %v", platform.added, want)
	}
}

func TestApplyContinuesPastUnresolvedRole(t *testing.T) {
	platform := &fakePlatform{roles: map[string]string{"Authenticated": "r1", "Verified": "r2"}}
	s := New(platform, []string{"Authenticated", "Missing", "Verified"}, newTestPool(t), nil)

	report := waitReport(t, s.Apply("c1", domain.RoleGrant))

	if len(report.Errors) != 1 || report.Errors[0].Role != "Missing" {
		t.Fatalf("errors = %v, want one for Missing", report.Errors)
	}
	if !errors.Is(report.Errors[0], domain.ErrRoleNotFound) {
		t.Errorf("error %v does not wrap ErrRoleNotFound", report.Errors[0])
	}
	if want := []string{"Authenticated", "Verified"}; !reflect.DeepEqual(report.Applied, want) {
		t.Errorf("applied = %v, want %v", report.Applied, want)
	}
	if want := []string{"c1:r1", "c1:r2"}; !reflect.DeepEqual(platform.added, want) {
		t.Errorf("added = %v, want %v", platform.added, want)
	}
}

func TestApplyReportsPlatformFailure(t *testing.T) {
	platform := &fakePlatform{
		roles:  map[string]string{"A": "r1", "B": "r2"},
		addErr: map[string]error{"r1": errors.New("503")},
	}
	s := New(platform, []string{"A", "B"}, newTestPool(t), nil)

	report := waitReport(t, s.Apply("c1", domain.RoleGrant))
	if len(report.Errors) != 1 || report.Errors[0].Role != "A" {
		t.Fatalf("errors = %v", report.Errors)
	}
	if !reflect.DeepEqual(report.Applied, []string{"B"}) {
		t.Errorf("applied = %v", report.Applied)
	}
}

func TestApplyRevoke(t *testing.T) {
	platform := &fakePlatform{roles: map[string]string{"A": "r1"}}
	s := New(platform, []string{"A"}, newTestPool(t), nil)

	report := waitReport(t, s.Apply("c1", domain.RoleRevoke))
	if !report.OK() || report.Mode != domain.RoleRevoke {
		t.Fatalf("report = %+v", report)
	}
	if !reflect.DeepEqual(platform.removed, []string{"c1:r1"}) {
		t.Errorf("removed = %v", platform.removed)
	}
}

func TestApplyWithNoRoles(t *testing.T) {
	s := New(&fakePlatform{}, nil, newTestPool(t), nil)
	report := waitReport(t, s.Apply("c1", domain.RoleGrant))
	if !report.OK() || len(report.Applied) != 0 {
		t.Errorf("report = %+v", report)
	}
}

func TestApplyOnClosedPoolReportsEveryRole(t *testing.T) {
	pool := worker.NewPool("roles", 1, 1)
	pool.Close(context.Background())
	s := New(&fakePlatform{}, []string{"A", "B"}, pool, nil)

	report := waitReport(t, s.Apply("c1", domain.RoleGrant))
	if len(report.Errors) != 2 {
		t.Fatalf("errors = %v", report.Errors)
	}
	for _, e := range report.Errors {
		if !errors.Is(e, ErrQueueFull) {
			t.Errorf("error %v is not ErrQueueFull", e)
		}
	}
}
