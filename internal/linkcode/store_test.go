package linkcode

import (
	"testing"
	"time"

	"github.com/ernie/trinity-link/internal/domain"
	"github.com/ernie/trinity-link/internal/schedule"
)

// fixedGenerator returns codes from a list in order
type fixedGenerator struct {
	codes []string
	calls int
}

func (g *fixedGenerator) Generate(length int, lowercase bool) string {
	code := g.codes[g.calls%len(g.codes)]
	g.calls++
	return code
}

func newTestStore(codes ...string) (*Store, *schedule.Manual, *fixedGenerator) {
	sched := schedule.NewManual(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	gen := &fixedGenerator{codes: codes}
	s := NewStore(Options{Length: 5, Lifetime: time.Minute}, gen, sched)
	return s, sched, gen
}

func TestRequestCodeIsIdempotent(t *testing.T) {
	s, sched, gen := newTestStore("ABCDE", "FGHIJ")

	first, issued, err := s.RequestCode("g1")
	if err != nil || !issued {
		t.Fatalf("first RequestCode = %q, %v, %v", first, issued, err)
	}
	second, issued, err := s.RequestCode("g1")
	if err != nil {
		t.Fatalf("second RequestCode: %v", err)
	}
	if issued {
		t.Error("second RequestCode issued a new code")
	}
	if first != second {
		t.Errorf("codes differ: %q then %q", first, second)
	}
	if gen.calls != 1 {
		t.Errorf("generator called %d times, want 1", gen.calls)
	}
	if sched.Pending() != 1 {
		t.Errorf("pending timers = %d, want 1", sched.Pending())
	}
}

func TestMatchFindsRequester(t *testing.T) {
	s, _, _ := newTestStore("ABCDE", "FGHIJ")
	s.RequestCode("g1")
	s.RequestCode("g2")

	tests := []struct {
		code string
		want domain.Identity
		ok   bool
	}{
		{"ABCDE", "g1", true},
		{"FGHIJ", "g2", true},
		{"ZZZZZ", "", false},
		{"abcde", "", false},
	}
	for _, tt := range tests {
		got, ok := s.Match(tt.code)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Match(%q) = %q, %v; want %q, %v", tt.code, got, ok, tt.want, tt.ok)
		}
	}
}

func TestExpirationRemovesEntry(t *testing.T) {
	s, sched, _ := newTestStore("ABCDE")

	var expired []domain.PendingCode
	s.OnExpire(func(pc domain.PendingCode) { expired = append(expired, pc) })

	s.RequestCode("g1")
	sched.Advance(59 * time.Second)
	if _, ok := s.Match("ABCDE"); !ok {
		t.Fatal("code expired early")
	}

	sched.Advance(2 * time.Second)
	if _, ok := s.Match("ABCDE"); ok {
		t.Error("Match succeeded after expiry")
	}
	if len(expired) != 1 || expired[0].Requester != "g1" {
		t.Errorf("expired = %+v, want one entry for g1", expired)
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}
}

func TestRemoveCancelsExpiration(t *testing.T) {
	s, sched, _ := newTestStore("ABCDE")

	calls := 0
	s.OnExpire(func(domain.PendingCode) { calls++ })

	s.RequestCode("g1")
	if !s.Remove("g1") {
		t.Fatal("Remove() = false, want true")
	}
	if s.Remove("g1") {
		t.Error("second Remove() = true, want false")
	}
	if sched.Pending() != 0 {
		t.Errorf("pending timers = %d after Remove", sched.Pending())
	}

	sched.Advance(time.Hour)
	if calls != 0 {
		t.Errorf("expiry callback ran %d times after Remove", calls)
	}
}

func TestStaleExpiryIgnoresReissuedCode(t *testing.T) {
	s, _, _ := newTestStore("ABCDE", "FGHIJ")

	s.RequestCode("g1")
	s.Remove("g1")
	code, _, _ := s.RequestCode("g1")

	// A timer armed for the first code must not remove the second one.
	s.expire("g1", "ABCDE")
	if got, ok := s.Code("g1"); !ok || got != code {
		t.Errorf("Code(g1) = %q, %v; want %q, true", got, ok, code)
	}
}

func TestRequestAfterExpiryIssuesNewCode(t *testing.T) {
	s, sched, _ := newTestStore("ABCDE", "FGHIJ")

	s.RequestCode("g1")
	sched.Advance(2 * time.Minute)

	code, issued, err := s.RequestCode("g1")
	if err != nil || !issued || code != "FGHIJ" {
		t.Errorf("RequestCode after expiry = %q, %v, %v; want FGHIJ, true, nil", code, issued, err)
	}
}

func TestSharedCodeMatchesOneRequesterAtATime(t *testing.T) {
	s, _, _ := newTestStore("SAMEE")
	s.RequestCode("g1")
	s.RequestCode("g2")

	first, ok := s.Match("SAMEE")
	if !ok || (first != "g1" && first != "g2") {
		t.Fatalf("Match = %q, %v", first, ok)
	}
	other := domain.Identity("g1")
	if first == "g1" {
		other = "g2"
	}

	s.Remove(first)
	if code, ok := s.Code(other); !ok || code != "SAMEE" {
		t.Fatalf("Code(%s) = %q, %v after removing %s", other, code, ok, first)
	}
	if got, ok := s.Match("SAMEE"); !ok || got != other {
		t.Errorf("Match after Remove = %q, %v; want %s", got, ok, other)
	}
}
