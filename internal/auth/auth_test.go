package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ernie/trinity-link/internal/domain"
)

func TestTokenRoundTrip(t *testing.T) {
	s := NewService("secret", time.Hour)
	token, err := s.GenerateToken(7, "ops", true)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := s.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.UserID != 7 || claims.Username != "ops" || !claims.IsAdmin {
		t.Errorf("claims = %+v", claims)
	}
}

func TestValidateTokenRejects(t *testing.T) {
	s := NewService("secret", time.Hour)

	other, _ := NewService("other", time.Hour).GenerateToken(1, "ops", true)
	expired, _ := NewService("secret", -time.Minute).GenerateToken(1, "ops", true)
	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Username: "ops", IsAdmin: true}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)

	for name, token := range map[string]string{
		"wrong secret": other,
		"expired":      expired,
		"alg none":     none,
		"garbage":      "not.a.jwt",
	} {
		if _, err := s.ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("%s: err = %v, want ErrInvalidToken", name, err)
		}
	}
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("hunter22")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !CheckPassword("hunter22", hash) {
		t.Error("correct password rejected")
	}
	if CheckPassword("hunter23", hash) {
		t.Error("wrong password accepted")
	}
}

type grantMap map[string]bool

func (g grantMap) HasPermission(ctx context.Context, id domain.Identity, perm string) (bool, error) {
	return g[string(id)+"/"+perm], nil
}

func TestCheckerDefaultsAndGrants(t *testing.T) {
	ctx := context.Background()
	c := NewChecker([]string{domain.PermAuth}, grantMap{"g2/" + domain.PermDeauth: true})

	tests := []struct {
		game domain.Identity
		perm string
		want bool
	}{
		{"g1", domain.PermAuth, true},
		{"g1", domain.PermDeauth, false},
		{"g2", domain.PermDeauth, true},
	}
	for _, tt := range tests {
		if got, _ := c.HasPermission(ctx, tt.game, tt.perm); got != tt.want {
			t.Errorf("HasPermission(%s, %s) = %v, want %v", tt.game, tt.perm, got, tt.want)
		}
	}

	all := NewChecker([]string{"*"}, nil)
	if ok, _ := all.HasPermission(ctx, "g9", domain.PermDeauth); !ok {
		t.Error("wildcard default did not grant")
	}
}
