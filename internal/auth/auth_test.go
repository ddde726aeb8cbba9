package auth

import (
	"strings"
	"testing"
	"time"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", 0, 0)
	token, err := issuer.IssueAccess(User{ID: "user-123", Roles: []string{"user", "admin"}})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	user, err := issuer.VerifyAccess(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if user.ID != "user-123" {
		t.Fatalf("expected user-123, got %s", user.ID)
	}
	if len(user.Roles) != 2 || user.Roles[1] != "admin" {
		t.Fatalf("unexpected roles: %v", user.Roles)
	}
}

func TestVerifyAccessWrongSecret(t *testing.T) {
	token, err := NewTokenIssuer("right-secret", 0, 0).IssueAccess(User{ID: "user-123"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := NewTokenIssuer("wrong-secret", 0, 0).VerifyAccess(token); err == nil {
		t.Fatal("expected verify to fail with wrong secret")
	}
}

func TestVerifyAccessGarbage(t *testing.T) {
	if _, err := NewTokenIssuer("secret", 0, 0).VerifyAccess("not.a.jwt"); err == nil {
		t.Fatal("expected verify to fail on garbage input")
	}
}

func TestVerifyAccessExpired(t *testing.T) {
	issuer := &TokenIssuer{secret: []byte("secret"), accessTTL: -time.Minute}
	token, err := issuer.IssueAccess(User{ID: "user-123"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := issuer.VerifyAccess(token); err == nil {
		t.Fatal("expected verify to reject an expired token")
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("s3cret-password")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash == "s3cret-password" {
		t.Fatal("hash must not equal the plaintext")
	}
	if !CheckPassword("s3cret-password", hash) {
		t.Fatal("expected matching password to verify")
	}
	if CheckPassword("wrong-password", hash) {
		t.Fatal("expected non-matching password to fail")
	}
}

func TestRefreshTokenIsOpaque(t *testing.T) {
	issuer := NewTokenIssuer("secret", 0, 0)
	a, aExp := issuer.NewRefreshToken()
	b, _ := issuer.NewRefreshToken()
	if a == b {
		t.Fatal("refresh tokens must be unique")
	}
	if strings.Count(a, "-") != 4 {
		t.Fatalf("expected UUID form, got %s", a)
	}
	// Default refresh TTL is a week out.
	if aExp.Before(time.Now().Add(6 * 24 * time.Hour)) {
		t.Fatalf("expiry too near: %v", aExp)
	}
}

func TestUserRoles(t *testing.T) {
	admin := &User{ID: "1", Roles: []string{"user", "admin"}}
	if !admin.IsAdmin() {
		t.Fatal("expected admin")
	}
	plain := &User{ID: "2", Roles: []string{"user"}}
	if plain.IsAdmin() {
		t.Fatal("expected non-admin")
	}
	if !plain.HasRole("user") {
		t.Fatal("expected user role")
	}
}
