package identity

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sandeepkv93/remindd/internal/apperr"
)

func TestNormalizeFoldsCaseAndSpace(t *testing.T) {
	if got := Normalize("  Alice@Example.COM "); got != "alice@example.com" {
		t.Fatalf("unexpected normalized identity: %q", got)
	}
}

func TestSessionWatchSeesCurrentThenChanges(t *testing.T) {
	s := NewSession("Alice@example.com")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := s.Watch(ctx)
	if got := waitIdentity(t, ch); got != "alice@example.com" {
		t.Fatalf("initial identity = %q", got)
	}
	s.SignIn("alice@example.com") // unchanged, no event
	s.SignOut()
	if got := waitIdentity(t, ch); got != "" {
		t.Fatalf("expected sign-out event, got %q", got)
	}
	s.SignIn("bob@example.com")
	if got := waitIdentity(t, ch); got != "bob@example.com" {
		t.Fatalf("expected bob, got %q", got)
	}
	if s.Current() != "bob@example.com" {
		t.Fatalf("current = %q", s.Current())
	}
}

func TestTokenVerifierRoundTrip(t *testing.T) {
	v := NewTokenVerifier("secret", "remindd")
	token, err := v.Issue("Carol@Example.com", jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	s := NewSession("")
	id, err := s.SignInWithToken(v, token)
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if id != "carol@example.com" || s.Current() != id {
		t.Fatalf("unexpected identity %q / %q", id, s.Current())
	}
}

func TestTokenVerifierRejectsBadTokens(t *testing.T) {
	v := NewTokenVerifier("secret", "remindd")
	other := NewTokenVerifier("other-secret", "remindd")
	forged, err := other.Issue("eve@example.com", jwt.RegisteredClaims{})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := v.Verify(forged); apperr.KindOf(err) != apperr.KindPermission {
		t.Fatalf("expected permission error for wrong key, got %v", err)
	}

	expired, err := v.Issue("eve@example.com", jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := v.Verify(expired); apperr.KindOf(err) != apperr.KindPermission {
		t.Fatalf("expected permission error for expired token, got %v", err)
	}

	noEmail, err := v.Issue("", jwt.RegisteredClaims{})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := v.Verify(noEmail); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation error for missing email, got %v", err)
	}
}

func waitIdentity(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case id := <-ch:
		return id
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for identity")
		return ""
	}
}
