package httpapi

import (
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"tokoku/internal/domain"
)

func TestIssueAndParseToken(t *testing.T) {
	auth := NewAuthManager("unit-test-secret-key-0123456789ab", time.Hour)

	resp, err := auth.Issue(domain.Actor{UserID: "user-1", Email: "owner@example.com"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if resp.AccessToken == "" || resp.ExpiresAt == "" {
		t.Fatalf("incomplete login response: %+v", resp)
	}

	actor, err := auth.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if actor.UserID != "user-1" || actor.Email != "owner@example.com" {
		t.Fatalf("unexpected actor: %+v", actor)
	}
}

func TestParseTokenRejectsForeignSecret(t *testing.T) {
	issuer := NewAuthManager("issuer-secret-key-0123456789abcdef", time.Hour)
	verifier := NewAuthManager("verifier-secret-key-0123456789abcd", time.Hour)

	resp, err := issuer.Issue(domain.Actor{UserID: "user-1", Email: "owner@example.com"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := verifier.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected rejection of token signed with a different secret")
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	auth := NewAuthManager("unit-test-secret-key-0123456789ab", time.Hour)

	claims := ownerClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   "user-1",
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC().Add(-2 * time.Hour)),
			ExpiresAt: jwtlib.NewNumericDate(time.Now().UTC().Add(-time.Hour)),
			Issuer:    "tokoku",
		},
		Email: "owner@example.com",
	}
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(auth.secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := auth.ParseToken(token); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestParseTokenRejectsTampered(t *testing.T) {
	auth := NewAuthManager("unit-test-secret-key-0123456789ab", time.Hour)

	resp, err := auth.Issue(domain.Actor{UserID: "user-1", Email: "owner@example.com"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	tampered := resp.AccessToken[:len(resp.AccessToken)-2] + "xx"
	if _, err := auth.ParseToken(tampered); err == nil {
		t.Fatalf("expected tampered token to be rejected")
	}
	if _, err := auth.ParseToken("not.a.jwt"); err == nil {
		t.Fatalf("expected malformed token to be rejected")
	}
}

func TestParseTokenRequiresSubject(t *testing.T) {
	auth := NewAuthManager("unit-test-secret-key-0123456789ab", time.Hour)

	claims := ownerClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(time.Now().UTC().Add(time.Hour)),
			Issuer:    "tokoku",
		},
	}
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(auth.secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := auth.ParseToken(token); err == nil {
		t.Fatalf("expected token without subject to be rejected")
	}
}
