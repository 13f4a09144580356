package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newTestIssuer(t *testing.T) *TokenIssuer {
	t.Helper()
	issuer, err := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("super-secret"),
		ClientSecret:  []byte("client-secret"),
		Issuer:        "orggraph-auth",
		Audience:      "orggraph-api",
		TokenTTL:      30 * time.Minute,
	})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	return issuer
}

func TestTokenIssuerIssuesServiceTokens(t *testing.T) {
	issuer := newTestIssuer(t)

	tokenString, expiresIn, err := issuer.IssueServiceToken(context.Background(), "directory-sync", "client-secret")
	if err != nil {
		t.Fatalf("expected successful issuance: %v", err)
	}
	if expiresIn <= 0 {
		t.Fatalf("expected positive expiry seconds, got %d", expiresIn)
	}

	parser := jwt.Parser{}
	claims := &jwt.RegisteredClaims{}
	_, err = parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte("super-secret"), nil
	})
	if err != nil {
		t.Fatalf("failed to parse generated token: %v", err)
	}

	if claims.Subject != "directory-sync" {
		t.Fatalf("unexpected subject %s", claims.Subject)
	}
	if claims.Issuer != "orggraph-auth" {
		t.Fatalf("unexpected issuer %s", claims.Issuer)
	}
	if len(claims.Audience) == 0 || claims.Audience[0] != "orggraph-api" {
		t.Fatalf("unexpected audience %#v", claims.Audience)
	}
}

func TestTokenIssuerRejectsWrongClientSecret(t *testing.T) {
	issuer := newTestIssuer(t)

	_, _, err := issuer.IssueServiceToken(context.Background(), "directory-sync", "guess")
	if !errors.Is(err, ErrInvalidClientSecret) {
		t.Fatalf("expected ErrInvalidClientSecret, got %v", err)
	}
}

func TestTokenIssuerRejectsBlankClientID(t *testing.T) {
	issuer := newTestIssuer(t)

	_, _, err := issuer.IssueServiceToken(context.Background(), "  ", "client-secret")
	if err == nil {
		t.Fatalf("expected error for blank client id")
	}
}

func TestTokenIssuerValidatesIssuedTokens(t *testing.T) {
	issuer := newTestIssuer(t)

	tokenString, _, err := issuer.IssueServiceToken(context.Background(), "report-runner", "client-secret")
	if err != nil {
		t.Fatalf("unexpected error issuing token: %v", err)
	}

	subject, err := issuer.ValidateToken(tokenString)
	if err != nil {
		t.Fatalf("expected validation success: %v", err)
	}
	if subject != "report-runner" {
		t.Fatalf("unexpected subject %s", subject)
	}

	if _, err := issuer.ValidateToken("invalid.token"); err == nil {
		t.Fatalf("expected validation to fail for malformed token")
	}
}

func TestTokenIssuerRejectsExpiredTokens(t *testing.T) {
	issued := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	current := issued
	issuer, err := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("super-secret"),
		ClientSecret:  []byte("client-secret"),
		Issuer:        "orggraph-auth",
		Audience:      "orggraph-api",
		TokenTTL:      time.Minute,
		Clock:         func() time.Time { return current },
	})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}

	tokenString, _, err := issuer.IssueServiceToken(context.Background(), "directory-sync", "client-secret")
	if err != nil {
		t.Fatalf("unexpected error issuing token: %v", err)
	}

	current = issued.Add(2 * time.Minute)
	if _, err := issuer.ValidateToken(tokenString); err == nil {
		t.Fatalf("expected validation to fail after expiry")
	}
}

func TestNewTokenIssuerValidatesConfiguration(t *testing.T) {
	base := TokenIssuerConfig{
		SigningSecret: []byte("secret"),
		ClientSecret:  []byte("client-secret"),
		Issuer:        "orggraph-auth",
		Audience:      "orggraph-api",
		TokenTTL:      5 * time.Minute,
	}

	missingSigning := base
	missingSigning.SigningSecret = nil
	if _, err := NewTokenIssuer(missingSigning); err == nil {
		t.Fatalf("expected error for missing signing secret")
	}

	missingClient := base
	missingClient.ClientSecret = nil
	if _, err := NewTokenIssuer(missingClient); err == nil {
		t.Fatalf("expected error for missing client secret")
	}

	missingIssuer := base
	missingIssuer.Issuer = " "
	if _, err := NewTokenIssuer(missingIssuer); err == nil {
		t.Fatalf("expected error for missing issuer")
	}

	missingAudience := base
	missingAudience.Audience = ""
	if _, err := NewTokenIssuer(missingAudience); err == nil {
		t.Fatalf("expected error for missing audience")
	}

	negativeTTL := base
	negativeTTL.TokenTTL = -time.Minute
	if _, err := NewTokenIssuer(negativeTTL); err == nil {
		t.Fatalf("expected error for negative ttl")
	}
}
