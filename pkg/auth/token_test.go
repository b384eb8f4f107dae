package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/slye-labs/slye-backend/pkg/config"
)

func testConfig() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret: "secret",
		Issuer:    "https://auth.slye.test/auth/v1",
		Audience:  "authenticated",
	}
}

func TestMintAndParseAccessToken(t *testing.T) {
	cfg := testConfig()
	now := time.Now().UTC()
	userID := uuid.New()

	token, err := MintAccessToken(cfg, now, userID, time.Hour)
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	claims, err := ParseAccessToken(cfg, token)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}

	got, err := claims.UserID()
	if err != nil {
		t.Fatalf("user id: %v", err)
	}
	if got != userID {
		t.Fatalf("expected user %s, got %s", userID, got)
	}
	if claims.Issuer != cfg.Issuer {
		t.Fatalf("unexpected issuer %q", claims.Issuer)
	}
	if claims.ID == "" {
		t.Fatal("expected jti to be set")
	}
}

func TestParseAccessTokenRejectsExpired(t *testing.T) {
	cfg := testConfig()
	token, err := MintAccessToken(cfg, time.Now().Add(-2*time.Hour), uuid.New(), time.Hour)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := ParseAccessToken(cfg, token); err == nil {
		t.Fatal("expected expired token to fail")
	}
}

func TestParseAccessTokenRejectsWrongSecret(t *testing.T) {
	cfg := testConfig()
	token, err := MintAccessToken(cfg, time.Now(), uuid.New(), time.Hour)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	cfg.JWTSecret = "other"
	if _, err := ParseAccessToken(cfg, token); err == nil {
		t.Fatal("expected signature mismatch")
	}
}

func TestParseAccessTokenChecksAudienceAndIssuer(t *testing.T) {
	cfg := testConfig()
	token, err := MintAccessToken(cfg, time.Now(), uuid.New(), time.Hour)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	wrongAud := cfg
	wrongAud.Audience = "service_role"
	if _, err := ParseAccessToken(wrongAud, token); err == nil {
		t.Fatal("expected audience mismatch")
	}

	wrongIss := cfg
	wrongIss.Issuer = "https://elsewhere"
	if _, err := ParseAccessToken(wrongIss, token); err == nil {
		t.Fatal("expected issuer mismatch")
	}

	noIss := cfg
	noIss.Issuer = ""
	if _, err := ParseAccessToken(noIss, token); err != nil {
		t.Fatalf("issuer check should be skipped when unset: %v", err)
	}
}

func TestParseAccessTokenRejectsOtherAlgorithms(t *testing.T) {
	cfg := testConfig()
	claims := AccessTokenClaims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   uuid.NewString(),
		Audience:  jwt.ClaimStrings{cfg.Audience},
		Issuer:    cfg.Issuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(cfg.JWTSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := ParseAccessToken(cfg, token); err == nil {
		t.Fatal("expected HS512 token to be rejected")
	}
}

func TestUserIDRequiresUUIDSubject(t *testing.T) {
	claims := &AccessTokenClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "not-a-uuid"}}
	if _, err := claims.UserID(); err == nil || !strings.Contains(err.Error(), "user id") {
		t.Fatalf("expected subject parse error, got %v", err)
	}
	if _, err := (&AccessTokenClaims{}).UserID(); err == nil {
		t.Fatal("expected missing subject error")
	}
}

func TestMintAccessTokenValidation(t *testing.T) {
	if _, err := MintAccessToken(config.AuthConfig{}, time.Now(), uuid.New(), time.Hour); err == nil {
		t.Fatal("expected missing secret error")
	}
	if _, err := MintAccessToken(testConfig(), time.Now(), uuid.Nil, time.Hour); err == nil {
		t.Fatal("expected missing user error")
	}
}
