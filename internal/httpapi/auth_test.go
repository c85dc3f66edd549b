package httpapi

import (
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

func TestAuthManagerRoundTrip(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, "warung-1")

	token, expiresAt, err := manager.Sign("sari", "warung-1")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if !expiresAt.After(time.Now()) {
		t.Fatalf("expected expiry in the future, got %v", expiresAt)
	}

	actor, err := manager.ParseToken(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if actor.Owner != "sari" || actor.ShopID != "warung-1" {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestAuthManagerRejectsOtherShop(t *testing.T) {
	issuer := NewAuthManager("test-secret", time.Hour, "")
	token, _, err := issuer.Sign("sari", "warung-2")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	manager := NewAuthManager("test-secret", time.Hour, "warung-1")
	if _, err := manager.ParseToken(token); err == nil {
		t.Fatalf("expected token for another shop to be rejected")
	}
}

func TestAuthManagerRejectsBadTokens(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, "warung-1")

	other := NewAuthManager("another-secret", time.Hour, "warung-1")
	forged, _, err := other.Sign("sari", "warung-1")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := manager.ParseToken(forged); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}

	expired := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, ownerClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   "sari",
			Issuer:    tokenIssuer,
			ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(-time.Minute)),
		},
		Shop: "warung-1",
	})
	signed, err := expired.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign expired: %v", err)
	}
	if _, err := manager.ParseToken(signed); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}

	if _, _, err := manager.Sign("  ", "warung-1"); err == nil {
		t.Fatalf("expected empty owner to be refused")
	}
}
