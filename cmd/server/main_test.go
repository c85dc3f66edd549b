package main

import (
	"testing"
	"time"

	"catatwarung/backend/internal/config"
	"catatwarung/backend/internal/httpapi"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	if err := validateSecurityConfig(config.Config{AuthSecret: "short", ShopID: "warung-1"}); err == nil {
		t.Fatalf("expected short secret to be rejected")
	}
	if err := validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef", ShopID: "warung 1"}); err == nil {
		t.Fatalf("expected shop id with spaces to be rejected")
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef", ShopID: "warung-1"})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

func TestPrintTokenUsage(t *testing.T) {
	auth := httpapi.NewAuthManager("0123456789abcdef0123456789abcdef", time.Hour, "warung-1")
	if err := printToken(auth, "warung-1", nil); err == nil {
		t.Fatalf("expected usage error without owner")
	}
	if err := printToken(auth, "warung-1", []string{"sari"}); err != nil {
		t.Fatalf("expected token to print, got %v", err)
	}
}
