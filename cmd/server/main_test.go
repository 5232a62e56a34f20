package main

import (
	"testing"

	"cafeledger/backend/internal/config"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "short"})
	if err == nil {
		t.Fatalf("expected weak security config to be rejected")
	}
}

func TestValidateSecurityConfigRejectsHalfStorageConfig(t *testing.T) {
	err := validateSecurityConfig(config.Config{
		AuthSecret: "0123456789abcdef0123456789abcdef",
		StorageURL: "https://project.supabase.co",
	})
	if err == nil {
		t.Fatalf("expected storage url without key to be rejected")
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef", AccessTokenTTLMinutes: 480})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}
