package auth

import (
	"testing"
	"time"

	"coursecast/internal/apperr"
	"coursecast/internal/models"
)

func TestTokenManagerRoundTrip(t *testing.T) {
	manager, err := NewTokenManager("secret", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenManager: %v", err)
	}

	token, err := manager.Issue("user-1", models.RoleInstructor)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims, err := manager.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.UserID != "user-1" {
		t.Fatalf("expected user-1, got %q", claims.UserID)
	}
	if claims.Role != models.RoleInstructor {
		t.Fatalf("expected instructor role, got %q", claims.Role)
	}
}

func TestTokenManagerRejectsExpiredToken(t *testing.T) {
	manager, err := NewTokenManager("secret", time.Minute)
	if err != nil {
		t.Fatalf("NewTokenManager: %v", err)
	}
	issued := time.Now().Add(-time.Hour)
	manager.now = func() time.Time { return issued }
	token, err := manager.Issue("user-1", models.RoleStudent)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	manager.now = time.Now
	_, err = manager.Verify(token)
	if !apperr.Is(err, apperr.Unauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if apperr.UserMessage(err) != "token is expired" {
		t.Fatalf("expected expired message, got %q", apperr.UserMessage(err))
	}
}

func TestTokenManagerRejectsTamperedToken(t *testing.T) {
	manager, err := NewTokenManager("secret", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenManager: %v", err)
	}
	other, err := NewTokenManager("different-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenManager: %v", err)
	}
	token, err := other.Issue("user-1", models.RoleStudent)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	_, err = manager.Verify(token)
	if !apperr.Is(err, apperr.Unauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if apperr.UserMessage(err) != "invalid token" {
		t.Fatalf("expected invalid token message, got %q", apperr.UserMessage(err))
	}
}

func TestTokenManagerRejectsUnknownRole(t *testing.T) {
	manager, err := NewTokenManager("secret", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenManager: %v", err)
	}
	token, err := manager.Issue("user-1", models.Role("auditor"))
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := manager.Verify(token); !apperr.Is(err, apperr.Unauthorized) {
		t.Fatalf("expected unauthorized for unknown role, got %v", err)
	}
}

func TestNewTokenManagerRequiresSecret(t *testing.T) {
	if _, err := NewTokenManager("", time.Hour); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}
