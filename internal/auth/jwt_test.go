package auth

import (
	"errors"
	"testing"
	"time"
)

func TestGenerateValidate(t *testing.T) {
	s := NewJWTService("secret", 1)
	token, err := s.Generate("web-app", RoleService)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	claims, err := s.Validate(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.Subject != "web-app" || claims.Role != RoleService {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	token, _ := NewJWTService("secret", 1).Generate("web-app", RoleService)
	if _, err := NewJWTService("other", 1).Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestValidateRejectsExpired(t *testing.T) {
	s := NewJWTService("secret", 1)
	token, _ := s.Generate("web-app", RoleService)
	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := s.Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestValidateRejectsEmptySubject(t *testing.T) {
	s := NewJWTService("secret", 1)
	token, _ := s.Generate("", RoleService)
	if _, err := s.Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}
