package auth

import (
	"testing"

	"github.com/stream-sync/recsync/internal/models"
)

func TestGenerateAndValidate(t *testing.T) {
	svc := NewJWTService("secret", 1)
	token, err := svc.Generate("alice", models.RoleAdmin)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	claims, err := svc.Validate(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.Operator != "alice" || claims.Role != models.RoleAdmin {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestValidateRejectsForeignSecret(t *testing.T) {
	token, err := NewJWTService("one", 1).Generate("alice", models.RoleViewer)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := NewJWTService("two", 1).Validate(token); err != ErrInvalidToken {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestGenerateRejectsUnknownRole(t *testing.T) {
	if _, err := NewJWTService("secret", 1).Generate("alice", "owner"); err != ErrInvalidRole {
		t.Fatalf("err = %v, want ErrInvalidRole", err)
	}
}

func TestExpiredToken(t *testing.T) {
	svc := NewJWTService("secret", -1)
	token, err := svc.Generate("alice", models.RoleAdmin)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := svc.Validate(token); err == nil {
		t.Fatal("expected expired token to fail")
	}
}
