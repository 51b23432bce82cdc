package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestTokenRoundTrip(t *testing.T) {
	service := NewAuthService(nil, "test-secret")

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  int64(42),
		"username": "alice",
		"exp":      time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	userID, err := service.GetUserFromToken(signed)
	if err != nil {
		t.Fatalf("failed to parse token: %v", err)
	}
	if userID != 42 {
		t.Errorf("expected user id 42, got %d", userID)
	}
}

func TestGetUserFromToken_Invalid(t *testing.T) {
	service := NewAuthService(nil, "test-secret")

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": int64(42),
		"exp":     time.Now().Add(-time.Hour).Unix(),
	})
	expiredSigned, err := expired.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	wrongKey := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": int64(42),
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	wrongKeySigned, err := wrongKey.SignedString([]byte("other-secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	missingClaim := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	missingClaimSigned, err := missingClaim.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{name: "Garbage", token: "not-a-token"},
		{name: "Empty", token: ""},
		{name: "Expired", token: expiredSigned},
		{name: "WrongKey", token: wrongKeySigned},
		{name: "MissingUserID", token: missingClaimSigned},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := service.GetUserFromToken(tt.token); err == nil {
				t.Error("expected error for invalid token")
			}
		})
	}
}

func TestRegister_Validation(t *testing.T) {
	service := NewAuthService(nil, "test-secret")
	ctx := context.Background()

	long := make([]byte, 101)
	for i := range long {
		long[i] = 'x'
	}

	tests := []struct {
		name     string
		username string
		password string
	}{
		{name: "EmptyUsername", username: "", password: "password"},
		{name: "EmptyPassword", username: "alice", password: ""},
		{name: "UsernameTooLong", username: string(long[:51]), password: "password"},
		{name: "PasswordTooLong", username: "alice", password: string(long)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := service.Register(ctx, tt.username, tt.password); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
