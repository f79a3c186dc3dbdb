package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/circlesplus/backend/internal/entity"
	"github.com/circlesplus/backend/internal/modules/user/dto"
	"github.com/circlesplus/backend/internal/modules/user/repository"
	"github.com/circlesplus/backend/pkg/apperror"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newAuthService(t *testing.T) AuthService {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.AutoMigrate(&entity.User{}, &entity.Profile{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	return NewAuthService(repository.NewUserRepository(db))
}

func register(t *testing.T, svc AuthService, username string) *dto.AuthResponse {
	t.Helper()

	resp, err := svc.Register(context.Background(), dto.RegisterInput{
		Username:    username,
		Email:       username + "@example.com",
		Password:    "hunter2hunter2",
		DisplayName: username,
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return resp
}

func TestRegisterReturnsTokenAndProfile(t *testing.T) {
	svc := newAuthService(t)

	resp := register(t, svc, "alice")

	if resp.AccessToken == "" {
		t.Error("register should return an access token")
	}
	if resp.TokenType != "Bearer" {
		t.Errorf("token type = %q, want Bearer", resp.TokenType)
	}
	if resp.User == nil || resp.User.Username != "alice" {
		t.Errorf("user = %v, want alice", resp.User)
	}
	if resp.User.PasswordHash != "" {
		t.Error("password hash must not leak in the response")
	}
	if resp.Profile == nil || resp.Profile.DisplayName != "alice" {
		t.Errorf("profile = %v, want display name alice", resp.Profile)
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	svc := newAuthService(t)
	ctx := context.Background()

	register(t, svc, "alice")

	_, err := svc.Register(ctx, dto.RegisterInput{
		Username:    "alice",
		Email:       "other@example.com",
		Password:    "hunter2hunter2",
		DisplayName: "Alice Two",
	})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("duplicate username error = %v, want conflict", err)
	}

	_, err = svc.Register(ctx, dto.RegisterInput{
		Username:    "alice2",
		Email:       "alice@example.com",
		Password:    "hunter2hunter2",
		DisplayName: "Alice Two",
	})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("duplicate email error = %v, want conflict", err)
	}
}

func TestLogin(t *testing.T) {
	svc := newAuthService(t)
	ctx := context.Background()

	register(t, svc, "alice")

	resp, err := svc.Login(ctx, dto.LoginInput{
		Email:    "alice@example.com",
		Password: "hunter2hunter2",
	})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if resp.AccessToken == "" {
		t.Error("login should return an access token")
	}

	if _, err := svc.Login(ctx, dto.LoginInput{
		Email:    "alice@example.com",
		Password: "wrong",
	}); err == nil {
		t.Error("wrong password should fail")
	}

	// Unknown email fails the same way, not with a not-found leak.
	if _, err := svc.Login(ctx, dto.LoginInput{
		Email:    "nobody@example.com",
		Password: "hunter2hunter2",
	}); err == nil || errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("unknown email error = %v, want generic invalid credentials", err)
	}
}

func TestUpdatePassword(t *testing.T) {
	svc := newAuthService(t)
	ctx := context.Background()

	resp := register(t, svc, "alice")
	userID := resp.User.ID

	err := svc.UpdatePassword(ctx, userID, dto.UpdatePasswordInput{
		CurrentPassword: "wrong",
		NewPassword:     "newpassword123",
	})
	if !errors.Is(err, apperror.ErrBadRequest) {
		t.Errorf("wrong current password error = %v, want bad request", err)
	}

	if err := svc.UpdatePassword(ctx, userID, dto.UpdatePasswordInput{
		CurrentPassword: "hunter2hunter2",
		NewPassword:     "newpassword123",
	}); err != nil {
		t.Fatalf("UpdatePassword: %v", err)
	}

	if _, err := svc.Login(ctx, dto.LoginInput{
		Email:    "alice@example.com",
		Password: "newpassword123",
	}); err != nil {
		t.Errorf("login with new password failed: %v", err)
	}
}
