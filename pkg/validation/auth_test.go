package validation

import (
	"strings"
	"testing"
)

func TestAuthRequestValidator_ValidateUsername(t *testing.T) {
	validator := NewAuthRequestValidator()

	tests := []struct {
		name     string
		username string
		wantErr  bool
		errMsg   string
	}{
		{
			name:     "valid username",
			username: "testuser",
			wantErr:  false,
		},
		{
			name:     "valid username with numbers",
			username: "user123",
			wantErr:  false,
		},
		{
			name:     "valid username with underscore",
			username: "test_user",
			wantErr:  false,
		},
		{
			name:     "valid username with hyphen",
			username: "test-user",
			wantErr:  false,
		},
		{
			name:     "minimum length username",
			username: "abc",
			wantErr:  false,
		},
		{
			name:     "empty username",
			username: "",
			wantErr:  true,
			errMsg:   "username cannot be empty",
		},
		{
			name:     "username too short",
			username: "ab",
			wantErr:  true,
			errMsg:   "username must be at least 3 characters long",
		},
		{
			name:     "username too long",
			username: "a123456789012345678901234567890123456789012345678901",
			wantErr:  true,
			errMsg:   "username must be at most 50 characters long",
		},
		{
			name:     "username with spaces",
			username: "test user",
			wantErr:  true,
			errMsg:   "username can only contain letters, numbers, underscores, and hyphens",
		},
		{
			name:     "username with special characters",
			username: "test@user",
			wantErr:  true,
			errMsg:   "username can only contain letters, numbers, underscores, and hyphens",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.ValidateUsername(tt.username)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateUsername() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr && err != nil && tt.errMsg != "" {
				if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("ValidateUsername() error message = %v, want to contain %v", err.Error(), tt.errMsg)
				}
			}
		})
	}
}

func TestAuthRequestValidator_ValidatePassword(t *testing.T) {
	validator := NewAuthRequestValidator()

	tests := []struct {
		name     string
		password string
		wantErr  bool
		errMsg   string
	}{
		{
			name:     "valid password",
			password: "password123",
			wantErr:  false,
		},
		{
			name:     "minimum length password",
			password: "123456",
			wantErr:  false,
		},
		{
			name:     "password with special characters",
			password: "P@ssw0rd!",
			wantErr:  false,
		},
		{
			name:     "empty password",
			password: "",
			wantErr:  true,
			errMsg:   "password cannot be empty",
		},
		{
			name:     "password too short",
			password: "12345",
			wantErr:  true,
			errMsg:   "password must be at least 6 characters long",
		},
		{
			name:     "password too long",
			password: string(make([]byte, 129)),
			wantErr:  true,
			errMsg:   "password must be at most 128 characters long",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.ValidatePassword(tt.password)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePassword() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr && err != nil && tt.errMsg != "" {
				if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("ValidatePassword() error message = %v, want to contain %v", err.Error(), tt.errMsg)
				}
			}
		})
	}
}

func TestAuthRequestValidator_ValidateLoginRequest(t *testing.T) {
	validator := NewAuthRequestValidator()

	tests := []struct {
		name     string
		username string
		password string
		wantErr  bool
		errMsg   string
	}{
		{
			name:     "valid login request",
			username: "testuser",
			password: "password123",
			wantErr:  false,
		},
		{
			name:     "empty username",
			username: "",
			password: "password123",
			wantErr:  true,
			errMsg:   "username cannot be empty",
		},
		{
			name:     "empty password",
			username: "testuser",
			password: "",
			wantErr:  true,
			errMsg:   "password cannot be empty",
		},
		{
			name:     "both empty",
			username: "",
			password: "",
			wantErr:  true,
			errMsg:   "username cannot be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.ValidateLoginRequest(tt.username, tt.password)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateLoginRequest() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr && err != nil && tt.errMsg != "" {
				if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("ValidateLoginRequest() error message = %v, want to contain %v", err.Error(), tt.errMsg)
				}
			}
		})
	}
}

func TestAuthRequestValidator_ValidateRegisterRequest(t *testing.T) {
	validator := NewAuthRequestValidator()

	tests := []struct {
		name     string
		username string
		password string
		wantErr  bool
		errMsg   string
	}{
		{
			name:     "valid registration request",
			username: "testuser",
			password: "password123",
			wantErr:  false,
		},
		{
			name:     "invalid username",
			username: "ab",
			password: "password123",
			wantErr:  true,
			errMsg:   "username must be at least 3 characters long",
		},
		{
			name:     "username with path separator",
			username: "../etc",
			password: "password123",
			wantErr:  true,
			errMsg:   "username can only contain",
		},
		{
			name:     "invalid password",
			username: "testuser",
			password: "12345",
			wantErr:  true,
			errMsg:   "password must be at least 6 characters long",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.ValidateRegisterRequest(tt.username, tt.password)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRegisterRequest() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr && err != nil && tt.errMsg != "" {
				if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("ValidateRegisterRequest() error message = %v, want to contain %v", err.Error(), tt.errMsg)
				}
			}
		})
	}
}

func TestAuthRequestValidator_ValidatePasswordConfirmation(t *testing.T) {
	validator := NewAuthRequestValidator()

	if err := validator.ValidatePasswordConfirmation("secret1", "secret1"); err != nil {
		t.Errorf("ValidatePasswordConfirmation() error = %v, want nil", err)
	}

	err := validator.ValidatePasswordConfirmation("secret1", "secret2")
	if err == nil || err.Error() != "passwords do not match" {
		t.Errorf("ValidatePasswordConfirmation() error = %v, want passwords do not match", err)
	}
}

func TestAuthRequestValidator_ValidateChangePasswordRequest(t *testing.T) {
	validator := NewAuthRequestValidator()

	tests := []struct {
		name        string
		oldPassword string
		newPassword string
		errMsg      string
	}{
		{name: "valid change", oldPassword: "old-pass", newPassword: "new-pass"},
		{name: "missing old password", oldPassword: "", newPassword: "new-pass", errMsg: "old password cannot be empty"},
		{name: "short new password", oldPassword: "old-pass", newPassword: "abc", errMsg: "new password must be at least 6 characters long"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.ValidateChangePasswordRequest(tt.oldPassword, tt.newPassword)
			if tt.errMsg == "" {
				if err != nil {
					t.Errorf("ValidateChangePasswordRequest() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("ValidateChangePasswordRequest() error = %v, want to contain %v", err, tt.errMsg)
			}
		})
	}
}
