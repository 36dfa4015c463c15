package domain

import (
	"strings"
	"testing"
)

func TestIdentityValidate(t *testing.T) {
	tests := []struct {
		name    string
		id      Identity
		wantErr error
	}{
		{"valid", Identity{UserID: "u1", UserName: "alice"}, nil},
		{"empty user id", Identity{UserName: "alice"}, ErrUserIDEmpty},
		{"long user id", Identity{UserID: UserID(strings.Repeat("x", 65)), UserName: "alice"}, ErrUserIDTooLong},
		{"empty user name", Identity{UserID: "u1"}, ErrUserNameEmpty},
		{"long user name", Identity{UserID: "u1", UserName: strings.Repeat("x", 65)}, ErrUserNameLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.id.Validate(); err != tt.wantErr {
				t.Fatalf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
