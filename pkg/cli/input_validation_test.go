package cli

import (
	"testing"

	"github.com/google/uuid"
)

func TestValidateGameID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{
			name:    "valid uuid",
			input:   uuid.New().String(),
			wantErr: false,
		},
		{
			name:    "empty",
			input:   "",
			wantErr: true,
		},
		{
			name:    "not a uuid",
			input:   "game-42",
			wantErr: true,
		},
		{
			name:    "sql injection attempt",
			input:   "'; DROP TABLE games; --",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateGameID(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateGameID(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateAddr(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{
			name:    "plain http",
			input:   "http://localhost:8080",
			wantErr: false,
		},
		{
			name:    "https",
			input:   "https://engine.internal:8080",
			wantErr: false,
		},
		{
			name:    "missing scheme",
			input:   "localhost:8080",
			wantErr: true,
		},
		{
			name:    "wrong scheme",
			input:   "ftp://localhost",
			wantErr: true,
		},
		{
			name:    "empty",
			input:   "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAddr(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAddr(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}
