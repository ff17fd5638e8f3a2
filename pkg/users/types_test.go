package users

import (
	"encoding/json"
	"testing"

	"github.com/platinummonkey/docket/pkg/apperrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeUsername(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"alice", "alice", false},
		{"  bob1  ", "bob1", false},
		{"abc", "", true},
		{"   ", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := NormalizeUsername(tt.input)
			if tt.wantErr {
				assert.True(t, apperrors.IsValidation(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeEmail(t *testing.T) {
	valid := []string{"alice@example.com", " bob@example.org "}
	for _, email := range valid {
		_, err := NormalizeEmail(email)
		assert.NoError(t, err, email)
	}

	invalid := []string{"", "not-an-email", "Alice <alice@example.com>", "@example.com"}
	for _, email := range invalid {
		_, err := NormalizeEmail(email)
		assert.True(t, apperrors.IsValidation(err), email)
	}
}

func TestValidatePassword(t *testing.T) {
	assert.NoError(t, ValidatePassword("secret"))
	assert.True(t, apperrors.IsValidation(ValidatePassword("short")))
}

func TestUserJSONOmitsHash(t *testing.T) {
	data, err := json.Marshal(&User{ID: 1, Username: "alice", PasswordHash: "$2a$10$abc"})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "password")
	assert.NotContains(t, string(data), "$2a$")
}
