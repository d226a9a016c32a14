package activity

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfig(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		want    *Config
		wantErr string
	}{
		{
			name: "Valid",
			doc:  "number_of_users: 3\nmax_posts_per_user: 2\nmax_likes_per_user: 1\n",
			want: &Config{NumberOfUsers: 3, MaxPostsPerUser: 2, MaxLikesPerUser: 1},
		},
		{
			name:    "Missing field",
			doc:     "number_of_users: 3\nmax_posts_per_user: 2\n",
			wantErr: "max_likes_per_user is required",
		},
		{
			name:    "Zero",
			doc:     "number_of_users: 0\nmax_posts_per_user: 2\nmax_likes_per_user: 1\n",
			wantErr: "number_of_users must be positive",
		},
		{
			name:    "Negative",
			doc:     "number_of_users: 3\nmax_posts_per_user: -2\nmax_likes_per_user: 1\n",
			wantErr: "max_posts_per_user must be positive",
		},
		{
			name:    "Not an integer",
			doc:     "number_of_users: many\nmax_posts_per_user: 2\nmax_likes_per_user: 1\n",
			wantErr: "cannot unmarshal",
		},
		{
			name:    "Unknown field",
			doc:     "number_of_users: 3\nmax_posts_per_user: 2\nmax_likes_per_user: 1\nmax_friends: 4\n",
			wantErr: "max_friends",
		},
		{
			name:    "Empty",
			doc:     "",
			wantErr: "empty document",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ParseConfig(strings.NewReader(tt.doc))
			if tt.wantErr != "" {
				require.ErrorIs(t, err, ErrInvalidConfig)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activity.yml")
	require.NoError(t, os.WriteFile(path, []byte("number_of_users: 10\nmax_posts_per_user: 5\nmax_likes_per_user: 3\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.NumberOfUsers)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yml"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
