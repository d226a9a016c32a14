package activity

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned for any unreadable, incomplete or out of range simulation config.
var ErrInvalidConfig = errors.New("invalid activity config")

// Config holds the simulation parameters for one run.
type Config struct {
	NumberOfUsers   int `yaml:"number_of_users"`
	MaxPostsPerUser int `yaml:"max_posts_per_user"`
	MaxLikesPerUser int `yaml:"max_likes_per_user"`
}

// rawConfig tells a missing key apart from an explicit zero.
type rawConfig struct {
	NumberOfUsers   *int `yaml:"number_of_users"`
	MaxPostsPerUser *int `yaml:"max_posts_per_user"`
	MaxLikesPerUser *int `yaml:"max_likes_per_user"`
}

// LoadConfig reads and validates a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return ParseConfig(bytes.NewReader(data))
}

// ParseConfig decodes a config document. Unknown keys are rejected.
func ParseConfig(r io.Reader) (*Config, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var raw rawConfig
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrInvalidConfig)
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	fields := []struct {
		name  string
		value *int
	}{
		{"number_of_users", raw.NumberOfUsers},
		{"max_posts_per_user", raw.MaxPostsPerUser},
		{"max_likes_per_user", raw.MaxLikesPerUser},
	}
	for _, f := range fields {
		if f.value == nil {
			return nil, fmt.Errorf("%w: %s is required", ErrInvalidConfig, f.name)
		}
		if *f.value <= 0 {
			return nil, fmt.Errorf("%w: %s must be positive, got %d", ErrInvalidConfig, f.name, *f.value)
		}
	}

	return &Config{
		NumberOfUsers:   *raw.NumberOfUsers,
		MaxPostsPerUser: *raw.MaxPostsPerUser,
		MaxLikesPerUser: *raw.MaxLikesPerUser,
	}, nil
}

// Validate checks an in-memory config the same way ParseConfig checks a file.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: nil config", ErrInvalidConfig)
	}
	if c.NumberOfUsers <= 0 || c.MaxPostsPerUser <= 0 || c.MaxLikesPerUser <= 0 {
		return fmt.Errorf("%w: all limits must be positive", ErrInvalidConfig)
	}
	return nil
}
