package notify

import (
	"errors"
	"fmt"
	"slices"
)

var priorities = []string{"min", "low", "default", "high", "urgent"}

// Config selects the ntfy topic that receives track announcements.
type Config struct {
	Enabled       bool   `mapstructure:"enabled"`
	Server        string `mapstructure:"server"`
	Topic         string `mapstructure:"topic"`
	Priority      string `mapstructure:"priority"`
	Tags          string `mapstructure:"tags"` // comma-separated emoji shortcodes
	Token         string `mapstructure:"token"`
	AttachArtwork bool   `mapstructure:"attach_artwork"`
}

func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Topic == "" {
		return errors.New("topic is required when notifications are enabled")
	}
	if !slices.Contains(priorities, c.Priority) {
		return fmt.Errorf("invalid priority: %s (valid: %v)", c.Priority, priorities)
	}
	return nil
}
