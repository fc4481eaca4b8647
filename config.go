package subkeeper

import "fmt"

// Config represents the main config
type Config struct {
	DB struct {
		Type string // "bolt", "sqlite", etc.
		Path string
	}

	HTTP struct {
		Addr    string
		BaseURL string
	}

	Subscription struct {
		Statuses []string
	}

	Admin struct {
		Emails []string
	}

	Stats struct {
		Cron struct {
			Spec string
		}
	}

	Sentry struct {
		DSN string
	}
}

// Statuses returns the configured status enumeration, falling back to the
// default set when none is configured.
func (c *Config) Statuses() []string {
	if len(c.Subscription.Statuses) == 0 {
		return DefaultStatuses()
	}
	return c.Subscription.Statuses
}

// Validate checks that the configured status enumeration admits the
// unsubscribe/delete target state.
func (c *Config) Validate() error {
	for _, s := range c.Statuses() {
		if s == StatusInactive {
			return nil
		}
	}
	return fmt.Errorf("subscription.statuses must include %q", StatusInactive)
}
