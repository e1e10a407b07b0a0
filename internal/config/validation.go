package config

import (
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap/zapcore"
)

// FieldError is one invalid configuration key.
type FieldError struct {
	Key     string
	Message string
}

// ValidationErrors collects all validation errors
type ValidationErrors struct {
	Fields []FieldError
}

func (e *ValidationErrors) add(key, format string, args ...any) {
	e.Fields = append(e.Fields, FieldError{Key: key, Message: fmt.Sprintf(format, args...)})
}

// HasErrors returns true if any validation errors exist
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Fields) > 0
}

// Error formats all validation errors into a clear message
func (e *ValidationErrors) Error() string {
	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")
	for _, f := range e.Fields {
		sb.WriteString(fmt.Sprintf("  - %s: %s\n", f.Key, f.Message))
	}
	return sb.String()
}

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	errs := &ValidationErrors{}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs.add("server.port", "must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs.add("server.shutdown_timeout", "must be positive")
	}

	if c.Poll.Interval <= 0 {
		errs.add("poll.interval", "must be positive")
	}
	if c.Poll.SampleTimeout <= 0 || c.Poll.SampleTimeout >= c.Poll.Interval {
		errs.add("poll.sample_timeout", "must be positive and shorter than poll.interval (%s)", c.Poll.Interval)
	}

	if c.Broadcast.DeliveryBudget <= 0 {
		errs.add("broadcast.delivery_budget", "must be positive")
	}
	if c.Broadcast.SubscriberBuffer < 1 {
		errs.add("broadcast.subscriber_buffer", "must be >= 1")
	}

	switch c.Provider.Kind {
	case ProviderPlayerctl, ProviderDemo:
	default:
		errs.add("provider.kind", "unknown provider %q (valid: %s, %s)", c.Provider.Kind, ProviderPlayerctl, ProviderDemo)
	}
	if c.Provider.AcquireRetry < 0 {
		errs.add("provider.acquire_retry", "must not be negative")
	}

	if c.Commands.RatePerSecond < 0 {
		errs.add("commands.rate_per_second", "must not be negative")
	}
	if c.Commands.Burst < 1 {
		errs.add("commands.burst", "must be >= 1")
	}

	if c.Stream.PongWait <= 0 {
		errs.add("stream.pong_wait", "must be positive")
	}
	if c.Stream.PingPeriod <= 0 || c.Stream.PingPeriod >= c.Stream.PongWait {
		errs.add("stream.ping_period", "must be positive and shorter than stream.pong_wait (%s)", c.Stream.PongWait)
	}
	if c.Stream.WriteWait <= 0 {
		errs.add("stream.write_wait", "must be positive")
	}

	if err := c.Notify.Validate(); err != nil {
		errs.add("notify", "%v", err)
	}

	var level zapcore.Level
	if err := level.UnmarshalText([]byte(c.Logging.Level)); err != nil {
		errs.add("logging.level", "unknown level %q", c.Logging.Level)
	}

	if u, err := url.Parse(c.Client.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs.add("client.base_url", "must be an absolute URL, got %q", c.Client.BaseURL)
	}
	if c.Client.RetryCount < 0 {
		errs.add("client.retry_count", "must not be negative")
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}
