package groq

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Defaults for Config.
const (
	DefaultBaseURL = "https://api.groq.com/openai/v1"
	DefaultModel   = "llama-3.3-70b-versatile"
	DefaultTimeout = 30 * time.Second
)

// Environment variables read by ApplyEnv.
const (
	EnvAPIKey   = "GROQ_API_KEY"
	EnvBaseURL  = "GROQ_BASE_URL"
	EnvModel    = "GROQ_MODEL"
	EnvProxyURL = "GROQ_PROXY_URL"
	EnvTimeout  = "GROQ_TIMEOUT_SECS"
)

// Config collects the settings needed to build a Client and its transport.
type Config struct {
	APIKey   string
	BaseURL  string
	Model    string
	ProxyURL string

	// Timeout bounds one non-streaming attempt.
	Timeout time.Duration

	StreamRetries        int
	RetryTransportErrors bool
	StrictDecoding       bool

	// RequestsPerSecond enables client-side rate limiting when positive.
	RequestsPerSecond float64
	Burst             int

	Backoff BackoffConfig
}

// BackoffConfig mirrors the tunable fields of Backoff.
type BackoffConfig struct {
	InitialInterval time.Duration
	Multiplier      float64
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
}

// DefaultConfig returns a Config with default values and no credential.
func DefaultConfig() Config {
	return Config{
		BaseURL:       DefaultBaseURL,
		Model:         DefaultModel,
		Timeout:       DefaultTimeout,
		StreamRetries: DefaultStreamRetries,
		Backoff: BackoffConfig{
			InitialInterval: DefaultInitialInterval,
			Multiplier:      DefaultMultiplier,
			MaxInterval:     DefaultMaxInterval,
			MaxElapsedTime:  DefaultMaxElapsedTime,
		},
	}
}

// ApplyEnv overrides fields from environment variables. lookup is usually
// os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvAPIKey); ok && v != "" {
		c.APIKey = v
	}
	if v, ok := lookup(EnvBaseURL); ok && v != "" {
		c.BaseURL = v
	}
	if v, ok := lookup(EnvModel); ok && v != "" {
		c.Model = v
	}
	if v, ok := lookup(EnvProxyURL); ok && v != "" {
		c.ProxyURL = v
	}
	if v, ok := lookup(EnvTimeout); ok && v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil || secs <= 0 {
			return fmt.Errorf("%s must be a positive integer, got %q: %w", EnvTimeout, v, ErrValidation)
		}
		c.Timeout = time.Duration(secs) * time.Second
	}
	return nil
}

// Validate checks the credential and numeric settings.
func (c Config) Validate() error {
	if err := ValidateAPIKey(c.APIKey); err != nil {
		return err
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must be non-negative, got %s: %w", c.Timeout, ErrValidation)
	}
	if c.StreamRetries < 0 {
		return fmt.Errorf("stream_retries must be non-negative, got %d: %w", c.StreamRetries, ErrValidation)
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("requests_per_second must be non-negative, got %g: %w", c.RequestsPerSecond, ErrValidation)
	}
	return nil
}

// NewBackoff returns a Backoff from the configured parameters, falling back
// to defaults for zero values.
func (c Config) NewBackoff() *Backoff {
	b := DefaultBackoff()
	if c.Backoff.InitialInterval > 0 {
		b.InitialInterval = c.Backoff.InitialInterval
	}
	if c.Backoff.Multiplier > 0 {
		b.Multiplier = c.Backoff.Multiplier
	}
	if c.Backoff.MaxInterval > 0 {
		b.MaxInterval = c.Backoff.MaxInterval
	}
	if c.Backoff.MaxElapsedTime > 0 {
		b.MaxElapsedTime = c.Backoff.MaxElapsedTime
	}
	b.Reset()
	return b
}

// ClientOptions returns the Client options implied by c.
func (c Config) ClientOptions() []Option {
	return []Option{
		WithBackoff(c.NewBackoff()),
		WithStreamRetries(c.StreamRetries),
		WithRetryTransportErrors(c.RetryTransportErrors),
		WithStrictDecoding(c.StrictDecoding),
	}
}

// ValidateAPIKey checks that key looks like an API key.
func ValidateAPIKey(key string) error {
	if key == "" {
		return &Error{Kind: KindInvalidCredential, Message: "API key is required (set " + EnvAPIKey + ")"}
	}
	if !strings.HasPrefix(key, "gsk_") {
		return &Error{Kind: KindInvalidCredential, Message: "API key must start with gsk_"}
	}
	return nil
}
