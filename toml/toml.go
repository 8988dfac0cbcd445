// Package toml loads and writes groq configuration files.
package toml

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fwojciec/groq"
	gotoml "github.com/pelletier/go-toml/v2"
)

// DefaultPath is the per-user configuration file.
const DefaultPath = "~/.config/groq/config.toml"

// ProjectFile is looked up in the working directory when DefaultPath does
// not exist.
const ProjectFile = "groq.toml"

// file is the on-disk layout. Durations are Go duration strings.
type file struct {
	APIKey               string  `toml:"api_key,omitempty"`
	BaseURL              string  `toml:"base_url,omitempty"`
	Model                string  `toml:"model,omitempty"`
	ProxyURL             string  `toml:"proxy_url,omitempty"`
	TimeoutSeconds       int     `toml:"timeout_seconds,omitempty"`
	StreamRetries        *int    `toml:"stream_retries,omitempty"`
	RetryTransportErrors bool    `toml:"retry_transport_errors"`
	StrictDecoding       bool    `toml:"strict_decoding"`
	RequestsPerSecond    float64 `toml:"requests_per_second,omitempty"`
	Burst                int     `toml:"burst,omitempty"`
	Backoff              backoff `toml:"backoff"`
}

type backoff struct {
	InitialInterval string  `toml:"initial_interval,omitempty"`
	Multiplier      float64 `toml:"multiplier,omitempty"`
	MaxInterval     string  `toml:"max_interval,omitempty"`
	MaxElapsedTime  string  `toml:"max_elapsed_time,omitempty"`
}

// Load locates and parses a configuration file on top of
// groq.DefaultConfig. An empty path searches DefaultPath, then ProjectFile.
// It returns the resolved path and whether the file exists; a missing file
// is not an error. The credential is not validated here because it usually
// comes from the environment.
func Load(path string) (*groq.Config, string, bool, error) {
	cfg := groq.DefaultConfig()

	resolved, exists, err := resolvePath(path)
	if err != nil {
		return nil, "", false, err
	}
	if !exists {
		return &cfg, resolved, false, nil
	}

	f, err := os.Open(resolved)
	if err != nil {
		return nil, "", false, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	if err := Decode(f, &cfg); err != nil {
		return nil, "", false, fmt.Errorf("%s: %w", resolved, err)
	}
	return &cfg, resolved, true, nil
}

// Decode reads TOML from r and overrides the fields of cfg it sets.
// Unknown keys are rejected.
func Decode(r io.Reader, cfg *groq.Config) error {
	var raw file
	if err := gotoml.NewDecoder(r).DisallowUnknownFields().Decode(&raw); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return raw.apply(cfg)
}

func (f file) apply(cfg *groq.Config) error {
	if f.APIKey != "" {
		cfg.APIKey = f.APIKey
	}
	if f.BaseURL != "" {
		cfg.BaseURL = f.BaseURL
	}
	if f.Model != "" {
		cfg.Model = f.Model
	}
	if f.ProxyURL != "" {
		cfg.ProxyURL = f.ProxyURL
	}
	if f.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout_seconds must be non-negative, got %d", f.TimeoutSeconds)
	}
	if f.TimeoutSeconds > 0 {
		cfg.Timeout = time.Duration(f.TimeoutSeconds) * time.Second
	}
	if f.StreamRetries != nil {
		cfg.StreamRetries = *f.StreamRetries
	}
	cfg.RetryTransportErrors = cfg.RetryTransportErrors || f.RetryTransportErrors
	cfg.StrictDecoding = cfg.StrictDecoding || f.StrictDecoding
	if f.RequestsPerSecond > 0 {
		cfg.RequestsPerSecond = f.RequestsPerSecond
	}
	if f.Burst > 0 {
		cfg.Burst = f.Burst
	}

	var err error
	set := func(dst *time.Duration, key, value string) {
		if value == "" || err != nil {
			return
		}
		d, perr := time.ParseDuration(value)
		if perr != nil || d <= 0 {
			err = fmt.Errorf("backoff.%s must be a positive duration, got %q", key, value)
			return
		}
		*dst = d
	}
	set(&cfg.Backoff.InitialInterval, "initial_interval", f.Backoff.InitialInterval)
	set(&cfg.Backoff.MaxInterval, "max_interval", f.Backoff.MaxInterval)
	set(&cfg.Backoff.MaxElapsedTime, "max_elapsed_time", f.Backoff.MaxElapsedTime)
	if err != nil {
		return err
	}
	if f.Backoff.Multiplier != 0 {
		if f.Backoff.Multiplier < 1 {
			return fmt.Errorf("backoff.multiplier must be at least 1, got %g", f.Backoff.Multiplier)
		}
		cfg.Backoff.Multiplier = f.Backoff.Multiplier
	}
	return nil
}

// Encode writes cfg as TOML. The API key is masked unless withKey is set.
func Encode(w io.Writer, cfg groq.Config, withKey bool) error {
	retries := cfg.StreamRetries
	f := file{
		APIKey:               cfg.APIKey,
		BaseURL:              cfg.BaseURL,
		Model:                cfg.Model,
		ProxyURL:             cfg.ProxyURL,
		TimeoutSeconds:       int(cfg.Timeout / time.Second),
		StreamRetries:        &retries,
		RetryTransportErrors: cfg.RetryTransportErrors,
		StrictDecoding:       cfg.StrictDecoding,
		RequestsPerSecond:    cfg.RequestsPerSecond,
		Burst:                cfg.Burst,
		Backoff: backoff{
			InitialInterval: formatDuration(cfg.Backoff.InitialInterval),
			Multiplier:      cfg.Backoff.Multiplier,
			MaxInterval:     formatDuration(cfg.Backoff.MaxInterval),
			MaxElapsedTime:  formatDuration(cfg.Backoff.MaxElapsedTime),
		},
	}
	if !withKey {
		f.APIKey = MaskKey(cfg.APIKey)
	}
	return gotoml.NewEncoder(w).Encode(f)
}

// WriteSample writes the default configuration to path, creating parent
// directories. An existing file is left untouched.
func WriteSample(path string) (string, error) {
	expanded, err := expandPath(path)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(expanded); err == nil {
		return "", fmt.Errorf("config %s already exists", expanded)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return "", fmt.Errorf("create config directory: %w", err)
	}
	out, err := os.OpenFile(expanded, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600)
	if err != nil {
		return "", fmt.Errorf("create config: %w", err)
	}
	if err := Encode(out, groq.DefaultConfig(), true); err != nil {
		out.Close()
		return "", fmt.Errorf("write config: %w", err)
	}
	return expanded, out.Close()
}

// MaskKey hides all but the prefix and last four characters of key.
func MaskKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	return d.String()
}

func resolvePath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(DefaultPath)
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs(ProjectFile)
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

func expandPath(p string) (string, error) {
	if strings.HasPrefix(p, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if p == "~" {
			p = home
		} else if len(p) > 1 && (p[1] == '/' || p[1] == '\\') {
			p = filepath.Join(home, p[2:])
		}
	}
	abs, err := filepath.Abs(filepath.Clean(p))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", p, err)
	}
	return abs, nil
}
