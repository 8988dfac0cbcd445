package main

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/fwojciec/groq"
	groqhttp "github.com/fwojciec/groq/http"
	"github.com/fwojciec/groq/toml"
	"go.uber.org/zap"
)

// app carries state shared by all commands. Environment variables are only
// read through lookup.
type app struct {
	lookup func(string) (string, bool)

	configFlag string
	verbose    bool

	configOnce sync.Once
	config     *groq.Config
	configPath string
	configErr  error

	logger *zap.Logger
}

func newApp(lookup func(string) (string, bool)) *app {
	return &app{lookup: lookup}
}

// loadConfig reads the configuration file and applies the environment on
// top of it. The result is cached for the lifetime of the command.
func (a *app) loadConfig() (*groq.Config, error) {
	a.configOnce.Do(func() {
		cfg, path, _, err := toml.Load(strings.TrimSpace(a.configFlag))
		if err != nil {
			a.configErr = err
			return
		}
		if err := cfg.ApplyEnv(a.lookup); err != nil {
			a.configErr = err
			return
		}
		a.config, a.configPath = cfg, path
	})
	return a.config, a.configErr
}

func (a *app) log() *zap.Logger {
	if a.logger != nil {
		return a.logger
	}
	a.logger = zap.NewNop()
	if a.verbose {
		if l, err := zap.NewDevelopment(); err == nil {
			a.logger = l
		}
	}
	return a.logger
}

func (a *app) close() {
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

// client builds an API client from the effective configuration.
func (a *app) client() (*groq.Client, *groq.Config, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	logger := a.log()
	opts := []groqhttp.Option{
		groqhttp.WithBaseURL(cfg.BaseURL),
		groqhttp.WithTimeout(cfg.Timeout),
		groqhttp.WithRateLimit(cfg.RequestsPerSecond, cfg.Burst),
		groqhttp.WithLogger(logger),
	}
	if cfg.ProxyURL != "" {
		u, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, nil, fmt.Errorf("parse proxy url: %w", err)
		}
		opts = append(opts, groqhttp.WithProxy(u))
	}

	transport := groqhttp.New(cfg.APIKey, opts...)
	clientOpts := append(cfg.ClientOptions(), groq.WithLogger(logger))
	return groq.NewClient(transport, clientOpts...), cfg, nil
}

// width returns the terminal width from COLUMNS, or 80.
func (a *app) width() int {
	if v, ok := a.lookup("COLUMNS"); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 20 {
			return n
		}
	}
	return 80
}
