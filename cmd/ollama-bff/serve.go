package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/Ltamann/tbg-ollama-bff/proxy"
	"github.com/Ltamann/tbg-ollama-bff/proxy/config"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 10 * time.Second

// Unset values fall through to the config file, then to config.AddDefaults.
type ServeCommand struct {
	Config              string `help:"Optional YAML config file." env:"CONFIG" default:""`
	WatchConfig         bool   `help:"Reload the config file when it changes." name:"watch-config"`
	ListenAddr          string `help:"The address to listen on." env:"LISTEN_ADDR" default:":8000"`
	OllamaBase          string `help:"Base URL of the Ollama runtime." env:"OLLAMA_BASE" default:""`
	DefaultModel        string `help:"Model used when a request names none." env:"DEFAULT_MODEL" default:""`
	AllowedModels       string `help:"Comma separated model allow-list. Empty allows any model." env:"ALLOWED_MODELS" default:""`
	CORSOrigins         string `help:"Comma separated allowed origins. * allows any origin." name:"cors-origins" env:"CORS_ORIGINS" default:""`
	SystemDirective     string `help:"System directive applied to every generation." env:"SYSTEM_DIRECTIVE" default:""`
	SystemDirectiveFile string `help:"File holding the system directive." env:"SYSTEM_DIRECTIVE_FILE" default:""`
	APIKeys             string `help:"Comma separated API keys. Empty disables authentication." name:"api-keys" env:"API_KEYS" default:""`
	BoundedTimeout      int    `help:"Deadline in seconds for short runtime operations." env:"BOUNDED_TIMEOUT" default:"0"`
	LogLevel            string `help:"The log level to use." env:"LOG_LEVEL" default:""`
}

// overrides returns the environment and flag values as a partial config.
func (c ServeCommand) overrides() (config.Config, error) {
	directive := c.SystemDirective
	if c.SystemDirectiveFile != "" {
		contents, err := os.ReadFile(c.SystemDirectiveFile)
		if err != nil {
			return config.Config{}, fmt.Errorf("failed to read system directive: %w", err)
		}
		directive = strings.TrimRight(string(contents), "\r\n")
	}
	return config.Config{
		OllamaBase:      c.OllamaBase,
		DefaultModel:    c.DefaultModel,
		AllowedModels:   config.ParseList(c.AllowedModels),
		CORSOrigins:     config.ParseList(c.CORSOrigins),
		SystemDirective: directive,
		RequiredAPIKeys: config.ParseList(c.APIKeys),
		BoundedTimeout:  c.BoundedTimeout,
		LogLevel:        c.LogLevel,
	}, nil
}

// resolve layers overrides onto fileConfig and applies defaults.
func (c ServeCommand) resolve(fileConfig config.Config) (config.Config, error) {
	overrides, err := c.overrides()
	if err != nil {
		return config.Config{}, err
	}
	cfg := config.AddDefaults(fileConfig.Merge(overrides))
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c ServeCommand) loadConfig() (config.Config, error) {
	var fileConfig config.Config
	if c.Config != "" {
		var err error
		fileConfig, err = config.LoadConfig(c.Config)
		if err != nil {
			return config.Config{}, fmt.Errorf("failed to load config: %w", err)
		}
	}
	return c.resolve(fileConfig)
}

func newProxyManager(cfg config.Config) *proxy.ProxyManager {
	pm := proxy.New(cfg, proxy.WithLogger(proxy.NewLogger(cfg.LogLevel, os.Stdout)))
	pm.SetVersion(date, commit, version)
	return pm
}

func (c ServeCommand) Run(ctx context.Context) (err error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	log := proxy.NewLogger(cfg.LogLevel, os.Stdout).With().Str("component", "main").Logger()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var current atomic.Pointer[proxy.ProxyManager]
	current.Store(newProxyManager(cfg))
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		current.Load().ServeHTTP(w, r)
	})

	if c.WatchConfig {
		if c.Config == "" {
			log.Warn().Msg("--watch-config has no effect without a config file")
		} else {
			go c.watch(ctx, log, &current)
		}
	}

	policy := cfg.Policy()
	log.Info().
		Str("addr", c.ListenAddr).
		Str("ollama_base", policy.RuntimeBaseURL).
		Str("default_model", policy.DefaultModel).
		Strs("allowed_models", policy.AllowedModels).
		Bool("auth", len(cfg.RequiredAPIKeys) > 0).
		Str("version", version).
		Msg("listening")

	s := &http.Server{
		Addr:              c.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// watch swaps in a freshly built ProxyManager on every valid config change.
// Requests already running finish on the manager they started with.
func (c ServeCommand) watch(ctx context.Context, log zerolog.Logger, current *atomic.Pointer[proxy.ProxyManager]) {
	err := config.Watch(ctx, c.Config,
		func(fileConfig config.Config) {
			cfg, err := c.resolve(fileConfig)
			if err != nil {
				log.Error().Err(err).Msg("config change rejected, keeping previous config")
				return
			}
			current.Store(newProxyManager(cfg))
			log.Info().Str("path", c.Config).Msg("config reloaded")
		},
		func(err error) {
			log.Warn().Err(err).Msg("config watch error")
		})
	if err != nil {
		log.Error().Err(err).Msg("config watch stopped")
	}
}
