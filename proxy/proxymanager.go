package proxy

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/Ltamann/tbg-ollama-bff/proxy/compat"
	"github.com/Ltamann/tbg-ollama-bff/proxy/config"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

const requestIDHeader = "X-Request-Id"

type ProxyManager struct {
	sync.Mutex

	config    config.Config
	policy    config.Policy
	ginEngine *gin.Engine
	handler   http.Handler

	// logging
	proxyLogger    zerolog.Logger
	upstreamLogger zerolog.Logger

	gate         ModelGate
	injector     PromptInjector
	upstream     *UpstreamClient
	relay        Relay
	models       LanguageModels
	capabilities compat.Registry
	activity     *activityLog

	// version info
	buildDate string
	commit    string
	version   string
}

type Option func(*ProxyManager)

// WithLogger replaces the logger built from config.LogLevel.
func WithLogger(logger zerolog.Logger) Option {
	return func(pm *ProxyManager) {
		pm.proxyLogger = logger.With().Str("component", "proxy").Logger()
		pm.upstreamLogger = logger.With().Str("component", "upstream").Logger()
	}
}

// WithLanguageModels replaces the langchaingo backed generation client.
func WithLanguageModels(models LanguageModels) Option {
	return func(pm *ProxyManager) {
		pm.models = models
	}
}

// New builds a ProxyManager around an already defaulted and validated config.
// The config is never modified afterwards; reloading means building a new
// ProxyManager.
func New(proxyConfig config.Config, opts ...Option) *ProxyManager {
	policy := proxyConfig.Policy()

	root := NewLogger(proxyConfig.LogLevel, os.Stdout)
	pm := &ProxyManager{
		config: proxyConfig,
		policy: policy,

		ginEngine: gin.New(),

		proxyLogger:    root.With().Str("component", "proxy").Logger(),
		upstreamLogger: root.With().Str("component", "upstream").Logger(),

		gate:         NewModelGate(policy),
		injector:     NewPromptInjector(policy.SystemDirective),
		capabilities: compat.NewDefaultRegistry(),
		activity:     &activityLog{},

		buildDate: "unknown",
		commit:    "abcd1234",
		version:   "0",
	}
	for _, opt := range opts {
		opt(pm)
	}

	pm.upstream = NewUpstreamClient(policy, pm.upstreamLogger)
	pm.relay = NewRelay(pm.upstreamLogger)
	if pm.models == nil {
		pm.models = NewLangchainModels(policy.RuntimeBaseURL, pm.upstream.HTTPClient())
	}

	pm.setupGinEngine()
	pm.handler = pm.corsHandler(pm.ginEngine)

	return pm
}

func (pm *ProxyManager) setupGinEngine() {

	pm.ginEngine.Use(func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(requestIDHeader, requestID)
		c.Header(requestIDHeader, requestID)

		// Start timer
		start := time.Now()

		clientIP := c.ClientIP()
		method := c.Request.Method
		path := c.Request.URL.Path

		// Process request
		c.Next()

		pm.proxyLogger.Info().
			Str("request_id", requestID).
			Str("client_ip", clientIP).
			Str("method", method).
			Str("path", path).
			Str("proto", c.Request.Proto).
			Int("status", c.Writer.Status()).
			Int("bytes", c.Writer.Size()).
			Str("user_agent", c.Request.UserAgent()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})

	// custom surface
	pm.ginEngine.GET("/health", pm.healthHandler)
	pm.ginEngine.GET("/models", pm.apiKeyAuth(), pm.listModelsHandler)
	pm.ginEngine.POST("/pull", pm.apiKeyAuth(), pm.pullHandler)
	pm.ginEngine.POST("/chat", pm.apiKeyAuth(), pm.chatHandler)
	pm.ginEngine.POST("/embeddings", pm.apiKeyAuth(), pm.embeddingsHandler)

	// legacy surface, one upstream operation per path; see legacy.go
	pm.ginEngine.Any("/api/:operation", pm.apiKeyAuth(), pm.proxyLegacyHandler)

	// see: proxymanager_api.go
	addApiHandlers(pm)

	pm.ginEngine.NoRoute(func(c *gin.Context) {
		pm.sendErrorResponse(c, http.StatusNotFound, fmt.Sprintf("no route for %s %s", c.Request.Method, c.Request.URL.Path))
	})

	// Disable console color for testing
	gin.DisableConsoleColor()
}

// corsHandler applies the configured origin list; "*" allows any origin.
func (pm *ProxyManager) corsHandler(next http.Handler) http.Handler {
	origins := pm.config.CORSOrigins
	if pm.config.AllowAllOrigins() {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{requestIDHeader},
		AllowCredentials: true,
	}).Handler(next)
}

// ServeHTTP implements http.Handler interface
func (pm *ProxyManager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	pm.handler.ServeHTTP(w, r)
}

func (pm *ProxyManager) Policy() config.Policy {
	return pm.policy
}

// sendErrorResponse writes a BFF-raised error. Runtime paths get the
// {"error":"..."} shape native runtime clients parse, everything else the
// typed envelope.
func (pm *ProxyManager) sendErrorResponse(c *gin.Context, statusCode int, message string) {
	if compat.IsLegacyPath(c.Request.URL.Path) {
		c.JSON(statusCode, gin.H{"error": message})
		return
	}
	c.JSON(statusCode, compat.NewErrorEnvelope(statusCode, message, ""))
}

// sendError renders err per the error taxonomy. Upstream replies are passed
// through byte for byte with their original status.
func (pm *ProxyManager) sendError(c *gin.Context, err error) {
	var upstreamErr *UpstreamError
	if errors.As(err, &upstreamErr) {
		contentType := upstreamErr.ContentType
		if contentType == "" {
			contentType = "text/plain; charset=utf-8"
		}
		pm.proxyLogger.Warn().
			Int("status", upstreamErr.StatusCode).
			Str("path", upstreamErr.Path).
			Str("body", truncateForLog(string(upstreamErr.Body), 2048)).
			Msg("upstream error relayed")
		c.Data(upstreamErr.StatusCode, contentType, upstreamErr.Body)
		return
	}

	status := statusForError(err)
	message := err.Error()
	if status == http.StatusBadGateway {
		message = "error proxying request: " + message
	}
	if status >= 500 {
		pm.proxyLogger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
	}
	pm.sendErrorResponse(c, status, message)
}

// apiKeyAuth returns a middleware that validates API keys if configured.
// Returns a pass-through handler if no API keys are configured.
func (pm *ProxyManager) apiKeyAuth() gin.HandlerFunc {
	if len(pm.config.RequiredAPIKeys) == 0 {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		xApiKey := c.GetHeader("x-api-key")

		var bearerKey string
		var basicKey string
		if auth := c.GetHeader("Authorization"); auth != "" {
			if strings.HasPrefix(auth, "Bearer ") {
				bearerKey = strings.TrimPrefix(auth, "Bearer ")
			} else if strings.HasPrefix(auth, "Basic ") {
				// Basic Auth: base64(username:password), password is the API key
				encoded := strings.TrimPrefix(auth, "Basic ")
				if decoded, err := base64.StdEncoding.DecodeString(encoded); err == nil {
					parts := strings.SplitN(string(decoded), ":", 2)
					if len(parts) == 2 {
						basicKey = parts[1]
					}
				}
			}
		}

		// Use first key found: Basic, then Bearer, then x-api-key
		var providedKey string
		if basicKey != "" {
			providedKey = basicKey
		} else if bearerKey != "" {
			providedKey = bearerKey
		} else {
			providedKey = xApiKey
		}

		valid := false
		for _, key := range pm.config.RequiredAPIKeys {
			if providedKey == key {
				valid = true
				break
			}
		}

		if !valid {
			c.Header("WWW-Authenticate", `Basic realm="ollama-bff"`)
			pm.sendErrorResponse(c, http.StatusUnauthorized, "unauthorized: invalid or missing API key")
			c.Abort()
			return
		}

		// Strip auth headers to prevent leakage to upstream
		c.Request.Header.Del("Authorization")
		c.Request.Header.Del("x-api-key")

		c.Next()
	}
}

func safeHeadersJSON(h http.Header) string {
	clone := make(map[string][]string, len(h))
	for k, v := range h {
		keyLower := strings.ToLower(strings.TrimSpace(k))
		if keyLower == "authorization" || keyLower == "x-api-key" {
			clone[k] = []string{"<redacted>"}
			continue
		}
		clone[k] = append([]string(nil), v...)
	}
	b, err := json.Marshal(clone)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func requestID(c *gin.Context) string {
	return c.GetString(requestIDHeader)
}

func readBody(c *gin.Context) ([]byte, error) {
	defer c.Request.Body.Close()
	return io.ReadAll(c.Request.Body)
}

func (pm *ProxyManager) SetVersion(buildDate string, commit string, version string) {
	pm.Lock()
	defer pm.Unlock()
	pm.buildDate = buildDate
	pm.commit = commit
	pm.version = version
}
