package proxy

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/Ltamann/tbg-ollama-bff/proxy/config"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const testDirective = "Answer briefly."

func init() {
	gin.SetMode(gin.TestMode)
}

// getTestConfig returns a defaulted config pointed at ollamaBase.
func getTestConfig(ollamaBase string) config.Config {
	return config.AddDefaults(config.Config{
		OllamaBase:      ollamaBase,
		SystemDirective: testDirective,
		LogLevel:        "error",
	})
}

func newTestProxyManager(t *testing.T, cfg config.Config, opts ...Option) *ProxyManager {
	t.Helper()
	opts = append([]Option{WithLogger(zerolog.Nop())}, opts...)
	return New(cfg, opts...)
}

// recordedRequest is what the fake runtime saw.
type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   []byte
}

// fakeOllama is an httptest runtime that records every request it gets.
type fakeOllama struct {
	*httptest.Server

	mu       sync.Mutex
	requests []recordedRequest
}

func newFakeOllama(t *testing.T, handler func(w http.ResponseWriter, r *http.Request, body []byte)) *fakeOllama {
	t.Helper()
	fake := &fakeOllama{}
	fake.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := readAllAndClose(r)
		fake.mu.Lock()
		fake.requests = append(fake.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Header: r.Header.Clone(),
			Body:   body,
		})
		fake.mu.Unlock()
		handler(w, r, body)
	}))
	t.Cleanup(fake.Close)
	return fake
}

func (f *fakeOllama) Requests() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.requests...)
}

func (f *fakeOllama) LastRequest(t *testing.T) recordedRequest {
	t.Helper()
	requests := f.Requests()
	if len(requests) == 0 {
		t.Fatal("fake runtime received no requests")
	}
	return requests[len(requests)-1]
}

// fakeModels stands in for the langchaingo client.
type fakeModels struct {
	mu sync.Mutex

	chatModel    string
	chatMessages []ChatMessage
	chatOpts     GenerationOptions
	chatReply    Generation
	chatErr      error

	embedModel string
	embedInput []string
	embedErr   error
}

func (f *fakeModels) Chat(ctx context.Context, model string, messages []ChatMessage, opts GenerationOptions) (Generation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chatModel = model
	f.chatMessages = append([]ChatMessage(nil), messages...)
	f.chatOpts = opts
	if f.chatErr != nil {
		return Generation{}, f.chatErr
	}
	return f.chatReply, nil
}

func (f *fakeModels) Embed(ctx context.Context, model string, input []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.embedModel = model
	f.embedInput = append([]string(nil), input...)
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	vectors := make([][]float32, len(input))
	for i, text := range input {
		// first component encodes the input length so order can be checked
		vectors[i] = []float32{float32(len(text)), float32(i)}
	}
	return vectors, nil
}

func readAllAndClose(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}
