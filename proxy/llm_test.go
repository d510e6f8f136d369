package proxy

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

// chatOllama answers /api/chat with a single non-streamed reply and
// /api/embeddings with a one element vector holding the prompt length.
func chatOllama(t *testing.T) *fakeOllama {
	return newFakeOllama(t, func(w http.ResponseWriter, r *http.Request, body []byte) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		switch r.URL.Path {
		case "/api/chat":
			w.Write([]byte(`{"model":"m","created_at":"2024-01-01T00:00:00Z","message":{"role":"assistant","content":"goodbye"},"done":true,"prompt_eval_count":3,"eval_count":2}` + "\n"))
		case "/api/embeddings":
			fmt.Fprintf(w, `{"embedding":[%d]}`, len(gjson.GetBytes(body, "prompt").String()))
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"not found"}`))
		}
	})
}

func TestLangchainModels_Chat(t *testing.T) {
	fake := chatOllama(t)
	models := NewLangchainModels(fake.URL, fake.Client())

	generation, err := models.Chat(context.Background(), "m", []ChatMessage{
		{Role: RoleSystem, Content: testDirective},
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello"},
		{Role: RoleUser, Content: "bye"},
	}, GenerationOptions{Temperature: 0.5, MaxTokens: 64})
	require.NoError(t, err)

	assert.Equal(t, "goodbye", generation.Content)
	assert.EqualValues(t, 3, generation.Info["PromptTokens"])
	assert.EqualValues(t, 2, generation.Info["CompletionTokens"])
	assert.EqualValues(t, 5, generation.Info["TotalTokens"])

	seen := fake.LastRequest(t)
	assert.Equal(t, http.MethodPost, seen.Method)
	assert.Equal(t, "/api/chat", seen.Path)
	assert.Equal(t, "m", gjson.GetBytes(seen.Body, "model").String())
	assert.False(t, gjson.GetBytes(seen.Body, "stream").Bool())

	messages := gjson.GetBytes(seen.Body, "messages").Array()
	require.Len(t, messages, 4)
	roles := make([]string, 0, len(messages))
	for _, msg := range messages {
		roles = append(roles, msg.Get("role").String())
	}
	assert.Equal(t, []string{"system", "user", "assistant", "user"}, roles)
	assert.Equal(t, testDirective, messages[0].Get("content").String())
	assert.Equal(t, "bye", messages[3].Get("content").String())

	assert.Equal(t, 0.5, gjson.GetBytes(seen.Body, "options.temperature").Float())
	assert.Equal(t, int64(64), gjson.GetBytes(seen.Body, "options.num_predict").Int())
}

func TestLangchainModels_ChatWithoutTokenLimit(t *testing.T) {
	fake := chatOllama(t)
	models := NewLangchainModels(fake.URL, fake.Client())

	_, err := models.Chat(context.Background(), "m", []ChatMessage{{Role: RoleUser, Content: "hi"}}, GenerationOptions{})
	require.NoError(t, err)

	seen := fake.LastRequest(t)
	temperature := gjson.GetBytes(seen.Body, "options.temperature")
	assert.True(t, temperature.Exists())
	assert.Equal(t, 0.0, temperature.Float())
	assert.False(t, gjson.GetBytes(seen.Body, "options.num_predict").Exists())
}

func TestLangchainModels_ChatRuntimeError(t *testing.T) {
	fake := newFakeOllama(t, func(w http.ResponseWriter, r *http.Request, body []byte) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"model \"nope\" not found, try pulling it first"}`))
	})
	models := NewLangchainModels(fake.URL, fake.Client())

	_, err := models.Chat(context.Background(), "nope", []ChatMessage{{Role: RoleUser, Content: "hi"}}, GenerationOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestLangchainModels_EmbedKeepsOrder(t *testing.T) {
	fake := chatOllama(t)
	models := NewLangchainModels(fake.URL, fake.Client())

	vectors, err := models.Embed(context.Background(), "m", []string{"a", "bbb", "cc"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1}, {3}, {2}}, vectors)

	requests := fake.Requests()
	require.Len(t, requests, 3)
	prompts := make([]string, 0, len(requests))
	for _, req := range requests {
		assert.Equal(t, "/api/embeddings", req.Path)
		assert.Equal(t, "m", gjson.GetBytes(req.Body, "model").String())
		prompts = append(prompts, gjson.GetBytes(req.Body, "prompt").String())
	}
	assert.Equal(t, []string{"a", "bbb", "cc"}, prompts)
}

func TestLangchainModels_EmbedEmptyVector(t *testing.T) {
	fake := newFakeOllama(t, func(w http.ResponseWriter, r *http.Request, body []byte) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Write([]byte(`{"embedding":[]}`))
	})
	models := NewLangchainModels(fake.URL, fake.Client())

	_, err := models.Embed(context.Background(), "m", []string{"a"})
	assert.Error(t, err)
}

// The custom surface talks to the runtime through langchaingo when no other
// LanguageModels is configured.
func TestChat_ThroughRuntime(t *testing.T) {
	fake := chatOllama(t)
	pm := newTestProxyManager(t, getTestConfig(fake.URL))

	w := doJSON(pm, http.MethodPost, "/chat", `{"messages":[{"role":"system","content":"be rude"},{"role":"user","content":"hi"},{"role":"user","content":"bye"}],"temperature":0}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := w.Body.String()
	assert.Equal(t, "goodbye", gjson.Get(body, "content").String())
	assert.Equal(t, int64(3), gjson.Get(body, "usage.PromptTokens").Int())
	assert.Equal(t, int64(2), gjson.Get(body, "usage.CompletionTokens").Int())
	assert.Equal(t, int64(5), gjson.Get(body, "usage.TotalTokens").Int())
	assert.Equal(t, "llama3.1:latest", gjson.Get(body, "usage.model").String())

	seen := fake.LastRequest(t)
	assert.JSONEq(t,
		`[{"role":"system","content":"`+testDirective+`"},{"role":"user","content":"bye"}]`,
		gjson.GetBytes(seen.Body, "messages").Raw)
	assert.Equal(t, 0.0, gjson.GetBytes(seen.Body, "options.temperature").Float())
	assert.False(t, gjson.GetBytes(seen.Body, "options.num_predict").Exists())
}

func TestEmbeddings_ThroughRuntime(t *testing.T) {
	fake := chatOllama(t)
	pm := newTestProxyManager(t, getTestConfig(fake.URL))

	w := doJSON(pm, http.MethodPost, "/embeddings", `{"input":["a","bbb","cc"]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `[[1],[3],[2]]`, gjson.Get(w.Body.String(), "embeddings").Raw)
}
