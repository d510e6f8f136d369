package proxy

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

const DefaultTemperature = 0.2

type ChatMessage struct {
	Role    string `json:"role" binding:"required,oneof=system user assistant"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Messages    []ChatMessage `json:"messages" binding:"required,dive"`
	Model       string        `json:"model,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
}

func (r ChatRequest) temperature() float64 {
	if r.Temperature == nil {
		return DefaultTemperature
	}
	return *r.Temperature
}

// maxTokens is zero, meaning no limit, unless the client asked for one.
func (r ChatRequest) maxTokens() int {
	if r.MaxTokens == nil || *r.MaxTokens <= 0 {
		return 0
	}
	return *r.MaxTokens
}

type ChatResponse struct {
	Content string         `json:"content"`
	Model   string         `json:"model"`
	Usage   map[string]any `json:"usage"`
}

type EmbeddingsRequest struct {
	Input []string `json:"input" binding:"required"`
	Model string   `json:"model,omitempty"`
}

type EmbeddingsResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Model      string      `json:"model"`
}

type PullRequest struct {
	Name string `json:"name" binding:"required"`
}
