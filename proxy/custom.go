package proxy

import (
	"net/http"

	"github.com/Ltamann/tbg-ollama-bff/proxy/config"
	"github.com/gin-gonic/gin"
)

func (pm *ProxyManager) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"default_model": pm.policy.DefaultModel,
		"ollama_base":   pm.policy.RuntimeBaseURL,
	})
}

func (pm *ProxyManager) listModelsHandler(c *gin.Context) {
	names, err := pm.fetchModelNames(c.Request.Context())
	if err != nil {
		pm.sendError(c, err)
		return
	}

	var allowed any = config.AnyModel
	if !pm.policy.Unrestricted() {
		allowed = pm.policy.AllowedModels
	}
	c.JSON(http.StatusOK, gin.H{
		"models":  names,
		"allowed": allowed,
	})
}

func (pm *ProxyManager) pullHandler(c *gin.Context) {
	var req PullRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		pm.sendErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	lastStatus, err := pm.pullModel(c.Request.Context(), req.Name)
	if err != nil {
		pm.sendError(c, err)
		return
	}
	pm.proxyLogger.Info().Str("model", req.Name).Str("last_status", lastStatus).Msg("model pulled")

	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"pulled": req.Name,
	})
}

// chatHandler is single turn: only the latest user message reaches the
// runtime, always behind the fixed directive.
func (pm *ProxyManager) chatHandler(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		pm.sendErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	model, err := pm.gate.Resolve(req.Model)
	if err != nil {
		pm.sendError(c, err)
		return
	}

	messages, err := pm.injector.SingleTurn(req.Messages)
	if err != nil {
		pm.sendError(c, err)
		return
	}

	pm.activity.recordChatActivity(requestID(c), model, len(req.Messages), messages, c.Request.Header)

	generation, err := pm.models.Chat(c.Request.Context(), model, messages, GenerationOptions{
		Temperature: req.temperature(),
		MaxTokens:   req.maxTokens(),
	})
	if err != nil {
		pm.sendError(c, &GenerationError{Err: err})
		return
	}

	usage := map[string]any{}
	for key, value := range generation.Info {
		usage[key] = value
	}
	usage["model"] = model

	c.JSON(http.StatusOK, ChatResponse{
		Content: generation.Content,
		Model:   model,
		Usage:   usage,
	})
}

func (pm *ProxyManager) embeddingsHandler(c *gin.Context) {
	var req EmbeddingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		pm.sendErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	model, err := pm.gate.Resolve(req.Model)
	if err != nil {
		pm.sendError(c, err)
		return
	}
	if len(req.Input) == 0 {
		pm.sendError(c, ErrEmptyInput)
		return
	}

	vectors, err := pm.models.Embed(c.Request.Context(), model, req.Input)
	if err != nil {
		pm.sendError(c, &EmbeddingError{Err: err})
		return
	}

	c.JSON(http.StatusOK, EmbeddingsResponse{
		Embeddings: vectors,
		Model:      model,
	})
}
