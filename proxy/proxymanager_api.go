package proxy

import (
	"net/http"

	"github.com/Ltamann/tbg-ollama-bff/proxy/config"
	"github.com/gin-gonic/gin"
)

type policyView struct {
	OllamaBase      string   `json:"ollama_base"`
	DefaultModel    string   `json:"default_model"`
	AllowedModels   any      `json:"allowed_models"`
	SystemDirective string   `json:"system_directive"`
	BoundedTimeout  int      `json:"bounded_timeout_seconds"`
	CORSOrigins     []string `json:"cors_origins"`
}

func addApiHandlers(pm *ProxyManager) {
	// Operator endpoints, kept off /api so they never shadow the runtime
	apiGroup := pm.ginEngine.Group("/bff", pm.apiKeyAuth())
	{
		apiGroup.GET("/version", pm.apiGetVersion)
		apiGroup.GET("/policy", pm.apiGetPolicy)
		apiGroup.GET("/activity", pm.apiGetActivity)
	}
}

func (pm *ProxyManager) apiGetVersion(c *gin.Context) {
	pm.Lock()
	defer pm.Unlock()
	c.JSON(http.StatusOK, map[string]string{
		"version":    pm.version,
		"commit":     pm.commit,
		"build_date": pm.buildDate,
	})
}

// apiGetPolicy reports the effective policy. API keys are never included.
func (pm *ProxyManager) apiGetPolicy(c *gin.Context) {
	var allowed any = config.AnyModel
	if !pm.policy.Unrestricted() {
		allowed = pm.policy.AllowedModels
	}
	c.JSON(http.StatusOK, policyView{
		OllamaBase:      pm.policy.RuntimeBaseURL,
		DefaultModel:    pm.policy.DefaultModel,
		AllowedModels:   allowed,
		SystemDirective: pm.injector.Directive(),
		BoundedTimeout:  int(pm.policy.BoundedTimeout.Seconds()),
		CORSOrigins:     pm.config.CORSOrigins,
	})
}

func (pm *ProxyManager) apiGetActivity(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"previews": pm.activity.snapshot(),
	})
}
