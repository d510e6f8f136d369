package proxy

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/Ltamann/tbg-ollama-bff/proxy/compat"
	"github.com/gin-gonic/gin"
)

// proxyLegacyHandler mirrors /api/<op> onto the runtime. Only chat and
// generate bodies are inspected; everything else is a transparent proxy
// with the operation's timeout policy.
func (pm *ProxyManager) proxyLegacyHandler(c *gin.Context) {
	op := compat.Route(c.Request.URL.Path)
	capability, found := pm.capabilities.Lookup(op)
	if !found {
		pm.sendErrorResponse(c, http.StatusNotFound, fmt.Sprintf("unsupported proxy endpoint: %s", c.Request.URL.Path))
		return
	}
	if err := pm.capabilities.Validate(op, c.Request.Method); err != nil {
		pm.sendErrorResponse(c, http.StatusMethodNotAllowed, err.Error())
		return
	}

	rawBody, err := readBody(c)
	if err != nil {
		pm.sendErrorResponse(c, http.StatusBadRequest, "could not read request body")
		return
	}

	norm, err := compat.NormalizeProxyRequest(c.Request, rawBody)
	if err != nil {
		pm.sendErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	pm.proxyLogger.Debug().
		Str("operation", string(op)).
		Interface("canonical", norm.Canonical).
		Str("headers", safeHeadersJSON(c.Request.Header)).
		Str("body", truncateForLog(string(norm.Body), 4096)).
		Msg("legacy proxy request")

	body := norm.Body
	if capability.Injection != compat.InjectNone {
		injected, ok := pm.injector.InjectBody(capability.Injection, body)
		if ok {
			body = injected
		} else {
			pm.proxyLogger.Debug().
				Str("operation", string(op)).
				Bool("valid_json", norm.Canonical.ValidJSON).
				Msg("directive not injected, forwarding original body")
		}
		pm.activity.recordLegacyActivity(requestID(c), op.Path(), norm.Body, ok, c.Request.Header)
	}

	path := op.Path()
	if c.Request.URL.RawQuery != "" {
		path += "?" + c.Request.URL.RawQuery
	}

	var reqBody []byte
	if len(body) > 0 {
		reqBody = body
	}
	resp, err := pm.upstream.Call(c.Request.Context(), capability.Method, path, reqBody, c.Request.Header, capability.Timeout)
	if err != nil {
		pm.sendError(c, err)
		return
	}

	if err := pm.relay.Forward(c, resp); err != nil {
		if c.Writer.Written() {
			// headers are gone, nothing left to tell the client
			pm.proxyLogger.Warn().Err(err).Str("operation", string(op)).Msg("relay ended early")
			return
		}
		if errors.Is(err, errInvalidUpstreamJSON) {
			pm.sendErrorResponse(c, http.StatusBadGateway, err.Error())
			return
		}
		pm.sendError(c, err)
	}
}
