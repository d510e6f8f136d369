package proxy

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/Ltamann/tbg-ollama-bff/proxy/compat"
	"github.com/tidwall/gjson"
)

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// fetchModelNames projects the runtime's tag catalog onto model names.
func (pm *ProxyManager) fetchModelNames(ctx context.Context) ([]string, error) {
	resp, err := pm.upstream.Call(ctx, http.MethodGet, compat.OpTags.Path(), nil, nil, compat.Bounded)
	if err != nil {
		return nil, err
	}
	defer resp.Close()

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("%w: decoding tags: %w", ErrUpstreamUnavailable, err)
	}

	names := make([]string, 0, len(tags.Models))
	for _, item := range tags.Models {
		name := strings.TrimSpace(item.Name)
		if name == "" {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

type pullFailedError struct {
	Model   string
	Message string
}

func (e *pullFailedError) Error() string {
	return fmt.Sprintf("pull %s failed: %s", e.Model, e.Message)
}

// pullModel asks the runtime to download name and waits for its progress
// stream to end. Success is whatever the runtime reports: a 2xx and no
// {"error": ...} line in the stream.
func (pm *ProxyManager) pullModel(ctx context.Context, name string) (string, error) {
	payload, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		return "", err
	}
	resp, err := pm.upstream.Call(ctx, http.MethodPost, compat.OpPull.Path(), payload, nil, compat.Unbounded)
	if err != nil {
		return "", err
	}
	defer resp.Close()

	lastStatus := ""
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if msg := gjson.GetBytes(line, "error"); msg.Exists() {
			return lastStatus, &pullFailedError{Model: name, Message: msg.String()}
		}
		if status := gjson.GetBytes(line, "status").String(); status != "" {
			lastStatus = status
			pm.upstreamLogger.Debug().Str("model", name).Str("status", status).Msg("pull progress")
		}
	}
	if err := scanner.Err(); err != nil {
		return lastStatus, fmt.Errorf("%w: reading pull progress: %w", ErrUpstreamUnavailable, err)
	}
	return lastStatus, nil
}
