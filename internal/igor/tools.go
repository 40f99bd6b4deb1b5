// Galvanic - Distributed Test Orchestration Substrate
// Copyright 2026 Henry C. (hclerval)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hclerval/galvanic

package igor

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hclerval/galvanic/internal/logging"
	"github.com/hclerval/galvanic/internal/models"
)

// toolCatalogTTL caps how long a fetched tool list is trusted when no
// TTL is configured.
const toolCatalogTTL = 30 * time.Second

// ErrNoMatchingTool means no catalog entry fits the failure pattern.
var ErrNoMatchingTool = errors.New("no helper tool matches failure")

// Requester sends one request toward the executor and awaits the
// correlated response. The engine implements it over the hub client and
// the pending map.
type Requester interface {
	Request(msgType string, payload map[string]interface{}, timeout time.Duration) (*models.Message, error)
}

// ToolCatalog caches the executor's helper-tool list and matches tools to
// step failures for recovery attempts.
type ToolCatalog struct {
	req Requester

	// TTL overrides the default cache lifetime when positive.
	TTL time.Duration

	mu      sync.Mutex
	tools   []models.ToolDescriptor
	fetched time.Time
}

// NewToolCatalog creates an empty catalog backed by the requester.
func NewToolCatalog(req Requester) *ToolCatalog {
	return &ToolCatalog{req: req}
}

// Tools returns the executor's helper tools, refetching after the cache
// TTL. A fetch failure with a warm cache serves the stale list.
func (tc *ToolCatalog) Tools() ([]models.ToolDescriptor, error) {
	ttl := tc.TTL
	if ttl <= 0 {
		ttl = toolCatalogTTL
	}
	tc.mu.Lock()
	if time.Since(tc.fetched) < ttl && tc.tools != nil {
		cached := tc.tools
		tc.mu.Unlock()
		return cached, nil
	}
	tc.mu.Unlock()

	resp, err := tc.req.Request(models.TypeToolList, nil, 5*time.Second)
	if err != nil {
		tc.mu.Lock()
		stale := tc.tools
		tc.mu.Unlock()
		if stale != nil {
			logging.Debug().Err(err).Msg("tool list refresh failed, serving stale catalog")
			return stale, nil
		}
		return nil, fmt.Errorf("fetch tool catalog: %w", err)
	}

	tools := parseToolList(resp.Payload)
	tc.mu.Lock()
	tc.tools = tools
	tc.fetched = time.Now()
	tc.mu.Unlock()
	return tools, nil
}

// Invalidate drops the cache, forcing the next Tools call to refetch.
func (tc *ToolCatalog) Invalidate() {
	tc.mu.Lock()
	tc.tools = nil
	tc.fetched = time.Time{}
	tc.mu.Unlock()
}

// MatchTool picks the catalog entry suited to a failure message. Selector
// misses want finder tools, timeouts want wait tools, and so on.
func (tc *ToolCatalog) MatchTool(failure string) (models.ToolDescriptor, error) {
	keywords := failureKeywords(failure)
	if keywords == nil {
		return models.ToolDescriptor{}, ErrNoMatchingTool
	}

	tools, err := tc.Tools()
	if err != nil {
		return models.ToolDescriptor{}, err
	}
	for _, tool := range tools {
		haystack := strings.ToLower(tool.Name + " " + tool.Description)
		for _, kw := range keywords {
			if strings.Contains(haystack, kw) {
				return tool, nil
			}
		}
	}
	return models.ToolDescriptor{}, ErrNoMatchingTool
}

// Invoke runs a helper tool against a failed step. When the tool located a
// working selector it is returned; empty means the tool had nothing better.
func (tc *ToolCatalog) Invoke(tool models.ToolDescriptor, selector, hint, action, failure string) (string, error) {
	resp, err := tc.req.Request(models.TypeToolInvoke, map[string]interface{}{
		"tool":     tool.Name,
		"selector": selector,
		"hint":     hint,
		"action":   action,
		"error":    failure,
	}, 10*time.Second)
	if err != nil {
		return "", fmt.Errorf("invoke %s: %w", tool.Name, err)
	}
	if resp.Type == models.TypeToolError {
		return "", fmt.Errorf("tool %s failed: %v", tool.Name, resp.Payload["error"])
	}
	found, _ := resp.Payload["foundSelector"].(string)
	return found, nil
}

// failureKeywords classifies a failure message into tool-name keywords.
// nil means the failure has no known recovery family.
func failureKeywords(failure string) []string {
	lower := strings.ToLower(failure)
	switch {
	case containsAny(lower, "not found", "no such element", "selector"):
		return []string{"selector", "find"}
	case containsAny(lower, "timeout", "timed out", "deadline"):
		return []string{"wait", "timeout"}
	case containsAny(lower, "popup", "modal", "dialog", "overlay"):
		return []string{"popup", "modal", "dialog"}
	case containsAny(lower, "dropdown", "option", "select"):
		return []string{"dropdown", "select"}
	}
	return nil
}

func parseToolList(payload map[string]interface{}) []models.ToolDescriptor {
	raw, ok := payload["tools"].([]interface{})
	if !ok {
		return nil
	}
	var tools []models.ToolDescriptor
	for _, item := range raw {
		entry, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		td := models.ToolDescriptor{}
		td.Name, _ = entry["name"].(string)
		td.Description, _ = entry["description"].(string)
		if td.Name != "" {
			tools = append(tools, td)
		}
	}
	return tools
}
