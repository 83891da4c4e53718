package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/blackwell-systems/envstate/internal/state"
)

var httpClient = &http.Client{Timeout: 60 * time.Second}

// Request is a free-text installation request plus the detected system.
type Request struct {
	Text   string                 `json:"request"`
	System state.SystemDescriptor `json:"system"`
}

// Analysis is the advisory service's answer to a Request.
type Analysis struct {
	Dependencies []Dependency `json:"dependencies"`
	Warnings     []string     `json:"warnings,omitempty"`
}

// PlanRecord is an ordered uninstall plan for one package.
type PlanRecord struct {
	Package       string   `json:"package"`
	Commands      []string `json:"commands"`
	VerifyCommand string   `json:"verify_command,omitempty"`
	Warnings      []string `json:"warnings,omitempty"`
	Fallback      bool     `json:"fallback,omitempty"`
}

// Service is the external advisory collaborator.
type Service interface {
	Analyze(ctx context.Context, req Request) (*Analysis, error)
	UninstallPlan(ctx context.Context, packages []state.PackageRecord, sys state.SystemDescriptor) ([]PlanRecord, error)
}

// ServiceError carries the raw failure reported by the advisory service.
type ServiceError struct {
	StatusCode int
	Message    string
}

func (e *ServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("advisory service failed (status %d): %s", e.StatusCode, e.Message)
	}
	return "advisory service failed: " + e.Message
}

// IsServiceError reports whether err came from the advisory service.
func IsServiceError(err error) bool {
	var se *ServiceError
	return errors.As(err, &se)
}

// HTTPClient talks to an advisory service over JSON/HTTP.
type HTTPClient struct {
	endpoint string
	apiKey   string
	model    string
}

// NewHTTPClient returns a client for endpoint. apiKey may be empty.
func NewHTTPClient(endpoint, apiKey, model string) *HTTPClient {
	return &HTTPClient{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		model:    model,
	}
}

// Analyze posts the request to /analyze and validates the returned
// dependencies.
func (c *HTTPClient) Analyze(ctx context.Context, req Request) (*Analysis, error) {
	var out Analysis
	body := map[string]any{
		"request": req.Text,
		"system":  req.System,
	}
	if err := c.post(ctx, "/analyze", body, &out); err != nil {
		return nil, err
	}
	if err := ValidateAll(out.Dependencies); err != nil {
		return nil, &ServiceError{Message: err.Error()}
	}
	return &out, nil
}

// UninstallPlan posts the packages to /uninstall-plan.
func (c *HTTPClient) UninstallPlan(ctx context.Context, packages []state.PackageRecord, sys state.SystemDescriptor) ([]PlanRecord, error) {
	var out struct {
		Plans []PlanRecord `json:"plans"`
	}
	body := map[string]any{
		"packages": packages,
		"system":   sys,
	}
	if err := c.post(ctx, "/uninstall-plan", body, &out); err != nil {
		return nil, err
	}
	return out.Plans, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, body any, out any) error {
	if c.endpoint == "" {
		return &ServiceError{Message: "no advisory endpoint configured"}
	}
	if c.model != "" {
		if m, ok := body.(map[string]any); ok {
			m["model"] = c.model
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode advisory request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build advisory request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return &ServiceError{Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return &ServiceError{StatusCode: resp.StatusCode, Message: err.Error()}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &ServiceError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &ServiceError{StatusCode: resp.StatusCode, Message: "malformed response: " + err.Error()}
	}
	return nil
}
