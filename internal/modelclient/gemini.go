// internal/modelclient/gemini.go

// Package modelclient talks to the Gemini generateContent REST API. The
// client is a pure request/response mapper: it classifies upstream failures
// as transient or permanent but never retries, leaving retry policy to the
// orchestrator.
package modelclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/operant/api/schemas"
	"github.com/xkilldash9x/operant/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// UpstreamError reports a non-200 response from the model API. Transient
// marks failures worth retrying (overload, rate limit, internal error).
type UpstreamError struct {
	StatusCode int
	Transient  bool
	Body       string
}

func (e *UpstreamError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("gemini API error: status %d (%s): %s", e.StatusCode, kind, e.Body)
}

// IsTransient reports whether err is a retryable upstream failure. Network
// errors count as transient; decode and classification failures do not.
func IsTransient(err error) bool {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Transient
	}
	return false
}

// GeminiClient implements schemas.ModelClient over plain HTTP.
type GeminiClient struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// -- Wire payload (request side; responses decode into schemas directly) --

type generationConfig struct {
	Temperature    float64         `json:"temperature"`
	ThinkingConfig *thinkingConfig `json:"thinkingConfig,omitempty"`
}

type thinkingConfig struct {
	ThinkingLevel   string `json:"thinkingLevel,omitempty"`
	IncludeThoughts bool   `json:"includeThoughts"`
}

type systemInstruction struct {
	Parts []schemas.Part `json:"parts"`
}

type toolsEnvelope struct {
	FunctionDeclarations []schemas.ToolDeclaration `json:"functionDeclarations"`
}

type requestPayload struct {
	Contents          []schemas.Turn     `json:"contents"`
	Tools             []toolsEnvelope    `json:"tools,omitempty"`
	SystemInstruction *systemInstruction `json:"systemInstruction,omitempty"`
	GenerationConfig  generationConfig   `json:"generationConfig"`
}

// NewGeminiClient initializes the client.
func NewGeminiClient(cfg config.ModelConfig, logger *zap.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API Key is required")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf(
			"https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent", cfg.Model)
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerMinute/60.0), 1)
	}

	return &GeminiClient{
		apiKey:   cfg.APIKey,
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: cfg.APITimeout,
		},
		limiter: limiter,
		logger:  logger.Named("model_client.gemini"),
	}, nil
}

// Generate performs exactly one generateContent call. History is marshaled as
// stored, so replayed thought signatures reach the wire untouched.
func (c *GeminiClient) Generate(ctx context.Context, req schemas.GenerateRequest) (*schemas.ModelResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}
	}

	payload := requestPayload{
		Contents: req.History,
		GenerationConfig: generationConfig{
			Temperature: req.Temperature,
		},
	}
	if req.ThinkingLevel != "" || req.IncludeThoughts {
		payload.GenerationConfig.ThinkingConfig = &thinkingConfig{
			ThinkingLevel:   req.ThinkingLevel,
			IncludeThoughts: req.IncludeThoughts,
		}
	}
	if len(req.Tools) > 0 {
		payload.Tools = []toolsEnvelope{{FunctionDeclarations: req.Tools}}
	}
	if req.SystemInstruction != "" {
		payload.SystemInstruction = &systemInstruction{
			Parts: []schemas.Part{schemas.TextPart(req.SystemInstruction)},
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	startTime := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &UpstreamError{Transient: true, Body: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.classifyAPIError(resp.StatusCode, respBody)
	}

	var modelResp schemas.ModelResponse
	if err := json.Unmarshal(respBody, &modelResp); err != nil {
		return nil, fmt.Errorf("failed to decode response payload: %w", err)
	}

	fields := []zap.Field{zap.Duration("duration", time.Since(startTime))}
	if modelResp.UsageMetadata != nil {
		fields = append(fields,
			zap.Int("prompt_tokens", modelResp.UsageMetadata.PromptTokenCount),
			zap.Int("completion_tokens", modelResp.UsageMetadata.CandidatesTokenCount),
			zap.Int("total_tokens", modelResp.UsageMetadata.TotalTokenCount),
		)
	}
	c.logger.Info("Model generation complete (Gemini)", fields...)

	return &modelResp, nil
}

func (c *GeminiClient) classifyAPIError(statusCode int, body []byte) error {
	snippet := string(body)
	if len(snippet) > 512 {
		snippet = snippet[:512]
	}
	c.logger.Error("Gemini API returned error status",
		zap.Int("status", statusCode), zap.String("response", snippet))

	transient := false
	switch statusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusInternalServerError:
		transient = true
	}
	return &UpstreamError{StatusCode: statusCode, Transient: transient, Body: snippet}
}
