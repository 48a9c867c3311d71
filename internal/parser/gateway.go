// internal/parser/gateway.go
package parser

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

	"github.com/ThinkInAIXYZ/go-mcp/protocol"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"mcp-calorie-log/internal/metrics"
)

// ErrGatewayUnavailable is returned without calling the gateway while its
// circuit breaker is open or the rate limiter can't admit the call in time.
var ErrGatewayUnavailable = errors.New("llm gateway unavailable")

type GatewayConfig struct {
	ProxyURL          string
	APIKey            string
	Model             string
	GatewayName       string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
}

// GatewayClient asks an LLM gateway for completions through an MCP proxy,
// using a JSON-RPC tools/call of create_completion.
type GatewayClient struct {
	httpClient *http.Client
	url        string
	apiKey     string
	model      string
	breaker    *gobreaker.CircuitBreaker
	limiter    *rate.Limiter
	metrics    *metrics.Metrics
	log        zerolog.Logger
}

func NewGatewayClient(cfg GatewayConfig, m *metrics.Metrics, log zerolog.Logger) *GatewayClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	gatewayName := cfg.GatewayName
	if gatewayName == "" {
		gatewayName = "openrouter-gateway"
	}

	limit := rate.Inf
	burst := cfg.Burst
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
		if burst <= 0 {
			burst = 1
		}
	}

	c := &GatewayClient{
		httpClient: &http.Client{Timeout: timeout},
		url:        fmt.Sprintf("%s/%s", strings.TrimRight(cfg.ProxyURL, "/"), gatewayName),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		limiter:    rate.NewLimiter(limit, burst),
		metrics:    m,
		log:        log.With().Str("component", "gateway").Logger(),
	}

	settings := gobreaker.Settings{
		Name:     "llm-gateway",
		Interval: 60 * time.Second,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	}
	c.breaker = gobreaker.NewCircuitBreaker(settings)
	return c
}

// Complete sends one system+user exchange and returns the model's text.
func (c *GatewayClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: rate limited: %v", ErrGatewayUnavailable, err)
	}

	out, err := c.breaker.Execute(func() (interface{}, error) {
		start := time.Now()
		text, err := c.callGateway(ctx, "create_completion", map[string]interface{}{
			"model":         c.model,
			"system_prompt": req.SystemPrompt,
			"messages": []map[string]interface{}{
				{
					"role":    "user",
					"content": req.UserPrompt,
				},
			},
			"max_tokens":  req.MaxTokens,
			"temperature": req.Temperature,
		})
		c.metrics.ObserveGatewayCall(time.Since(start).Seconds())
		return text, err
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

type rpcRequest struct {
	JSONRPC string                   `json:"jsonrpc"`
	ID      int                      `json:"id"`
	Method  string                   `json:"method"`
	Params  protocol.CallToolRequest `json:"params"`
}

type rpcResponse struct {
	Result *struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *GatewayClient) callGateway(ctx context.Context, toolName string, args map[string]interface{}) (string, error) {
	jsonData, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "tools/call",
		Params: protocol.CallToolRequest{
			Name:      toolName,
			Arguments: args,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if err != nil {
			return "", fmt.Errorf("request failed with status %d and couldn't read body: %v", resp.StatusCode, err)
		}
		return "", fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return "", fmt.Errorf("gateway error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}
	if rpcResp.Result == nil || len(rpcResp.Result.Content) == 0 {
		return "", errors.New("unexpected response format")
	}
	if rpcResp.Result.IsError {
		return "", fmt.Errorf("gateway tool error: %s", rpcResp.Result.Content[0].Text)
	}
	return rpcResp.Result.Content[0].Text, nil
}
