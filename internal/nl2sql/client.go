// Package nl2sql talks to an OpenAI-compatible chat completion endpoint to
// turn questions into SQL and results into plain-language explanations.
//
// Generated SQL is untrusted text: callers must pass it through
// guard.Validate before executing it.
package nl2sql

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

	"github.com/koustreak/querygate/internal/database"
	"github.com/koustreak/querygate/internal/errs"
	"github.com/koustreak/querygate/internal/executor"
	"github.com/koustreak/querygate/internal/logger"
	"github.com/koustreak/querygate/internal/observability"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-4o-mini"

	// SampleRows is how many leading rows Explain shows the model.
	SampleRows = 10

	// maxResponseBytes bounds how much of a response body is read.
	maxResponseBytes = 4 << 20
)

type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration

	// Dialect selects the SQL flavour requested from the model.
	Dialect database.Dialect
}

// Client implements question-to-SQL generation and result explanation.
// It is safe for concurrent use.
type Client struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	dialect     database.Dialect
	http        *http.Client
}

// New validates cfg and returns a Client.
func New(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errs.New(errs.ErrKindConfiguration, "OPENAI_API_KEY is not set")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:     baseURL,
		apiKey:      apiKey,
		model:       model,
		temperature: cfg.Temperature,
		dialect:     cfg.Dialect,
		http:        &http.Client{Timeout: timeout},
	}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// Generate asks the model for one read-only query answering question
// against the described schema.
func (c *Client) Generate(ctx context.Context, question, schemaText string) (string, error) {
	start := time.Now()
	system, user := generatePrompts(c.dialect, question, schemaText)

	content, err := c.complete(ctx, system, user)
	if err == nil {
		content = stripMarkdownSQL(content)
		if content == "" {
			err = errs.New(errs.ErrKindUpstream, "model returned empty SQL")
		}
	}

	observability.ObserveUpstream("generate", err)
	logger.FromContext(ctx).Stage("generate", time.Since(start), err, map[string]interface{}{"model": c.model})
	if err != nil {
		return "", err
	}
	return content, nil
}

// Explain asks the model to describe result for a beginner. Only the first
// SampleRows rows are sent, together with the total count and whether the
// row cap was hit.
func (c *Client) Explain(ctx context.Context, question, sql string, result *executor.ResultSet) (string, error) {
	if result == nil {
		return "", errs.New(errs.ErrKindInvalidInput, "result is required")
	}
	start := time.Now()

	system, user, err := explainPrompts(question, sql, result)
	var content string
	if err == nil {
		content, err = c.complete(ctx, system, user)
	}

	observability.ObserveUpstream("explain", err)
	logger.FromContext(ctx).Stage("explain", time.Since(start), err, map[string]interface{}{"model": c.model})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(content), nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) complete(ctx context.Context, system, user string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: c.temperature,
	})
	if err != nil {
		return "", errs.Wrap(errs.ErrKindUpstream, "marshal chat payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", errs.Wrap(errs.ErrKindConfiguration, "build chat request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil || isTimeout(err) {
			return "", errs.Wrap(errs.ErrKindTimeout, "chat completion timed out", err)
		}
		return "", errs.Wrap(errs.ErrKindUpstream, "request chat completion", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", errs.Wrap(errs.ErrKindUpstream, "read chat response body", err)
	}

	var parsed chatResponse
	decodeErr := json.Unmarshal(raw, &parsed)

	if resp.StatusCode >= 400 {
		detail := strings.TrimSpace(string(raw))
		if decodeErr == nil && parsed.Error != nil && parsed.Error.Message != "" {
			detail = parsed.Error.Message
		}
		return "", errs.New(errs.ErrKindUpstream,
			fmt.Sprintf("chat completion failed status=%d: %s", resp.StatusCode, detail))
	}
	if decodeErr != nil {
		return "", errs.Wrap(errs.ErrKindUpstream, "decode chat completion response", decodeErr)
	}
	if len(parsed.Choices) == 0 {
		return "", errs.New(errs.ErrKindUpstream, "empty chat completion choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

// stripMarkdownSQL removes a surrounding code fence the model may add
// despite being told not to.
func stripMarkdownSQL(value string) string {
	trimmed := strings.TrimSpace(value)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if nl := strings.IndexByte(trimmed, '\n'); nl >= 0 {
		tag := strings.TrimSpace(trimmed[:nl])
		if !strings.ContainsAny(tag, " \t") && len(tag) <= 16 {
			trimmed = trimmed[nl+1:]
		}
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
