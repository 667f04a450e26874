// Package gemini talks to the Gemini generateContent REST endpoint. It covers quiz
// generation, ELI5 simplification and the topic-scoped tutor chat.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"quizcraft-service/internal/domain"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com"
	DefaultModel   = "gemini-2.0-flash"
)

// Config configures a Client. Empty fields fall back to the defaults above.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Client implements app.Generator, app.Simplifier and app.Tutor.
type Client struct {
	apiKey  string
	baseURL string
	model   string
	http    *http.Client
}

// New returns nil when no key is configured so that callers can leave the AI
// collaborators unset.
func New(cfg Config) *Client {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		http:    &http.Client{Timeout: cfg.Timeout},
	}
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents          []content `json:"contents"`
	SystemInstruction *content  `json:"systemInstruction,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// generate posts one generateContent call and returns the first candidate's text, trimmed.
func (c *Client) generate(ctx context.Context, req generateRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, url.PathEscape(c.model))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("gemini request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return "", fmt.Errorf("gemini api error: %d %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var payload generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}
	if len(payload.Candidates) == 0 || len(payload.Candidates[0].Content.Parts) == 0 {
		return "", nil
	}
	return strings.TrimSpace(payload.Candidates[0].Content.Parts[0].Text), nil
}

func userText(text string) []content {
	return []content{{Role: "user", Parts: []part{{Text: text}}}}
}

var (
	errEmptySimplification = errors.New("AI returned an empty simplified explanation")
	errNoUserTurn          = errors.New("tutor conversation has no user message")
)

// Simplify rewrites text as if explaining to a five-year-old.
func (c *Client) Simplify(ctx context.Context, text string) (string, error) {
	out, err := c.generate(ctx, generateRequest{Contents: userText(simplifyPrompt(text))})
	if err != nil {
		return "", err
	}
	if out == "" {
		return "", errEmptySimplification
	}
	return out, nil
}

// Reply answers the last user turn. The greeting and system notices shown in the
// conversation are not part of the model history.
func (c *Client) Reply(ctx context.Context, req domain.TutorRequest) (string, error) {
	var contents []content
	for _, m := range req.History {
		switch m.Role {
		case domain.RoleUser:
			contents = append(contents, content{Role: "user", Parts: []part{{Text: m.Text}}})
		case domain.RoleModel:
			if len(contents) == 0 {
				continue
			}
			contents = append(contents, content{Role: "model", Parts: []part{{Text: m.Text}}})
		}
	}
	if len(contents) == 0 {
		return "", errNoUserTurn
	}
	return c.generate(ctx, generateRequest{
		Contents:          contents,
		SystemInstruction: &content{Parts: []part{{Text: tutorInstruction(req.Topic, req.Mode)}}},
	})
}
