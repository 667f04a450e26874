// Package pexels picks a random curated photo for image questions.
package pexels

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	DefaultBaseURL = "https://api.pexels.com/v1"

	// curated has no random endpoint; pick a page from the first fifty.
	maxPage = 50
	perPage = 10
)

type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// Client implements app.ImageSource.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client

	mu  sync.Mutex
	rnd *rand.Rand
}

func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		apiKey:  strings.TrimSpace(cfg.APIKey),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

type curatedResponse struct {
	Photos []struct {
		Src struct {
			Large string `json:"large"`
		} `json:"src"`
	} `json:"photos"`
}

// RandomImage returns a large-size photo URL, or "" when no key is configured or
// the page came back empty.
func (c *Client) RandomImage(ctx context.Context) (string, error) {
	if c.apiKey == "" {
		return "", nil
	}
	q := url.Values{}
	q.Set("page", strconv.Itoa(c.intn(maxPage)+1))
	q.Set("per_page", strconv.Itoa(perPage))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/curated?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("pexels request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return "", fmt.Errorf("pexels api request failed: %d %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var payload curatedResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode pexels response: %w", err)
	}
	if len(payload.Photos) == 0 {
		return "", nil
	}
	return payload.Photos[c.intn(len(payload.Photos))].Src.Large, nil
}

func (c *Client) intn(n int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rnd.Intn(n)
}
