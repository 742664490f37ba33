// Package openai implements news.Classifier against an OpenAI-compatible
// chat completions API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/newsworthy/news-agent/internal/news"
)

const defaultEndpoint = "https://api.openai.com/v1/chat/completions"

// Config controls client behavior.
type Config struct {
	// Endpoint overrides the chat completions URL, mainly for tests and
	// Azure-style deployments.
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// Client labels articles by asking the model for a single JSON object per
// article. Calls are independent, so the orchestrator may run them
// concurrently.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

var _ news.Classifier = (*Client)(nil)

// New builds a Client.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type labelPayload struct {
	Relevance string `json:"relevance"`
	Reasoning string `json:"reasoning"`
}

// Classify sends one article to the model and parses the JSON verdict out
// of its reply. A reply that cannot be parsed into a known label is a
// malformed_response failure scoped to this article.
func (c *Client) Classify(ctx context.Context, params news.SearchParams, article news.Article) (news.Classification, error) {
	if c.cfg.APIKey == "" {
		return news.Classification{}, news.Errorf(news.KindAuth, "openai api key is not configured")
	}

	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt(params)},
			{Role: "user", Content: userPrompt(params.Topic, article)},
		},
		Temperature: 0.3,
		MaxTokens:   4000,
	})
	if err != nil {
		return news.Classification{}, news.NewError(news.KindUpstream, "marshal chat request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return news.Classification{}, news.NewError(news.KindUpstream, "build chat request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return news.Classification{}, news.NewError(news.KindUpstream, "call openai", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return news.Classification{}, news.NewError(news.KindUpstream, "read openai response", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return news.Classification{}, news.Errorf(news.KindAuth, "openai rejected credentials: %s", resp.Status)
	case resp.StatusCode == http.StatusTooManyRequests:
		return news.Classification{}, news.Errorf(news.KindRateLimited, "openai rate limit exceeded")
	case resp.StatusCode >= http.StatusBadRequest:
		return news.Classification{}, news.Errorf(news.KindUpstream, "openai error %s: %s",
			resp.Status, strings.TrimSpace(string(raw[:min(len(raw), 512)])))
	}

	var decoded chatResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return news.Classification{}, news.NewError(news.KindUpstream, "decode openai envelope", err)
	}
	if len(decoded.Choices) == 0 || strings.TrimSpace(decoded.Choices[0].Message.Content) == "" {
		return news.Classification{}, news.Errorf(news.KindMalformedResponse, "empty model reply")
	}
	return parseVerdict(decoded.Choices[0].Message.Content)
}

func systemPrompt(params news.SearchParams) string {
	extra := ""
	if params.ExtraTopics != "" {
		extra = " Additional topics: " + params.ExtraTopics
	}
	return fmt.Sprintf(`You are a news analyst for %[1]s. Analyze the article and classify its relevance.%[2]s

Classification:
- "Very Relevant": in-depth information about %[1]s, new developments, breakthroughs
- "Relevant": mention of %[1]s in relevant context, but not the main topic
- "Not Relevant": little to no connection to %[1]s

Reply with a single JSON object:
{"relevance": "Very Relevant", "reasoning": "..."}`, params.Topic, extra)
}

func userPrompt(topic string, a news.Article) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Classify this article for the topic %q:\n\n", topic)
	fmt.Fprintf(&b, "Title: %s\n", a.Title)
	fmt.Fprintf(&b, "Link: %s\n", a.Link)
	fmt.Fprintf(&b, "Description: %s\n", a.Description)
	fmt.Fprintf(&b, "Keywords: %s\n", strings.Join(a.Keywords, ", "))
	fmt.Fprintf(&b, "Category: %s\n", strings.Join(a.Categories, ", "))
	return b.String()
}

// Models wrap JSON in prose or markdown fences, so the object is regexed
// out before decoding.
var jsonObjectRE = regexp.MustCompile(`(?s)\{.*\}`)

func parseVerdict(content string) (news.Classification, error) {
	match := jsonObjectRE.FindString(content)
	if match == "" {
		match = strings.TrimSpace(content)
	}
	var payload labelPayload
	if err := json.Unmarshal([]byte(match), &payload); err != nil {
		return news.Classification{}, news.NewError(news.KindMalformedResponse, "model reply is not valid JSON", err)
	}
	relevance := news.Relevance(strings.TrimSpace(payload.Relevance))
	switch relevance {
	case news.RelevanceHigh, news.RelevanceMid, news.RelevanceLow:
	default:
		return news.Classification{}, news.Errorf(news.KindMalformedResponse, "unknown relevance label %q", payload.Relevance)
	}
	return news.Classification{Relevance: relevance, Reasoning: payload.Reasoning}, nil
}
