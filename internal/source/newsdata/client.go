// Package newsdata implements news.Source against the NewsData.io latest
// news API.
package newsdata

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/newsworthy/news-agent/internal/news"
)

const defaultBaseURL = "https://newsdata.io/api/1/news"

// Config controls client behavior.
type Config struct {
	// BaseURL overrides the API endpoint, mainly for tests.
	BaseURL string
	APIKey  string
	// PageSize is the per-page article count requested from the API.
	PageSize int
	// MaxPages bounds pagination so a broad topic cannot fetch forever.
	MaxPages int
	Timeout  time.Duration
}

// Client fetches articles from NewsData.io with cursor pagination and
// link-based deduplication.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

var _ news.Source = (*Client)(nil)

// New builds a Client.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 10
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 10
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
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

// apiResponse is the subset of the NewsData.io envelope we consume. The
// results field is a list on success but an object carrying a message on
// error, so it stays raw until the status is known.
type apiResponse struct {
	Status   string          `json:"status"`
	Results  json.RawMessage `json:"results"`
	NextPage string          `json:"nextPage"`
}

type apiError struct {
	Message string `json:"message"`
}

type apiArticle struct {
	ArticleID   string   `json:"article_id"`
	Title       string   `json:"title"`
	Link        string   `json:"link"`
	Description string   `json:"description"`
	SourceName  string   `json:"source_name"`
	PubDate     string   `json:"pubDate"`
	Keywords    []string `json:"keywords"`
	Category    []string `json:"category"`
}

// Fetch pulls pages until the cursor runs out, a page comes back empty, or
// the page bound is hit. Articles sharing a link with an earlier one are
// dropped.
func (c *Client) Fetch(ctx context.Context, params news.SearchParams) ([]news.Article, error) {
	if c.cfg.APIKey == "" {
		return nil, news.Errorf(news.KindAuth, "newsdata api key is not configured")
	}

	var (
		out      []news.Article
		seen     = make(map[string]struct{})
		nextPage string
	)
	for page := 0; page < c.cfg.MaxPages; page++ {
		resp, err := c.fetchPage(ctx, params, nextPage)
		if err != nil {
			return nil, err
		}

		var raw []apiArticle
		if len(resp.Results) > 0 {
			if err := json.Unmarshal(resp.Results, &raw); err != nil {
				return nil, news.NewError(news.KindUpstream, "decode newsdata results", err)
			}
		}
		if len(raw) == 0 {
			break
		}
		for _, a := range raw {
			if a.Link != "" {
				if _, dup := seen[a.Link]; dup {
					continue
				}
				seen[a.Link] = struct{}{}
			}
			out = append(out, toArticle(a))
		}
		c.logger.Debug("fetched newsdata page",
			zap.Int("page", page+1),
			zap.Int("articles", len(raw)),
			zap.Int("total", len(out)),
		)

		if resp.NextPage == "" {
			break
		}
		nextPage = resp.NextPage
	}
	return out, nil
}

func (c *Client) fetchPage(ctx context.Context, params news.SearchParams, cursor string) (apiResponse, error) {
	q := url.Values{}
	q.Set("apikey", c.cfg.APIKey)
	q.Set("q", params.Topic)
	q.Set("size", strconv.Itoa(c.cfg.PageSize))
	q.Set("prioritydomain", "top")
	if params.Language != "" {
		q.Set("language", params.Language)
	}
	if params.Country != "" {
		q.Set("country", params.Country)
	}
	if params.Category != "" {
		q.Set("category", params.Category)
	}
	if cursor != "" {
		q.Set("page", cursor)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return apiResponse{}, news.NewError(news.KindUpstream, "build newsdata request", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apiResponse{}, news.NewError(news.KindUpstream, "call newsdata", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return apiResponse{}, news.NewError(news.KindUpstream, "read newsdata response", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return apiResponse{}, news.Errorf(news.KindAuth, "newsdata rejected credentials: %s", resp.Status)
	case resp.StatusCode == http.StatusTooManyRequests:
		return apiResponse{}, news.Errorf(news.KindRateLimited, "newsdata rate limit exceeded")
	case resp.StatusCode >= http.StatusBadRequest:
		return apiResponse{}, news.Errorf(news.KindUpstream, "newsdata error %s: %s",
			resp.Status, strings.TrimSpace(string(truncate(body, 512))))
	}

	var decoded apiResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return apiResponse{}, news.NewError(news.KindUpstream, "decode newsdata envelope", err)
	}
	if decoded.Status == "error" {
		var apiErr apiError
		_ = json.Unmarshal(decoded.Results, &apiErr)
		if apiErr.Message == "" {
			apiErr.Message = "unknown error"
		}
		return apiResponse{}, news.Errorf(news.KindUpstream, "newsdata api error: %s", apiErr.Message)
	}
	return decoded, nil
}

func toArticle(a apiArticle) news.Article {
	art := news.Article{
		ID:          a.ArticleID,
		Title:       a.Title,
		Link:        a.Link,
		Description: a.Description,
		SourceName:  a.SourceName,
		PublishedAt: a.PubDate,
		Keywords:    a.Keywords,
		Categories:  a.Category,
	}
	if art.ID == "" {
		art.ID = a.Link
	}
	return art
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
