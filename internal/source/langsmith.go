package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ogulcanaydogan/llm-run-stats/pkg/types"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

const (
	DefaultEndpoint = "https://api.smith.langchain.com"
	DefaultPageSize = 100
)

// LangSmith reads projects and root runs from the LangSmith REST API.
type LangSmith struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      RetryPolicy
	pageSize   int
	log        *slog.Logger
}

type Option func(*LangSmith)

func WithHTTPClient(h *http.Client) Option {
	return func(c *LangSmith) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithRateLimit paces requests; rps <= 0 disables pacing.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *LangSmith) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func WithRetry(p RetryPolicy) Option {
	return func(c *LangSmith) { c.retry = p }
}

func WithPageSize(n int) Option {
	return func(c *LangSmith) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *LangSmith) {
		if l != nil {
			c.log = l
		}
	}
}

func NewLangSmith(endpoint, apiKey string, opts ...Option) (*LangSmith, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("langsmith api key is required")
	}
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "https://" + endpoint
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("invalid langsmith endpoint: %w", err)
	}
	c := &LangSmith{
		endpoint:   strings.TrimRight(endpoint, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(5), 1),
		retry:      DefaultRetryPolicy(),
		pageSize:   DefaultPageSize,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ReadProject resolves a project (tracing session) by name. A value that is
// already a UUID is taken as the project ID without a lookup.
func (c *LangSmith) ReadProject(ctx context.Context, name string) (types.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return types.Project{}, unavailable("read project", fmt.Errorf("project name is empty"))
	}
	if id, err := uuid.Parse(name); err == nil {
		return types.Project{ID: id.String(), Name: name}, nil
	}

	q := url.Values{}
	q.Set("name", name)
	q.Set("limit", "1")
	var sessions []types.Project
	if err := c.do(ctx, http.MethodGet, "/api/v1/sessions?"+q.Encode(), nil, &sessions); err != nil {
		return types.Project{}, unavailable("read project "+name, err)
	}
	for _, s := range sessions {
		if s.Name != name {
			continue
		}
		if _, err := uuid.Parse(s.ID); err != nil {
			return types.Project{}, unavailable("read project "+name, fmt.Errorf("unexpected project id %q", s.ID))
		}
		return s, nil
	}
	return types.Project{}, unavailable("read project "+name, fmt.Errorf("project not found"))
}

type runsQuery struct {
	Session []string `json:"session"`
	IsRoot  bool     `json:"is_root"`
	Limit   int      `json:"limit"`
	Cursor  string   `json:"cursor,omitempty"`
}

type runsPage struct {
	Runs    []json.RawMessage `json:"runs"`
	Cursors struct {
		Next *string `json:"next"`
	} `json:"cursors"`
}

// Runs streams the project's root runs page by page, following cursors.
// The sequence is single-use; a failed page yields a SourceUnavailableError
// and ends the stream.
func (c *LangSmith) Runs(ctx context.Context, projectID string) iter.Seq2[types.Run, error] {
	return func(yield func(types.Run, error) bool) {
		cursor := ""
		for page := 1; ; page++ {
			var resp runsPage
			body := runsQuery{Session: []string{projectID}, IsRoot: true, Limit: c.pageSize, Cursor: cursor}
			if err := c.do(ctx, http.MethodPost, "/api/v1/runs/query", body, &resp); err != nil {
				yield(types.Run{}, unavailable(fmt.Sprintf("list runs page %d", page), err))
				return
			}
			c.log.Debug("fetched runs page", "page", page, "runs", len(resp.Runs))
			for _, raw := range resp.Runs {
				if !yield(decodeRun(raw), nil) {
					return
				}
			}
			if resp.Cursors.Next == nil || *resp.Cursors.Next == "" || len(resp.Runs) == 0 {
				return
			}
			cursor = *resp.Cursors.Next
		}
	}
}

// decodeRun never fails; a run that does not decode keeps its ID and the
// decode error so the classifier can reject it with the real reason.
func decodeRun(raw []byte) types.Run {
	var r types.Run
	if err := json.Unmarshal(raw, &r); err != nil {
		return types.Run{ID: gjson.GetBytes(raw, "id").String(), DecodeError: err.Error()}
	}
	return r
}

func (c *LangSmith) do(ctx context.Context, method, path string, body, v any) error {
	var payload []byte
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		payload = raw
	}
	return c.retry.Do(ctx, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return permanent(err)
		}
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reader)
		if err != nil {
			return permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("x-api-key", c.apiKey)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.log.Debug("request failed", "method", method, "path", path, "err", err)
			return fmt.Errorf("perform request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= http.StatusBadRequest {
			apiErr := APIError{Status: resp.StatusCode, Message: extractError(resp.Body)}
			c.log.Debug("request rejected", "method", method, "path", path, "status", resp.StatusCode)
			return apiErr
		}
		if v == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			return permanent(fmt.Errorf("decode response: %w", err))
		}
		return nil
	})
}

func extractError(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 64<<10))
	if err != nil || len(raw) == 0 {
		return ""
	}
	if gjson.ValidBytes(raw) {
		if d := gjson.GetBytes(raw, "detail"); d.Exists() {
			return d.String()
		}
		if m := gjson.GetBytes(raw, "message"); m.Exists() {
			return m.String()
		}
	}
	return strings.TrimSpace(string(raw))
}
