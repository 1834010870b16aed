package batch

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// AnalyzeRequest is sent once per item
type AnalyzeRequest struct {
	ItemID              string `json:"itemId"`
	Profile             string `json:"profile"`
	IncludeFilenameTags bool   `json:"includeFilenameTags"`
	AllowAITagging      bool   `json:"allowAiTagging"`
}

// AnalyzeResult carries a warning when the item already had custom state
type AnalyzeResult struct {
	Warning string `json:"warning,omitempty"`
}

// Analyzer is the external per-item analysis service.
// Analyzer 外部分析服务
type Analyzer interface {
	Analyze(ctx context.Context, req AnalyzeRequest) (*AnalyzeResult, error)
	// ListItems returns every item id, used when a start request names none
	ListItems(ctx context.Context) ([]string, error)
}

// HTTPAnalyzer calls the analysis service over JSON/HTTP.
// HTTPAnalyzer 通过 HTTP 调用分析服务
type HTTPAnalyzer struct {
	baseURL string
	client  *http.Client
	token   string
}

// NewHTTPAnalyzer 创建 HTTP 分析客户端
func NewHTTPAnalyzer(baseURL, token string, timeout time.Duration) *HTTPAnalyzer {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &HTTPAnalyzer{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		token:   token,
	}
}

func (a *HTTPAnalyzer) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "analysis service")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errors.Wrap(err, "read analysis response")
	}
	if resp.StatusCode/100 != 2 {
		var e struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(raw, &e)
		msg := e.Error
		if msg == "" {
			msg = e.Message
		}
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		return errors.Errorf("analysis service returned %d: %s", resp.StatusCode, msg)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	return errors.Wrap(json.Unmarshal(raw, out), "decode analysis response")
}

// Analyze POSTs /analyze
func (a *HTTPAnalyzer) Analyze(ctx context.Context, req AnalyzeRequest) (*AnalyzeResult, error) {
	var res AnalyzeResult
	if err := a.do(ctx, http.MethodPost, "/analyze", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ListItems GETs /items, accepting either a bare array or {"items": [...]}
func (a *HTTPAnalyzer) ListItems(ctx context.Context) ([]string, error) {
	var raw json.RawMessage
	if err := a.do(ctx, http.MethodGet, "/items", nil, &raw); err != nil {
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err == nil {
		return ids, nil
	}
	var wrapped struct {
		Items []string `json:"items"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, errors.Wrap(err, "decode item list")
	}
	return wrapped.Items, nil
}
