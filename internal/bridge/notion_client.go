package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

type NotionClientOptions struct {
	BaseURL    string
	APIKey     string
	DatabaseID string
	HTTPClient *http.Client
	APIVersion string
	UserAgent  string
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// HTTPNotionPageClient implements PageWriter against the Notion REST API.
// 429 and 5xx responses are retried with bounded exponential backoff,
// honoring Retry-After when Notion sends one.
type HTTPNotionPageClient struct {
	baseURL    string
	apiKey     string
	databaseID string
	httpClient *http.Client
	apiVersion string
	userAgent  string
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

func NewHTTPNotionPageClient(opts NotionClientOptions) *HTTPNotionPageClient {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.notion.com"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	apiVersion := strings.TrimSpace(opts.APIVersion)
	if apiVersion == "" {
		apiVersion = "2022-06-28"
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	baseDelay := opts.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}
	maxDelay := opts.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 2 * time.Second
	}
	return &HTTPNotionPageClient{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(opts.APIKey),
		databaseID: strings.TrimSpace(opts.DatabaseID),
		httpClient: httpClient,
		apiVersion: apiVersion,
		userAgent:  strings.TrimSpace(opts.UserAgent),
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   maxDelay,
	}
}

func (c *HTTPNotionPageClient) CreatePage(ctx context.Context, task TaskSnapshot) (string, error) {
	payload := map[string]any{
		"parent":     map[string]any{"database_id": c.databaseID},
		"properties": taskProperties(task),
	}
	respBody, err := c.do(ctx, http.MethodPost, "/v1/pages", payload)
	if err != nil {
		return "", err
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(respBody, &created); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", fmt.Errorf("notion create returned no page id")
	}
	return created.ID, nil
}

func (c *HTTPNotionPageClient) UpdatePage(ctx context.Context, pageID string, task TaskSnapshot) error {
	_, err := c.do(ctx, http.MethodPatch, "/v1/pages/"+url.PathEscape(pageID), map[string]any{
		"properties": taskProperties(task),
	})
	return err
}

func (c *HTTPNotionPageClient) SetCompletion(ctx context.Context, pageID string, completed bool) error {
	_, err := c.do(ctx, http.MethodPatch, "/v1/pages/"+url.PathEscape(pageID), map[string]any{
		"properties": completionProperties(completed),
	})
	return err
}

func (c *HTTPNotionPageClient) ArchivePage(ctx context.Context, pageID string) error {
	_, err := c.do(ctx, http.MethodPatch, "/v1/pages/"+url.PathEscape(pageID), map[string]any{
		"archived": true,
	})
	return err
}

func (c *HTTPNotionPageClient) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("notion page client is nil")
	}
	if c.apiKey == "" {
		return nil, fmt.Errorf("notion api key is required")
	}
	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	requestURL := c.baseURL + path

	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, requestURL, bytes.NewReader(bodyBytes))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Notion-Version", c.apiVersion)
		if c.userAgent != "" {
			req.Header.Set("User-Agent", c.userAgent)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if attempt < c.maxRetries {
				if waitErr := sleepContext(ctx, c.retryDelay(attempt+1, "")); waitErr != nil {
					return nil, waitErr
				}
				continue
			}
			return nil, err
		}

		respBody, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, readErr
		}
		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			return respBody, nil
		}

		if (resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode >= 500 && resp.StatusCode <= 599)) && attempt < c.maxRetries {
			if waitErr := sleepContext(ctx, c.retryDelay(attempt+1, resp.Header.Get("Retry-After"))); waitErr != nil {
				return nil, waitErr
			}
			continue
		}

		errCode := ""
		errMessage := strings.TrimSpace(string(respBody))
		var parsed map[string]any
		if json.Unmarshal(respBody, &parsed) == nil {
			if code, ok := parsed["code"].(string); ok {
				errCode = code
			}
			if message, ok := parsed["message"].(string); ok && strings.TrimSpace(message) != "" {
				errMessage = message
			}
		}
		if errCode != "" {
			return nil, fmt.Errorf("notion write failed: status=%d code=%s message=%s", resp.StatusCode, errCode, errMessage)
		}
		return nil, fmt.Errorf("notion write failed: status=%d message=%s", resp.StatusCode, errMessage)
	}
}

func (c *HTTPNotionPageClient) retryDelay(attempt int, retryAfterHeader string) time.Duration {
	if retryAfter := parseRetryAfterSeconds(retryAfterHeader); retryAfter > 0 {
		if retryAfter > c.maxDelay {
			return c.maxDelay
		}
		return retryAfter
	}
	delay := c.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.maxDelay {
			return c.maxDelay
		}
	}
	if delay > c.maxDelay {
		return c.maxDelay
	}
	return delay
}

func parseRetryAfterSeconds(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
