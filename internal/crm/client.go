package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"example.com/signups/internal/domain"
)

const searchPath = "/crm/v3/objects/contacts/search"

type ClientConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client calls the contact search endpoint with a bearer credential.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(cfg ClientConfig, httpClient *http.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		httpClient: httpClient,
		logger:     logger.With("component", "crm"),
	}
}

// SearchContacts fetches one page of contacts created inside q.Window.
func (c *Client) SearchContacts(ctx context.Context, q SearchQuery) (SearchPage, error) {
	if q.Limit < 1 || q.Limit > MaxPageSize {
		return SearchPage{}, fmt.Errorf("crm: page size %d outside 1..%d", q.Limit, MaxPageSize)
	}

	body, err := json.Marshal(newSearchRequest(q))
	if err != nil {
		return SearchPage{}, fmt.Errorf("crm: encode search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+searchPath, bytes.NewReader(body))
	if err != nil {
		return SearchPage{}, fmt.Errorf("crm: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return SearchPage{}, fmt.Errorf("crm: search request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		_, _ = io.Copy(io.Discard, resp.Body)
		return SearchPage{}, &RateLimitedError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody+1))
		return SearchPage{}, &AuthError{Status: resp.StatusCode, Body: truncateBody(b)}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody+1))
		return SearchPage{}, &ProviderError{Status: resp.StatusCode, Body: truncateBody(b)}
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return SearchPage{}, fmt.Errorf("crm: decode search response: %w", err)
	}

	page := SearchPage{
		Records: make([]domain.ContactRecord, 0, len(sr.Results)),
		Total:   sr.Total,
		After:   sr.nextCursor(),
	}
	for _, obj := range sr.Results {
		rec := normalize(obj)
		if strings.TrimSpace(rec.ID) == "" {
			page.Skipped++
			c.logger.Warn("skipping search result without id", "created_at", obj.Properties[PropCreateDate])
			continue
		}
		page.Records = append(page.Records, rec)
	}

	c.logger.Debug("search page fetched",
		"window", q.Window.String(),
		"results", len(page.Records),
		"total", page.Total,
		"has_next", page.After != "")

	return page, nil
}

func normalize(obj object) domain.ContactRecord {
	created, ok := parseTimestamp(obj.Properties[PropCreateDate])
	if !ok {
		created, _ = parseTimestamp(obj.CreatedAt)
	}
	return domain.ContactRecord{
		ID:        obj.ID,
		CreatedAt: created,
		FirstName: strings.TrimSpace(obj.Properties[PropFirstName]),
		LastName:  strings.TrimSpace(obj.Properties[PropLastName]),
		Email:     strings.TrimSpace(obj.Properties[PropEmail]),
	}
}

// parseTimestamp accepts RFC 3339 or epoch milliseconds and returns UTC.
func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), true
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), true
	}
	return time.Time{}, false
}

// parseRetryAfter handles both delta-seconds and HTTP-date forms.
func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
