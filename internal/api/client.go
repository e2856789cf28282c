package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yaosenjutsu/yaoephemeris-mcp/internal/locale"
)

const (
	DefaultHost    = "api.yaosenjutsu.com"
	DefaultPort    = "443"
	defaultTimeout = 30 * time.Second
	apiBasePath    = "/api/v1"
	clientAgent    = "yaoephemeris-mcp"
	bodyPrefixLen  = 100
)

var (
	ErrMissingAPIKey  = errors.New("missing API key")
	ErrAuthentication = errors.New("API authentication failed. Please check your API key.")
	ErrTimeout        = errors.New("API request timeout")
)

// Error is an upstream domain error: a status >= 400 other than 401.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("API error: %d", e.StatusCode)
	}
	return e.Message
}

type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return "Network error: " + e.Err.Error()
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ParseError carries a short prefix of a response body that was not JSON.
type ParseError struct {
	Body string
}

func (e *ParseError) Error() string {
	return "Failed to parse API response: " + e.Body
}

type timeoutError struct {
	after time.Duration
}

func (e *timeoutError) Error() string {
	return fmt.Sprintf("API request timeout (%s)", e.after.Round(time.Second))
}

func (e *timeoutError) Is(target error) bool {
	return target == ErrTimeout
}

type missingKeyError struct {
	lang locale.Lang
}

func (e *missingKeyError) Error() string {
	return e.lang.Pick(
		"APIキーが設定されていません。環境変数 YAOEPHEMERIS_API_KEY または MCP_API_KEY を設定してください。",
		"API key not set. Please set YAOEPHEMERIS_API_KEY or MCP_API_KEY environment variable.",
	)
}

func (e *missingKeyError) Is(target error) bool {
	return target == ErrMissingAPIKey
}

// Client calls the remote ephemeris API. It performs exactly one attempt per
// Call.
type Client struct {
	baseURL   string
	apiKey    string
	timeout   time.Duration
	lang      locale.Lang
	userAgent string
	http      *http.Client
}

func New(baseURL, apiKey string, timeout time.Duration) (*Client, error) {
	normalized := normalizeBaseURL(baseURL)
	if normalized == "" {
		return nil, fmt.Errorf("missing base URL")
	}

	if _, err := url.ParseRequestURI(normalized); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		baseURL:   normalized,
		apiKey:    strings.TrimSpace(apiKey),
		timeout:   timeout,
		lang:      locale.Japanese,
		userAgent: clientAgent,
		http:      &http.Client{},
	}, nil
}

// BaseURL builds the API origin from a host and port. Port 443 is implied
// by https and left out.
func BaseURL(host, port string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		host = DefaultHost
	}
	port = strings.TrimSpace(port)
	if port == "" || port == DefaultPort {
		return "https://" + host
	}
	return "https://" + net.JoinHostPort(host, port)
}

func (c *Client) SetLanguage(lang locale.Lang) {
	c.lang = lang
}

func (c *Client) SetUserAgent(version string) {
	if version == "" {
		c.userAgent = clientAgent
		return
	}
	c.userAgent = clientAgent + "/" + version
}

func (c *Client) HasAPIKey() bool {
	return c.apiKey != ""
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Call POSTs params to /api/v1/<endpoint> and returns the raw JSON body.
func (c *Client) Call(ctx context.Context, endpoint string, params any) (json.RawMessage, error) {
	if c.apiKey == "" {
		return nil, &missingKeyError{lang: c.lang}
	}

	encoded, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	fullURL := c.baseURL + apiBasePath + "/" + strings.TrimLeft(endpoint, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.ContentLength = int64(len(encoded))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.transportError(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.transportError(ctx, err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrAuthentication
	}
	if resp.StatusCode >= 400 {
		return nil, &Error{StatusCode: resp.StatusCode, Message: remoteMessage(body)}
	}

	trimmed := bytes.TrimSpace(body)
	if !json.Valid(trimmed) {
		return nil, &ParseError{Body: prefix(string(body), bodyPrefixLen)}
	}
	return json.RawMessage(trimmed), nil
}

func (c *Client) transportError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &timeoutError{after: c.timeout}
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("request canceled: %w", err)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}
	return &NetworkError{Err: err}
}

// remoteMessage extracts detail or message from an error body. Non-string
// values are rendered as compact JSON.
func remoteMessage(body []byte) string {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	for _, key := range []string{"detail", "message"} {
		raw, ok := payload[key]
		if !ok || string(raw) == "null" {
			continue
		}
		var text string
		if err := json.Unmarshal(raw, &text); err == nil {
			if text != "" {
				return text
			}
			continue
		}
		var compact bytes.Buffer
		if err := json.Compact(&compact, raw); err == nil {
			return compact.String()
		}
	}
	return ""
}

func prefix(value string, n int) string {
	runes := []rune(value)
	if len(runes) <= n {
		return value
	}
	return string(runes[:n])
}

func normalizeBaseURL(baseURL string) string {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return ""
	}

	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "https://" + baseURL
	}

	return strings.TrimRight(baseURL, "/")
}
