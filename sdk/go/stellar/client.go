// Package stellar is a Go client for the HTTP transport of a Stellar node.
package stellar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"
)

// DefaultHTTPTimeout applies to clients created without an http.Client.
const DefaultHTTPTimeout = 15 * time.Second

// Client calls actions on a node through /api/{action}.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// Task is the state of a background task as returned by tasks.enqueue and
// tasks.get.
type Task struct {
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	Params     map[string]any `json:"params,omitempty"`
	Status     string         `json:"status"`
	Attempts   int            `json:"attempts"`
	MaxRetries int            `json:"max_retries"`
	LastError  string         `json:"last_error,omitempty"`
	ErrorCode  string         `json:"error_code,omitempty"`
	Result     any            `json:"result,omitempty"`
	CreatedAt  int64          `json:"created_at"`
	UpdatedAt  int64          `json:"updated_at"`
}

// APIError is a failed action call. Fields is set for validation failures.
type APIError struct {
	StatusCode int
	Message    string
	Fields     map[string]string
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return fmt.Sprintf("stellar api error (%d): invalid parameters: %s", e.StatusCode, strings.Join(keys, ", "))
	}
	return fmt.Sprintf("stellar api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient builds a client for the node at rawURL.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// Call runs an action with params and decodes the response into out, which
// may be nil.
func (c *Client) Call(ctx context.Context, action string, params map[string]any, out any) error {
	if action == "" {
		return fmt.Errorf("stellar: action is required")
	}
	if params == nil {
		params = map[string]any{}
	}
	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	rel := &url.URL{Path: path.Join(c.baseURL.Path, "api", action)}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL.ResolveReference(rel).String(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

// Echo calls the echo action.
func (c *Client) Echo(ctx context.Context, msg string) (string, error) {
	var resp struct {
		Msg string `json:"msg"`
	}
	if err := c.Call(ctx, "echo", map[string]any{"msg": msg}, &resp); err != nil {
		return "", err
	}
	return resp.Msg, nil
}

// Enqueue queues action with args for background execution.
func (c *Client) Enqueue(ctx context.Context, action string, args map[string]any) (Task, error) {
	params := map[string]any{"task": action}
	if args != nil {
		params["args"] = args
	}
	var t Task
	err := c.Call(ctx, "tasks.enqueue", params, &t)
	return t, err
}

// GetTask fetches a task by id.
func (c *Client) GetTask(ctx context.Context, id string) (Task, error) {
	var t Task
	err := c.Call(ctx, "tasks.get", map[string]any{"id": id}, &t)
	return t, err
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return decodeError(resp.StatusCode, data)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// decodeError reads the "error" field of a failed response: a message, or a
// parameter to message map for validation failures.
func decodeError(status int, data []byte) error {
	apiErr := &APIError{StatusCode: status}
	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil || len(envelope.Error) == 0 {
		apiErr.Message = string(bytes.TrimSpace(data))
		return apiErr
	}
	if err := json.Unmarshal(envelope.Error, &apiErr.Message); err == nil {
		return apiErr
	}
	if err := json.Unmarshal(envelope.Error, &apiErr.Fields); err != nil {
		apiErr.Message = string(envelope.Error)
	}
	return apiErr
}
