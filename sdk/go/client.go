package contentlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Contentline HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Project represents the API project model.
type Project struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Channel      string         `json:"channel"`
	ContentType  string         `json:"content_type"`
	CurrentStage string         `json:"current_stage"`
	AssignedRole string         `json:"assigned_to_role"`
	Status       string         `json:"status"`
	Priority     *int           `json:"priority,omitempty"`
	DueDate      string         `json:"due_date,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
	CreatedAt    string         `json:"created_at"`
	UpdatedAt    string         `json:"updated_at"`
}

// HistoryEvent is one entry of a project's audit trail.
type HistoryEvent struct {
	ID        int64  `json:"id"`
	ProjectID string `json:"project_id"`
	Stage     string `json:"stage"`
	Action    string `json:"action"`
	ActorID   string `json:"actor_id"`
	ActorName string `json:"actor_name,omitempty"`
	Comment   string `json:"comment,omitempty"`
	TS        string `json:"ts"`
}

// LogEntry is one row of the global system log.
type LogEntry struct {
	ID        int64  `json:"id"`
	TS        string `json:"ts"`
	Action    string `json:"action"`
	ProjectID string `json:"project_id,omitempty"`
	ActorID   string `json:"actor_id"`
	Details   string `json:"details_json"`
}

// ReworkOptions lists the targets a rejection may route to.
type ReworkOptions struct {
	ProjectID    string   `json:"project_id"`
	CurrentStage string   `json:"current_stage"`
	Targets      []string `json:"targets"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedProjects wraps project listings with cursors.
type PaginatedProjects struct {
	Items      []Project `json:"items"`
	NextCursor string    `json:"next_cursor"`
}

// PaginatedLog wraps log listings with cursors.
type PaginatedLog struct {
	Items      []LogEntry `json:"items"`
	NextCursor string     `json:"next_cursor"`
}

// CreateProject opens a project on a channel.
func (c *Client) CreateProject(ctx context.Context, title, channel string, data map[string]any) (Project, error) {
	body := map[string]any{
		"title":   title,
		"channel": channel,
	}
	if len(data) > 0 {
		body["data"] = data
	}
	var resp Project
	err := c.do(ctx, http.MethodPost, "v0/projects", body, &resp)
	return resp, err
}

// GetProject fetches a project by id.
func (c *Client) GetProject(ctx context.Context, id string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodGet, c.projectPath(id, ""), nil, &resp)
	return resp, err
}

// ProjectsPage returns a paginated project listing.
func (c *Client) ProjectsPage(ctx context.Context, limit int, cursor string) (PaginatedProjects, error) {
	endpoint := "v0/projects"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	if cursor != "" {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint = fmt.Sprintf("%s%scursor=%s", endpoint, sep, url.QueryEscape(cursor))
	}
	var resp PaginatedProjects
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// UpdateData merges fields into the project data bag.
func (c *Client) UpdateData(ctx context.Context, id string, patch map[string]any) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodPatch, c.projectPath(id, "data"), patch, &resp)
	return resp, err
}

// Submit hands the project to the next stage.
func (c *Client) Submit(ctx context.Context, id string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodPost, c.projectPath(id, "submit"), nil, &resp)
	return resp, err
}

// Approve advances the project past its review stage.
func (c *Client) Approve(ctx context.Context, id, comment string) (Project, error) {
	body := map[string]any{}
	if comment != "" {
		body["comment"] = comment
	}
	var resp Project
	err := c.do(ctx, http.MethodPost, c.projectPath(id, "approve"), body, &resp)
	return resp, err
}

// Reject routes the project back to a rework target.
func (c *Client) Reject(ctx context.Context, id, targetStage, comment string) (Project, error) {
	body := map[string]any{
		"target_stage": targetStage,
		"comment":      comment,
	}
	var resp Project
	err := c.do(ctx, http.MethodPost, c.projectPath(id, "reject"), body, &resp)
	return resp, err
}

// ReworkOptions lists the allowed rejection targets at the current stage.
func (c *Client) ReworkOptions(ctx context.Context, id string) (ReworkOptions, error) {
	var resp ReworkOptions
	err := c.do(ctx, http.MethodGet, c.projectPath(id, "rework-options"), nil, &resp)
	return resp, err
}

// History returns the project's audit trail in append order.
func (c *Client) History(ctx context.Context, id string) ([]HistoryEvent, error) {
	var resp []HistoryEvent
	err := c.do(ctx, http.MethodGet, c.projectPath(id, "history"), nil, &resp)
	return resp, err
}

// LogPage returns a paginated system log listing, newest first.
func (c *Client) LogPage(ctx context.Context, limit int, cursor string) (PaginatedLog, error) {
	endpoint := "v0/log"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	if cursor != "" {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint = fmt.Sprintf("%s%scursor=%s", endpoint, sep, url.QueryEscape(cursor))
	}
	var resp PaginatedLog
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) projectPath(id, p string) string {
	endpoint := fmt.Sprintf("v0/projects/%s", url.PathEscape(id))
	if p == "" {
		return endpoint
	}
	return endpoint + "/" + strings.TrimLeft(p, "/")
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
