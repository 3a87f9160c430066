package wmsforgesdk

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

// Client is a minimal WMS Forge HTTP API client.
type Client struct {
	BaseURL     string
	ProjectID   string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, projectID string) *Client {
	return &Client{
		BaseURL:   baseURL,
		ProjectID: projectID,
		Timeout:   10 * time.Second,
	}
}

// Project represents the API project model (partial).
type Project struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Location string `json:"location"`
}

// WMS represents a work method statement (partial).
type WMS struct {
	ID         string     `json:"id"`
	ProjectID  string     `json:"projectId"`
	Title      string     `json:"title"`
	Scope      string     `json:"scope"`
	Steps      []WorkStep `json:"steps"`
	Risks      []Risk     `json:"risks"`
	TemplateID string     `json:"templateId,omitempty"`
}

type WorkStep struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Order int    `json:"order"`
}

type Risk struct {
	ID                string   `json:"id"`
	Type              string   `json:"type"`
	Description       string   `json:"description"`
	Severity          int      `json:"severity"`
	Likelihood        int      `json:"likelihood"`
	Mitigation        string   `json:"mitigation"`
	Level             string   `json:"level,omitempty"`
	AssociatedStepIDs []string `json:"associatedStepIds,omitempty"`
	Source            string   `json:"source"`
}

type Template struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Login exchanges credentials for a bearer token and stores it on the client.
func (c *Client) Login(ctx context.Context, email, password string) error {
	var resp struct {
		Token string `json:"token"`
	}
	body := map[string]any{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "v0/auth/login", body, &resp); err != nil {
		return err
	}
	c.BearerToken = resp.Token
	return nil
}

// CreateProject creates a project and targets the client at it.
func (c *Client) CreateProject(ctx context.Context, name, location string) (Project, error) {
	body := map[string]any{"name": name, "location": location}
	var resp Project
	if err := c.do(ctx, http.MethodPost, "v0/projects", body, &resp); err != nil {
		return Project{}, err
	}
	c.ProjectID = resp.ID
	return resp, nil
}

// CreateWMS creates a work method statement in the client's project.
func (c *Client) CreateWMS(ctx context.Context, title, scope string) (WMS, error) {
	body := map[string]any{"title": title, "scope": scope}
	var resp WMS
	err := c.do(ctx, http.MethodPost, c.projectPath("wms"), body, &resp)
	return resp, err
}

// GetWMS fetches a work method statement.
func (c *Client) GetWMS(ctx context.Context, wmsID string) (WMS, error) {
	var resp WMS
	err := c.do(ctx, http.MethodGet, c.projectPath("wms/"+url.PathEscape(wmsID)), nil, &resp)
	return resp, err
}

// AddStep appends a work step.
func (c *Client) AddStep(ctx context.Context, wmsID, title, description string) (WorkStep, error) {
	body := map[string]any{"title": title, "description": description}
	var resp WorkStep
	endpoint := c.projectPath(fmt.Sprintf("wms/%s/steps", url.PathEscape(wmsID)))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// AddRisk records a risk against a work method statement.
func (c *Client) AddRisk(ctx context.Context, wmsID string, r Risk) (Risk, error) {
	var resp Risk
	endpoint := c.projectPath(fmt.Sprintf("wms/%s/risks", url.PathEscape(wmsID)))
	err := c.do(ctx, http.MethodPost, endpoint, r, &resp)
	return resp, err
}

// SuggestRisks fetches draft risk candidates for an analysis type.
func (c *Client) SuggestRisks(ctx context.Context, wmsID, analysis string) ([]Risk, error) {
	var resp []Risk
	endpoint := c.projectPath(fmt.Sprintf("wms/%s/suggestions", url.PathEscape(wmsID)))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"analysis": analysis}, &resp)
	return resp, err
}

// SaveTemplate snapshots a work method statement as a reusable template.
func (c *Client) SaveTemplate(ctx context.Context, wmsID, title string) (Template, error) {
	body := map[string]any{"projectId": c.ProjectID, "wmsId": wmsID, "title": title}
	var resp Template
	err := c.do(ctx, http.MethodPost, "v0/templates", body, &resp)
	return resp, err
}

// ApplyTemplate instantiates a template into the client's project.
func (c *Client) ApplyTemplate(ctx context.Context, templateID string) (WMS, error) {
	var resp WMS
	endpoint := c.projectPath(fmt.Sprintf("templates/%s/apply", url.PathEscape(templateID)))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
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
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
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

func (c *Client) projectPath(p string) string {
	project := url.PathEscape(c.ProjectID)
	return fmt.Sprintf("v0/projects/%s/%s", project, strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
