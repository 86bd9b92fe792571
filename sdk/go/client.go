package pulseboardsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Pulseboard HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	// ActorID is sent as X-Actor-Id when no token is set. Servers accept it
	// only when legacy actor headers are enabled.
	ActorID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults. baseURL includes the API base path,
// e.g. http://localhost:8080/v1.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL:     baseURL,
		BearerToken: token,
		Timeout:     30 * time.Second,
	}
}

// Overview holds the headline counts (partial).
type Overview struct {
	TotalProjects     int     `json:"total_projects"`
	ActiveProjects    int     `json:"active_projects"`
	CompletedProjects int     `json:"completed_projects"`
	TotalTasks        int     `json:"total_tasks"`
	CompletedTasks    int     `json:"completed_tasks"`
	OverdueTasks      int     `json:"overdue_tasks"`
	CompletionRate    float64 `json:"completion_rate"`
}

// OverviewResult is the analytics overview response (partial).
type OverviewResult struct {
	Overview      Overview `json:"overview"`
	Distributions struct {
		ProjectsByStatus map[string]int `json:"projects_by_status"`
		TasksByStatus    map[string]int `json:"tasks_by_status"`
		TasksByPriority  map[string]int `json:"tasks_by_priority"`
	} `json:"distributions"`
}

// HealthStatistics summarises project health scores.
type HealthStatistics struct {
	AverageScore   float64        `json:"average_score"`
	Distribution   map[string]int `json:"distribution"`
	ProjectsAtRisk int            `json:"projects_at_risk"`
}

// ReportConfig is a recurring report schedule.
type ReportConfig struct {
	ID         string     `json:"id,omitempty"`
	Name       string     `json:"name"`
	Period     string     `json:"period"`
	DayOfWeek  *int       `json:"day_of_week,omitempty"`
	DayOfMonth *int       `json:"day_of_month,omitempty"`
	SendTime   string     `json:"send_time"`
	Recipients []string   `json:"recipients"`
	Format     string     `json:"format,omitempty"`
	Status     string     `json:"status,omitempty"`
	NextRunAt  *time.Time `json:"next_run_at,omitempty"`
	LastRunAt  *time.Time `json:"last_run_at,omitempty"`
}

// Report is a generated report without its content.
type Report struct {
	ID             string    `json:"id"`
	ReportConfigID *string   `json:"report_config_id,omitempty"`
	Title          string    `json:"title"`
	Period         string    `json:"period"`
	Format         string    `json:"format"`
	Status         string    `json:"status"`
	SentTo         []string  `json:"sent_to"`
	FileName       string    `json:"file_name"`
	Error          string    `json:"error,omitempty"`
	DeliveryError  string    `json:"delivery_error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// File is a downloaded report.
type File struct {
	Name     string
	MIMEType string
	Content  []byte
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d code=%s body=%s", e.StatusCode, e.Code, e.Body)
}

// Overview returns analytics, scoped to userID when it is not empty.
func (c *Client) Overview(ctx context.Context, userID string) (OverviewResult, error) {
	endpoint := "analytics/overview"
	if userID != "" {
		endpoint += "?user_id=" + url.QueryEscape(userID)
	}
	var resp OverviewResult
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// HealthStatistics returns population health score statistics.
func (c *Client) HealthStatistics(ctx context.Context) (HealthStatistics, error) {
	var resp HealthStatistics
	err := c.do(ctx, http.MethodGet, "analytics/health-scores/statistics", nil, &resp)
	return resp, err
}

// CreateReportConfig creates a report config.
func (c *Client) CreateReportConfig(ctx context.Context, cfg ReportConfig) (ReportConfig, error) {
	var resp ReportConfig
	err := c.do(ctx, http.MethodPost, "report-configs", cfg, &resp)
	return resp, err
}

// ListReportConfigs returns configs, optionally filtered by status.
func (c *Client) ListReportConfigs(ctx context.Context, status string) ([]ReportConfig, error) {
	endpoint := "report-configs"
	if status != "" {
		endpoint += "?status=" + url.QueryEscape(status)
	}
	var resp struct {
		Items []ReportConfig `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// PauseReportConfig stops a config's schedule.
func (c *Client) PauseReportConfig(ctx context.Context, id string) (ReportConfig, error) {
	var resp ReportConfig
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("report-configs/%s/pause", url.PathEscape(id)), nil, &resp)
	return resp, err
}

// ActivateReportConfig schedules a config's next run.
func (c *Client) ActivateReportConfig(ctx context.Context, id string) (ReportConfig, error) {
	var resp ReportConfig
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("report-configs/%s/activate", url.PathEscape(id)), nil, &resp)
	return resp, err
}

// GenerateReport renders an ad-hoc report. start and end are only sent for
// custom reports.
func (c *Client) GenerateReport(ctx context.Context, reportType, format string, start, end *time.Time) (File, error) {
	body := map[string]any{"report_type": reportType}
	if format != "" {
		body["format"] = format
	}
	if start != nil {
		body["start_date"] = start.Format(time.RFC3339)
	}
	if end != nil {
		body["end_date"] = end.Format(time.RFC3339)
	}
	return c.download(ctx, http.MethodPost, "reports/generate", body)
}

// ListReports returns recent generated reports.
func (c *Client) ListReports(ctx context.Context, limit int) ([]Report, error) {
	endpoint := "reports"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp struct {
		Items []Report `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// DownloadReport fetches the content of a completed report.
func (c *Client) DownloadReport(ctx context.Context, id string) (File, error) {
	return c.download(ctx, http.MethodGet, fmt.Sprintf("reports/%s/download", url.PathEscape(id)), nil)
}

func (c *Client) download(ctx context.Context, method, endpoint string, body any) (File, error) {
	resp, err := c.send(ctx, method, endpoint, body)
	if err != nil {
		return File{}, err
	}
	defer resp.Body.Close()
	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return File{}, err
	}
	f := File{MIMEType: resp.Header.Get("Content-Type"), Content: content}
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		f.Name = params["filename"]
	}
	return f, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	resp, err := c.send(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// send performs the request and turns non-2xx responses into *APIError.
func (c *Client) send(ctx context.Context, method, endpoint string, body any) (*http.Response, error) {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
		}
		return nil, apiErr
	}
	return resp, nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
