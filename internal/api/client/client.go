package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/reportengine/internal/api"
	"github.com/reportengine/internal/models"
	"github.com/reportengine/internal/scheduler"
)

const DefaultBaseURL = "http://localhost:8080"

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewClient(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
}

// NewClientFromEnv reads REPORTENGINE_API_URL and REPORTENGINE_TOKEN.
func NewClientFromEnv() (*Client, error) {
	token := os.Getenv("REPORTENGINE_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("REPORTENGINE_TOKEN environment variable is not set")
	}
	return NewClient(os.Getenv("REPORTENGINE_API_URL"), token), nil
}

type RunResult struct {
	ScheduleID string `json:"schedule_id"`
	ReportID   string `json:"report_id"`
}

func (c *Client) ListSchedules(activeOnly bool) ([]models.Schedule, error) {
	query := url.Values{}
	if activeOnly {
		query.Set("active", "true")
	}

	var schedules []models.Schedule
	if err := c.get("/api/v1/schedules", query, &schedules); err != nil {
		return nil, err
	}
	return schedules, nil
}

func (c *Client) GetSchedule(id string) (*models.Schedule, error) {
	var schedule models.Schedule
	if err := c.get("/api/v1/schedules/"+id, nil, &schedule); err != nil {
		return nil, err
	}
	return &schedule, nil
}

func (c *Client) EnableSchedule(id string) (*models.Schedule, error) {
	var schedule models.Schedule
	if err := c.send(http.MethodPut, fmt.Sprintf("/api/v1/schedules/%s/enable", id), nil, &schedule); err != nil {
		return nil, err
	}
	return &schedule, nil
}

func (c *Client) DisableSchedule(id string) (*models.Schedule, error) {
	var schedule models.Schedule
	if err := c.send(http.MethodPut, fmt.Sprintf("/api/v1/schedules/%s/disable", id), nil, &schedule); err != nil {
		return nil, err
	}
	return &schedule, nil
}

func (c *Client) RunSchedule(id string) (*RunResult, error) {
	var result RunResult
	if err := c.send(http.MethodPost, fmt.Sprintf("/api/v1/schedules/%s/run", id), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) ListRuns(scheduleID string, limit int) ([]models.ScheduleRun, error) {
	var runs []models.ScheduleRun
	if err := c.get(fmt.Sprintf("/api/v1/schedules/%s/runs", scheduleID), limitQuery(limit), &runs); err != nil {
		return nil, err
	}
	return runs, nil
}

func (c *Client) ListReports(scheduleID string, limit int) ([]models.Report, error) {
	query := limitQuery(limit)
	if scheduleID != "" {
		query.Set("schedule_id", scheduleID)
	}

	var reports []models.Report
	if err := c.get("/api/v1/reports", query, &reports); err != nil {
		return nil, err
	}
	return reports, nil
}

func (c *Client) GetReport(id string) (*api.ReportDetail, error) {
	var detail api.ReportDetail
	if err := c.get("/api/v1/reports/"+id, nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

func (c *Client) Tick() (*scheduler.TickResult, error) {
	var result scheduler.TickResult
	if err := c.send(http.MethodPost, "/api/v1/scheduler/tick", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) Metrics() (map[string]interface{}, error) {
	var metrics map[string]interface{}
	if err := c.get("/api/v1/scheduler/metrics", nil, &metrics); err != nil {
		return nil, err
	}
	return metrics, nil
}

func limitQuery(limit int) url.Values {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	return query
}

func (c *Client) get(endpoint string, query url.Values, v interface{}) error {
	resp, err := c.doRequest(http.MethodGet, endpoint, query, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return json.NewDecoder(resp.Body).Decode(v)
}

func (c *Client) send(method, endpoint string, data, v interface{}) error {
	var body io.Reader
	if data != nil {
		jsonData, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(jsonData)
	}

	resp, err := c.doRequest(method, endpoint, nil, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if v != nil {
		return json.NewDecoder(resp.Body).Decode(v)
	}
	return nil
}

func (c *Client) doRequest(method, endpoint string, query url.Values, body io.Reader) (*http.Response, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	u.Path = path.Join(u.Path, endpoint)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequest(method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		var errResp struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error != "" {
			return nil, fmt.Errorf("API error: %s", errResp.Error)
		}
		return nil, fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	return resp, nil
}
