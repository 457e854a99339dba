package client

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "tok")
}

func TestListSchedulesSendsTokenAndFilter(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/schedules", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("active"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode([]map[string]interface{}{{"id": "s1", "name": "Weekly", "is_active": true}})
	})

	schedules, err := c.ListSchedules(true)
	require.NoError(t, err)
	require.Len(t, schedules, 1)
	assert.Equal(t, "s1", schedules[0].ID)
	assert.True(t, schedules[0].IsActive)
}

func TestRunScheduleAndErrors(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		switch r.URL.Path {
		case "/api/v1/schedules/s1/run":
			_ = json.NewEncoder(w).Encode(map[string]string{"schedule_id": "s1", "report_id": "r9"})
		case "/api/v1/schedules/s2/run":
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"error":"schedule is not active"}`))
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	})

	result, err := c.RunSchedule("s1")
	require.NoError(t, err)
	assert.Equal(t, "r9", result.ReportID)

	_, err = c.RunSchedule("s2")
	assert.EqualError(t, err, "API error: schedule is not active")

	_, err = c.RunSchedule("s3")
	assert.EqualError(t, err, "request failed with status 502")
}

func TestGetReportAndListReports(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/reports/r1":
			_, _ = w.Write([]byte(`{"report":{"id":"r1","title":"Weekly"},"slides":[{"id":"a","type":"rich_text","order":-1}]}`))
		case "/api/v1/reports":
			assert.Equal(t, "s1", r.URL.Query().Get("schedule_id"))
			assert.Equal(t, "5", r.URL.Query().Get("limit"))
			_, _ = w.Write([]byte(`[{"id":"r1"}]`))
		}
	})

	detail, err := c.GetReport("r1")
	require.NoError(t, err)
	assert.Equal(t, "Weekly", detail.Report.Title)
	require.Len(t, detail.Slides, 1)
	assert.Equal(t, -1, detail.Slides[0].Order)

	reports, err := c.ListReports("s1", 5)
	require.NoError(t, err)
	assert.Len(t, reports, 1)
}

func TestNewClientFromEnv(t *testing.T) {
	t.Setenv("REPORTENGINE_TOKEN", "")
	_, err := NewClientFromEnv()
	assert.Error(t, err)

	t.Setenv("REPORTENGINE_TOKEN", "abc")
	t.Setenv("REPORTENGINE_API_URL", "")
	c, err := NewClientFromEnv()
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, c.baseURL)
}
