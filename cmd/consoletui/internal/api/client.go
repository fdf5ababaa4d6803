// Package api is a thin HTTP client against the Supervisor Facade,
// used only by the read-only operator console.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

type DomeWindow struct {
	OpenAt  time.Time `json:"open_at"`
	CloseAt time.Time `json:"close_at"`
}

type EnclosureStatus struct {
	Mode      string      `json:"mode"`
	Status    string      `json:"status"`
	HasWindow bool        `json:"has_window"`
	Window    *DomeWindow `json:"window"`
}

type ScheduledAction struct {
	Name       string   `json:"name"`
	TaskLabels []string `json:"task_labels"`
}

type ScheduleStatus struct {
	Mode          string            `json:"mode"`
	RequestedMode string            `json:"requested_mode"`
	StatusUpdated time.Time         `json:"status_updated"`
	Schedule      []ScheduledAction `json:"schedule"`
}

type HealthSnapshot struct {
	CPUPercent    float64   `json:"cpu_percent"`
	MemoryPercent float64   `json:"memory_percent"`
	DiskPercent   float64   `json:"disk_percent"`
	HostUptime    int64     `json:"host_uptime"`
	ProcessUptime int64     `json:"process_uptime"`
	CollectedAt   time.Time `json:"collected_at"`
}

type Status struct {
	Scheduler  ScheduleStatus  `json:"scheduler"`
	Enclosure  EnclosureStatus `json:"enclosure"`
	Health     HealthSnapshot  `json:"health"`
	ObservedAt time.Time       `json:"observed_at"`
}

type LogEntry struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	EventType string    `json:"event_type"`
	Module    string    `json:"module"`
	Data      json.RawMessage `json:"data"`
}

func (c *Client) Status(ctx context.Context) (Status, error) {
	var s Status
	err := c.get(ctx, "/v1/status", &s)
	return s, err
}

func (c *Client) RecentLogs(ctx context.Context, limit int) ([]LogEntry, error) {
	var entries []LogEntry
	err := c.get(ctx, fmt.Sprintf("/v1/logs/recent?limit=%d", limit), &entries)
	return entries, err
}

// FailureResponse is a rejected control operation's body: the Facade's
// FailureCode string plus a human-readable message.
type FailureResponse struct {
	Code    string `json:"error"`
	Message string `json:"message"`
}

// SubmitSchedule posts a schedule descriptor to the Facade. On
// rejection, failure carries the Facade's FailureCode; err is non-nil
// only for transport-level failures (can't reach the daemon, malformed
// response).
func (c *Client) SubmitSchedule(ctx context.Context, descriptor []byte) (ok bool, failure FailureResponse, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/schedule", bytes.NewReader(descriptor))
	if err != nil {
		return false, FailureResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return false, FailureResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return true, FailureResponse{}, nil
	}

	var f FailureResponse
	if decodeErr := json.NewDecoder(resp.Body).Decode(&f); decodeErr != nil {
		return false, FailureResponse{}, fmt.Errorf("api: submit_schedule returned %s with an undecodable body", resp.Status)
	}
	return false, f, nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("api: %s returned %s", path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
