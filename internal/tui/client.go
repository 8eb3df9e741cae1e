package tui

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// DefaultClientTimeout is the default timeout for API requests.
const DefaultClientTimeout = 10 * time.Second

// Client wraps HTTP calls to the TaskDesk API.
type Client struct {
	baseURL    string
	actorID    string
	actorRole  string
	httpClient *http.Client
}

// NewClient creates a new API client acting under the given role.
func NewClient(baseURL, actorID, actorRole string) *Client {
	if actorID == "" {
		hostname, _ := os.Hostname()
		actorID = fmt.Sprintf("tui@%s", hostname)
	}
	return &Client{
		baseURL:   baseURL,
		actorID:   actorID,
		actorRole: actorRole,
		httpClient: &http.Client{
			Timeout: DefaultClientTimeout,
		},
	}
}

type slaMeta struct {
	Remaining time.Duration `json:"remaining_ns"`
	Level     string        `json:"level"`
}

type requestPayload struct {
	ID              string   `json:"id"`
	TaskID          string   `json:"task_id"`
	Origin          string   `json:"origin"`
	RequestType     string   `json:"request_type"`
	Status          string   `json:"status"`
	EffectiveStatus string   `json:"effective_status"`
	Reason          string   `json:"reason"`
	RequestedAt     string   `json:"requested_at"`
	ExpiresAt       string   `json:"expires_at"`
	SLA             *slaMeta `json:"sla"`
}

func itemFromPayload(p requestPayload) RequestItem {
	item := RequestItem{
		ID:              p.ID,
		TaskID:          p.TaskID,
		Origin:          p.Origin,
		RequestType:     p.RequestType,
		Status:          p.Status,
		EffectiveStatus: p.EffectiveStatus,
		Reason:          p.Reason,
	}
	if p.SLA != nil {
		item.SLALevel = p.SLA.Level
		item.SLARemaining = p.SLA.Remaining
	}
	return item
}

// ListRequests fetches the request queue from the API.
func (c *Client) ListRequests(status, origin string) ([]RequestItem, error) {
	url := c.baseURL + "/requests"
	sep := "?"
	if status != "" {
		url += sep + "status=" + status
		sep = "&"
	}
	if origin != "" {
		url += sep + "origin=" + origin
	}

	var payloads []requestPayload
	if err := c.getJSON(url, &payloads); err != nil {
		return nil, err
	}

	items := make([]RequestItem, len(payloads))
	for i, p := range payloads {
		items[i] = itemFromPayload(p)
	}
	return items, nil
}

// GetRequest fetches a single request with its discussion thread.
func (c *Client) GetRequest(id string) (*RequestDetail, error) {
	var p requestPayload
	if err := c.getJSON(c.baseURL+"/requests/"+id, &p); err != nil {
		return nil, err
	}

	detail := &RequestDetail{
		RequestItem: itemFromPayload(p),
		RequestedAt: p.RequestedAt,
		ExpiresAt:   p.ExpiresAt,
	}

	var msgs []struct {
		SenderRole string `json:"sender_role"`
		Text       string `json:"text"`
	}
	if err := c.getJSON(c.baseURL+"/requests/"+id+"/messages", &msgs); err == nil {
		for _, m := range msgs {
			detail.Messages = append(detail.Messages, MessageLine{Role: m.SenderRole, Text: m.Text})
		}
	}

	var task struct {
		Title      string `json:"title"`
		AssignedTo string `json:"assigned_to"`
	}
	if err := c.getJSON(c.baseURL+"/tasks/"+p.TaskID, &task); err == nil {
		detail.TaskTitle = task.Title
		detail.AssignedTo = task.AssignedTo
	}

	return detail, nil
}

// MarkViewed records the employee's first look at a request.
func (c *Client) MarkViewed(requestID string) error {
	_, err := c.post("/requests/"+requestID+"/view", nil)
	return err
}

// Respond submits the employee decision on an admin-initiated request.
func (c *Client) Respond(requestID, decision, note string) error {
	_, err := c.post("/requests/"+requestID+"/respond", map[string]string{
		"decision": decision,
		"note":     note,
	})
	return err
}

// Approve approves an employee-initiated request as the admin.
func (c *Client) Approve(requestID, note string) error {
	_, err := c.post("/requests/"+requestID+"/approve", map[string]string{
		"admin_note": note,
	})
	return err
}

// Reject rejects an employee-initiated request as the admin.
func (c *Client) Reject(requestID, reason string) error {
	_, err := c.post("/requests/"+requestID+"/reject", map[string]string{
		"reason": reason,
	})
	return err
}

// Execute applies an approved request to its task.
func (c *Client) Execute(requestID, note string) error {
	_, err := c.post("/requests/"+requestID+"/execute", map[string]string{
		"admin_note": note,
	})
	return err
}

// PostMessage appends a discussion entry to a request thread.
func (c *Client) PostMessage(requestID, text string) error {
	_, err := c.post("/requests/"+requestID+"/messages", map[string]string{
		"text": text,
	})
	return err
}

// CheckHealth checks if the daemon is healthy.
func (c *Client) CheckHealth() (bool, error) {
	var health struct {
		OK bool `json:"ok"`
	}
	if err := c.getJSON(c.baseURL+"/health", &health); err != nil {
		return false, err
	}
	return health.OK, nil
}

func (c *Client) getJSON(url string, v interface{}) error {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	c.identify(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error: %s", string(body))
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func (c *Client) post(path string, data interface{}) ([]byte, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.identify(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("API error: %s", string(body))
	}
	return body, nil
}

func (c *Client) identify(req *http.Request) {
	req.Header.Set("X-Actor-Id", c.actorID)
	req.Header.Set("X-Actor-Role", c.actorRole)
}
