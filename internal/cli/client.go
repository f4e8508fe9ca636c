package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/taskforge/orchestrator/internal/types"
)

// Client is taskctl's HTTP client for internal/httpapi, the only way the
// operator CLI talks to a running orchestratord — it never touches the
// Dispatcher or Registry directly, the same separation the teacher draws
// between cmd/agsh (a REPL) and its in-process runtime, generalized here to
// a REPL talking over the network to a separately-running daemon.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// NewClient returns a Client with a sane default timeout for non-streaming
// calls; streaming calls (Events) use the caller's context instead.
func NewClient(baseURL string) *Client {
	return &Client{BaseURL: baseURL, HTTP: &http.Client{Timeout: 10 * time.Second}}
}

type submitRequest struct {
	ID          string `json:"id,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

type submitResponse struct {
	TaskID string `json:"taskId"`
}

// Submit posts a new task and returns its id.
func (c *Client) Submit(ctx context.Context, title, description string) (string, error) {
	body, _ := json.Marshal(submitRequest{Title: title, Description: description})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/tasks", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		return "", httpError(resp)
	}
	var out submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.TaskID, nil
}

type actionRequest struct {
	Action   string `json:"action"`
	Reason   string `json:"reason,omitempty"`
	Feedback string `json:"feedback,omitempty"`
	Depth    int    `json:"depth,omitempty"`
}

type actionResponse struct {
	Accepted   bool   `json:"accepted"`
	ReasonCode string `json:"reasonCode,omitempty"`
	Message    string `json:"message,omitempty"`
}

// Action posts an intervention command for taskID.
func (c *Client) Action(ctx context.Context, taskID string, req actionRequest) (actionResponse, error) {
	body, _ := json.Marshal(req)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/tasks/"+url.PathEscape(taskID)+"/action", bytes.NewReader(body))
	if err != nil {
		return actionResponse{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return actionResponse{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusConflict {
		return actionResponse{}, httpError(resp)
	}
	var out actionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return actionResponse{}, err
	}
	return out, nil
}

// Get fetches one task snapshot.
func (c *Client) Get(ctx context.Context, taskID string) (*types.Task, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/tasks/"+url.PathEscape(taskID), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, httpError(resp)
	}
	var task types.Task
	if err := json.NewDecoder(resp.Body).Decode(&task); err != nil {
		return nil, err
	}
	return &task, nil
}

// Recent lists the most recent terminal tasks.
func (c *Client) Recent(ctx context.Context, limit int) ([]*types.Task, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/tasks/recent?limit="+strconv.Itoa(limit), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, httpError(resp)
	}
	var out []*types.Task
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// Events streams /events as a channel of envelopes, closing it when ctx is
// done or the connection drops. The channel carries the same envelopes an
// in-process *eventbus.Bus subscription would, so Display.Run can consume it.
func (c *Client) Events(ctx context.Context) (<-chan types.Envelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/events", nil)
	if err != nil {
		return nil, err
	}
	streamClient := *c.HTTP
	streamClient.Timeout = 0
	resp, err := streamClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, httpError(resp)
	}

	out := make(chan types.Envelope, 64)
	go func() {
		defer close(out)
		defer resp.Body.Close()
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
			var env types.Envelope
			if err := json.Unmarshal(scanner.Bytes(), &env); err != nil {
				continue
			}
			select {
			case out <- env:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Subscribe wraps Events in a cancellable context and returns the channel
// with its cancel func, in the bus Subscribe style. If the stream cannot be
// opened it returns an already-closed channel.
func (c *Client) Subscribe(ctx context.Context) (<-chan types.Envelope, func()) {
	ctx, cancel := context.WithCancel(ctx)
	ch, err := c.Events(ctx)
	if err != nil {
		cancel()
		closed := make(chan types.Envelope)
		close(closed)
		return closed, func() {}
	}
	return ch, cancel
}

func httpError(resp *http.Response) error {
	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if body.Message != "" {
		return fmt.Errorf("%s: %s", resp.Status, body.Message)
	}
	return fmt.Errorf("unexpected status %s", resp.Status)
}
