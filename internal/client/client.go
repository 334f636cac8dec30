// Package client provides a Go client for the parley HTTP gateway.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"strings"
	"time"

	"github.com/raphaelgruber/parley/internal/metrics"
	"github.com/raphaelgruber/parley/internal/models"
)

// Client talks to a running parley gateway.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a new gateway client.
// If baseURL is empty, uses PARLEY_SERVER_URL or defaults to localhost:8374.
// The timeout covers non-streaming calls; streams run until done or cancelled.
func New(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("PARLEY_SERVER_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:8374"
	}

	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 10 * time.Minute, // streaming responses can run long
		},
	}
}

// ThreadSummary is one row of the thread listing.
type ThreadSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Model     string    `json:"model"`
	UpdatedAt time.Time `json:"updated_at"`
	Messages  int       `json:"messages"`
}

// ListThreads returns all threads, most recently updated first.
func (c *Client) ListThreads(ctx context.Context) ([]ThreadSummary, error) {
	var out []ThreadSummary
	if err := c.do(ctx, http.MethodGet, "/api/threads", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateThread creates a thread with an optional title and model.
func (c *Client) CreateThread(ctx context.Context, title, model string) (*models.Thread, error) {
	body := map[string]string{"title": title, "model": model}
	var out models.Thread
	if err := c.do(ctx, http.MethodPost, "/api/threads", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetThread retrieves a thread with its full message history.
func (c *Client) GetThread(ctx context.Context, id string) (*models.Thread, error) {
	var out models.Thread
	if err := c.do(ctx, http.MethodGet, "/api/threads/"+id, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteThread deletes a thread by ID.
func (c *Client) DeleteThread(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/threads/"+id, nil, nil)
}

// Cancel aborts the streaming response for a thread, reporting whether
// one was running.
func (c *Client) Cancel(ctx context.Context, threadID string) (bool, error) {
	var out struct {
		Cancelled bool `json:"cancelled"`
	}
	err := c.do(ctx, http.MethodPost, "/api/chat/cancel", map[string]string{"thread_id": threadID}, &out)
	return out.Cancelled, err
}

// Stats returns the gateway's in-memory runtime statistics.
func (c *Client) Stats(ctx context.Context) (*metrics.Snapshot, error) {
	var out metrics.Snapshot
	if err := c.do(ctx, http.MethodGet, "/api/stats", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ChunkEvent is one streamed piece of an assistant response.
type ChunkEvent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Chat sends a message and streams the response. The onChunk callback
// fires for every streamed chunk; the returned messages are the
// thread's settled history after the exchange.
func (c *Client) Chat(ctx context.Context, threadID, text string, uploads []models.Upload, onChunk func(ChunkEvent)) ([]models.Message, error) {
	body, err := json.Marshal(map[string]any{
		"thread_id": threadID,
		"text":      text,
		"uploads":   uploads,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, readAPIError(resp)
	}
	return readChatStream(resp.Body, onChunk)
}

// readChatStream consumes the SSE stream: plain data lines are chunks,
// the done event carries the settled messages, the error event a
// user-facing failure description.
func readChatStream(r io.Reader, onChunk func(ChunkEvent)) ([]models.Message, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var event string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			event = ""
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data := strings.TrimPrefix(line, "data: ")
			switch event {
			case "":
				var chunk ChunkEvent
				if err := json.Unmarshal([]byte(data), &chunk); err != nil {
					return nil, fmt.Errorf("unmarshal chunk: %w", err)
				}
				if onChunk != nil {
					onChunk(chunk)
				}
			case "done":
				var done struct {
					Messages []models.Message `json:"messages"`
				}
				if err := json.Unmarshal([]byte(data), &done); err != nil {
					return nil, fmt.Errorf("unmarshal done event: %w", err)
				}
				return done.Messages, nil
			case "error":
				var fail struct {
					Message string `json:"message"`
				}
				if err := json.Unmarshal([]byte(data), &fail); err != nil {
					return nil, fmt.Errorf("unmarshal error event: %w", err)
				}
				return nil, fmt.Errorf("stream error: %s", fail.Message)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read stream: %w", err)
	}
	return nil, fmt.Errorf("stream ended without a done event")
}

// UploadFile is one file to push to the gateway's object storage.
type UploadFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// Upload stores a batch of files and returns their handles.
func (c *Client) Upload(ctx context.Context, files []UploadFile) ([]models.Upload, error) {
	buf := new(bytes.Buffer)
	mw := multipart.NewWriter(buf)
	for _, f := range files {
		hdr := textproto.MIMEHeader{}
		hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, f.Name))
		hdr.Set("Content-Type", f.ContentType)
		part, err := mw.CreatePart(hdr)
		if err != nil {
			return nil, fmt.Errorf("create form part: %w", err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, fmt.Errorf("write form part: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close form: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/upload", buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, readAPIError(resp)
	}
	var out []models.Upload
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return out, nil
}

// do runs one JSON round trip against the gateway.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := c.newRequest(ctx, method, path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return readAPIError(resp)
	}
	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func readAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	var apiErr struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
		return fmt.Errorf("server error: %s - %s", resp.Status, apiErr.Error)
	}
	return fmt.Errorf("server error: %s", resp.Status)
}
