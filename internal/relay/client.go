// internal/relay/client.go
package relay

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

	"github.com/fablier/fablier/internal/models"
)

// DefaultTimeout bounds every relay call. The worker proxies an LLM, so
// replies can be slow, but the facilitator must never be stuck mid-lesson.
const DefaultTimeout = 30 * time.Second

// ChatRequest is the wire format of the worker's chat endpoint.
type ChatRequest struct {
	Messages []models.ChatMessage `json:"messages"`
	System   string               `json:"system"`
	Model    string               `json:"model"`
}

// chatResponse is the worker's reply envelope.
type chatResponse struct {
	Reply string `json:"reply"`
}

// SaveRequest is the wire format of the worker's save endpoint.
type SaveRequest struct {
	SessionID  string `json:"sessionId"`
	Transcript string `json:"transcript"`
	ClassID    string `json:"classId"`
	UserID     string `json:"userId"`
}

// Client is the engine's view of the external relay worker.
type Client interface {
	// Chat sends one conversational turn and returns the assistant reply.
	Chat(ctx context.Context, req ChatRequest) (string, error)

	// Synthesize turns text into an audio payload.
	Synthesize(ctx context.Context, text, voice, model, format string) ([]byte, error)

	// SaveTranscript uploads an end-of-session transcript.
	SaveTranscript(ctx context.Context, req SaveRequest) error
}

// HTTPClient talks to the relay worker over HTTP.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPClient creates a relay client for the worker at baseURL.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// Chat implements Client.
func (c *HTTPClient) Chat(ctx context.Context, req ChatRequest) (string, error) {
	if req.Messages == nil {
		// The worker expects an array, not null.
		req.Messages = []models.ChatMessage{}
	}

	body, err := c.post(ctx, c.baseURL+"/chat", req)
	if err != nil {
		return "", err
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("malformed chat response: %w", err)
	}
	if parsed.Reply == "" {
		return "", fmt.Errorf("chat response carried no reply")
	}

	return parsed.Reply, nil
}

// Synthesize implements Client.
func (c *HTTPClient) Synthesize(ctx context.Context, text, voice, model, format string) ([]byte, error) {
	query := url.Values{}
	query.Set("voice", voice)
	query.Set("model", model)
	query.Set("format", format)

	payload := map[string]string{"text": text}
	return c.post(ctx, c.baseURL+"/tts?"+query.Encode(), payload)
}

// SaveTranscript implements Client.
func (c *HTTPClient) SaveTranscript(ctx context.Context, req SaveRequest) error {
	_, err := c.post(ctx, c.baseURL+"/save", req)
	return err
}

// post sends a JSON POST and returns the response body for 2xx statuses.
func (c *HTTPClient) post(ctx context.Context, endpoint string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("relay request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read relay response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("relay returned status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
