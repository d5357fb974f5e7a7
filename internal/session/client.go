package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
)

// defaultSendTimeout bounds a single relay exchange. There is no retry;
// a failed turn is reported and the user may resubmit.
const defaultSendTimeout = 30 * time.Second

// Client is the HTTP implementation of Relay: one POST of the assembled
// messages to the relay endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// NewClient builds a relay client for the given endpoint.
func NewClient(endpoint string) *Client {
	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: defaultSendTimeout},
	}
}

type sendRequest struct {
	Messages []openai.ChatCompletionMessage `json:"messages"`
}

type sendResponse struct {
	Reply string `json:"reply"`
	Error string `json:"error"`
}

// Send posts the messages and returns the reply text. Any non-2xx status,
// transport failure or malformed body is an error; the caller decides how
// to surface it.
func (c *Client) Send(ctx context.Context, messages []openai.ChatCompletionMessage) (string, error) {
	payload, err := json.Marshal(sendRequest{Messages: messages})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("post to relay: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read relay response: %w", err)
	}

	var decoded sendResponse
	if resp.StatusCode != http.StatusOK {
		if json.Unmarshal(body, &decoded) == nil && decoded.Error != "" {
			return "", fmt.Errorf("relay: %s (HTTP %d)", decoded.Error, resp.StatusCode)
		}
		return "", fmt.Errorf("relay: HTTP %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("parse relay response: %w", err)
	}
	return decoded.Reply, nil
}
