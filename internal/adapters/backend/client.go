// Package backend is the HTTP client for the conversation backend: it
// allocates room credentials on start and acknowledges the end of a
// conversation. Credentials pass straight through to the session layer and
// are never stored here.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/arvele/voicecall/internal/core"
	"github.com/arvele/voicecall/internal/domain"
)

type Client struct {
	baseURL   string
	authToken string
	hc        *http.Client
}

func NewClient(baseURL, authToken string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		authToken: authToken,
		hc:        &http.Client{Timeout: timeout},
	}
}

type startResponse struct {
	ConversationID string `json:"conversation_id"`
	RoomURL        string `json:"room_url"`
	RoomToken      string `json:"room_token"`
}

// errorBody matches the backend's {"detail": "..."} error shape.
type errorBody struct {
	Detail string `json:"detail"`
}

// Start allocates a room and returns its credentials. Failures come back
// classified so the store records a meaningful category, with the backend's
// detail text driving the classification.
func (c *Client) Start(ctx context.Context) (domain.RoomCredentials, error) {
	var out startResponse
	if err := c.post(ctx, "/api/v1/conversations/start", &out); err != nil {
		return domain.RoomCredentials{}, err
	}
	log.Info().Str("module", "backend").Str("conversation", out.ConversationID).Msg("conversation allocated")
	return domain.RoomCredentials{
		ConversationID: out.ConversationID,
		RoomURL:        out.RoomURL,
		RoomToken:      out.RoomToken,
	}, nil
}

// End notifies the backend that the conversation is over. Callers treat this
// as best-effort; the error is returned for logging only.
func (c *Client) End(ctx context.Context, conversationID string) error {
	if conversationID == "" {
		return fmt.Errorf("conversation id empty")
	}
	return c.post(ctx, "/api/v1/conversations/"+conversationID+"/end", nil)
}

func (c *Client) post(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, http.NoBody)
	if err != nil {
		return core.ClassifyError(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return core.ClassifyError(err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw := statusText(resp.StatusCode, body)
		log.Warn().Str("module", "backend").Str("path", path).Int("status", resp.StatusCode).
			Str("detail", raw).Msg("backend request rejected")
		return core.NewCategoryError(core.Classify(raw), raw)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return core.ClassifyError(fmt.Errorf("decode backend response: %w", err))
	}
	return nil
}

// statusText folds the backend's detail field into the raw error text so the
// classifier sees both the status wording and the server's explanation.
func statusText(code int, body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil && eb.Detail != "" {
		return fmt.Sprintf("%s: %s", http.StatusText(code), eb.Detail)
	}
	return http.StatusText(code)
}
