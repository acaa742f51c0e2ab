package zoho

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

	"watchtower/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

// DeliveryError is returned when Cliq rejects a message post. It carries
// the status and a response excerpt so a failed run can be diagnosed
// without re-running.
type DeliveryError struct {
	HTTPStatus int
	Body       string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("cliq delivery failed %d: %s", e.HTTPStatus, e.Body)
}

type cliqCard struct {
	Title string `json:"title"`
	Theme string `json:"theme"`
}

type cliqPayload struct {
	Text string   `json:"text"`
	Card cliqCard `json:"card"`
}

// CliqClient posts a message to the Cliq bot and then mirrors it to the
// channel, authenticated with a Zoho OAuth access token. No retries here;
// the retry policy belongs to the caller.
type CliqClient struct {
	client        *http.Client
	botURL        string
	channelURL    string
	botUniqueName string
	tracer        trace.Tracer
	now           func() time.Time
}

func NewCliqClient(tracer trace.Tracer, botURL, channelURL, botUniqueName string, timeout time.Duration) *CliqClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &CliqClient{
		client:        &http.Client{Timeout: timeout},
		botURL:        botURL,
		channelURL:    channelURL,
		botUniqueName: botUniqueName,
		tracer:        tracer,
		now:           time.Now,
	}
}

func (c *CliqClient) Send(ctx context.Context, msg domain.Message, cred *domain.Credential) error {
	_, span := c.tracer.Start(ctx, "cliq.send")
	defer span.End()

	// A token past its declared lifetime is never sent upstream.
	if !cred.Usable(c.now(), 0) {
		return &AuthError{Cause: "access token expired before delivery"}
	}

	body, err := json.Marshal(cliqPayload{
		Text: "### " + msg.Text,
		Card: cliqCard{Title: "ANNOUNCEMENT", Theme: "modern-inline"},
	})
	if err != nil {
		return &DeliveryError{Body: err.Error()}
	}

	if err := c.post(ctx, c.botURL, body, cred.AccessToken); err != nil {
		return err
	}

	channelURL := c.channelURL
	if c.botUniqueName != "" {
		sep := "?"
		if strings.Contains(channelURL, "?") {
			sep = "&"
		}
		channelURL += sep + "bot_unique_name=" + url.QueryEscape(c.botUniqueName)
	}
	return c.post(ctx, channelURL, body, cred.AccessToken)
}

func (c *CliqClient) post(ctx context.Context, endpoint string, body []byte, token string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return &DeliveryError{Body: err.Error()}
	}
	req.Header.Set("Authorization", "Zoho-oauthtoken "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return &DeliveryError{Body: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 300))
		return &DeliveryError{HTTPStatus: resp.StatusCode, Body: strings.TrimSpace(string(excerpt))}
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}
