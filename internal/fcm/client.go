package fcm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const defaultSendTimeout = 10 * time.Second

// ClientOptions overrides the client's endpoints and transport, mostly for tests.
type ClientOptions struct {
	HTTPClient  *http.Client
	SendURL     string
	TokenURL    string
	TokenSource oauth2.TokenSource
}

// Client issues authenticated sends against the FCM v1 per-message endpoint.
type Client struct {
	cred    *Credential
	sendURL string
	http    *http.Client
	tokens  oauth2.TokenSource
}

// Message is one push notification addressed to a single device registration.
type Message struct {
	Token string
	Title string
	Body  string
	Data  map[string]string
}

type v1SendRequest struct {
	Message v1Message `json:"message"`
}

type v1Message struct {
	Token        string            `json:"token"`
	Notification v1Notification    `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
	Android      v1Android         `json:"android"`
}

type v1Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type v1Android struct {
	Priority     string                `json:"priority"`
	Notification v1AndroidNotification `json:"notification"`
}

type v1AndroidNotification struct {
	Sound     string `json:"sound"`
	ChannelID string `json:"channel_id"`
	Color     string `json:"color"`
}

// Delivery hints mirrored by the Android client's notification channel setup.
const (
	androidPriorityHigh = "high"
	androidSound        = "default"
	androidChannelID    = "tasks"
	androidColor        = "#0284C7"
)

func NewClient(cred *Credential, opts ClientOptions) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultSendTimeout}
	}

	sendURL := strings.TrimSpace(opts.SendURL)
	if sendURL == "" {
		sendURL = fmt.Sprintf("https://fcm.googleapis.com/v1/projects/%s/messages:send", cred.ProjectID)
	}

	tokens := opts.TokenSource
	if tokens == nil {
		tokenURL := strings.TrimSpace(opts.TokenURL)
		if tokenURL == "" {
			tokenURL = "https://oauth2.googleapis.com/token"
		}
		tokens = NewTokenSource(cred, tokenURL, httpClient)
	}

	return &Client{
		cred:    cred,
		sendURL: sendURL,
		http:    httpClient,
		tokens:  tokens,
	}
}

// Token obtains the bearer access token for a delivery batch. Callers hold the
// returned token for the whole batch; the client does not fetch per send.
func (c *Client) Token(ctx context.Context) (*oauth2.Token, error) {
	if ts, ok := c.tokens.(interface {
		TokenContext(context.Context) (*oauth2.Token, error)
	}); ok {
		return ts.TokenContext(ctx)
	}
	return c.tokens.Token()
}

// Send delivers one message using the supplied batch token. A non-nil error
// for a 4xx/5xx gateway response is a *SendError carrying the gateway's
// classification; transport errors come back as-is.
func (c *Client) Send(ctx context.Context, accessToken string, msg Message) error {
	body, err := json.Marshal(v1SendRequest{
		Message: v1Message{
			Token: msg.Token,
			Notification: v1Notification{
				Title: msg.Title,
				Body:  msg.Body,
			},
			Data: msg.Data,
			Android: v1Android{
				Priority: androidPriorityHigh,
				Notification: v1AndroidNotification{
					Sound:     androidSound,
					ChannelID: androidChannelID,
					Color:     androidColor,
				},
			},
		},
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.sendURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponseBytes))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return parseSendError(resp.StatusCode, respBody)
}

// SendError is a classified non-2xx response from the send endpoint.
type SendError struct {
	StatusCode int
	Status     string
	ErrorCode  string
	Message    string
}

func (e *SendError) Error() string {
	if e.Status != "" || e.Message != "" {
		return fmt.Sprintf("fcm send failed: status=%d %s: %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("fcm send failed: status=%d", e.StatusCode)
}

// TokenInvalid reports whether the gateway said the target registration no
// longer exists or is not a syntactically valid registration token. Those
// registrations must be retired; everything else is transient.
func (e *SendError) TokenInvalid() bool {
	if e.ErrorCode == "UNREGISTERED" {
		return true
	}
	if e.Status == "NOT_FOUND" || e.StatusCode == http.StatusNotFound {
		return true
	}
	if e.Status == "INVALID_ARGUMENT" && strings.Contains(strings.ToLower(e.Message), "token") {
		return true
	}
	msg := strings.ToLower(e.Message)
	return strings.Contains(msg, "not found") || strings.Contains(msg, "unregistered")
}

func parseSendError(statusCode int, body []byte) *SendError {
	sendErr := &SendError{StatusCode: statusCode}

	var payload struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
			Status  string `json:"status"`
			Details []struct {
				ErrorCode string `json:"errorCode"`
			} `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		sendErr.Message = strings.TrimSpace(string(body))
		return sendErr
	}

	sendErr.Status = payload.Error.Status
	sendErr.Message = payload.Error.Message
	for _, detail := range payload.Error.Details {
		if detail.ErrorCode != "" {
			sendErr.ErrorCode = detail.ErrorCode
			break
		}
	}
	if sendErr.Status == "" && sendErr.Message == "" {
		sendErr.Message = strings.TrimSpace(string(body))
	}
	return sendErr
}
