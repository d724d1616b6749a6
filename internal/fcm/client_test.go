package fcm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/oauth2"
)

func staticTokenClient(t *testing.T, server *httptest.Server) *Client {
	t.Helper()
	return NewClient(testCredential(t), ClientOptions{
		HTTPClient:  server.Client(),
		SendURL:     server.URL + "/v1/projects/nesttask-test/messages:send",
		TokenSource: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "batch-token"}),
	})
}

func TestSendSuccess(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer batch-token" {
			t.Errorf("authorization = %q", got)
		}
		var req struct {
			Message struct {
				Token        string `json:"token"`
				Notification struct {
					Title string `json:"title"`
					Body  string `json:"body"`
				} `json:"notification"`
				Data    map[string]string `json:"data"`
				Android struct {
					Priority     string `json:"priority"`
					Notification struct {
						ChannelID string `json:"channel_id"`
						Sound     string `json:"sound"`
					} `json:"notification"`
				} `json:"android"`
			} `json:"message"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Message.Token != "device-1" {
			t.Errorf("token = %q", req.Message.Token)
		}
		if req.Message.Notification.Title != "New Task" {
			t.Errorf("title = %q", req.Message.Notification.Title)
		}
		if req.Message.Android.Priority != "high" {
			t.Errorf("android priority = %q", req.Message.Android.Priority)
		}
		if req.Message.Android.Notification.ChannelID != "tasks" {
			t.Errorf("channel_id = %q", req.Message.Android.Notification.ChannelID)
		}
		if req.Message.Data["task_id"] != "task-42" {
			t.Errorf("data = %v", req.Message.Data)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"name":"projects/nesttask-test/messages/0:12345"}`)
	}))
	defer server.Close()

	client := staticTokenClient(t, server)
	err := client.Send(context.Background(), "batch-token", Message{
		Token: "device-1",
		Title: "New Task",
		Body:  "Finish the lab report",
		Data:  map[string]string{"task_id": "task-42"},
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
}

func TestSendClassifiesGatewayErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		status      int
		body        string
		wantInvalid bool
	}{
		{
			name:        "unregistered detail",
			status:      http.StatusNotFound,
			body:        `{"error":{"code":404,"message":"Requested entity was not found.","status":"NOT_FOUND","details":[{"@type":"type.googleapis.com/google.firebase.fcm.v1.FcmError","errorCode":"UNREGISTERED"}]}}`,
			wantInvalid: true,
		},
		{
			name:        "invalid token argument",
			status:      http.StatusBadRequest,
			body:        `{"error":{"code":400,"message":"The registration token is not a valid FCM registration token","status":"INVALID_ARGUMENT"}}`,
			wantInvalid: true,
		},
		{
			name:        "internal error is transient",
			status:      http.StatusInternalServerError,
			body:        `{"error":{"code":500,"message":"Internal error encountered.","status":"INTERNAL"}}`,
			wantInvalid: false,
		},
		{
			name:        "quota exceeded is transient",
			status:      http.StatusTooManyRequests,
			body:        `{"error":{"code":429,"message":"Sending limit exceeded","status":"RESOURCE_EXHAUSTED"}}`,
			wantInvalid: false,
		},
		{
			name:        "non-json error body",
			status:      http.StatusBadGateway,
			body:        `upstream connect error`,
			wantInvalid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer server.Close()

			client := staticTokenClient(t, server)
			err := client.Send(context.Background(), "batch-token", Message{Token: "device-1", Title: "t", Body: "b"})
			if err == nil {
				t.Fatal("Send() should fail")
			}

			var sendErr *SendError
			if !errors.As(err, &sendErr) {
				t.Fatalf("error type = %T, want *SendError", err)
			}
			if sendErr.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", sendErr.StatusCode, tt.status)
			}
			if got := sendErr.TokenInvalid(); got != tt.wantInvalid {
				t.Errorf("TokenInvalid() = %v, want %v", got, tt.wantInvalid)
			}
		})
	}
}

func TestClientTokenUsesConfiguredSource(t *testing.T) {
	t.Parallel()

	client := NewClient(testCredential(t), ClientOptions{
		TokenSource: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "static"}),
	})
	token, err := client.Token(context.Background())
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if token.AccessToken != "static" {
		t.Fatalf("AccessToken = %q", token.AccessToken)
	}
}
