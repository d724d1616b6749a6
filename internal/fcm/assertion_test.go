package fcm

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func testCredential(t *testing.T) *Credential {
	t.Helper()
	_, pemStr := testKeyPEM(t)
	cred, err := NewCredential("nesttask-test", "push@nesttask-test.iam.gserviceaccount.com", pemStr)
	if err != nil {
		t.Fatalf("NewCredential() error = %v", err)
	}
	return cred
}

func TestSignedAssertionValidatesUnderPublicKey(t *testing.T) {
	t.Parallel()

	cred := testCredential(t)
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	ts := NewTokenSource(cred, "https://oauth2.googleapis.com/token", nil)
	ts.now = func() time.Time { return now }

	// Timestamps are embedded, so byte-identity is not the invariant;
	// both assertions must verify independently.
	for i := 0; i < 2; i++ {
		assertion, err := ts.signedAssertion()
		if err != nil {
			t.Fatalf("signedAssertion() error = %v", err)
		}
		if parts := strings.Split(assertion, "."); len(parts) != 3 {
			t.Fatalf("assertion has %d parts, want 3", len(parts))
		}

		parsed, err := jwt.Parse(assertion, func(token *jwt.Token) (any, error) {
			return &cred.Key.PublicKey, nil
		}, jwt.WithValidMethods([]string{"RS256"}), jwt.WithTimeFunc(func() time.Time { return now }))
		if err != nil {
			t.Fatalf("jwt.Parse() error = %v", err)
		}

		claims, ok := parsed.Claims.(jwt.MapClaims)
		if !ok {
			t.Fatalf("claims type = %T", parsed.Claims)
		}
		if got := claims["iss"]; got != cred.ClientEmail {
			t.Errorf("iss = %v, want %q", got, cred.ClientEmail)
		}
		if got := claims["scope"]; got != MessagingScope {
			t.Errorf("scope = %v, want %q", got, MessagingScope)
		}
		if got := claims["aud"]; got != "https://oauth2.googleapis.com/token" {
			t.Errorf("aud = %v", got)
		}
		iat, _ := claims["iat"].(float64)
		exp, _ := claims["exp"].(float64)
		if int64(exp)-int64(iat) != 3600 {
			t.Errorf("exp-iat = %d, want 3600", int64(exp)-int64(iat))
		}
	}
}

func TestTokenContextExchangesAssertion(t *testing.T) {
	t.Parallel()

	cred := testCredential(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		body, _ := io.ReadAll(r.Body)
		form, err := url.ParseQuery(string(body))
		if err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := form.Get("grant_type"); got != "urn:ietf:params:oauth:grant-type:jwt-bearer" {
			t.Errorf("grant_type = %q", got)
		}
		if parts := strings.Split(form.Get("assertion"), "."); len(parts) != 3 {
			t.Errorf("assertion is not a compact JWT: %q", form.Get("assertion"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"batch-token","token_type":"Bearer","expires_in":3599}`)
	}))
	defer server.Close()

	ts := NewTokenSource(cred, server.URL, server.Client())
	token, err := ts.TokenContext(context.Background())
	if err != nil {
		t.Fatalf("TokenContext() error = %v", err)
	}
	if token.AccessToken != "batch-token" {
		t.Fatalf("AccessToken = %q, want batch-token", token.AccessToken)
	}
	if token.TokenType != "Bearer" {
		t.Fatalf("TokenType = %q, want Bearer", token.TokenType)
	}
	if !token.Expiry.After(time.Now()) {
		t.Fatal("Expiry should be in the future")
	}
}

func TestTokenContextFailsOnExchangeError(t *testing.T) {
	t.Parallel()

	cred := testCredential(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":"invalid_grant","error_description":"Invalid JWT signature."}`)
	}))
	defer server.Close()

	ts := NewTokenSource(cred, server.URL, server.Client())
	_, err := ts.TokenContext(context.Background())
	if err == nil {
		t.Fatal("TokenContext() should fail on a non-2xx exchange")
	}
	if !strings.Contains(err.Error(), "invalid_grant") {
		t.Fatalf("error %q should surface the response body", err)
	}
}

func TestTokenContextRejectsEmptyAccessToken(t *testing.T) {
	t.Parallel()

	cred := testCredential(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"token_type":"Bearer","expires_in":3600}`)
	}))
	defer server.Close()

	ts := NewTokenSource(cred, server.URL, server.Client())
	if _, err := ts.TokenContext(context.Background()); err == nil {
		t.Fatal("TokenContext() should reject a response without access_token")
	}
}
