package fcm

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const (
	// MessagingScope is the OAuth2 scope required by the FCM v1 send endpoint.
	MessagingScope = "https://www.googleapis.com/auth/firebase.messaging"

	jwtBearerGrantType = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	assertionLifetime  = time.Hour

	maxTokenResponseBytes = 4 << 20
)

// TokenSource exchanges a freshly signed service-account assertion for a
// bearer access token on every call. It never caches: a delivery batch takes
// one token up front and shares it across all sends, and the next batch
// derives a new one.
type TokenSource struct {
	cred     *Credential
	tokenURL string
	scope    string
	http     *http.Client
	now      func() time.Time
}

// NewTokenSource builds a JWT-bearer token source for the credential.
// httpClient may be nil, in which case a default client with a timeout is used.
func NewTokenSource(cred *Credential, tokenURL string, httpClient *http.Client) *TokenSource {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &TokenSource{
		cred:     cred,
		tokenURL: tokenURL,
		scope:    MessagingScope,
		http:     httpClient,
		now:      time.Now,
	}
}

// Token implements oauth2.TokenSource.
func (ts *TokenSource) Token() (*oauth2.Token, error) {
	return ts.TokenContext(context.Background())
}

// TokenContext signs an assertion and exchanges it at the token endpoint.
func (ts *TokenSource) TokenContext(ctx context.Context) (*oauth2.Token, error) {
	assertion, err := ts.signedAssertion()
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("grant_type", jwtBearerGrantType)
	form.Set("assertion", assertion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ts.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := ts.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponseBytes))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("oauth token exchange failed: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
		TokenType   string `json:"token_type"`
	}
	if err := json.Unmarshal(respBody, &payload); err != nil {
		return nil, fmt.Errorf("decode oauth token response: %w", err)
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		return nil, errors.New("oauth token response missing access_token")
	}
	expiresIn := payload.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 3600
	}
	tokenType := payload.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return &oauth2.Token{
		AccessToken: payload.AccessToken,
		TokenType:   tokenType,
		Expiry:      ts.now().UTC().Add(time.Duration(expiresIn) * time.Second),
	}, nil
}

func (ts *TokenSource) signedAssertion() (string, error) {
	issuedAt := ts.now().UTC()
	expiresAt := issuedAt.Add(assertionLifetime)

	claims := map[string]any{
		"iss":   ts.cred.ClientEmail,
		"scope": ts.scope,
		"aud":   ts.tokenURL,
		"iat":   issuedAt.Unix(),
		"exp":   expiresAt.Unix(),
	}
	return signJWTAssertion(claims, ts.cred.Key)
}

func signJWTAssertion(claims map[string]any, privateKey *rsa.PrivateKey) (string, error) {
	if privateKey == nil {
		return "", errors.New("rsa private key is required")
	}
	headerJSON, err := json.Marshal(map[string]string{"alg": "RS256", "typ": "JWT"})
	if err != nil {
		return "", err
	}
	claimsJSON, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	encodedHeader := base64.RawURLEncoding.EncodeToString(headerJSON)
	encodedClaims := base64.RawURLEncoding.EncodeToString(claimsJSON)
	signingInput := encodedHeader + "." + encodedClaims

	hash := sha256.Sum256([]byte(signingInput))
	signature, err := rsa.SignPKCS1v15(rand.Reader, privateKey, crypto.SHA256, hash[:])
	if err != nil {
		return "", err
	}
	return signingInput + "." + base64.RawURLEncoding.EncodeToString(signature), nil
}
