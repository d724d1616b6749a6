// Package fcm authenticates to Firebase Cloud Messaging with a service-account
// key and delivers messages through the HTTP v1 send endpoint.
package fcm

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
)

const pemLineLength = 64

// Credential is the immutable service-account identity loaded once per process.
type Credential struct {
	ProjectID   string
	ClientEmail string
	Key         *rsa.PrivateKey
}

// NewCredential validates the service-account fields and parses the private key.
// The raw key is accepted in the forms environment variables tend to mangle it
// into: literal \n escapes instead of newlines, or a body stripped of line breaks.
func NewCredential(projectID, clientEmail, rawKey string) (*Credential, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return nil, errors.New("fcm: project id is required")
	}
	clientEmail = strings.TrimSpace(clientEmail)
	if clientEmail == "" {
		return nil, errors.New("fcm: client email is required")
	}
	key, err := ParseRSAPrivateKey(rawKey)
	if err != nil {
		return nil, fmt.Errorf("fcm: parse service account private key: %w", err)
	}
	return &Credential{
		ProjectID:   projectID,
		ClientEmail: clientEmail,
		Key:         key,
	}, nil
}

// NormalizePEM repairs a private key that passed through an environment
// variable and returns a canonical PEM block: standard BEGIN/END markers and a
// body wrapped at 64 characters.
func NormalizePEM(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("private key is required")
	}
	raw = strings.ReplaceAll(raw, `\n`, "\n")

	begin := strings.Index(raw, "-----BEGIN ")
	if begin < 0 {
		return "", errors.New("private key is missing the PEM BEGIN marker")
	}
	beginEnd := strings.Index(raw[begin+len("-----BEGIN "):], "-----")
	if beginEnd < 0 {
		return "", errors.New("private key has a malformed PEM BEGIN marker")
	}
	header := raw[begin : begin+len("-----BEGIN ")+beginEnd+len("-----")]
	label := strings.TrimSuffix(strings.TrimPrefix(header, "-----BEGIN "), "-----")
	footer := "-----END " + label + "-----"

	end := strings.Index(raw, footer)
	if end < 0 {
		return "", errors.New("private key is missing the PEM END marker")
	}

	body := raw[begin+len(header) : end]
	var b strings.Builder
	for _, r := range body {
		switch r {
		case ' ', '\t', '\r', '\n':
		default:
			b.WriteRune(r)
		}
	}
	compact := b.String()
	if compact == "" {
		return "", errors.New("private key PEM body is empty")
	}

	var out strings.Builder
	out.WriteString(header)
	out.WriteByte('\n')
	for len(compact) > 0 {
		n := pemLineLength
		if n > len(compact) {
			n = len(compact)
		}
		out.WriteString(compact[:n])
		out.WriteByte('\n')
		compact = compact[n:]
	}
	out.WriteString(footer)
	out.WriteByte('\n')
	return out.String(), nil
}

// ParseRSAPrivateKey normalizes the raw key and imports it. PKCS#8 is the
// form Google issues service-account keys in; PKCS#1 is accepted as well.
func ParseRSAPrivateKey(raw string) (*rsa.PrivateKey, error) {
	normalized, err := NormalizePEM(raw)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode([]byte(normalized))
	if block == nil {
		return nil, errors.New("invalid PEM private key")
	}

	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("private key is not RSA")
		}
		return rsaKey, nil
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	return nil, errors.New("unsupported private key format")
}
