package main

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/nesttask/nesttask-push/internal/config"
	"github.com/nesttask/nesttask-push/internal/fcm"
	"github.com/nesttask/nesttask-push/internal/secrets"
)

// loadCredential builds the service account credential, pulling the private
// key from Vault when the environment does not carry one.
func loadCredential(ctx context.Context, cfg config.Config) (*fcm.Credential, error) {
	rawKey := cfg.FCMPrivateKey
	if strings.TrimSpace(rawKey) == "" {
		if cfg.VaultAddr == "" {
			return nil, errors.New("no FCM private key: set FCM_PRIVATE_KEY or VAULT_ADDR")
		}
		key, err := secrets.FetchPrivateKey(ctx, secrets.VaultKeySource{
			Address: cfg.VaultAddr,
			Token:   cfg.VaultToken,
			Mount:   cfg.VaultKeyMount,
			Path:    cfg.VaultKeyPath,
			Field:   cfg.VaultKeyField,
		})
		if err != nil {
			return nil, err
		}
		rawKey = key
	}
	return fcm.NewCredential(cfg.FCMProjectID, cfg.FCMClientEmail, rawKey)
}

func newGateway(cfg config.Config, cred *fcm.Credential) *fcm.Client {
	return fcm.NewClient(cred, fcm.ClientOptions{
		HTTPClient: &http.Client{Timeout: cfg.SendTimeout},
		SendURL:    cfg.FCMEndpoint,
		TokenURL:   cfg.FCMTokenURL,
	})
}
