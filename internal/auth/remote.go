package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/iconidentify/tubevault/internal/config"
	"github.com/iconidentify/tubevault/internal/domain"
)

// RemoteValidator asks the identity service who owns a token via GET /auth/me.
type RemoteValidator struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewRemoteValidator creates a validator for the identity service at cfg.ServiceURL.
func NewRemoteValidator(cfg config.AuthConfig, logger *slog.Logger) *RemoteValidator {
	return &RemoteValidator{
		baseURL: strings.TrimRight(cfg.ServiceURL, "/"),
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
	}
}

// Validate forwards token to the identity service. A non-2xx answer means the
// token is invalid; transport failures are returned as plain errors.
func (v *RemoteValidator) Validate(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, domain.ErrUnauthorized
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/auth/me", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		v.logger.Warn("token rejected by identity service", "status", resp.StatusCode)
		return nil, fmt.Errorf("%w: identity service returned %d", domain.ErrInvalidToken, resp.StatusCode)
	}

	var id Identity
	if err := json.NewDecoder(resp.Body).Decode(&id); err != nil {
		return nil, fmt.Errorf("decode identity: %w", err)
	}
	return &id, nil
}

// NoneValidator rejects every token. Premium requests can never pass it.
type NoneValidator struct{}

func (NoneValidator) Validate(ctx context.Context, token string) (*Identity, error) {
	return nil, domain.ErrUnauthorized
}

// NewValidator selects the validator named by cfg.Mode.
func NewValidator(cfg config.AuthConfig, logger *slog.Logger) (Validator, error) {
	switch cfg.Mode {
	case "jwt":
		return NewJWTValidator(cfg), nil
	case "remote":
		return NewRemoteValidator(cfg, logger), nil
	case "none":
		return NoneValidator{}, nil
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.Mode)
	}
}
