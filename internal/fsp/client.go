package fsp

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dsrph/payment-disbursement/internal"
	fspmodel "github.com/dsrph/payment-disbursement/internal/core/datamodel/fsp"
	"github.com/dsrph/payment-disbursement/pkg/secrets"
)

// apiClient is the HTTP plumbing shared by the provider adapters: sealed
// credential handling, bearer-token minting, and transient/definitive
// classification of transport failures.
type apiClient struct {
	cipher *secrets.Cipher
	logger *slog.Logger
}

func newAPIClient(cipher *secrets.Cipher, logger *slog.Logger) *apiClient {
	return &apiClient{cipher: cipher, logger: logger}
}

// bearerToken mints a short-lived HS256 assertion from the sealed
// credentials. Provider sandboxes verify it against the shared api secret.
func (c *apiClient) bearerToken(cfg *fspmodel.FSPConfiguration) (string, error) {
	apiKey, err := c.cipher.Open(cfg.APIKeySealed)
	if err != nil {
		return "", fmt.Errorf("unseal api key for %s: %w", cfg.FSPCode, err)
	}
	apiSecret, err := c.cipher.Open(cfg.APISecretSealed)
	if err != nil {
		return "", fmt.Errorf("unseal api secret for %s: %w", cfg.FSPCode, err)
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    "payment-disbursement",
		Subject:   apiKey,
		Audience:  jwt.ClaimStrings{cfg.FSPCode},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(2 * time.Minute)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(apiSecret))
	if err != nil {
		return "", fmt.Errorf("sign bearer token for %s: %w", cfg.FSPCode, err)
	}
	return signed, nil
}

// doJSON performs one provider call. Transport errors and 5xx/timeout-class
// statuses come back as transient external-provider errors; everything else
// is returned to the adapter to interpret against its wire format.
func (c *apiClient) doJSON(ctx context.Context, method, url string, body []byte, cfg *fspmodel.FSPConfiguration) (int, []byte, error) {
	token, err := c.bearerToken(cfg)
	if err != nil {
		return 0, nil, internal.NewInternalError("provider credentials unavailable", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, internal.NewInternalError("build provider request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	httpClient := &http.Client{
		Timeout: cfg.ConnectTimeout() + cfg.ReadTimeout(),
	}

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error("provider call failed", "fsp_code", cfg.FSPCode, "url", url, "error", err)
		return 0, nil, internal.NewExternalProviderError(
			fmt.Sprintf("%s unreachable", cfg.FSPCode), internal.ErrCodeProviderTimeout, true).WithCause(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, internal.NewExternalProviderError(
			fmt.Sprintf("%s response unreadable", cfg.FSPCode), internal.ErrCodeProviderTimeout, true).WithCause(err)
	}

	if resp.StatusCode >= http.StatusInternalServerError ||
		resp.StatusCode == http.StatusTooManyRequests ||
		resp.StatusCode == http.StatusRequestTimeout {
		c.logger.Warn("provider returned retryable status",
			"fsp_code", cfg.FSPCode, "status", resp.StatusCode, "response", string(respBody))
		return resp.StatusCode, respBody, internal.NewExternalProviderError(
			fmt.Sprintf("%s returned HTTP %d", cfg.FSPCode, resp.StatusCode), internal.ErrCodeProviderTimeout, true)
	}

	return resp.StatusCode, respBody, nil
}

// verifyWebhookSignature checks the HMAC-SHA256 hex digest providers send in
// X-Webhook-Signature. An empty configured secret disables the check, which
// only the sandbox environments use.
func verifyWebhookSignature(payload []byte, signature, secret string) bool {
	if secret == "" {
		return true
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
