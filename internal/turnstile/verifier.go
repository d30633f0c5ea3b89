package turnstile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrSnakeDoc/appendix/internal/logger"
	"github.com/MrSnakeDoc/appendix/internal/observability"
	"github.com/MrSnakeDoc/appendix/internal/utils"
)

// DefaultVerifyURL is the Cloudflare siteverify endpoint.
const DefaultVerifyURL = "https://challenges.cloudflare.com/turnstile/v0/siteverify"

var (
	// ErrNotConfigured is returned when no secret key is set.
	ErrNotConfigured = errors.New("turnstile secret key is not configured")
	// ErrMissingToken is returned for an empty challenge token.
	ErrMissingToken = errors.New("missing token")
)

// Result is the outcome of a siteverify call.
type Result struct {
	OK         bool     `json:"ok"`
	ErrorCodes []string `json:"errorCodes,omitempty"`
}

type siteverifyResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
}

// Verifier checks Turnstile challenge tokens.
type Verifier struct {
	secret     string
	verifyURL  string
	httpClient *http.Client
	metrics    *observability.Metrics
	logger     logger.Logger
}

func NewVerifier(secret, verifyURL string, timeout time.Duration, metrics *observability.Metrics, log logger.Logger) *Verifier {
	if verifyURL == "" {
		verifyURL = DefaultVerifyURL
	}
	return &Verifier{
		secret:     secret,
		verifyURL:  verifyURL,
		httpClient: &http.Client{Timeout: timeout},
		metrics:    metrics,
		logger:     log,
	}
}

// Verify posts token to siteverify. A rejected token is not an error; it
// yields a Result with OK false and the provider's error codes.
func (v *Verifier) Verify(ctx context.Context, token, remoteIP string) (Result, error) {
	if v.secret == "" {
		return Result{}, ErrNotConfigured
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return Result{}, ErrMissingToken
	}

	res, err := v.verify(ctx, token, remoteIP)
	v.record(res, err)
	return res, err
}

func (v *Verifier) verify(ctx context.Context, token, remoteIP string) (Result, error) {
	form := url.Values{}
	form.Set("secret", v.secret)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Result{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("siteverify request: %w", err)
	}
	defer utils.Close(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("siteverify error: status %d", resp.StatusCode)
	}

	var body siteverifyResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return Result{}, fmt.Errorf("decode siteverify response: %w", err)
	}

	if !body.Success {
		v.logger.Info("turnstile token rejected", logger.Strings("error_codes", body.ErrorCodes))
		codes := body.ErrorCodes
		if codes == nil {
			codes = []string{}
		}
		return Result{OK: false, ErrorCodes: codes}, nil
	}
	return Result{OK: true}, nil
}

func (v *Verifier) record(res Result, err error) {
	if v.metrics == nil {
		return
	}
	outcome := "passed"
	switch {
	case err != nil:
		outcome = "error"
	case !res.OK:
		outcome = "rejected"
	}
	v.metrics.TurnstileVerifications.WithLabelValues(outcome).Inc()
}
