package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MrSnakeDoc/appendix/internal/httpserver/deps"
	"github.com/MrSnakeDoc/appendix/internal/logger"
	"github.com/MrSnakeDoc/appendix/internal/turnstile"
	"github.com/MrSnakeDoc/appendix/internal/utils"
)

type turnstileBody struct {
	Token string `json:"token"`
}

type turnstileResponse struct {
	OK         bool     `json:"ok"`
	Error      string   `json:"error,omitempty"`
	ErrorCodes []string `json:"errorCodes,omitempty"`
}

// TurnstileVerify serves POST /api/turnstile/verify.
func TurnstileVerify(d deps.Deps) http.HandlerFunc {
	proxies := utils.NewIPMatcher(d.TrustedProxies)
	return func(w http.ResponseWriter, r *http.Request) {
		var body turnstileBody
		_ = json.NewDecoder(r.Body).Decode(&body)

		res, err := d.Turnstile.Verify(r.Context(), body.Token, utils.ClientIP(r, proxies))
		switch {
		case errors.Is(err, turnstile.ErrNotConfigured):
			writeJSON(w, http.StatusInternalServerError, turnstileResponse{Error: "Missing TURNSTILE_SECRET_KEY"})
		case errors.Is(err, turnstile.ErrMissingToken):
			writeJSON(w, http.StatusBadRequest, turnstileResponse{Error: "Missing token"})
		case err != nil:
			d.Logger.Warn("turnstile verification failed", logger.Error(err))
			writeJSON(w, http.StatusBadGateway, turnstileResponse{Error: "verification failed"})
		default:
			writeJSON(w, http.StatusOK, turnstileResponse{OK: res.OK, ErrorCodes: res.ErrorCodes})
		}
	}
}
