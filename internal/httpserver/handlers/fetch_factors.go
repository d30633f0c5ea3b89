package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/MrSnakeDoc/appendix/internal/factors"
	"github.com/MrSnakeDoc/appendix/internal/geo"
	"github.com/MrSnakeDoc/appendix/internal/httpserver/deps"
	"github.com/MrSnakeDoc/appendix/internal/logger"
)

const (
	msgMissingAddress = "Missing addressText"
	msgNotAPoint      = "Address geocoding is not configured yet. Enter Lat,Lng for now."
	msgUsePost        = "Use POST /api/fetch-factors"
)

type fetchFactorsBody struct {
	AddressText   json.RawMessage `json:"addressText"`
	IncludeImages json.RawMessage `json:"includeImages"`
}

// parseFetchRequest reads the loosely typed request body. Malformed JSON
// reads as {}; a non-string addressText reads as missing; images are only
// skipped for the literal false.
func parseFetchRequest(body []byte) factors.FetchRequest {
	req := factors.FetchRequest{IncludeImages: true}

	var raw fetchFactorsBody
	if err := json.Unmarshal(body, &raw); err != nil {
		return req
	}
	_ = json.Unmarshal(raw.AddressText, &req.AddressText)
	req.IncludeImages = !bytes.Equal(bytes.TrimSpace(raw.IncludeImages), []byte("false"))
	return req
}

// FetchFactors serves POST /api/fetch-factors.
func FetchFactors(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			writeError(w, http.StatusBadRequest, "failed to read request body")
			return
		}

		req := parseFetchRequest(body)
		payload, err := d.Factors.FetchFactors(r.Context(), req)
		if err != nil {
			switch {
			case factors.IsInputError(err):
				msg := msgMissingAddress
				if errors.Is(err, geo.ErrInvalidPoint) {
					msg = msgNotAPoint
				}
				writeError(w, http.StatusBadRequest, msg)
			default:
				d.Logger.Error("fetch-factors failed",
					logger.String("class", factors.Classify(err)),
					logger.Bool("include_images", req.IncludeImages),
					logger.Error(err))
				writeError(w, http.StatusInternalServerError, err.Error())
			}
			return
		}

		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, http.StatusOK, payload)
	}
}

// FetchFactorsMethodNotAllowed answers every non-POST method.
func FetchFactorsMethodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Allow", http.MethodPost)
	writeError(w, http.StatusMethodNotAllowed, msgUsePost)
}
