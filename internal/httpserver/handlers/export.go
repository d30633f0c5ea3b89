package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/MrSnakeDoc/appendix/internal/httpserver/deps"
	"github.com/MrSnakeDoc/appendix/internal/logger"
	"github.com/MrSnakeDoc/appendix/internal/pdf"
)

type exportBody struct {
	HTML     string `json:"html"`
	Appendix string `json:"appendix"`
}

// Export serves POST /export: renders the posted appendix HTML to a PDF
// attachment.
func Export(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body exportBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			body = exportBody{}
		}
		if strings.TrimSpace(body.HTML) == "" {
			writeError(w, http.StatusBadRequest, "Missing html")
			return
		}
		if d.PDF == nil || !d.PDF.Enabled() {
			writeError(w, http.StatusServiceUnavailable, "pdf export is not configured")
			return
		}

		out, err := d.PDF.Render(r.Context(), body.HTML)
		if err != nil {
			d.Logger.Error("pdf export failed", logger.Error(err))
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}

		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", pdf.FilenameFor(body.Appendix)))
		w.Header().Set("Content-Length", strconv.Itoa(len(out)))
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(out); err != nil {
			d.Logger.Debug("failed to write pdf", logger.Error(err))
		}
	}
}
