package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/MrSnakeDoc/appendix/internal/logger"
	"github.com/MrSnakeDoc/appendix/internal/observability"
	"github.com/MrSnakeDoc/appendix/internal/utils"
)

// ErrNotConfigured is returned when no renderer URL is set.
var ErrNotConfigured = errors.New("pdf renderer is not configured")

const (
	convertPath = "/forms/chromium/convert/html"
	maxPDFBody  = 64 << 20
)

// Page layout: US letter, no margins, backgrounds printed.
var pageFields = map[string]string{
	"paperWidth":      "8.5",
	"paperHeight":     "11",
	"marginTop":       "0",
	"marginBottom":    "0",
	"marginLeft":      "0",
	"marginRight":     "0",
	"printBackground": "true",
}

// FilenameFor returns the attachment name for an appendix letter.
func FilenameFor(appendix string) string {
	if strings.EqualFold(strings.TrimSpace(appendix), "A") {
		return "SWPPP_AppendixA.pdf"
	}
	return "Appendix_L.pdf"
}

// Renderer converts HTML documents to PDF through a headless Chromium
// conversion service.
type Renderer struct {
	baseURL    string
	httpClient *http.Client
	metrics    *observability.Metrics
	logger     logger.Logger
}

// NewRenderer creates a renderer. An empty baseURL leaves it disabled.
func NewRenderer(baseURL string, timeout time.Duration, metrics *observability.Metrics, log logger.Logger) *Renderer {
	return &Renderer{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		metrics:    metrics,
		logger:     log,
	}
}

// Enabled reports whether a renderer URL is configured.
func (r *Renderer) Enabled() bool { return r.baseURL != "" }

// Render converts html to a PDF document.
func (r *Renderer) Render(ctx context.Context, html string) ([]byte, error) {
	if !r.Enabled() {
		return nil, ErrNotConfigured
	}

	out, err := r.render(ctx, html)
	r.record(err)
	return out, err
}

func (r *Renderer) render(ctx context.Context, html string) ([]byte, error) {
	body, contentType, err := buildForm(html)
	if err != nil {
		return nil, err
	}

	target := r.baseURL + convertPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	start := time.Now()
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pdf render request: %w", err)
	}
	defer utils.Close(resp.Body)

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("pdf renderer error: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	out, err := io.ReadAll(io.LimitReader(resp.Body, maxPDFBody))
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}
	if !bytes.HasPrefix(out, []byte("%PDF")) {
		return nil, fmt.Errorf("pdf renderer returned %d bytes that are not a pdf", len(out))
	}

	r.logger.Debug("rendered pdf",
		logger.Int("bytes", len(out)),
		logger.Duration("elapsed", time.Since(start)))
	return out, nil
}

func buildForm(html string) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("files", "index.html")
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.WriteString(part, html); err != nil {
		return nil, "", fmt.Errorf("write html: %w", err)
	}
	for k, v := range pageFields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", k, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close form: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

func (r *Renderer) record(err error) {
	if r.metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	r.metrics.PDFRenders.WithLabelValues(outcome).Inc()
}
