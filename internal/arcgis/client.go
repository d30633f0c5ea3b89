package arcgis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MrSnakeDoc/appendix/internal/logger"
	"github.com/MrSnakeDoc/appendix/internal/observability"
	"github.com/MrSnakeDoc/appendix/internal/utils"
)

const (
	DefaultPortalURL           = "https://gispublic.waterboards.ca.gov/portal"
	DefaultBasemapBaseURL      = "https://services.arcgisonline.com/ArcGIS/rest/services/Canvas/World_Light_Gray_Base/MapServer/export"
	DefaultBasemapReferenceURL = "https://services.arcgisonline.com/ArcGIS/rest/services/Canvas/World_Light_Gray_Reference/MapServer/export"

	DefaultQueryTimeout  = 15 * time.Second
	DefaultExportTimeout = 20 * time.Second

	maxJSONBody  = 16 << 20
	maxImageBody = 32 << 20
	snippetLen   = 300
)

// Options configures a Client. Zero values fall back to the defaults above.
type Options struct {
	PortalURL           string
	BasemapBaseURL      string
	BasemapReferenceURL string
	QueryTimeout        time.Duration
	ExportTimeout       time.Duration
	HTTPClient          *http.Client
}

// Client talks to an ArcGIS portal and the map services it points at.
type Client struct {
	httpClient    *http.Client
	portalURL     string
	basemapBase   string
	basemapRef    string
	queryTimeout  time.Duration
	exportTimeout time.Duration
	metrics       *observability.Metrics
	logger        logger.Logger
}

// NewClient creates an ArcGIS REST client.
func NewClient(opts Options, metrics *observability.Metrics, log logger.Logger) *Client {
	c := &Client{
		httpClient:    opts.HTTPClient,
		portalURL:     strings.TrimRight(opts.PortalURL, "/"),
		basemapBase:   opts.BasemapBaseURL,
		basemapRef:    opts.BasemapReferenceURL,
		queryTimeout:  opts.QueryTimeout,
		exportTimeout: opts.ExportTimeout,
		metrics:       metrics,
		logger:        log,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	if c.portalURL == "" {
		c.portalURL = DefaultPortalURL
	}
	if c.basemapBase == "" {
		c.basemapBase = DefaultBasemapBaseURL
	}
	if c.basemapRef == "" {
		c.basemapRef = DefaultBasemapReferenceURL
	}
	if c.queryTimeout <= 0 {
		c.queryTimeout = DefaultQueryTimeout
	}
	if c.exportTimeout <= 0 {
		c.exportTimeout = DefaultExportTimeout
	}
	return c
}

// PortalURL returns the portal root without a trailing slash.
func (c *Client) PortalURL() string { return c.portalURL }

func (c *Client) itemURL(itemID string) string {
	return fmt.Sprintf("%s/sharing/rest/content/items/%s?f=json", c.portalURL, itemID)
}

func (c *Client) itemDataURL(itemID string) string {
	return fmt.Sprintf("%s/sharing/rest/content/items/%s/data?f=json", c.portalURL, itemID)
}

// fetchJSON GETs rawURL under the query timeout and decodes the body into out.
func (c *Client) fetchJSON(ctx context.Context, kind, rawURL string, out any) error {
	ctx, cancel := context.WithTimeoutCause(ctx, c.queryTimeout, errCallTimeout)
	defer cancel()

	start := time.Now()
	body, _, err := c.get(ctx, kind, "", rawURL, c.queryTimeout, maxJSONBody)
	if err != nil {
		c.observe(kind, err, start)
		return err
	}

	var envelope struct {
		Error *serviceError `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil && envelope.Error != nil {
		err := &TransportError{Failure: FailureService, URL: rawURL, Err: envelope.Error}
		c.observe(kind, err, start)
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		terr := &TransportError{Failure: FailureDecode, URL: rawURL, Err: err}
		c.observe(kind, terr, start)
		return terr
	}

	c.observe(kind, nil, start)
	return nil
}

// fetchImage GETs rawURL under the export timeout and insists on an image/*
// response. op prefixes status and content-type errors.
func (c *Client) fetchImage(ctx context.Context, kind, op, rawURL string) ([]byte, error) {
	ctx, cancel := context.WithTimeoutCause(ctx, c.exportTimeout, errCallTimeout)
	defer cancel()

	start := time.Now()
	body, contentType, err := c.get(ctx, kind, op, rawURL, c.exportTimeout, maxImageBody)
	if err != nil {
		c.observe(kind, err, start)
		return nil, err
	}

	ct := strings.ToLower(strings.TrimSpace(contentType))
	if !strings.HasPrefix(ct, "image/") {
		terr := &TransportError{
			Failure:     FailureNotImage,
			Op:          op,
			URL:         rawURL,
			ContentType: ct,
			Snippet:     snippet(body),
		}
		c.observe(kind, terr, start)
		return nil, terr
	}

	c.observe(kind, nil, start)
	return body, nil
}

func (c *Client) get(ctx context.Context, kind, op, rawURL string, timeout time.Duration, limit int64) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", &TransportError{Failure: FailureNetwork, URL: rawURL, Err: fmt.Errorf("create request: %w", err)}
	}

	c.logger.Debug("arcgis request", logger.String("kind", kind), logger.String("url", rawURL))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", networkError(ctx, rawURL, timeout, err)
	}
	defer utils.Close(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, snippetLen))
		return nil, "", &TransportError{Failure: FailureStatus, Op: op, URL: rawURL, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, "", networkError(ctx, rawURL, timeout, err)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

// errCallTimeout is the cancellation cause of the per-call deadline.
var errCallTimeout = errors.New("upstream call timeout")

// networkError attributes a failure to the per-call deadline only when that
// is what fired; a caller's deadline or cancellation is a plain network error.
func networkError(ctx context.Context, rawURL string, timeout time.Duration, err error) *TransportError {
	if errors.Is(context.Cause(ctx), errCallTimeout) {
		return &TransportError{Failure: FailureTimeout, URL: rawURL, Timeout: timeout, Err: err}
	}
	return &TransportError{Failure: FailureNetwork, URL: rawURL, Err: err}
}

func (c *Client) observe(kind string, err error, start time.Time) {
	if c.metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
		var terr *TransportError
		if errors.As(err, &terr) {
			outcome = terr.Outcome()
		}
	}
	c.metrics.UpstreamRequests.WithLabelValues(kind, outcome).Inc()
	c.metrics.UpstreamDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

// snippet returns the first bytes of an unexpected body with whitespace collapsed.
func snippet(body []byte) string {
	if len(body) > snippetLen {
		body = body[:snippetLen]
	}
	s := strings.ToValidUTF8(string(bytes.TrimSpace(body)), "")
	return strings.Join(strings.Fields(s), " ")
}
