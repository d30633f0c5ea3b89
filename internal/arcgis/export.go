package arcgis

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/MrSnakeDoc/appendix/internal/geo"
	"github.com/MrSnakeDoc/appendix/internal/observability"
)

// Print frame shared by the overlay and basemap exports.
const (
	FrameHalfWidthMeters = 2100
	FrameWidthPx         = 1200
	FrameHeightPx        = 693
	FrameDPI             = 110
)

var featureServerPattern = regexp.MustCompile(`(?i)/FeatureServer\b`)

// Basemap holds the opaque base raster and the transparent label overlay.
type Basemap struct {
	BaseBase64      string
	ReferenceBase64 string
}

// Frame returns the print frame box centered on p.
func Frame(p geo.Point) geo.BBox {
	return geo.BoundingBoxAspect(p, FrameHalfWidthMeters, FrameWidthPx, FrameHeightPx)
}

func exportParams(box geo.BBox, format string, transparent bool) url.Values {
	return url.Values{
		"f":           {"image"},
		"bbox":        {box.String()},
		"bboxSR":      {"3857"},
		"imageSR":     {"3857"},
		"size":        {fmt.Sprintf("%d,%d", FrameWidthPx, FrameHeightPx)},
		"format":      {format},
		"transparent": {strconv.FormatBool(transparent)},
		"dpi":         {strconv.Itoa(FrameDPI)},
	}
}

// ExportURL builds the overlay export request. Feature services are drawn
// through their MapServer sibling.
func ExportURL(svc ServiceDescriptor, p geo.Point) string {
	base := featureServerPattern.ReplaceAllLiteralString(svc.BaseURL, "/MapServer")
	base = strings.TrimSuffix(base, "/") + "/export"

	params := exportParams(Frame(p), "png8", true)
	if svc.LayerID >= 0 {
		params.Set("layers", fmt.Sprintf("show:%d", svc.LayerID))
	}
	return base + "?" + params.Encode()
}

// ExportMapImage renders the factor layer around p and returns it base64 encoded.
func (c *Client) ExportMapImage(ctx context.Context, svc ServiceDescriptor, p geo.Point) (string, error) {
	img, err := c.fetchImage(ctx, observability.KindExport, "export", ExportURL(svc, p))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(img), nil
}

// BasemapURLs returns the base and reference export requests for p.
func (c *Client) BasemapURLs(p geo.Point) (base, reference string) {
	box := Frame(p)

	baseParams := exportParams(box, "jpg", false)
	baseParams.Set("compressionQuality", "70")
	refParams := exportParams(box, "png32", true)

	return c.basemapBase + "?" + baseParams.Encode(), c.basemapRef + "?" + refParams.Encode()
}

// ExportBasemap fetches the light gray base and reference rasters concurrently.
func (c *Client) ExportBasemap(ctx context.Context, p geo.Point) (Basemap, error) {
	baseURL, refURL := c.BasemapURLs(p)

	var base, ref []byte
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		base, err = c.fetchImage(gctx, observability.KindBasemap, "basemap base", baseURL)
		return err
	})
	g.Go(func() error {
		var err error
		ref, err = c.fetchImage(gctx, observability.KindBasemap, "basemap reference", refURL)
		return err
	})
	if err := g.Wait(); err != nil {
		return Basemap{}, err
	}

	return Basemap{
		BaseBase64:      base64.StdEncoding.EncodeToString(base),
		ReferenceBase64: base64.StdEncoding.EncodeToString(ref),
	}, nil
}
