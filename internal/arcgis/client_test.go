package arcgis

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/appendix/internal/domain"
	"github.com/MrSnakeDoc/appendix/internal/geo"
	"github.com/MrSnakeDoc/appendix/internal/logger"
	"github.com/MrSnakeDoc/appendix/internal/observability"
)

var testPoint = geo.Point{Lat: 37.3, Lng: -122.0}

func TestClient_QueryValueAtPoint_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/services/Soils/MapServer/4/query", r.URL.Path)

		q := r.URL.Query()
		assert.Equal(t, "json", q.Get("f"))
		assert.Equal(t, "1=1", q.Get("where"))
		assert.Equal(t, "-122,37.3", q.Get("geometry"))
		assert.Equal(t, "esriGeometryPoint", q.Get("geometryType"))
		assert.Equal(t, "4326", q.Get("inSR"))
		assert.Equal(t, "esriSpatialRelIntersects", q.Get("spatialRel"))
		assert.Equal(t, "*", q.Get("outFields"))
		assert.Equal(t, "false", q.Get("returnGeometry"))
		assert.Equal(t, "1", q.Get("resultRecordCount"))

		w.Header().Set(headerContentType, contentTypeJSON)
		_, _ = w.Write([]byte(`{"features": [{"attributes": {"OBJECTID": 50321, "K_VALUE": 0.32, "SHAPE_Area": 45021.3}}]}`))
	}))
	defer srv.Close()

	svc := ServiceDescriptor{BaseURL: srv.URL + "/rest/services/Soils/MapServer", LayerID: 4}
	res, err := testClient("").QueryValueAtPoint(context.Background(), svc, domain.FactorK, testPoint)
	require.NoError(t, err)

	assert.Equal(t, "0.32", res.Value)
	assert.Equal(t, "K_VALUE", res.ValueField)
	assert.Equal(t, "{\n  \"OBJECTID\": 50321,\n  \"K_VALUE\": 0.32,\n  \"SHAPE_Area\": 45021.3\n}", res.PopupText)
	assert.Empty(t, res.ScreenshotBase64)
}

func TestClient_QueryValueAtPoint_NoFeatures(t *testing.T) {
	bodies := []string{
		`{"features": []}`,
		`{}`,
		`{"features": [{"attributes": null}]}`,
		`{"features": [{"attributes": [1, 2]}]}`,
		`{"features": [{"attributes": "text"}]}`,
		`{"features": [7]}`,
		`{"features": {"attributes": {"K": 1}}}`,
		`{"error": {"code": 400, "message": "Invalid layer"}}`,
	}
	for _, body := range bodies {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set(headerContentType, contentTypeJSON)
			_, _ = w.Write([]byte(body))
		}))

		res, err := testClient("").QueryValueAtPoint(context.Background(), ServiceDescriptor{BaseURL: srv.URL}, domain.FactorLS, testPoint)
		srv.Close()

		require.NoError(t, err, body)
		assert.Equal(t, domain.FactorResult{PopupText: domain.NoFeaturesPopup}, res, body)
	}
}

func TestClient_QueryValueAtPoint_Errors(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantFailure Failure
		wantPrefix  string
	}{
		{"bad gateway", http.StatusBadGateway, `oops`, FailureStatus, "HTTP 502 for "},
		{"not json", http.StatusOK, `<html>`, FailureDecode, "failed to parse json for "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := testClient("").QueryValueAtPoint(context.Background(), ServiceDescriptor{BaseURL: srv.URL}, domain.FactorLS, testPoint)
			require.Error(t, err)

			var terr *TransportError
			require.True(t, errors.As(err, &terr))
			assert.Equal(t, tt.wantFailure, terr.Failure)
			assert.True(t, strings.HasPrefix(err.Error(), tt.wantPrefix+srv.URL), err.Error())
		})
	}
}

func TestClient_QueryValueAtPoint_OutOfRangeNumber(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(headerContentType, contentTypeJSON)
		_, _ = w.Write([]byte(`{"features": [{"attributes": {"Overflow": 1e400, "LS_FACTOR": 1.2}}]}`))
	}))
	defer srv.Close()

	res, err := testClient("").QueryValueAtPoint(context.Background(), ServiceDescriptor{BaseURL: srv.URL}, domain.FactorLS, testPoint)
	require.NoError(t, err)
	// Non-finite values skip the range adjustments, so the base score beats
	// LS_FACTOR's small-range shift.
	assert.Equal(t, "Infinity", res.Value)
	assert.Equal(t, "Overflow", res.ValueField)
	assert.Equal(t, "{\n  \"Overflow\": null,\n  \"LS_FACTOR\": 1.2\n}", res.PopupText)
}

func TestClient_FetchJSON_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewClient(Options{QueryTimeout: 50 * time.Millisecond}, observability.NewMetricsForTesting(), logger.NewNop())
	_, err := c.QueryValueAtPoint(context.Background(), ServiceDescriptor{BaseURL: srv.URL}, domain.FactorK, testPoint)
	require.Error(t, err)

	var terr *TransportError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, FailureTimeout, terr.Failure)
	assert.Equal(t, "timeout", terr.Outcome())
	assert.True(t, strings.HasPrefix(err.Error(), "fetch failed url="+srv.URL))
	assert.True(t, strings.HasSuffix(err.Error(), "detail=timeout after 50ms"), err.Error())
}

func TestClient_FetchJSON_CallerDeadlineIsNotCallTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewClient(Options{QueryTimeout: 15 * time.Second}, observability.NewMetricsForTesting(), logger.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.QueryValueAtPoint(ctx, ServiceDescriptor{BaseURL: srv.URL}, domain.FactorK, testPoint)
	require.Error(t, err)

	var terr *TransportError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, FailureNetwork, terr.Failure)
	assert.NotContains(t, err.Error(), "timeout after 15000ms")
	assert.True(t, errors.Is(err, context.DeadlineExceeded), err.Error())
}

func TestClient_ExportMapImage_Success(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\nfake")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/services/LS/MapServer/export", r.URL.Path)

		q := r.URL.Query()
		assert.Equal(t, "image", q.Get("f"))
		assert.Equal(t, "3857", q.Get("bboxSR"))
		assert.Equal(t, "3857", q.Get("imageSR"))
		assert.Equal(t, "1200,693", q.Get("size"))
		assert.Equal(t, "png8", q.Get("format"))
		assert.Equal(t, "true", q.Get("transparent"))
		assert.Equal(t, "show:3", q.Get("layers"))
		assert.Equal(t, "110", q.Get("dpi"))
		assert.Equal(t, Frame(testPoint).String(), q.Get("bbox"))

		w.Header().Set(headerContentType, "image/png")
		_, _ = w.Write(png)
	}))
	defer srv.Close()

	svc := ServiceDescriptor{BaseURL: srv.URL + "/rest/services/LS/FeatureServer", LayerID: 3}
	got, err := testClient("").ExportMapImage(context.Background(), svc, testPoint)
	require.NoError(t, err)
	assert.Equal(t, base64.StdEncoding.EncodeToString(png), got)
}

func TestClient_ExportMapImage_RejectsHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(headerContentType, "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html>\n  <body>\n\tService   unavailable\n  </body>\n</html>"))
	}))
	defer srv.Close()

	svc := ServiceDescriptor{BaseURL: srv.URL + "/rest/services/LS/MapServer", LayerID: 0}
	got, err := testClient("").ExportMapImage(context.Background(), svc, testPoint)
	require.Error(t, err)
	assert.Empty(t, got)

	var terr *TransportError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, FailureNotImage, terr.Failure)
	assert.Equal(t, "<html> <body> Service unavailable </body> </html>", terr.Snippet)

	msg := err.Error()
	assert.True(t, strings.HasPrefix(msg, "export did not return an image (content-type: text/html; charset=utf-8). url="+srv.URL), msg)
	assert.Contains(t, msg, `snippet="<html> <body> Service unavailable </body> </html>"`)
}

func TestClient_ExportBasemap(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/base/export", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "jpg", q.Get("format"))
		assert.Equal(t, "false", q.Get("transparent"))
		assert.Equal(t, "70", q.Get("compressionQuality"))
		assert.Empty(t, q.Get("layers"))
		w.Header().Set(headerContentType, "image/jpeg")
		_, _ = w.Write([]byte("base"))
	})
	mux.HandleFunc("/ref/export", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "png32", q.Get("format"))
		assert.Equal(t, "true", q.Get("transparent"))
		assert.Empty(t, q.Get("compressionQuality"))
		w.Header().Set(headerContentType, "image/png")
		_, _ = w.Write([]byte("ref"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(Options{
		BasemapBaseURL:      srv.URL + "/base/export",
		BasemapReferenceURL: srv.URL + "/ref/export",
	}, observability.NewMetricsForTesting(), logger.NewNop())

	bm, err := c.ExportBasemap(context.Background(), testPoint)
	require.NoError(t, err)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("base")), bm.BaseBase64)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("ref")), bm.ReferenceBase64)
}

func TestClient_ExportBasemap_ReferenceFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/base/export", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(headerContentType, "image/jpeg")
		_, _ = w.Write([]byte("base"))
	})
	mux.HandleFunc("/ref/export", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(Options{
		BasemapBaseURL:      srv.URL + "/base/export",
		BasemapReferenceURL: srv.URL + "/ref/export",
	}, observability.NewMetricsForTesting(), logger.NewNop())

	_, err := c.ExportBasemap(context.Background(), testPoint)
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "basemap reference failed HTTP 503 for "+srv.URL+"/ref/export"), err.Error())
}

func TestExportURL_FeatureServerRewrite(t *testing.T) {
	u := ExportURL(ServiceDescriptor{BaseURL: "https://h/arcgis/rest/services/K/featureserver", LayerID: 2}, testPoint)
	assert.True(t, strings.HasPrefix(u, "https://h/arcgis/rest/services/K/MapServer/export?"), u)
	assert.Contains(t, u, "layers=show%3A2")
}

func TestFrameAspect(t *testing.T) {
	box := Frame(testPoint)
	assert.InDelta(t, float64(FrameHeightPx)/float64(FrameWidthPx), box.Height()/box.Width(), 1e-9)
	assert.InDelta(t, 2*FrameHalfWidthMeters, box.Width(), 1e-6)
}
