package arcgis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/MrSnakeDoc/appendix/internal/domain"
	"github.com/MrSnakeDoc/appendix/internal/geo"
	"github.com/MrSnakeDoc/appendix/internal/logger"
	"github.com/MrSnakeDoc/appendix/internal/observability"
)

type queryResponse struct {
	Features json.RawMessage `json:"features"`
}

type queryFeature struct {
	Attributes domain.Attributes `json:"attributes"`
}

// firstAttributes returns the attributes of the first feature, or nil when
// features is missing, not an array, empty, or its head is not an object.
func (r queryResponse) firstAttributes() domain.Attributes {
	var features []json.RawMessage
	if json.Unmarshal(r.Features, &features) != nil || len(features) == 0 {
		return nil
	}
	var feat queryFeature
	if json.Unmarshal(features[0], &feat) != nil {
		return nil
	}
	return feat.Attributes
}

// QueryURL builds the point-intersect query for one feature, all fields,
// no geometry.
func QueryURL(svc ServiceDescriptor, p geo.Point) string {
	params := url.Values{
		"f":                 {"json"},
		"where":             {"1=1"},
		"geometry":          {p.String()},
		"geometryType":      {"esriGeometryPoint"},
		"inSR":              {"4326"},
		"spatialRel":        {"esriSpatialRelIntersects"},
		"outFields":         {"*"},
		"returnGeometry":    {"false"},
		"resultRecordCount": {"1"},
	}
	return fmt.Sprintf("%s/%d/query?%s", svc.BaseURL, svc.LayerID, params.Encode())
}

// QueryValueAtPoint reads the feature under p and picks its factor value.
// A point outside every polygon is not an error: it yields an empty value
// and an explanatory popup. So does a service error envelope on the query.
func (c *Client) QueryValueAtPoint(ctx context.Context, svc ServiceDescriptor, factor domain.FactorKey, p geo.Point) (domain.FactorResult, error) {
	noFeatures := domain.FactorResult{PopupText: domain.NoFeaturesPopup}

	var resp queryResponse
	if err := c.fetchJSON(ctx, observability.KindQuery, QueryURL(svc, p), &resp); err != nil {
		var terr *TransportError
		if errors.As(err, &terr) && terr.Failure == FailureService {
			c.logger.Warn("query returned a service error, no features",
				logger.String("factor", string(factor)),
				logger.Error(err))
			return noFeatures, nil
		}
		return domain.FactorResult{}, err
	}

	attrs := resp.firstAttributes()
	if attrs == nil {
		return noFeatures, nil
	}

	sel := domain.SelectValue(attrs, factor)
	return domain.FactorResult{
		Value:      sel.Value,
		ValueField: sel.Field,
		PopupText:  attrs.PopupText(),
	}, nil
}
