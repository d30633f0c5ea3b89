package domain

import (
	"fmt"
	"strings"
)

// FactorKey identifies one of the erosion model coefficients looked up by location.
type FactorKey string

const (
	// FactorLS is the Length-Slope factor.
	FactorLS FactorKey = "LS"
	// FactorK is the Soil Erodibility factor.
	FactorK FactorKey = "K"
)

// Factors lists every supported factor in response order.
var Factors = []FactorKey{FactorLS, FactorK}

// ParseFactorKey accepts "ls", "LS", "k", "K".
func ParseFactorKey(s string) (FactorKey, error) {
	switch FactorKey(strings.ToUpper(strings.TrimSpace(s))) {
	case FactorLS:
		return FactorLS, nil
	case FactorK:
		return FactorK, nil
	default:
		return "", fmt.Errorf("unknown factor %q", s)
	}
}

// NoFeaturesPopup is the popup text used when a point matches no polygon.
const NoFeaturesPopup = "No features returned for point."

// FactorResult is the resolved factor value plus the imagery shown under it.
type FactorResult struct {
	Value                  string `json:"value"`
	ValueField             string `json:"valueField"`
	PopupText              string `json:"popupText"`
	ScreenshotBase64       string `json:"screenshotBase64"`
	BasemapBase64          string `json:"basemapBase64"`
	BasemapReferenceBase64 string `json:"basemapReferenceBase64"`
}

// Payload is the /api/fetch-factors response body.
type Payload struct {
	LS FactorResult `json:"ls"`
	K  FactorResult `json:"k"`
}

// Set stores r under the given factor.
func (p *Payload) Set(key FactorKey, r FactorResult) {
	switch key {
	case FactorLS:
		p.LS = r
	case FactorK:
		p.K = r
	}
}
