package domain

import (
	"encoding/json"
	"testing"
)

func mustAttrs(t *testing.T, raw string) Attributes {
	t.Helper()
	var a Attributes
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		t.Fatalf("unmarshal %s: %v", raw, err)
	}
	return a
}

func TestSelectValue(t *testing.T) {
	tests := []struct {
		name      string
		attrs     string
		key       FactorKey
		wantValue string
		wantField string
	}{
		{
			name:      "numeric name short-circuits",
			attrs:     `{"Name": "0.42", "OBJECTID": 99118}`,
			key:       FactorK,
			wantValue: "0.42",
			wantField: "Name",
		},
		{
			name:      "name wins over better scored fields",
			attrs:     `{"Soil Erodibility (K) Value": 0.28, "Name": " 0.42 "}`,
			key:       FactorK,
			wantValue: "0.42",
			wantField: "Name",
		},
		{
			name:      "non numeric name is ignored",
			attrs:     `{"Name": "Zone A", "K_VALUE": 0.3}`,
			key:       FactorK,
			wantValue: "0.3",
			wantField: "K_VALUE",
		},
		{
			name:      "folder path trailing number",
			attrs:     `{"FolderPath": "Soils/K/0.37", "Other": 0.9}`,
			key:       FactorK,
			wantValue: "0.37",
			wantField: "FolderPath",
		},
		{
			name:      "folder path without number falls through",
			attrs:     `{"FolderPath": "Soils/K/high", "Other": 0.9}`,
			key:       FactorK,
			wantValue: "0.9",
			wantField: "Other",
		},
		{
			name:      "scored fallback skips id and area fields",
			attrs:     `{"OBJECTID": 50321, "K_VALUE": 0.32, "SHAPE_Area": 45021.3}`,
			key:       FactorK,
			wantValue: "0.32",
			wantField: "K_VALUE",
		},
		{
			name:      "earlier pattern beats later pattern",
			attrs:     `{"erod_class": 0.5, "Soil Erodibility (K) Value": 0.28}`,
			key:       FactorK,
			wantValue: "0.28",
			wantField: "Soil Erodibility (K) Value",
		},
		{
			name:      "LS word match beats plain fraction",
			attrs:     `{"Other": 0.5, "LS": 2.5}`,
			key:       FactorLS,
			wantValue: "2.5",
			wantField: "LS",
		},
		{
			name:      "large integer penalized",
			attrs:     `{"Count": 5000, "Value": 12}`,
			key:       FactorLS,
			wantValue: "12",
			wantField: "Value",
		},
		{
			name:      "id suffix penalized",
			attrs:     `{"zone_id": 0.5, "val": 3}`,
			key:       FactorLS,
			wantValue: "3",
			wantField: "val",
		},
		{
			name:      "ties keep field order",
			attrs:     `{"a": 0.5, "b": 0.5}`,
			key:       FactorK,
			wantValue: "0.5",
			wantField: "a",
		},
		{
			name:      "numeric string candidate",
			attrs:     `{"Label": "n/a", "Rate": "0.25"}`,
			key:       FactorK,
			wantValue: "0.25",
			wantField: "Rate",
		},
		{
			name:      "tiny value rendered in exponent form",
			attrs:     `{"LS_FACTOR": 1e-7}`,
			key:       FactorLS,
			wantValue: "1e-7",
			wantField: "LS_FACTOR",
		},
		{
			name:      "no numeric candidates",
			attrs:     `{"OBJECTID": 1, "Label": "hello", "Flag": true, "Empty": null, "Blank": "  "}`,
			key:       FactorK,
			wantValue: "",
			wantField: "",
		},
		{
			name:      "empty attributes",
			attrs:     `{}`,
			key:       FactorLS,
			wantValue: "",
			wantField: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectValue(mustAttrs(t, tt.attrs), tt.key)
			if got.Value != tt.wantValue {
				t.Errorf("Value = %q, want %q", got.Value, tt.wantValue)
			}
			if got.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", got.Field, tt.wantField)
			}
		})
	}
}

func TestIsIdentifierField(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"OBJECTID", true},
		{"objectid_1", true},
		{"FID", true},
		{"zone_oid", true},
		{"GlobalID", true},
		{"Shape__Area", true},
		{"Shape__Length", true},
		{"SHAPE_Length", true},
		{"K_VALUE", false},
		{"FIDELITY", false},
		{"Linear Slope (LS) Factor", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsIdentifierField(tt.name); got != tt.want {
				t.Errorf("IsIdentifierField(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestScoreField(t *testing.T) {
	tests := []struct {
		name  string
		field string
		value float64
		key   FactorKey
		want  int
	}{
		{"first LS pattern with fraction", "Linear Slope (LS) Factor", 0.4, FactorLS, 0 + AttrScoreFractionBonus},
		{"unmatched small range", "Other", 5, FactorLS, AttrScoreBase + AttrScoreSmallRangeShift},
		{"unmatched large integer", "Count", 2000, FactorK, AttrScoreBase + AttrScoreLargeIntPenalty},
		{"large non integer", "Area", 2000.5, FactorK, AttrScoreBase},
		{"id word", "zone id", 20, FactorK, AttrScoreBase + AttrScoreIDPenalty},
		{"K word pattern", "K", 0.2, FactorK, 3 + AttrScoreFractionBonus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := scoreField(tt.field, tt.value, tt.key); got != tt.want {
				t.Errorf("scoreField(%q, %v) = %d, want %d", tt.field, tt.value, got, tt.want)
			}
		})
	}
}
