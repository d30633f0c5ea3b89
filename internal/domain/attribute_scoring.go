package domain

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

const (
	// Candidate scoring, lower wins.
	AttrScoreBase = 50

	// Field name looks like a generic id column.
	AttrScoreIDPenalty = 500

	// Field name matches the identifier exclusion pattern.
	AttrScoreIdentifierPenalty = 1000

	// Value shape adjustments
	AttrScoreFractionBonus   = -30 // value in [0,1]
	AttrScoreLargeIntPenalty = 200 // integer above AttrLargeIntThreshold
	AttrScoreSmallRangeShift = 10  // value in (1,10]

	AttrLargeIntThreshold = 1000
)

// Fields that short-circuit scoring.
const (
	NameField       = "Name"
	FolderPathField = "FolderPath"
)

var (
	identifierPattern = regexp.MustCompile(`(?i)(^|_)(objectid|oid|fid)(_|$)|objectid|globalid|shape__?(len|area)|shape_length|shape_area`)
	idWordPattern     = regexp.MustCompile(`(?i)\bid\b`)
	idSuffixPattern   = regexp.MustCompile(`(?i)_?id$`)
	folderPathPattern = regexp.MustCompile(`/([-+]?\d+(?:\.\d+)?)\s*$`)
)

// FieldPatterns holds the preferred field-name patterns per factor, best first.
// A field matching pattern i scores i instead of AttrScoreBase.
var FieldPatterns = map[FactorKey][]*regexp.Regexp{
	FactorK: {
		regexp.MustCompile(`(?i)soil\s*erodibility\s*\(\s*k\s*\)\s*value`),
		regexp.MustCompile(`(?i)soil\s*erodibility`),
		regexp.MustCompile(`(?i)soil.*erod`),
		regexp.MustCompile(`(?i)\bK\b`),
		regexp.MustCompile(`(?i)\(\s*K\s*\)`),
		regexp.MustCompile(`(?i)erod`),
	},
	FactorLS: {
		regexp.MustCompile(`(?i)linear\s*slope\s*\(\s*ls\s*\)\s*factor`),
		regexp.MustCompile(`(?i)linear\s*slope`),
		regexp.MustCompile(`(?i)linear.*slope`),
		regexp.MustCompile(`(?i)\bLS\b`),
		regexp.MustCompile(`(?i)slope.*factor`),
		regexp.MustCompile(`(?i)\(\s*LS\s*\)`),
	},
}

// Selection is the field chosen to carry a factor value.
type Selection struct {
	Value string
	Field string
}

// IsIdentifierField reports whether a field name looks like an object id,
// global id or geometry size column.
func IsIdentifierField(name string) bool {
	return identifierPattern.MatchString(name)
}

// SelectValue picks the attribute holding the factor value.
//
// A numeric Name field wins outright, then a FolderPath ending in "/<number>".
// Otherwise every numeric, non-identifier field is scored and the lowest
// score wins, earlier fields first on ties. An empty Selection means no
// candidate was found.
func SelectValue(attrs Attributes, key FactorKey) Selection {
	if v, ok := attrs.Lookup(NameField); ok {
		if s, ok := v.(string); ok {
			if f, ok := numericValue(s); ok && !math.IsInf(f, 0) {
				return Selection{Value: strings.TrimSpace(s), Field: NameField}
			}
		}
	}

	if v, ok := attrs.Lookup(FolderPathField); ok {
		if s, ok := v.(string); ok {
			if m := folderPathPattern.FindStringSubmatch(strings.TrimSpace(s)); m != nil {
				return Selection{Value: m[1], Field: FolderPathField}
			}
		}
	}

	type candidate struct {
		field Field
		score int
	}

	candidates := make([]candidate, 0, len(attrs))
	for _, f := range attrs {
		if IsIdentifierField(f.Name) {
			continue
		}
		n, ok := numericValue(f.Value)
		if !ok {
			continue
		}
		candidates = append(candidates, candidate{field: f, score: scoreField(f.Name, n, key)})
	}

	if len(candidates) == 0 {
		return Selection{}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score < candidates[j].score
	})

	best := candidates[0].field
	return Selection{Value: valueString(best.Value), Field: best.Name}
}

// scoreField scores one candidate; n is the field's parsed numeric value.
func scoreField(name string, n float64, key FactorKey) int {
	score := AttrScoreBase
	for i, p := range FieldPatterns[key] {
		if p.MatchString(name) {
			score = min(score, i)
			break
		}
	}

	if idWordPattern.MatchString(name) || idSuffixPattern.MatchString(name) {
		score += AttrScoreIDPenalty
	}
	if IsIdentifierField(name) {
		score += AttrScoreIdentifierPenalty
	}

	if math.IsInf(n, 0) {
		return score
	}
	if n >= 0 && n <= 1 {
		score += AttrScoreFractionBonus
	}
	if n == math.Trunc(n) && n > AttrLargeIntThreshold {
		score += AttrScoreLargeIntPenalty
	}
	if n > 1 && n <= 10 {
		score += AttrScoreSmallRangeShift
	}
	return score
}
