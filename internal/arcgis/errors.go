package arcgis

import (
	"fmt"
	"time"

	"github.com/MrSnakeDoc/appendix/internal/domain"
)

// Failure classifies how an upstream call went wrong.
type Failure int

const (
	FailureNetwork  Failure = iota // dial, read or cancellation error
	FailureTimeout                 // the per-call deadline expired
	FailureStatus                  // non-2xx response
	FailureDecode                  // body was not the expected JSON
	FailureService                 // 200 response carrying an ArcGIS error envelope
	FailureNotImage                // export answered with something other than image/*
)

// TransportError describes a failed upstream request. The message always
// carries the request URL.
type TransportError struct {
	Failure     Failure
	Op          string // "export", "basemap base", ... empty for JSON fetches
	URL         string
	Status      int
	ContentType string
	Snippet     string
	Timeout     time.Duration
	Err         error
}

func (e *TransportError) Error() string {
	switch e.Failure {
	case FailureTimeout:
		return fmt.Sprintf("fetch failed url=%s detail=timeout after %dms", e.URL, e.Timeout.Milliseconds())
	case FailureStatus:
		if e.Op != "" {
			return fmt.Sprintf("%s failed HTTP %d for %s", e.Op, e.Status, e.URL)
		}
		return fmt.Sprintf("HTTP %d for %s", e.Status, e.URL)
	case FailureDecode:
		return fmt.Sprintf("failed to parse json for %s: %v", e.URL, e.Err)
	case FailureService:
		return fmt.Sprintf("service error for %s: %v", e.URL, e.Err)
	case FailureNotImage:
		ct := e.ContentType
		if ct == "" {
			ct = "unknown"
		}
		return fmt.Sprintf("%s did not return an image (content-type: %s). url=%s snippet=%q", e.Op, ct, e.URL, e.Snippet)
	default:
		return fmt.Sprintf("fetch failed url=%s detail=%v", e.URL, e.Err)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// Outcome is the metrics label for the failure.
func (e *TransportError) Outcome() string {
	switch e.Failure {
	case FailureTimeout:
		return "timeout"
	case FailureNotImage:
		return "not_image"
	default:
		return "error"
	}
}

// ResolutionError means a portal item could not be traced to a queryable
// map or feature service. It is a configuration problem, not a transient one.
type ResolutionError struct {
	Factor   domain.FactorKey
	ItemID   string
	WebmapID string
}

func (e *ResolutionError) Error() string {
	if e.WebmapID == "" {
		return fmt.Sprintf("could not resolve webmap for %s item %s", e.Factor, e.ItemID)
	}
	return fmt.Sprintf("could not find operational layer url for %s webmap %s", e.Factor, e.WebmapID)
}

// serviceError is the {"error": {...}} envelope ArcGIS returns with HTTP 200.
type serviceError struct {
	Code    int      `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details"`
}

func (e *serviceError) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("code %d: %s (%v)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("code %d: %s", e.Code, e.Message)
}
