package api

import (
	stderrors "errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/jinzhu/copier"

	"github.com/licensemart/stepup-auth/pkg/compliance"
	"github.com/licensemart/stepup-auth/pkg/errors"
)

const (
	defaultTrendWindow = 24 * time.Hour
	defaultTrendBucket = time.Hour
)

// Handle serves the read-only compliance rollups. Routes are mounted behind
// the admin role middleware in the server wiring.
type Handle struct {
	complianceService *compliance.ComplianceService
}

// NewHandle creates a new compliance API handle
func NewHandle(complianceService *compliance.ComplianceService) *Handle {
	return &Handle{complianceService: complianceService}
}

// Handler returns a http.Handler for the compliance API
func Handler(h *Handle) http.Handler {
	r := chi.NewRouter()

	r.Get("/adoption", h.GetAdoptionMetrics)
	r.Get("/failure-trend", h.GetFailureTrend)

	return r
}

// GetAdoptionMetrics handles GET /adoption
func (h *Handle) GetAdoptionMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.complianceService.GetAdoptionMetrics(r.Context())
	if err != nil {
		renderError(w, r, err)
		return
	}

	response := AdoptionMetricsResponse{}
	copier.Copy(&response, metrics)
	render.Status(r, http.StatusOK)
	render.JSON(w, r, response)
}

// GetFailureTrend handles GET /failure-trend. The since and bucket query
// parameters default to the last 24 hours in one-hour windows.
func (h *Handle) GetFailureTrend(w http.ResponseWriter, r *http.Request) {
	since := time.Now().UTC().Add(-defaultTrendWindow)
	if sinceStr := r.URL.Query().Get("since"); sinceStr != "" {
		parsed, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			renderError(w, r, errors.Validation("since", "must be an RFC 3339 timestamp"))
			return
		}
		since = parsed
	}

	bucket := defaultTrendBucket
	if bucketStr := r.URL.Query().Get("bucket"); bucketStr != "" {
		parsed, err := time.ParseDuration(bucketStr)
		if err != nil {
			renderError(w, r, errors.Validation("bucket", "must be a duration such as 1h or 30m"))
			return
		}
		bucket = parsed
	}

	windows, err := h.complianceService.GetFailureTrend(r.Context(), since, bucket)
	if err != nil {
		renderError(w, r, err)
		return
	}

	response := FailureTrendResponse{
		Since:  since,
		Bucket: bucket.String(),
	}
	copier.Copy(&response.Windows, &windows)
	render.Status(r, http.StatusOK)
	render.JSON(w, r, response)
}

// renderError writes a service error as a JSON response. Internal failures
// collapse into a generic body.
func renderError(w http.ResponseWriter, r *http.Request, err error) {
	var svcErr *errors.Error
	if !stderrors.As(err, &svcErr) || svcErr.Code == errors.ErrCodeInternal {
		slog.Error("internal error in compliance API", "error", err)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse{Error: "an internal error occurred", Code: string(errors.ErrCodeInternal)})
		return
	}

	render.Status(r, svcErr.HTTPStatusCode())
	render.JSON(w, r, ErrorResponse{
		Error:   svcErr.Message,
		Code:    string(svcErr.Code),
		Details: svcErr.Details,
	})
}
