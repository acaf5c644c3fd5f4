package handlers

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dvloznov/receipt-tracker/internal/api/middleware"
	"github.com/dvloznov/receipt-tracker/internal/jobs"
)

// ReceiptsHandler queues receipt scan batches.
type ReceiptsHandler struct {
	publisher jobs.Publisher
	log       zerolog.Logger
}

// NewReceiptsHandler creates a new receipts handler. publisher may be nil
// when scanning is not configured.
func NewReceiptsHandler(publisher jobs.Publisher, log zerolog.Logger) *ReceiptsHandler {
	return &ReceiptsHandler{
		publisher: publisher,
		log:       log,
	}
}

// ScanReceipts handles POST /api/receipts/scan
func (h *ReceiptsHandler) ScanReceipts(w http.ResponseWriter, r *http.Request) {
	if h.publisher == nil {
		middleware.WriteError(w, http.StatusServiceUnavailable, "Receipt scanning is not configured")
		return
	}

	var req struct {
		URIs []string `json:"uris"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	uris := make([]string, 0, len(req.URIs))
	for _, uri := range req.URIs {
		if uri = strings.TrimSpace(uri); uri != "" {
			uris = append(uris, uri)
		}
	}
	if len(uris) == 0 {
		middleware.WriteError(w, http.StatusBadRequest, "uris must list at least one image")
		return
	}

	job := &jobs.ScanReceiptsJob{
		URIs:       uris,
		MaxRetries: jobs.DefaultMaxRetries,
	}
	if err := h.publisher.PublishScanReceipts(r.Context(), job); err != nil {
		h.log.Error().Err(err).Msg("Failed to enqueue scan job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue scan job")
		return
	}

	h.log.Info().Str("job_id", job.JobID).Int("images", len(uris)).Msg("Scan job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id": job.JobID,
		"status": job.Status,
		"images": len(uris),
	})
}
