package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"fleetwatch/internal/metrics"
	"fleetwatch/internal/models"
)

// Sink accepts validated readings for processing
type Sink interface {
	IngestReading(r *models.Reading) error
}

// IngestHandler handles sensor reading ingestion via HTTP
type IngestHandler struct {
	sink Sink

	// Max body size (default 1MB)
	maxBodySize int64
}

// IngestConfig holds configuration for the ingest handler
type IngestConfig struct {
	Sink        Sink
	MaxBodySize int64
}

// NewIngestHandler creates a new ingest handler
func NewIngestHandler(cfg IngestConfig) *IngestHandler {
	maxBodySize := cfg.MaxBodySize
	if maxBodySize == 0 {
		maxBodySize = 1 * 1024 * 1024 // 1MB default
	}

	return &IngestHandler{
		sink:        cfg.Sink,
		maxBodySize: maxBodySize,
	}
}

// IngestRequest represents the incoming JSON payload (single or batch)
type IngestRequest struct {
	// Single reading (if Readings is empty)
	Reading *models.Reading `json:"reading,omitempty"`

	// Batch of readings
	Readings []models.Reading `json:"readings,omitempty"`
}

// IngestResponse is the response returned to clients
type IngestResponse struct {
	Success  bool          `json:"success"`
	Accepted int           `json:"accepted"`
	Rejected int           `json:"rejected"`
	Errors   []IngestError `json:"errors,omitempty"`
}

// IngestError describes a rejection for a specific reading
type IngestError struct {
	Index    int    `json:"index"`
	DeviceID string `json:"device_id,omitempty"`
	Error    string `json:"error"`
}

// ServeHTTP handles the ingest HTTP request
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Only accept POST
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	contentType := r.Header.Get("Content-Type")
	if contentType != "application/json" && contentType != "" {
		h.writeError(w, http.StatusUnsupportedMediaType, "content-type must be application/json")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	readings, err := h.parseBody(body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if len(readings) == 0 {
		h.writeError(w, http.StatusBadRequest, "no readings provided")
		return
	}

	response := h.processReadings(readings)

	w.Header().Set("Content-Type", "application/json")
	if response.Rejected > 0 && response.Accepted == 0 {
		w.WriteHeader(http.StatusBadRequest)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(response)
}

// parseBody parses the JSON body into a slice of readings
func (h *IngestHandler) parseBody(body []byte) ([]models.Reading, error) {
	// Try parsing as IngestRequest first
	var req IngestRequest
	if err := json.Unmarshal(body, &req); err == nil {
		if len(req.Readings) > 0 {
			return req.Readings, nil
		}
		if req.Reading != nil {
			return []models.Reading{*req.Reading}, nil
		}
	}

	// Try parsing as array of readings
	var readings []models.Reading
	if err := json.Unmarshal(body, &readings); err == nil && len(readings) > 0 {
		return readings, nil
	}

	// Try parsing as single reading
	var single models.Reading
	if err := json.Unmarshal(body, &single); err == nil && single.DeviceID != "" {
		return []models.Reading{single}, nil
	}

	return nil, fmt.Errorf("invalid JSON format: expected reading object or array of readings")
}

// processReadings validates readings and hands them to the sink
func (h *IngestHandler) processReadings(readings []models.Reading) IngestResponse {
	response := IngestResponse{
		Success: true,
		Errors:  make([]IngestError, 0),
	}

	for i := range readings {
		reading := readings[i]
		reading.Normalize()

		if err := reading.Validate(); err != nil {
			response.Errors = append(response.Errors, IngestError{
				Index:    i,
				DeviceID: reading.DeviceID,
				Error:    err.Error(),
			})
			response.Rejected++
			metrics.ReadingsTotal.WithLabelValues("http", "rejected").Inc()
			metrics.ReadingValidationErrors.WithLabelValues(err.Error()).Inc()
			continue
		}

		if err := h.sink.IngestReading(&reading); err != nil {
			response.Errors = append(response.Errors, IngestError{
				Index:    i,
				DeviceID: reading.DeviceID,
				Error:    err.Error(),
			})
			response.Rejected++
			metrics.ReadingsTotal.WithLabelValues("http", "rejected").Inc()
			continue
		}

		response.Accepted++
		metrics.ReadingsTotal.WithLabelValues("http", "accepted").Inc()
	}

	response.Success = response.Rejected == 0
	return response
}

// writeError writes an error response
func (h *IngestHandler) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   message,
	})
}
