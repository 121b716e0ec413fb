package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/vitalwatch/vitalwatch/pkg/types"
	"github.com/vitalwatch/vitalwatch/server/internal/alerts"
	"github.com/vitalwatch/vitalwatch/server/internal/receiver"
)

const maxBodyBytes = 1 << 20

// Store is the patient store as seen by the API.
type Store interface {
	Patients() []int
	Len(patientID int) int
	Total() int
	RecordsSince(patientID int, from, to int64) []types.Record
	LastRecordOfKind(patientID int, kind types.Kind) (types.Record, bool)
	Watermark(patientID int) int64
	Add(r types.Record)
}

// Alerts is the alert engine as seen by the API.
type Alerts interface {
	Recent() []alerts.Alert
	Stats() alerts.Stats
}

// Deps wires the handler to the rest of the server. Metrics, Stream and Auth
// are optional.
type Deps struct {
	Store    Store
	Alerts   Alerts
	Receiver *receiver.Receiver

	Metrics http.Handler                    // mounted at /metrics
	Stream  http.Handler                    // mounted at /ws/alerts
	Auth    func(http.Handler) http.Handler // applied to /api/v1 and /ws/alerts
}

// Handler serves the REST API.
type Handler struct {
	store    Store
	alerts   Alerts
	receiver *receiver.Receiver
}

// New returns a chi router serving every route.
func New(d Deps) http.Handler {
	h := &Handler{store: d.Store, alerts: d.Alerts, receiver: d.Receiver}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		if d.Auth != nil {
			r.Use(d.Auth)
		}
		r.Use(middleware.Timeout(10 * time.Second))
		h.RegisterRoutes(r)
	})
	// Metrics carry counts only and stay open for scrapers.
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}
	if d.Stream != nil {
		stream := d.Stream
		if d.Auth != nil {
			stream = d.Auth(stream)
		}
		r.Handle("/ws/alerts", stream)
	}
	return r
}

// RegisterRoutes mounts the /api/v1 routes on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.health)
	r.Get("/alerts", h.listAlerts)
	r.Post("/records", h.postRecords)
	r.Route("/patients", func(r chi.Router) {
		r.Get("/", h.listPatients)
		r.Get("/{id}/records", h.patientRecords)
		r.Get("/{id}/latest/{kind}", h.latestOfKind)
		r.Get("/{id}/watermark", h.watermark)
	})
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health.
func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	s := h.alerts.Stats()
	jsonResp(w, http.StatusOK, HealthResponse{
		Status:        "ok",
		PatientCount:  len(h.store.Patients()),
		RecordCount:   h.store.Total(),
		AlertsEmitted: s.Plain + s.Priority + s.Repeated,
	})
}

// listPatients returns GET /api/v1/patients.
func (h *Handler) listPatients(w http.ResponseWriter, _ *http.Request) {
	ids := h.store.Patients()
	out := make([]PatientResponse, 0, len(ids))
	for _, id := range ids {
		out = append(out, PatientResponse{
			PatientID: id,
			Records:   h.store.Len(id),
			Watermark: h.store.Watermark(id),
		})
	}
	jsonResp(w, http.StatusOK, out)
}

// patientRecords returns GET /api/v1/patients/{id}/records?from=&to=.
// Both bounds are inclusive and optional.
func (h *Handler) patientRecords(w http.ResponseWriter, r *http.Request) {
	id, ok := h.patientID(w, r)
	if !ok {
		return
	}
	from, err := queryInt(r, "from", math.MinInt64)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	to, err := queryInt(r, "to", math.MaxInt64)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	jsonResp(w, http.StatusOK, h.store.RecordsSince(id, from, to))
}

// latestOfKind returns GET /api/v1/patients/{id}/latest/{kind}.
func (h *Handler) latestOfKind(w http.ResponseWriter, r *http.Request) {
	id, ok := h.patientID(w, r)
	if !ok {
		return
	}
	kind, err := types.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	rec, found := h.store.LastRecordOfKind(id, kind)
	if !found {
		jsonErr(w, http.StatusNotFound, "no record of kind "+kind.String())
		return
	}
	jsonResp(w, http.StatusOK, rec)
}

// watermark returns GET /api/v1/patients/{id}/watermark.
func (h *Handler) watermark(w http.ResponseWriter, r *http.Request) {
	id, ok := h.patientID(w, r)
	if !ok {
		return
	}
	jsonResp(w, http.StatusOK, WatermarkResponse{PatientID: id, Watermark: h.store.Watermark(id)})
}

// listAlerts returns GET /api/v1/alerts?patient=&limit=, newest first.
func (h *Handler) listAlerts(w http.ResponseWriter, r *http.Request) {
	patient := r.URL.Query().Get("patient")
	limit, err := queryInt(r, "limit", 0)
	if err != nil || limit < 0 {
		jsonErr(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}

	out := make([]alerts.Alert, 0)
	for _, a := range h.alerts.Recent() {
		if patient != "" && a.PatientID != patient {
			continue
		}
		out = append(out, a)
		if limit > 0 && int64(len(out)) == limit {
			break
		}
	}
	jsonResp(w, http.StatusOK, out)
}

// postRecords handles POST /api/v1/records. A JSON body holds one record or an
// array of records; a text/plain body holds measurement lines.
func (h *Handler) postRecords(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		jsonErr(w, http.StatusRequestEntityTooLarge, "body too large")
		return
	}

	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt == "text/plain" {
		if h.receiver == nil {
			jsonErr(w, http.StatusUnsupportedMediaType, "line ingestion disabled")
			return
		}
		before := h.receiver.Stats()
		n := h.receiver.HandleText("http", string(body))
		after := h.receiver.Stats()
		jsonResp(w, http.StatusAccepted, IngestResponse{
			Accepted: n,
			Rejected: int(after.Rejected - before.Rejected),
		})
		return
	}

	recs, err := decodeRecords(body)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	for i, rec := range recs {
		if err := validate(rec); err != nil {
			jsonErr(w, http.StatusBadRequest, fmt.Sprintf("record %d: %v", i, err))
			return
		}
	}
	for _, rec := range recs {
		h.store.Add(rec)
	}
	jsonResp(w, http.StatusAccepted, IngestResponse{Accepted: len(recs)})
}

// --- helpers ----------------------------------------------------------------

func decodeRecords(body []byte) ([]types.Record, error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return nil, errors.New("empty body")
	}
	if strings.HasPrefix(trimmed, "[") {
		var recs []types.Record
		if err := json.Unmarshal(body, &recs); err != nil {
			return nil, fmt.Errorf("decode records: %w", err)
		}
		return recs, nil
	}
	var rec types.Record
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return []types.Record{rec}, nil
}

func validate(r types.Record) error {
	switch {
	case r.PatientID <= 0:
		return errors.New("patient_id must be positive")
	case r.Timestamp <= 0:
		return errors.New("timestamp must be positive")
	case !r.Kind.Valid():
		return errors.New("kind is required")
	case math.IsNaN(r.Value) || math.IsInf(r.Value, 0):
		return errors.New("value must be finite")
	}
	return nil
}

// patientID parses the {id} URL parameter and answers 400 or 404 itself.
func (h *Handler) patientID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		jsonErr(w, http.StatusBadRequest, "patient id must be a positive integer")
		return 0, false
	}
	if h.store.Len(id) == 0 {
		jsonErr(w, http.StatusNotFound, "patient not found")
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, name string, def int64) (int64, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return v, nil
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
