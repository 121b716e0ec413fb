package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vitalwatch/vitalwatch/pkg/types"
	"github.com/vitalwatch/vitalwatch/server/internal/alerts"
	"github.com/vitalwatch/vitalwatch/server/internal/api"
	"github.com/vitalwatch/vitalwatch/server/internal/auth"
	"github.com/vitalwatch/vitalwatch/server/internal/receiver"
	"github.com/vitalwatch/vitalwatch/server/internal/store"
)

// --- test helpers -----------------------------------------------------------

type fakeAlerts struct {
	recent []alerts.Alert
	stats  alerts.Stats
}

func (f *fakeAlerts) Recent() []alerts.Alert { return f.recent }
func (f *fakeAlerts) Stats() alerts.Stats { return f.stats }

func newStore(recs ...types.Record) *store.Store {
	st := store.New()
	for _, r := range recs {
		st.Add(r)
	}
	return st
}

func rec(pid int, kind types.Kind, value float64, ts int64) types.Record {
	return types.Record{PatientID: pid, Kind: kind, Value: value, Timestamp: ts}
}

func newHandler(st *store.Store, al *fakeAlerts) http.Handler {
	if al == nil {
		al = &fakeAlerts{}
	}
	return api.New(api.Deps{Store: st, Alerts: al, Receiver: receiver.New(st)})
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func post(t *testing.T, h http.Handler, path, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON: %v (body: %s)", err, rr.Body.String())
	}
}

// --- /api/v1/health ---------------------------------------------------------

func TestHealth_EmptyStore(t *testing.T) {
	rr := get(t, newHandler(newStore(), nil), "/api/v1/health")

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}
	var resp api.HealthResponse
	decode(t, rr, &resp)
	if resp.Status != "ok" || resp.PatientCount != 0 || resp.RecordCount != 0 {
		t.Errorf("got %+v, want ok with zero counts", resp)
	}
}

func TestHealth_Counts(t *testing.T) {
	st := newStore(
		rec(1, types.Systolic, 120, 1),
		rec(1, types.Diastolic, 80, 2),
		rec(2, types.ECG, 0.4, 1),
	)
	al := &fakeAlerts{stats: alerts.Stats{Plain: 2, Priority: 1, Repeated: 3}}
	rr := get(t, newHandler(st, al), "/api/v1/health")

	var resp api.HealthResponse
	decode(t, rr, &resp)
	if resp.PatientCount != 2 {
		t.Errorf("patient_count: got %d, want 2", resp.PatientCount)
	}
	if resp.RecordCount != 3 {
		t.Errorf("record_count: got %d, want 3", resp.RecordCount)
	}
	if resp.AlertsEmitted != 6 {
		t.Errorf("alerts_emitted: got %d, want 6", resp.AlertsEmitted)
	}
}

func TestHealth_MethodNotAllowed(t *testing.T) {
	rr := post(t, newHandler(newStore(), nil), "/api/v1/health", "application/json", "{}")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", rr.Code)
	}
}

// --- /api/v1/patients -------------------------------------------------------

func TestPatients_List(t *testing.T) {
	st := newStore(
		rec(2, types.ECG, 0.4, 10),
		rec(1, types.Systolic, 120, 5),
		rec(1, types.Systolic, 121, 6),
	)
	st.SetWatermark(1, 6)
	rr := get(t, newHandler(st, nil), "/api/v1/patients")

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp []api.PatientResponse
	decode(t, rr, &resp)
	if len(resp) != 2 {
		t.Fatalf("len: got %d, want 2", len(resp))
	}
	byID := map[int]api.PatientResponse{}
	for _, p := range resp {
		byID[p.PatientID] = p
	}
	if byID[1].Records != 2 || byID[1].Watermark != 6 {
		t.Errorf("patient 1: got %+v, want 2 records at watermark 6", byID[1])
	}
	if byID[2].Records != 1 || byID[2].Watermark != 0 {
		t.Errorf("patient 2: got %+v, want 1 record at watermark 0", byID[2])
	}
}

func TestPatients_EmptyIsArray(t *testing.T) {
	rr := get(t, newHandler(newStore(), nil), "/api/v1/patients")
	if got := strings.TrimSpace(rr.Body.String()); got != "[]" {
		t.Errorf("body: got %s, want []", got)
	}
}

func TestPatientRecords_Range(t *testing.T) {
	st := newStore(
		rec(1, types.Systolic, 120, 100),
		rec(1, types.Diastolic, 80, 200),
		rec(1, types.ECG, 0.5, 300),
	)
	h := newHandler(st, nil)

	rr := get(t, h, "/api/v1/patients/1/records?from=150&to=300")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var got []types.Record
	decode(t, rr, &got)
	if len(got) != 2 {
		t.Fatalf("len: got %d, want 2", len(got))
	}
	if got[0].Timestamp != 200 || got[1].Timestamp != 300 {
		t.Errorf("timestamps: got %d,%d, want 200,300", got[0].Timestamp, got[1].Timestamp)
	}
	if got[0].Kind != types.Diastolic {
		t.Errorf("kind: got %v, want DiastolicPressure", got[0].Kind)
	}

	rr = get(t, h, "/api/v1/patients/1/records")
	decode(t, rr, &got)
	if len(got) != 3 {
		t.Errorf("unbounded len: got %d, want 3", len(got))
	}
}

func TestPatientRecords_Errors(t *testing.T) {
	h := newHandler(newStore(rec(1, types.ECG, 0.5, 1)), nil)

	tests := []struct {
		path string
		want int
	}{
		{"/api/v1/patients/abc/records", http.StatusBadRequest},
		{"/api/v1/patients/0/records", http.StatusBadRequest},
		{"/api/v1/patients/9/records", http.StatusNotFound},
		{"/api/v1/patients/1/records?from=x", http.StatusBadRequest},
		{"/api/v1/patients/1/records?to=1.5", http.StatusBadRequest},
	}
	for _, tt := range tests {
		rr := get(t, h, tt.path)
		if rr.Code != tt.want {
			t.Errorf("%s: got %d, want %d", tt.path, rr.Code, tt.want)
		}
	}
}

func TestLatestOfKind(t *testing.T) {
	st := newStore(
		rec(1, types.Saturation, 97, 10),
		rec(1, types.Saturation, 91, 30),
		rec(1, types.ECG, 0.5, 40),
	)
	h := newHandler(st, nil)

	rr := get(t, h, "/api/v1/patients/1/latest/saturation")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var got types.Record
	decode(t, rr, &got)
	if got.Value != 91 || got.Timestamp != 30 {
		t.Errorf("got %+v, want value 91 at 30", got)
	}

	if rr := get(t, h, "/api/v1/patients/1/latest/SystolicPressure"); rr.Code != http.StatusNotFound {
		t.Errorf("missing kind: got %d, want 404", rr.Code)
	}
	if rr := get(t, h, "/api/v1/patients/1/latest/Temperature"); rr.Code != http.StatusBadRequest {
		t.Errorf("unknown kind: got %d, want 400", rr.Code)
	}
}

func TestWatermark(t *testing.T) {
	st := newStore(rec(4, types.ECG, 0.5, 40))
	st.SetWatermark(4, 40)
	rr := get(t, newHandler(st, nil), "/api/v1/patients/4/watermark")

	var resp api.WatermarkResponse
	decode(t, rr, &resp)
	if resp.PatientID != 4 || resp.Watermark != 40 {
		t.Errorf("got %+v, want patient 4 at 40", resp)
	}
}

// --- /api/v1/alerts ---------------------------------------------------------

func TestAlerts_FilterAndLimit(t *testing.T) {
	al := &fakeAlerts{recent: []alerts.Alert{
		{ID: "c", PatientID: "2", Condition: "ECGAlert -> ECG=3", Kind: types.ECG, Variant: alerts.Plain},
		{ID: "b", PatientID: "1", Condition: "BloodOxygenAlert -> Saturation=91", Kind: types.Saturation, Variant: alerts.Priority},
		{ID: "a", PatientID: "1", Condition: "BloodPressureAlert -> SystolicPressure=185", Kind: types.Systolic, Variant: alerts.Plain},
	}}
	h := newHandler(newStore(), al)

	var got []alerts.Alert
	decode(t, get(t, h, "/api/v1/alerts"), &got)
	if len(got) != 3 || got[0].ID != "c" {
		t.Fatalf("all: got %+v, want 3 alerts starting with c", got)
	}

	decode(t, get(t, h, "/api/v1/alerts?patient=1"), &got)
	if len(got) != 2 || got[0].ID != "b" || got[1].ID != "a" {
		t.Errorf("patient=1: got %+v, want b,a", got)
	}
	if got[0].Variant != alerts.Priority {
		t.Errorf("variant: got %v, want priority", got[0].Variant)
	}
	if got[0].Kind != types.Saturation {
		t.Errorf("kind: got %v, want Saturation", got[0].Kind)
	}

	decode(t, get(t, h, "/api/v1/alerts?patient=1&limit=1"), &got)
	if len(got) != 1 || got[0].ID != "b" {
		t.Errorf("limit=1: got %+v, want b", got)
	}

	if rr := get(t, h, "/api/v1/alerts?limit=-1"); rr.Code != http.StatusBadRequest {
		t.Errorf("negative limit: got %d, want 400", rr.Code)
	}
}

func TestAlerts_EmptyIsArray(t *testing.T) {
	rr := get(t, newHandler(newStore(), nil), "/api/v1/alerts")
	if got := strings.TrimSpace(rr.Body.String()); got != "[]" {
		t.Errorf("body: got %s, want []", got)
	}
}

// --- POST /api/v1/records ---------------------------------------------------

func TestPostRecords_JSON(t *testing.T) {
	st := newStore()
	h := newHandler(st, nil)

	rr := post(t, h, "/api/v1/records", "application/json",
		`{"patient_id":3,"kind":"ECG","value":0.7,"timestamp":100}`)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status: got %d, want 202 (body %s)", rr.Code, rr.Body.String())
	}

	rr = post(t, h, "/api/v1/records", "application/json", `[
		{"patient_id":3,"kind":"saturation","value":94,"timestamp":200},
		{"patient_id":4,"kind":"SystolicPressure","value":130,"timestamp":200}
	]`)
	var resp api.IngestResponse
	decode(t, rr, &resp)
	if resp.Accepted != 2 {
		t.Errorf("accepted: got %d, want 2", resp.Accepted)
	}
	if st.Len(3) != 2 || st.Len(4) != 1 {
		t.Errorf("store: got %d/%d records, want 2/1", st.Len(3), st.Len(4))
	}
}

func TestPostRecords_JSONInvalidIsAtomic(t *testing.T) {
	st := newStore()
	h := newHandler(st, nil)

	bodies := []string{
		``,
		`{not json`,
		`{"patient_id":0,"kind":"ECG","value":1,"timestamp":1}`,
		`{"patient_id":1,"kind":"ECG","value":1,"timestamp":0}`,
		`{"patient_id":1,"value":1,"timestamp":1}`,
		`{"patient_id":1,"kind":"Pulse","value":1,"timestamp":1}`,
		`[{"patient_id":1,"kind":"ECG","value":1,"timestamp":1},{"patient_id":-1,"kind":"ECG","value":1,"timestamp":1}]`,
	}
	for _, b := range bodies {
		if rr := post(t, h, "/api/v1/records", "application/json", b); rr.Code != http.StatusBadRequest {
			t.Errorf("%q: got %d, want 400", b, rr.Code)
		}
	}
	if st.Total() != 0 {
		t.Errorf("store total: got %d, want 0", st.Total())
	}
}

func TestPostRecords_TextLines(t *testing.T) {
	st := newStore()
	h := newHandler(st, nil)

	body := "Patient ID: 1, Timestamp: 1700000000000, Label: Saturation, Data: 95%\n" +
		"garbage\n" +
		"Patient ID: 1, Timestamp: 1700000001000, Label: ECG, Data: 0.3\n"
	rr := post(t, h, "/api/v1/records", "text/plain; charset=utf-8", body)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status: got %d, want 202", rr.Code)
	}
	var resp api.IngestResponse
	decode(t, rr, &resp)
	if resp.Accepted != 2 || resp.Rejected != 1 {
		t.Errorf("got %+v, want 2 accepted and 1 rejected", resp)
	}
	if st.Len(1) != 2 {
		t.Errorf("store: got %d records, want 2", st.Len(1))
	}
}

// --- mounts and middleware ----------------------------------------------------

func TestAuth_ProtectsAPIButNotHealth(t *testing.T) {
	h := api.New(api.Deps{
		Store:  newStore(),
		Alerts: &fakeAlerts{},
		Auth:   auth.APIKey("apikey", "x-api-key", "s3cret", "/api/v1/health"),
	})

	if rr := get(t, h, "/api/v1/health"); rr.Code != http.StatusOK {
		t.Errorf("health: got %d, want 200", rr.Code)
	}
	if rr := get(t, h, "/api/v1/patients"); rr.Code != http.StatusUnauthorized {
		t.Errorf("no key: got %d, want 401", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/patients", nil)
	req.Header.Set("x-api-key", "s3cret")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("with key: got %d, want 200", rr.Code)
	}
}

func TestMounts_MetricsOpenStreamAuthenticated(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("metrics")) //nolint:errcheck
	})
	stream := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("stream")) //nolint:errcheck
	})
	h := api.New(api.Deps{
		Store:   newStore(),
		Alerts:  &fakeAlerts{},
		Metrics: metrics,
		Stream:  stream,
		Auth:    auth.APIKey("apikey", "x-api-key", "s3cret"),
	})

	if got := get(t, h, "/metrics").Body.String(); got != "metrics" {
		t.Errorf("/metrics: got %q, want metrics", got)
	}
	if rr := get(t, h, "/ws/alerts"); rr.Code != http.StatusUnauthorized {
		t.Errorf("/ws/alerts without key: got %d, want 401", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/ws/alerts", nil)
	req.Header.Set("x-api-key", "s3cret")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if got := rr.Body.String(); got != "stream" {
		t.Errorf("/ws/alerts with key: got %q, want stream", got)
	}
}

func TestUnknownRoute(t *testing.T) {
	if rr := get(t, newHandler(newStore(), nil), "/api/v1/nope"); rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", rr.Code)
	}
}
