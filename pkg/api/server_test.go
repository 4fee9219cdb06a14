package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"vpn-sentinel/pkg/auth"
	"vpn-sentinel/pkg/journal"
	"vpn-sentinel/pkg/model"
)

type staticStatus struct {
	sum *model.RunSummary
}

func (s staticStatus) Last() (model.RunSummary, bool) {
	if s.sum == nil {
		return model.RunSummary{}, false
	}
	return *s.sum, true
}

func sampleSummary() model.RunSummary {
	now := time.Now()
	return model.NewRunSummary([]model.CheckResult{
		{Probe: "service_running", Status: model.StatusPass, Message: "active", ObservedAt: now},
		{Probe: "disk_usage", Status: model.StatusWarn, Message: "disk usage 95%", ObservedAt: now},
	}, now, now.Add(time.Second))
}

func newJournal(t *testing.T) journal.Journal {
	t.Helper()
	j, err := journal.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "j.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestHealthz(t *testing.T) {
	srv := &Server{Status: staticStatus{}}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("healthz = %d %q", rec.Code, rec.Body.String())
	}
}

func TestStatus(t *testing.T) {
	sum := sampleSummary()
	tests := []struct {
		name      string
		src       staticStatus
		wantReady bool
	}{
		{"before first cycle", staticStatus{}, false},
		{"after cycle", staticStatus{sum: &sum}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := &Server{Status: tt.src}
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
			if rec.Code != http.StatusOK {
				t.Fatalf("status code = %d", rec.Code)
			}
			var resp statusResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatal(err)
			}
			if resp.Ready != tt.wantReady {
				t.Errorf("Ready = %v, want %v", resp.Ready, tt.wantReady)
			}
			if tt.wantReady && resp.Summary.Warned != 1 {
				t.Errorf("Summary = %+v", resp.Summary)
			}
		})
	}

	rec := httptest.NewRecorder()
	(&Server{Status: staticStatus{}}).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/status", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST status = %d, want 405", rec.Code)
	}
}

func TestHistoryAndAlerts(t *testing.T) {
	j := newJournal(t)
	ctx := context.Background()
	_ = j.SaveCycle(ctx, sampleSummary())
	_ = j.SaveAlert(ctx, model.AlertRecord{Severity: model.SeverityAlert, Message: "repair of service_running did not converge", Timestamp: time.Now()})
	srv := &Server{Status: staticStatus{}, Journal: j}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/history?limit=5", nil))
	var cycles []model.RunSummary
	if err := json.NewDecoder(rec.Body).Decode(&cycles); err != nil {
		t.Fatal(err)
	}
	if len(cycles) != 1 || cycles[0].Total != 2 {
		t.Errorf("history = %+v", cycles)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/alerts", nil))
	var alerts []model.AlertRecord
	if err := json.NewDecoder(rec.Body).Decode(&alerts); err != nil {
		t.Fatal(err)
	}
	if len(alerts) != 1 || alerts[0].Severity != model.SeverityAlert {
		t.Errorf("alerts = %+v", alerts)
	}

	rec = httptest.NewRecorder()
	(&Server{Status: staticStatus{}}).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/alerts", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("alerts without journal = %d, want 404", rec.Code)
	}
}

func TestAuth_LoginAndBearer(t *testing.T) {
	hash, err := auth.HashPassword("hunter2")
	if err != nil {
		t.Fatal(err)
	}
	srv := &Server{
		Status:    staticStatus{},
		Issuer:    auth.NewIssuer("test-secret", time.Hour),
		AdminUser: "admin",
		AdminHash: hash,
	}
	h := srv.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no token = %d, want 401", rec.Code)
	}

	login := func(user, pass string) *httptest.ResponseRecorder {
		body, _ := json.Marshal(loginRequest{Username: user, Password: pass})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body)))
		return rec
	}
	if rec := login("admin", "wrong"); rec.Code != http.StatusUnauthorized {
		t.Errorf("bad password = %d, want 401", rec.Code)
	}
	if rec := login("root", "hunter2"); rec.Code != http.StatusUnauthorized {
		t.Errorf("bad user = %d, want 401", rec.Code)
	}
	rec = login("admin", "hunter2")
	if rec.Code != http.StatusOK {
		t.Fatalf("login = %d", rec.Code)
	}
	var tok map[string]string
	_ = json.NewDecoder(rec.Body).Decode(&tok)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	req.Header.Set("Authorization", "Bearer "+tok["token"])
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("with token = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("healthz must stay open, got %d", rec.Code)
	}
}

func TestMetricsMounted(t *testing.T) {
	srv := &Server{Status: staticStatus{}, Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("sentinel_cycles_total 1\n"))
	})}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "sentinel_cycles_total") {
		t.Errorf("metrics body = %q", rec.Body.String())
	}
}

func TestAlertStream(t *testing.T) {
	hub := NewAlertHub()
	srv := httptest.NewServer((&Server{Status: staticStatus{}, Hub: hub}).Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/alerts/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := make(chan model.AlertRecord, 1)
	go hub.Run(ctx, ch)
	ch <- model.AlertRecord{Severity: model.SeverityWarning, Message: "ip_forwarding_enabled failed", Timestamp: time.Now()}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got model.AlertRecord
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Severity != model.SeverityWarning || got.Message != "ip_forwarding_enabled failed" {
		t.Errorf("record = %+v", got)
	}

	hub.CloseAll()
	if hub.Subscribers() != 0 {
		t.Errorf("Subscribers() = %d after CloseAll", hub.Subscribers())
	}
}

func TestServerTLSConfig_Disabled(t *testing.T) {
	cfg, err := ServerTLSConfig("", "", "")
	if err != nil || cfg != nil {
		t.Errorf("ServerTLSConfig() = %v, %v; want nil, nil", cfg, err)
	}
	if _, err := ServerTLSConfig("missing.pem", "missing.key", ""); err == nil {
		t.Error("missing files should fail")
	}
}

func TestListenAndServe_StopsOnCancel(t *testing.T) {
	srv := &Server{Status: staticStatus{}, Hub: NewAlertHub()}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx, "127.0.0.1:0", nil) }()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("ListenAndServe() = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
