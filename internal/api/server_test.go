package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/attendancekit/nfc-backend/internal/config"
	"github.com/attendancekit/nfc-backend/internal/reader"
	"github.com/attendancekit/nfc-backend/internal/users"
)

// stubTransport is a scripted reader.Transport. Each Poll consumes the
// next queued result; an empty queue reads as "no card".
type stubTransport struct {
	mu      sync.Mutex
	openErr error
	queue   []reader.ScanResult
}

func (s *stubTransport) Open() error { return s.openErr }

func (s *stubTransport) Poll(timeout time.Duration) reader.ScanResult {
	s.mu.Lock()
	if len(s.queue) == 0 {
		s.mu.Unlock()
		// Pretend the poll window elapsed without a card.
		time.Sleep(time.Millisecond)
		return reader.ScanResult{}
	}
	res := s.queue[0]
	s.queue = s.queue[1:]
	s.mu.Unlock()
	return res
}

func (s *stubTransport) Close() error { return nil }

func (s *stubTransport) feedUID(b ...byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, reader.ScanResult{UID: reader.UID(b)})
}

const testAdminPassword = "hunter2"

func newTestServer(t *testing.T, tr reader.Transport) (*Server, *reader.Controller) {
	t.Helper()

	cfg := &config.Config{
		Host:          "127.0.0.1",
		Port:          0,
		AdminPassword: testAdminPassword,
		MaxBufferSize: 10,
	}
	store := users.NewStore(filepath.Join(t.TempDir(), "users.csv"))
	ctrl := reader.NewController(tr, reader.NewScanBuffer(10), 10*time.Millisecond)
	t.Cleanup(ctrl.Shutdown)

	s := New(cfg, ctrl, store)
	go s.hub.Run()
	return s, ctrl
}

func doJSON(t *testing.T, h http.Handler, method, path string, body, out any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if out != nil {
		if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
			t.Fatalf("%s %s: decode response %q: %v", method, path, w.Body.String(), err)
		}
	}
	return w
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, &stubTransport{})

	var resp healthResponse
	w := doJSON(t, s.Handler(), http.MethodGet, "/health", nil, &resp)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if resp.Status != "ok" {
		t.Errorf("Status = %q", resp.Status)
	}
	if resp.Version != Version {
		t.Errorf("Version = %q, want %q", resp.Version, Version)
	}
	if resp.Scan.Running {
		t.Error("scan should not be running at startup")
	}
}

func TestRead_CardPresent(t *testing.T) {
	tr := &stubTransport{}
	tr.feedUID(0x01, 0x02, 0x03, 0x04)
	s, _ := newTestServer(t, tr)

	var resp scanResponse
	w := doJSON(t, s.Handler(), http.MethodGet, "/read?timeout=0.5", nil, &resp)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if !resp.Success {
		t.Error("Success should be true")
	}
	if resp.UIDHex == nil || *resp.UIDHex != "01020304" {
		t.Errorf("UIDHex = %v, want 01020304", resp.UIDHex)
	}
}

func TestRead_NoCard(t *testing.T) {
	s, _ := newTestServer(t, &stubTransport{})

	var resp scanResponse
	w := doJSON(t, s.Handler(), http.MethodGet, "/read?timeout=0.05", nil, &resp)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if resp.Success {
		t.Error("Success should be false on timeout")
	}
	if resp.UIDHex != nil {
		t.Errorf("UIDHex = %v, want null", *resp.UIDHex)
	}
}

func TestRead_NoReader(t *testing.T) {
	s, _ := newTestServer(t, &stubTransport{openErr: reader.ErrNoReader})

	var resp errorResponse
	w := doJSON(t, s.Handler(), http.MethodGet, "/read", nil, &resp)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	if resp.Error != "reader_unavailable" {
		t.Errorf("Error = %q", resp.Error)
	}
}

func TestContinuous_StartConflictStop(t *testing.T) {
	s, ctrl := newTestServer(t, &stubTransport{})
	h := s.Handler()

	var resp continuousResponse
	w := doJSON(t, h, http.MethodPost, "/continuous/start", nil, &resp)
	if w.Code != http.StatusOK {
		t.Fatalf("start: status = %d, body %s", w.Code, w.Body.String())
	}
	if !resp.Success || !resp.IsRunning {
		t.Errorf("start: resp = %+v", resp)
	}
	if !ctrl.Running() {
		t.Error("controller should be running after start")
	}

	w = doJSON(t, h, http.MethodPost, "/continuous/start", nil, &resp)
	if w.Code != http.StatusConflict {
		t.Fatalf("second start: status = %d, want 409", w.Code)
	}
	if resp.Success || !resp.IsRunning {
		t.Errorf("second start: resp = %+v", resp)
	}

	w = doJSON(t, h, http.MethodPost, "/continuous/stop", nil, &resp)
	if w.Code != http.StatusOK || !resp.Success || resp.IsRunning {
		t.Fatalf("stop: status = %d, resp = %+v", w.Code, resp)
	}
	if ctrl.Running() {
		t.Error("controller should be idle after stop")
	}

	// Stopping again is a harmless no-op.
	w = doJSON(t, h, http.MethodPost, "/continuous/stop", nil, &resp)
	if w.Code != http.StatusOK {
		t.Errorf("idempotent stop: status = %d", w.Code)
	}
}

func TestContinuous_StartNoReader(t *testing.T) {
	s, _ := newTestServer(t, &stubTransport{openErr: reader.ErrNoReader})

	var resp errorResponse
	w := doJSON(t, s.Handler(), http.MethodPost, "/continuous/start", nil, &resp)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
}

func TestContinuous_ResultsDrain(t *testing.T) {
	tr := &stubTransport{}
	tr.feedUID(0x11)
	tr.feedUID(0x11) // same card still on the reader
	tr.feedUID(0x22)
	s, ctrl := newTestServer(t, tr)
	h := s.Handler()

	var start continuousResponse
	if w := doJSON(t, h, http.MethodPost, "/continuous/start", nil, &start); w.Code != http.StatusOK {
		t.Fatalf("start failed: %s", w.Body.String())
	}

	waitFor(t, func() bool { return ctrl.Status().Buffered == 2 }, "buffer never reached 2 entries")

	var resp drainResponse
	doJSON(t, h, http.MethodGet, "/continuous/results", nil, &resp)

	want := []string{"11", "22"}
	if resp.Count != 2 || len(resp.UIDHexList) != 2 {
		t.Fatalf("drain: %+v", resp)
	}
	for i, w := range want {
		if resp.UIDHexList[i] != w {
			t.Errorf("UIDHexList[%d] = %q, want %q", i, resp.UIDHexList[i], w)
		}
	}

	// A second drain finds the buffer empty.
	doJSON(t, h, http.MethodGet, "/continuous/results", nil, &resp)
	if resp.Count != 0 || len(resp.UIDHexList) != 0 {
		t.Errorf("second drain should be empty: %+v", resp)
	}
}

func TestUser_RegisterLookupDelete(t *testing.T) {
	s, _ := newTestServer(t, &stubTransport{})
	h := s.Handler()

	u := users.User{UIDHex: "0442488a837280", ID: "u1", Name: "Hanako"}

	var reg userRegisterResponse
	w := doJSON(t, h, http.MethodPost, "/user/register", u, &reg)
	if w.Code != http.StatusOK || !reg.Success || reg.IsUpdate {
		t.Fatalf("register: status = %d, resp = %+v", w.Code, reg)
	}

	u.Name = "Hanako S."
	doJSON(t, h, http.MethodPost, "/user/register", u, &reg)
	if !reg.IsUpdate {
		t.Error("re-register should report an update")
	}

	var lookup userLookupResponse
	doJSON(t, h, http.MethodPost, "/user/lookup", userLookupRequest{UIDHex: u.UIDHex}, &lookup)
	if !lookup.Found || lookup.User == nil || lookup.User.Name != "Hanako S." {
		t.Fatalf("lookup: %+v", lookup)
	}

	// Deletion needs the admin password.
	var errResp errorResponse
	w = doJSON(t, h, http.MethodDelete, "/user/delete",
		userDeleteRequest{UIDHex: u.UIDHex, AdminPassword: "wrong"}, &errResp)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("delete with bad password: status = %d, want 401", w.Code)
	}
	if errResp.Error != "unauthorized" {
		t.Errorf("Error = %q", errResp.Error)
	}

	var del userDeleteResponse
	w = doJSON(t, h, http.MethodDelete, "/user/delete",
		userDeleteRequest{UIDHex: u.UIDHex, AdminPassword: testAdminPassword}, &del)
	if w.Code != http.StatusOK || !del.Success {
		t.Fatalf("delete: status = %d, resp = %+v", w.Code, del)
	}

	doJSON(t, h, http.MethodPost, "/user/lookup", userLookupRequest{UIDHex: u.UIDHex}, &lookup)
	if lookup.Found {
		t.Error("user should be gone after delete")
	}
}

func TestUser_RegisterRequiresUID(t *testing.T) {
	s, _ := newTestServer(t, &stubTransport{})

	var resp errorResponse
	w := doJSON(t, s.Handler(), http.MethodPost, "/user/register", users.User{Name: "no uid"}, &resp)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestUser_LookupRejectsBadJSON(t *testing.T) {
	s, _ := newTestServer(t, &stubTransport{})

	req := httptest.NewRequest(http.MethodPost, "/user/lookup", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestLogs(t *testing.T) {
	s, _ := newTestServer(t, &stubTransport{})

	req := httptest.NewRequest(http.MethodGet, "/logs?limit=5", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var entries []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &entries); err != nil {
		t.Fatalf("logs response is not a JSON array: %v", err)
	}
}

func TestStatusPage(t *testing.T) {
	s, _ := newTestServer(t, &stubTransport{})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "text/html") {
		t.Errorf("Content-Type = %q", ct)
	}
}
