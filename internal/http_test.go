package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"gadify-server/internal/access"
	"gadify-server/internal/config"
	"gadify-server/internal/identity"
	"gadify-server/internal/lifecycle"
	"gadify-server/internal/nonce"
	"gadify-server/internal/reporting"
	"gadify-server/internal/routes"
	"gadify-server/internal/storage"
)

type testServer struct {
	engine   *gin.Engine
	store    *storage.MemoryProvider
	identity *identity.Manager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := storage.NewMemoryProvider()
	nonces := nonce.NewMemoryStore()
	t.Cleanup(func() {
		nonces.Close()
		store.Close()
	})

	rbac, err := access.Load("")
	if err != nil {
		t.Fatalf("load policy: %v", err)
	}

	sessions := identity.NewManager("test-secret", time.Hour, store, nonces)
	registry := lifecycle.NewCoordinator(store, rbac)
	reports := reporting.NewService(store)
	api := routes.NewAPI(sessions, registry, reports)

	cfg := &config.Config{ListenAddr: ":0"}
	return &testServer{
		engine:   HTTPServer(cfg, api),
		store:    store,
		identity: sessions,
	}
}

// do performs a JSON request, attaching the auth cookie when given.
func (s *testServer) do(t *testing.T, method, path, cookie string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: "auth_token", Value: cookie})
	}

	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func authCookie(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == "auth_token" && c.Value != "" {
			return c.Value
		}
	}
	t.Fatalf("no auth cookie in response: %s", w.Body.String())
	return ""
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, into any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), into); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
}

func (s *testServer) signupStudent(t *testing.T, email string) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/auth/signup", "", gin.H{
		"email":     email,
		"password":  "strong enough",
		"full_name": "Test Student",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("signup status = %d: %s", w.Code, w.Body.String())
	}
	return authCookie(t, w)
}

func (s *testServer) signinStaff(t *testing.T) string {
	t.Helper()
	ctx := t.Context()
	if _, err := identity.CreateStaff(ctx, s.store, "staff@example.edu", "strong enough", "Registry Staff", nil); err != nil {
		t.Fatalf("create staff: %v", err)
	}
	w := s.do(t, http.MethodPost, "/auth/signin", "", gin.H{
		"email":    "staff@example.edu",
		"password": "strong enough",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("staff signin status = %d: %s", w.Code, w.Body.String())
	}
	return authCookie(t, w)
}

func (s *testServer) registerDevice(t *testing.T, cookie string) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/devices", cookie, gin.H{
		"name":          "My phone",
		"serial_number": "IMEI-355001",
		"brand":         "Samsung",
		"model":         "Galaxy A54",
		"type":          "smartphone",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("register status = %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Device struct {
			ID string `json:"id"`
		} `json:"device"`
	}
	decodeBody(t, w, &resp)
	if resp.Device.ID == "" {
		t.Fatalf("no device id in response: %s", w.Body.String())
	}
	return resp.Device.ID
}

func TestPing(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/ping", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("ping status = %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/metrics", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", w.Code)
	}
}

func TestAPIRequiresAuth(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/devices", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d, want 401", w.Code)
	}

	w = s.do(t, http.MethodGet, "/api/devices", "bogus-token", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bogus token status = %d, want 401", w.Code)
	}
}

func TestSignupSigninStatusSignout(t *testing.T) {
	s := newTestServer(t)

	cookie := s.signupStudent(t, "flow@students.example.edu")

	w := s.do(t, http.MethodGet, "/auth/status", cookie, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var status struct {
		Role            string `json:"role"`
		ProfileComplete bool   `json:"profile_complete"`
	}
	decodeBody(t, w, &status)
	if status.Role != "student" {
		t.Fatalf("role = %s, want student", status.Role)
	}
	if status.ProfileComplete {
		t.Fatal("fresh signup should have an incomplete profile")
	}

	w = s.do(t, http.MethodPost, "/auth/signout", cookie, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("signout = %d", w.Code)
	}
	w = s.do(t, http.MethodGet, "/auth/status", cookie, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status after signout = %d, want 401", w.Code)
	}
}

func TestOnboardingCompletesProfile(t *testing.T) {
	s := newTestServer(t)

	cookie := s.signupStudent(t, "fresh@students.example.edu")

	w := s.do(t, http.MethodPatch, "/auth/profile", cookie, gin.H{
		"department":        "Electrical Engineering",
		"study_level":       "200",
		"hall_of_residence": "Unity Hall",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("profile update = %d: %s", w.Code, w.Body.String())
	}

	w = s.do(t, http.MethodGet, "/auth/status", cookie, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var status struct {
		ProfileComplete bool `json:"profile_complete"`
	}
	decodeBody(t, w, &status)
	if !status.ProfileComplete {
		t.Fatalf("profile should be complete after onboarding: %s", w.Body.String())
	}
}

func TestDeviceLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)

	student := s.signupStudent(t, "owner@students.example.edu")
	staff := s.signinStaff(t)
	deviceID := s.registerDevice(t, student)

	// Students cannot verify, not even their own device.
	w := s.do(t, http.MethodPost, fmt.Sprintf("/api/devices/%s/verify", deviceID), student, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("student verify = %d, want 403: %s", w.Code, w.Body.String())
	}

	// No pass for a pending device.
	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/devices/%s/pass.png", deviceID), student, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("pending pass = %d, want 403", w.Code)
	}

	w = s.do(t, http.MethodPost, fmt.Sprintf("/api/devices/%s/verify", deviceID), staff, gin.H{"notes": "matches receipt"})
	if w.Code != http.StatusOK {
		t.Fatalf("staff verify = %d: %s", w.Code, w.Body.String())
	}

	// Verifying twice is a conflict.
	w = s.do(t, http.MethodPost, fmt.Sprintf("/api/devices/%s/verify", deviceID), staff, nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("double verify = %d, want 409: %s", w.Code, w.Body.String())
	}

	// Verified devices get a QR pass.
	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/devices/%s/pass.png", deviceID), student, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("pass = %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "image/png") {
		t.Fatalf("pass content type = %s", ct)
	}
}

func TestReportLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)

	student := s.signupStudent(t, "owner@students.example.edu")
	staff := s.signinStaff(t)
	deviceID := s.registerDevice(t, student)

	reportBody := gin.H{
		"device_id":     deviceID,
		"incident_type": "stolen",
		"incident_date": "2026-08-20",
		"location":      "Faculty car park",
		"description":   "Taken from my bag during practicals",
	}

	w := s.do(t, http.MethodPost, "/api/reports", student, reportBody)
	if w.Code != http.StatusCreated {
		t.Fatalf("report = %d: %s", w.Code, w.Body.String())
	}
	var created struct {
		Report struct {
			ID string `json:"id"`
		} `json:"report"`
	}
	decodeBody(t, w, &created)

	// Duplicate active report is a conflict.
	w = s.do(t, http.MethodPost, "/api/reports", student, reportBody)
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate report = %d, want 409: %s", w.Code, w.Body.String())
	}

	// Students cannot resolve.
	resolvePath := fmt.Sprintf("/api/reports/%s/resolve", created.Report.ID)
	w = s.do(t, http.MethodPost, resolvePath, student, gin.H{"resolution_type": "found"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("student resolve = %d, want 403", w.Code)
	}

	w = s.do(t, http.MethodPost, resolvePath, staff, gin.H{"resolution_type": "found"})
	if w.Code != http.StatusOK {
		t.Fatalf("resolve = %d: %s", w.Code, w.Body.String())
	}

	// Resolving again is a conflict.
	w = s.do(t, http.MethodPost, resolvePath, staff, gin.H{"resolution_type": "found"})
	if w.Code != http.StatusConflict {
		t.Fatalf("double resolve = %d, want 409: %s", w.Code, w.Body.String())
	}

	// The device is back to verified and can be reported again.
	w = s.do(t, http.MethodPost, "/api/reports", student, reportBody)
	if w.Code != http.StatusCreated {
		t.Fatalf("re-report = %d: %s", w.Code, w.Body.String())
	}
}

func TestStaffSurfaces(t *testing.T) {
	s := newTestServer(t)

	student := s.signupStudent(t, "owner@students.example.edu")
	staff := s.signinStaff(t)
	s.registerDevice(t, student)

	// Students are locked out of the staff surfaces.
	for _, path := range []string{"/api/devices/all", "/api/reports/all", "/api/students", "/api/dashboard"} {
		w := s.do(t, http.MethodGet, path, student, nil)
		if w.Code != http.StatusForbidden {
			t.Fatalf("student GET %s = %d, want 403", path, w.Code)
		}
	}

	w := s.do(t, http.MethodGet, "/api/devices/all?status=pending", staff, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("devices/all = %d: %s", w.Code, w.Body.String())
	}

	w = s.do(t, http.MethodGet, "/api/students", staff, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("students = %d: %s", w.Code, w.Body.String())
	}
	var students struct {
		Students []struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"students"`
	}
	decodeBody(t, w, &students)
	if len(students.Students) != 1 {
		t.Fatalf("students = %d, want 1", len(students.Students))
	}

	// Suspend and reactivate through the directory.
	patchPath := fmt.Sprintf("/api/students/%s/status", students.Students[0].ID)
	w = s.do(t, http.MethodPatch, patchPath, staff, gin.H{"status": "suspended"})
	if w.Code != http.StatusOK {
		t.Fatalf("suspend = %d: %s", w.Code, w.Body.String())
	}
	w = s.do(t, http.MethodPatch, patchPath, staff, gin.H{"status": "expelled"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad status = %d, want 400: %s", w.Code, w.Body.String())
	}

	w = s.do(t, http.MethodGet, "/api/dashboard", staff, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("dashboard = %d: %s", w.Code, w.Body.String())
	}
	var dashboard struct {
		Devices struct {
			Total   int `json:"total"`
			Pending int `json:"pending"`
		} `json:"devices"`
	}
	decodeBody(t, w, &dashboard)
	if dashboard.Devices.Total != 1 || dashboard.Devices.Pending != 1 {
		t.Fatalf("dashboard devices = %+v", dashboard.Devices)
	}
}

func TestPublicPassCheck(t *testing.T) {
	s := newTestServer(t)

	student := s.signupStudent(t, "owner@students.example.edu")
	staff := s.signinStaff(t)
	deviceID := s.registerDevice(t, student)

	w := s.do(t, http.MethodPost, fmt.Sprintf("/api/devices/%s/verify", deviceID), staff, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("verify = %d", w.Code)
	}

	token, err := s.identity.SignDevicePass(deviceID, time.Minute)
	if err != nil {
		t.Fatalf("sign pass: %v", err)
	}

	// No session required for the pass check.
	w = s.do(t, http.MethodGet, "/pass/"+token, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("pass check = %d: %s", w.Code, w.Body.String())
	}
	var check struct {
		Valid bool `json:"valid"`
	}
	decodeBody(t, w, &check)
	if !check.Valid {
		t.Fatalf("pass should be valid: %s", w.Body.String())
	}

	w = s.do(t, http.MethodGet, "/pass/garbage-token", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("garbage pass check = %d", w.Code)
	}
	decodeBody(t, w, &check)
	if check.Valid {
		t.Fatal("garbage token must not validate")
	}
}
