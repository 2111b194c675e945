package adapthttp_test

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	adapthttp "trustcore/internal/adapter/http"
	"trustcore/internal/adapter/memory"
	"trustcore/internal/app"
	"trustcore/internal/domain"
	"trustcore/internal/password"
)

// ---------------------------------------------------------------------------
// Test wiring
// ---------------------------------------------------------------------------

type recordingMailer struct {
	mu   sync.Mutex
	sent []domain.PasswordResetEmail
}

func (m *recordingMailer) SendPasswordReset(ctx context.Context, msg domain.PasswordResetEmail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func (m *recordingMailer) lastToken(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		t.Fatal("no mail sent")
	}
	u, err := url.Parse(m.sent[len(m.sent)-1].ResetURL)
	if err != nil {
		t.Fatal(err)
	}
	return u.Query().Get("token")
}

type testEnv struct {
	handler http.Handler
	db      *memory.DB
	mailer  *recordingMailer
	blobs   *memory.BlobStore
}

func newTestEnv(t *testing.T, policies []app.RateLimitPolicy, opts adapthttp.Options) *testEnv {
	t.Helper()
	if policies == nil {
		policies = app.DefaultPolicies()
	}
	env := &testEnv{
		db:     memory.New(),
		mailer: &recordingMailer{},
		blobs:  memory.NewBlobStore(),
	}
	hasher := password.NewBcrypt(bcrypt.MinCost)
	initial, _ := hasher.Hash("initial-password")
	if _, err := env.db.CreateUser(context.Background(), "ada@example.com", "Ada", initial); err != nil {
		t.Fatal(err)
	}

	recovery := app.NewRecoveryService(env.db, env.db, env.mailer, hasher, "https://app.example", time.Hour)
	limits := app.NewRateLimitService(policies, func(p app.RateLimitPolicy) domain.RateLimiter {
		return memory.NewSlidingWindow(p.Interval, p.Capacity)
	})
	env.handler = adapthttp.New(recovery, limits, app.NewUploadValidator(), env.blobs, opts).Handler()
	return env
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func jsonRequest(method, path string, body any, ip string) *http.Request {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(method, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", ip)
	return req
}

func resetRequest(email, ip string) *http.Request {
	return jsonRequest(http.MethodPost, "/api/password-reset/request", map[string]string{"email": email, "locale": "en"}, ip)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return m
}

// ---------------------------------------------------------------------------
// Health
// ---------------------------------------------------------------------------

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil, adapthttp.Options{})
	w := env.do(httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if w.Header().Get("X-RateLimit-Limit") != "" {
		t.Error("health check should not be rate limited")
	}
	if w.Header().Get("Cache-Control") != "no-store" {
		t.Errorf("Cache-Control = %q", w.Header().Get("Cache-Control"))
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, nil, adapthttp.Options{AllowedOrigins: []string{"https://app.example"}})
	req := httptest.NewRequest(http.MethodOptions, "/api/password-reset/request", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	w := env.do(req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

// ---------------------------------------------------------------------------
// Password reset
// ---------------------------------------------------------------------------

func TestResetRequest_SameResponseForKnownAndUnknown(t *testing.T) {
	env := newTestEnv(t, nil, adapthttp.Options{})

	known := env.do(resetRequest("ada@example.com", "203.0.113.1"))
	unknown := env.do(resetRequest("ghost@example.com", "203.0.113.2"))

	if known.Code != http.StatusOK || unknown.Code != http.StatusOK {
		t.Fatalf("status known=%d unknown=%d", known.Code, unknown.Code)
	}
	if known.Body.String() != unknown.Body.String() {
		t.Errorf("bodies differ: %q vs %q", known.Body.String(), unknown.Body.String())
	}
	if env.mailer.count() != 1 {
		t.Errorf("sent %d mails, want 1", env.mailer.count())
	}
}

func TestResetRequest_InvalidInput(t *testing.T) {
	env := newTestEnv(t, nil, adapthttp.Options{})

	w := env.do(resetRequest("not-an-email", "203.0.113.1"))
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid email status = %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/password-reset/request", strings.NewReader("{"))
	if w := env.do(req); w.Code != http.StatusBadRequest {
		t.Errorf("bad json status = %d", w.Code)
	}
}

func TestResetRequest_PerEmailLimit(t *testing.T) {
	env := newTestEnv(t, nil, adapthttp.Options{})

	for i := 0; i < 3; i++ {
		w := env.do(resetRequest("ada@example.com", "203.0.113.1"))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, w.Code)
		}
	}

	w := env.do(resetRequest("ADA@example.com", "203.0.113.1"))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if w.Header().Get("X-RateLimit-Limit") != "3" || w.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("headers = %v", w.Header())
	}
	retry, err := strconv.Atoi(w.Header().Get("Retry-After"))
	if err != nil || retry < 1 || retry > 3600 {
		t.Errorf("Retry-After = %q", w.Header().Get("Retry-After"))
	}
	body := decode(t, w)
	if reset, ok := body["reset"].(float64); !ok || int64(reset) <= time.Now().UnixMilli() {
		t.Errorf("reset = %v, want future epoch millis", body["reset"])
	}
	if env.mailer.count() != 3 {
		t.Errorf("sent %d mails, want 3", env.mailer.count())
	}
}

func TestResetRequest_PerIPLimit(t *testing.T) {
	env := newTestEnv(t, nil, adapthttp.Options{})

	for i := 0; i < 5; i++ {
		w := env.do(resetRequest("user"+strconv.Itoa(i)+"@example.com", "198.51.100.9"))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, w.Code)
		}
	}

	w := env.do(resetRequest("other@example.com", "198.51.100.9"))
	if w.Code != http.StatusTooManyRequests || w.Header().Get("X-RateLimit-Limit") != "5" {
		t.Errorf("status = %d limit = %q, want 429 from auth policy", w.Code, w.Header().Get("X-RateLimit-Limit"))
	}

	if w := env.do(resetRequest("other@example.com", "198.51.100.10")); w.Code != http.StatusOK {
		t.Errorf("other address status = %d", w.Code)
	}
}

func TestResetFlow(t *testing.T) {
	env := newTestEnv(t, nil, adapthttp.Options{})
	const ip = "203.0.113.1"

	if w := env.do(resetRequest("ada@example.com", ip)); w.Code != http.StatusOK {
		t.Fatalf("request status = %d", w.Code)
	}
	token := env.mailer.lastToken(t)

	w := env.do(httptest.NewRequest(http.MethodGet, "/api/password-reset/verify?token="+token, nil))
	if w.Code != http.StatusOK || decode(t, w)["valid"] != true {
		t.Fatalf("verify = %d %s", w.Code, w.Body.String())
	}

	w = env.do(jsonRequest(http.MethodPost, "/api/password-reset/confirm", map[string]string{"token": token, "password": "short"}, ip))
	if w.Code != http.StatusBadRequest || !strings.Contains(decode(t, w)["error"].(string), "password") {
		t.Errorf("weak password = %d %s", w.Code, w.Body.String())
	}

	w = env.do(jsonRequest(http.MethodPost, "/api/password-reset/confirm", map[string]string{"token": token, "password": "a much better password"}, ip))
	if w.Code != http.StatusOK {
		t.Fatalf("confirm = %d %s", w.Code, w.Body.String())
	}

	w = env.do(jsonRequest(http.MethodPost, "/api/password-reset/confirm", map[string]string{"token": token, "password": "another password"}, ip))
	if w.Code != http.StatusBadRequest || decode(t, w)["error"] != "invalid or expired link" {
		t.Errorf("reuse = %d %s", w.Code, w.Body.String())
	}

	w = env.do(httptest.NewRequest(http.MethodGet, "/api/password-reset/verify?token="+token, nil))
	body := decode(t, w)
	if w.Code != http.StatusBadRequest || body["valid"] != false || body["error"] != "invalid or expired link" {
		t.Errorf("verify after use = %d %s", w.Code, w.Body.String())
	}
}

func TestResetVerify_UnknownAndMalformedLookIdentical(t *testing.T) {
	env := newTestEnv(t, nil, adapthttp.Options{})

	unknown := env.do(httptest.NewRequest(http.MethodGet, "/api/password-reset/verify?token="+strings.Repeat("0", 64), nil))
	malformed := env.do(httptest.NewRequest(http.MethodGet, "/api/password-reset/verify?token=nope", nil))

	if unknown.Code != http.StatusBadRequest || unknown.Body.String() != malformed.Body.String() {
		t.Errorf("unknown=%d %q malformed=%d %q", unknown.Code, unknown.Body.String(), malformed.Code, malformed.Body.String())
	}
}

// ---------------------------------------------------------------------------
// API policy
// ---------------------------------------------------------------------------

func TestAPIPolicy(t *testing.T) {
	policies := []app.RateLimitPolicy{
		{Name: app.PolicyAuth, Limit: 5, Interval: time.Minute, Capacity: 10},
		{Name: app.PolicyPasswordReset, Limit: 3, Interval: time.Hour, Capacity: 10},
		{Name: app.PolicyAPI, Limit: 2, Interval: time.Minute, Capacity: 10},
	}

	verify := func(env *testEnv, account string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/password-reset/verify?token=x", nil)
		req.Header.Set("X-Real-IP", "192.0.2.50")
		if account != "" {
			req.Header.Set("Remote-User", account)
		}
		return env.do(req).Code
	}

	t.Run("trusted forward auth", func(t *testing.T) {
		env := newTestEnv(t, policies, adapthttp.Options{TrustForwardAuth: true})
		if verify(env, "") != http.StatusBadRequest || verify(env, "") != http.StatusBadRequest {
			t.Fatal("first two requests should reach the handler")
		}
		if got := verify(env, ""); got != http.StatusTooManyRequests {
			t.Errorf("third request status = %d, want 429", got)
		}
		if got := verify(env, "ada"); got != http.StatusBadRequest {
			t.Errorf("account-keyed request status = %d, want its own window", got)
		}
	})

	t.Run("rotating header without trusted proxy", func(t *testing.T) {
		env := newTestEnv(t, policies, adapthttp.Options{})
		for i, account := range []string{"a", "b"} {
			if got := verify(env, account); got != http.StatusBadRequest {
				t.Fatalf("request %d status = %d, want 400", i+1, got)
			}
		}
		if got := verify(env, "c"); got != http.StatusTooManyRequests {
			t.Errorf("fresh account header status = %d, want 429 on the shared address key", got)
		}
	})
}

// ---------------------------------------------------------------------------
// Admin
// ---------------------------------------------------------------------------

func TestAdminRateLimitReset(t *testing.T) {
	env := newTestEnv(t, nil, adapthttp.Options{AdminToken: "s3cret"})
	const ip = "203.0.113.1"

	for i := 0; i < 3; i++ {
		env.do(resetRequest("ada@example.com", ip))
	}
	if w := env.do(resetRequest("ada@example.com", ip)); w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}

	path := "/api/admin/rate-limits/password_reset/email:ada@example.com"

	req := httptest.NewRequest(http.MethodDelete, path, nil)
	if w := env.do(req); w.Code != http.StatusUnauthorized {
		t.Errorf("no token status = %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, path, nil)
	req.Header.Set("Authorization", "Bearer wrong")
	if w := env.do(req); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token status = %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/admin/rate-limits/nope/ip:1.2.3.4", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	if w := env.do(req); w.Code != http.StatusNotFound {
		t.Errorf("unknown policy status = %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, path, nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	if w := env.do(req); w.Code != http.StatusOK {
		t.Fatalf("reset status = %d %s", w.Code, w.Body.String())
	}

	if w := env.do(resetRequest("ada@example.com", ip)); w.Code != http.StatusOK {
		t.Errorf("after reset status = %d", w.Code)
	}
}

func TestAdminDisabledWithoutToken(t *testing.T) {
	env := newTestEnv(t, nil, adapthttp.Options{})
	req := httptest.NewRequest(http.MethodDelete, "/api/admin/rate-limits/auth/ip:1.2.3.4", nil)
	req.Header.Set("Authorization", "Bearer ")
	if w := env.do(req); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Uploads
// ---------------------------------------------------------------------------

func pngBytes(w, h uint32) []byte {
	b := []byte("\x89PNG\r\n\x1a\n")
	b = binary.BigEndian.AppendUint32(b, 13)
	b = append(b, "IHDR"...)
	b = binary.BigEndian.AppendUint32(b, w)
	b = binary.BigEndian.AppendUint32(b, h)
	return append(b, 8, 6, 0, 0, 0, 0, 0, 0, 0)
}

func docxBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range []string{"[Content_Types].xml", "word/document.xml"} {
		f, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = f.Write([]byte("<xml/>"))
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func uploadRequest(t *testing.T, path, field, filename string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = fw.Write(data)
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadImage(t *testing.T) {
	env := newTestEnv(t, nil, adapthttp.Options{
		Image: domain.UploadOptions{MaxSizeBytes: 1 << 20, AllowedExtensions: []string{"png", "jpg"}, MaxWidth: 1000, MaxHeight: 1000},
	})

	w := env.do(uploadRequest(t, "/api/uploads/image", "file", "holiday.jpg", pngBytes(200, 100)))
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["extension"] != "png" || body["width"] != float64(200) || body["height"] != float64(100) {
		t.Errorf("body = %v", body)
	}
	link, _ := body["url"].(string)
	if !strings.HasPrefix(link, "memory://images/") || !strings.HasSuffix(link, ".png") {
		t.Fatalf("url = %q", link)
	}
	if stored, ok := env.blobs.Get(link); !ok || !bytes.Equal(stored, pngBytes(200, 100)) {
		t.Error("stored payload does not match upload")
	}
}

func TestUploadImage_Rejections(t *testing.T) {
	env := newTestEnv(t, nil, adapthttp.Options{
		Image: domain.UploadOptions{MaxSizeBytes: 64, MaxWidth: 1000, MaxHeight: 1000},
	})

	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"disguised pdf", []byte("%PDF-1.4\n%%EOF"), "file is not a supported image"},
		{"too wide", pngBytes(4000, 10), "image dimensions 4000x10 exceed maximum 1000x1000"},
		{"too large", append(pngBytes(10, 10), make([]byte, 100)...), "exceeds maximum 64 bytes"},
		{"unknown", []byte("hello"), "unsupported file type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(uploadRequest(t, "/api/uploads/image", "file", "photo.png", tt.data))
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d", w.Code)
			}
			body := decode(t, w)
			if body["valid"] != false || !strings.Contains(body["error"].(string), tt.want) {
				t.Errorf("body = %v, want error %q", body, tt.want)
			}
		})
	}
}

func TestUploadDocument(t *testing.T) {
	env := newTestEnv(t, nil, adapthttp.Options{
		Document: domain.UploadOptions{MaxSizeBytes: 1 << 20},
	})

	w := env.do(uploadRequest(t, "/api/uploads/document", "file", "cv.pdf", docxBytes(t)))
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d %s", w.Code, w.Body.String())
	}
	if body := decode(t, w); body["documentType"] != "docx" {
		t.Errorf("body = %v", body)
	}

	w = env.do(uploadRequest(t, "/api/uploads/document", "file", "cv.pdf", pngBytes(1, 1)))
	if w.Code != http.StatusBadRequest {
		t.Errorf("image as document status = %d", w.Code)
	}
}

func TestUpload_MissingField(t *testing.T) {
	env := newTestEnv(t, nil, adapthttp.Options{})
	w := env.do(uploadRequest(t, "/api/uploads/image", "attachment", "a.png", pngBytes(1, 1)))
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d", w.Code)
	}
}
