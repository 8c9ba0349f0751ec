package webhooks

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/inkwell-app/inkwell/internal/db"
	"github.com/inkwell-app/inkwell/internal/subscription"
	"github.com/inkwell-app/inkwell/internal/webhook"
)

func newEngine(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	conn, errOpen := db.Open("file:" + filepath.Join(t.TempDir(), "webhooks.db"))
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	subs := subscription.NewService(conn, nil, false)
	ingress := webhook.NewIngress(subs, "secret", webhook.NewLedger(conn), nil)

	engine := gin.New()
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	RegisterWebhookRoutes(engine, ingress, func() time.Time { return fixed })
	return engine
}

func TestReachabilityReportsEndpoint(t *testing.T) {
	engine := newEngine(t)
	req := httptest.NewRequest(http.MethodGet, "http://hooks.example.com"+PolarPath, nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var out map[string]string
	if errDecode := json.Unmarshal(rec.Body.Bytes(), &out); errDecode != nil {
		t.Fatalf("decode: %v", errDecode)
	}
	if out["url"] != "https://hooks.example.com/webhooks/polar" {
		t.Fatalf("url = %q", out["url"])
	}
	if out["timestamp"] != "2025-03-01T12:00:00Z" {
		t.Fatalf("timestamp = %q", out["timestamp"])
	}
}

func TestDeliverPassesThroughIngressStatus(t *testing.T) {
	engine := newEngine(t)

	cases := []struct {
		name string
		body string
		want int
	}{
		{name: "unknown type", body: `{"type":"benefit.granted","data":{}}`, want: http.StatusOK},
		{name: "missing email", body: `{"type":"subscription.updated","data":{"id":"s","status":"active"}}`, want: http.StatusOK},
		{name: "not json", body: `{"type":`, want: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, PolarPath, strings.NewReader(tc.body)))
		if rec.Code != tc.want {
			t.Fatalf("%s: status = %d body=%s", tc.name, rec.Code, rec.Body.String())
		}
	}
}

func TestDeliverAcceptsLargeValidJSON(t *testing.T) {
	engine := newEngine(t)
	body := `{"type":"some.other","data":{"pad":"` + strings.Repeat("x", 1<<20) + `"}}`

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, PolarPath, strings.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestDeliverAcknowledgesOversizedBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := &handler{nowFn: time.Now, maxBody: 64}
	engine := gin.New()
	engine.POST(PolarPath, h.Deliver)

	body := `{"type":"subscription.updated","data":{"pad":"` + strings.Repeat("x", 128) + `"}}`
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, PolarPath, strings.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var out map[string]any
	if errDecode := json.Unmarshal(rec.Body.Bytes(), &out); errDecode != nil {
		t.Fatalf("decode: %v", errDecode)
	}
	if out["message"] != MessageTooLarge || out["success"] != false {
		t.Fatalf("body = %v", out)
	}
}
