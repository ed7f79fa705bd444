package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/fitbot/fitbot-backend/internal/config"
	"github.com/fitbot/fitbot-backend/internal/domain"
)

// --- test DB helper (pure-Go sqlite, no CGO) ---
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:routerdb-"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&domain.User{}, &domain.FitnessProfile{},
		&domain.Conversation{}, &domain.Message{},
		&domain.Product{}, &domain.Recommendation{},
	); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func testConfig() config.Config {
	return config.Config{
		APIBasePath: "/api/v1",
		RateRPS:     1000,
		RateBurst:   1000,
		CORS:        config.CORSConfig{AllowedOrigins: nil}, // triggers AllowAllOrigins branch
		Security:    config.SecurityConfig{EnableHSTS: false, HSTSMaxAge: 0},
		OTEL:        config.OTELConfig{ServiceName: "test-svc"},
		Limits: config.LimitsConfig{
			ChatPerHour:       10,
			SearchPerHour:     20,
			RecommendPerHour:  15,
			HistoryMessages:   20,
			MaxMessageRunes:   500,
			TitlePrefixRunes:  50,
			RenameClampRunes:  100,
			ConversationsPage: 50,
		},
		Provider: config.ProviderConfig{RequestTimeout: time.Minute}, // no key: demo mode
	}
}

func seedUser(t *testing.T, db *gorm.DB, id, tier string) {
	t.Helper()
	u := &domain.User{ID: id, Email: id + "@example.com", SubscriptionTier: tier}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
}

func newTestRouter(t *testing.T, cfg config.Config) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	db := newTestDB(t)
	RegisterRoutes(r, db, nil, cfg)
	return r, db
}

func doJSON(r *gin.Engine, method, path, user string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept-Encoding", "identity")
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRegisterRoutes_HealthMetricsAndFallbacks(t *testing.T) {
	r, _ := newTestRouter(t, testConfig())

	w := doJSON(r, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	// CORS (AllowAllOrigins) → header "*"
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}

	w = doJSON(r, http.MethodGet, "/metrics", "", nil)
	if w.Code != http.StatusOK || w.Body.Len() == 0 {
		t.Fatalf("GET /metrics bad: code=%d len=%d", w.Code, w.Body.Len())
	}

	// Unknown route → structured 404
	w = doJSON(r, http.MethodGet, "/nope", "", nil)
	if w.Code != http.StatusNotFound || !strings.Contains(w.Body.String(), "not_found") {
		t.Fatalf("fallback 404 broken: %d %s", w.Code, w.Body.String())
	}

	// Wrong method → structured 405
	w = doJSON(r, http.MethodPatch, "/health", "", nil)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}

func TestRegisterRoutes_ConversationLifecycle(t *testing.T) {
	r, db := newTestRouter(t, testConfig())
	seedUser(t, db, "u1", domain.TierBasic)

	// Create
	w := doJSON(r, http.MethodPost, "/api/v1/conversations", "u1", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create conversation = %d: %s", w.Code, w.Body.String())
	}
	var conv domain.Conversation
	if err := json.Unmarshal(w.Body.Bytes(), &conv); err != nil {
		t.Fatalf("decode conversation: %v", err)
	}
	if conv.Title != "Nueva conversación" {
		t.Fatalf("unexpected default title %q", conv.Title)
	}

	// List with pagination envelope and ETag
	w = doJSON(r, http.MethodGet, "/api/v1/conversations", "u1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d", w.Code)
	}
	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatalf("list should carry a weak ETag")
	}
	var listResp struct {
		Conversations []domain.Conversation `json:"conversations"`
		Pagination    struct {
			Total int64 `json:"total"`
		} `json:"pagination"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &listResp); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if listResp.Pagination.Total != 1 || len(listResp.Conversations) != 1 {
		t.Fatalf("unexpected list: %+v", listResp)
	}

	// Conditional request replays the ETag → 304
	req := httptest.NewRequest(http.MethodGet, "/api/v1/conversations", nil)
	req.Header.Set("X-User-ID", "u1")
	req.Header.Set("If-None-Match", etag)
	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, req)
	if w2.Code != http.StatusNotModified {
		t.Fatalf("If-None-Match should yield 304, got %d", w2.Code)
	}

	// Rename
	w = doJSON(r, http.MethodPut, "/api/v1/conversations/"+conv.ID+"/title", "u1", map[string]string{"title": "Plan de fuerza"})
	if w.Code != http.StatusNoContent {
		t.Fatalf("rename = %d: %s", w.Code, w.Body.String())
	}

	// Detail includes (empty) history
	w = doJSON(r, http.MethodGet, "/api/v1/conversations/"+conv.ID, "u1", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Plan de fuerza") {
		t.Fatalf("detail = %d: %s", w.Code, w.Body.String())
	}

	// Paginated history endpoint: empty thread, ETag present
	w = doJSON(r, http.MethodGet, "/api/v1/conversations/"+conv.ID+"/messages", "u1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("messages = %d: %s", w.Code, w.Body.String())
	}
	if w.Header().Get("ETag") == "" {
		t.Fatalf("messages listing should carry a weak ETag")
	}
	var msgsResp struct {
		Messages   []domain.Message `json:"messages"`
		Pagination struct {
			Total int64 `json:"total"`
		} `json:"pagination"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &msgsResp); err != nil {
		t.Fatalf("decode messages: %v", err)
	}
	if msgsResp.Pagination.Total != 0 || msgsResp.Messages == nil || len(msgsResp.Messages) != 0 {
		t.Fatalf("expected empty page: %+v", msgsResp)
	}

	// Another user cannot see it
	w = doJSON(r, http.MethodGet, "/api/v1/conversations/"+conv.ID, "intruder", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("cross-user read should 404, got %d", w.Code)
	}

	// Archive, restore, delete
	for _, step := range []struct {
		method, path string
		want         int
	}{
		{http.MethodPut, "/api/v1/conversations/" + conv.ID + "/archive", http.StatusNoContent},
		{http.MethodPut, "/api/v1/conversations/" + conv.ID + "/restore", http.StatusNoContent},
		{http.MethodDelete, "/api/v1/conversations/" + conv.ID, http.StatusNoContent},
	} {
		w = doJSON(r, step.method, step.path, "u1", nil)
		if w.Code != step.want {
			t.Fatalf("%s %s = %d", step.method, step.path, w.Code)
		}
	}

	// Deleted → 404
	w = doJSON(r, http.MethodGet, "/api/v1/conversations/"+conv.ID, "u1", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("deleted conversation should 404, got %d", w.Code)
	}
}

func TestRegisterRoutes_ConversationQuota(t *testing.T) {
	r, db := newTestRouter(t, testConfig())
	seedUser(t, db, "u1", domain.TierBasic)

	for i := 0; i < 10; i++ {
		if w := doJSON(r, http.MethodPost, "/api/v1/conversations", "u1", nil); w.Code != http.StatusCreated {
			t.Fatalf("create #%d = %d", i+1, w.Code)
		}
	}
	w := doJSON(r, http.MethodPost, "/api/v1/conversations", "u1", nil)
	if w.Code != http.StatusForbidden || !strings.Contains(w.Body.String(), "conversation_limit") {
		t.Fatalf("11th conversation should hit the BASIC ceiling: %d %s", w.Code, w.Body.String())
	}
}

func TestRegisterRoutes_ChatValidation(t *testing.T) {
	r, db := newTestRouter(t, testConfig())
	seedUser(t, db, "u1", domain.TierBasic)

	w := doJSON(r, http.MethodPost, "/api/v1/chat", "u1", map[string]string{"message": "   "})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("blank message should 400, got %d", w.Code)
	}

	w = doJSON(r, http.MethodPost, "/api/v1/chat", "u1", map[string]string{
		"message":         "hola",
		"conversation_id": uuid.NewString(),
	})
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown conversation should 404, got %d: %s", w.Code, w.Body.String())
	}
}

func TestRegisterRoutes_ProfileRoundTrip(t *testing.T) {
	r, db := newTestRouter(t, testConfig())
	seedUser(t, db, "u1", domain.TierPremium)

	// Untouched profile reads as empty, not 404.
	w := doJSON(r, http.MethodGet, "/api/v1/profile", "u1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("profile get = %d", w.Code)
	}

	w = doJSON(r, http.MethodPut, "/api/v1/profile", "u1", map[string]any{
		"age":           28,
		"weight_kg":     75.5,
		"fitness_goals": []string{"hipertrofia"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("profile update = %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(r, http.MethodGet, "/api/v1/profile", "u1", nil)
	var p domain.FitnessProfile
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode profile: %v", err)
	}
	if p.Age == nil || *p.Age != 28 || p.FitnessGoals != "hipertrofia" {
		t.Fatalf("profile did not round-trip: %+v", p)
	}

	// Out-of-range value → 400 invalid_profile
	w = doJSON(r, http.MethodPut, "/api/v1/profile", "u1", map[string]any{"age": 5})
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "invalid_profile") {
		t.Fatalf("age 5 should be rejected: %d %s", w.Code, w.Body.String())
	}
}

func TestRegisterRoutes_SearchQuotaHeaders(t *testing.T) {
	cfg := testConfig()
	cfg.Limits.SearchPerHour = 1
	r, db := newTestRouter(t, cfg)
	seedUser(t, db, "u1", domain.TierBasic)

	// No vendor keys configured: the chain ends in the no-network Google
	// link builder, so the endpoint works offline.
	w := doJSON(r, http.MethodPost, "/api/v1/search", "u1", map[string]string{"query": "creatina", "category": "products"})
	if w.Code != http.StatusOK {
		t.Fatalf("search = %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "google.com") {
		t.Fatalf("expected google fallback result: %s", w.Body.String())
	}

	// Second search in the same hour exhausts the ceiling of 1.
	w = doJSON(r, http.MethodPost, "/api/v1/search", "u1", map[string]string{"query": "creatina"})
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	for _, h := range []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"} {
		if w.Header().Get(h) == "" {
			t.Fatalf("429 must carry %s", h)
		}
	}
	if got := w.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Fatalf("remaining should be 0, got %q", got)
	}
}

func TestRegisterRoutes_RecommendationsUnavailableInDemoMode(t *testing.T) {
	r, db := newTestRouter(t, testConfig())
	seedUser(t, db, "u1", domain.TierBasic)

	// No OPENAI_API_KEY → JSON-mode completion cannot run.
	w := doJSON(r, http.MethodPost, "/api/v1/recommendations", "u1", map[string]any{"message": "algo para energía"})
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 in demo mode, got %d: %s", w.Code, w.Body.String())
	}

	// History still works (empty).
	w = doJSON(r, http.MethodGet, "/api/v1/recommendations/history", "u1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("history = %d", w.Code)
	}
}

func TestRegisterRoutes_EdgeRateLimiter(t *testing.T) {
	cfg := testConfig()
	cfg.RateRPS = 1
	cfg.RateBurst = 1
	r, _ := newTestRouter(t, cfg)

	if w := doJSON(r, http.MethodGet, "/health", "", nil); w.Code != http.StatusOK {
		t.Fatalf("first request = %d", w.Code)
	}
	if w := doJSON(r, http.MethodGet, "/health", "", nil); w.Code != http.StatusTooManyRequests {
		t.Fatalf("second burst request should 429, got %d", w.Code)
	}
}
