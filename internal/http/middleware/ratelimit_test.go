package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func limitedRouter(rps float64, burst int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	rl := NewRateLimiter(rps, burst, KeyByCustomerOrIP())
	r.Use(rl.Handler())
	r.GET("/:customer_code/list", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/upload/", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestRateLimiter_AllowsWithinBurst(t *testing.T) {
	r := limitedRouter(0, 3) // zero refill; only the burst is usable

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/C-1/list", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, w.Code)
		}
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/C-1/list", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("over-burst status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
	var resp struct {
		ErrorCode string `json:"error_code"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp.ErrorCode != "TOO_MANY_REQUESTS" {
		t.Fatalf("unexpected envelope: %s (err=%v)", w.Body.String(), err)
	}
}

func TestRateLimiter_KeysAreIndependent(t *testing.T) {
	r := limitedRouter(0, 1)

	// Exhaust customer C-1.
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/C-1/list", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("first C-1: %d", w.Code)
	}
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/C-1/list", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second C-1: %d, want 429", w.Code)
	}

	// Another customer has its own bucket.
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/C-2/list", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("C-2 should be unaffected: %d", w.Code)
	}
}

func TestRateLimiter_RefillsOverTime(t *testing.T) {
	r := limitedRouter(50, 1) // 50 tokens/s → ~20ms per token

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/C-1/list", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("first: %d", w.Code)
	}
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/C-1/list", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second: %d, want 429", w.Code)
	}

	time.Sleep(50 * time.Millisecond)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/C-1/list", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("after refill: %d, want 200", w.Code)
	}
}

func TestKeyByCustomerOrIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	keyFn := KeyByCustomerOrIP()

	// Route with a customer code parameter.
	r := gin.New()
	var got string
	r.GET("/:customer_code/list", func(c *gin.Context) {
		got = keyFn(c)
		c.Status(http.StatusOK)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/C-42/list", nil))
	if got != "customer:C-42" {
		t.Fatalf("key = %q, want customer:C-42", got)
	}

	// Route without one falls back to the client IP.
	r2 := gin.New()
	r2.POST("/upload/", func(c *gin.Context) {
		got = keyFn(c)
		c.Status(http.StatusOK)
	})
	req := httptest.NewRequest(http.MethodPost, "/upload/", nil)
	req.RemoteAddr = "192.0.2.7:1234"
	r2.ServeHTTP(httptest.NewRecorder(), req)
	if got != "ip:192.0.2.7" {
		t.Fatalf("key = %q, want ip:192.0.2.7", got)
	}
}

func TestNewRateLimiter_CoercesBurst(t *testing.T) {
	rl := NewRateLimiter(1, 0, KeyByCustomerOrIP())
	if rl.burst != 1 {
		t.Fatalf("burst = %d, want 1", rl.burst)
	}
}

func TestRateLimiter_EvictsIdleVisitors(t *testing.T) {
	rl := NewRateLimiter(1, 1, KeyByCustomerOrIP())
	rl.ttl = time.Millisecond

	rl.getVisitor("a")
	time.Sleep(5 * time.Millisecond)

	// Force the cleanup pass on the next lookup.
	rl.cleanupN = 4999
	rl.getVisitor("b")

	rl.mu.Lock()
	_, stillThere := rl.visitors["a"]
	rl.mu.Unlock()
	if stillThere {
		t.Fatalf("idle visitor not evicted")
	}
}
