package factsource

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/ashvattha/ashvattha/internal/model"
)

func clientConfig(respectRobots bool) model.SourceConfig {
	return model.SourceConfig{
		UserAgent:         "Ashvattha/0.3 test",
		Timeout:           5 * time.Second,
		MaxBytes:          1 << 20,
		RequestsPerSecond: 100,
		Burst:             10,
		RespectRobots:     respectRobots,
		CacheTTL:          time.Minute,
	}
}

func TestClientGetCachesResponses(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write([]byte("payload"))
	}))
	defer srv.Close()

	c := NewClient(clientConfig(false))
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		body, err := c.Get(ctx, srv.URL+"/page")
		if err != nil {
			t.Fatalf("get %d: %v", i, err)
		}
		if string(body) != "payload" {
			t.Fatalf("body = %q", body)
		}
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Errorf("upstream hit %d times, want 1 (second served from cache)", n)
	}
}

func TestClientHonorsCrawlDelay(t *testing.T) {
	srv := robotsServer(t, "User-agent: *\nCrawl-delay: 2\n")

	c := NewClient(clientConfig(true))
	if _, err := c.Get(context.Background(), srv.URL+"/page"); err != nil {
		t.Fatalf("get: %v", err)
	}

	// The host limiter was slowed to 1/delay requests per second
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	host := c.limiter.hostLimiter(u.Host)
	if host.Limit() != rate.Limit(0.5) || host.Burst() != 1 {
		t.Errorf("host rate = %v/%d, want 0.5/1 from the 2s crawl delay", host.Limit(), host.Burst())
	}
}

func TestClientRobotsDisallowBlocksFetch(t *testing.T) {
	var pageHits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			_, _ = w.Write([]byte("User-agent: *\nDisallow: /private/\n"))
			return
		}
		atomic.AddInt32(&pageHits, 1)
		_, _ = w.Write([]byte("secret"))
	}))
	defer srv.Close()

	c := NewClient(clientConfig(true))
	if _, err := c.Get(context.Background(), srv.URL+"/private/page"); err == nil {
		t.Fatal("disallowed path fetched without error")
	}
	if n := atomic.LoadInt32(&pageHits); n != 0 {
		t.Errorf("disallowed page was fetched %d times", n)
	}
}

func TestClientTransientStatuses(t *testing.T) {
	status := int32(http.StatusServiceUnavailable)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(atomic.LoadInt32(&status)))
	}))
	defer srv.Close()

	cfg := clientConfig(false)
	cfg.CacheTTL = 0
	c := NewClient(cfg)
	ctx := context.Background()

	if _, err := c.Get(ctx, srv.URL+"/x"); !IsTransient(err) {
		t.Errorf("503 err = %v, want transient", err)
	}
	atomic.StoreInt32(&status, http.StatusTooManyRequests)
	if _, err := c.Get(ctx, srv.URL+"/y"); !IsTransient(err) {
		t.Errorf("429 err = %v, want transient", err)
	}
	atomic.StoreInt32(&status, http.StatusForbidden)
	if _, err := c.Get(ctx, srv.URL+"/z"); err == nil || IsTransient(err) {
		t.Errorf("403 err = %v, want permanent failure", err)
	}
}
