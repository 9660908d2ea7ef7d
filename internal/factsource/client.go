package factsource

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/ashvattha/ashvattha/internal/model"
)

// Client is the shared HTTP plumbing for all network-backed sources:
// identity header, timeout, body cap, per-host rate limiting, robots.txt
// compliance, and a TTL response cache so re-research of the same person
// does not hammer the upstream APIs.
type Client struct {
	httpClient *http.Client
	userAgent  string
	maxBytes   int64
	limiter    *Limiter
	robots     *RobotsChecker
	cache      *gocache.Cache

	mu      sync.Mutex
	crawled map[string]bool // hosts whose robots crawl-delay was applied
}

// NewClient builds a client from the source configuration
func NewClient(cfg model.SourceConfig) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = http.ProxyFromEnvironment
	if cfg.InsecureTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	var robots *RobotsChecker
	if cfg.RespectRobots {
		robots = NewRobotsChecker(cfg.UserAgent, cfg.Timeout)
	}

	var cache *gocache.Cache
	if cfg.CacheTTL > 0 {
		cache = gocache.New(cfg.CacheTTL, 10*time.Minute)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("stopped after 3 redirects")
				}
				return nil
			},
		},
		userAgent: cfg.UserAgent,
		maxBytes:  cfg.MaxBytes,
		limiter:   NewLimiter(cfg.RequestsPerSecond, cfg.Burst, cfg.PoliteDelay),
		robots:    robots,
		cache:     cache,
		crawled:   make(map[string]bool),
	}
}

// Get fetches rawURL, honoring cache, rate limit and robots.txt.
// Network errors, timeouts, 429 and 5xx all wrap ErrTransient.
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, error) {
	key := cacheKey(rawURL)
	if c.cache != nil {
		if cached, ok := c.cache.Get(key); ok {
			return cached.([]byte), nil
		}
	}

	if c.robots != nil {
		if !c.robots.Allowed(ctx, rawURL) {
			return nil, fmt.Errorf("robots.txt disallows %s", rawURL)
		}
		c.applyCrawlDelay(ctx, rawURL)
	}

	if err := c.limiter.Wait(ctx, rawURL); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %v: %w", rawURL, err, ErrTransient)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, fmt.Errorf("fetch %s: status %d: %w", rawURL, resp.StatusCode, ErrTransient)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %v: %w", err, ErrTransient)
	}

	if c.cache != nil {
		c.cache.Set(key, body, gocache.DefaultExpiration)
	}
	return body, nil
}

// applyCrawlDelay slows the host's limiter to the rate its robots.txt
// requests, once per host. A crawl delay of 2s becomes 0.5 req/s.
func (c *Client) applyCrawlDelay(ctx context.Context, rawURL string) {
	host, err := hostOf(rawURL)
	if err != nil {
		return
	}
	c.mu.Lock()
	seen := c.crawled[host]
	c.crawled[host] = true
	c.mu.Unlock()
	if seen {
		return
	}
	if delay := c.robots.CrawlDelay(ctx, rawURL); delay > 0 {
		c.limiter.SetHostRate(host, 1/delay.Seconds(), 1)
	}
}

// GetJSON fetches rawURL and decodes the response into v
func (c *Client) GetJSON(ctx context.Context, rawURL string, v any) error {
	body, err := c.Get(ctx, rawURL)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode %s: %w", rawURL, err)
	}
	return nil
}

func cacheKey(url string) string {
	hash := sha256.Sum256([]byte(url))
	return "ashvattha:v1:" + hex.EncodeToString(hash[:])
}
