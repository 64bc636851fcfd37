// Package orders implements the ownership oracle against the orders module's
// internal HTTP API.
package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Strob0t/Fanout/internal/port/cache"
	"github.com/Strob0t/Fanout/internal/resilience"
)

const maxBodyBytes = 64 << 10

// Client answers order ownership questions. Answers are cached for the
// configured TTL; concurrent lookups of the same order share one request.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *resilience.Breaker
	cache      cache.Cache
	ttl        time.Duration
	group      singleflight.Group
}

// NewClient creates an ownership client. cache and breaker may be nil.
func NewClient(baseURL string, httpClient *http.Client, c cache.Cache, ttl time.Duration) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 3 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		cache:      c,
		ttl:        ttl,
	}
}

// SetBreaker attaches a circuit breaker to all outgoing calls.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

// OwnsOrder reports whether identityID owns orderID. An unknown order is not
// owned by anyone.
func (c *Client) OwnsOrder(ctx context.Context, identityID, orderID string) (bool, error) {
	owner, err := c.owner(ctx, orderID)
	if err != nil {
		return false, err
	}
	return owner != "" && owner == identityID, nil
}

// owner returns the owning user of orderID, or "" for an unknown order.
func (c *Client) owner(ctx context.Context, orderID string) (string, error) {
	key := "order-owner:" + orderID
	if c.cache != nil {
		if v, ok, err := c.cache.Get(ctx, key); err == nil && ok {
			return string(v), nil
		}
	}

	v, err, _ := c.group.Do(orderID, func() (any, error) {
		owner, err := c.fetchOwner(ctx, orderID)
		if err != nil {
			return "", err
		}
		if c.cache != nil {
			_ = c.cache.Set(ctx, key, []byte(owner), c.ttl)
		}
		return owner, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Client) fetchOwner(ctx context.Context, orderID string) (string, error) {
	var owner string
	call := func(ctx context.Context) error {
		u := c.baseURL + "/internal/orders/" + url.PathEscape(orderID) + "/owner"
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("orders request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		switch {
		case resp.StatusCode == http.StatusNotFound:
			owner = ""
			return nil
		case resp.StatusCode >= 300:
			return fmt.Errorf("orders returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}

		var out struct {
			UserID string `json:"user_id"`
		}
		if err := json.Unmarshal(body, &out); err != nil {
			return fmt.Errorf("decode owner: %w", err)
		}
		owner = out.UserID
		return nil
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.Execute(ctx, call)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return "", fmt.Errorf("order %s owner: %w", orderID, err)
	}
	return owner, nil
}
