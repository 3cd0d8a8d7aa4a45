package services

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/amirphl/specialist-referral/config"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/go-resty/resty/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// OrderLookupRecord is an order as seen by the secondary lookup service
type OrderLookupRecord struct {
	CustomerName  string    `json:"customer_name"`
	CustomerEmail string    `json:"customer_email"`
	CustomerPhone string    `json:"customer_phone"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

// OrderLookupService queries an external order index by name and/or email
type OrderLookupService interface {
	Lookup(ctx context.Context, name, email string) ([]OrderLookupRecord, error)
}

// NewOrderLookupService builds the configured provider, wrapped with the Redis
// cache when one is given. Returns nil for provider "none".
func NewOrderLookupService(cfg config.LookupConfig, rc *redis.Client, prefix string, logger *zap.Logger) (OrderLookupService, error) {
	var svc OrderLookupService
	switch cfg.Provider {
	case "", config.LookupProviderNone:
		return nil, nil
	case config.LookupProviderHTTP:
		svc = NewHTTPOrderLookupService(cfg)
	case config.LookupProviderElasticsearch:
		es, err := NewElasticsearchOrderLookupService(cfg)
		if err != nil {
			return nil, err
		}
		svc = es
	default:
		return nil, fmt.Errorf("unknown lookup provider %q", cfg.Provider)
	}

	if rc != nil && cfg.CacheTTL > 0 {
		svc = NewCachedOrderLookupService(svc, rc, prefix, cfg.CacheTTL, logger)
	}
	return svc, nil
}

// HTTPOrderLookupService calls a JSON lookup endpoint with a service key
type HTTPOrderLookupService struct {
	url    string
	client *resty.Client
}

type httpLookupRequest struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

func NewHTTPOrderLookupService(cfg config.LookupConfig) *HTTPOrderLookupService {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.ServiceKey != "" {
		client.SetAuthToken(cfg.ServiceKey).SetHeader("apikey", cfg.ServiceKey)
	}
	return &HTTPOrderLookupService{url: cfg.URL, client: client}
}

// Lookup accepts either a bare array or an object with an "orders" or "data" array
func (s *HTTPOrderLookupService) Lookup(ctx context.Context, name, email string) ([]OrderLookupRecord, error) {
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(httpLookupRequest{Name: name, Email: email}).
		Post(s.url)
	if err != nil {
		return nil, fmt.Errorf("order lookup request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("order lookup returned HTTP %d", resp.StatusCode())
	}
	return decodeLookupBody(resp.Body())
}

func decodeLookupBody(body []byte) ([]OrderLookupRecord, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, nil
	}

	var records []OrderLookupRecord
	if body[0] == '[' {
		if err := json.Unmarshal(body, &records); err != nil {
			return nil, fmt.Errorf("failed to decode order lookup response: %w", err)
		}
		return records, nil
	}

	var wrapped struct {
		Orders []OrderLookupRecord `json:"orders"`
		Data   []OrderLookupRecord `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to decode order lookup response: %w", err)
	}
	if len(wrapped.Orders) > 0 {
		return wrapped.Orders, nil
	}
	return wrapped.Data, nil
}

// ElasticsearchOrderLookupService searches an order index
type ElasticsearchOrderLookupService struct {
	client     *elasticsearch.Client
	index      string
	maxResults int
}

func NewElasticsearchOrderLookupService(cfg config.LookupConfig) (*ElasticsearchOrderLookupService, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.ElasticsearchURLs,
		Username:  cfg.ElasticsearchUser,
		Password:  cfg.ElasticsearchPass,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 10
	}
	return &ElasticsearchOrderLookupService{client: es, index: cfg.ElasticsearchIndex, maxResults: maxResults}, nil
}

func (s *ElasticsearchOrderLookupService) Lookup(ctx context.Context, name, email string) ([]OrderLookupRecord, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(buildLookupQuery(name, email, s.maxResults)); err != nil {
		return nil, fmt.Errorf("failed to encode query: %w", err)
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.index),
		s.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search orders: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("Elasticsearch error: %s", res.String())
	}

	var r struct {
		Hits struct {
			Hits []struct {
				Source OrderLookupRecord `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}

	records := make([]OrderLookupRecord, 0, len(r.Hits.Hits))
	for _, hit := range r.Hits.Hits {
		records = append(records, hit.Source)
	}
	return records, nil
}

// buildLookupQuery matches the email ignoring case when present, else the name as a phrase
func buildLookupQuery(name, email string, size int) map[string]any {
	var must map[string]any
	if email != "" {
		must = map[string]any{"term": map[string]any{"customer_email.keyword": map[string]any{
			"value":            strings.ToLower(email),
			"case_insensitive": true,
		}}}
	} else {
		must = map[string]any{"match_phrase": map[string]any{"customer_name": name}}
	}

	return map[string]any{
		"size": size,
		"query": map[string]any{
			"bool": map[string]any{
				"must":   []any{must},
				"filter": []any{map[string]any{"terms": map[string]any{"status": []string{"approved", "completed"}}}},
			},
		},
		"sort": []any{map[string]any{"created_at": map[string]any{"order": "desc"}}},
	}
}

// LookupCache is the part of the Redis client used for caching lookups
type LookupCache interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// CachedOrderLookupService keeps lookup answers in Redis for a short TTL.
// Cache failures are logged and bypassed.
type CachedOrderLookupService struct {
	inner  OrderLookupService
	cache  LookupCache
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedOrderLookupService(inner OrderLookupService, cache LookupCache, prefix string, ttl time.Duration, logger *zap.Logger) *CachedOrderLookupService {
	return &CachedOrderLookupService{inner: inner, cache: cache, prefix: prefix, ttl: ttl, logger: logger}
}

func (c *CachedOrderLookupService) Lookup(ctx context.Context, name, email string) ([]OrderLookupRecord, error) {
	key := c.key(name, email)

	if bs, err := c.cache.Get(ctx, key).Bytes(); err == nil {
		var records []OrderLookupRecord
		if err := json.Unmarshal(bs, &records); err == nil {
			return records, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn("Order lookup cache read failed", zap.String("key", key), zap.Error(err))
	}

	records, err := c.inner.Lookup(ctx, name, email)
	if err != nil {
		return nil, err
	}

	if bs, err := json.Marshal(records); err == nil {
		if err := c.cache.Set(ctx, key, bs, c.ttl).Err(); err != nil {
			c.logger.Warn("Order lookup cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return records, nil
}

func (c *CachedOrderLookupService) key(name, email string) string {
	sum := sha1.Sum([]byte(strings.ToLower(strings.TrimSpace(name)) + "|" + strings.ToLower(strings.TrimSpace(email))))
	return c.prefix + "lookup:" + hex.EncodeToString(sum[:])
}
