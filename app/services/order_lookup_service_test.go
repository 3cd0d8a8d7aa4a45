package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/amirphl/specialist-referral/config"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHTTPOrderLookupService(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"bare array", `[{"customer_phone":"05321112233","status":"approved"}]`, 1},
		{"orders wrapper", `{"orders":[{"customer_phone":"1","status":"completed"},{"customer_phone":"2","status":"pending"}]}`, 2},
		{"data wrapper", `{"data":[{"customer_phone":"1","status":"completed"}]}`, 1},
		{"empty", ``, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "Bearer lookup-key", r.Header.Get("Authorization"))
				var req httpLookupRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, "Ayşe Yılmaz", req.Name)
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			svc := NewHTTPOrderLookupService(config.LookupConfig{URL: srv.URL, ServiceKey: "lookup-key"})
			records, err := svc.Lookup(context.Background(), "Ayşe Yılmaz", "")
			require.NoError(t, err)
			assert.Len(t, records, tt.want)
		})
	}

	t.Run("http error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		svc := NewHTTPOrderLookupService(config.LookupConfig{URL: srv.URL})
		_, err := svc.Lookup(context.Background(), "x", "")
		assert.Error(t, err)
	})
}

func TestElasticsearchOrderLookupService(t *testing.T) {
	var query map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &query)
		assert.Contains(t, r.URL.Path, "/orders/_search")
		_, _ = w.Write([]byte(`{"hits":{"hits":[{"_source":{"customer_email":"ayse@example.com","customer_phone":"05321112233","status":"approved","created_at":"2025-03-01T10:00:00Z"}}]}}`))
	}))
	defer srv.Close()

	svc, err := NewElasticsearchOrderLookupService(config.LookupConfig{
		ElasticsearchURLs:  []string{srv.URL},
		ElasticsearchIndex: "orders",
	})
	require.NoError(t, err)

	records, err := svc.Lookup(context.Background(), "Ayşe Yılmaz", "Ayse@Example.com")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "05321112233", records[0].CustomerPhone)
	assert.Equal(t, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), records[0].CreatedAt)

	must := query["query"].(map[string]any)["bool"].(map[string]any)["must"].([]any)
	term := must[0].(map[string]any)["term"].(map[string]any)
	email := term["customer_email.keyword"].(map[string]any)
	assert.Equal(t, "ayse@example.com", email["value"])
	assert.Equal(t, true, email["case_insensitive"])
}

func TestBuildLookupQuery_NameOnly(t *testing.T) {
	q := buildLookupQuery("Ayşe Yılmaz", "", 5)
	assert.Equal(t, 5, q["size"])
	must := q["query"].(map[string]any)["bool"].(map[string]any)["must"].([]any)
	assert.Contains(t, must[0].(map[string]any), "match_phrase")
}

type fakeLookupCache struct {
	data   map[string][]byte
	getErr error
}

func (f *fakeLookupCache) Get(ctx context.Context, key string) *redis.StringCmd {
	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(string(v), nil)
}

func (f *fakeLookupCache) Set(ctx context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	f.data[key] = value.([]byte)
	return redis.NewStatusResult("OK", nil)
}

type countingLookup struct {
	calls   int
	records []OrderLookupRecord
	err     error
}

func (c *countingLookup) Lookup(context.Context, string, string) ([]OrderLookupRecord, error) {
	c.calls++
	return c.records, c.err
}

func TestCachedOrderLookupService(t *testing.T) {
	inner := &countingLookup{records: []OrderLookupRecord{{CustomerPhone: "05321112233", Status: "approved"}}}
	cache := &fakeLookupCache{data: map[string][]byte{}}
	svc := NewCachedOrderLookupService(inner, cache, "referral:", time.Minute, zap.NewNop())

	first, err := svc.Lookup(context.Background(), " Ayşe ", "")
	require.NoError(t, err)
	second, err := svc.Lookup(context.Background(), "ayşe", "")
	require.NoError(t, err)

	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, first, second)

	t.Run("cache errors fall through to the service", func(t *testing.T) {
		broken := &fakeLookupCache{data: map[string][]byte{}, getErr: errors.New("connection reset")}
		svc := NewCachedOrderLookupService(inner, broken, "referral:", time.Minute, zap.NewNop())
		records, err := svc.Lookup(context.Background(), "x", "")
		require.NoError(t, err)
		assert.Len(t, records, 1)
	})

	t.Run("inner errors are not cached", func(t *testing.T) {
		failing := &countingLookup{err: errors.New("timeout")}
		svc := NewCachedOrderLookupService(failing, &fakeLookupCache{data: map[string][]byte{}}, "referral:", time.Minute, zap.NewNop())
		_, err := svc.Lookup(context.Background(), "x", "")
		assert.Error(t, err)
		_, _ = svc.Lookup(context.Background(), "x", "")
		assert.Equal(t, 2, failing.calls)
	})
}
