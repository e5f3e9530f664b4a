package memory

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	contractx "github.com/jirayu-k/wayfinder/agent/contract"
)

// fakeUpstash emulates the Upstash REST single-command endpoint: a POSTed
// JSON array like ["SET", key, value, "EX", "3600"] or ["GET", key].
type fakeUpstash struct {
	mu      sync.Mutex
	data    map[string]string
	lastTTL string
	failMsg string
}

func newFakeUpstash() *fakeUpstash {
	return &fakeUpstash{data: make(map[string]string)}
}

func (f *fakeUpstash) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q", got)
		}

		var cmd []json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil || len(cmd) < 2 {
			http.Error(w, "bad command", http.StatusBadRequest)
			return
		}
		var op, key string
		_ = json.Unmarshal(cmd[0], &op)
		_ = json.Unmarshal(cmd[1], &key)

		f.mu.Lock()
		defer f.mu.Unlock()

		if f.failMsg != "" {
			_ = json.NewEncoder(w).Encode(map[string]string{"error": f.failMsg})
			return
		}

		switch op {
		case "SET":
			var value string
			_ = json.Unmarshal(cmd[2], &value)
			f.data[key] = value
			f.lastTTL = ""
			if len(cmd) >= 5 {
				var ex string
				_ = json.Unmarshal(cmd[3], &ex)
				if ex == "EX" {
					f.lastTTL = strings.Trim(string(cmd[4]), `"`)
				}
			}
			_ = json.NewEncoder(w).Encode(map[string]string{"result": "OK"})
		case "GET":
			value, ok := f.data[key]
			if !ok {
				_, _ = w.Write([]byte(`{"result":null}`))
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]string{"result": value})
		default:
			t.Errorf("unexpected command %q", op)
		}
	}
}

func newTestCache(t *testing.T, f *fakeUpstash, opts ...CacheOption) *RedisCache {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)

	cache, err := NewRedisCache(CacheConfig{URL: srv.URL, Token: "test-token"}, opts...)
	if err != nil {
		t.Fatalf("NewRedisCache: %v", err)
	}
	return cache
}

func TestCachePutAndEntriesRoundTrip(t *testing.T) {
	t.Parallel()

	fake := newFakeUpstash()
	cache := newTestCache(t, fake)

	ex := contractx.Exchange{
		RequesterID: "req-1",
		Responder:   contractx.LabelWeather,
		Text:        "Q: rain?\nA: yes",
		At:          time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := cache.Put(context.Background(), ex, time.Hour); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if fake.lastTTL != "3600" {
		t.Fatalf("TTL sent = %q, want 3600", fake.lastTTL)
	}

	got, err := cache.Entries(context.Background(), "req-1")
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Entries = %d, want 1", len(got))
	}
	if got[0].Responder != contractx.LabelWeather || got[0].Text != ex.Text {
		t.Fatalf("entry = %+v", got[0])
	}
}

func TestCacheEntriesSkipsMissingAndMalformed(t *testing.T) {
	t.Parallel()

	fake := newFakeUpstash()
	cache := newTestCache(t, fake)

	fake.mu.Lock()
	fake.data["wayfinder:stm:req-1:weather"] = `{"requester_id":"req-1","responder":"weather","text":"ok"}`
	fake.data["wayfinder:stm:req-1:dining"] = `not json at all`
	fake.mu.Unlock()

	got, err := cache.Entries(context.Background(), "req-1")
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(got) != 1 || got[0].Responder != contractx.LabelWeather {
		t.Fatalf("entries = %+v", got)
	}
}

func TestCacheSurfacesRESTError(t *testing.T) {
	t.Parallel()

	fake := newFakeUpstash()
	fake.failMsg = "WRONGPASS invalid token"
	cache := newTestCache(t, fake)

	err := cache.Put(context.Background(), contractx.Exchange{
		RequesterID: "req-1",
		Responder:   contractx.LabelWeather,
		Text:        "x",
	}, time.Minute)
	if err == nil || !strings.Contains(err.Error(), "WRONGPASS") {
		t.Fatalf("err = %v, want WRONGPASS", err)
	}
}

func TestCacheRejectsEmptyRequester(t *testing.T) {
	t.Parallel()

	cache := newTestCache(t, newFakeUpstash())

	err := cache.Put(context.Background(), contractx.Exchange{Responder: contractx.LabelWeather, Text: "x"}, time.Minute)
	if !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("Put err = %v, want ErrValidation", err)
	}
	if _, err := cache.Entries(context.Background(), "  "); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("Entries err = %v, want ErrValidation", err)
	}
}

func TestCacheKeyPrefixOption(t *testing.T) {
	t.Parallel()

	fake := newFakeUpstash()
	cache := newTestCache(t, fake, WithKeyPrefix("custom:"))

	if err := cache.Put(context.Background(), contractx.Exchange{
		RequesterID: "req-1",
		Responder:   contractx.LabelDining,
		Text:        "x",
	}, time.Minute); err != nil {
		t.Fatalf("Put: %v", err)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if _, ok := fake.data["custom:req-1:dining"]; !ok {
		t.Fatalf("key prefix not applied: %v", fake.data)
	}
}

func TestNewRedisCacheValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewRedisCache(CacheConfig{URL: "", Token: "t"}); err == nil {
		t.Fatal("empty url accepted")
	}
	if _, err := NewRedisCache(CacheConfig{URL: "http://localhost", Token: " "}); err == nil {
		t.Fatal("empty token accepted")
	}
	if _, err := NewRedisCache(CacheConfig{URL: "://bad", Token: "t"}); err == nil {
		t.Fatal("invalid url accepted")
	}
}

func TestTTLSeconds(t *testing.T) {
	t.Parallel()

	cases := []struct {
		ttl  time.Duration
		want int64
	}{
		{time.Hour, 3600},
		{time.Second, 1},
		{1500 * time.Millisecond, 2},
		{10 * time.Millisecond, 1},
	}
	for _, tc := range cases {
		if got := ttlSeconds(tc.ttl); got != tc.want {
			t.Fatalf("ttlSeconds(%v) = %d, want %d", tc.ttl, got, tc.want)
		}
	}
}
