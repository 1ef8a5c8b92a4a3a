package amee

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestInMemoryCacheSetGet(t *testing.T) {
	cache := NewInMemoryCache()

	entry := &CacheEntry{StatusCode: 200, Body: []byte(`{"ok":true}`)}
	cache.Set("key", entry, time.Minute)

	got, found := cache.Get("key")
	if !found {
		t.Fatal("expected cache hit")
	}
	if got.StatusCode != 200 || string(got.Body) != `{"ok":true}` {
		t.Errorf("unexpected entry: %+v", got)
	}
}

func TestInMemoryCacheExpiry(t *testing.T) {
	cache := NewInMemoryCache()

	cache.Set("key", &CacheEntry{StatusCode: 200}, time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	if _, found := cache.Get("key"); found {
		t.Error("expected expired entry to miss")
	}
	if got := cache.Len(); got != 0 {
		t.Errorf("expected lazy expiry to remove entry, Len()=%d", got)
	}
}

func TestInMemoryCacheDeleteAndClear(t *testing.T) {
	cache := NewInMemoryCache()

	cache.Set("a", &CacheEntry{StatusCode: 200}, time.Minute)
	cache.Set("b", &CacheEntry{StatusCode: 200}, time.Minute)

	cache.Delete("a")
	if _, found := cache.Get("a"); found {
		t.Error("expected deleted entry to miss")
	}

	cache.Clear()
	if _, found := cache.Get("b"); found {
		t.Error("expected cleared cache to miss")
	}
	if got := cache.Len(); got != 0 {
		t.Errorf("expected empty cache, Len()=%d", got)
	}
}

func TestInMemoryCacheConcurrentAccess(t *testing.T) {
	cache := NewInMemoryCache()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := string(rune('a' + i))
				cache.Set(key, &CacheEntry{StatusCode: 200}, time.Minute)
				cache.Get(key)
				cache.Delete(key)
			}
		}(i)
	}
	wg.Wait()
}

func TestDefaultCacheKeyFuncIsStable(t *testing.T) {
	a := &Request{
		Method: http.MethodGet,
		Path:   "/data/business/energy/electricity/drill",
		Query:  url.Values{"country": {"United Kingdom"}, "fuel": {"grid"}},
	}
	b := &Request{
		Method: http.MethodGet,
		Path:   "/data/business/energy/electricity/drill",
		Query:  url.Values{"fuel": {"grid"}, "country": {"United Kingdom"}},
	}

	if DefaultCacheKeyFunc(a) != DefaultCacheKeyFunc(b) {
		t.Error("expected identical descriptors to map to the same key regardless of parameter order")
	}

	want := "GET:/data/business/energy/electricity/drill?country=United+Kingdom&fuel=grid"
	if got := DefaultCacheKeyFunc(a); got != want {
		t.Errorf("DefaultCacheKeyFunc = %q, want %q", got, want)
	}
}

func TestDefaultCacheKeyFuncDistinguishesRequests(t *testing.T) {
	base := &Request{Method: http.MethodGet, Path: "/profiles"}
	otherPath := &Request{Method: http.MethodGet, Path: "/data"}
	otherMethod := &Request{Method: http.MethodDelete, Path: "/profiles"}
	withQuery := &Request{Method: http.MethodGet, Path: "/profiles", Query: url.Values{"page": {"2"}}}

	keys := map[string]bool{}
	for _, req := range []*Request{base, otherPath, otherMethod, withQuery} {
		keys[DefaultCacheKeyFunc(req)] = true
	}
	if len(keys) != 4 {
		t.Errorf("expected 4 distinct keys, got %d", len(keys))
	}
}

func TestDefaultCacheConditionMethods(t *testing.T) {
	if !DefaultCacheCondition(&Request{Method: http.MethodGet}) {
		t.Error("expected GET to be cacheable")
	}
	if !DefaultCacheCondition(&Request{}) {
		t.Error("expected empty method (GET) to be cacheable")
	}
	for _, method := range []string{http.MethodPost, http.MethodDelete, http.MethodPut} {
		if DefaultCacheCondition(&Request{Method: method}) {
			t.Errorf("expected %s to bypass the cache", method)
		}
	}
}

// recordingCache counts backend operations for bypass assertions.
type recordingCache struct {
	inner Cache
	gets  int32
	sets  int32
}

func (r *recordingCache) Get(key string) (*CacheEntry, bool) {
	atomic.AddInt32(&r.gets, 1)
	return r.inner.Get(key)
}

func (r *recordingCache) Set(key string, entry *CacheEntry, ttl time.Duration) {
	atomic.AddInt32(&r.sets, 1)
	r.inner.Set(key, entry, ttl)
}

func (r *recordingCache) Delete(key string) { r.inner.Delete(key) }
func (r *recordingCache) Clear()            { r.inner.Clear() }

func TestPipelineServesSecondReadFromCache(t *testing.T) {
	f := newFakeAMEE(t)
	f.handleJSON("/data/thing", http.StatusOK, map[string]interface{}{"amount": 450.2})

	client := f.client(WithCache(time.Minute))

	first, err := client.Get(context.Background(), "/data/thing", nil)
	if err != nil {
		t.Fatalf("first Get() returned error: %v", err)
	}
	second, err := client.Get(context.Background(), "/data/thing", nil)
	if err != nil {
		t.Fatalf("second Get() returned error: %v", err)
	}

	if got := atomic.LoadInt32(&f.dataCalls); got != 1 {
		t.Errorf("expected exactly 1 network call, got %d", got)
	}

	a, _ := first.Document.Float("amount")
	b, _ := second.Document.Float("amount")
	if a != b || a != 450.2 {
		t.Errorf("expected identical decoded values 450.2, got %v and %v", a, b)
	}
}

func TestPipelineMutatingRequestsBypassCache(t *testing.T) {
	f := newFakeAMEE(t)
	f.handleJSON("/profiles", http.StatusOK, map[string]interface{}{"profile": map[string]interface{}{"uid": "ABC123"}})
	f.handle("/profiles/ABC123", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rec := &recordingCache{inner: NewInMemoryCache()}
	client := f.client(WithCustomCache(rec, time.Minute))

	if _, err := client.Post(context.Background(), "/profiles", url.Values{"profile": {"true"}}); err != nil {
		t.Fatalf("Post() returned error: %v", err)
	}
	if _, err := client.Delete(context.Background(), "/profiles/ABC123"); err != nil {
		t.Fatalf("Delete() returned error: %v", err)
	}

	if got := atomic.LoadInt32(&rec.gets); got != 0 {
		t.Errorf("expected mutating requests to never consult the cache, got %d gets", got)
	}
	if got := atomic.LoadInt32(&rec.sets); got != 0 {
		t.Errorf("expected mutating requests to never populate the cache, got %d sets", got)
	}
}

func TestPipelineDoesNotCacheDecodeFailures(t *testing.T) {
	f := newFakeAMEE(t)
	f.handle("/garbage", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	})

	rec := &recordingCache{inner: NewInMemoryCache()}
	client := f.client(WithCustomCache(rec, time.Minute))

	_, err := client.Get(context.Background(), "/garbage", nil)
	if !IsDecodeError(err) {
		t.Fatalf("expected decode error, got %v", err)
	}
	if got := atomic.LoadInt32(&rec.sets); got != 0 {
		t.Errorf("expected no cache population after decode failure, got %d sets", got)
	}
}

func TestPipelineDoesNotCacheAPIErrors(t *testing.T) {
	f := newFakeAMEE(t)
	f.handle("/missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	rec := &recordingCache{inner: NewInMemoryCache()}
	client := f.client(WithCustomCache(rec, time.Minute))

	_, err := client.Get(context.Background(), "/missing", nil)
	if !IsAPIError(err) {
		t.Fatalf("expected API error, got %v", err)
	}
	if got := atomic.LoadInt32(&rec.sets); got != 0 {
		t.Errorf("expected no cache population after API error, got %d sets", got)
	}
}

// unavailableCache simulates a backend that is down: every lookup misses and
// writes are dropped, which is exactly how the external backends degrade.
type unavailableCache struct{}

func (unavailableCache) Get(string) (*CacheEntry, bool)         { return nil, false }
func (unavailableCache) Set(string, *CacheEntry, time.Duration) {}
func (unavailableCache) Delete(string)                          {}
func (unavailableCache) Clear()                                 {}

func TestPipelineDegradesToNetworkWhenCacheUnavailable(t *testing.T) {
	f := newFakeAMEE(t)
	f.handleJSON("/data/thing", http.StatusOK, map[string]interface{}{"ok": true})

	client := f.client(WithCustomCache(unavailableCache{}, time.Minute))

	for i := 0; i < 2; i++ {
		if _, err := client.Get(context.Background(), "/data/thing", nil); err != nil {
			t.Fatalf("Get() returned error with unavailable cache: %v", err)
		}
	}
	if got := atomic.LoadInt32(&f.dataCalls); got != 2 {
		t.Errorf("expected every call to reach the network, got %d", got)
	}
}
