package translator

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdf-translator/internal/cache"
)

type fakeProvider struct {
	calls   int
	results []func() (string, error)
}

func (f *fakeProvider) Translate(_ context.Context, text string) (string, error) {
	i := f.calls
	f.calls++
	if i < len(f.results) {
		return f.results[i]()
	}
	return strings.ToUpper(text), nil
}

func testCache(t *testing.T) *cache.Cache {
	t.Helper()
	db, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	c, err := cache.New(db, "test", nil)
	require.NoError(t, err)
	return c
}

func TestCachedTranslateMemoizes(t *testing.T) {
	p := &fakeProvider{}
	ct := NewCached(p, testCache(t), false)

	got, err := ct.Translate(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "HELLO", got)

	got, err = ct.Translate(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "HELLO", got)
	assert.Equal(t, 1, p.calls, "second call must be served from cache")
}

func TestCachedTranslateIgnoreCache(t *testing.T) {
	p := &fakeProvider{}
	ct := NewCached(p, testCache(t), true)

	_, err := ct.Translate(context.Background(), "hello")
	require.NoError(t, err)
	_, err = ct.Translate(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, 2, p.calls)
}

func TestCachedTranslateRetriesRetryable(t *testing.T) {
	p := &fakeProvider{results: []func() (string, error){
		func() (string, error) { return "", NewRetryable("test", "flaky", nil) },
		func() (string, error) { return "ok", nil },
	}}
	ct := NewCached(p, nil, false)

	got, err := ct.Translate(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 2, p.calls)
}

func TestCachedTranslateStopsOnFatal(t *testing.T) {
	p := &fakeProvider{results: []func() (string, error){
		func() (string, error) { return "", NewFatal("test", "too long", nil) },
	}}
	ct := NewCached(p, nil, false)

	_, err := ct.Translate(context.Background(), "hello")
	require.Error(t, err)
	assert.Equal(t, 1, p.calls, "fatal errors must not be retried")
	assert.False(t, IsRetryable(err))
}

func TestCachedTranslateDoesNotCacheFailures(t *testing.T) {
	c := testCache(t)
	p := &fakeProvider{results: []func() (string, error){
		func() (string, error) { return "", NewFatal("test", "boom", nil) },
	}}
	ct := NewCached(p, c, false)

	_, err := ct.Translate(context.Background(), "hello")
	require.Error(t, err)
	_, ok := c.Get("hello")
	assert.False(t, ok)
}

func TestGoogleTranslate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "en", r.URL.Query().Get("sl"))
		assert.Equal(t, "zh-CN", r.URL.Query().Get("tl"))
		assert.Equal(t, "hello", r.URL.Query().Get("q"))
		w.Write([]byte(`<div class="result-container">&#20320;&#22909;<`))
	}))
	defer srv.Close()

	g := NewGoogle(map[string]any{"endpoint": srv.URL})
	got, err := g.Translate(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "你好", got)
}

func TestGoogleTranslateTooLong(t *testing.T) {
	g := NewGoogle(nil)
	_, err := g.Translate(context.Background(), strings.Repeat("a", googleMaxChars+1))
	require.Error(t, err)
	assert.False(t, IsRetryable(err), "oversized input is not retryable")
}

func TestGoogleTranslateServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	g := NewGoogle(map[string]any{"endpoint": srv.URL})
	_, err := g.Translate(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
}

func TestGoogleTranslateMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("<html>nothing useful</html>"))
	}))
	defer srv.Close()

	g := NewGoogle(map[string]any{"endpoint": srv.URL})
	_, err := g.Translate(context.Background(), "hello")
	require.Error(t, err)
	assert.False(t, IsRetryable(err))
}

func TestParseService(t *testing.T) {
	s, err := ParseService("google")
	require.NoError(t, err)
	assert.Equal(t, ServiceGoogle, s)

	_, err = ParseService("babelfish")
	assert.Error(t, err)
}

func TestRegistryBuildsProviders(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []Service{ServiceGoogle, ServiceOpenAI}, r.List())

	tr, err := r.New(ServiceGoogle, nil)
	require.NoError(t, err)
	assert.IsType(t, &Google{}, tr)

	_, err = r.New(ServiceOpenAI, nil)
	assert.Error(t, err, "openai without api_key must fail")

	tr, err = r.New(ServiceOpenAI, map[string]any{"api_key": "sk-test"})
	require.NoError(t, err)
	assert.IsType(t, &OpenAI{}, tr)
}

func TestIsRetryableOnWrappedError(t *testing.T) {
	err := NewRetryable("google", "rate limited", errors.New("429"))
	assert.True(t, IsRetryable(err))
	assert.True(t, IsRetryable(errors.Join(errors.New("outer"), err)))
	assert.False(t, IsRetryable(errors.New("plain")))
}
