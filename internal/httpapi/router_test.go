package httpapi

import (
	"context"
	"crypto/ed25519"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/cachegate/cachegate/internal/fetch"
	"github.com/cachegate/cachegate/internal/metrics"
	"github.com/cachegate/cachegate/internal/objcache"
	"github.com/cachegate/cachegate/internal/presign"
	"github.com/cachegate/cachegate/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubStore struct {
	bytes       []byte
	contentType string
	err         error
}

func (s *stubStore) Get(ctx context.Context, path string) (store.Object, error) {
	if s.err != nil {
		return store.Object{}, s.err
	}
	return store.Object{Bytes: s.bytes, ContentType: s.contentType}, nil
}
func (s *stubStore) Head(ctx context.Context, path string) (store.Meta, error) {
	return store.Meta{Size: int64(len(s.bytes)), ContentType: s.contentType}, nil
}
func (s *stubStore) Put(ctx context.Context, path string, body []byte, contentType string) error {
	return nil
}

type stubRegistry struct {
	s *stubStore
}

func (r *stubRegistry) Lookup(bucketID string) (store.Store, error) {
	if bucketID != "media-s3" {
		return nil, store.ErrUnknownBucket
	}
	return r.s, nil
}

func newTestServer(t *testing.T) (*Server, ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	s := &stubStore{bytes: []byte("hello world"), contentType: "text/plain"}
	reg := &stubRegistry{s: s}

	cache := objcache.New(1<<20, time.Minute)
	f := fetch.New(cache, reg, metrics.New())

	srv := NewServer(f, metrics.New(), AuthConfig{PublicKey: pub}, 5*time.Second, nil)
	return srv, pub, priv
}

func signedURL(t *testing.T, priv ed25519.PrivateKey, method, bucket, path string, expireIn time.Duration) string {
	t.Helper()
	d := presign.Descriptor{
		Version:  presign.Version,
		ExpireAt: time.Now().Add(expireIn).Unix(),
		Method:   method,
		BucketID: bucket,
		Path:     path,
	}
	token, err := presign.Sign(d, priv)
	require.NoError(t, err)
	return "/" + bucket + "/" + path + "?sig=" + token
}

func TestGetWithValidPresignReturns200(t *testing.T) {
	srv, _, priv := newTestServer(t)
	url := signedURL(t, priv, http.MethodGet, "media-s3", "a.txt", time.Minute)

	req := httptest.NewRequest(http.MethodGet, url, nil)
	rec := httptest.NewRecorder()
	srv.Engine().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "hello world", rec.Body.String())
	require.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
}

func TestGetWithExpiredPresignReturns401(t *testing.T) {
	srv, _, priv := newTestServer(t)
	url := signedURL(t, priv, http.MethodGet, "media-s3", "a.txt", -time.Minute)

	req := httptest.NewRequest(http.MethodGet, url, nil)
	rec := httptest.NewRecorder()
	srv.Engine().ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetWithNoAuthReturns401(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/media-s3/a.txt", nil)
	rec := httptest.NewRecorder()
	srv.Engine().ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetUnknownBucketReturns404(t *testing.T) {
	srv, _, priv := newTestServer(t)
	url := signedURL(t, priv, http.MethodGet, "no-such-bucket", "a.txt", time.Minute)

	req := httptest.NewRequest(http.MethodGet, url, nil)
	rec := httptest.NewRecorder()
	srv.Engine().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Engine().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestStatsEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()
	srv.Engine().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "requests_total")
}

func TestHeadWithPrefetchReturns200Immediately(t *testing.T) {
	srv, _, priv := newTestServer(t)
	url := signedURL(t, priv, http.MethodHead, "media-s3", "a.txt", time.Minute) + "&prefetch=true"

	req := httptest.NewRequest(http.MethodHead, url, nil)
	rec := httptest.NewRecorder()
	srv.Engine().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}
