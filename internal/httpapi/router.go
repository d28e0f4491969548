// Package httpapi is cachegate's HTTP handler surface (component F):
// routing, authentication, and response shaping over the fetcher.
package httpapi

import (
	"crypto/ed25519"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/cachegate/cachegate/internal/fetch"
	"github.com/cachegate/cachegate/internal/metrics"
	"github.com/cachegate/cachegate/internal/presign"
	"github.com/cachegate/cachegate/internal/ratelimit"
	"github.com/cachegate/cachegate/internal/store"
)

// AuthConfig holds the key material and optional bearer token the auth
// middleware checks requests against.
type AuthConfig struct {
	PublicKey   ed25519.PublicKey
	BearerToken string
}

// Server wires the fetcher and metrics registry into a gin.Engine
// implementing the routes in spec §6.
type Server struct {
	engine  *gin.Engine
	fetcher *fetch.Fetcher
	metrics *metrics.Registry
	auth    AuthConfig
}

// NewServer builds the gin engine with the full middleware chain, in order:
// panic recovery, correlation id, CORS, (if enabled) rate limiting, and
// request timeout, then registers every route from §6.
func NewServer(fetcher *fetch.Fetcher, m *metrics.Registry, auth AuthConfig, requestTimeout time.Duration, limiter *ratelimit.TokenBucket) *Server {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(CorrelationIDMiddleware())
	engine.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "HEAD"},
		AllowHeaders: []string{"Origin", "Authorization", "X-Correlation-ID"},
	}))
	if limiter != nil {
		engine.Use(RateLimitMiddleware(limiter))
	}
	engine.Use(RequestTimeoutMiddleware(requestTimeout))

	s := &Server{engine: engine, fetcher: fetcher, metrics: m, auth: auth}
	s.routes()
	return s
}

// Engine exposes the underlying http.Handler for the process entrypoint.
func (s *Server) Engine() http.Handler { return s.engine }

func (s *Server) routes() {
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/stats", s.handleStats)
	s.engine.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	s.engine.GET("/:bucket_id/*path", s.handleGet)
	s.engine.HEAD("/:bucket_id/*path", s.handleHead)
	s.engine.POST("/populate/:bucket_id/*path", s.handlePopulate)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.Status(http.StatusOK)
}

func (s *Server) handleStats(c *gin.Context) {
	bytesUsed, entries := s.fetcher.CacheStats()
	c.JSON(http.StatusOK, s.metrics.Snapshot(bytesUsed, entries))
}

func (s *Server) handleGet(c *gin.Context) {
	s.metrics.IncRequests()

	bucketID, path, ok := s.parseAndAuthenticate(c, http.MethodGet)
	if !ok {
		return
	}

	res, err := s.fetcher.Get(c.Request.Context(), bucketID, path)
	if err != nil {
		s.writeFetchError(c, err)
		return
	}

	c.Header("Content-Type", res.ContentType)
	c.Data(http.StatusOK, res.ContentType, res.Bytes)
}

func (s *Server) handleHead(c *gin.Context) {
	s.metrics.IncRequests()

	bucketID, path, ok := s.parseAndAuthenticate(c, http.MethodHead)
	if !ok {
		return
	}

	if isPrefetch(c) {
		s.fetcher.Prefetch(c.Request.Context(), bucketID, path)
		c.Status(http.StatusOK)
		return
	}

	res, err := s.fetcher.Get(c.Request.Context(), bucketID, path)
	if err != nil {
		s.writeFetchError(c, err)
		return
	}

	c.Header("Content-Type", res.ContentType)
	c.Header("Content-Length", strconv.FormatInt(res.Size, 10))
	c.Status(http.StatusOK)
}

// handlePopulate is the JSON-response twin of HEAD?prefetch=true: it shares
// Fetcher.Prefetch and differs only in how the result is reported back to
// the caller (§9's open question on the canonical prefetch surface).
func (s *Server) handlePopulate(c *gin.Context) {
	s.metrics.IncRequests()

	bucketID, path, ok := s.parseAndAuthenticate(c, http.MethodPost)
	if !ok {
		return
	}

	res := s.fetcher.Prefetch(c.Request.Context(), bucketID, path)
	c.JSON(http.StatusOK, gin.H{"cache_hit": res.CacheHit, "bytes": res.Bytes})
}

func isPrefetch(c *gin.Context) bool {
	v := c.Query("prefetch")
	return v == "true" || v == "1"
}

// parseAndAuthenticate extracts bucket_id/path from the route and runs the
// presign-or-bearer authentication gate before any store or cache access,
// per §4.6's "authenticate before any store or cache access" rule.
func (s *Server) parseAndAuthenticate(c *gin.Context, method string) (bucketID, path string, ok bool) {
	bucketID = c.Param("bucket_id")
	path = strings.TrimPrefix(c.Param("path"), "/")
	if bucketID == "" || path == "" {
		c.Status(http.StatusBadRequest)
		return "", "", false
	}

	if s.authenticate(c, method, bucketID, path) {
		return bucketID, path, true
	}

	s.metrics.IncAuthFailure()
	c.Status(http.StatusUnauthorized)
	return "", "", false
}

// authenticate tries the presign query parameter first, then falls back to
// a configured static bearer token. Every failure path is uniform to the
// caller; only logging distinguishes the internal variant (§4.1).
func (s *Server) authenticate(c *gin.Context, method, bucketID, path string) bool {
	if sig := c.Query("sig"); sig != "" {
		err := presign.Verify(sig, method, bucketID, path, s.auth.PublicKey, time.Now().Unix())
		if err != nil {
			log.Printf("cachegate: presign rejected for %s /%s/%s: %v", method, bucketID, path, err)
		}
		return err == nil
	}

	if s.auth.BearerToken != "" {
		const prefix = "Bearer "
		header := c.GetHeader("Authorization")
		if strings.HasPrefix(header, prefix) {
			token := strings.TrimPrefix(header, prefix)
			return presign.VerifyBearer(token, s.auth.BearerToken)
		}
	}

	return false
}

func (s *Server) writeFetchError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrUnknownBucket):
		c.Status(http.StatusNotFound)
	case errors.Is(err, store.ErrNotFound):
		c.Status(http.StatusNotFound)
	case errors.Is(err, store.ErrUpstream):
		c.Status(http.StatusBadGateway)
	default:
		c.Status(http.StatusBadGateway)
	}
}
