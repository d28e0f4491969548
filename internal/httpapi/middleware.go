package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type contextKey string

const correlationIDKey contextKey = "correlation_id"

// CorrelationIDMiddleware checks for an existing X-Correlation-ID header or
// generates a new one, stores it on the gin context and the request context,
// and echoes it in the X-Correlation-ID response header. Nothing downstream
// reads it back: the fetcher and store adapters do not receive or log it.
func CorrelationIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Correlation-ID")
		if id == "" {
			id = uuid.New().String()
		}

		c.Set("correlation_id", id)
		ctx := context.WithValue(c.Request.Context(), correlationIDKey, id)
		c.Request = c.Request.WithContext(ctx)

		c.Header("X-Correlation-ID", id)
		c.Next()
	}
}

// bufferedWriter captures response writes in-memory so the timeout
// middleware can choose between the real response and a 504 without racing
// concurrent writes from a still-running handler.
type bufferedWriter struct {
	buf    *bytes.Buffer
	head   http.Header
	status int
	wrote  bool
	closed bool
	mu     sync.RWMutex
}

func newBufferedWriter() *bufferedWriter {
	return &bufferedWriter{buf: bytes.NewBuffer(nil), head: make(http.Header), status: http.StatusOK}
}

func (b *bufferedWriter) Header() http.Header {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.head
}

func (b *bufferedWriter) Write(data []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, nil
	}
	b.wrote = true
	return b.buf.Write(data)
}

func (b *bufferedWriter) WriteString(s string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, nil
	}
	b.wrote = true
	return b.buf.WriteString(s)
}

func (b *bufferedWriter) WriteHeader(statusCode int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.status = statusCode
}

func (b *bufferedWriter) WriteHeaderNow() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.status == 0 {
		b.status = http.StatusOK
	}
	b.wrote = true
}

func (b *bufferedWriter) Status() int {
	if b.status == 0 {
		return http.StatusOK
	}
	return b.status
}

func (b *bufferedWriter) flushTo(w http.ResponseWriter) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for k, vv := range b.head {
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(b.Status())
	_, _ = w.Write(b.buf.Bytes())
}

// RequestTimeoutMiddleware races the handler against timeout and flushes
// the buffered response exactly once, returning 504 if the deadline passes
// first. Cachegate's downstream fetch already runs any in-flight upstream
// call under a context detached from this request (see fetch.Fetcher.Get),
// so a timeout here only affects what this client sees, not cache warming.
func RequestTimeoutMiddleware(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if timeout <= 0 {
			c.Next()
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		origWriter := c.Writer
		bw := newBufferedWriter()
		c.Writer = &responseWriterShim{bw: bw, orig: origWriter}

		finished := make(chan struct{}, 1)
		panicChan := make(chan interface{})
		go func() {
			defer func() {
				if r := recover(); r != nil {
					panicChan <- r
				}
			}()
			c.Next()
			close(finished)
		}()

		select {
		case <-finished:
			bw.flushTo(origWriter)
		case p := <-panicChan:
			c.Writer = origWriter
			panic(p)
		case <-ctx.Done():
			bw.mu.Lock()
			bw.closed = true
			bw.mu.Unlock()
			origWriter.Header().Set("Content-Type", "application/json; charset=utf-8")
			origWriter.WriteHeader(http.StatusGatewayTimeout)
			_, _ = origWriter.Write([]byte(`{"error":"Gateway Timeout"}`))
		}
	}
}

// responseWriterShim adapts bufferedWriter to gin.ResponseWriter.
type responseWriterShim struct {
	bw   *bufferedWriter
	orig gin.ResponseWriter
}

func (rws *responseWriterShim) Header() http.Header               { return rws.bw.Header() }
func (rws *responseWriterShim) Write(data []byte) (int, error)    { return rws.bw.Write(data) }
func (rws *responseWriterShim) WriteString(s string) (int, error) { return rws.bw.WriteString(s) }
func (rws *responseWriterShim) WriteHeader(statusCode int)        { rws.bw.WriteHeader(statusCode) }
func (rws *responseWriterShim) WriteHeaderNow()                   { rws.bw.WriteHeaderNow() }
func (rws *responseWriterShim) Status() int                       { return rws.bw.Status() }
func (rws *responseWriterShim) Written() bool                     { return rws.bw.wrote }
func (rws *responseWriterShim) Size() int                         { return rws.bw.buf.Len() }
func (rws *responseWriterShim) WriteHeaderNowWithoutLock()        {}

func (rws *responseWriterShim) Flush() {
	if fl, ok := rws.orig.(http.Flusher); ok {
		fl.Flush()
	}
}

func (rws *responseWriterShim) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hj, ok := rws.orig.(http.Hijacker); ok {
		return hj.Hijack()
	}
	return nil, nil, fmt.Errorf("hijack not supported")
}

func (rws *responseWriterShim) Pusher() http.Pusher {
	if p, ok := rws.orig.(http.Pusher); ok {
		return p
	}
	return nil
}

func (rws *responseWriterShim) CloseNotify() <-chan bool {
	if rws.orig != nil {
		return rws.orig.CloseNotify()
	}
	ch := make(chan bool)
	close(ch)
	return ch
}

// RateLimitMiddleware applies a shared TokenBucket keyed by client IP to
// every request it wraps.
func RateLimitMiddleware(limiter interface {
	Allow(key string) bool
	GetRemaining(key string) int
	GetResetTime(key string) int64
}) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if !limiter.Allow(key) {
			c.Header("X-RateLimit-Remaining", "0")
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too Many Requests"})
			c.Abort()
			return
		}
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", limiter.GetRemaining(key)))
		c.Next()
	}
}
