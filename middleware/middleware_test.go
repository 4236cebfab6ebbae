package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/optiongreeks/config"
	"github.com/wyfcoding/optiongreeks/contextx"
	"github.com/wyfcoding/optiongreeks/limiter"
	"github.com/wyfcoding/optiongreeks/logging"
	"github.com/wyfcoding/optiongreeks/metrics"
	"github.com/wyfcoding/optiongreeks/xerrors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r *gin.Engine, method, target string, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	r.ServeHTTP(w, req)
	return w
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(Recovery(logging.NewLogger("test", "middleware")))
	r.GET("/panic", func(*gin.Context) { panic("boom") })

	w := serve(r, http.MethodGet, "/panic", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "internal server error")
}

func TestRequestIDPropagation(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	var seen string
	r.GET("/id", func(c *gin.Context) {
		seen = contextx.RequestID(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	w := serve(r, http.MethodGet, "/id", "")
	require.NotEmpty(t, seen)
	assert.Equal(t, seen, w.Header().Get(HeaderXRequestID))

	w2 := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/id", nil)
	req.Header.Set(HeaderXRequestID, "req-42")
	r.ServeHTTP(w2, req)
	assert.Equal(t, "req-42", seen)
	assert.Equal(t, "req-42", w2.Header().Get(HeaderXRequestID))
}

func TestRateLimit(t *testing.T) {
	l := limiter.NewDynamicLimiterFromConfig(config.RateLimitConfig{Enabled: true, Rate: 1, Burst: 1})
	r := gin.New()
	r.Use(RateLimitMiddleware(l))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/x", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(r, http.MethodGet, "/x", "").Code)

	l.UpdateConfig(config.RateLimitConfig{Enabled: false})
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/x", "").Code)
}

func TestHTTPMetrics(t *testing.T) {
	m := metrics.NewMetrics("test")
	r := gin.New()
	r.Use(Metrics(m, "/metrics"))
	r.GET("/v1/items/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", func(c *gin.Context) { c.Status(http.StatusOK) })

	serve(r, http.MethodGet, "/v1/items/1", "")
	serve(r, http.MethodGet, "/v1/items/2", "")
	serve(r, http.MethodGet, "/metrics", "")
	serve(r, http.MethodGet, "/nope", "")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/v1/items/:id", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "unmatched", "404")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.HTTPInFlight.WithLabelValues("GET", "/v1/items/:id")))
}

func TestHTTPErrorHandler(t *testing.T) {
	r := gin.New()
	r.Use(HTTPErrorHandler())
	r.GET("/missing", func(c *gin.Context) {
		_ = c.Error(xerrors.ErrEngineNotFound)
	})
	r.GET("/plain", func(c *gin.Context) {
		_ = c.Error(errors.New("boom"))
	})

	w := serve(r, http.MethodGet, "/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "404101")

	assert.Equal(t, http.StatusInternalServerError, serve(r, http.MethodGet, "/plain", "").Code)
}

func TestMaxBodyBytes(t *testing.T) {
	r := gin.New()
	r.Use(MaxBodyBytes(4))
	r.POST("/b", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, serve(r, http.MethodPost, "/b", "abc").Code)
	assert.Equal(t, http.StatusRequestEntityTooLarge, serve(r, http.MethodPost, "/b", "abcdefgh").Code)
}

func TestTimeout(t *testing.T) {
	r := gin.New()
	r.Use(Timeout(10 * time.Millisecond))
	r.GET("/slow", func(c *gin.Context) {
		<-c.Request.Context().Done()
	})

	assert.Equal(t, http.StatusGatewayTimeout, serve(r, http.MethodGet, "/slow", "").Code)
}
