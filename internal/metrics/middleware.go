package metrics

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// countingWriter tracks bytes written, including each flushed SSE frame.
type countingWriter struct {
	gin.ResponseWriter
	written int
}

func (w *countingWriter) Write(p []byte) (int, error) {
	n, err := w.ResponseWriter.Write(p)
	w.written += n
	return n, err
}

func (w *countingWriter) WriteString(s string) (int, error) {
	n, err := w.ResponseWriter.WriteString(s)
	w.written += n
	return n, err
}

// PrometheusMiddleware records request count, latency and response size per
// route. Paths in skip (the scrape endpoint by default) are not recorded.
// Event streams and job sockets are observed when they close, so their
// latency is the stream lifetime.
func PrometheusMiddleware(skip ...string) gin.HandlerFunc {
	if len(skip) == 0 {
		skip = []string{"/metrics"}
	}
	skipped := make(map[string]struct{}, len(skip))
	for _, p := range skip {
		skipped[p] = struct{}{}
	}
	m := Get()

	return func(c *gin.Context) {
		if _, ok := skipped[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		m.HTTPRequestsInFlight.Inc()
		defer m.HTTPRequestsInFlight.Dec()

		start := time.Now()
		cw := &countingWriter{ResponseWriter: c.Writer}
		c.Writer = cw
		c.Next()

		m.RecordHTTPRequest(routeLabel(c.FullPath()), c.Request.Method, cw.Status(), time.Since(start), cw.written)
	}
}

// PrometheusHandler serves the default registry.
func PrometheusHandler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

// routeLabel uses the matched route pattern (/p/:slug, /api/jobs/:id/ws) so
// slugs and job ids never become label values. Unmatched requests share one
// label.
func routeLabel(fullPath string) string {
	if fullPath == "" {
		return "unmatched"
	}
	return fullPath
}
