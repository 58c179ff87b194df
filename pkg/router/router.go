package router

import (
	"net/http"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

type HandlerFunc func(http.ResponseWriter, *http.Request)

type route struct {
	method   string
	pattern  string
	segments []string
	trailing bool // pattern ends in /* and swallows the rest of the path
	literals int
	handler  HandlerFunc
}

// Router is a small method-aware mux with single-segment wildcards. A `*`
// segment matches exactly one path segment; a trailing `/*` matches the
// remainder of the path. Candidates are ranked by literal segment count,
// so /scans/*/results always beats /scans/* for the same request.
type Router struct {
	routes []route
	log    *zap.Logger
}

func New(log *zap.Logger) *Router {
	return &Router{log: log}
}

func (r *Router) register(method, pattern string, handler HandlerFunc) {
	trimmed := strings.Trim(pattern, "/")
	segments := []string{}
	if trimmed != "" {
		segments = strings.Split(trimmed, "/")
	}
	rt := route{
		method:   method,
		pattern:  pattern,
		segments: segments,
		handler:  handler,
	}
	if n := len(segments); n > 0 && segments[n-1] == "*" {
		rt.trailing = true
		rt.segments = segments[:n-1]
	}
	for _, seg := range rt.segments {
		if seg != "*" {
			rt.literals++
		}
	}
	r.routes = append(r.routes, rt)

	// most specific first, so matching can stop at the first hit
	sort.SliceStable(r.routes, func(i, j int) bool {
		return r.routes[i].literals > r.routes[j].literals
	})
}

func (r *Router) GET(pattern string, h HandlerFunc)    { r.register(http.MethodGet, pattern, h) }
func (r *Router) POST(pattern string, h HandlerFunc)   { r.register(http.MethodPost, pattern, h) }
func (r *Router) PUT(pattern string, h HandlerFunc)    { r.register(http.MethodPut, pattern, h) }
func (r *Router) PATCH(pattern string, h HandlerFunc)  { r.register(http.MethodPatch, pattern, h) }
func (r *Router) DELETE(pattern string, h HandlerFunc) { r.register(http.MethodDelete, pattern, h) }

func (rt *route) matches(segments []string) bool {
	if rt.trailing {
		if len(segments) < len(rt.segments) {
			return false
		}
	} else if len(segments) != len(rt.segments) {
		return false
	}
	for i, seg := range rt.segments {
		if seg != "*" && seg != segments[i] {
			return false
		}
	}
	return true
}

// Param extracts the path segment at the given zero-based index, for
// handlers that need a wildcard value out of the request path.
func Param(path string, index int) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if index < 0 || index >= len(segments) {
		return ""
	}
	return segments[index]
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	start := time.Now()
	lrw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

	trimmed := strings.Trim(req.URL.Path, "/")
	segments := []string{}
	if trimmed != "" {
		segments = strings.Split(trimmed, "/")
	}

	var handler HandlerFunc
	pathKnown := false
	for i := range r.routes {
		rt := &r.routes[i]
		if !rt.matches(segments) {
			continue
		}
		pathKnown = true
		if rt.method == req.Method {
			handler = rt.handler
			break
		}
	}

	switch {
	case handler != nil:
		handler(lrw, req)
	case pathKnown:
		http.Error(lrw, "Method Not Allowed", http.StatusMethodNotAllowed)
	default:
		http.Error(lrw, "Not Found", http.StatusNotFound)
	}

	r.log.Info("http request",
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Int("status", lrw.statusCode),
		zap.Duration("duration", time.Since(start)))
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}
