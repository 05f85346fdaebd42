package api

import (
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// withCORS answers preflight requests and tags responses for the configured
// origins. A "*" entry allows every origin.
func (s *Server) withCORS(next http.Handler) http.Handler {
	if len(s.allowedOrigins) == 0 {
		return next
	}
	allowAll := slices.Contains(s.allowedOrigins, "*")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			switch {
			case allowAll:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case slices.Contains(s.allowedOrigins, origin):
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
		}

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.Header().Set("Access-Control-Max-Age", "600")
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		if strings.HasPrefix(r.URL.Path, "/metrics") {
			return
		}

		entry := s.logger.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     recorder.status,
			"duration":   time.Since(start).String(),
			"client_ip":  s.clientIP(r),
			"user_agent": r.UserAgent(),
		})

		switch {
		case recorder.status >= http.StatusInternalServerError:
			entry.Error("request failed")
		case recorder.status >= http.StatusBadRequest:
			entry.Warn("request rejected")
		default:
			entry.Info("request processed")
		}
	})
}
