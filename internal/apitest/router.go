package apitest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	gjwt "github.com/golang-jwt/jwt/v5"
	"github.com/sakthiviswa/Upper-Limb-Impairment-Monitoring-Platform/jwt"
	"github.com/sakthiviswa/Upper-Limb-Impairment-Monitoring-Platform/role"
)

type contextKey string

const ctxKeyClaims contextKey = "claims"

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(s.loggingMiddleware)
	r.Use(s.controlMiddleware)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Post("/login", s.handleLogin)
		r.Post("/register", s.handleRegister)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/profile", s.handleProfile)
			r.With(requireRole(role.Patient)).Get("/patient/dashboard", s.handlePatientDashboard)
			r.With(requireRole(role.Doctor)).Get("/doctor/dashboard", s.handleDoctorDashboard)
			r.With(requireRole(role.Admin)).Get("/admin/dashboard", s.handleAdminDashboard)
		})
	})
	return r
}

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // best-effort write; the client may be gone
		json.NewEncoder(w).Encode(v)
	}
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		s.logger.Debug("api request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", r.Header.Get("X-Request-ID"),
		)
	})
}

// controlMiddleware applies test controls: hit counting, held requests and
// forced statuses.
func (s *Server) controlMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := routeKey(r.Method, r.URL.Path)

		s.mu.Lock()
		s.hits[key]++
		g := s.gates[key]
		var forced int
		if queue := s.failures[key]; len(queue) > 0 {
			forced = queue[0]
			s.failures[key] = queue[1:]
		}
		s.mu.Unlock()

		if g != nil {
			g.enteredOnce.Do(func() { close(g.entered) })
			select {
			case <-g.release:
			case <-r.Context().Done():
				return
			}
		}
		if forced != 0 {
			writeMessage(w, forced, http.StatusText(forced))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}
	token := value[len(bearer):]
	if token == "" {
		return "", false
	}
	return token, true
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			writeMessage(w, http.StatusUnauthorized, "Authorization token required")
			return
		}

		claims, err := s.tokens.Parse(token)
		switch {
		case errors.Is(err, gjwt.ErrTokenExpired):
			writeMessage(w, http.StatusUnauthorized, "Token has expired, please login again")
			return
		case err != nil:
			writeMessage(w, http.StatusUnprocessableEntity, "Invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyClaims, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func claimsFrom(ctx context.Context) *jwt.Claims {
	c, _ := ctx.Value(ctxKeyClaims).(*jwt.Claims)
	return c
}

func requireRole(allowed ...role.Role) func(http.Handler) http.Handler {
	set := role.Only(allowed...)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c := claimsFrom(r.Context())
			if c == nil || !set.Contains(c.Role) {
				writeMessage(w, http.StatusForbidden, "Access forbidden: insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
