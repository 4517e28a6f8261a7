package api

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cryptguard/cryptguard/internal/common"
	"github.com/cryptguard/cryptguard/internal/server/auth"
)

type contextKey string

const claimsKey contextKey = "claims"

// claimsFrom returns the authenticated claims stored by requireAuth.
func claimsFrom(ctx context.Context) *auth.Claims {
	c, _ := ctx.Value(claimsKey).(*auth.Claims)
	return c
}

// requireAuth validates the access credential from the accessToken cookie or
// an Authorization bearer header and stores its claims on the context.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			if c, err := r.Cookie(accessCookieName); err == nil {
				token = c.Value
			}
		}
		if token == "" {
			writeError(w, fmt.Errorf("missing access credential: %w", common.ErrorUnauthorized))
			return
		}

		claims, err := s.tokens.ValidateAccess(r.Context(), token)
		if err != nil {
			writeError(w, err)
			return
		}

		next(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(h, "Bearer "); ok {
		return after
	}
	return ""
}

// cors restricts browser callers to the single configured origin. Cookies
// require Allow-Credentials, which in turn forbids a wildcard origin.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == s.cfg.CORSOrigin {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-Timestamp, X-Request-Nonce, X-Content-Checksum")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// replayGuard, when enabled, requires every state-changing request to carry
// a fresh timestamp, a single-use nonce, and a checksum of its body. When
// disabled it is a pass-through.
func (s *Server) replayGuard(next http.Handler) http.Handler {
	if !s.cfg.ReplayGuardEnabled {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		if err := s.checkReplay(w, r); err != nil {
			writeError(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) checkReplay(w http.ResponseWriter, r *http.Request) error {
	tsHeader := r.Header.Get("X-Request-Timestamp")
	nonce := r.Header.Get("X-Request-Nonce")
	checksum := r.Header.Get("X-Content-Checksum")
	if tsHeader == "" || nonce == "" || checksum == "" {
		return fmt.Errorf("%w: replay protection headers are required", common.ErrorValidation)
	}

	tsUnix, err := strconv.ParseInt(tsHeader, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: malformed request timestamp", common.ErrorValidation)
	}
	age := time.Since(time.Unix(tsUnix, 0))
	if age < -s.cfg.ReplayWindow || age > s.cfg.ReplayWindow {
		return fmt.Errorf("request timestamp outside window: %w", common.ErrReplayDetected)
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, s.cfg.MaxUploadBytes+1))
	if err != nil {
		return fmt.Errorf("%w: reading request body", common.ErrorValidation)
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	sum := sha256.Sum256(body)
	if !strings.EqualFold(checksum, hex.EncodeToString(sum[:])) {
		return fmt.Errorf("body checksum mismatch: %w", common.ErrReplayDetected)
	}

	fresh, err := s.nonces.Register(r.Context(), nonce, time.Now().Add(s.cfg.ReplayWindow))
	if err != nil {
		return fmt.Errorf("registering nonce: %w", err)
	}
	if !fresh {
		s.audit.Event(r.Context(), "REPLAY_DETECTED", "nonce", nonce, "path", r.URL.Path)
		return fmt.Errorf("nonce already used: %w", common.ErrReplayDetected)
	}
	return nil
}

// logRequests emits one diagnostic line per request.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(lw, r)
		s.logger.Info(r.Context(), "request",
			"method", r.Method, "path", r.URL.Path,
			"status", lw.status, "duration", time.Since(start).String())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
