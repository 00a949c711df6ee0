package gateway

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"meritledger/gateway/middleware"
	"meritledger/gateway/store"
)

const idempotencyHeader = "Idempotency-Key"

// idempotency replays cached responses for repeated mutating requests
// carrying the same key and payload, and appends every request to the audit
// log. Requests without the header pass through uncached.
func (s *Server) idempotency(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.store == nil {
			next.ServeHTTP(w, r)
			return
		}
		actor, _ := middleware.Actor(r.Context())
		key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
		if key == "" {
			recorder := newBodyRecorder(w)
			next.ServeHTTP(recorder, r)
			s.audit(r, actor, recorder.status)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "unreadable body", http.StatusBadRequest)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		hash := sha256.Sum256(body)
		requestHash := hex.EncodeToString(hash[:])

		cached, err := s.store.LookupIdempotency(r.Context(), actor, key, requestHash)
		if errors.Is(err, store.ErrIdempotencyMismatch) {
			http.Error(w, "idempotency key reused with a different payload", http.StatusConflict)
			return
		}
		if err != nil {
			s.logger.Error("idempotency lookup failed", "err", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if cached != nil {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Idempotent-Replay", "true")
			w.WriteHeader(cached.Status)
			_, _ = w.Write(cached.Body)
			return
		}

		recorder := newBodyRecorder(w)
		next.ServeHTTP(recorder, r)
		s.audit(r, actor, recorder.status)
		// Server errors stay uncached so the caller can retry under the
		// same key once the fault clears.
		if recorder.status >= http.StatusInternalServerError {
			return
		}
		if err := s.store.SaveIdempotency(r.Context(), actor, key, requestHash, recorder.status, recorder.body.Bytes()); err != nil {
			s.logger.Error("idempotency save failed", "err", err)
		}
	})
}

func (s *Server) audit(r *http.Request, actor string, status int) {
	err := s.store.InsertAuditLog(r.Context(), store.AuditEntry{
		Actor:          actor,
		Method:         r.Method,
		Path:           r.URL.Path,
		ResponseStatus: status,
		Timestamp:      time.Now().UTC(),
	})
	if err != nil {
		s.logger.Error("audit log insert failed", "err", err)
	}
}

// bodyRecorder tees the response so it can be cached for replay.
type bodyRecorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func newBodyRecorder(w http.ResponseWriter) *bodyRecorder {
	return &bodyRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (b *bodyRecorder) WriteHeader(code int) {
	b.status = code
	b.ResponseWriter.WriteHeader(code)
}

func (b *bodyRecorder) Write(p []byte) (int, error) {
	b.body.Write(p)
	return b.ResponseWriter.Write(p)
}
