package server

import (
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"bookmart/internal/ratelimit"
	"bookmart/internal/util"
	"bookmart/pkg/domain"
	"bookmart/services/storeapi/internal/store"
	"bookmart/services/storeapi/internal/token"
)

const defaultRefreshTTL = 30 * 24 * time.Hour

// Config wires required dependencies for the HTTP server.
type Config struct {
	Cart    store.CartStore
	Refresh store.RefreshValidator
	Tokens  *token.Manager
	// Limiter bounds session confirmations per client. Nil disables it.
	Limiter    *ratelimit.FixedWindowLimiter
	RefreshTTL time.Duration
}

// Server exposes the store API: session confirmation and per-owner carts.
type Server struct {
	cart       store.CartStore
	refresh    store.RefreshValidator
	tokens     *token.Manager
	limiter    *ratelimit.FixedWindowLimiter
	refreshTTL time.Duration
	mux        *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	refreshTTL := cfg.RefreshTTL
	if refreshTTL <= 0 {
		refreshTTL = defaultRefreshTTL
	}
	s := &Server{
		cart:       cfg.Cart,
		refresh:    cfg.Refresh,
		tokens:     cfg.Tokens,
		limiter:    cfg.Limiter,
		refreshTTL: refreshTTL,
		mux:        http.NewServeMux(),
	}
	s.routes()
	return s
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("storeapi", util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/session/confirm", s.handleSessionConfirm)

	s.mux.Handle("/cart", s.withOwner(s.handleCart))
	s.mux.Handle("/cart/items", s.withOwner(s.handleCartItems))
	s.mux.Handle("/cart/items/", s.withOwner(s.handleCartItemByID))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSessionConfirm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if s.limiter != nil && !s.limiter.Allow("session-confirm:"+clientIP(r)) {
		writeError(w, http.StatusTooManyRequests, "too many requests")
		return
	}
	var event domain.AuthEvent
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&event); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	ctx := r.Context()
	switch event.Kind {
	case domain.EventSignedOut:
		if event.Session != nil && event.Session.RefreshToken != "" {
			if err := s.refresh.Revoke(ctx, event.Session.RefreshToken); err != nil {
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "confirmed"})
	case domain.EventSignedIn, domain.EventTokenRefreshed:
		if event.Session == nil || !event.Session.Complete() {
			writeError(w, http.StatusBadRequest, "invalid or expired refresh token")
			return
		}
		owner, err := s.tokens.Verify(event.Session.AccessToken)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid or expired refresh token")
			return
		}
		if event.Kind == domain.EventTokenRefreshed {
			// A rotation can only extend a session this store has seen.
			known, err := s.refresh.HasOwner(ctx, owner)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}
			if !known {
				writeError(w, http.StatusBadRequest, "invalid or expired refresh token")
				return
			}
		}
		if err := s.refresh.Register(ctx, owner, event.Session.RefreshToken, s.refreshTTL); err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "confirmed"})
	default:
		writeError(w, http.StatusBadRequest, "invalid event kind")
	}
}

type ownerHandler func(http.ResponseWriter, *http.Request, string)

func (s *Server) withOwner(next ownerHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accessToken, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		owner, err := s.tokens.Verify(accessToken)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, owner)
	})
}

func (s *Server) handleCart(w http.ResponseWriter, r *http.Request, owner string) {
	switch r.Method {
	case http.MethodGet:
		items, err := s.cart.List(r.Context(), owner)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"items": items,
			"count": len(items),
		})
	case http.MethodDelete:
		if err := s.cart.Clear(r.Context(), owner); err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
	default:
		methodNotAllowed(w)
	}
}

type addItemRequest struct {
	BookID   string       `json:"bookId"`
	Quantity int          `json:"quantity"`
	Book     *domain.Book `json:"book,omitempty"`
}

func (s *Server) handleCartItems(w http.ResponseWriter, r *http.Request, owner string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req addItemRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	book := domain.Book{ID: strings.TrimSpace(req.BookID)}
	if req.Book != nil {
		book = *req.Book
		if book.ID == "" {
			book.ID = strings.TrimSpace(req.BookID)
		}
	}
	if book.ID == "" {
		writeError(w, http.StatusBadRequest, "book id is required")
		return
	}
	if err := s.cart.Add(r.Context(), owner, book, req.Quantity); err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type quantityRequest struct {
	Quantity int `json:"quantity"`
}

// /cart/items/{id}
func (s *Server) handleCartItemByID(w http.ResponseWriter, r *http.Request, owner string) {
	id := strings.TrimPrefix(r.URL.Path, "/cart/items/")
	if id == "" || strings.Contains(id, "/") {
		notFound(w, "not found")
		return
	}
	switch r.Method {
	case http.MethodPatch:
		var req quantityRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if err := s.cart.SetQuantity(r.Context(), owner, id, req.Quantity); err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case http.MethodDelete:
		if err := s.cart.Remove(r.Context(), owner, id); err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	default:
		methodNotAllowed(w)
	}
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func notFound(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusNotFound, msg)
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	tok := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if tok == "" {
		return "", false
	}
	return tok, true
}

func clientIP(r *http.Request) string {
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i > 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      errorCodeForStore(status, msg),
		RequestID: strings.TrimSpace(w.Header().Get("X-Request-Id")),
	})
}

func errorCodeForStore(status int, msg string) string {
	message := strings.ToLower(strings.TrimSpace(msg))
	switch {
	case strings.Contains(message, "refresh token"):
		return "AUTH_INVALID_REFRESH"
	case message == "unauthorized":
		return "AUTH_INVALID_TOKEN"
	case message == "too many requests":
		return "SYSTEM_RATE_LIMITED"
	case message == "invalid json body", message == "invalid event kind":
		return "SESSION_INVALID_REQUEST"
	case message == "book id is required":
		return "CART_BOOK_ID_REQUIRED"
	case message == "method not allowed":
		return "SYSTEM_METHOD_NOT_ALLOWED"
	case message == "not found":
		return "SYSTEM_NOT_FOUND"
	}

	switch status {
	case http.StatusBadRequest:
		return "SESSION_INVALID_REQUEST"
	case http.StatusUnauthorized:
		return "AUTH_INVALID_TOKEN"
	case http.StatusNotFound:
		return "SYSTEM_NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "SYSTEM_METHOD_NOT_ALLOWED"
	case http.StatusTooManyRequests:
		return "SYSTEM_RATE_LIMITED"
	default:
		if status >= http.StatusInternalServerError {
			return "SYSTEM_INTERNAL_ERROR"
		}
		return "REQUEST_ERROR"
	}
}
