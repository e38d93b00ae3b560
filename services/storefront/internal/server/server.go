package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"bookmart/internal/util"
	"bookmart/pkg/domain"
	"bookmart/pkg/pricing"
	"bookmart/services/storefront/internal/cart"
	"bookmart/services/storefront/internal/session"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	Cart    *cart.Synchronizer
	Session *session.Synchronizer
	Pricing *pricing.Engine
}

// Server exposes the storefront's local HTTP surface: cart state and
// mutations, price quotes, and the auth event intake.
type Server struct {
	cart    *cart.Synchronizer
	session *session.Synchronizer
	pricing *pricing.Engine
	mux     *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		cart:    cfg.Cart,
		session: cfg.Session,
		pricing: cfg.Pricing,
		mux:     http.NewServeMux(),
	}
	s.routes()
	return s
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("storefront", util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	s.mux.HandleFunc("/cart", s.handleCart)
	s.mux.HandleFunc("/cart/items", s.handleCartItems)
	s.mux.HandleFunc("/cart/items/", s.handleCartItemByID)
	s.mux.HandleFunc("/cart/shipping-address", s.handleShippingAddress)

	s.mux.HandleFunc("/prices/quote", s.handlePriceQuote)
	s.mux.HandleFunc("/currencies", s.handleCurrencies)

	s.mux.HandleFunc("/session/events", s.handleSessionEvents)
	s.mux.HandleFunc("/session", s.handleSession)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type cartView struct {
	Items        []domain.CartItem `json:"items"`
	Count        int               `json:"count"`
	Subtotal     float64           `json:"subtotal"`
	RemoteSynced bool              `json:"remoteSynced"`
}

func (s *Server) cartView() cartView {
	items := s.cart.Items()
	count := 0
	for _, item := range items {
		count += item.Quantity
	}
	return cartView{
		Items:        items,
		Count:        count,
		Subtotal:     s.cart.Subtotal(),
		RemoteSynced: s.cart.RemoteSynced(),
	}
}

func (s *Server) handleCart(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.cartView())
	case http.MethodDelete:
		s.cart.Clear()
		writeJSON(w, http.StatusOK, s.cartView())
	default:
		methodNotAllowed(w)
	}
}

type addItemRequest struct {
	Book     domain.Book `json:"book"`
	Quantity int         `json:"quantity"`
}

func (s *Server) handleCartItems(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req addItemRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Book.ID) == "" {
		writeError(w, http.StatusBadRequest, "book id is required")
		return
	}
	s.cart.Add(req.Book, req.Quantity)
	writeJSON(w, http.StatusOK, s.cartView())
}

type quantityRequest struct {
	Quantity int `json:"quantity"`
}

// /cart/items/{id}
func (s *Server) handleCartItemByID(w http.ResponseWriter, r *http.Request) {
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
		s.cart.SetQuantity(id, req.Quantity)
		writeJSON(w, http.StatusOK, s.cartView())
	case http.MethodDelete:
		s.cart.Remove(id)
		writeJSON(w, http.StatusOK, s.cartView())
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleShippingAddress(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		addr, ok := s.cart.ShippingAddress()
		if !ok {
			notFound(w, "shipping address not set")
			return
		}
		writeJSON(w, http.StatusOK, addr)
	case http.MethodPut:
		var addr domain.ShippingAddress
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&addr); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		s.cart.SetShippingAddress(addr)
		saved, _ := s.cart.ShippingAddress()
		writeJSON(w, http.StatusOK, saved)
	default:
		methodNotAllowed(w)
	}
}

type quoteRequest struct {
	LocalAmount float64 `json:"localAmount"`
	USDAmount   float64 `json:"usdAmount"`
	Currency    string  `json:"currency"`
	Quantity    int     `json:"quantity"`
}

func (s *Server) handlePriceQuote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req quoteRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	src := pricing.Source{LocalAmount: req.LocalAmount, USDAmount: req.USDAmount}
	writeJSON(w, http.StatusOK, s.pricing.BookPrice(src, req.Currency, req.Quantity))
}

func (s *Server) handleCurrencies(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	codes := s.pricing.Catalog().Codes()
	writeJSON(w, http.StatusOK, map[string]any{
		"items": codes,
		"count": len(codes),
		"home":  s.pricing.Catalog().Home().Code,
	})
}

func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var event domain.AuthEvent
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&event); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	switch event.Kind {
	case domain.EventSignedIn, domain.EventSignedOut, domain.EventTokenRefreshed:
	default:
		writeError(w, http.StatusBadRequest, "invalid event kind")
		return
	}
	s.session.Enqueue(event)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	current := s.session.Current()
	writeJSON(w, http.StatusOK, map[string]any{
		"signedIn": current != nil,
	})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func notFound(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusNotFound, msg)
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
		Code:      errorCodeForStorefront(status, msg),
		RequestID: strings.TrimSpace(w.Header().Get("X-Request-Id")),
	})
}

func errorCodeForStorefront(status int, msg string) string {
	message := strings.ToLower(strings.TrimSpace(msg))
	switch {
	case message == "invalid json body":
		return "CART_INVALID_REQUEST"
	case message == "book id is required":
		return "CART_BOOK_ID_REQUIRED"
	case message == "invalid event kind":
		return "SESSION_INVALID_EVENT"
	case message == "shipping address not set":
		return "CART_NO_SHIPPING_ADDRESS"
	case message == "method not allowed":
		return "SYSTEM_METHOD_NOT_ALLOWED"
	case message == "not found":
		return "SYSTEM_NOT_FOUND"
	}

	switch status {
	case http.StatusBadRequest:
		return "CART_INVALID_REQUEST"
	case http.StatusNotFound:
		return "SYSTEM_NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "SYSTEM_METHOD_NOT_ALLOWED"
	default:
		if status >= http.StatusInternalServerError {
			return "SYSTEM_INTERNAL_ERROR"
		}
		return "REQUEST_ERROR"
	}
}
