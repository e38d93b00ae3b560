package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"bookmart/internal/ratelimit"
	"bookmart/pkg/domain"
	"bookmart/services/storeapi/internal/store"
	"bookmart/services/storeapi/internal/token"
)

func testTokens(t *testing.T) *token.Manager {
	t.Helper()
	m, err := token.NewManager(token.Config{Secret: "test-secret"})
	if err != nil {
		t.Fatalf("token manager: %v", err)
	}
	return m
}

func testServer(t *testing.T, limiter *ratelimit.FixedWindowLimiter) (*httptest.Server, *token.Manager) {
	t.Helper()
	tokens := testTokens(t)
	srv := New(Config{
		Cart:    store.NewMemoryCartStore(),
		Refresh: store.NewMemoryRefreshValidator(),
		Tokens:  tokens,
		Limiter: limiter,
	})
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, tokens
}

func mustMint(t *testing.T, tokens *token.Manager, subject string) string {
	t.Helper()
	signed, err := tokens.Mint(subject)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	return signed
}

func postJSON(t *testing.T, url string, payload any, out any) int {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
	return resp.StatusCode
}

func doAuthed(t *testing.T, method, url, accessToken string, payload, out any) int {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
	return resp.StatusCode
}

func signedInEvent(access, refresh string) domain.AuthEvent {
	return domain.AuthEvent{
		Kind:    domain.EventSignedIn,
		Session: &domain.Session{AccessToken: access, RefreshToken: refresh},
	}
}

func TestConfirmSignInThenRefresh(t *testing.T) {
	ts, tokens := testServer(t, nil)
	access := mustMint(t, tokens, "u1")

	if code := postJSON(t, ts.URL+"/session/confirm", signedInEvent(access, "refresh-1"), nil); code != http.StatusOK {
		t.Fatalf("sign-in confirm status: %d", code)
	}

	rotated := domain.AuthEvent{
		Kind:    domain.EventTokenRefreshed,
		Session: &domain.Session{AccessToken: access, RefreshToken: "refresh-2"},
	}
	if code := postJSON(t, ts.URL+"/session/confirm", rotated, nil); code != http.StatusOK {
		t.Fatalf("refresh confirm status: %d", code)
	}
}

func TestConfirmRefreshWithoutSessionRejected(t *testing.T) {
	ts, tokens := testServer(t, nil)
	access := mustMint(t, tokens, "u1")

	event := domain.AuthEvent{
		Kind:    domain.EventTokenRefreshed,
		Session: &domain.Session{AccessToken: access, RefreshToken: "refresh-1"},
	}
	var errResp errorResponse
	code := postJSON(t, ts.URL+"/session/confirm", event, &errResp)
	if code != http.StatusBadRequest {
		t.Fatalf("status: %d", code)
	}
	if errResp.Code != "AUTH_INVALID_REFRESH" {
		t.Fatalf("error code: %q", errResp.Code)
	}
}

func TestConfirmRejectsBadAccessToken(t *testing.T) {
	ts, _ := testServer(t, nil)

	var errResp errorResponse
	code := postJSON(t, ts.URL+"/session/confirm", signedInEvent("forged-token", "refresh-1"), &errResp)
	if code != http.StatusBadRequest {
		t.Fatalf("status: %d", code)
	}
	if errResp.Code != "AUTH_INVALID_REFRESH" {
		t.Fatalf("error code: %q", errResp.Code)
	}
}

func TestConfirmSignOutRevokesRefresh(t *testing.T) {
	ts, tokens := testServer(t, nil)
	access := mustMint(t, tokens, "u1")

	if code := postJSON(t, ts.URL+"/session/confirm", signedInEvent(access, "refresh-1"), nil); code != http.StatusOK {
		t.Fatalf("sign-in confirm status: %d", code)
	}
	signOut := domain.AuthEvent{
		Kind:    domain.EventSignedOut,
		Session: &domain.Session{AccessToken: access, RefreshToken: "refresh-1"},
	}
	if code := postJSON(t, ts.URL+"/session/confirm", signOut, nil); code != http.StatusOK {
		t.Fatalf("sign-out confirm status: %d", code)
	}

	rotated := domain.AuthEvent{
		Kind:    domain.EventTokenRefreshed,
		Session: &domain.Session{AccessToken: access, RefreshToken: "refresh-2"},
	}
	if code := postJSON(t, ts.URL+"/session/confirm", rotated, nil); code != http.StatusBadRequest {
		t.Fatalf("rotation after sign-out should be rejected, got %d", code)
	}
}

func TestConfirmRateLimited(t *testing.T) {
	mr := miniredis.RunT(t)
	limiter, err := ratelimit.NewRedisFixedWindowLimiter(mr.Addr(), "", "storeapi", 2, time.Minute)
	if err != nil {
		t.Fatalf("limiter: %v", err)
	}
	ts, tokens := testServer(t, limiter)
	access := mustMint(t, tokens, "u1")

	for i := 0; i < 2; i++ {
		if code := postJSON(t, ts.URL+"/session/confirm", signedInEvent(access, "refresh-1"), nil); code != http.StatusOK {
			t.Fatalf("confirm %d status: %d", i, code)
		}
	}
	var errResp errorResponse
	code := postJSON(t, ts.URL+"/session/confirm", signedInEvent(access, "refresh-1"), &errResp)
	if code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", code)
	}
	if errResp.Code != "SYSTEM_RATE_LIMITED" {
		t.Fatalf("error code: %q", errResp.Code)
	}
}

func TestCartRequiresAuth(t *testing.T) {
	ts, _ := testServer(t, nil)

	if code := doAuthed(t, http.MethodGet, ts.URL+"/cart", "", nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("missing token status: %d", code)
	}
	if code := doAuthed(t, http.MethodGet, ts.URL+"/cart", "forged", nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("forged token status: %d", code)
	}
}

func TestCartCRUDPerOwner(t *testing.T) {
	ts, tokens := testServer(t, nil)
	alice := mustMint(t, tokens, "alice")
	bob := mustMint(t, tokens, "bob")

	add := addItemRequest{
		BookID:   "b1",
		Quantity: 2,
		Book:     &domain.Book{ID: "b1", Title: "Dune", UnitPriceBase: 9.5},
	}
	if code := doAuthed(t, http.MethodPost, ts.URL+"/cart/items", alice, add, nil); code != http.StatusOK {
		t.Fatalf("add status: %d", code)
	}
	if code := doAuthed(t, http.MethodPatch, ts.URL+"/cart/items/b1", alice, quantityRequest{Quantity: 7}, nil); code != http.StatusOK {
		t.Fatalf("patch status: %d", code)
	}

	var view struct {
		Items []domain.CartItem `json:"items"`
		Count int               `json:"count"`
	}
	if code := doAuthed(t, http.MethodGet, ts.URL+"/cart", alice, nil, &view); code != http.StatusOK {
		t.Fatalf("list status: %d", code)
	}
	if view.Count != 1 || view.Items[0].Quantity != 7 || view.Items[0].Book.Title != "Dune" {
		t.Fatalf("alice cart: %+v", view)
	}

	// Another owner sees an empty cart.
	view.Items = nil
	if code := doAuthed(t, http.MethodGet, ts.URL+"/cart", bob, nil, &view); code != http.StatusOK {
		t.Fatalf("bob list status: %d", code)
	}
	if len(view.Items) != 0 {
		t.Fatalf("bob cart should be empty, got %+v", view.Items)
	}

	if code := doAuthed(t, http.MethodDelete, ts.URL+"/cart/items/b1", alice, nil, nil); code != http.StatusOK {
		t.Fatalf("remove status: %d", code)
	}
	if code := doAuthed(t, http.MethodDelete, ts.URL+"/cart", alice, nil, nil); code != http.StatusOK {
		t.Fatalf("clear status: %d", code)
	}
}
