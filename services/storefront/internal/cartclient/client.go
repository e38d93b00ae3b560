package cartclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"bookmart/pkg/domain"
	"bookmart/pkg/netretry"
)

// ErrUnauthenticated is returned when the store API answers 401. The
// cart layer treats it as "fall back to local-only", never a hard error.
var ErrUnauthenticated = errors.New("cart remote: not authenticated")

// Client calls the remote cart endpoints of the store API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	exec       *netretry.Executor
}

// NewClient constructs a cart client over injected transport pieces.
func NewClient(baseURL string, httpClient *http.Client, exec *netretry.Executor) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if exec == nil {
		exec = netretry.New(netretry.Options{})
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		exec:       exec,
	}
}

// List fetches the current remote cart.
func (c *Client) List(ctx context.Context, accessToken string) ([]domain.CartItem, error) {
	var out struct {
		Items []domain.CartItem `json:"items"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/cart", accessToken, nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

type addItemRequest struct {
	BookID   string       `json:"bookId"`
	Quantity int          `json:"quantity"`
	Book     *domain.Book `json:"book,omitempty"`
}

// AddItem adds or increments one book on the remote cart. The book
// snapshot rides along so the server can materialize new items.
func (c *Client) AddItem(ctx context.Context, accessToken string, book domain.Book, quantity int) error {
	payload := addItemRequest{BookID: book.ID, Quantity: quantity, Book: &book}
	return c.doJSON(ctx, http.MethodPost, "/cart/items", accessToken, payload, nil)
}

// SetQuantity sets the absolute quantity for one book.
func (c *Client) SetQuantity(ctx context.Context, accessToken, bookID string, quantity int) error {
	payload := map[string]int{"quantity": quantity}
	return c.doJSON(ctx, http.MethodPatch, "/cart/items/"+url.PathEscape(bookID), accessToken, payload, nil)
}

// RemoveItem removes one book from the remote cart.
func (c *Client) RemoveItem(ctx context.Context, accessToken, bookID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/cart/items/"+url.PathEscape(bookID), accessToken, nil, nil)
}

// Clear empties the remote cart.
func (c *Client) Clear(ctx context.Context, accessToken string) error {
	return c.doJSON(ctx, http.MethodDelete, "/cart", accessToken, nil, nil)
}

func (c *Client) doJSON(ctx context.Context, method, path, accessToken string, payload, out any) error {
	var body []byte
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode cart request: %w", err)
		}
		body = data
	}
	resp, err := c.exec.Do(ctx, func(attemptCtx context.Context) (*http.Response, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(attemptCtx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if accessToken != "" {
			req.Header.Set("Authorization", "Bearer "+accessToken)
		}
		return c.httpClient.Do(req)
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthenticated
	}
	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&errResp)
		msg := errResp.Error
		if msg == "" {
			msg = resp.Status
		}
		return fmt.Errorf("cart remote: %s", msg)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode cart response: %w", err)
	}
	return nil
}
