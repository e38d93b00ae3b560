package domain

// Book is the denormalized book snapshot carried inside a cart item.
// UnitPriceBase is the canonical USD unit price at the time the item
// was added; FormattedUnitPrice is the display string shown in the UI.
type Book struct {
	ID                 string  `json:"id"`
	Title              string  `json:"title"`
	Author             string  `json:"author"`
	UnitPriceBase      float64 `json:"unitPriceBase"`
	FormattedUnitPrice string  `json:"formattedUnitPrice"`
}

// CartItem pairs a book snapshot with a quantity in 1..99.
type CartItem struct {
	Book     Book `json:"book"`
	Quantity int  `json:"quantity"`
}

// Session holds the opaque token pair issued at sign-in.
type Session struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// TokenKey identifies a session for event de-duplication. Two sessions
// are the same session iff their token keys are equal. The zero value
// means "no session".
type TokenKey struct {
	Access  string
	Refresh string
}

// Key returns the session identity. A nil session maps to the zero key.
func (s *Session) Key() TokenKey {
	if s == nil {
		return TokenKey{}
	}
	return TokenKey{Access: s.AccessToken, Refresh: s.RefreshToken}
}

// Complete reports whether both tokens are present.
func (s *Session) Complete() bool {
	return s != nil && s.AccessToken != "" && s.RefreshToken != ""
}

// AuthEventKind tags the auth events the session synchronizer consumes.
type AuthEventKind string

const (
	EventSignedIn       AuthEventKind = "signed_in"
	EventSignedOut      AuthEventKind = "signed_out"
	EventTokenRefreshed AuthEventKind = "token_refreshed"
)

// AuthEvent is a sign-in, sign-out, or token-refresh notification.
// SignedOut may omit the session.
type AuthEvent struct {
	Kind    AuthEventKind `json:"event"`
	Session *Session      `json:"session,omitempty"`
}

// ShippingAddress is the independently cached address snapshot.
type ShippingAddress struct {
	FullName   string `json:"fullName"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
	Label      string `json:"label,omitempty"`
}

// DefaultCountry is applied when a cached address omits the country.
const DefaultCountry = "IN"

// Normalized returns a copy with the country defaulted when absent.
func (a ShippingAddress) Normalized() ShippingAddress {
	if a.Country == "" {
		a.Country = DefaultCountry
	}
	return a
}
