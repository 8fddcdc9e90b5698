package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Session is the authenticated identity returned by the auth endpoint.
// Raw holds the verbatim response so fields this package does not know
// about survive a save/load round trip.
type Session struct {
	ID        int64           `json:"id"`
	Username  string          `json:"username"`
	IsAdmin   bool            `json:"is_admin"`
	IsBlocked bool            `json:"is_blocked"`
	Raw       json.RawMessage `json:"-"`
}

// ParseSession decodes an auth response body into a Session.
func ParseSession(data []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	if s.ID == 0 || s.Username == "" {
		return nil, fmt.Errorf("session payload missing id or username")
	}
	s.Raw = append(json.RawMessage(nil), bytes.TrimSpace(data)...)
	return &s, nil
}

// Payload returns the bytes to persist for this session.
func (s *Session) Payload() ([]byte, error) {
	if len(s.Raw) > 0 {
		return s.Raw, nil
	}
	return json.Marshal(s)
}

// CryptoAsset is one entry of the remote catalog.
type CryptoAsset struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Symbol      string          `json:"symbol"`
	PriceUSD    decimal.Decimal `json:"price_usd"`
	PriceStars  decimal.Decimal `json:"price_stars"`
	TotalSupply int64           `json:"total_supply"`
}

// UnmarshalJSON accepts total_supply encoded as a float ("1000000000.0").
func (a *CryptoAsset) UnmarshalJSON(data []byte) error {
	type alias CryptoAsset
	var aux struct {
		alias
		TotalSupply json.Number `json:"total_supply"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*a = CryptoAsset(aux.alias)
	a.TotalSupply = 0
	if aux.TotalSupply != "" {
		d, err := decimal.NewFromString(aux.TotalSupply.String())
		if err != nil {
			return fmt.Errorf("total_supply: %w", err)
		}
		a.TotalSupply = d.IntPart()
	}
	return nil
}

// UserSummary is the admin projection of a platform user.
type UserSummary struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	IsBlocked bool      `json:"is_blocked"`
	CreatedAt Timestamp `json:"created_at"`
}

// Timestamp tolerates the zone-less ISO 8601 values the backend emits.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// UnmarshalJSON parses RFC 3339, zone-less ISO 8601 and null.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == `""` {
		t.Time = time.Time{}
		return nil
	}
	unquoted, err := unquote(s)
	if err != nil {
		return err
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, unquoted); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", unquoted)
}

// MarshalJSON writes RFC 3339, or null for the zero value.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Format(time.RFC3339))
}

func unquote(s string) (string, error) {
	var out string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return "", fmt.Errorf("timestamp must be a string: %w", err)
	}
	return out, nil
}
