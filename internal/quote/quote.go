// Package quote prices a prospective trade. Nothing here executes a trade.
package quote

import (
	"fmt"
	"strings"

	"crypto-platform/internal/models"

	"github.com/shopspring/decimal"
)

// Currency is what the user pays or receives.
type Currency string

const (
	USD   Currency = "usd"
	Stars Currency = "stars"
)

// DefaultCurrency is preselected on the trade screen.
const DefaultCurrency = Stars

// Side is the direction of a trade.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)


// ParseCurrency accepts "usd" or "stars".
func ParseCurrency(s string) (Currency, error) {
	switch Currency(strings.ToLower(strings.TrimSpace(s))) {
	case USD:
		return USD, nil
	case Stars:
		return Stars, nil
	}
	return "", fmt.Errorf("unknown currency %q", s)
}

// ParseSide accepts "buy" or "sell".
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToLower(strings.TrimSpace(s))) {
	case Buy:
		return Buy, nil
	case Sell:
		return Sell, nil
	}
	return "", fmt.Errorf("unknown side %q", s)
}

// Symbol is the display suffix for amounts in c.
func (c Currency) Symbol() string {
	if c == Stars {
		return "⭐"
	}
	return "$"
}

// UnitPrice is the asset's price in c.
func UnitPrice(asset models.CryptoAsset, c Currency) decimal.Decimal {
	if c == Stars {
		return asset.PriceStars
	}
	return asset.PriceUSD
}

// Quote is a computed, display-only price preview.
type Quote struct {
	Asset     models.CryptoAsset
	Side      Side
	Currency  Currency
	Amount    decimal.Decimal
	UnitPrice decimal.Decimal
	Total     decimal.Decimal
}

// New computes total = amount * unit price.
func New(asset models.CryptoAsset, side Side, c Currency, amount decimal.Decimal) Quote {
	unit := UnitPrice(asset, c)
	return Quote{
		Asset:     asset,
		Side:      side,
		Currency:  c,
		Amount:    amount,
		UnitPrice: unit,
		Total:     amount.Mul(unit),
	}
}

// Notice is the user-facing outcome of submitting a quote.
type Notice struct {
	Title   string
	Message string
}

// Notice renders the submission message. Stars trades are settled by hand,
// so the message names contact; USD trades echo the computed total.
func (q Quote) Notice(contact string) Notice {
	if q.Currency == Stars {
		title := "Buy with Telegram Stars"
		if q.Side == Sell {
			title = "Sell for Telegram Stars"
		}
		return Notice{
			Title:   title,
			Message: fmt.Sprintf("To pay %s ⭐ message %s on Telegram", q.Total.StringFixed(2), contact),
		}
	}
	title := "Buy"
	if q.Side == Sell {
		title = "Sell"
	}
	return Notice{
		Title:   title,
		Message: fmt.Sprintf("%s %s for $%s", q.Amount.String(), q.Asset.Symbol, q.Total.StringFixed(2)),
	}
}

// Find returns the asset with id from catalog.
func Find(catalog []models.CryptoAsset, id int64) (models.CryptoAsset, bool) {
	for _, a := range catalog {
		if a.ID == id {
			return a, true
		}
	}
	return models.CryptoAsset{}, false
}

// FindSymbol returns the asset whose symbol matches, case-insensitively.
func FindSymbol(catalog []models.CryptoAsset, symbol string) (models.CryptoAsset, bool) {
	for _, a := range catalog {
		if strings.EqualFold(a.Symbol, symbol) {
			return a, true
		}
	}
	return models.CryptoAsset{}, false
}
