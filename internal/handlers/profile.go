package handlers

import (
	"log/slog"
	"net/http"

	"crypto-platform/internal/quote"
	"crypto-platform/internal/views"

	"github.com/shopspring/decimal"
)

// Holding is one line of the sample portfolio.
type Holding struct {
	Symbol string
	Name   string
	Amount decimal.Decimal
	Price  decimal.Decimal
	Value  string
	Live   bool
}

// HistoryItem is one line of the sample trade history.
type HistoryItem struct {
	Side   quote.Side
	Symbol string
	Amount string
	Date   string
}

// ProfileViewModel holds data for the profile screen.
type ProfileViewModel struct {
	Holdings []Holding
	Total    string
	History  []HistoryItem
}

// There is no balance endpoint; the portfolio is illustrative.
var sampleHoldings = []struct {
	symbol, name, amount, fallback string
}{
	{"BTC", "Bitcoin", "0.5", "43000"},
	{"ETH", "Ethereum", "2.5", "2600"},
	{"SOL", "Solana", "10", "100"},
}

var sampleHistory = []HistoryItem{
	{Side: quote.Buy, Symbol: "BTC", Amount: "0.5", Date: "2024-01-15"},
	{Side: quote.Buy, Symbol: "ETH", Amount: "2.5", Date: "2024-01-10"},
	{Side: quote.Sell, Symbol: "SOL", Amount: "5", Date: "2024-01-05"},
}

// Profile renders the session identity and the sample portfolio.
func (h *Handlers) Profile(w http.ResponseWriter, r *http.Request) {
	assets, err := h.gw.ListCryptoAssets(r.Context())
	var note *Notification
	if err != nil {
		// Fallback prices still produce a usable screen.
		slog.Warn("failed to list assets for profile", "error", err)
		note = errorNotification(err)
	}

	vm := ProfileViewModel{History: sampleHistory}
	total := decimal.Zero
	for _, s := range sampleHoldings {
		amount := decimal.RequireFromString(s.amount)
		holding := Holding{Symbol: s.symbol, Name: s.name, Amount: amount, Price: decimal.RequireFromString(s.fallback)}
		if a, ok := quote.FindSymbol(assets, s.symbol); ok {
			holding.Name = a.Name
			holding.Price = a.PriceUSD
			holding.Live = true
		}
		value := amount.Mul(holding.Price)
		holding.Value = value.StringFixed(2)
		total = total.Add(value)
		vm.Holdings = append(vm.Holdings, holding)
	}
	vm.Total = total.StringFixed(2)

	h.renderTab(w, r, views.Profile, note, vm)
}
