package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"crypto-platform/internal/gateway"
	"crypto-platform/internal/models"
	"crypto-platform/internal/quote"
	"crypto-platform/internal/views"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// TradeViewModel holds data for the trade screen.
type TradeViewModel struct {
	Assets   []models.CryptoAsset
	AssetID  int64
	Currency quote.Currency
	Amount   string
	Preview  *quote.Quote
}

// TradeForm renders the trade screen. The first asset and the stars
// currency are preselected unless the query says otherwise.
func (h *Handlers) TradeForm(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	vm := TradeViewModel{Currency: quote.DefaultCurrency, Amount: q.Get("amount")}

	assets, err := h.gw.ListCryptoAssets(r.Context())
	if err != nil {
		slog.Error("failed to list assets", "error", err)
		h.renderTab(w, r, views.Trade, errorNotification(err), vm)
		return
	}
	vm.Assets = assets
	vm.AssetID = selectAsset(assets, q.Get("asset_id"))
	if c, err := quote.ParseCurrency(q.Get("currency")); err == nil {
		vm.Currency = c
	}

	if asset, ok := quote.Find(assets, vm.AssetID); ok {
		if amount, ok := parseAmount(vm.Amount); ok {
			preview := quote.New(asset, quote.Buy, vm.Currency, amount)
			vm.Preview = &preview
		}
	}
	h.renderTab(w, r, views.Trade, nil, vm)
}

// SubmitTrade computes a quote and reports it. Nothing is sent to the
// backend; settlement happens out of band.
func (h *Handlers) SubmitTrade(w http.ResponseWriter, r *http.Request) {
	side, err := quote.ParseSide(chi.URLParam(r, "side"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return
	}

	vm := TradeViewModel{Currency: quote.DefaultCurrency, Amount: strings.TrimSpace(r.FormValue("amount"))}
	if c, err := quote.ParseCurrency(r.FormValue("currency")); err == nil {
		vm.Currency = c
	}

	assets, err := h.gw.ListCryptoAssets(r.Context())
	if err != nil {
		slog.Error("failed to list assets", "error", err)
		h.renderTab(w, r, views.Trade, errorNotification(err), vm)
		return
	}
	vm.Assets = assets

	id, _ := strconv.ParseInt(r.FormValue("asset_id"), 10, 64)
	asset, found := quote.Find(assets, id)
	amount, valid := parseAmount(vm.Amount)
	if !found || !valid {
		if found {
			vm.AssetID = asset.ID
		} else {
			vm.AssetID = selectAsset(assets, "")
		}
		h.renderTab(w, r, views.Trade, errorNotification(gateway.ValidationError("trade", gateway.MsgFillAllFields)), vm)
		return
	}

	q := quote.New(asset, side, vm.Currency, amount)
	notice := q.Notice(h.contact)
	slog.Info("trade quoted", "side", side, "symbol", asset.Symbol, "currency", vm.Currency, "amount", amount.String(), "total", q.Total.String())

	vm.AssetID = asset.ID
	vm.Amount = ""
	h.renderTab(w, r, views.Trade, &Notification{Title: notice.Title, Message: notice.Message}, vm)
}

// selectAsset resolves the requested asset id, falling back to the first
// catalog entry.
func selectAsset(assets []models.CryptoAsset, raw string) int64 {
	if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if _, ok := quote.Find(assets, id); ok {
			return id
		}
	}
	if len(assets) > 0 {
		return assets[0].ID
	}
	return 0
}

// parseAmount accepts a strictly positive decimal.
func parseAmount(raw string) (decimal.Decimal, bool) {
	if raw == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(raw)
	if err != nil || !d.IsPositive() {
		return decimal.Zero, false
	}
	return d, true
}
