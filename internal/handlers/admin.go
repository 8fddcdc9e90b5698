package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"crypto-platform/internal/gateway"
	"crypto-platform/internal/models"
	"crypto-platform/internal/views"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

const msgAmountNotNumber = "Amount must be a number"

// BalanceForm is the balance adjustment form state.
type BalanceForm struct {
	UserID  string
	AssetID string
	Amount  string
}

// AssetForm is the new asset form state.
type AssetForm struct {
	Name       string
	Symbol     string
	PriceUSD   string
	PriceStars string
}

// AdminViewModel holds data for the admin screen.
type AdminViewModel struct {
	Users   []models.UserSummary
	Assets  []models.CryptoAsset
	Balance BalanceForm
	Asset   AssetForm
}

// AdminPanel renders the user list and the catalog.
func (h *Handlers) AdminPanel(w http.ResponseWriter, r *http.Request) {
	vm, err := h.loadAdmin(r)
	var note *Notification
	if err != nil {
		note = errorNotification(err)
	}
	h.renderTab(w, r, views.Admin, note, vm)
}

// BlockUser blocks the user named in the path.
func (h *Handlers) BlockUser(w http.ResponseWriter, r *http.Request) {
	h.setBlocked(w, r, true)
}

// UnblockUser unblocks the user named in the path.
func (h *Handlers) UnblockUser(w http.ResponseWriter, r *http.Request) {
	h.setBlocked(w, r, false)
}

func (h *Handlers) setBlocked(w http.ResponseWriter, r *http.Request, blocked bool) {
	target, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}

	requester := gateway.RequesterOf(GetUserFromContext(r))
	if err := h.gw.SetUserBlocked(r.Context(), requester, target, blocked); err != nil {
		slog.Error("failed to change user block state", "target", target, "blocked", blocked, "error", err)
		h.renderAdmin(w, r, errorNotification(err), AdminViewModel{})
		return
	}

	slog.Info("user block state changed", "admin_id", requester.UserID, "target", target, "blocked", blocked)
	message := "User unblocked"
	if blocked {
		message = "User blocked"
	}
	h.renderAdmin(w, r, successNotification(message), AdminViewModel{})
}

// AdjustBalance credits (or debits) a user's balance of one asset.
func (h *Handlers) AdjustBalance(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return
	}
	form := BalanceForm{
		UserID:  strings.TrimSpace(r.FormValue("user_id")),
		AssetID: strings.TrimSpace(r.FormValue("crypto_id")),
		Amount:  strings.TrimSpace(r.FormValue("amount")),
	}

	target, errUser := strconv.ParseInt(form.UserID, 10, 64)
	assetID, errAsset := strconv.ParseInt(form.AssetID, 10, 64)
	if errUser != nil || errAsset != nil || form.Amount == "" {
		h.renderAdmin(w, r, errorNotification(gateway.ValidationError("adjust balance", gateway.MsgFillAllFields)), AdminViewModel{Balance: form})
		return
	}
	// The sign is not checked; negative amounts debit.
	amount, err := decimal.NewFromString(form.Amount)
	if err != nil {
		h.renderAdmin(w, r, errorNotification(gateway.ValidationError("adjust balance", msgAmountNotNumber)), AdminViewModel{Balance: form})
		return
	}

	requester := gateway.RequesterOf(GetUserFromContext(r))
	if err := h.gw.AdjustBalance(r.Context(), requester, target, assetID, amount); err != nil {
		slog.Error("failed to adjust balance", "target", target, "crypto_id", assetID, "error", err)
		h.renderAdmin(w, r, errorNotification(err), AdminViewModel{Balance: form})
		return
	}

	slog.Info("balance adjusted", "admin_id", requester.UserID, "target", target, "crypto_id", assetID, "amount", amount.String())
	h.renderAdmin(w, r, successNotification("User balance updated"), AdminViewModel{})
}

// CreateAsset adds a cryptocurrency to the catalog.
func (h *Handlers) CreateAsset(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return
	}
	form := AssetForm{
		Name:       strings.TrimSpace(r.FormValue("name")),
		Symbol:     strings.ToUpper(strings.TrimSpace(r.FormValue("symbol"))),
		PriceUSD:   strings.TrimSpace(r.FormValue("price_usd")),
		PriceStars: strings.TrimSpace(r.FormValue("price_stars")),
	}

	usd, okUSD := parsePrice(form.PriceUSD)
	stars, okStars := parsePrice(form.PriceStars)
	if form.Name == "" || form.Symbol == "" || !okUSD || !okStars {
		h.renderAdmin(w, r, errorNotification(gateway.ValidationError("create asset", gateway.MsgFillAllFields)), AdminViewModel{Asset: form})
		return
	}

	err := h.gw.CreateCryptoAsset(r.Context(), gateway.NewAsset{
		Name:       form.Name,
		Symbol:     form.Symbol,
		PriceUSD:   usd,
		PriceStars: stars,
	})
	if err != nil {
		slog.Error("failed to create asset", "symbol", form.Symbol, "error", err)
		h.renderAdmin(w, r, errorNotification(err), AdminViewModel{Asset: form})
		return
	}

	slog.Info("asset created", "symbol", form.Symbol)
	h.renderAdmin(w, r, successNotification("New cryptocurrency added"), AdminViewModel{})
}

// UpdatePrice reprices an existing catalog entry.
func (h *Handlers) UpdatePrice(w http.ResponseWriter, r *http.Request) {
	assetID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid asset ID", http.StatusBadRequest)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return
	}

	usd, okUSD := parsePrice(strings.TrimSpace(r.FormValue("price_usd")))
	stars, okStars := parsePrice(strings.TrimSpace(r.FormValue("price_stars")))
	if !okUSD || !okStars {
		h.renderAdmin(w, r, errorNotification(gateway.ValidationError("update price", gateway.MsgFillAllFields)), AdminViewModel{})
		return
	}

	if err := h.gw.UpdateCryptoPrice(r.Context(), assetID, usd, stars); err != nil {
		slog.Error("failed to update price", "crypto_id", assetID, "error", err)
		h.renderAdmin(w, r, errorNotification(err), AdminViewModel{})
		return
	}

	slog.Info("asset repriced", "crypto_id", assetID, "price_usd", usd.String(), "price_stars", stars.String())
	h.renderAdmin(w, r, successNotification("Price updated"), AdminViewModel{})
}

// renderAdmin re-fetches both lists and renders the screen with the given
// form state. A fetch failure takes precedence over a success notification.
func (h *Handlers) renderAdmin(w http.ResponseWriter, r *http.Request, note *Notification, vm AdminViewModel) {
	fresh, err := h.loadAdmin(r)
	vm.Users, vm.Assets = fresh.Users, fresh.Assets
	if err != nil && (note == nil || !note.Error) {
		note = errorNotification(err)
	}
	h.renderTab(w, r, views.Admin, note, vm)
}

func (h *Handlers) loadAdmin(r *http.Request) (AdminViewModel, error) {
	var vm AdminViewModel
	users, err := h.gw.ListUsers(r.Context(), gateway.RequesterOf(GetUserFromContext(r)))
	if err != nil {
		slog.Error("failed to list users", "error", err)
		return vm, err
	}
	vm.Users = users

	assets, err := h.gw.ListCryptoAssets(r.Context())
	if err != nil {
		slog.Error("failed to list assets", "error", err)
		return vm, err
	}
	vm.Assets = assets
	return vm, nil
}

// parsePrice accepts a non-negative decimal.
func parsePrice(raw string) (decimal.Decimal, bool) {
	if raw == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(raw)
	if err != nil || d.IsNegative() {
		return decimal.Zero, false
	}
	return d, true
}
