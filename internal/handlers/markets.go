package handlers

import (
	"fmt"
	"log/slog"
	"net/http"

	"crypto-platform/internal/chart"
	"crypto-platform/internal/models"
	"crypto-platform/internal/views"
)

// MarketRow is one asset line on the markets screen.
type MarketRow struct {
	Asset      models.CryptoAsset
	PriceUSD   string
	PriceStars string
	Sparkline  string
	Area       string
	Change     string
	Up         bool
}

// MarketsViewModel holds data for the markets screen.
type MarketsViewModel struct {
	Rows []MarketRow
}

// Markets renders the catalog with synthetic trend data.
func (h *Handlers) Markets(w http.ResponseWriter, r *http.Request) {
	assets, err := h.gw.ListCryptoAssets(r.Context())
	if err != nil {
		slog.Error("failed to list assets", "error", err)
		h.renderTab(w, r, views.Markets, errorNotification(err), MarketsViewModel{})
		return
	}
	var note *Notification
	if r.URL.Query().Get(welcomeParam) != "" {
		note = successNotification("Welcome, " + GetUserFromContext(r).Username + "!")
	}
	h.renderTab(w, r, views.Markets, note, MarketsViewModel{Rows: h.marketRows(assets)})
}

func (h *Handlers) marketRows(assets []models.CryptoAsset) []MarketRow {
	rows := make([]MarketRow, 0, len(assets))
	for _, a := range assets {
		points := chart.Polyline(h.charts.Series(chart.DefaultPoints))
		change := h.charts.Change()
		rows = append(rows, MarketRow{
			Asset:      a,
			PriceUSD:   a.PriceUSD.StringFixed(2),
			PriceStars: a.PriceStars.StringFixed(2),
			Sparkline:  points,
			Area:       chart.Area(points),
			Change:     fmt.Sprintf("%+.2f%%", change),
			Up:         change >= 0,
		})
	}
	return rows
}
