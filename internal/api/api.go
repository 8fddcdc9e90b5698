// Package api exposes a small JSON surface next to the HTML screens. It
// shares the session cookie with them and never mutates backend state.
package api

import (
	"context"
	"errors"
	"net/http"

	"crypto-platform/internal/gateway"
	"crypto-platform/internal/models"
	"crypto-platform/internal/quote"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// Catalog fetches the asset list.
type Catalog interface {
	ListCryptoAssets(ctx context.Context) ([]models.CryptoAsset, error)
}

// SessionFunc returns the session attached to a request context, or nil.
type SessionFunc func(ctx context.Context) *models.Session

// SessionBody is the public view of the signed-in identity.
type SessionBody struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
}

// AssetBody is a catalog entry. Prices are decimal strings.
type AssetBody struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	PriceUSD    string `json:"price_usd" doc:"Decimal USD price"`
	PriceStars  string `json:"price_stars" doc:"Decimal Telegram Stars price"`
	TotalSupply int64  `json:"total_supply"`
}

// QuoteRequest is the body of POST /api/quote.
type QuoteRequest struct {
	AssetID  int64  `json:"asset_id" required:"true" minimum:"1"`
	Side     string `json:"side,omitempty" enum:"buy,sell" default:"buy"`
	Currency string `json:"currency,omitempty" enum:"usd,stars" default:"stars"`
	Amount   string `json:"amount" required:"true" doc:"Positive decimal amount of the asset"`
}

// QuoteBody is the computed quote and its notification text.
type QuoteBody struct {
	Symbol    string `json:"symbol"`
	Side      string `json:"side"`
	Currency  string `json:"currency"`
	Amount    string `json:"amount"`
	UnitPrice string `json:"unit_price"`
	Total     string `json:"total"`
	Title     string `json:"title"`
	Message   string `json:"message"`
}

type sessionOutput struct {
	Body SessionBody
}

type catalogOutput struct {
	Body struct {
		Assets []AssetBody `json:"assets"`
	}
}

type quoteOutput struct {
	Body QuoteBody
}

// Register mounts the JSON operations and their OpenAPI docs on router.
func Register(router chi.Router, catalog Catalog, sessionOf SessionFunc, contact string) huma.API {
	cfg := huma.DefaultConfig("Crypto Platform API", "1.0.0")
	api := humachi.New(router, cfg)

	huma.Register(api, huma.Operation{OperationID: "get-session", Method: http.MethodGet, Path: "/api/session", Summary: "Current identity", Tags: []string{"Session"}},
		func(ctx context.Context, _ *struct{}) (*sessionOutput, error) {
			sess := sessionOf(ctx)
			if sess == nil {
				return nil, huma.Error401Unauthorized("not signed in")
			}
			return &sessionOutput{Body: SessionBody{ID: sess.ID, Username: sess.Username, IsAdmin: sess.IsAdmin}}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "list-catalog", Method: http.MethodGet, Path: "/api/catalog", Summary: "List tradable assets", Tags: []string{"Catalog"}},
		func(ctx context.Context, _ *struct{}) (*catalogOutput, error) {
			if sessionOf(ctx) == nil {
				return nil, huma.Error401Unauthorized("not signed in")
			}
			assets, err := catalog.ListCryptoAssets(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &catalogOutput{}
			out.Body.Assets = make([]AssetBody, 0, len(assets))
			for _, a := range assets {
				out.Body.Assets = append(out.Body.Assets, AssetBody{
					ID:          a.ID,
					Name:        a.Name,
					Symbol:      a.Symbol,
					PriceUSD:    a.PriceUSD.String(),
					PriceStars:  a.PriceStars.String(),
					TotalSupply: a.TotalSupply,
				})
			}
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "create-quote", Method: http.MethodPost, Path: "/api/quote", Summary: "Price a buy or sell", Tags: []string{"Trade"}},
		func(ctx context.Context, input *struct {
			Body QuoteRequest
		}) (*quoteOutput, error) {
			if sessionOf(ctx) == nil {
				return nil, huma.Error401Unauthorized("not signed in")
			}
			side := quote.Buy
			var err error
			if input.Body.Side != "" {
				if side, err = quote.ParseSide(input.Body.Side); err != nil {
					return nil, huma.Error400BadRequest(err.Error())
				}
			}
			currency := quote.DefaultCurrency
			if input.Body.Currency != "" {
				if currency, err = quote.ParseCurrency(input.Body.Currency); err != nil {
					return nil, huma.Error400BadRequest(err.Error())
				}
			}
			amount, err := decimal.NewFromString(input.Body.Amount)
			if err != nil || !amount.IsPositive() {
				return nil, huma.Error422UnprocessableEntity(gateway.MsgFillAllFields)
			}

			assets, err := catalog.ListCryptoAssets(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			asset, ok := quote.Find(assets, input.Body.AssetID)
			if !ok {
				return nil, huma.Error404NotFound("asset not found")
			}

			q := quote.New(asset, side, currency, amount)
			notice := q.Notice(contact)
			return &quoteOutput{Body: QuoteBody{
				Symbol:    asset.Symbol,
				Side:      string(side),
				Currency:  string(currency),
				Amount:    amount.String(),
				UnitPrice: q.UnitPrice.String(),
				Total:     q.Total.StringFixed(2),
				Title:     notice.Title,
				Message:   notice.Message,
			}}, nil
		})

	return api
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || gateway.IsCanceled(err) {
		return huma.Error503ServiceUnavailable("request canceled")
	}
	switch gateway.KindOf(err) {
	case gateway.KindValidation:
		return huma.Error400BadRequest(gateway.UserMessage(err))
	case gateway.KindNetwork, gateway.KindServerRejected:
		return huma.Error502BadGateway(gateway.UserMessage(err))
	default:
		return huma.Error500InternalServerError(gateway.UserMessage(err))
	}
}
