// Package gateway is the only code that talks to the trading platform's
// REST endpoints.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"crypto-platform/internal/models"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultTotalSupply is attached to every asset the front-end creates.
const DefaultTotalSupply int64 = 1_000_000_000

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 4 << 20

// Endpoints are the three logical backend URLs.
type Endpoints struct {
	Auth   string
	Crypto string
	Admin  string
}

// AuthMode selects login or registration.
type AuthMode string

const (
	ModeLogin    AuthMode = "login"
	ModeRegister AuthMode = "register"
)

// ParseAuthMode maps form input to an AuthMode, defaulting to login.
func ParseAuthMode(s string) AuthMode {
	if AuthMode(strings.ToLower(strings.TrimSpace(s))) == ModeRegister {
		return ModeRegister
	}
	return ModeLogin
}

// IdentitySigner produces a proof of identity for privileged calls.
type IdentitySigner interface {
	Sign(userID int64, isAdmin bool) (string, error)
}

// Requester identifies the session on whose behalf an admin call is made.
type Requester struct {
	UserID  int64
	IsAdmin bool
}

// RequesterOf builds a Requester from a session.
func RequesterOf(s *models.Session) Requester {
	return Requester{UserID: s.ID, IsAdmin: s.IsAdmin}
}

// NewAsset is the input of CreateCryptoAsset.
type NewAsset struct {
	Name       string
	Symbol     string
	PriceUSD   decimal.Decimal
	PriceStars decimal.Decimal
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout bounds each call. Zero leaves only the caller's context.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithIdentitySigner attaches a bearer token to every admin call.
func WithIdentitySigner(s IdentitySigner) Option {
	return func(c *Client) { c.signer = s }
}

// Client performs one HTTP round trip per operation. It never retries.
type Client struct {
	endpoints Endpoints
	http      *http.Client
	timeout   time.Duration
	signer    IdentitySigner
}

// New returns a Client for endpoints.
func New(endpoints Endpoints, opts ...Option) *Client {
	c := &Client{endpoints: endpoints, http: http.DefaultClient}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type authRequest struct {
	Action   AuthMode `json:"action"`
	Username string   `json:"username"`
	Password string   `json:"password"`
}

// Authenticate logs in or registers and returns the resulting session.
func (c *Client) Authenticate(ctx context.Context, mode AuthMode, username, password string) (*models.Session, error) {
	const op = "authenticate"
	if username == "" || password == "" {
		return nil, ValidationError(op, MsgFillAllFields)
	}
	body, err := c.do(ctx, op, http.MethodPost, c.endpoints.Auth, nil, authRequest{
		Action:   mode,
		Username: username,
		Password: password,
	})
	if err != nil {
		return nil, err
	}
	sess, err := models.ParseSession(body)
	if err != nil {
		return nil, &Error{Kind: KindServerRejected, Op: op, Status: http.StatusOK, Err: err}
	}
	return sess, nil
}

// ListCryptoAssets fetches the full catalog in backend order.
func (c *Client) ListCryptoAssets(ctx context.Context) ([]models.CryptoAsset, error) {
	const op = "list crypto assets"
	body, err := c.do(ctx, op, http.MethodGet, c.endpoints.Crypto, nil, nil)
	if err != nil {
		return nil, err
	}
	var assets []models.CryptoAsset
	if err := json.Unmarshal(body, &assets); err != nil {
		return nil, &Error{Kind: KindServerRejected, Op: op, Status: http.StatusOK, Err: err}
	}
	return assets, nil
}

type createAssetRequest struct {
	Name        string      `json:"name"`
	Symbol      string      `json:"symbol"`
	PriceUSD    json.Number `json:"price_usd"`
	PriceStars  json.Number `json:"price_stars"`
	TotalSupply int64       `json:"total_supply"`
}

// CreateCryptoAsset adds an asset with the fixed DefaultTotalSupply.
// The symbol is upper-cased.
func (c *Client) CreateCryptoAsset(ctx context.Context, in NewAsset) error {
	const op = "create crypto asset"
	name := strings.TrimSpace(in.Name)
	symbol := strings.ToUpper(strings.TrimSpace(in.Symbol))
	if name == "" || symbol == "" {
		return ValidationError(op, MsgFillAllFields)
	}
	_, err := c.do(ctx, op, http.MethodPost, c.endpoints.Crypto, nil, createAssetRequest{
		Name:        name,
		Symbol:      symbol,
		PriceUSD:    number(in.PriceUSD),
		PriceStars:  number(in.PriceStars),
		TotalSupply: DefaultTotalSupply,
	})
	return err
}

type updatePriceRequest struct {
	ID         int64       `json:"id"`
	PriceUSD   json.Number `json:"price_usd"`
	PriceStars json.Number `json:"price_stars"`
}

// UpdateCryptoPrice replaces both prices of an existing asset.
func (c *Client) UpdateCryptoPrice(ctx context.Context, assetID int64, priceUSD, priceStars decimal.Decimal) error {
	_, err := c.do(ctx, "update crypto price", http.MethodPut, c.endpoints.Crypto, nil, updatePriceRequest{
		ID:         assetID,
		PriceUSD:   number(priceUSD),
		PriceStars: number(priceStars),
	})
	return err
}

// ListUsers returns the users visible to an admin requester.
func (c *Client) ListUsers(ctx context.Context, requester Requester) ([]models.UserSummary, error) {
	const op = "list users"
	headers, err := c.adminHeaders(op, requester)
	if err != nil {
		return nil, err
	}
	body, err := c.do(ctx, op, http.MethodGet, c.endpoints.Admin, headers, nil)
	if err != nil {
		return nil, err
	}
	var users []models.UserSummary
	if err := json.Unmarshal(body, &users); err != nil {
		return nil, &Error{Kind: KindServerRejected, Op: op, Status: http.StatusOK, Err: err}
	}
	return users, nil
}

type adminAction struct {
	Action   string      `json:"action"`
	UserID   int64       `json:"user_id"`
	CryptoID int64       `json:"crypto_id,omitempty"`
	Amount   json.Number `json:"amount,omitempty"`
}

// SetUserBlocked blocks or unblocks target.
func (c *Client) SetUserBlocked(ctx context.Context, requester Requester, target int64, blocked bool) error {
	action := "unblock"
	if blocked {
		action = "block"
	}
	return c.admin(ctx, action+" user", requester, adminAction{Action: action, UserID: target})
}

// AdjustBalance adds amount (any sign) of asset to target's balance.
func (c *Client) AdjustBalance(ctx context.Context, requester Requester, target, assetID int64, amount decimal.Decimal) error {
	return c.admin(ctx, "adjust balance", requester, adminAction{
		Action:   "add_balance",
		UserID:   target,
		CryptoID: assetID,
		Amount:   number(amount),
	})
}

func (c *Client) admin(ctx context.Context, op string, requester Requester, payload adminAction) error {
	headers, err := c.adminHeaders(op, requester)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, op, http.MethodPost, c.endpoints.Admin, headers, payload)
	return err
}

func (c *Client) adminHeaders(op string, requester Requester) (http.Header, error) {
	h := http.Header{}
	h.Set("X-User-Id", strconv.FormatInt(requester.UserID, 10))
	if c.signer != nil {
		token, err := c.signer.Sign(requester.UserID, requester.IsAdmin)
		if err != nil {
			return nil, &Error{Kind: KindValidation, Op: op, Message: MsgGeneric, Err: err}
		}
		h.Set("Authorization", "Bearer "+token)
	}
	return h, nil
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, op, method, url string, headers http.Header, payload any) ([]byte, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, &Error{Kind: KindValidation, Op: op, Message: MsgGeneric, Err: err}
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Op: op, Err: err}
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", requestID(ctx))

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		slog.Warn("gateway request failed", "op", op, "method", method, "error", err)
		return nil, &Error{Kind: KindNetwork, Op: op, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Op: op, Err: err}
	}

	slog.Debug("gateway request",
		"op", op,
		"method", method,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Error{
			Kind:    KindServerRejected,
			Op:      op,
			Status:  resp.StatusCode,
			Message: serverMessage(body),
		}
	}
	return body, nil
}

// requestID reuses the inbound chi request id so both sides log the same
// value, and mints one otherwise.
func requestID(ctx context.Context) string {
	if id := middleware.GetReqID(ctx); id != "" {
		return id
	}
	return uuid.NewString()
}

func serverMessage(body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return ""
	}
	if eb.Error != "" {
		return eb.Error
	}
	return eb.Message
}

func number(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}

// IsCanceled reports whether err came from a canceled or expired context.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
