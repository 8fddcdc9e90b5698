package handlers

import (
	"context"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"crypto-platform/internal/apitest"
	"crypto-platform/internal/chart"
	"crypto-platform/internal/gateway"
	"crypto-platform/internal/session"
	"crypto-platform/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type HandlersTestSuite struct {
	suite.Suite
	api      *apitest.Server
	db       *storage.DB
	sessions *session.Store
	router   http.Handler
	btc      int64
	eth      int64
}

func (suite *HandlersTestSuite) SetupTest() {
	suite.api = apitest.NewServer()
	suite.btc = suite.api.AddAsset("Bitcoin", "BTC", 43000.5, 100)
	suite.eth = suite.api.AddAsset("Ethereum", "ETH", 2600, 25)

	db, err := storage.NewDB(":memory:")
	require.NoError(suite.T(), err, "failed to create test database")
	suite.db = db
	suite.sessions = session.NewStore(db, time.Hour)

	gw := gateway.New(gateway.Endpoints{
		Auth:   suite.api.AuthURL(),
		Crypto: suite.api.CryptoURL(),
		Admin:  suite.api.AdminURL(),
	})
	h := NewHandlers(suite.sessions, gw, Options{
		TemplateDir:  "../../web/templates",
		TradeContact: "@desk",
		Charts:       chart.NewGenerator(rand.New(rand.NewPCG(1, 2))),
	})
	r := chi.NewRouter()
	r.Use(h.LoadSession)
	h.Routes(r)
	suite.router = r
}

func (suite *HandlersTestSuite) TearDownTest() {
	suite.api.Close()
	if suite.db != nil {
		suite.db.Close()
	}
}

func (suite *HandlersTestSuite) do(method, path string, form url.Values, cookie *http.Cookie) *httptest.ResponseRecorder {
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, path, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, path, http.NoBody)
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)
	return w
}

func sessionCookie(w *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == SessionCookieName && c.Value != "" {
			return c
		}
	}
	return nil
}

func (suite *HandlersTestSuite) login(username, password string) *http.Cookie {
	w := suite.do(http.MethodPost, "/login", url.Values{"username": {username}, "password": {password}}, nil)
	require.Equal(suite.T(), http.StatusFound, w.Code, w.Body.String())
	cookie := sessionCookie(w)
	require.NotNil(suite.T(), cookie, "login should set a session cookie")
	return cookie
}

func (suite *HandlersTestSuite) loginTrader() *http.Cookie {
	suite.api.AddUser("alice", "secret", false)
	return suite.login("alice", "secret")
}

func (suite *HandlersTestSuite) loginAdmin() *http.Cookie {
	suite.api.AddUser("root", "toor", true)
	return suite.login("root", "toor")
}

func (suite *HandlersTestSuite) TestRootRedirectsByState() {
	w := suite.do(http.MethodGet, "/", nil, nil)
	assert.Equal(suite.T(), http.StatusFound, w.Code)
	assert.Equal(suite.T(), "/login", w.Header().Get("Location"))

	w = suite.do(http.MethodGet, "/", nil, suite.loginTrader())
	assert.Equal(suite.T(), http.StatusFound, w.Code)
	assert.Equal(suite.T(), "/markets", w.Header().Get("Location"))
}

func (suite *HandlersTestSuite) TestScreensRequireSession() {
	for _, path := range []string{"/markets", "/trade", "/profile", "/admin"} {
		w := suite.do(http.MethodGet, path, nil, nil)
		assert.Equal(suite.T(), http.StatusFound, w.Code, path)
		assert.Equal(suite.T(), "/login", w.Header().Get("Location"), path)
	}
}

func (suite *HandlersTestSuite) TestLoginEmptyFieldsSendsNothing() {
	w := suite.do(http.MethodPost, "/login", url.Values{"username": {"alice"}, "password": {""}}, nil)

	assert.Equal(suite.T(), http.StatusOK, w.Code)
	assert.Contains(suite.T(), w.Body.String(), "Username and password are required")
	assert.Empty(suite.T(), suite.api.Requests("auth"))
	assert.Nil(suite.T(), sessionCookie(w))
}

func (suite *HandlersTestSuite) TestLoginShowsServerMessage() {
	suite.api.AddUser("alice", "secret", false)

	w := suite.do(http.MethodPost, "/login", url.Values{"username": {"alice"}, "password": {"wrong"}}, nil)

	assert.Equal(suite.T(), http.StatusOK, w.Code)
	assert.Contains(suite.T(), w.Body.String(), "Invalid credentials")
	assert.Nil(suite.T(), sessionCookie(w))
}

func (suite *HandlersTestSuite) TestLoginBlockedUser() {
	id := suite.api.AddUser("alice", "secret", false)
	suite.api.SetBlocked(id, true)

	w := suite.do(http.MethodPost, "/login", url.Values{"username": {"alice"}, "password": {"secret"}}, nil)

	assert.Contains(suite.T(), w.Body.String(), "User is blocked")
}

func (suite *HandlersTestSuite) TestLoginUnreachableBackend() {
	suite.api.Close()

	w := suite.do(http.MethodPost, "/login", url.Values{"username": {"alice"}, "password": {"secret"}}, nil)

	assert.Equal(suite.T(), http.StatusOK, w.Code)
	assert.Contains(suite.T(), w.Body.String(), gateway.MsgUnreachable)
}

func (suite *HandlersTestSuite) TestLoginPersistsSession() {
	id := suite.api.AddUser("alice", "secret", false)
	cookie := suite.login("alice", "secret")

	assert.True(suite.T(), cookie.HttpOnly)
	sess, ok := suite.sessions.Load(context.Background(), cookie.Value)
	require.True(suite.T(), ok)
	assert.Equal(suite.T(), id, sess.ID)
	assert.Equal(suite.T(), "alice", sess.Username)
	assert.False(suite.T(), sess.IsAdmin)
	assert.Contains(suite.T(), string(sess.Raw), `"username":"alice"`)
}

func (suite *HandlersTestSuite) TestRegisterAndDuplicate() {
	form := url.Values{"mode": {"register"}, "username": {"bob"}, "password": {"pw"}}

	w := suite.do(http.MethodPost, "/login", form, nil)
	assert.Equal(suite.T(), http.StatusFound, w.Code)
	assert.NotNil(suite.T(), sessionCookie(w))

	w = suite.do(http.MethodPost, "/login", form, nil)
	assert.Equal(suite.T(), http.StatusOK, w.Code)
	assert.Contains(suite.T(), w.Body.String(), "User already exists")
}

func (suite *HandlersTestSuite) TestLoginGreetsOnLanding() {
	suite.api.AddUser("alice", "secret", false)

	w := suite.do(http.MethodPost, "/login", url.Values{"username": {"alice"}, "password": {"secret"}}, nil)
	require.Equal(suite.T(), http.StatusFound, w.Code)
	assert.Equal(suite.T(), "/markets?welcome=1", w.Header().Get("Location"))

	cookie := sessionCookie(w)
	w = suite.do(http.MethodGet, w.Header().Get("Location"), nil, cookie)
	assert.Contains(suite.T(), w.Body.String(), "Welcome, alice!")

	w = suite.do(http.MethodGet, "/markets", nil, cookie)
	assert.NotContains(suite.T(), w.Body.String(), "Welcome, alice!", "the greeting is shown once")
}

func (suite *HandlersTestSuite) TestLogoutClearsSession() {
	cookie := suite.loginTrader()

	w := suite.do(http.MethodPost, "/logout", nil, cookie)
	assert.Equal(suite.T(), http.StatusFound, w.Code)
	assert.Equal(suite.T(), "/login", w.Header().Get("Location"))

	_, ok := suite.sessions.Load(context.Background(), cookie.Value)
	assert.False(suite.T(), ok)

	w = suite.do(http.MethodGet, "/markets", nil, cookie)
	assert.Equal(suite.T(), http.StatusFound, w.Code)
}

func (suite *HandlersTestSuite) TestMarketsListsCatalog() {
	w := suite.do(http.MethodGet, "/markets", nil, suite.loginTrader())

	require.Equal(suite.T(), http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(suite.T(), body, `data-symbol="BTC"`)
	assert.Contains(suite.T(), body, `data-symbol="ETH"`)
	assert.Contains(suite.T(), body, "$43000.50")
	assert.Contains(suite.T(), body, "<polyline")
	assert.NotContains(suite.T(), body, `data-tab="admin"`, "traders are not offered the admin tab")
}

func (suite *HandlersTestSuite) TestMarketsBackendFailure() {
	cookie := suite.loginTrader()
	suite.api.Close()

	w := suite.do(http.MethodGet, "/markets", nil, cookie)

	assert.Equal(suite.T(), http.StatusOK, w.Code)
	assert.Contains(suite.T(), w.Body.String(), gateway.MsgUnreachable)
}

func (suite *HandlersTestSuite) TestHTMXRendersContentOnly() {
	cookie := suite.loginTrader()
	req := httptest.NewRequest(http.MethodGet, "/markets", http.NoBody)
	req.AddCookie(cookie)
	req.Header.Set("HX-Request", "true")
	w := httptest.NewRecorder()

	suite.router.ServeHTTP(w, req)

	assert.Equal(suite.T(), http.StatusOK, w.Code)
	assert.NotContains(suite.T(), w.Body.String(), "<html")
	assert.Contains(suite.T(), w.Body.String(), `data-symbol="BTC"`)
}

func (suite *HandlersTestSuite) TestTradeDefaults() {
	w := suite.do(http.MethodGet, "/trade", nil, suite.loginTrader())

	require.Equal(suite.T(), http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(suite.T(), body, `<option value="1" selected>BTC`)
	assert.Contains(suite.T(), body, `value="stars" checked`)
}

func (suite *HandlersTestSuite) TestTradePreview() {
	w := suite.do(http.MethodGet, "/trade?asset_id=2&currency=usd&amount=3", nil, suite.loginTrader())

	body := w.Body.String()
	assert.Contains(suite.T(), body, `<option value="2" selected>ETH`)
	assert.Contains(suite.T(), body, "total 7800.00 $")
}

func (suite *HandlersTestSuite) TestTradeAmountRefreshesOnlyPreview() {
	req := httptest.NewRequest(http.MethodGet, "/trade?asset_id=2&currency=usd&amount=3", http.NoBody)
	req.Header.Set("HX-Request", "true")
	req.AddCookie(suite.loginTrader())
	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)

	require.Equal(suite.T(), http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(suite.T(), body, `id="trade-amount"`)
	assert.Contains(suite.T(), body, `hx-target="#trade-preview" hx-select="#trade-preview"`)
	assert.Contains(suite.T(), body, `<div id="trade-preview">`)
	assert.Contains(suite.T(), body, "total 7800.00 $")
}

func (suite *HandlersTestSuite) TestTradeStarsNoticeNamesContact() {
	form := url.Values{"asset_id": {"1"}, "currency": {"stars"}, "amount": {"2"}}

	w := suite.do(http.MethodPost, "/trade/buy", form, suite.loginTrader())

	require.Equal(suite.T(), http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(suite.T(), body, "Buy with Telegram Stars")
	assert.Contains(suite.T(), body, "To pay 200.00 ⭐ message @desk on Telegram")
	assert.Contains(suite.T(), body, `name="amount" inputmode="decimal" value=""`, "amount is cleared")
	assert.Empty(suite.T(), suite.api.Mutations(), "trading never mutates")
}

func (suite *HandlersTestSuite) TestTradeUSDNoticeEchoesTotal() {
	form := url.Values{"asset_id": {"1"}, "currency": {"usd"}, "amount": {"2"}}

	w := suite.do(http.MethodPost, "/trade/sell", form, suite.loginTrader())

	body := w.Body.String()
	assert.Contains(suite.T(), body, "<strong>Sell</strong>")
	assert.Contains(suite.T(), body, "2 BTC for $86001.00")
	assert.Empty(suite.T(), suite.api.Mutations())
}

func (suite *HandlersTestSuite) TestTradeMissingAmount() {
	form := url.Values{"asset_id": {"1"}, "currency": {"stars"}, "amount": {""}}

	w := suite.do(http.MethodPost, "/trade/buy", form, suite.loginTrader())

	assert.Equal(suite.T(), http.StatusOK, w.Code)
	assert.Contains(suite.T(), w.Body.String(), gateway.MsgFillAllFields)
	assert.NotContains(suite.T(), w.Body.String(), "Buy with Telegram Stars")
	assert.NotContains(suite.T(), w.Body.String(), "To pay")
	assert.Empty(suite.T(), suite.api.Mutations())
}

func (suite *HandlersTestSuite) TestTradeUnknownSide() {
	w := suite.do(http.MethodPost, "/trade/hold", url.Values{"amount": {"1"}}, suite.loginTrader())
	assert.Equal(suite.T(), http.StatusNotFound, w.Code)
}

func (suite *HandlersTestSuite) TestProfileValuesSamplePortfolio() {
	w := suite.do(http.MethodGet, "/profile", nil, suite.loginTrader())

	require.Equal(suite.T(), http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(suite.T(), body, "alice")
	assert.Contains(suite.T(), body, "sample data")
	// 0.5 BTC at the live catalog price, SOL at its fallback.
	assert.Contains(suite.T(), body, "$21500.25")
	assert.Contains(suite.T(), body, "(estimate)")
}

func (suite *HandlersTestSuite) TestAdminForbiddenForTraders() {
	cookie := suite.loginTrader()

	w := suite.do(http.MethodGet, "/admin", nil, cookie)
	assert.Equal(suite.T(), http.StatusForbidden, w.Code)

	w = suite.do(http.MethodPost, "/admin/balance", url.Values{"user_id": {"1"}, "crypto_id": {"1"}, "amount": {"5"}}, cookie)
	assert.Equal(suite.T(), http.StatusForbidden, w.Code)
	assert.Empty(suite.T(), suite.api.Mutations())
}

func (suite *HandlersTestSuite) TestAdminPanelListsUsers() {
	suite.api.AddUser("alice", "secret", false)
	cookie := suite.loginAdmin()

	w := suite.do(http.MethodGet, "/admin", nil, cookie)

	require.Equal(suite.T(), http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(suite.T(), body, `data-user="alice"`)
	assert.NotContains(suite.T(), body, `data-user="root"`)
	assert.Contains(suite.T(), body, `data-tab="admin"`)
}

func (suite *HandlersTestSuite) TestAdminBlockAndUnblock() {
	id := suite.api.AddUser("alice", "secret", false)
	cookie := suite.loginAdmin()

	w := suite.do(http.MethodPost, "/admin/users/1/block", nil, cookie)
	require.Equal(suite.T(), http.StatusOK, w.Code)
	assert.Contains(suite.T(), w.Body.String(), "User blocked")
	u, _ := suite.api.User(id)
	assert.True(suite.T(), u.IsBlocked)
	assert.Contains(suite.T(), w.Body.String(), "/admin/users/1/unblock", "list is re-fetched")

	w = suite.do(http.MethodPost, "/admin/users/1/unblock", nil, cookie)
	assert.Contains(suite.T(), w.Body.String(), "User unblocked")
	u, _ = suite.api.User(id)
	assert.False(suite.T(), u.IsBlocked)
}

func (suite *HandlersTestSuite) TestAdminBalanceRequiresAllFields() {
	suite.api.AddUser("alice", "secret", false)
	cookie := suite.loginAdmin()

	w := suite.do(http.MethodPost, "/admin/balance", url.Values{"user_id": {"1"}, "crypto_id": {""}, "amount": {"5"}}, cookie)

	assert.Contains(suite.T(), w.Body.String(), gateway.MsgFillAllFields)
	assert.Contains(suite.T(), w.Body.String(), `name="amount" inputmode="decimal" value="5"`, "form values are kept")
	assert.Empty(suite.T(), suite.api.Mutations())
}

func (suite *HandlersTestSuite) TestAdminBalanceRejectsNonNumericAmount() {
	suite.api.AddUser("alice", "secret", false)
	cookie := suite.loginAdmin()

	for _, amount := range []string{"abc", "12abc"} {
		w := suite.do(http.MethodPost, "/admin/balance", url.Values{"user_id": {"1"}, "crypto_id": {"1"}, "amount": {amount}}, cookie)

		assert.Contains(suite.T(), w.Body.String(), msgAmountNotNumber, amount)
		assert.NotContains(suite.T(), w.Body.String(), gateway.MsgFillAllFields, amount)
	}
	assert.Empty(suite.T(), suite.api.Mutations())
}

func (suite *HandlersTestSuite) TestAdminBalanceAdjusts() {
	alice := suite.api.AddUser("alice", "secret", false)
	cookie := suite.loginAdmin()

	w := suite.do(http.MethodPost, "/admin/balance", url.Values{"user_id": {"1"}, "crypto_id": {"2"}, "amount": {"5"}}, cookie)
	assert.Contains(suite.T(), w.Body.String(), "User balance updated")

	w = suite.do(http.MethodPost, "/admin/balance", url.Values{"user_id": {"1"}, "crypto_id": {"2"}, "amount": {"-2"}}, cookie)
	assert.Contains(suite.T(), w.Body.String(), "User balance updated")

	assert.InDelta(suite.T(), 3.0, suite.api.Balance(alice, suite.eth), 1e-9)
}

func (suite *HandlersTestSuite) TestAdminCreateAsset() {
	cookie := suite.loginAdmin()
	form := url.Values{"name": {"Litecoin"}, "symbol": {"ltc"}, "price_usd": {"70.5"}, "price_stars": {"12"}}

	w := suite.do(http.MethodPost, "/admin/assets", form, cookie)

	require.Equal(suite.T(), http.StatusOK, w.Code)
	assert.Contains(suite.T(), w.Body.String(), "New cryptocurrency added")
	assert.Contains(suite.T(), w.Body.String(), `data-symbol="LTC"`)
	assets := suite.api.Assets()
	require.Len(suite.T(), assets, 3)
	assert.Equal(suite.T(), "LTC", assets[2].Symbol)
	assert.Equal(suite.T(), float64(gateway.DefaultTotalSupply), assets[2].TotalSupply)
}

func (suite *HandlersTestSuite) TestAdminCreateAssetValidation() {
	cookie := suite.loginAdmin()
	form := url.Values{"name": {"Litecoin"}, "symbol": {"ltc"}, "price_usd": {"abc"}, "price_stars": {"12"}}

	w := suite.do(http.MethodPost, "/admin/assets", form, cookie)

	assert.Contains(suite.T(), w.Body.String(), gateway.MsgFillAllFields)
	assert.Contains(suite.T(), w.Body.String(), `value="Litecoin"`)
	assert.Empty(suite.T(), suite.api.Mutations())
}

func (suite *HandlersTestSuite) TestAdminUpdatePrice() {
	cookie := suite.loginAdmin()

	w := suite.do(http.MethodPost, "/admin/assets/2/price", url.Values{"price_usd": {"3000"}, "price_stars": {"30"}}, cookie)

	assert.Contains(suite.T(), w.Body.String(), "Price updated")
	assets := suite.api.Assets()
	assert.Equal(suite.T(), 3000.0, assets[1].PriceUSD)
	assert.Equal(suite.T(), 30.0, assets[1].PriceStars)
}

func (suite *HandlersTestSuite) TestSessionRenewedPastHalfLife() {
	cookie := suite.loginTrader()
	require.NoError(suite.T(), suite.db.RenewSession(context.Background(), cookie.Value, time.Now().Add(10*time.Minute)))

	w := suite.do(http.MethodGet, "/markets", nil, cookie)

	require.Equal(suite.T(), http.StatusOK, w.Code)
	renewed := sessionCookie(w)
	require.NotNil(suite.T(), renewed, "cookie should be refreshed")
	assert.Greater(suite.T(), renewed.MaxAge, int((30 * time.Minute).Seconds()))
}

func TestHandlersTestSuite(t *testing.T) {
	suite.Run(t, new(HandlersTestSuite))
}
