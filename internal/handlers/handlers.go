package handlers

import (
	"context"
	"html/template"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"crypto-platform/internal/chart"
	"crypto-platform/internal/gateway"
	"crypto-platform/internal/models"
	"crypto-platform/internal/session"
	"crypto-platform/internal/views"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// Context key type to avoid collisions.
type contextKey string

const (
	// UserContextKey is the context key for the authenticated session.
	UserContextKey contextKey = "user"
	tokenContextKey contextKey = "session-token"
	// SessionCookieName is the name of the session cookie.
	SessionCookieName = "session"
)

// Gateway is the subset of the backend client the screens use.
type Gateway interface {
	Authenticate(ctx context.Context, mode gateway.AuthMode, username, password string) (*models.Session, error)
	ListCryptoAssets(ctx context.Context) ([]models.CryptoAsset, error)
	CreateCryptoAsset(ctx context.Context, in gateway.NewAsset) error
	UpdateCryptoPrice(ctx context.Context, assetID int64, priceUSD, priceStars decimal.Decimal) error
	ListUsers(ctx context.Context, requester gateway.Requester) ([]models.UserSummary, error)
	SetUserBlocked(ctx context.Context, requester gateway.Requester, target int64, blocked bool) error
	AdjustBalance(ctx context.Context, requester gateway.Requester, target, assetID int64, amount decimal.Decimal) error
}

// Options configures Handlers.
type Options struct {
	TemplateDir  string
	SecureCookie bool
	TradeContact string
	Charts       *chart.Generator
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	sessions     *session.Store
	gw           Gateway
	templateDir  string
	secureCookie bool
	contact      string
	charts       *chart.Generator
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(sessions *session.Store, gw Gateway, opts Options) *Handlers {
	if opts.Charts == nil {
		opts.Charts = chart.NewGenerator(nil)
	}
	return &Handlers{
		sessions:     sessions,
		gw:           gw,
		templateDir:  opts.TemplateDir,
		secureCookie: opts.SecureCookie,
		contact:      opts.TradeContact,
		charts:       opts.Charts,
	}
}

// Routes registers the screen routes on r. LoadSession must already wrap r.
func (h *Handlers) Routes(r chi.Router) {
	r.Get("/", h.Root)
	r.Get("/login", h.LoginForm)
	r.Post("/login", h.Login)
	r.Post("/logout", h.Logout)

	r.Group(func(r chi.Router) {
		r.Use(h.RequireSession)

		r.Get("/markets", h.Markets)
		r.Get("/trade", h.TradeForm)
		r.Post("/trade/{side}", h.SubmitTrade)
		r.Get("/profile", h.Profile)

		r.Route("/admin", func(r chi.Router) {
			r.Use(h.RequireTab(views.Admin))
			r.Get("/", h.AdminPanel)
			r.Post("/users/{id}/block", h.BlockUser)
			r.Post("/users/{id}/unblock", h.UnblockUser)
			r.Post("/balance", h.AdjustBalance)
			r.Post("/assets", h.CreateAsset)
			r.Post("/assets/{id}/price", h.UpdatePrice)
		})
	})
}

// GetUserFromContext retrieves the authenticated session from request context.
func GetUserFromContext(r *http.Request) *models.Session {
	return SessionFromContext(r.Context())
}

// SessionFromContext retrieves the authenticated session from ctx.
func SessionFromContext(ctx context.Context) *models.Session {
	if s, ok := ctx.Value(UserContextKey).(*models.Session); ok {
		return s
	}
	return nil
}

func tokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(tokenContextKey).(string)
	return token
}

// LoadSession attaches the persisted session, if any, to the request.
// It also implements rolling sessions: past the halfway point of its
// lifetime a session is renewed.
func (h *Handlers) LoadSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookieName)
		if err != nil || cookie.Value == "" {
			next.ServeHTTP(w, r)
			return
		}

		entry, ok := h.sessions.Lookup(r.Context(), cookie.Value)
		if !ok {
			// Invalid or expired session, clear the cookie
			h.clearSessionCookie(w)
			next.ServeHTTP(w, r)
			return
		}

		expiresAt, renewed, err := h.sessions.Renew(r.Context(), entry)
		if err != nil {
			slog.Warn("session renewal failed", "user_id", entry.Session.ID, "error", err)
		} else if renewed {
			h.setSessionCookie(w, entry.Token, expiresAt)
		}

		ctx := context.WithValue(r.Context(), UserContextKey, entry.Session)
		ctx = context.WithValue(ctx, tokenContextKey, entry.Token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireSession redirects unauthenticated requests to the login screen.
func (h *Handlers) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if views.StateOf(GetUserFromContext(r)) == views.Unauthenticated {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireTab rejects sessions that are not offered tab.
func (h *Handlers) RequireTab(tab views.Tab) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !views.Allowed(GetUserFromContext(r), tab) {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Root sends the browser to the screen matching its router state.
func (h *Handlers) Root(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, views.Landing(GetUserFromContext(r)), http.StatusFound)
}

// LoginViewModel holds data for the auth screen.
type LoginViewModel struct {
	Register bool
	Username string
	Error    string
}

// welcomeParam marks the first screen after sign-in so it can greet the user.
const welcomeParam = "welcome"

// LoginForm renders the auth screen.
func (h *Handlers) LoginForm(w http.ResponseWriter, r *http.Request) {
	// If already logged in, go to the default tab
	if GetUserFromContext(r) != nil {
		http.Redirect(w, r, views.DefaultTab.Path(), http.StatusFound)
		return
	}
	mode := gateway.ParseAuthMode(r.URL.Query().Get("mode"))
	h.renderAuth(w, r, LoginViewModel{Register: mode == gateway.ModeRegister})
}

// Login handles the login and registration form submission.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderAuth(w, r, LoginViewModel{Error: "Invalid form submission"})
		return
	}

	mode := gateway.ParseAuthMode(r.FormValue("mode"))
	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")
	vm := LoginViewModel{Register: mode == gateway.ModeRegister, Username: username}

	if username == "" || password == "" {
		vm.Error = "Username and password are required"
		h.renderAuth(w, r, vm)
		return
	}

	sess, err := h.gw.Authenticate(r.Context(), mode, username, password)
	if err != nil {
		slog.Info("authentication failed", "mode", mode, "username", username, "kind", gateway.KindOf(err).String())
		vm.Error = gateway.UserMessage(err)
		h.renderAuth(w, r, vm)
		return
	}

	token, err := h.sessions.Save(r.Context(), tokenFromContext(r.Context()), sess)
	if err != nil {
		slog.Error("failed to save session", "user_id", sess.ID, "error", err)
		vm.Error = "An error occurred. Please try again."
		h.renderAuth(w, r, vm)
		return
	}

	h.setSessionCookie(w, token, time.Now().Add(h.sessions.TTL()))
	slog.Info("user signed in", "mode", mode, "user_id", sess.ID, "admin", sess.IsAdmin)
	http.Redirect(w, r, views.DefaultTab.Path()+"?"+welcomeParam+"=1", http.StatusFound)
}

// Logout handles user logout.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		if err := h.sessions.Clear(r.Context(), cookie.Value); err != nil {
			slog.Error("failed to delete session", "error", err)
		}
	}
	h.clearSessionCookie(w)
	http.Redirect(w, r, "/login", http.StatusFound)
}

func (h *Handlers) setSessionCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(time.Until(expiresAt).Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handlers) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

// Notification is a toast shown above the screen content.
type Notification struct {
	Title   string
	Message string
	Error   bool
}

func errorNotification(err error) *Notification {
	return &Notification{Title: "Error", Message: gateway.UserMessage(err), Error: true}
}

func successNotification(message string) *Notification {
	return &Notification{Title: "Success", Message: message}
}

// Page is the data every authenticated screen template receives.
type Page struct {
	Session      *models.Session
	Nav          []views.NavItem
	Tab          views.Tab
	Notification *Notification
	Data         any
}

func (h *Handlers) renderTab(w http.ResponseWriter, r *http.Request, tab views.Tab, note *Notification, data any) {
	sess := GetUserFromContext(r)
	h.render(w, r, string(tab)+".html", Page{
		Session:      sess,
		Nav:          views.Nav(sess, tab),
		Tab:          tab,
		Notification: note,
		Data:         data,
	})
}

func (h *Handlers) renderAuth(w http.ResponseWriter, r *http.Request, vm LoginViewModel) {
	h.render(w, r, "login.html", Page{Data: vm})
}

func (h *Handlers) render(w http.ResponseWriter, r *http.Request, viewName string, data any) {
	tmpl, err := template.ParseFiles(filepath.Join(h.templateDir, "base.html"), filepath.Join(h.templateDir, viewName))
	if err != nil {
		slog.Error("template error", "view", viewName, "error", err)
		http.Error(w, "Template error", http.StatusInternalServerError)
		return
	}
	target := "base.html"
	if r.Header.Get("HX-Request") == "true" {
		target = "content"
	}
	if err := tmpl.ExecuteTemplate(w, target, data); err != nil {
		slog.Error("template execution error", "view", viewName, "error", err)
	}
}
