// Package apitest runs an in-process stand-in for the trading platform's
// REST endpoints. It mirrors the status codes and messages of the real
// services closely enough to drive the front-end in tests, and records
// every request it receives.
package apitest

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"crypto-platform/internal/auth"
)

// Request is one recorded call.
type Request struct {
	Method   string
	Endpoint string
	Header   http.Header
	Body     map[string]any
}

// User is a backend account.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	IsAdmin      bool
	IsBlocked    bool
	CreatedAt    time.Time
}

// Asset is a backend catalog row.
type Asset struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Symbol      string  `json:"symbol"`
	PriceUSD    float64 `json:"price_usd"`
	PriceStars  float64 `json:"price_stars"`
	TotalSupply float64 `json:"total_supply"`
}

type balanceKey struct {
	userID  int64
	assetID int64
}

// Server is the fake backend.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	users    []*User
	assets   []*Asset
	balances map[balanceKey]float64
	requests []Request
	verifier *auth.Signer
	clock    time.Time
}

// NewServer starts a fake backend with empty state.
func NewServer() *Server {
	s := &Server{
		balances: make(map[balanceKey]float64),
		clock:    time.Date(2025, 10, 1, 9, 0, 0, 0, time.UTC),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/auth", s.record("auth", s.handleAuth))
	mux.HandleFunc("/crypto", s.record("crypto", s.handleCrypto))
	mux.HandleFunc("/admin", s.record("admin", s.handleAdmin))
	s.Server = httptest.NewServer(mux)
	return s
}

// AuthURL is the auth endpoint.
func (s *Server) AuthURL() string { return s.URL + "/auth" }

// CryptoURL is the catalog endpoint.
func (s *Server) CryptoURL() string { return s.URL + "/crypto" }

// AdminURL is the admin endpoint.
func (s *Server) AdminURL() string { return s.URL + "/admin" }

// RequireIdentity makes admin calls verify a bearer token with signer.
func (s *Server) RequireIdentity(signer *auth.Signer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verifier = signer
}

// AddUser creates an account and returns its id.
func (s *Server) AddUser(username, password string, admin bool) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addUserLocked(username, password, admin).ID
}

func (s *Server) addUserLocked(username, password string, admin bool) *User {
	hash, err := auth.HashPassword(password)
	if err != nil {
		panic(err)
	}
	s.clock = s.clock.Add(time.Minute)
	u := &User{
		ID:           int64(len(s.users) + 1),
		Username:     username,
		PasswordHash: hash,
		IsAdmin:      admin,
		CreatedAt:    s.clock,
	}
	s.users = append(s.users, u)
	return u
}

// AddAsset creates a catalog entry and returns its id.
func (s *Server) AddAsset(name, symbol string, priceUSD, priceStars float64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addAssetLocked(name, symbol, priceUSD, priceStars, 1_000_000_000)
}

func (s *Server) addAssetLocked(name, symbol string, priceUSD, priceStars, supply float64) int64 {
	a := &Asset{
		ID:          int64(len(s.assets) + 1),
		Name:        name,
		Symbol:      symbol,
		PriceUSD:    priceUSD,
		PriceStars:  priceStars,
		TotalSupply: supply,
	}
	s.assets = append(s.assets, a)
	return a.ID
}

// SetBlocked changes a user's blocked flag directly.
func (s *Server) SetBlocked(userID int64, blocked bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u := s.userLocked(userID); u != nil {
		u.IsBlocked = blocked
	}
}

// User returns a copy of the account with id.
func (s *Server) User(id int64) (User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u := s.userLocked(id); u != nil {
		return *u, true
	}
	return User{}, false
}

// Assets returns a copy of the catalog.
func (s *Server) Assets() []Asset {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Asset, 0, len(s.assets))
	for _, a := range s.assets {
		out = append(out, *a)
	}
	return out
}

// Balance returns the stored balance of userID in assetID.
func (s *Server) Balance(userID, assetID int64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[balanceKey{userID, assetID}]
}

// Requests returns every recorded request, optionally filtered by endpoint.
func (s *Server) Requests(endpoint string) []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Request
	for _, r := range s.requests {
		if endpoint == "" || r.Endpoint == endpoint {
			out = append(out, r)
		}
	}
	return out
}

// Mutations returns recorded requests that could change backend state.
func (s *Server) Mutations() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Request
	for _, r := range s.requests {
		if r.Endpoint != "auth" && r.Method != http.MethodGet {
			out = append(out, r)
		}
	}
	return out
}

// Reset forgets recorded requests.
func (s *Server) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = nil
}

func (s *Server) record(endpoint string, next func(http.ResponseWriter, *http.Request, map[string]any)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if r.Body != nil {
			data, _ := io.ReadAll(r.Body)
			if len(data) > 0 {
				dec := json.NewDecoder(bytes.NewReader(data))
				dec.UseNumber()
				if err := dec.Decode(&body); err != nil {
					writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON"})
					return
				}
			}
		}
		s.mu.Lock()
		s.requests = append(s.requests, Request{
			Method:   r.Method,
			Endpoint: endpoint,
			Header:   r.Header.Clone(),
			Body:     body,
		})
		s.mu.Unlock()
		next(w, r, body)
	}
}

func (s *Server) handleAuth(w http.ResponseWriter, r *http.Request, body map[string]any) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "Method not allowed"})
		return
	}
	action := str(body["action"])
	username := str(body["username"])
	password := str(body["password"])

	s.mu.Lock()
	defer s.mu.Unlock()

	if action == "register" {
		if s.userByNameLocked(username) != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "User already exists"})
			return
		}
		writeJSON(w, http.StatusOK, userJSON(s.addUserLocked(username, password, false)))
		return
	}

	u := s.userByNameLocked(username)
	if u == nil || !auth.CheckPassword(password, u.PasswordHash) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid credentials"})
		return
	}
	if u.IsBlocked {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "User is blocked"})
		return
	}
	writeJSON(w, http.StatusOK, userJSON(u))
}

func (s *Server) handleCrypto(w http.ResponseWriter, r *http.Request, body map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch r.Method {
	case http.MethodGet:
		out := make([]Asset, 0, len(s.assets))
		for _, a := range s.assets {
			out = append(out, *a)
		}
		writeJSON(w, http.StatusOK, out)
	case http.MethodPost:
		id := s.addAssetLocked(str(body["name"]), str(body["symbol"]),
			num(body["price_usd"]), num(body["price_stars"]), num(body["total_supply"]))
		writeJSON(w, http.StatusCreated, map[string]any{"id": id, "message": "Cryptocurrency created"})
	case http.MethodPut:
		id := int64(num(body["id"]))
		for _, a := range s.assets {
			if a.ID == id {
				a.PriceUSD = num(body["price_usd"])
				a.PriceStars = num(body["price_stars"])
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Price updated"})
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "Method not allowed"})
	}
}

func (s *Server) handleAdmin(w http.ResponseWriter, r *http.Request, body map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	requesterID, _ := strconv.ParseInt(r.Header.Get("X-User-Id"), 10, 64)
	requester := s.userLocked(requesterID)
	if requester == nil || !requester.IsAdmin {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "Admin access required"})
		return
	}
	if s.verifier != nil {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		claims, err := s.verifier.Verify(token)
		if err != nil || claims.UserID != requesterID {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid identity"})
			return
		}
	}

	switch r.Method {
	case http.MethodGet:
		var list []*User
		for _, u := range s.users {
			if !u.IsAdmin {
				list = append(list, u)
			}
		}
		sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
		out := make([]map[string]any, 0, len(list))
		for _, u := range list {
			out = append(out, map[string]any{
				"id":         u.ID,
				"username":   u.Username,
				"is_blocked": u.IsBlocked,
				"created_at": u.CreatedAt.Format("2006-01-02T15:04:05.000000"),
			})
		}
		writeJSON(w, http.StatusOK, out)
	case http.MethodPost:
		target := int64(num(body["user_id"]))
		switch str(body["action"]) {
		case "block", "unblock":
			if u := s.userLocked(target); u != nil {
				u.IsBlocked = str(body["action"]) == "block"
			}
		case "add_balance":
			key := balanceKey{target, int64(num(body["crypto_id"]))}
			s.balances[key] += num(body["amount"])
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Action completed"})
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "Method not allowed"})
	}
}

func (s *Server) userLocked(id int64) *User {
	for _, u := range s.users {
		if u.ID == id {
			return u
		}
	}
	return nil
}

func (s *Server) userByNameLocked(name string) *User {
	for _, u := range s.users {
		if u.Username == name {
			return u
		}
	}
	return nil
}

func userJSON(u *User) map[string]any {
	return map[string]any{
		"id":         u.ID,
		"username":   u.Username,
		"is_admin":   u.IsAdmin,
		"is_blocked": u.IsBlocked,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func num(v any) float64 {
	switch n := v.(type) {
	case json.Number:
		f, _ := n.Float64()
		return f
	case float64:
		return n
	}
	return 0
}
