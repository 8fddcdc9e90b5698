// Package views decides which screen a session may see.
package views

import "crypto-platform/internal/models"

// State is the top-level router state.
type State int

const (
	Unauthenticated State = iota
	Authenticated
)

func (s State) String() string {
	if s == Authenticated {
		return "authenticated"
	}
	return "unauthenticated"
}

// Tab is a screen within the authenticated state.
type Tab string

const (
	Markets Tab = "markets"
	Trade   Tab = "trade"
	Profile Tab = "profile"
	Admin   Tab = "admin"
)

// DefaultTab is shown right after login.
const DefaultTab = Markets

var labels = map[Tab]string{
	Markets: "Markets",
	Trade:   "Trade",
	Profile: "Profile",
	Admin:   "Admin",
}

// Label is the tab's display name.
func (t Tab) Label() string { return labels[t] }

// Path is the URL of the tab's screen.
func (t Tab) Path() string { return "/" + string(t) }

// StateOf returns Authenticated when a session is present.
func StateOf(s *models.Session) State {
	if s == nil {
		return Unauthenticated
	}
	return Authenticated
}

// Tabs lists the tabs offered to s, in display order.
func Tabs(s *models.Session) []Tab {
	if s == nil {
		return nil
	}
	tabs := []Tab{Markets, Trade, Profile}
	if s.IsAdmin {
		tabs = append(tabs, Admin)
	}
	return tabs
}

// Allowed reports whether s may open t.
func Allowed(s *models.Session, t Tab) bool {
	for _, candidate := range Tabs(s) {
		if candidate == t {
			return true
		}
	}
	return false
}

// Landing is where a request for the root path should go.
func Landing(s *models.Session) string {
	if StateOf(s) == Unauthenticated {
		return "/login"
	}
	return DefaultTab.Path()
}

// NavItem is one entry of the tab bar.
type NavItem struct {
	Tab    Tab
	Label  string
	Path   string
	Active bool
}

// Nav builds the tab bar for s with active highlighted.
func Nav(s *models.Session, active Tab) []NavItem {
	tabs := Tabs(s)
	items := make([]NavItem, 0, len(tabs))
	for _, t := range tabs {
		items = append(items, NavItem{Tab: t, Label: t.Label(), Path: t.Path(), Active: t == active})
	}
	return items
}
