package views

import (
	"testing"

	"crypto-platform/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestStateOf(t *testing.T) {
	assert.Equal(t, Unauthenticated, StateOf(nil))
	assert.Equal(t, Authenticated, StateOf(&models.Session{ID: 1, Username: "a"}))
}

func TestAdminTabOnlyForAdmins(t *testing.T) {
	user := &models.Session{ID: 1, Username: "alice"}
	admin := &models.Session{ID: 2, Username: "root", IsAdmin: true}

	assert.Equal(t, []Tab{Markets, Trade, Profile}, Tabs(user))
	assert.Equal(t, []Tab{Markets, Trade, Profile, Admin}, Tabs(admin))

	assert.False(t, Allowed(user, Admin))
	assert.True(t, Allowed(admin, Admin))
	assert.True(t, Allowed(user, Trade))
	assert.False(t, Allowed(nil, Markets))
}

func TestLanding(t *testing.T) {
	assert.Equal(t, "/login", Landing(nil))
	assert.Equal(t, "/markets", Landing(&models.Session{ID: 1, Username: "a"}))
}

func TestNav(t *testing.T) {
	items := Nav(&models.Session{ID: 1, Username: "a"}, Trade)
	if assert.Len(t, items, 3) {
		assert.False(t, items[0].Active)
		assert.True(t, items[1].Active)
		assert.Equal(t, "/trade", items[1].Path)
		assert.Equal(t, "Trade", items[1].Label)
	}
	assert.Empty(t, Nav(nil, Markets))
}
