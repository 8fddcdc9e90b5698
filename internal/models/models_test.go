package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSessionKeepsUnknownFields(t *testing.T) {
	body := []byte(`{"id": 7, "username": "alice", "is_admin": true, "is_blocked": false, "tier": "gold"}`)

	s, err := ParseSession(body)
	require.NoError(t, err)
	assert.Equal(t, int64(7), s.ID)
	assert.Equal(t, "alice", s.Username)
	assert.True(t, s.IsAdmin)

	payload, err := s.Payload()
	require.NoError(t, err)
	assert.JSONEq(t, string(body), string(payload))
}

func TestParseSessionRejectsIncompletePayload(t *testing.T) {
	_, err := ParseSession([]byte(`{"error": "Invalid credentials"}`))
	assert.Error(t, err)

	_, err = ParseSession([]byte(`not json`))
	assert.Error(t, err)
}

func TestCryptoAssetDecodesFloatSupply(t *testing.T) {
	var a CryptoAsset
	err := json.Unmarshal([]byte(`{"id":1,"name":"Bitcoin","symbol":"BTC","price_usd":64250.5,"price_stars":3200,"total_supply":21000000.0}`), &a)
	require.NoError(t, err)

	assert.Equal(t, int64(1), a.ID)
	assert.Equal(t, "BTC", a.Symbol)
	assert.Equal(t, "64250.5", a.PriceUSD.String())
	assert.Equal(t, "3200", a.PriceStars.String())
	assert.Equal(t, int64(21000000), a.TotalSupply)
}

func TestCryptoAssetRejectsBadSupply(t *testing.T) {
	var a CryptoAsset
	err := json.Unmarshal([]byte(`{"id":1,"total_supply":"lots"}`), &a)
	assert.Error(t, err)
}

func TestTimestampLayouts(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  time.Time
	}{
		{"rfc3339", `"2025-10-15T14:30:00Z"`, time.Date(2025, 10, 15, 14, 30, 0, 0, time.UTC)},
		{"iso without zone", `"2025-10-15T14:30:00"`, time.Date(2025, 10, 15, 14, 30, 0, 0, time.UTC)},
		{"iso with micros", `"2025-10-15T14:30:00.123456"`, time.Date(2025, 10, 15, 14, 30, 0, 123456000, time.UTC)},
		{"null", `null`, time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ts Timestamp
			require.NoError(t, json.Unmarshal([]byte(tt.input), &ts))
			assert.True(t, tt.want.Equal(ts.Time), "got %v", ts.Time)
		})
	}
}

func TestUserSummaryDecode(t *testing.T) {
	var users []UserSummary
	err := json.Unmarshal([]byte(`[{"id":3,"username":"bob","is_blocked":true,"created_at":"2025-10-13T09:15:00"}]`), &users)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.True(t, users[0].IsBlocked)
	assert.Equal(t, 2025, users[0].CreatedAt.Year())
}
