package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2025-01-05")
	require.NoError(t, err)
	assert.Equal(t, "2025-01-05", d.String())
	assert.True(t, d.Equal(NewDate(2025, time.January, 5)))

	for _, edge := range []string{"1000-01-01", "9999-12-31"} {
		d, err := ParseDate(edge)
		require.NoError(t, err)
		assert.False(t, d.IsZero())
	}

	for _, bad := range []string{"", "2025-1-5", "05-01-2025", "2025-02-30", "2025-01-05T00:00:00Z", "0001-01-01", "0999-12-31"} {
		_, err := ParseDate(bad)
		assert.Truef(t, errors.Is(err, ErrInvalidArgument), "input %q", bad)
	}
}

func TestDateOfTruncatesToUTCDay(t *testing.T) {
	loc := time.FixedZone("UTC+7", 7*3600)
	ts := time.Date(2025, time.January, 2, 3, 0, 0, 0, loc)
	assert.Equal(t, "2025-01-01", DateOf(ts).String())
}

func TestDateOrdering(t *testing.T) {
	a := NewDate(2025, time.January, 4)
	b := a.AddDays(1)
	assert.True(t, a.Before(b))
	assert.True(t, b.After(a))
	assert.False(t, a.After(a))
}

func TestDateJSON(t *testing.T) {
	var payload struct {
		Date Date `json:"date"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"date":"2025-01-10"}`), &payload))
	assert.Equal(t, "2025-01-10", payload.Date.String())

	out, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"date":"2025-01-10"}`, string(out))

	err = json.Unmarshal([]byte(`{"date":"10/01/2025"}`), &payload)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestDateScan(t *testing.T) {
	var d Date
	require.NoError(t, d.Scan(time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2025-03-01", d.String())

	require.NoError(t, d.Scan([]byte("2025-03-02")))
	assert.Equal(t, "2025-03-02", d.String())

	require.NoError(t, d.Scan("2025-03-03 00:00:00"))
	assert.Equal(t, "2025-03-03", d.String())

	assert.Error(t, d.Scan(42))
}
