package domain

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWholeNumber(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "10", want: 10},
		{in: "-3", want: -3},
		{in: " 0 ", want: 0},
		{in: "3.0", want: 3},
		{in: "3.5", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "", wantErr: true},
		{in: "1e30", wantErr: true},
		{in: "9223372036854775807", want: math.MaxInt64},
		{in: "9223372036854775808", wantErr: true},
		{in: "-9223372036854775808.0", want: math.MinInt64},
	}
	for _, tt := range tests {
		got, err := ParseWholeNumber(tt.in, "stock")
		if tt.wantErr {
			assert.ErrorIsf(t, err, ErrInvalidArgument, "input %q", tt.in)
			continue
		}
		require.NoErrorf(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestParsePrice(t *testing.T) {
	p, err := ParsePrice("100.00")
	require.NoError(t, err)
	assert.Equal(t, "100.00", FormatPrice(p))

	p, err = ParsePrice("15000")
	require.NoError(t, err)
	assert.Equal(t, "15000.00", FormatPrice(p))

	p, err = ParsePrice("0")
	require.NoError(t, err)
	assert.True(t, p.IsZero())

	p, err = ParsePrice("9999999999999999.99")
	require.NoError(t, err)
	assert.Equal(t, "9999999999999999.99", FormatPrice(p))

	for _, bad := range []string{"", "-1", "abc", "1.005", "NaN", "1e20", "10000000000000000"} {
		_, err := ParsePrice(bad)
		assert.ErrorIsf(t, err, ErrInvalidArgument, "input %q", bad)
	}
}

func TestAddStock(t *testing.T) {
	total, err := AddStock(10, -13)
	require.NoError(t, err)
	assert.Equal(t, int64(-3), total)

	_, err = AddStock(math.MaxInt64, 1)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = AddStock(math.MinInt64, -1)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestTextBounds(t *testing.T) {
	ok := strings.Repeat("é", MaxNoteLength)
	tooLong := strings.Repeat("x", MaxNoteLength+1)

	assert.NoError(t, ValidateNote(nil))
	assert.NoError(t, ValidateNote(&ok))
	assert.ErrorIs(t, ValidateNote(&tooLong), ErrInvalidArgument)

	assert.NoError(t, ValidatePhotoRef(&ok))
	assert.ErrorIs(t, ValidatePhotoRef(&tooLong), ErrInvalidArgument)
}

func TestItemPatchApply(t *testing.T) {
	photo := "uploads/a.png"
	item := Item{Name: "Widget", PhotoRef: &photo}

	name := "Gadget"
	ItemPatch{Name: &name}.Apply(&item)
	assert.Equal(t, "Gadget", item.Name)
	require.NotNil(t, item.PhotoRef)

	empty := ""
	ItemPatch{PhotoRef: &empty}.Apply(&item)
	assert.Nil(t, item.PhotoRef)

	assert.True(t, ItemPatch{}.Empty())
}

func TestFormatItemCode(t *testing.T) {
	bucket := BucketFor(time.Date(2025, time.January, 31, 23, 0, 0, 0, time.UTC))
	assert.Equal(t, SequenceBucket{YY: "25", MM: "01"}, bucket)
	assert.Equal(t, "BRG/25/01/00001", FormatItemCode("BRG", bucket, 1))
	assert.Equal(t, "BRG/25/01/123456", FormatItemCode("BRG", bucket, 123456))
}
