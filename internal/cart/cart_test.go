package cart

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func line(mealID, sellerID int, price string) Line {
	return Line{MealID: mealID, SellerID: sellerID, Name: "meal", Price: decimal.RequireFromString(price)}
}

func TestAdd_DedupesByMealID(t *testing.T) {
	lines, changed, err := Add(nil, line(1, 10, "120"))
	require.NoError(t, err)
	assert.True(t, changed)

	lines, changed, err = Add(lines, line(1, 10, "120"))
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 1, Count(lines))

	lines, changed, err = Add(lines, line(2, 11, "80"))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 2, Count(lines))
}

func TestAdd_RejectsInvalidLines(t *testing.T) {
	_, _, err := Add(nil, Line{Price: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, ErrMissingMealID)

	_, _, err = Add(nil, line(3, 1, "-1"))
	assert.ErrorIs(t, err, ErrInvalidPrice)
}

func TestAdd_DoesNotAliasInput(t *testing.T) {
	base := make([]Line, 1, 4)
	base[0] = line(1, 1, "10")

	a, _, _ := Add(base, line(2, 1, "10"))
	b, _, _ := Add(base, line(3, 1, "10"))
	assert.Equal(t, 2, a[1].MealID)
	assert.Equal(t, 3, b[1].MealID)
}

func TestRemove_DropsOnlyMatchingLine(t *testing.T) {
	lines := []Line{line(1, 1, "10"), line(2, 1, "20"), line(3, 2, "30")}

	out := Remove(lines, 2)
	assert.Len(t, out, len(lines)-1)
	for _, l := range out {
		assert.NotEqual(t, 2, l.MealID)
	}

	assert.Len(t, Remove(lines, 99), 3)
}

func TestRemove_DropsAllDuplicates(t *testing.T) {
	lines := []Line{line(5, 1, "10"), line(5, 1, "10"), line(6, 1, "10")}
	assert.Len(t, Remove(lines, 5), 1)
}

func TestClearAndCount(t *testing.T) {
	assert.Equal(t, 0, Count(Clear()))
	assert.NotNil(t, Clear())
}

func TestTotals(t *testing.T) {
	lines := []Line{line(1, 7, "120"), line(2, 8, "80"), line(3, 7, "15.50")}

	assert.True(t, Subtotal(lines).Equal(decimal.RequireFromString("215.50")))
	assert.Equal(t, []int{7, 8}, SellerIDs(lines))

	per := SellerSubtotals(lines)
	assert.True(t, per[7].Equal(decimal.RequireFromString("135.50")))
	assert.True(t, per[8].Equal(decimal.NewFromInt(80)))
}

func TestValidate(t *testing.T) {
	assert.ErrorIs(t, Validate(nil), ErrEmptyCart)
	assert.NoError(t, Validate([]Line{line(1, 1, "0")}))
	assert.ErrorIs(t, Validate([]Line{line(1, 1, "-2")}), ErrInvalidPrice)
}
