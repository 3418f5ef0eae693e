package paysessions

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/settleflow/settleflow/internal/shared"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func threeBills() []BillBalance {
	return []BillBalance{
		{BillID: 1, Number: "BILL-0001", AmountDue: dec("30")},
		{BillID: 2, Number: "BILL-0002", AmountDue: dec("50")},
		{BillID: 3, Number: "BILL-0003", AmountDue: dec("20")},
	}
}

func sumAllocated(lines []SessionLine) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.AllocatedAmount)
	}
	return sum
}

func TestBulkFullAllocation(t *testing.T) {
	lines, err := allocateBulk(dec("100"), threeBills())
	require.NoError(t, err)
	require.Len(t, lines, 3)

	require.True(t, lines[0].AllocatedAmount.Equal(dec("30")))
	require.True(t, lines[1].AllocatedAmount.Equal(dec("50")))
	require.True(t, lines[2].AllocatedAmount.Equal(dec("20")))
	require.True(t, sumAllocated(lines).Equal(dec("100")))
	for _, l := range lines {
		require.False(t, l.IsPartialPayment)
		require.True(t, l.BillAmountDueAfter.IsZero())
	}
}

func TestBulkPartialAllocation(t *testing.T) {
	lines, err := allocateBulk(dec("70"), threeBills())
	require.NoError(t, err)
	require.Len(t, lines, 2, "third bill receives nothing and is skipped")

	require.True(t, lines[0].AllocatedAmount.Equal(dec("30")))
	require.False(t, lines[0].IsPartialPayment)

	require.True(t, lines[1].AllocatedAmount.Equal(dec("40")))
	require.True(t, lines[1].IsPartialPayment)
	require.True(t, lines[1].BillAmountDueBefore.Equal(dec("50")))
	require.True(t, lines[1].BillAmountDueAfter.Equal(dec("10")))

	require.True(t, sumAllocated(lines).Equal(dec("70")))
}

func TestBulkRejectsTotalBeyondOutstanding(t *testing.T) {
	_, err := allocateBulk(dec("150"), threeBills())
	require.ErrorIs(t, err, shared.ErrBusinessRule)
}

func TestBulkRejectsNonPositiveTotal(t *testing.T) {
	_, err := allocateBulk(decimal.Zero, threeBills())
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestSelectedHappyPath(t *testing.T) {
	picks := []SelectedAllocation{
		{BillID: 2, Amount: dec("25.50")},
		{BillID: 3, Amount: dec("20")},
	}
	lines, err := allocateSelected(dec("45.50"), threeBills(), picks)
	require.NoError(t, err)
	require.Len(t, lines, 2)

	require.True(t, lines[0].IsPartialPayment)
	require.False(t, lines[1].IsPartialPayment)
	require.True(t, sumAllocated(lines).Equal(dec("45.50")))
}

func TestSelectedRejectsSumMismatch(t *testing.T) {
	picks := []SelectedAllocation{
		{BillID: 1, Amount: dec("30")},
		{BillID: 2, Amount: dec("50")},
		{BillID: 3, Amount: dec("10")},
	}
	_, err := allocateSelected(dec("100"), threeBills(), picks)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestSelectedAcceptsRoundingSlack(t *testing.T) {
	picks := []SelectedAllocation{{BillID: 1, Amount: dec("29.99")}}
	_, err := allocateSelected(dec("30"), threeBills(), picks)
	require.NoError(t, err)
}

func TestSelectedRejectsEmptyList(t *testing.T) {
	_, err := allocateSelected(dec("10"), threeBills(), nil)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestSelectedRejectsIneligibleBill(t *testing.T) {
	picks := []SelectedAllocation{{BillID: 99, Amount: dec("10")}}
	_, err := allocateSelected(dec("10"), threeBills(), picks)
	require.ErrorIs(t, err, shared.ErrBusinessRule)
}

func TestSelectedRejectsOverAllocation(t *testing.T) {
	picks := []SelectedAllocation{{BillID: 3, Amount: dec("20.02")}}
	_, err := allocateSelected(dec("20.02"), threeBills(), picks)
	require.ErrorIs(t, err, shared.ErrBusinessRule)
}

func TestSelectedRejectsNonPositiveAndDuplicates(t *testing.T) {
	_, err := allocateSelected(dec("0"), threeBills(), []SelectedAllocation{{BillID: 1, Amount: dec("0")}})
	require.ErrorIs(t, err, shared.ErrValidation)

	picks := []SelectedAllocation{
		{BillID: 1, Amount: dec("15")},
		{BillID: 1, Amount: dec("15")},
	}
	_, err = allocateSelected(dec("30"), threeBills(), picks)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestPartialFlagEpsilon(t *testing.T) {
	balances := []BillBalance{{BillID: 1, Number: "BILL-0001", AmountDue: dec("100.00")}}

	// 0.004 under the due amount is rounding noise, not a partial payment
	lines, err := allocateSelected(dec("99.996"), balances, []SelectedAllocation{{BillID: 1, Amount: dec("99.996")}})
	require.NoError(t, err)
	require.False(t, lines[0].IsPartialPayment)

	lines, err = allocateSelected(dec("99.99"), balances, []SelectedAllocation{{BillID: 1, Amount: dec("99.99")}})
	require.NoError(t, err)
	require.True(t, lines[0].IsPartialPayment)
}
