package bills

import (
	"testing"
	"time"

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

func openBill(total string, due time.Time) VendorBill {
	t := dec(total)
	return VendorBill{
		ID:          1,
		Number:      "BILL-20260801-0001",
		Status:      StatusOpen,
		DueDate:     due,
		TotalAmount: t,
		AmountPaid:  decimal.Zero,
		AmountDue:   t,
	}
}

func TestTransitionTable(t *testing.T) {
	require.True(t, StatusDraft.CanTransitionTo(StatusOpen))
	require.True(t, StatusOpen.CanTransitionTo(StatusPaid))
	require.True(t, StatusOverdue.CanTransitionTo(StatusPartiallyPaid))
	require.False(t, StatusPaid.CanTransitionTo(StatusCancelled))
	require.False(t, StatusCancelled.CanTransitionTo(StatusOpen))
	require.False(t, StatusVoid.CanTransitionTo(StatusOpen))
	require.True(t, StatusDisputed.CanTransitionTo(StatusCancelled))
}

func TestApplyPaymentPartialThenFull(t *testing.T) {
	bill := openBill("100.00", time.Now().AddDate(0, 0, 30))

	require.NoError(t, bill.ApplyPayment(dec("40")))
	require.Equal(t, StatusPartiallyPaid, bill.Status)
	require.True(t, bill.AmountPaid.Equal(dec("40")))
	require.True(t, bill.AmountDue.Equal(dec("60")))

	require.NoError(t, bill.ApplyPayment(dec("60")))
	require.Equal(t, StatusPaid, bill.Status)
	require.True(t, bill.AmountDue.IsZero())
	require.True(t, bill.TotalAmount.Sub(bill.AmountPaid).Equal(bill.AmountDue))
}

func TestApplyPaymentRejectsOverpay(t *testing.T) {
	bill := openBill("100.00", time.Now())

	err := bill.ApplyPayment(dec("100.02"))
	require.ErrorIs(t, err, shared.ErrBusinessRule)
	require.True(t, bill.AmountPaid.IsZero(), "rejected payment must not mutate the bill")
	require.Equal(t, StatusOpen, bill.Status)
}

func TestApplyPaymentWithinTolerance(t *testing.T) {
	bill := openBill("100.00", time.Now())

	require.NoError(t, bill.ApplyPayment(dec("100.01")))
	require.Equal(t, StatusPaid, bill.Status)
	require.True(t, bill.AmountDue.IsZero())
}

func TestApplyPaymentRejectsNonPositive(t *testing.T) {
	bill := openBill("100.00", time.Now())

	require.ErrorIs(t, bill.ApplyPayment(decimal.Zero), shared.ErrValidation)
	require.ErrorIs(t, bill.ApplyPayment(dec("-5")), shared.ErrValidation)
}

func TestApplyPaymentRejectsNonPayableStatus(t *testing.T) {
	bill := openBill("100.00", time.Now())
	bill.Status = StatusDraft

	require.ErrorIs(t, bill.ApplyPayment(dec("10")), shared.ErrStateConflict)
}

func TestReleasePaymentRestoresState(t *testing.T) {
	due := time.Now().AddDate(0, 0, 10)
	bill := openBill("100.00", due)
	before := bill

	require.NoError(t, bill.ApplyPayment(dec("100")))
	require.Equal(t, StatusPaid, bill.Status)

	bill.ReleasePayment(dec("100"), time.Now())
	require.Equal(t, before.Status, bill.Status)
	require.True(t, before.AmountPaid.Equal(bill.AmountPaid))
	require.True(t, before.AmountDue.Equal(bill.AmountDue))
}

func TestReleasePaymentOnPastDueBillGoesOverdue(t *testing.T) {
	bill := openBill("100.00", time.Now().AddDate(0, 0, -5))

	require.NoError(t, bill.ApplyPayment(dec("100")))
	bill.ReleasePayment(dec("100"), time.Now())

	require.Equal(t, StatusOverdue, bill.Status)
	require.Equal(t, 5, bill.DaysOverdue)
}

func TestReleasePaymentPartialLeavesPartiallyPaid(t *testing.T) {
	bill := openBill("100.00", time.Now().AddDate(0, 0, 10))

	require.NoError(t, bill.ApplyPayment(dec("30")))
	require.NoError(t, bill.ApplyPayment(dec("70")))
	bill.ReleasePayment(dec("70"), time.Now())

	require.Equal(t, StatusPartiallyPaid, bill.Status)
	require.True(t, bill.AmountDue.Equal(dec("70")))
}

func TestRefreshOverdueIsIdempotent(t *testing.T) {
	today := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	bill := openBill("100.00", today.AddDate(0, 0, -3))

	require.True(t, bill.RefreshOverdue(today))
	require.Equal(t, StatusOverdue, bill.Status)
	require.Equal(t, 3, bill.DaysOverdue)

	require.False(t, bill.RefreshOverdue(today), "second run on the same day must be a no-op")
}

func TestRefreshOverdueSkipsFutureAndSettled(t *testing.T) {
	today := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)

	future := openBill("50.00", today.AddDate(0, 0, 7))
	require.False(t, future.RefreshOverdue(today))
	require.Equal(t, StatusOpen, future.Status)

	paid := openBill("50.00", today.AddDate(0, 0, -7))
	require.NoError(t, paid.ApplyPayment(dec("50")))
	require.False(t, paid.RefreshOverdue(today))
	require.Equal(t, StatusPaid, paid.Status)
}

func TestDiscountAmountOn(t *testing.T) {
	require.True(t, Discount{Type: DiscountFlat, Value: dec("5")}.AmountOn(dec("100")).Equal(dec("5")))
	require.True(t, Discount{Type: DiscountPercent, Value: dec("12.5")}.AmountOn(dec("100")).Equal(dec("12.5")))
	require.True(t, Discount{Type: DiscountNone}.AmountOn(dec("100")).IsZero())
	// 4dp intermediate rounding, half away from zero
	require.True(t, Discount{Type: DiscountPercent, Value: dec("3.333")}.AmountOn(dec("99.99")).Equal(dec("3.3327")))
}
