package paysessions

import (
	"github.com/shopspring/decimal"

	"github.com/settleflow/settleflow/internal/money"
	"github.com/settleflow/settleflow/internal/shared"
)

// BillBalance is the slice of a bill an allocator needs: identity and the
// outstanding amount. Callers supply balances ordered by ascending due date.
type BillBalance struct {
	BillID    int64
	Number    string
	AmountDue decimal.Decimal
}

// SelectedAllocation is one caller-specified (bill, amount) pair.
type SelectedAllocation struct {
	BillID int64
	Amount decimal.Decimal
}

// allocateBulk walks the balances oldest-first and assigns
// min(remaining, amountDue) to each until the total is consumed. Bills that
// would receive nothing are skipped. The whole total must find a home.
func allocateBulk(total decimal.Decimal, balances []BillBalance) ([]SessionLine, error) {
	if !money.IsPositive(total) {
		return nil, shared.Validationf("payment total must be positive")
	}

	remaining := money.Round2(total)
	var lines []SessionLine
	for _, b := range balances {
		if !remaining.IsPositive() {
			break
		}
		allocated := money.Round2(money.Min(remaining, b.AmountDue))
		if !allocated.IsPositive() {
			continue
		}
		lines = append(lines, newLine(b, allocated))
		remaining = remaining.Sub(allocated)
	}

	if remaining.GreaterThan(money.Tolerance) {
		return nil, shared.RuleViolationf("payment total exceeds outstanding balance by %s", remaining)
	}
	return lines, nil
}

// allocateSelected validates caller-specified pairs against the eligible
// balances and the session total.
func allocateSelected(total decimal.Decimal, balances []BillBalance, picks []SelectedAllocation) ([]SessionLine, error) {
	if len(picks) == 0 {
		return nil, shared.Validationf("selected mode requires at least one allocation")
	}

	sum := decimal.Zero
	for _, p := range picks {
		sum = sum.Add(p.Amount)
	}
	if !money.WithinTolerance(sum, total) {
		return nil, shared.Validationf("allocations sum to %s but session total is %s", sum, total)
	}

	eligible := make(map[int64]BillBalance, len(balances))
	for _, b := range balances {
		eligible[b.BillID] = b
	}

	seen := make(map[int64]bool, len(picks))
	lines := make([]SessionLine, 0, len(picks))
	for _, p := range picks {
		if !money.IsPositive(p.Amount) {
			return nil, shared.Validationf("allocation for bill %d must be positive", p.BillID)
		}
		if seen[p.BillID] {
			return nil, shared.Validationf("bill %d appears more than once in the allocation list", p.BillID)
		}
		seen[p.BillID] = true

		b, ok := eligible[p.BillID]
		if !ok {
			return nil, shared.RuleViolationf("bill %d is not eligible for payment", p.BillID)
		}
		if money.ExceedsWithTolerance(p.Amount, b.AmountDue) {
			return nil, shared.RuleViolationf("allocation %s exceeds amount due %s on bill %s", p.Amount, b.AmountDue, b.Number)
		}
		lines = append(lines, newLine(b, money.Round2(p.Amount)))
	}
	return lines, nil
}

func newLine(b BillBalance, allocated decimal.Decimal) SessionLine {
	return SessionLine{
		BillID:              b.BillID,
		BillNumber:          b.Number,
		AllocatedAmount:     allocated,
		BillAmountDueBefore: b.AmountDue,
		BillAmountDueAfter:  money.Round2(b.AmountDue.Sub(allocated)),
		IsPartialPayment:    allocated.LessThan(b.AmountDue.Sub(money.PartialEpsilon)),
	}
}
