// Package budget enforces per-user spending limits. The executor asks
// it three questions: may this user make a request at all, how much of
// their budget is left, and record that this request cost N dollars.
package budget

import (
	"context"
	"errors"
	"fmt"
)

// ErrBudgetExceeded is returned by the executor when admission is
// denied. No request was attempted.
var ErrBudgetExceeded = errors.New("budget exceeded")

// UnavailableError means the admission check itself could not run.
// This is the one place the gateway fails closed: without an answer
// from the budget service no upstream call is made.
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("budget service unavailable: %v", e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// Service answers budget questions for a user. Implementations must be
// safe for concurrent use.
//
// Users without a configured budget are unrestricted: CheckAllowance
// returns true and RemainingBudgetPercentage returns 1.0 for them.
type Service interface {
	// CheckAllowance reports whether the user may start a request.
	CheckAllowance(ctx context.Context, userID string) (bool, error)

	// RemainingBudgetPercentage returns the unspent fraction of the
	// user's budget in [0, 1].
	RemainingBudgetPercentage(ctx context.Context, userID string) (float64, error)

	// DeductFunds charges the user for a completed request.
	DeductFunds(ctx context.Context, userID string, amount float64) error
}
