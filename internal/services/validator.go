package services

import (
	"fmt"
	"math"
	"time"

	"bidding-engine/internal/domain"

	"github.com/shopspring/decimal"
)

type BidValidator struct{}

func NewBidValidator() *BidValidator {
	return &BidValidator{}
}

// Validate runs the checks in a fixed order and returns the first failure:
// amount sanity, then phase, then the leading-bid comparison.
func (v *BidValidator) Validate(auction *domain.Auction, bid domain.Bid, now time.Time) error {
	if err := ValidateAmount(bid.Amount); err != nil {
		return err
	}

	if err := RequireOpen(auction, now); err != nil {
		return err
	}

	highest := auction.HighestBid()
	if !ExceedsAmount(bid.Amount, highest) {
		return fmt.Errorf("%w: %s must exceed %s", domain.ErrBidTooLow,
			money(bid.Amount).String(), money(highest).String())
	}

	return nil
}

// ValidateAmount rejects NaN, infinities and anything that is not positive.
func ValidateAmount(amount float64) error {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return fmt.Errorf("%w: amount must be a finite number", domain.ErrInvalidAmount)
	}
	if !money(amount).IsPositive() {
		return fmt.Errorf("%w: amount must be positive", domain.ErrInvalidAmount)
	}
	return nil
}

// ExceedsAmount reports whether amount is strictly greater than current.
func ExceedsAmount(amount, current float64) bool {
	return money(amount).GreaterThan(money(current))
}

// money keeps the exact value of v. Amounts are never rounded, so any positive
// margin over the leader wins.
func money(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}
