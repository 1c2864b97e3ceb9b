package service

import (
	"time"

	"github.com/Dan9191/loan-service/internal/models"
	"github.com/Dan9191/loan-service/internal/money"
)

// AccrualResult is the outcome of one penalty calculation.
type AccrualResult struct {
	Installment models.Installment
	Changed     bool
	Days        int
	Increment   money.Amount
}

// AccruePenalty charges the daily penalty for the days between the last
// calculation and asOf. Days already covered are never charged twice, so
// calling it again for the same asOf is a no-op.
//
// Nothing accrues on a paid installment or until the grace period has ended.
// Once it has, the first window counts from the due date; later windows count
// from the last calculation date. The daily charge is rounded before it is
// multiplied, so the total does not depend on how often the batch runs.
func AccruePenalty(inst models.Installment, asOf time.Time, policy models.PenaltyPolicy) AccrualResult {
	result := AccrualResult{Installment: inst}
	if inst.Status.Settled() {
		return result
	}

	asOf = models.DateOf(asOf)
	graceEnd := models.DateOf(inst.DueDate).AddDate(0, 0, policy.GraceDays)
	if !asOf.After(graceEnd) {
		return result
	}

	start := models.DateOf(inst.DueDate)
	if inst.PenaltyCalculatedAt != nil && inst.PenaltyCalculatedAt.After(start) {
		start = models.DateOf(*inst.PenaltyCalculatedAt)
	}
	days := models.DaysBetween(start, asOf)
	if days <= 0 {
		return result
	}

	daily := penaltyBasis(inst, policy.Basis).MulRate(policy.DailyRate).Round()
	increment := daily.MulInt(int64(days))
	inst.AccruedPenalty = inst.AccruedPenalty.Add(increment)
	inst.PenaltyCalculatedAt = &asOf

	return AccrualResult{
		Installment: inst,
		Changed:     true,
		Days:        days,
		Increment:   increment,
	}
}

func penaltyBasis(inst models.Installment, basis models.PenaltyBasis) money.Amount {
	if basis == models.PenaltyOnRemainingBalance {
		return inst.RemainingBalance
	}
	return inst.ScheduledPayment
}
