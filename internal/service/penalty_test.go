package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Dan9191/loan-service/internal/models"
	"github.com/Dan9191/loan-service/internal/money"
)

func overdueInstallment() models.Installment {
	return models.Installment{
		ID:               1,
		Sequence:         1,
		DueDate:          day("2024-01-10"),
		ScheduledPayment: amt("100.00"),
		RemainingBalance: amt("5000.00"),
		AccruedPenalty:   money.Zero,
		Status:           models.InstallmentOverdue,
	}
}

var onePercentDaily = models.PenaltyPolicy{
	Basis:     models.PenaltyOnScheduledPayment,
	DailyRate: money.MustRate("0.01"),
}

func TestAccruePenalty(t *testing.T) {
	res := AccruePenalty(overdueInstallment(), day("2024-01-11"), onePercentDaily)
	assert.True(t, res.Changed)
	assert.Equal(t, 1, res.Days)
	assert.Equal(t, "1.00", res.Increment.String())
	assert.Equal(t, "1.00", res.Installment.AccruedPenalty.String())
	if assert.NotNil(t, res.Installment.PenaltyCalculatedAt) {
		assert.Equal(t, day("2024-01-11"), *res.Installment.PenaltyCalculatedAt)
	}

	later := AccruePenalty(res.Installment, day("2024-01-15"), onePercentDaily)
	assert.True(t, later.Changed)
	assert.Equal(t, 4, later.Days)
	assert.Equal(t, "5.00", later.Installment.AccruedPenalty.String())
}

func TestAccruePenaltyIsIdempotent(t *testing.T) {
	asOf := day("2024-01-20")
	once := AccruePenalty(overdueInstallment(), asOf, onePercentDaily)
	twice := AccruePenalty(once.Installment, asOf, onePercentDaily)

	assert.True(t, once.Changed)
	assert.False(t, twice.Changed)
	assert.Equal(t, once.Installment.AccruedPenalty, twice.Installment.AccruedPenalty)
	assert.Equal(t, "10.00", twice.Installment.AccruedPenalty.String())

	// A time of day on the same date covers no new days either.
	again := AccruePenalty(once.Installment, asOf.Add(20*time.Hour), onePercentDaily)
	assert.False(t, again.Changed)

	// Nor does an earlier date.
	earlier := AccruePenalty(once.Installment, day("2024-01-15"), onePercentDaily)
	assert.False(t, earlier.Changed)
	assert.Equal(t, "10.00", earlier.Installment.AccruedPenalty.String())
}

func TestAccruePenaltyGracePeriod(t *testing.T) {
	policy := onePercentDaily
	policy.GraceDays = 3

	tests := []struct {
		asOf string
		want string
	}{
		{"2024-01-10", "0.00"},
		{"2024-01-13", "0.00"},
		{"2024-01-14", "4.00"},
		{"2024-01-20", "10.00"},
	}
	for _, tt := range tests {
		t.Run(tt.asOf, func(t *testing.T) {
			res := AccruePenalty(overdueInstallment(), day(tt.asOf), policy)
			assert.Equal(t, tt.want, res.Installment.AccruedPenalty.String())
			assert.Equal(t, tt.want != "0.00", res.Changed)
		})
	}
}

func TestAccruePenaltySkipsPaidInstallments(t *testing.T) {
	inst := overdueInstallment()
	inst.Status = models.InstallmentPaid
	res := AccruePenalty(inst, day("2024-03-01"), onePercentDaily)
	assert.False(t, res.Changed)
	assert.True(t, res.Installment.AccruedPenalty.IsZero())
	assert.Nil(t, res.Installment.PenaltyCalculatedAt)
}

func TestAccruePenaltyOnRemainingBalance(t *testing.T) {
	policy := models.PenaltyPolicy{
		Basis:     models.PenaltyOnRemainingBalance,
		DailyRate: money.MustRate("0.001"),
	}
	res := AccruePenalty(overdueInstallment(), day("2024-01-12"), policy)
	assert.Equal(t, "10.00", res.Increment.String())
}

func TestAccruePenaltyRounding(t *testing.T) {
	inst := overdueInstallment()
	inst.ScheduledPayment = amt("536.82")
	policy := models.PenaltyPolicy{Basis: models.PenaltyOnScheduledPayment, DailyRate: money.MustRate("0.0005")}

	res := AccruePenalty(inst, day("2024-01-13"), policy)
	// round(536.82 * 0.0005) = 0.27 per day
	assert.Equal(t, "0.81", res.Increment.String())
}

func TestAccruePenaltyGraceCountsFromDueDateOnce(t *testing.T) {
	policy := onePercentDaily
	policy.GraceDays = 3

	first := AccruePenalty(overdueInstallment(), day("2024-01-14"), policy)
	assert.Equal(t, 4, first.Days)
	next := AccruePenalty(first.Installment, day("2024-01-15"), policy)
	assert.Equal(t, 1, next.Days)
	assert.Equal(t, "5.00", next.Installment.AccruedPenalty.String())
}

func TestAccruePenaltyIndependentOfRunFrequency(t *testing.T) {
	policy := models.PenaltyPolicy{Basis: models.PenaltyOnScheduledPayment, DailyRate: money.MustRate("0.00125")}

	single := AccruePenalty(overdueInstallment(), day("2024-01-13"), policy)

	daily := overdueInstallment()
	for _, d := range []string{"2024-01-11", "2024-01-12", "2024-01-13"} {
		daily = AccruePenalty(daily, day(d), policy).Installment
	}

	assert.Equal(t, "0.39", single.Installment.AccruedPenalty.String())
	assert.Equal(t, single.Installment.AccruedPenalty.String(), daily.AccruedPenalty.String())
}
