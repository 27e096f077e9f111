// Package rateupdater implements the periodic linear rate interpolation
// that template strategies use to walk their posted offer/bid rate from an
// initial value toward a final one over the course of a slot.
//
// Grounded directly on original_source's TemplateStrategyUpdaterBase /
// TemplateStrategyBidUpdater / TemplateStrategyOfferUpdater.
package rateupdater

import (
	"time"

	"github.com/shopspring/decimal"
)

// Limit selects which direction "toward final" clamps: a seller's offer
// rate limits toward its floor (min), a buyer's bid rate limits toward its
// ceiling (max). This replaces the source's injection of the Python min/max
// builtins as rate_limit_object.
type Limit int

const (
	LimitMin Limit = iota
	LimitMax
)

func (l Limit) clamp(calculated, final decimal.Decimal) decimal.Decimal {
	if l == LimitMin {
		if calculated.LessThan(final) {
			return final
		}
		return calculated
	}
	if calculated.GreaterThan(final) {
		return final
	}
	return calculated
}

// Profile supplies the initial/final rate and the per-update step for a
// given time slot, looked up by weekday + time-of-day to support multi-day
// runs that repeat a daily pattern.
type Profile struct {
	InitialRate           decimal.Decimal
	FinalRate             decimal.Decimal
	FitToLimit            bool
	RateChangePerUpdate   decimal.Decimal // only used when FitToLimit is false
}

// Updater tracks, per time slot, how many times the rate has been stepped
// and computes the rate that should be posted at the current tick.
type Updater struct {
	Limit          Limit
	UpdateInterval time.Duration
	SlotLength     time.Duration

	profiles map[time.Time]Profile
	step     map[time.Time]decimal.Decimal
	counter  map[time.Time]int
}

// New constructs an Updater for the given slot length and per-update
// interval.
func New(limit Limit, slotLength, updateInterval time.Duration) *Updater {
	return &Updater{
		Limit:          limit,
		UpdateInterval: updateInterval,
		SlotLength:     slotLength,
		profiles:       make(map[time.Time]Profile),
		step:           make(map[time.Time]decimal.Decimal),
		counter:        make(map[time.Time]int),
	}
}

// availableUpdates returns U = max(floor(slot_length/update_interval) - 1, 1).
func (u *Updater) availableUpdates() int {
	n := int(u.SlotLength/u.UpdateInterval) - 1
	if n < 1 {
		return 1
	}
	return n
}

// Populate registers the rate profile for a time slot and computes its
// per-update step when FitToLimit is set.
func (u *Updater) Populate(slot time.Time, p Profile) {
	u.profiles[slot] = p
	u.counter[slot] = 0
	if p.FitToLimit {
		u.step[slot] = p.InitialRate.Sub(p.FinalRate).Div(decimal.NewFromInt(int64(u.availableUpdates())))
	} else {
		u.step[slot] = p.RateChangePerUpdate
	}
}

// ElapsedSeconds returns the seconds elapsed within the current slot, given
// the tick number (0-based) and tick length.
func ElapsedSeconds(currentTick int, ticksPerSlot int, tickLength time.Duration) int {
	tickInSlot := currentTick % ticksPerSlot
	return tickInSlot * int(tickLength/time.Second)
}

// TimeForUpdate reports whether, given elapsedSeconds into the slot, the
// next scheduled update for this slot is due.
func (u *Updater) TimeForUpdate(slot time.Time, elapsedSeconds int) bool {
	return elapsedSeconds >= int(u.UpdateInterval/time.Second)*u.counter[slot]
}

// Increment advances the update counter for a slot if it is time for an
// update, and reports whether it did so (the caller should re-post the
// strategy's order rate exactly when this returns true).
func (u *Updater) Increment(slot time.Time, elapsedSeconds int) bool {
	if u.TimeForUpdate(slot, elapsedSeconds) {
		u.counter[slot]++
		return true
	}
	return false
}

// Rate returns the rate that should be posted for the slot at its current
// update counter.
func (u *Updater) Rate(slot time.Time) decimal.Decimal {
	p := u.profiles[slot]
	calculated := p.InitialRate.Sub(u.step[slot].Mul(decimal.NewFromInt(int64(u.counter[slot]))))
	return u.Limit.clamp(calculated, p.FinalRate)
}

// Reset sets a slot's counter back to zero, used when a strategy's orders
// are cancelled and reposted from the initial rate.
func (u *Updater) Reset(slot time.Time) {
	u.counter[slot] = 0
}

// DeletePastSlots drops profile/step/counter state for slots before the
// given cutoff, bounding memory to the slots still relevant.
func (u *Updater) DeletePastSlots(cutoff time.Time) {
	for slot := range u.profiles {
		if slot.Before(cutoff) {
			delete(u.profiles, slot)
			delete(u.step, slot)
			delete(u.counter, slot)
		}
	}
}
