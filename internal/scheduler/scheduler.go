// Package scheduler drives the single-threaded tick/slot loop: advancing
// ticks within a slot, rotating the spot and future markets on slot
// boundaries, and fetching matching data for the external matcher. It does
// not step any rate updater, so template strategies post at the rate their
// updater gives before any increment. Grounded structurally on the teacher's internal/engine.Engine
// (context+cancel+WaitGroup lifecycle, main select loop), generalized from
// "manage WS-driven market slots" to "advance ticks and rotate markets."
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"gridsim/internal/area"
	"gridsim/internal/extmatcher"
	"gridsim/internal/futures"
	"gridsim/internal/matching"
	"gridsim/pkg/orders"
)

// JobError carries a top-level panic out of Run as a value instead of an
// unrecovered crash, mirroring rq_job_handler.py's top-level except-log-
// republish pattern (publish_job_error_output + traceback.format_exc()).
type JobError struct {
	Message    string
	Traceback  string
}

func (e JobError) Error() string { return e.Message }

// Scheduler owns the area tree and advances it tick by tick.
type Scheduler struct {
	Tree       *area.Tree
	SlotLength time.Duration
	TickLength time.Duration
	StartSlot  time.Time
	Duration   time.Duration

	Hub                    *extmatcher.Hub
	ExternalMatcherEnabled bool
	ExternalMatcherTimeout time.Duration

	Engine          matching.Engine   // clearing algorithm run against every owning market at slot close
	KeepPastMarkets int               // sealed markets retained per area; 0 keeps all of them
	FutureMarkets   []*futures.Market // rotated alongside the spot tree on every slot close
	Settlement      *futures.Settlement // true-up market opened for each slot once it has sealed

	OnSlotClose func(slot time.Time) // checkpoint/export hook, called after each slot rotates out

	logger *slog.Logger

	paused   atomic.Bool
	slowdown atomic.Int64 // time.Duration, extra sleep per tick

	tick         int
	ticksPerSlot int
	currentSlot  time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	done chan struct{}
}

// New constructs a Scheduler ready to Run. tickLength must evenly divide
// slotLength.
func New(tree *area.Tree, slotLength, tickLength, duration time.Duration, startSlot time.Time, logger *slog.Logger) (*Scheduler, error) {
	if slotLength <= 0 || tickLength <= 0 {
		return nil, fmt.Errorf("scheduler: slot and tick length must be positive")
	}
	if slotLength%tickLength != 0 {
		return nil, fmt.Errorf("scheduler: slot_length must be an exact multiple of tick_length")
	}
	return &Scheduler{
		Tree:                   tree,
		SlotLength:             slotLength,
		TickLength:             tickLength,
		StartSlot:              startSlot,
		Duration:               duration,
		ExternalMatcherTimeout: 5 * time.Second,
		Engine:                 matching.PayAsClear{}, // matches config's own default
		KeepPastMarkets:        10,
		logger:                 logger.With("component", "scheduler"),
		ticksPerSlot:           int(slotLength / tickLength),
		currentSlot:            startSlot,
		done:                   make(chan struct{}),
	}, nil
}

// Pause halts tick advancement until Resume is called.
func (s *Scheduler) Pause() { s.paused.Store(true) }

// Resume un-halts tick advancement.
func (s *Scheduler) Resume() { s.paused.Store(false) }

// SetSlowdown adds d of extra sleep between ticks, letting a caller slow a
// run down for observation without changing simulated tick length.
func (s *Scheduler) SetSlowdown(d time.Duration) { s.slowdown.Store(int64(d)) }

// Run executes the full simulation to completion (or until ctx is
// cancelled), recovering any panic into a JobError rather than crashing
// the process — mirroring the source's top-level except/republish/re-raise
// around run_simulation.
func (s *Scheduler) Run(ctx context.Context) (err error) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	defer s.cancel()

	defer func() {
		if r := recover(); r != nil {
			jobErr := JobError{
				Message:   fmt.Sprintf("panic in scheduler run: %v", r),
				Traceback: string(debug.Stack()),
			}
			s.logger.Error("scheduler panicked", "error", jobErr.Message)
			err = jobErr
		}
	}()

	s.Tree.Activate()
	s.primeSlot(s.currentSlot)

	totalTicks := int(s.Duration / s.TickLength)
	ticker := time.NewTicker(s.TickLength)
	defer ticker.Stop()

	for s.tick = 0; s.tick < totalTicks; s.tick++ {
		select {
		case <-s.ctx.Done():
			return s.ctx.Err()
		case <-ticker.C:
		}

		for s.paused.Load() {
			select {
			case <-s.ctx.Done():
				return s.ctx.Err()
			case <-time.After(50 * time.Millisecond):
			}
		}

		if d := time.Duration(s.slowdown.Load()); d > 0 {
			time.Sleep(d)
		}

		s.Tree.Tick(s.tick)
		for _, n := range s.Tree.Nodes {
			n.Market.SetTick(s.tick)
		}
		if s.Hub != nil {
			s.Hub.PublishTick()
		}

		if s.tick > 0 && s.tick%s.ticksPerSlot == 0 {
			closed := s.currentSlot
			s.currentSlot = s.currentSlot.Add(s.SlotLength)
			s.closeSlot(closed, s.currentSlot)
			if s.OnSlotClose != nil {
				s.OnSlotClose(closed)
			}
		}
	}

	if s.Hub != nil {
		s.Hub.PublishFinish()
	}
	close(s.done)
	return nil
}

// Stop cancels the run in progress; Run returns ctx.Err() shortly after.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

// Done reports run completion, mirroring the teacher's engine lifecycle
// signal for callers awaiting graceful shutdown.
func (s *Scheduler) Done() <-chan struct{} { return s.done }

// primeSlot dispatches MARKET_CYCLE for the very first slot of the run, so
// strategies post their initial orders before any tick has elapsed. There
// is nothing to clear or rotate yet, so it skips straight to the strategy
// hook.
func (s *Scheduler) primeSlot(slot time.Time) {
	s.Tree.MarketCycle(slot)
	if s.Hub != nil {
		s.Hub.PublishMarketCycle()
	}
}

// closeSlot implements spec step 4.7.5: forward eligible child orders up
// through every inter-area agent, run the configured clearing engine
// against every market that owns one, chain each resulting trade back down
// to the child that originated it, then seal and rotate every market
// (spot and future) before priming the next slot's strategies.
func (s *Scheduler) closeSlot(closed, next time.Time) {
	s.logger.Debug("closing slot", "slot", closed, "next_slot", next)

	for _, n := range s.Tree.Nodes {
		if n.Agent == nil {
			continue
		}
		if _, err := n.Agent.ForwardEligibleOffers(); err != nil {
			s.logger.Warn("forward offers failed", "area", n.Name, "error", err)
		}
		if _, err := n.Agent.ForwardEligibleBids(); err != nil {
			s.logger.Warn("forward bids failed", "area", n.Name, "error", err)
		}
	}

	for i, n := range s.Tree.Nodes {
		ownsMarket := i == 0 || n.Agent != nil
		if !ownsMarket || s.Engine == nil {
			continue
		}
		trades, err := s.Engine.Clear(n.Market)
		if err != nil {
			s.logger.Warn("clear failed", "area", n.Name, "error", err)
		}
		for _, trade := range trades {
			s.chainDown(n, trade)
		}
	}

	s.Tree.Rotate(next, s.KeepPastMarkets)
	for _, fm := range s.FutureMarkets {
		fm.Rotate(next)
	}
	if s.Settlement != nil {
		// Opened retroactively now that closed has fully sealed, so any
		// forecast/realized true-up for it can be posted against a market
		// scoped to exactly that slot; closed immediately since this run
		// has no strategy yet posting settlement orders into it.
		s.Settlement.Open(closed)
		s.Settlement.Close(closed)
	}

	s.Tree.MarketCycle(next)
	if s.Hub != nil {
		s.Hub.PublishMarketCycle()
	}
}

// chainDown finds the child agent (if any) responsible for the parent
// offer a trade settled against and chains the trade down to the child
// market that originated it.
func (s *Scheduler) chainDown(parent *area.Node, trade orders.Trade) {
	for _, childIdx := range parent.ChildIdx {
		child := s.Tree.Nodes[childIdx]
		if child.Agent == nil || !child.Agent.ForwardedBy(trade.Offer.ID) {
			continue
		}
		if _, err := child.Agent.ChainTrade(trade); err != nil {
			s.logger.Warn("chain trade failed", "area", child.Name, "error", err)
		}
		return
	}
}

// AwaitExternalMatch asks the hub for the matching data described by req
// and blocks for the response, falling back to an empty response if the
// timeout elapses — the scheduler must never stall a tick
// waiting indefinitely for an external client.
func (s *Scheduler) AwaitExternalMatch(req extmatcher.MatchingDataRequest) extmatcher.MatchingDataResponse {
	if s.Hub == nil || !s.ExternalMatcherEnabled {
		return extmatcher.MatchingDataResponse{}
	}
	ctx, cancel := context.WithTimeout(s.ctx, s.ExternalMatcherTimeout)
	defer cancel()

	resultCh := make(chan extmatcher.MatchingDataResponse, 1)
	go func() {
		resultCh <- s.Hub.MatchingData(req)
	}()

	select {
	case resp := <-resultCh:
		return resp
	case <-ctx.Done():
		s.logger.Warn("external matcher timed out, proceeding without its recommendations")
		return extmatcher.MatchingDataResponse{}
	}
}
