// Package planner turns the per-zone tier targets of a sampling plan into a
// bounded sequence of list fetches, redistributing shortfalls across tiers.
//
// The quota policy is two-pass. The forward pass walks tiers in ascending
// price order; a tier that under-delivers carries its deficit into the next
// tier's request. If the zone is still short after the forward pass, a
// reverse pass walks tiers from the highest price band downward, excluding
// the band the forward pass ended on, and requests the outstanding remainder
// from each until the zone target is met or every band is exhausted. A zone
// that stays short is recorded as short and processing continues; shortfall
// is a summary datum, not an error.
package planner

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/stayscan/internal/clean"
	"github.com/sells-group/stayscan/internal/dedup"
	"github.com/sells-group/stayscan/internal/model"
	"github.com/sells-group/stayscan/internal/plan"
)

// ListSource performs one bounded list fetch for a (zone, tier) cell and
// returns the raw candidates it saw, at most want of them. Implementations
// wrap the page driver; tests substitute fixtures.
type ListSource interface {
	FetchTier(ctx context.Context, region plan.Region, zone plan.Zone, tier plan.Tier, want int) ([]model.Hotel, error)
}

// ListSourceFunc adapts a function to the ListSource interface.
type ListSourceFunc func(ctx context.Context, region plan.Region, zone plan.Zone, tier plan.Tier, want int) ([]model.Hotel, error)

func (f ListSourceFunc) FetchTier(ctx context.Context, region plan.Region, zone plan.Zone, tier plan.Tier, want int) ([]model.Hotel, error) {
	return f(ctx, region, zone, tier, want)
}

// QuotaState tracks quota consumption for one zone while its tiers are
// being processed.
type QuotaState struct {
	TargetTotal int
	Remaining   int
	CarryOver   int
}

func newQuotaState(target int) *QuotaState {
	return &QuotaState{TargetTotal: target, Remaining: target}
}

// record books one tier attempt: the deficit between requested and actual
// becomes the next tier's carry-over.
func (q *QuotaState) record(requested, actual int) {
	q.Remaining -= actual
	q.CarryOver = requested - actual
	if q.CarryOver < 0 {
		q.CarryOver = 0
	}
}

func (q *QuotaState) satisfied() bool { return q.Remaining <= 0 }

// ZoneResult summarizes one zone's planning outcome.
type ZoneResult struct {
	Region      string
	Zone        plan.Zone
	Target      int
	Accepted    []model.Hotel
	Shortfall   int
	TierActuals map[string]int
	FetchErrors int
}

// Planner drives the two-pass quota walk for each zone. It consults the
// dedup ledger before crediting a candidate toward the zone's actual count,
// so an identifier seen in a sibling zone of the same region never inflates
// the quota.
type Planner struct {
	plan   *plan.Plan
	src    ListSource
	ledger *dedup.Ledger
	log    *zap.Logger
}

func New(p *plan.Plan, src ListSource, ledger *dedup.Ledger) *Planner {
	return &Planner{
		plan:   p,
		src:    src,
		ledger: ledger,
		log:    zap.L().With(zap.String("component", "planner")),
	}
}

// PlanZone executes the forward and reverse passes for one zone and returns
// the accepted candidates, bounded by the sum of tier targets. Fetch errors
// degrade the tier to a zero yield; only context cancellation aborts.
func (p *Planner) PlanZone(ctx context.Context, region plan.Region, zone plan.Zone) (*ZoneResult, error) {
	tiers := p.plan.Tiers
	res := &ZoneResult{
		Region:      region.Name,
		Zone:        zone,
		Target:      p.plan.ZoneTarget(),
		TierActuals: make(map[string]int, len(tiers)),
	}
	quota := newQuotaState(res.Target)

	log := p.log.With(zap.String("region", region.Name), zap.String("zone", zone.Name))

	// Forward pass: ascending price order, deficits roll into the next tier.
	for _, tier := range tiers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		requested := tier.Target + quota.CarryOver
		if requested > quota.Remaining {
			requested = quota.Remaining
		}
		if requested <= 0 {
			quota.record(0, 0)
			continue
		}
		actual := p.attemptTier(ctx, region, zone, tier, requested, res)
		quota.record(requested, actual)
		log.Debug("tier attempt",
			zap.String("tier", tier.Level),
			zap.Int("requested", requested),
			zap.Int("actual", actual),
			zap.Int("remaining", quota.Remaining))
	}

	// Reverse pass: highest band down, skipping the band the forward pass
	// ended on, each attempt asking for the full remainder.
	if !quota.satisfied() {
		for idx := len(tiers) - 1; idx >= 0; idx-- {
			if idx == len(tiers)-1 {
				continue
			}
			if quota.satisfied() {
				break
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			tier := tiers[idx]
			requested := quota.Remaining
			actual := p.attemptTier(ctx, region, zone, tier, requested, res)
			quota.record(requested, actual)
			log.Debug("backfill attempt",
				zap.String("tier", tier.Level),
				zap.Int("requested", requested),
				zap.Int("actual", actual),
				zap.Int("remaining", quota.Remaining))
		}
	}

	if !quota.satisfied() {
		res.Shortfall = quota.Remaining
		log.Warn("zone short after both passes",
			zap.Int("target", res.Target),
			zap.Int("shortfall", res.Shortfall))
	}
	return res, nil
}

// attemptTier runs one bounded fetch and credits the ledger-filtered yield.
// Candidates are stamped with their scope and classified by price before
// acceptance; classification wins over fetch tier when the two disagree.
func (p *Planner) attemptTier(ctx context.Context, region plan.Region, zone plan.Zone, tier plan.Tier, want int, res *ZoneResult) int {
	hotels, err := p.src.FetchTier(ctx, region, zone, tier, want)
	if err != nil {
		res.FetchErrors++
		p.log.Warn("tier fetch failed",
			zap.String("zone", zone.Name),
			zap.String("tier", tier.Level),
			zap.Error(err))
		return 0
	}

	var actual int
	for i := range hotels {
		if actual >= want {
			break
		}
		h := hotels[i]
		if h.SourceID == "" {
			continue
		}
		if !p.ledger.Accept(region.Name, h.SourceID) {
			continue
		}
		h.Name = clean.HotelName(h.Name)
		h.Address = clean.Text(h.Address)
		h.RegionType = region.Name
		h.BusinessZone = zone.Name
		h.BusinessZoneCode = zone.Code
		h.CityCode = p.plan.CityCode
		h.FetchedTier = tier.Level
		if level := p.plan.ClassifyTier(h.BasePrice); level != "" {
			h.PriceLevel = level
		} else {
			h.PriceLevel = tier.Level
		}
		res.Accepted = append(res.Accepted, h)
		actual++
	}
	res.TierActuals[tier.Level] += actual
	return actual
}
