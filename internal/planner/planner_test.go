package planner

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/stayscan/internal/dedup"
	"github.com/sells-group/stayscan/internal/model"
	"github.com/sells-group/stayscan/internal/plan"
)

func testPlan() *plan.Plan {
	return &plan.Plan{
		City:     "Guangzhou",
		CityCode: "440100",
		Tiers: []plan.Tier{
			{Level: "economy", MinPrice: 0, MaxPrice: 300, Target: 4, Weight: 3},
			{Level: "comfort", MinPrice: 300, MaxPrice: 600, Target: 6, Weight: 4},
			{Level: "premium", MinPrice: 600, MaxPrice: 900, Target: 3, Weight: 2},
			{Level: "luxury", MinPrice: 900, MaxPrice: 99999, Target: 2, Weight: 1},
		},
		Regions: []plan.Region{
			{Name: "cbd", Weight: 10, Zones: []plan.Zone{
				{Name: "zhujiang", Code: "39584"},
				{Name: "tianhe", Code: "39585"},
			}},
		},
	}
}

// attempt records one FetchTier call made by the planner.
type attempt struct {
	tier string
	want int
}

// fakeSource yields hotels from per-tier wells. Each well is drained across
// calls, so a second attempt on the same tier sees only what is left.
type fakeSource struct {
	supply   map[string][]model.Hotel
	attempts []attempt
	errTiers map[string]error
}

func (f *fakeSource) FetchTier(_ context.Context, _ plan.Region, _ plan.Zone, tier plan.Tier, want int) ([]model.Hotel, error) {
	f.attempts = append(f.attempts, attempt{tier: tier.Level, want: want})
	if err := f.errTiers[tier.Level]; err != nil {
		return nil, err
	}
	well := f.supply[tier.Level]
	n := want
	if n > len(well) {
		n = len(well)
	}
	batch := well[:n]
	f.supply[tier.Level] = well[n:]
	return batch, nil
}

func hotels(tier string, from, n int) []model.Hotel {
	out := make([]model.Hotel, 0, n)
	for i := from; i < from+n; i++ {
		out = append(out, model.Hotel{
			SourceID: fmt.Sprintf("%s-%03d", tier, i),
			Name:     fmt.Sprintf("Hotel %s %d", tier, i),
		})
	}
	return out
}

func TestPlanZone_FullSupply(t *testing.T) {
	t.Parallel()
	pl := testPlan()
	src := &fakeSource{supply: map[string][]model.Hotel{
		"economy": hotels("economy", 0, 10),
		"comfort": hotels("comfort", 0, 10),
		"premium": hotels("premium", 0, 10),
		"luxury":  hotels("luxury", 0, 10),
	}}
	p := New(pl, src, dedup.NewLedger())

	res, err := p.PlanZone(context.Background(), pl.Regions[0], pl.Regions[0].Zones[0])
	require.NoError(t, err)

	assert.Equal(t, 15, res.Target)
	assert.Len(t, res.Accepted, 15)
	assert.Zero(t, res.Shortfall)
	assert.Equal(t, map[string]int{"economy": 4, "comfort": 6, "premium": 3, "luxury": 2}, res.TierActuals)

	// Full supply means no backfill: exactly one attempt per tier, at the
	// configured targets.
	require.Len(t, src.attempts, 4)
	assert.Equal(t, []attempt{
		{"economy", 4}, {"comfort", 6}, {"premium", 3}, {"luxury", 2},
	}, src.attempts)
}

func TestPlanZone_ForwardCarryOver(t *testing.T) {
	t.Parallel()
	pl := testPlan()
	// Tier 2 yields only 2 of 6; the deficit of 4 rolls into tier 3's
	// request, and tier 3's own deficit rolls onward into tier 4.
	src := &fakeSource{supply: map[string][]model.Hotel{
		"economy": hotels("economy", 0, 4),
		"comfort": hotels("comfort", 0, 2),
		"premium": hotels("premium", 0, 3),
		"luxury":  hotels("luxury", 0, 10),
	}}
	p := New(pl, src, dedup.NewLedger())

	res, err := p.PlanZone(context.Background(), pl.Regions[0], pl.Regions[0].Zones[0])
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(src.attempts), 4)
	assert.Equal(t, attempt{"comfort", 6}, src.attempts[1])
	assert.Equal(t, attempt{"premium", 7}, src.attempts[2], "tier 3 request = base 3 + carried deficit 4")
	assert.Equal(t, attempt{"luxury", 6}, src.attempts[3], "tier 4 request = base 2 + carried deficit 4")

	assert.Len(t, res.Accepted, 15)
	assert.Zero(t, res.Shortfall)
}

func TestPlanZone_ReversePassSkipsHighestTier(t *testing.T) {
	t.Parallel()
	pl := testPlan()
	// Forward pass comes up short and the luxury well is dry, so the
	// reverse pass must walk premium -> comfort -> economy. The highest
	// tier was the last one the forward pass hit and is not re-attempted.
	src := &fakeSource{supply: map[string][]model.Hotel{
		"economy": hotels("economy", 0, 20),
		"comfort": hotels("comfort", 0, 2),
		"premium": hotels("premium", 0, 3),
		"luxury":  nil,
	}}
	p := New(pl, src, dedup.NewLedger())

	res, err := p.PlanZone(context.Background(), pl.Regions[0], pl.Regions[0].Zones[0])
	require.NoError(t, err)

	// Forward: economy 4/4, comfort 2/6, premium 3/7, luxury 0/6 -> remaining 6.
	// Reverse: premium asked for 6 (dry), comfort asked for 6 (dry),
	// economy asked for 6 and delivers.
	require.Len(t, src.attempts, 7)
	assert.Equal(t, attempt{"premium", 6}, src.attempts[4])
	assert.Equal(t, attempt{"comfort", 6}, src.attempts[5])
	assert.Equal(t, attempt{"economy", 6}, src.attempts[6])
	for _, a := range src.attempts[4:] {
		assert.NotEqual(t, "luxury", a.tier, "reverse pass must not revisit the highest tier")
	}

	assert.Len(t, res.Accepted, 15)
	assert.Zero(t, res.Shortfall)
	assert.Equal(t, 10, res.TierActuals["economy"])
}

func TestPlanZone_ShortfallIsNotAnError(t *testing.T) {
	t.Parallel()
	pl := testPlan()
	src := &fakeSource{supply: map[string][]model.Hotel{
		"economy": hotels("economy", 0, 1),
		"comfort": hotels("comfort", 0, 1),
	}}
	p := New(pl, src, dedup.NewLedger())

	res, err := p.PlanZone(context.Background(), pl.Regions[0], pl.Regions[0].Zones[0])
	require.NoError(t, err)

	assert.Len(t, res.Accepted, 2)
	assert.Equal(t, 13, res.Shortfall)
}

func TestPlanZone_FetchErrorDegradesToZeroYield(t *testing.T) {
	t.Parallel()
	pl := testPlan()
	src := &fakeSource{
		supply: map[string][]model.Hotel{
			"economy": hotels("economy", 0, 20),
			"premium": hotels("premium", 0, 10),
			"luxury":  hotels("luxury", 0, 10),
		},
		errTiers: map[string]error{"comfort": assert.AnError},
	}
	p := New(pl, src, dedup.NewLedger())

	res, err := p.PlanZone(context.Background(), pl.Regions[0], pl.Regions[0].Zones[0])
	require.NoError(t, err, "a failing tier degrades the zone, it does not abort it")

	assert.Len(t, res.Accepted, 15)
	assert.Zero(t, res.Shortfall)
	assert.GreaterOrEqual(t, res.FetchErrors, 1)
	assert.Zero(t, res.TierActuals["comfort"])
}

func TestPlanZone_RegionScopedDedup(t *testing.T) {
	t.Parallel()
	pl := testPlan()
	ledger := dedup.NewLedger()
	region := pl.Regions[0]

	// Both zones see the identical economy inventory. The second zone must
	// not get credit for hotels the first already accepted.
	mkSource := func() *fakeSource {
		return &fakeSource{supply: map[string][]model.Hotel{
			"economy": hotels("economy", 0, 4),
			"comfort": hotels("comfort", 0, 6),
			"premium": hotels("premium", 0, 3),
			"luxury":  hotels("luxury", 0, 2),
		}}
	}

	p1 := New(pl, mkSource(), ledger)
	res1, err := p1.PlanZone(context.Background(), region, region.Zones[0])
	require.NoError(t, err)
	assert.Len(t, res1.Accepted, 15)

	p2 := New(pl, mkSource(), ledger)
	res2, err := p2.PlanZone(context.Background(), region, region.Zones[1])
	require.NoError(t, err)
	assert.Empty(t, res2.Accepted)
	assert.Equal(t, 15, res2.Shortfall)

	// Region-wide property: no identifier credited twice.
	seen := make(map[string]bool)
	for _, h := range append(res1.Accepted, res2.Accepted...) {
		assert.False(t, seen[h.SourceID], "hotel %s accepted twice", h.SourceID)
		seen[h.SourceID] = true
	}
}

func TestPlanZone_ClassificationBeatsFetchTier(t *testing.T) {
	t.Parallel()
	pl := testPlan()
	price := 950 // luxury by price, fetched under economy
	src := &fakeSource{supply: map[string][]model.Hotel{
		"economy": {{SourceID: "h-1", Name: "Mispriced Hotel", BasePrice: &price}},
	}}
	p := New(pl, src, dedup.NewLedger())

	res, err := p.PlanZone(context.Background(), pl.Regions[0], pl.Regions[0].Zones[0])
	require.NoError(t, err)
	require.NotEmpty(t, res.Accepted)

	h := res.Accepted[0]
	assert.Equal(t, "luxury", h.PriceLevel, "price classification is authoritative")
	assert.Equal(t, "economy", h.FetchedTier, "fetch tier is provenance")
	assert.Equal(t, "cbd", h.RegionType)
	assert.Equal(t, "39584", h.BusinessZoneCode)
	assert.Equal(t, "440100", h.CityCode)
}

func TestPlanZone_NeverExceedsTarget(t *testing.T) {
	t.Parallel()
	pl := testPlan()
	src := &fakeSource{supply: map[string][]model.Hotel{
		"economy": hotels("economy", 0, 100),
		"comfort": hotels("comfort", 0, 100),
		"premium": hotels("premium", 0, 100),
		"luxury":  hotels("luxury", 0, 100),
	}}
	p := New(pl, src, dedup.NewLedger())

	res, err := p.PlanZone(context.Background(), pl.Regions[0], pl.Regions[0].Zones[0])
	require.NoError(t, err)
	assert.Len(t, res.Accepted, pl.ZoneTarget())
}

func TestPlanZone_Cancellation(t *testing.T) {
	t.Parallel()
	pl := testPlan()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := New(pl, &fakeSource{supply: map[string][]model.Hotel{}}, dedup.NewLedger())
	_, err := p.PlanZone(ctx, pl.Regions[0], pl.Regions[0].Zones[0])
	require.ErrorIs(t, err, context.Canceled)
}
