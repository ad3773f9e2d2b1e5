// Package pool implements the waterfall review acquisition order: for one
// hotel, reviews are drawn from three pools in strict sequence under a shared
// global cap. Negative-signal reviews first (scarce, high analytic value),
// then image-bearing "evidence" reviews, then most-recent reviews for
// whatever budget remains.
package pool

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/stayscan/internal/clean"
	"github.com/sells-group/stayscan/internal/driver"
	"github.com/sells-group/stayscan/internal/model"
)

// Source is the review-paging surface the allocator pulls from. It is a
// subset of driver.PageDriver so the engine can hand the live session in
// directly while tests substitute scripted fixtures.
type Source interface {
	TotalReviewCount(ctx context.Context) (count int, known bool, err error)
	ApplyReviewFilter(ctx context.Context, f driver.ReviewFilter, withImages bool) error
	ExtractReviewPage(ctx context.Context) ([]model.Review, error)
	NextReviewPage(ctx context.Context) (ok bool, err error)
}

// Config bounds the waterfall.
type Config struct {
	MaxTotal    int `yaml:"max_total" mapstructure:"max_total"`
	NegativeCap int `yaml:"negative_cap" mapstructure:"negative_cap"`
	EvidenceCap int `yaml:"evidence_cap" mapstructure:"evidence_cap"`
	MinReviews  int `yaml:"min_reviews" mapstructure:"min_reviews"`
}

// DefaultConfig mirrors the production acquisition bounds: 300 reviews per
// hotel at most, 100 of them negative and 150 image-bearing, and hotels with
// fewer than 200 reviews skipped outright.
func DefaultConfig() Config {
	return Config{
		MaxTotal:    300,
		NegativeCap: 100,
		EvidenceCap: 150,
		MinReviews:  200,
	}
}

// Result is the outcome for one hotel. Skipped is an explicit variant, not
// an error: a below-threshold hotel is not worth the acquisition cost.
type Result struct {
	HotelID    string
	Reviews    []model.Review
	Skipped    bool
	SkipReason string
	PoolCounts map[model.SourcePool]int
	TotalSeen  int
}

// Allocator drives the waterfall for one hotel at a time.
type Allocator struct {
	cfg  Config
	log  *zap.Logger
	seen map[string]bool
}

func New(cfg Config) *Allocator {
	return &Allocator{
		cfg: cfg,
		log: zap.L().With(zap.String("component", "pool")),
	}
}

// segment is one filter pass contributing to a pool.
type segment struct {
	pool       model.SourcePool
	filter     driver.ReviewFilter
	withImages bool
}

// Allocate fills the three pools in order from src, which must already be on
// the hotel's detail page. Pagination within a pool stops at the pool cap,
// at source exhaustion, or after two consecutive pages that contribute no new
// identifiers (the site can repeat a page under filter/pagination races).
func (a *Allocator) Allocate(ctx context.Context, hotelID string, src Source) (*Result, error) {
	res := &Result{
		HotelID:    hotelID,
		PoolCounts: make(map[model.SourcePool]int, 3),
	}
	a.seen = make(map[string]bool)

	total, known, err := src.TotalReviewCount(ctx)
	if err != nil {
		return nil, eris.Wrapf(err, "pool: total review count for %s", hotelID)
	}
	if known {
		res.TotalSeen = total
		if total < a.cfg.MinReviews {
			res.Skipped = true
			res.SkipReason = "below review threshold"
			a.log.Info("hotel skipped",
				zap.String("hotel_id", hotelID),
				zap.Int("reviews", total),
				zap.Int("threshold", a.cfg.MinReviews))
			return res, nil
		}
	}

	// The negative pool drains the "bad" filter before topping up from
	// "medium"; both segments share the negative cap.
	plan := []struct {
		segments []segment
		cap      int
	}{
		{
			segments: []segment{
				{pool: model.PoolNegative, filter: driver.FilterBad},
				{pool: model.PoolNegative, filter: driver.FilterMedium},
			},
			cap: a.cfg.NegativeCap,
		},
		{
			segments: []segment{
				{pool: model.PoolEvidence, filter: driver.FilterAll, withImages: true},
			},
			cap: a.cfg.EvidenceCap,
		},
		{
			segments: []segment{
				{pool: model.PoolLatest, filter: driver.FilterAll},
			},
			cap: a.cfg.MaxTotal,
		},
	}

	for _, stage := range plan {
		if len(res.Reviews) >= a.cfg.MaxTotal {
			break
		}
		poolCap := stage.cap
		if room := a.cfg.MaxTotal - len(res.Reviews); poolCap > room {
			poolCap = room
		}
		for _, seg := range stage.segments {
			taken := res.PoolCounts[seg.pool]
			if taken >= poolCap {
				break
			}
			if err := a.fillSegment(ctx, hotelID, src, seg, poolCap, res); err != nil {
				return nil, err
			}
		}
	}

	a.log.Info("allocation complete",
		zap.String("hotel_id", hotelID),
		zap.Int("accepted", len(res.Reviews)),
		zap.Int("negative", res.PoolCounts[model.PoolNegative]),
		zap.Int("evidence", res.PoolCounts[model.PoolEvidence]),
		zap.Int("latest", res.PoolCounts[model.PoolLatest]))
	return res, nil
}

// fillSegment pages one filter until the owning pool hits poolCap, the
// global cap is reached, the source exhausts, or the stagnation guard trips.
func (a *Allocator) fillSegment(ctx context.Context, hotelID string, src Source, seg segment, poolCap int, res *Result) error {
	if err := src.ApplyReviewFilter(ctx, seg.filter, seg.withImages); err != nil {
		return eris.Wrapf(err, "pool: apply filter %d for %s", seg.filter, hotelID)
	}

	stagnant := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if res.PoolCounts[seg.pool] >= poolCap || len(res.Reviews) >= a.cfg.MaxTotal {
			return nil
		}

		page, err := src.ExtractReviewPage(ctx)
		if err != nil {
			return eris.Wrapf(err, "pool: extract review page for %s", hotelID)
		}

		fresh := 0
		for i := range page {
			if res.PoolCounts[seg.pool] >= poolCap || len(res.Reviews) >= a.cfg.MaxTotal {
				break
			}
			r := page[i]
			r.HotelID = hotelID
			// The ID is content-addressed over normalized text, so the
			// same review re-extracted with different markup collapses.
			r.Content = clean.Text(r.Content)
			r.Summary = clean.Text(r.Summary)
			if len(r.Tags) == 0 {
				r.Tags = clean.Tags(r.Content)
			}
			r.EnsureID()
			if r.ID == "" || a.seen[r.ID] {
				continue
			}
			if err := r.Validate(); err != nil {
				a.log.Warn("review dropped",
					zap.String("hotel_id", hotelID),
					zap.Error(err))
				continue
			}
			a.seen[r.ID] = true
			r.SourcePool = seg.pool
			if seg.withImages {
				r.HasImages = true
			}
			if r.OverallScore == nil {
				r.ComputeOverall()
			}
			res.Reviews = append(res.Reviews, r)
			res.PoolCounts[seg.pool]++
			fresh++
		}

		if fresh == 0 {
			stagnant++
			if stagnant >= 2 {
				a.log.Debug("pool abandoned: pagination stagnant",
					zap.String("hotel_id", hotelID),
					zap.String("pool", string(seg.pool)))
				return nil
			}
		} else {
			stagnant = 0
		}

		ok, err := src.NextReviewPage(ctx)
		if err != nil {
			return eris.Wrapf(err, "pool: next review page for %s", hotelID)
		}
		if !ok {
			return nil
		}
	}
}
