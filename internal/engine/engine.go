// Package engine wires the planner, scheduler, allocator, and pacing policy
// to the live page driver and the store. It is the only package that touches
// all of them; the CLI talks to the engine and nothing below it.
package engine

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/stayscan/internal/clean"
	"github.com/sells-group/stayscan/internal/dedup"
	"github.com/sells-group/stayscan/internal/driver"
	"github.com/sells-group/stayscan/internal/model"
	"github.com/sells-group/stayscan/internal/pace"
	"github.com/sells-group/stayscan/internal/plan"
	"github.com/sells-group/stayscan/internal/planner"
	"github.com/sells-group/stayscan/internal/pool"
	"github.com/sells-group/stayscan/internal/resilience"
	"github.com/sells-group/stayscan/internal/store"
	"github.com/sells-group/stayscan/internal/task"
)

// Resumer is the operator's manual-intervention hook: when an anti-automation
// challenge survives motion synthesis, the engine parks on WaitForOperator
// until a human clears the page (or the context ends).
type Resumer interface {
	WaitForOperator(ctx context.Context, reason string) error
}

// ResumerFunc adapts a function to the Resumer interface.
type ResumerFunc func(ctx context.Context, reason string) error

func (f ResumerFunc) WaitForOperator(ctx context.Context, reason string) error {
	return f(ctx, reason)
}

// autoResumer resumes immediately; the unresolved challenge then surfaces as
// a transient failure and the task machine books the retry.
type autoResumer struct{}

func (autoResumer) WaitForOperator(context.Context, string) error { return nil }

// Options collects the engine's collaborators. Zero-value Review and Retry
// fall back to the production defaults, a nil Pacer to a randomly seeded
// default pacing policy, and a nil Resumer resumes automatically.
type Options struct {
	Plan    *plan.Plan
	Store   store.Store
	Driver  driver.PageDriver
	Pacer   *pace.Policy
	Review  pool.Config
	Retry   resilience.RetryConfig
	Resumer Resumer
}

// Summary is the outcome of one planning run. A short zone is an observable
// deficiency, not an error; the run always covers the whole plan.
type Summary struct {
	HotelsAccepted  int            `json:"hotels_accepted"`
	ExpectedTotal   int            `json:"expected_total"`
	ShortfallByZone map[string]int `json:"shortfall_by_zone,omitempty"`
	FetchErrors     int            `json:"fetch_errors"`
	Elapsed         time.Duration  `json:"elapsed"`
}

// RunReport summarizes one RunPendingTasks drain.
type RunReport struct {
	Run       int `json:"run"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

type Engine struct {
	plan   *plan.Plan
	store  store.Store
	driver driver.PageDriver
	pacer  *pace.Policy
	sched  *task.Scheduler
	alloc  *pool.Allocator
	ledger *dedup.Ledger
	retry  resilience.RetryConfig
	resume Resumer
	review pool.Config
	log    *zap.Logger
	now    func() time.Time
}

func New(opts Options) *Engine {
	review := opts.Review
	if review.MaxTotal == 0 {
		review = pool.DefaultConfig()
	}
	retry := opts.Retry
	if retry.MaxAttempts == 0 {
		retry = resilience.DefaultRetryConfig()
	}
	resume := opts.Resumer
	if resume == nil {
		resume = autoResumer{}
	}
	pacer := opts.Pacer
	if pacer == nil {
		pacer = pace.NewPolicy(pace.DefaultConfig(), rand.Uint64())
	}
	return &Engine{
		plan:   opts.Plan,
		store:  opts.Store,
		driver: opts.Driver,
		pacer:  pacer,
		sched:  task.NewScheduler(opts.Store),
		alloc:  pool.New(review),
		ledger: dedup.NewLedger(),
		retry:  retry,
		resume: resume,
		review: review,
		log:    zap.L().With(zap.String("component", "engine")),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// PlanAndRun walks the whole sampling plan in order: regions sequentially,
// zones within a region sequentially, tiers per the planner's two-pass
// policy. Each tier fetch runs as a tracked list-fetch task. Accepted hotels
// are persisted per zone in one transaction. Only context cancellation stops
// the walk.
func (e *Engine) PlanAndRun(ctx context.Context) (*Summary, error) {
	start := e.now()
	sum := &Summary{
		ExpectedTotal:   e.plan.ExpectedTotal(),
		ShortfallByZone: make(map[string]int),
	}
	pln := planner.New(e.plan, planner.ListSourceFunc(e.fetchTierTask), e.ledger)

	for ri := range e.plan.Regions {
		region := e.plan.Regions[ri]
		e.log.Info("region start", zap.String("region", region.Name))
		for zi, zone := range region.Zones {
			res, err := pln.PlanZone(ctx, region, zone)
			if err != nil {
				sum.Elapsed = e.now().Sub(start)
				return sum, err
			}
			if err := e.persistHotels(ctx, res.Accepted); err != nil {
				sum.Elapsed = e.now().Sub(start)
				return sum, err
			}
			sum.HotelsAccepted += len(res.Accepted)
			sum.FetchErrors += res.FetchErrors
			if res.Shortfall > 0 {
				sum.ShortfallByZone[zone.Code] = res.Shortfall
			}
			if zi < len(region.Zones)-1 {
				if err := e.pacer.Sleep(ctx, pace.DelayZone); err != nil {
					sum.Elapsed = e.now().Sub(start)
					return sum, err
				}
			}
		}
		if ri < len(e.plan.Regions)-1 {
			if err := e.pacer.Sleep(ctx, pace.DelayRegion); err != nil {
				sum.Elapsed = e.now().Sub(start)
				return sum, err
			}
		}
	}

	sum.Elapsed = e.now().Sub(start)
	e.log.Info("plan run complete",
		zap.Int("accepted", sum.HotelsAccepted),
		zap.Int("expected", sum.ExpectedTotal),
		zap.Int("short_zones", len(sum.ShortfallByZone)))
	return sum, nil
}

// fetchTierTask is the planner's list source: one tracked task per bounded
// tier fetch.
func (e *Engine) fetchTierTask(ctx context.Context, region plan.Region, zone plan.Zone, tier plan.Tier, want int) ([]model.Hotel, error) {
	t := &model.Task{
		ID:               uuid.NewString(),
		Kind:             model.TaskListFetch,
		RegionType:       region.Name,
		BusinessZoneCode: zone.Code,
		PriceLevel:       tier.Level,
		Priority:         task.ListPriority(&region, &tier),
		Status:           model.TaskPending,
		CreatedAt:        e.now(),
		ItemsTarget:      want,
	}
	if err := e.store.CreateTask(ctx, t); err != nil {
		return nil, err
	}
	if err := e.sched.Start(ctx, t); err != nil {
		return nil, err
	}

	raws, err := e.fetchListRaw(ctx, zone, tier, want)
	if err != nil {
		if ferr := e.sched.Fail(ctx, t, err.Error()); ferr != nil {
			e.log.Warn("task bookkeeping failed", zap.String("task_id", t.ID), zap.Error(ferr))
		}
		return nil, err
	}
	if cerr := e.sched.Complete(ctx, t, len(raws)); cerr != nil {
		e.log.Warn("task bookkeeping failed", zap.String("task_id", t.ID), zap.Error(cerr))
	}
	return raws, nil
}

// fetchListRaw navigates to the cell's search URL and pages the list until it
// has want raw candidates or the list runs out. Raw means unfiltered: the
// planner owns dedup and classification.
func (e *Engine) fetchListRaw(ctx context.Context, zone plan.Zone, tier plan.Tier, want int) ([]model.Hotel, error) {
	url := driver.ListURL(driver.ListQuery{
		CityCode: e.plan.CityCode,
		ZoneCode: zone.Code,
		PriceMin: tier.MinPrice,
		PriceMax: tier.MaxPrice,
		Sort:     driver.SortSales,
	})
	if err := e.navigate(ctx, url); err != nil {
		return nil, err
	}

	var out []model.Hotel
	for len(out) < want {
		page, err := e.driver.ExtractListPage(ctx)
		if err != nil {
			return nil, eris.Wrapf(err, "engine: extract list page for zone %s", zone.Code)
		}
		out = append(out, page.Hotels...)
		if !page.HasNext || len(page.Hotels) == 0 {
			break
		}
		if err := e.pacer.Sleep(ctx, pace.DelayRequest); err != nil {
			return nil, err
		}
		ok, err := e.driver.NextListPage(ctx)
		if err != nil {
			return nil, eris.Wrapf(err, "engine: next list page for zone %s", zone.Code)
		}
		if !ok {
			break
		}
	}
	return out, nil
}

func (e *Engine) persistHotels(ctx context.Context, hotels []model.Hotel) error {
	if len(hotels) == 0 {
		return nil
	}
	return e.store.WithTx(ctx, func(tx store.Store) error {
		for i := range hotels {
			if err := tx.UpsertHotel(ctx, &hotels[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// CreateReviewTasks enqueues review work for every eligible hotel.
func (e *Engine) CreateReviewTasks(ctx context.Context) ([]string, error) {
	return e.sched.CreateReviewTasks(ctx, e.review.MinReviews, e.review.MaxTotal)
}

// Stats reports the task queue counts.
func (e *Engine) Stats(ctx context.Context) (*store.TaskStats, error) {
	return e.sched.Stats(ctx)
}

// ResetFailed reopens failed tasks.
func (e *Engine) ResetFailed(ctx context.Context) (int, error) {
	return e.sched.ResetFailed(ctx)
}

// RunPendingTasks drains up to limit pending tasks of the given kind (empty
// kind means both) on the single logical worker, pacing between tasks. A
// failing task degrades the report, never the run; only cancellation stops
// the drain.
func (e *Engine) RunPendingTasks(ctx context.Context, kind model.TaskKind, limit int) (*RunReport, error) {
	batch, err := e.sched.NextBatch(ctx, kind, limit)
	if err != nil {
		return nil, err
	}
	rep := &RunReport{}

	for i := range batch {
		t := &batch[i]
		if i > 0 {
			if err := e.pacer.Sleep(ctx, pace.DelayRequest); err != nil {
				return rep, err
			}
		}
		if err := e.sched.Start(ctx, t); err != nil {
			return rep, err
		}
		rep.Run++

		var items int
		var skipReason string
		switch t.Kind {
		case model.TaskListFetch:
			items, skipReason, err = e.runListTask(ctx, t)
		case model.TaskReviewFetch:
			items, skipReason, err = e.runReviewTask(ctx, t)
		default:
			skipReason = "unknown task kind"
		}

		switch {
		case err != nil:
			rep.Failed++
			if ferr := e.sched.Fail(ctx, t, err.Error()); ferr != nil {
				return rep, ferr
			}
			if ctx.Err() != nil {
				return rep, ctx.Err()
			}
		case skipReason != "":
			rep.Skipped++
			if serr := e.sched.Skip(ctx, t, skipReason); serr != nil {
				return rep, serr
			}
		default:
			rep.Completed++
			if cerr := e.sched.Complete(ctx, t, items); cerr != nil {
				return rep, cerr
			}
		}
	}

	e.log.Info("task drain complete",
		zap.Int("run", rep.Run),
		zap.Int("completed", rep.Completed),
		zap.Int("failed", rep.Failed),
		zap.Int("skipped", rep.Skipped))
	return rep, nil
}

// runListTask re-executes one (zone, tier) cell from its persisted scope,
// typically after reset-failed. The result flows through the same ledger
// and classification as a planner-driven fetch.
func (e *Engine) runListTask(ctx context.Context, t *model.Task) (int, string, error) {
	region := e.plan.Region(t.RegionType)
	tier := e.plan.Tier(t.PriceLevel)
	if region == nil || tier == nil {
		return 0, "scope no longer in plan", nil
	}
	var zone *plan.Zone
	for i := range region.Zones {
		if region.Zones[i].Code == t.BusinessZoneCode {
			zone = &region.Zones[i]
			break
		}
	}
	if zone == nil {
		return 0, "scope no longer in plan", nil
	}

	raws, err := e.fetchListRaw(ctx, *zone, *tier, t.ItemsTarget)
	if err != nil {
		return 0, "", err
	}

	accepted := make([]model.Hotel, 0, len(raws))
	for i := range raws {
		if len(accepted) >= t.ItemsTarget {
			break
		}
		h := raws[i]
		if h.SourceID == "" || !e.ledger.Accept(region.Name, h.SourceID) {
			continue
		}
		h.Name = clean.HotelName(h.Name)
		h.Address = clean.Text(h.Address)
		h.RegionType = region.Name
		h.BusinessZone = zone.Name
		h.BusinessZoneCode = zone.Code
		h.CityCode = e.plan.CityCode
		h.FetchedTier = tier.Level
		if level := e.plan.ClassifyTier(h.BasePrice); level != "" {
			h.PriceLevel = level
		} else {
			h.PriceLevel = tier.Level
		}
		accepted = append(accepted, h)
	}
	if err := e.persistHotels(ctx, accepted); err != nil {
		return 0, "", err
	}
	return len(accepted), "", nil
}

// runReviewTask opens the hotel's detail page and runs the waterfall
// allocator against the live session, persisting the accepted reviews in one
// transaction.
func (e *Engine) runReviewTask(ctx context.Context, t *model.Task) (int, string, error) {
	h, err := e.store.GetHotel(ctx, t.HotelID)
	if err != nil {
		return 0, "", err
	}
	if h == nil {
		return 0, "hotel not found", nil
	}

	cityCode := h.CityCode
	if cityCode == "" {
		cityCode = e.plan.CityCode
	}
	if err := e.navigate(ctx, driver.DetailURL(h.SourceID, cityCode)); err != nil {
		return 0, "", err
	}

	res, err := e.alloc.Allocate(ctx, h.SourceID, e.driver)
	if err != nil {
		return 0, "", err
	}

	// The detail page shows a fresher review count than the list did.
	if res.TotalSeen > 0 {
		seen := res.TotalSeen
		h.ReviewCount = &seen
		if uerr := e.store.UpsertHotel(ctx, h); uerr != nil {
			e.log.Warn("review count refresh failed", zap.String("hotel_id", h.SourceID), zap.Error(uerr))
		}
	}

	if res.Skipped {
		return 0, res.SkipReason, nil
	}

	err = e.store.WithTx(ctx, func(tx store.Store) error {
		for i := range res.Reviews {
			if uerr := tx.UpsertReview(ctx, &res.Reviews[i]); uerr != nil {
				return uerr
			}
		}
		return nil
	})
	if err != nil {
		return 0, "", err
	}
	return len(res.Reviews), "", nil
}

// navigate issues a navigation with transient-failure retries and the
// challenge escalation path: synthesize a drag, replay it, and on failure
// park for the operator. A challenge that survives the operator wait is
// treated as a transient failure so the task machine books the retry. Every
// attempt waits on the navigation rate budget before touching the driver.
func (e *Engine) navigate(ctx context.Context, url string) error {
	cfg := e.retry
	cfg.OnRetry = resilience.RetryLogger("engine", "navigate")
	return resilience.Do(ctx, cfg, func(ctx context.Context) error {
		if err := e.pacer.WaitNavigate(ctx); err != nil {
			return err
		}
		err := e.driver.Navigate(ctx, url)
		if err == nil {
			return nil
		}
		ch, ok := resilience.IsChallenge(err)
		if !ok {
			return err
		}

		motion := e.pacer.SynthesizeMotion(ch.TrackLength)
		if serr := e.driver.SolveChallenge(ctx, motion); serr == nil {
			e.log.Info("challenge solved", zap.Int("track_length", ch.TrackLength))
			return resilience.NewTransient(eris.New("challenge solved, retrying navigation"))
		}

		e.log.Warn("challenge unresolved, waiting for operator")
		if rerr := e.resume.WaitForOperator(ctx, "slider challenge unresolved"); rerr != nil {
			return rerr
		}
		return resilience.NewTransient(eris.New("challenge unresolved after operator resume"))
	})
}
