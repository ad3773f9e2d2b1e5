package main

import (
	"bufio"
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/stayscan/internal/driver"
	"github.com/sells-group/stayscan/internal/engine"
	"github.com/sells-group/stayscan/internal/pace"
	"github.com/sells-group/stayscan/internal/plan"
	"github.com/sells-group/stayscan/internal/resilience"
	"github.com/sells-group/stayscan/internal/store"
)

var (
	planPath    string
	regionNames []string
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		path := cfg.Store.Path
		if path == "" {
			path = "stayscan.db"
		}
		st, err := store.NewSQLite(path)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			st.Close() //nolint:errcheck
			return nil, err
		}
		return st, nil
	case "postgres":
		st, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, cfg.Store.Pool)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			st.Close() //nolint:errcheck
			return nil, err
		}
		return st, nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func loadPlan() (*plan.Plan, error) {
	path := planPath
	if path == "" {
		path = cfg.Crawl.PlanPath
	}
	p, err := plan.Load(path)
	if err != nil {
		return nil, err
	}
	if len(regionNames) == 0 {
		return p, nil
	}
	keep := make([]plan.Region, 0, len(regionNames))
	for _, name := range regionNames {
		found := false
		for _, r := range p.Regions {
			if r.Name == name {
				keep = append(keep, r)
				found = true
				break
			}
		}
		if !found {
			return nil, eris.Errorf("region %q is not part of the plan", name)
		}
	}
	p.Regions = keep
	return p, nil
}

// navRetryConfig bounds navigation retries by the configured attempt cap.
func navRetryConfig() resilience.RetryConfig {
	retry := resilience.DefaultRetryConfig()
	if cfg.Crawl.MaxNavAttempts > 0 {
		retry.MaxAttempts = cfg.Crawl.MaxNavAttempts
	}
	return retry
}

func newPacer() *pace.Policy {
	seed := uint64(1)
	if cfg.Crawl.MotionSeedFromOS {
		seed = rand.Uint64()
	}
	return pace.NewPolicy(cfg.Pacing.ToPace(), seed)
}

// initEngine wires the full acquisition stack: store, browser session,
// pacing policy, and the operator resume hook. Caller closes the returned
// store.
func initEngine(ctx context.Context) (*engine.Engine, store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, nil, err
	}

	p, err := loadPlan()
	if err != nil {
		st.Close() //nolint:errcheck
		return nil, nil, err
	}

	drv, err := driver.Connect(ctx, driver.ConnectOptions{
		DevtoolsURL: cfg.Browser.DevtoolsURL,
		Headless:    cfg.Browser.Headless,
		NavTimeout:  time.Duration(cfg.Browser.NavTimeoutSecs) * time.Second,
	})
	if err != nil {
		st.Close() //nolint:errcheck
		return nil, nil, err
	}

	var resumer engine.Resumer
	if cfg.Crawl.OperatorResume {
		resumer = stdinResumer{}
	}

	return engine.New(engine.Options{
		Plan:    p,
		Store:   st,
		Driver:  drv,
		Pacer:   newPacer(),
		Review:  cfg.Review,
		Retry:   navRetryConfig(),
		Resumer: resumer,
	}), st, nil
}

// stdinResumer blocks until the operator clears the challenge in the visible
// browser window and presses Enter.
type stdinResumer struct{}

func (stdinResumer) WaitForOperator(ctx context.Context, reason string) error {
	fmt.Fprintf(os.Stderr, "\nmanual intervention needed (%s) -- solve it in the browser, then press Enter\n", reason)
	done := make(chan struct{})
	go func() {
		_, _ = bufio.NewReader(os.Stdin).ReadString('\n')
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}
