// Package driver is the narrow seam between the acquisition core and the
// page-driving collaborator (a devtools-attached browser session). The core
// never touches the DOM; it asks the driver to navigate, filter, and extract,
// and receives typed records back. Implementations live outside this module;
// tests use in-package fakes.
package driver

import (
	"context"

	"github.com/sells-group/stayscan/internal/model"
	"github.com/sells-group/stayscan/internal/pace"
)

// ReviewFilter selects which review subset the site shows.
type ReviewFilter int

const (
	FilterAll    ReviewFilter = 0
	FilterGood   ReviewFilter = 1
	FilterMedium ReviewFilter = 2
	FilterBad    ReviewFilter = 3
)

// ListPage is one extracted page of hotel listings.
type ListPage struct {
	Hotels  []model.Hotel
	HasNext bool
}

// PageDriver is everything the scheduler needs from the browser session.
// A navigation that runs into an anti-automation challenge returns a
// *resilience.ChallengeError so the engine can run the escalation path.
type PageDriver interface {
	// Navigate loads url in the session.
	Navigate(ctx context.Context, url string) error

	// ExtractListPage scrolls the current list page to the bottom and
	// extracts all listing records on it.
	ExtractListPage(ctx context.Context) (*ListPage, error)

	// NextListPage advances list pagination. ok is false on the last page.
	NextListPage(ctx context.Context) (ok bool, err error)

	// TotalReviewCount reads the review counter on the current detail page.
	// known is false when the counter is absent.
	TotalReviewCount(ctx context.Context) (count int, known bool, err error)

	// ApplyReviewFilter switches the review tab to the given filter and
	// toggles the image-only checkbox.
	ApplyReviewFilter(ctx context.Context, f ReviewFilter, withImages bool) error

	// ExtractReviewPage extracts the reviews on the current review page.
	ExtractReviewPage(ctx context.Context) ([]model.Review, error)

	// NextReviewPage advances pagination. ok is false when there is no next
	// page.
	NextReviewPage(ctx context.Context) (ok bool, err error)

	// SolveChallenge replays a synthesized drag path against the current
	// slider challenge.
	SolveChallenge(ctx context.Context, motion []pace.MotionStep) error
}
