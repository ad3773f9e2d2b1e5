package pool

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/stayscan/internal/driver"
	"github.com/sells-group/stayscan/internal/model"
)

type filterKey struct {
	f   driver.ReviewFilter
	img bool
}

// fakeReviewSource serves scripted pages per filter. Switching the filter
// resets pagination, like the real review tab does. With repeatLast set,
// NextReviewPage keeps claiming more pages but serves the final page again,
// reproducing the site's filter/pagination race.
type fakeReviewSource struct {
	total      int
	known      bool
	pages      map[filterKey][][]model.Review
	cur        filterKey
	idx        int
	repeatLast bool
	filterLog  []filterKey
}

func (f *fakeReviewSource) TotalReviewCount(context.Context) (int, bool, error) {
	return f.total, f.known, nil
}

func (f *fakeReviewSource) ApplyReviewFilter(_ context.Context, filter driver.ReviewFilter, withImages bool) error {
	f.cur = filterKey{f: filter, img: withImages}
	f.idx = 0
	f.filterLog = append(f.filterLog, f.cur)
	return nil
}

func (f *fakeReviewSource) ExtractReviewPage(context.Context) ([]model.Review, error) {
	pages := f.pages[f.cur]
	if f.idx >= len(pages) {
		if f.repeatLast && len(pages) > 0 {
			return pages[len(pages)-1], nil
		}
		return nil, nil
	}
	return pages[f.idx], nil
}

func (f *fakeReviewSource) NextReviewPage(context.Context) (bool, error) {
	if f.repeatLast {
		f.idx++
		return true, nil
	}
	if f.idx+1 >= len(f.pages[f.cur]) {
		return false, nil
	}
	f.idx++
	return true, nil
}

// reviewPages builds n reviews with distinct content, score per review, split
// into pages of perPage.
func reviewPages(prefix string, n int, score float64, perPage int) [][]model.Review {
	var pages [][]model.Review
	var page []model.Review
	for i := 0; i < n; i++ {
		s := score
		page = append(page, model.Review{
			Content:      fmt.Sprintf("%s review %d", prefix, i),
			AuthorNick:   fmt.Sprintf("guest-%s-%d", prefix, i),
			OverallScore: &s,
		})
		if len(page) == perPage {
			pages = append(pages, page)
			page = nil
		}
	}
	if len(page) > 0 {
		pages = append(pages, page)
	}
	return pages
}

func TestAllocate_WaterfallOrder(t *testing.T) {
	t.Parallel()
	src := &fakeReviewSource{
		total: 1000,
		known: true,
		pages: map[filterKey][][]model.Review{
			{f: driver.FilterBad}:               reviewPages("bad", 150, 2.0, 10),
			{f: driver.FilterAll, img: true}:    reviewPages("img", 200, 4.5, 10),
			{f: driver.FilterAll}:               reviewPages("recent", 400, 4.0, 10),
		},
	}
	a := New(DefaultConfig())

	res, err := a.Allocate(context.Background(), "h1", src)
	require.NoError(t, err)
	require.False(t, res.Skipped)

	assert.Len(t, res.Reviews, 300)
	assert.Equal(t, 100, res.PoolCounts[model.PoolNegative])
	assert.Equal(t, 150, res.PoolCounts[model.PoolEvidence])
	assert.Equal(t, 50, res.PoolCounts[model.PoolLatest])

	// Strict waterfall: every negative review precedes every evidence
	// review, which precedes every latest review.
	for i, r := range res.Reviews {
		switch {
		case i < 100:
			assert.Equal(t, model.PoolNegative, r.SourcePool)
		case i < 250:
			assert.Equal(t, model.PoolEvidence, r.SourcePool)
			assert.True(t, r.HasImages)
		default:
			assert.Equal(t, model.PoolLatest, r.SourcePool)
		}
		assert.Equal(t, "h1", r.HotelID)
		assert.NotEmpty(t, r.ID)
	}
}

func TestAllocate_UnlimitedNegativeZeroEvidence(t *testing.T) {
	t.Parallel()
	src := &fakeReviewSource{
		total: 5000,
		known: true,
		pages: map[filterKey][][]model.Review{
			{f: driver.FilterBad}: reviewPages("bad", 500, 1.5, 10),
			{f: driver.FilterAll}: reviewPages("recent", 500, 4.0, 10),
		},
	}
	a := New(DefaultConfig())

	res, err := a.Allocate(context.Background(), "h1", src)
	require.NoError(t, err)

	assert.Equal(t, 100, res.PoolCounts[model.PoolNegative], "pool 1 == min(negativeCap, maxTotal)")
	assert.Zero(t, res.PoolCounts[model.PoolEvidence])
	assert.Equal(t, 200, res.PoolCounts[model.PoolLatest], "pool 3 == maxTotal - pool 1")
	assert.Len(t, res.Reviews, 300)
}

func TestAllocate_MediumTopsUpNegative(t *testing.T) {
	t.Parallel()
	src := &fakeReviewSource{
		total: 1000,
		known: true,
		pages: map[filterKey][][]model.Review{
			{f: driver.FilterBad}:    reviewPages("bad", 30, 1.5, 10),
			{f: driver.FilterMedium}: reviewPages("med", 200, 3.0, 10),
			{f: driver.FilterAll}:    reviewPages("recent", 300, 4.0, 10),
		},
	}
	a := New(DefaultConfig())

	res, err := a.Allocate(context.Background(), "h1", src)
	require.NoError(t, err)

	assert.Equal(t, 100, res.PoolCounts[model.PoolNegative], "bad 30 topped up with 70 medium")
	require.GreaterOrEqual(t, len(src.filterLog), 2)
	assert.Equal(t, filterKey{f: driver.FilterBad}, src.filterLog[0])
	assert.Equal(t, filterKey{f: driver.FilterMedium}, src.filterLog[1])
}

func TestAllocate_BelowThresholdSkips(t *testing.T) {
	t.Parallel()
	src := &fakeReviewSource{total: 150, known: true}
	a := New(DefaultConfig())

	res, err := a.Allocate(context.Background(), "h1", src)
	require.NoError(t, err)

	assert.True(t, res.Skipped)
	assert.Equal(t, "below review threshold", res.SkipReason)
	assert.Empty(t, res.Reviews)
	assert.Empty(t, src.filterLog, "a skipped hotel must not touch the review tab")
}

func TestAllocate_ThresholdBoundaryProceeds(t *testing.T) {
	t.Parallel()
	src := &fakeReviewSource{
		total: 200,
		known: true,
		pages: map[filterKey][][]model.Review{
			{f: driver.FilterAll}: reviewPages("recent", 20, 4.0, 10),
		},
	}
	a := New(DefaultConfig())

	res, err := a.Allocate(context.Background(), "h1", src)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Len(t, res.Reviews, 20)
}

func TestAllocate_UnknownCountProceeds(t *testing.T) {
	t.Parallel()
	src := &fakeReviewSource{
		known: false,
		pages: map[filterKey][][]model.Review{
			{f: driver.FilterAll}: reviewPages("recent", 5, 4.0, 10),
		},
	}
	a := New(DefaultConfig())

	res, err := a.Allocate(context.Background(), "h1", src)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Len(t, res.Reviews, 5)
}

func TestAllocate_StagnantPaginationAbandonsPool(t *testing.T) {
	t.Parallel()
	// The latest pool keeps claiming a next page but serves the same ten
	// reviews forever; the guard must abandon it after two stale pages.
	src := &fakeReviewSource{
		total:      1000,
		known:      true,
		repeatLast: true,
		pages: map[filterKey][][]model.Review{
			{f: driver.FilterAll}: reviewPages("recent", 10, 4.0, 10),
		},
	}
	a := New(DefaultConfig())

	res, err := a.Allocate(context.Background(), "h1", src)
	require.NoError(t, err)
	assert.Len(t, res.Reviews, 10, "duplicate pages contribute nothing after the first")
}

func TestAllocate_DuplicateAcrossPoolsCountedOnce(t *testing.T) {
	t.Parallel()
	// The same review surfaces under the bad filter and again in the
	// unfiltered recency pass; the content-addressed ID collapses them.
	shared := reviewPages("dup", 10, 2.0, 10)
	src := &fakeReviewSource{
		total: 1000,
		known: true,
		pages: map[filterKey][][]model.Review{
			{f: driver.FilterBad}: shared,
			{f: driver.FilterAll}: shared,
		},
	}
	a := New(DefaultConfig())

	res, err := a.Allocate(context.Background(), "h1", src)
	require.NoError(t, err)

	assert.Len(t, res.Reviews, 10)
	assert.Equal(t, 10, res.PoolCounts[model.PoolNegative])
	assert.Zero(t, res.PoolCounts[model.PoolLatest])
}

func TestAllocate_InvalidReviewDropped(t *testing.T) {
	t.Parallel()
	bad := 6.5 // out of the 1-5 range
	src := &fakeReviewSource{
		total: 1000,
		known: true,
		pages: map[filterKey][][]model.Review{
			{f: driver.FilterAll}: {{
				{Content: "fine review", AuthorNick: "a"},
				{Content: "broken review", AuthorNick: "b", OverallScore: &bad},
			}},
		},
	}
	a := New(DefaultConfig())

	res, err := a.Allocate(context.Background(), "h1", src)
	require.NoError(t, err)
	require.Len(t, res.Reviews, 1)
	assert.Equal(t, "fine review", res.Reviews[0].Content)
}
