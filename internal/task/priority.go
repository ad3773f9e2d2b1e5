package task

import (
	"github.com/sells-group/stayscan/internal/model"
	"github.com/sells-group/stayscan/internal/plan"
)

// ListPriority scores a list-fetch task: region weight plus tier weight,
// both static tables from the sampling plan. Central regions and the
// mid-market tiers (the bulk of the inventory) run first.
func ListPriority(region *plan.Region, tier *plan.Tier) int {
	var p int
	if region != nil {
		p += region.Weight
	}
	if tier != nil {
		p += tier.Weight
	}
	return p
}

// ReviewPriority scores a review-fetch task from the hotel's review volume
// and rating. Heavily-reviewed, well-rated hotels yield more usable reviews
// per unit of scraping risk, so they go first.
func ReviewPriority(h *model.Hotel) int {
	var p int
	if h.ReviewCount != nil {
		switch n := *h.ReviewCount; {
		case n > 1000:
			p += 10
		case n > 500:
			p += 8
		case n > 200:
			p += 5
		}
	}
	if h.RatingScore != nil {
		p += int(*h.RatingScore)
	}
	return p
}
