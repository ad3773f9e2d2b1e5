package model

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"math"
	"time"
)

// SourcePool identifies which waterfall pool a review was acquired through.
type SourcePool string

const (
	PoolNegative SourcePool = "negative" // low/medium score warnings
	PoolEvidence SourcePool = "evidence" // image-bearing reviews
	PoolLatest   SourcePool = "latest"   // most-recent backfill
)

// Review is one guest review. ID is content-addressed (see NewReviewID) so a
// re-fetch of the same underlying review collapses to one record.
type Review struct {
	ID         string     `json:"id"`
	HotelID    string     `json:"hotel_id"`
	AuthorNick string     `json:"author_nick,omitempty"`
	Content    string     `json:"content"`
	Summary    string     `json:"summary,omitempty"`

	ScoreClean    *float64 `json:"score_clean,omitempty"`
	ScoreLocation *float64 `json:"score_location,omitempty"`
	ScoreService  *float64 `json:"score_service,omitempty"`
	ScoreValue    *float64 `json:"score_value,omitempty"`
	OverallScore  *float64 `json:"overall_score,omitempty"`

	Tags      []string   `json:"tags,omitempty"`
	HasImages bool       `json:"has_images"`
	ImageURLs []string   `json:"image_urls,omitempty"`
	RoomType  string     `json:"room_type,omitempty"`
	Date      *time.Time `json:"review_date,omitempty"`

	SourcePool SourcePool `json:"source_pool,omitempty"`

	ReplyContent string     `json:"reply_content,omitempty"`
	ReplyDate    *time.Time `json:"reply_date,omitempty"`
}

// NewReviewID derives a stable identifier from the review's parent hotel,
// normalized content, and author handle. The same inputs always produce the
// same ID; changing any one of them produces a different ID. This is a
// content-addressed key, not a sequence number: the source site does not
// expose a usable review ID, and pagination can serve the same review twice.
func NewReviewID(hotelID, content, authorNick string) string {
	sum := md5.Sum([]byte(hotelID + "_" + content + "_" + authorNick))
	return hotelID + "_" + hex.EncodeToString(sum[:])[:16]
}

// EnsureID fills in r.ID from the content-addressed key if it is not set.
func (r *Review) EnsureID() {
	if r.ID == "" {
		r.ID = NewReviewID(r.HotelID, r.Content, r.AuthorNick)
	}
}

// ComputeOverall sets OverallScore to the mean of the axis scores that are
// present, rounded to one decimal. No-op when no axis score is set.
func (r *Review) ComputeOverall() {
	var sum float64
	var n int
	for _, s := range []*float64{r.ScoreClean, r.ScoreLocation, r.ScoreService, r.ScoreValue} {
		if s != nil {
			sum += *s
			n++
		}
	}
	if n == 0 {
		return
	}
	avg := math.Round(sum/float64(n)*10) / 10
	r.OverallScore = &avg
}

// Validate checks the fields a review cannot be persisted without.
func (r *Review) Validate() error {
	if r.HotelID == "" {
		return &ValidationError{Field: "hotel_id", Reason: "empty"}
	}
	if r.Content == "" {
		return &ValidationError{Field: "content", Reason: "empty"}
	}
	for _, s := range []*float64{r.ScoreClean, r.ScoreLocation, r.ScoreService, r.ScoreValue, r.OverallScore} {
		if s != nil && (*s < 0 || *s > 5) {
			return &ValidationError{Field: "score", Reason: fmt.Sprintf("%v out of range", *s)}
		}
	}
	return nil
}

// IsNegative reports whether the review carries a low or medium overall score
// (3.0 or below on the 5-point scale).
func (r *Review) IsNegative() bool {
	return r.OverallScore != nil && *r.OverallScore <= 3.0
}
