package clean

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestText(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", Text(""))
	assert.Equal(t, "Garden Inn", Text("  <b>Garden</b>   Inn  "))
	assert.Equal(t, "a b", Text("a&nbsp;&nbsp;b"))
	assert.Equal(t, "quoted", Text(`"quoted"`))
	// Full-width digits and punctuation fold to ASCII.
	assert.Equal(t, "room 301!", Text("room ３０１！"))
}

func TestTags(t *testing.T) {
	t.Parallel()

	assert.Nil(t, Tags(""))

	tags := Tags("酒店交通便利，早餐丰盛 #亲子房 #江景 推荐")
	assert.Contains(t, tags, "亲子房")
	assert.Contains(t, tags, "江景")
	assert.Contains(t, tags, "交通便利")
	assert.Contains(t, tags, "早餐丰盛")

	// De-duplicated.
	dup := Tags("#好 #好 交通便利 交通便利")
	assert.Equal(t, []string{"好", "交通便利"}, dup)
}

func TestStarScore(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 4.0, StarScore("width:80%"), 0.001)
	assert.InDelta(t, 5.0, StarScore("width: 100%"), 0.001)
	assert.InDelta(t, 2.5, StarScore("width:50%"), 0.001)
	assert.Zero(t, StarScore(""))
	assert.Zero(t, StarScore("width:auto"))
}

func TestDate(t *testing.T) {
	t.Parallel()

	d := Date("[2026-01-11 20:34]")
	require.NotNil(t, d)
	assert.Equal(t, time.Date(2026, 1, 11, 20, 34, 0, 0, time.UTC), *d)

	dateOnly := Date("2025-12-03")
	require.NotNil(t, dateOnly)
	assert.Equal(t, time.Date(2025, 12, 3, 0, 0, 0, 0, time.UTC), *dateOnly)

	assert.Nil(t, Date("yesterday"))
	assert.Nil(t, Date(""))
}

func TestPrice(t *testing.T) {
	t.Parallel()

	p := Price("¥857")
	require.NotNil(t, p)
	assert.Equal(t, 857, *p)

	p = Price("从 458 起")
	require.NotNil(t, p)
	assert.Equal(t, 458, *p)

	assert.Nil(t, Price("面议"))
	assert.Nil(t, Price(""))
}

func TestHotelName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "广州花园酒店", HotelName(" 广州 花园  酒店 "))
	assert.Equal(t, "GardenInn", HotelName("<em>Garden</em> Inn"))
}
