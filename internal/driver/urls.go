package driver

import (
	"fmt"
	"net/url"
	"time"
)

const (
	listBaseURL   = "https://hotel.fliggy.com/hotel_list3.htm"
	detailBaseURL = "https://hotel.fliggy.com/hotel_detail2.htm"
)

// ListSort selects the list ordering on the source site.
type ListSort string

const (
	SortDefault ListSort = ""
	SortSales   ListSort = "1"
	SortScore   ListSort = "2"
	SortPrice   ListSort = "3"
)

// ListQuery parameterizes a hotel list search.
type ListQuery struct {
	CityCode string
	ZoneCode string
	PriceMin int
	PriceMax int
	Sort     ListSort

	// CheckIn/CheckOut default to tomorrow/day after when zero.
	CheckIn  time.Time
	CheckOut time.Time
}

// ListURL builds the search URL for one (zone, price band) cell.
func ListURL(q ListQuery) string {
	checkIn := q.CheckIn
	if checkIn.IsZero() {
		checkIn = time.Now().AddDate(0, 0, 1)
	}
	checkOut := q.CheckOut
	if checkOut.IsZero() {
		checkOut = checkIn.AddDate(0, 0, 1)
	}

	v := url.Values{}
	v.Set("city", q.CityCode)
	v.Set("checkIn", checkIn.Format("2006-01-02"))
	v.Set("checkOut", checkOut.Format("2006-01-02"))
	if q.ZoneCode != "" {
		v.Set("businessZone", q.ZoneCode)
	}
	if q.PriceMax > 0 {
		v.Set("priceRange", fmt.Sprintf("%d-%d", q.PriceMin, q.PriceMax))
	}
	if q.Sort != SortDefault {
		v.Set("sortType", string(q.Sort))
	}
	return listBaseURL + "?" + v.Encode()
}

// DetailURL builds the hotel detail page URL, where reviews live.
func DetailURL(hotelID, cityCode string) string {
	v := url.Values{}
	v.Set("shid", hotelID)
	v.Set("city", cityCode)
	return detailBaseURL + "?" + v.Encode()
}
