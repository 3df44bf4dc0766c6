package domain

import (
	"math"
	"time"
)

// DateLayout is the calendar date key used by DailySeries.
const DateLayout = "2006-01-02"

type DayCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// DailySeries is chronologically ordered and gap free.
type DailySeries []DayCount

func (s DailySeries) Total() int {
	total := 0
	for _, d := range s {
		total += d.Count
	}
	return total
}

// Average is the mean count per day rounded to two decimals.
func (s DailySeries) Average() float64 {
	if len(s) == 0 {
		return 0
	}
	avg := float64(s.Total()) / float64(len(s))
	return math.Round(avg*100) / 100
}

// DateOf returns the calendar date key of t in loc.
func DateOf(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DateLayout)
}
