package crm

import (
	"strconv"
	"time"

	"example.com/signups/internal/domain"
)

// Contact properties requested from the search endpoint.
const (
	PropCreateDate = "createdate"
	PropFirstName  = "firstname"
	PropLastName   = "lastname"
	PropEmail      = "email"
)

// MaxPageSize is the largest page the search endpoint accepts from this client.
const MaxPageSize = 100

// SearchQuery asks for contacts created inside Window, one page at a time.
type SearchQuery struct {
	Window domain.TimeWindow
	Limit  int
	After  string
}

// SearchPage is one page of results. After is empty on the last page.
type SearchPage struct {
	Records []domain.ContactRecord
	Total   int
	After   string
	Skipped int
}

type filter struct {
	PropertyName string `json:"propertyName"`
	Operator     string `json:"operator"`
	Value        string `json:"value"`
}

type filterGroup struct {
	Filters []filter `json:"filters"`
}

type sortSpec struct {
	PropertyName string `json:"propertyName"`
	Direction    string `json:"direction"`
}

type searchRequest struct {
	FilterGroups []filterGroup `json:"filterGroups"`
	Properties   []string      `json:"properties"`
	Sorts        []sortSpec    `json:"sorts"`
	Limit        int           `json:"limit"`
	After        string        `json:"after,omitempty"`
}

type object struct {
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties"`
	CreatedAt  string            `json:"createdAt"`
}

type searchResponse struct {
	Total   int      `json:"total"`
	Results []object `json:"results"`
	Paging  *struct {
		Next *struct {
			After string `json:"after"`
		} `json:"next"`
	} `json:"paging"`
}

func (r searchResponse) nextCursor() string {
	if r.Paging == nil || r.Paging.Next == nil {
		return ""
	}
	return r.Paging.Next.After
}

// newSearchRequest builds a half-open createdate filter: GTE start, LT end.
func newSearchRequest(q SearchQuery) searchRequest {
	return searchRequest{
		FilterGroups: []filterGroup{{
			Filters: []filter{
				{PropertyName: PropCreateDate, Operator: "GTE", Value: epochMillis(q.Window.Start)},
				{PropertyName: PropCreateDate, Operator: "LT", Value: epochMillis(q.Window.End)},
			},
		}},
		Properties: []string{PropCreateDate, PropFirstName, PropLastName, PropEmail},
		Sorts:      []sortSpec{{PropertyName: PropCreateDate, Direction: "DESCENDING"}},
		Limit:      q.Limit,
		After:      q.After,
	}
}

func epochMillis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}
