package collect

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"example.com/signups/internal/crm"
	"example.com/signups/internal/domain"
)

// fakeSearcher serves fixture records the way the provider does: half-open
// createdate filter, newest first, offset cursors, and a reported total.
type fakeSearcher struct {
	mu      sync.Mutex
	records []domain.ContactRecord
	// errs is consumed one entry per call; nil entries mean "serve normally".
	errs    []error
	queries []crm.SearchQuery
}

func (f *fakeSearcher) SearchContacts(_ context.Context, q crm.SearchQuery) (crm.SearchPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.queries = append(f.queries, q)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return crm.SearchPage{}, err
		}
	}

	var matched []domain.ContactRecord
	for _, rec := range f.records {
		if q.Window.Contains(rec.CreatedAt) {
			matched = append(matched, rec)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	offset := 0
	if q.After != "" {
		offset, _ = strconv.Atoi(q.After)
	}
	end := offset + q.Limit
	if end > len(matched) {
		end = len(matched)
	}

	page := crm.SearchPage{Total: len(matched)}
	if offset < len(matched) {
		page.Records = append(page.Records, matched[offset:end]...)
	}
	if end < len(matched) {
		page.After = strconv.Itoa(end)
	}
	return page, nil
}

func (f *fakeSearcher) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

func contact(id string, at time.Time) domain.ContactRecord {
	return domain.ContactRecord{ID: id, CreatedAt: at, FirstName: "User", LastName: id}
}

func noSleep(context.Context, time.Duration) error { return nil }
