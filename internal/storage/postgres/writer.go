package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"example.com/signups/internal/domain"
)

type Writer struct {
	db  *DB
	now func() time.Time
}

func NewWriter(db *DB) *Writer {
	return &Writer{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// UpsertContacts writes one multi-row upsert keyed by contact id. Records
// without a creation time are skipped; repeated ids keep the last occurrence.
func (w *Writer) UpsertContacts(ctx context.Context, items []domain.ContactRecord) (int64, error) {
	items = uniqueByID(items)
	if len(items) == 0 {
		return 0, nil
	}

	cols := []string{"id", "created_at", "first_name", "last_name", "email", "fetched_at"}
	placeholders := make([]string, 0, len(items))
	args := make([]any, 0, len(items)*len(cols))
	fetchedAt := w.now()

	argi := 1
	for _, c := range items {
		ph := make([]string, 0, len(cols))
		for _, v := range []any{c.ID, c.CreatedAt.UTC(), nullable(c.FirstName), nullable(c.LastName), nullable(c.Email), fetchedAt} {
			args = append(args, v)
			ph = append(ph, fmt.Sprintf("$%d", argi))
			argi++
		}
		placeholders = append(placeholders, "("+strings.Join(ph, ",")+")")
	}

	sql := "INSERT INTO contacts (" + strings.Join(cols, ",") + ") VALUES " +
		strings.Join(placeholders, ",") +
		" ON CONFLICT (id) DO UPDATE SET" +
		" created_at=EXCLUDED.created_at, first_name=EXCLUDED.first_name," +
		" last_name=EXCLUDED.last_name, email=EXCLUDED.email, fetched_at=EXCLUDED.fetched_at"

	ct, err := w.db.Pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("upsert contacts: %w", err)
	}
	return ct.RowsAffected(), nil
}

func uniqueByID(items []domain.ContactRecord) []domain.ContactRecord {
	pos := make(map[string]int, len(items))
	out := make([]domain.ContactRecord, 0, len(items))
	for _, c := range items {
		if c.ID == "" || c.CreatedAt.IsZero() {
			continue
		}
		if i, ok := pos[c.ID]; ok {
			out[i] = c
			continue
		}
		pos[c.ID] = len(out)
		out = append(out, c)
	}
	return out
}

// nullable maps "" to SQL NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
