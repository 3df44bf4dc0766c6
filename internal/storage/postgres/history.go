package postgres

import (
	"context"
	"fmt"
	"time"
)

type DailyBucket struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// QueryDailyCounts groups archived contacts created in [from, to) by local date in tz.
// Dates without contacts are absent; callers zero-fill.
func (db *DB) QueryDailyCounts(ctx context.Context, from, to time.Time, tz string) ([]DailyBucket, error) {
	const sql = `
SELECT
  to_char(created_at AT TIME ZONE $3, 'YYYY-MM-DD') AS day,
  COUNT(*)::bigint AS cnt
FROM contacts
WHERE created_at >= $1 AND created_at < $2
GROUP BY 1
ORDER BY 1 ASC`

	rows, err := db.Pool.Query(ctx, sql, from.UTC(), to.UTC(), tz)
	if err != nil {
		return nil, fmt.Errorf("query daily counts: %w", err)
	}
	defer rows.Close()

	var out []DailyBucket
	for rows.Next() {
		var b DailyBucket
		if err := rows.Scan(&b.Date, &b.Count); err != nil {
			return nil, fmt.Errorf("scan bucket: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
