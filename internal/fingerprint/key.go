package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"example.com/signups/internal/domain"
)

// DeriveKey returns a stable hex SHA-256 over what a dashboard viewer sees:
// the series, the listed rows and the partial/stale flags. Two snapshots with
// the same key render identically.
func DeriveKey(series domain.DailySeries, rows []domain.ActivityRow, flags ...bool) string {
	h := sha256.New()
	for _, d := range series {
		fmt.Fprintf(h, "d|%s|%d\n", d.Date, d.Count)
	}
	for _, r := range rows {
		fmt.Fprintf(h, "r|%s|%s|%s\n", r.Timestamp, r.Name, r.Email)
	}
	for _, f := range flags {
		fmt.Fprintf(h, "f|%t\n", f)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ETag quotes the key as a strong HTTP entity tag.
func ETag(key string) string { return `"` + key + `"` }
