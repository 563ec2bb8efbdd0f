package filestore

import (
	"context"

	"github.com/dustin/go-humanize"

	serr "github.com/randalmurphal/scribe/errors"
)

// QuotaInfo describes storage usage relative to the configured ceiling.
type QuotaInfo struct {
	UsedBytes       int64
	AdditionalBytes int64
	TotalAfter      int64
	QuotaMaxBytes   int64
	PercentUsed     float64
	Warning         bool
	Critical        bool
}

// CheckQuota reports whether additionalBytes would fit under the quota.
// It returns a conflict error when the ceiling would be exceeded. This
// read-only check is advisory; Upload re-reserves the quota inside its
// own insert transaction.
func (s *Store) CheckQuota(ctx context.Context, additionalBytes int64) (*QuotaInfo, error) {
	var used int64
	if err := s.db.QueryRow(ctx, `SELECT COALESCE(SUM(size_bytes), 0) FROM files`).Scan(&used); err != nil {
		return nil, serr.Internal(err, "read storage usage")
	}

	total := used + additionalBytes
	info := &QuotaInfo{
		UsedBytes:       used,
		AdditionalBytes: additionalBytes,
		TotalAfter:      total,
		QuotaMaxBytes:   s.cfg.QuotaMaxBytes,
		PercentUsed:     float64(total) / float64(s.cfg.QuotaMaxBytes) * 100,
	}
	ratio := float64(total) / float64(s.cfg.QuotaMaxBytes)
	info.Warning = ratio >= s.cfg.QuotaWarningRatio
	info.Critical = ratio >= s.cfg.QuotaCriticalRatio

	if total > s.cfg.QuotaMaxBytes {
		return info, serr.Conflict("storage quota exceeded: %s / %s",
			humanize.Bytes(uint64(total)), humanize.Bytes(uint64(s.cfg.QuotaMaxBytes)))
	}
	return info, nil
}

// FormatStat is the per-format slice of the storage breakdown.
type FormatStat struct {
	Format     string
	Count      int
	TotalBytes int64
}

// Stats summarizes stored files and quota headroom.
type Stats struct {
	TotalFiles     int
	TotalBytes     int64
	TotalHuman     string
	AvgBytes       int64
	MinBytes       int64
	MaxBytes       int64
	UniqueFormats  int
	Breakdown      []FormatStat
	QuotaMaxBytes  int64
	QuotaUsedPct   float64
	AvailableBytes int64
	AvailableHuman string
}

// Stats returns storage usage statistics with a per-format breakdown.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{QuotaMaxBytes: s.cfg.QuotaMaxBytes}

	row := s.db.QueryRow(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(size_bytes), 0),
		        COALESCE(AVG(size_bytes), 0),
		        COALESCE(MIN(size_bytes), 0),
		        COALESCE(MAX(size_bytes), 0),
		        COUNT(DISTINCT format)
		 FROM files`)
	var avg float64
	if err := row.Scan(&st.TotalFiles, &st.TotalBytes, &avg,
		&st.MinBytes, &st.MaxBytes, &st.UniqueFormats); err != nil {
		return nil, serr.Internal(err, "read storage totals")
	}
	st.AvgBytes = int64(avg)

	rows, err := s.db.Query(ctx,
		`SELECT format, COUNT(*), SUM(size_bytes)
		 FROM files GROUP BY format ORDER BY SUM(size_bytes) DESC`)
	if err != nil {
		return nil, serr.Internal(err, "read format breakdown")
	}
	defer rows.Close()

	for rows.Next() {
		var fs FormatStat
		if err := rows.Scan(&fs.Format, &fs.Count, &fs.TotalBytes); err != nil {
			return nil, serr.Internal(err, "scan format stat")
		}
		st.Breakdown = append(st.Breakdown, fs)
	}
	if err := rows.Err(); err != nil {
		return nil, serr.Internal(err, "iterate format stats")
	}

	st.TotalHuman = humanize.Bytes(uint64(st.TotalBytes))
	st.QuotaUsedPct = float64(st.TotalBytes) / float64(s.cfg.QuotaMaxBytes) * 100
	st.AvailableBytes = s.cfg.QuotaMaxBytes - st.TotalBytes
	if st.AvailableBytes < 0 {
		st.AvailableBytes = 0
	}
	st.AvailableHuman = humanize.Bytes(uint64(st.AvailableBytes))

	return st, nil
}
