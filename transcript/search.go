package transcript

import (
	"context"
	"strings"

	serr "github.com/randalmurphal/scribe/errors"
)

// SearchOptions narrows and pages a full-text search.
type SearchOptions struct {
	Language string // normalized before filtering; empty matches all
	Limit    int
	Offset   int
}

// SearchHit is one transcript matching a query. The snippet carries
// the matched region with the hit terms wrapped in <mark> tags.
type SearchHit struct {
	TranscriptID int64
	JobID        string
	Language     string
	Snippet      string
	Rank         float64
}

// Search runs an FTS5 query over current transcript text, best matches
// first. The query uses FTS5 match syntax, so phrases, prefix terms
// and boolean operators all work; a malformed query is a validation
// error, not an internal one.
func (m *Manager) Search(ctx context.Context, query string, opts SearchOptions) ([]SearchHit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, serr.Validation("search query must not be empty")
	}

	q := `SELECT f.rowid, t.job_id, t.language,
	             snippet(transcript_fts, 0, '<mark>', '</mark>', '…', 64),
	             f.rank
	      FROM transcript_fts f
	      JOIN transcripts t ON t.id = f.rowid
	      WHERE transcript_fts MATCH ?`
	args := []any{query}

	if opts.Language != "" {
		normalized, err := NormalizeLanguage(opts.Language)
		if err != nil {
			return nil, err
		}
		q += ` AND t.language = ?`
		args = append(args, normalized)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	q += ` ORDER BY f.rank LIMIT ? OFFSET ?`
	args = append(args, limit, opts.Offset)

	rows, err := m.db.Query(ctx, q, args...)
	if err != nil {
		if isMatchSyntaxError(err) {
			return nil, serr.Validation("malformed search query %q", query)
		}
		return nil, serr.Internal(err, "search transcripts")
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var h SearchHit
		if err := rows.Scan(&h.TranscriptID, &h.JobID, &h.Language, &h.Snippet, &h.Rank); err != nil {
			return nil, serr.Internal(err, "scan search hit")
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		if isMatchSyntaxError(err) {
			return nil, serr.Validation("malformed search query %q", query)
		}
		return nil, serr.Internal(err, "search transcripts")
	}
	return hits, nil
}

// isMatchSyntaxError recognizes FTS5 query parse failures, which
// surface as generic SQL errors mentioning the fts5 parser.
func isMatchSyntaxError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "fts5: syntax error") ||
		strings.Contains(msg, "unknown special query") ||
		strings.Contains(msg, "unterminated string")
}
