package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// GetWebProvenance returns the stored provenance for a URL, if any. The
// caller uses ETag/Last-Modified for conditional fetches and content_hash to
// decide re-ingest vs skip.
func (s *Store) GetWebProvenance(ctx context.Context, url string) (WebProvenance, bool, error) {
	var p WebProvenance
	err := s.pool.QueryRow(ctx, `
		SELECT url, domain, first_indexed_at, last_indexed_at, last_modified_at,
		       COALESCE(etag, ''), content_hash, version, metadata
		FROM contextd.web_provenance WHERE url = $1`, url).
		Scan(&p.URL, &p.Domain, &p.FirstIndexedAt, &p.LastIndexedAt, &p.LastModifiedAt,
			&p.ETag, &p.ContentHash, &p.Version, &p.Metadata)
	if errors.Is(err, pgx.ErrNoRows) {
		return WebProvenance{}, false, nil
	}
	if err != nil {
		return WebProvenance{}, false, fmt.Errorf("get provenance %s: %w", url, err)
	}
	return p, true, nil
}

// UpsertWebProvenance records a fetch. The version increments whenever the
// content hash changes; an unchanged hash keeps the version. Every call bumps
// last_indexed_at, replaces metadata, and stores any new ETag and
// Last-Modified value.
func (s *Store) UpsertWebProvenance(ctx context.Context, p WebProvenance) (int, error) {
	var lastModified *time.Time
	if p.LastModifiedAt != nil {
		lastModified = p.LastModifiedAt
	}
	metadata := p.Metadata
	if len(metadata) == 0 {
		metadata = []byte(`{}`)
	}
	var version int
	err := s.pool.QueryRow(ctx, `
		INSERT INTO contextd.web_provenance (url, domain, content_hash, last_modified_at, etag, metadata)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
		ON CONFLICT (url) DO UPDATE SET
			last_indexed_at = now(),
			last_modified_at = COALESCE(EXCLUDED.last_modified_at, contextd.web_provenance.last_modified_at),
			etag = COALESCE(EXCLUDED.etag, contextd.web_provenance.etag),
			metadata = EXCLUDED.metadata,
			version = CASE
				WHEN contextd.web_provenance.content_hash <> EXCLUDED.content_hash
				THEN contextd.web_provenance.version + 1
				ELSE contextd.web_provenance.version
			END,
			content_hash = EXCLUDED.content_hash
		RETURNING version`,
		p.URL, p.Domain, p.ContentHash, lastModified, p.ETag, metadata).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("upsert provenance %s: %w", p.URL, err)
	}
	return version, nil
}
