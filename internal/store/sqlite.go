package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/venue-enrich/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It exists for
// local development and tests; production runs against Postgres.
type SQLiteStore struct {
	db     *sql.DB
	table  string
	colTTL time.Duration

	mu          sync.Mutex
	cols        map[string]struct{}
	colsFetched time.Time
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn, table string, colTTL time.Duration) (*SQLiteStore, error) {
	if !identRe.MatchString(table) {
		return nil, eris.Errorf("sqlite: invalid table name %q", table)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, table: table, colTTL: colTTL}, nil
}

func (s *SQLiteStore) SelectPending(ctx context.Context, limit int) ([]model.Venue, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s
		WHERE COALESCE(enrichment_status, '') <> 'LOCKED'
		  AND (enrichment_status IS NULL OR enrichment_status = 'PENDING')
		  AND (ticket_vendor IS NULL OR capacity IS NULL OR avg_ticket_price IS NULL)
		LIMIT ?`, venueColumns, s.table)
	return s.selectVenues(ctx, query, limit)
}

func (s *SQLiteStore) SelectBackfill(ctx context.Context, limit int) ([]model.Venue, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s
		WHERE COALESCE(enrichment_status, '') <> 'LOCKED'
		  AND (annual_revenue IS NULL OR annual_revenue = 0
		       OR COALESCE(annual_revenue_source, '') IN ('gpt', 'default'))
		LIMIT ?`, venueColumns, s.table)
	return s.selectVenues(ctx, query, limit)
}

func (s *SQLiteStore) All(ctx context.Context) ([]model.Venue, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY name`, venueColumns, s.table)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: select all")
	}
	defer rows.Close() //nolint:errcheck
	return scanSQLVenues(rows)
}

func (s *SQLiteStore) selectVenues(ctx context.Context, query string, limit int) ([]model.Venue, error) {
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: select venues")
	}
	defer rows.Close() //nolint:errcheck
	return scanSQLVenues(rows)
}

func scanSQLVenues(rows *sql.Rows) ([]model.Venue, error) {
	var venues []model.Venue
	for rows.Next() {
		var (
			v                      model.Venue
			entityID, domain, city *string
			country, notes, status *string
			vendorSrc, capSrc      *string
			priceSrc, revSrc       *string
		)
		if err := rows.Scan(
			&entityID, &v.Name, &domain, &city, &country,
			&v.TicketVendor, &vendorSrc,
			&v.Capacity, &capSrc,
			&v.AvgTicketPrice, &priceSrc,
			&v.AnnualRevenue, &revSrc,
			&v.AnnualVisitors, &notes, &status, &v.LastUpdated,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan venue")
		}
		v.EntityID = deref(entityID)
		v.Domain = deref(domain)
		v.City = deref(city)
		v.Country = deref(country)
		v.TicketVendorSource = deref(vendorSrc)
		v.CapacitySource = deref(capSrc)
		v.AvgTicketPriceSource = deref(priceSrc)
		v.AnnualRevenueSource = deref(revSrc)
		v.Notes = deref(notes)
		v.EnrichmentStatus = model.Status(deref(status))
		venues = append(venues, v)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate venues")
	}
	return venues, nil
}

func (s *SQLiteStore) ApplyPatch(ctx context.Context, v model.Venue, patch model.Patch) error {
	cols, err := s.Columns(ctx)
	if err != nil {
		return err
	}

	var (
		sets []string
		args []any
	)
	for _, a := range patch.Assignments() {
		if _, ok := cols[a.Column]; !ok {
			continue
		}
		args = append(args, a.Value)
		if coalesceColumns[a.Column] {
			sets = append(sets, fmt.Sprintf("%s = COALESCE(?, %s)", a.Column, a.Column))
		} else {
			sets = append(sets, a.Column+" = ?")
		}
	}
	if len(sets) == 0 {
		return nil
	}

	var where string
	if v.EntityID != "" {
		where = "entity_id = ?"
		args = append(args, v.EntityID)
	} else {
		where = "LOWER(name) = ? AND LOWER(COALESCE(domain, '')) = ?"
		args = append(args, strings.ToLower(v.Name), strings.ToLower(v.Domain))
	}

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s", s.table, strings.Join(sets, ", "), where)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return eris.Wrapf(err, "sqlite: apply patch for %s", v.Key())
	}
	return nil
}

func (s *SQLiteStore) Columns(ctx context.Context) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cols != nil && (s.colTTL <= 0 || time.Since(s.colsFetched) < s.colTTL) {
		return s.cols, nil
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", s.table))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: table info")
	}
	defer rows.Close() //nolint:errcheck

	cols := make(map[string]struct{})
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan table info")
		}
		cols[name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate table info")
	}
	if len(cols) == 0 {
		return nil, eris.Errorf("sqlite: table %s has no columns (missing?)", s.table)
	}

	s.cols = cols
	s.colsFetched = time.Now()
	return cols, nil
}

func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	query := fmt.Sprintf(`SELECT
		COUNT(*),
		COUNT(*) FILTER (WHERE enrichment_status IS NULL OR enrichment_status = 'PENDING'),
		COUNT(*) FILTER (WHERE enrichment_status = 'DONE'),
		COUNT(*) FILTER (WHERE enrichment_status = 'LOCKED'),
		COUNT(*) FILTER (WHERE enrichment_status = 'NO_DATA'),
		COUNT(*) FILTER (WHERE enrichment_status = 'ERROR'),
		COUNT(*) FILTER (WHERE ticket_vendor IS NULL),
		COUNT(*) FILTER (WHERE capacity IS NULL),
		COUNT(*) FILTER (WHERE avg_ticket_price IS NULL)
	FROM %s`, s.table)

	st := &Stats{VendorCounts: make(map[string]int64)}
	if err := s.db.QueryRowContext(ctx, query).Scan(
		&st.Total, &st.Pending, &st.Done, &st.Locked, &st.NoData, &st.Errored,
		&st.MissingVendor, &st.MissingCapacity, &st.MissingPrice,
	); err != nil {
		return nil, eris.Wrap(err, "sqlite: stats")
	}

	vendorQuery := fmt.Sprintf(`SELECT ticket_vendor, COUNT(*) FROM %s
		WHERE ticket_vendor IS NOT NULL GROUP BY 1 ORDER BY 2 DESC`, s.table)
	rows, err := s.db.QueryContext(ctx, vendorQuery)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: vendor breakdown")
	}
	defer rows.Close() //nolint:errcheck
	for rows.Next() {
		var vendor string
		var count int64
		if err := rows.Scan(&vendor, &count); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan vendor count")
		}
		st.VendorCounts[vendor] = count
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate vendor counts")
	}
	return st, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return eris.Wrap(err, "sqlite: ping")
	}
	return nil
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	migration := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	entity_id               TEXT PRIMARY KEY,
	name                    TEXT NOT NULL,
	domain                  TEXT,
	city                    TEXT,
	country                 TEXT,
	ticket_vendor           TEXT,
	ticket_vendor_source    TEXT,
	capacity                INTEGER,
	capacity_source         TEXT,
	avg_ticket_price        REAL,
	avg_ticket_price_source TEXT,
	annual_revenue          REAL,
	annual_revenue_source   TEXT,
	annual_visitors         REAL,
	segment                 TEXT,
	notes                   TEXT,
	enrichment_status       TEXT,
	last_updated            TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_%s_status ON %s (enrichment_status);
`, s.table, s.table, s.table)

	if _, err := s.db.ExecContext(ctx, migration); err != nil {
		return eris.Wrap(err, "sqlite: migrate")
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return eris.Wrap(err, "sqlite: close")
	}
	return nil
}
