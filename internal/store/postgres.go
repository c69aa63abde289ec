package store

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/venue-enrich/internal/config"
	"github.com/sells-group/venue-enrich/internal/db"
	"github.com/sells-group/venue-enrich/internal/model"
	"github.com/sells-group/venue-enrich/internal/resilience"
)

// identRe guards the configured table name before it is spliced into SQL.
var identRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*(\.[a-zA-Z_][a-zA-Z0-9_]*)?$`)

// venueColumns is the canonical select list, matching scanVenue's order.
const venueColumns = `entity_id, name, domain, city, country,
	ticket_vendor, ticket_vendor_source,
	capacity, capacity_source,
	avg_ticket_price, avg_ticket_price_source,
	annual_revenue, annual_revenue_source,
	annual_visitors, notes, enrichment_status, last_updated`

// coalesceColumns are written as COALESCE($n, col) so a patch can never
// clobber a stored value with NULL.
var coalesceColumns = map[string]bool{
	"ticket_vendor":           true,
	"ticket_vendor_source":    true,
	"capacity":                true,
	"capacity_source":         true,
	"avg_ticket_price":        true,
	"avg_ticket_price_source": true,
	"annual_revenue":          true,
	"annual_revenue_source":   true,
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	table   string
	colTTL  time.Duration
	closeFn func()

	mu          sync.Mutex
	cols        map[string]struct{}
	colsFetched time.Time
}

// warehouseRetry backs off on warehouse throttling only; enrichment sources
// themselves are never retried.
func warehouseRetry(operation string) resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	cfg.InitialBackoff = 250 * time.Millisecond
	cfg.MaxBackoff = 2 * time.Second
	cfg.ShouldRetry = resilience.IsTransient
	cfg.OnRetry = resilience.RetryLogger("postgres", operation)
	return cfg
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, cfg config.StoreConfig) (*PostgresStore, error) {
	if !identRe.MatchString(cfg.Table) {
		return nil, eris.Errorf("postgres: invalid table name %q", cfg.Table)
	}

	pgxCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if cfg.MaxConns > 0 {
		maxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		minConns = cfg.MinConns
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}

	return &PostgresStore{
		pool:    pool,
		table:   cfg.Table,
		colTTL:  time.Duration(cfg.ColumnCacheTTLSecs) * time.Second,
		closeFn: pool.Close,
	}, nil
}

// NewPostgresWithPool wraps an existing pool; used by tests with pgxmock.
func NewPostgresWithPool(pool db.Pool, table string, colTTL time.Duration) *PostgresStore {
	return &PostgresStore{pool: pool, table: table, colTTL: colTTL}
}

func (s *PostgresStore) SelectPending(ctx context.Context, limit int) ([]model.Venue, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s
		WHERE COALESCE(enrichment_status, '') <> 'LOCKED'
		  AND (enrichment_status IS NULL OR enrichment_status = 'PENDING')
		  AND (ticket_vendor IS NULL OR capacity IS NULL OR avg_ticket_price IS NULL)
		LIMIT $1`, venueColumns, s.table)
	return s.selectVenues(ctx, query, limit)
}

func (s *PostgresStore) SelectBackfill(ctx context.Context, limit int) ([]model.Venue, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s
		WHERE COALESCE(enrichment_status, '') <> 'LOCKED'
		  AND (annual_revenue IS NULL OR annual_revenue = 0
		       OR COALESCE(annual_revenue_source, '') IN ('gpt', 'default'))
		LIMIT $1`, venueColumns, s.table)
	return s.selectVenues(ctx, query, limit)
}

func (s *PostgresStore) All(ctx context.Context) ([]model.Venue, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY name`, venueColumns, s.table)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: select all")
	}
	defer rows.Close()
	return scanVenues(rows)
}

func (s *PostgresStore) selectVenues(ctx context.Context, query string, limit int) ([]model.Venue, error) {
	rows, err := resilience.DoVal(ctx, warehouseRetry("select venues"), func(ctx context.Context) (pgx.Rows, error) {
		return s.pool.Query(ctx, query, limit)
	})
	if err != nil {
		return nil, eris.Wrap(err, "postgres: select venues")
	}
	defer rows.Close()
	return scanVenues(rows)
}

func scanVenues(rows pgx.Rows) ([]model.Venue, error) {
	var venues []model.Venue
	for rows.Next() {
		var (
			v                              model.Venue
			entityID, domain, city         *string
			country, notes, status         *string
			vendorSrc, capSrc              *string
			priceSrc, revSrc               *string
		)
		if err := rows.Scan(
			&entityID, &v.Name, &domain, &city, &country,
			&v.TicketVendor, &vendorSrc,
			&v.Capacity, &capSrc,
			&v.AvgTicketPrice, &priceSrc,
			&v.AnnualRevenue, &revSrc,
			&v.AnnualVisitors, &notes, &status, &v.LastUpdated,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan venue")
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
		return nil, eris.Wrap(err, "postgres: iterate venues")
	}
	return venues, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ApplyPatch builds one parameterized UPDATE from the patch, keeping only
// columns present in the target table.
func (s *PostgresStore) ApplyPatch(ctx context.Context, v model.Venue, patch model.Patch) error {
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
			zap.L().Debug("store: dropping unknown column",
				zap.String("column", a.Column), zap.String("venue", v.Key()))
			continue
		}
		args = append(args, a.Value)
		n := len(args)
		if coalesceColumns[a.Column] {
			sets = append(sets, fmt.Sprintf("%s = COALESCE($%d, %s)", a.Column, n, a.Column))
		} else {
			sets = append(sets, fmt.Sprintf("%s = $%d", a.Column, n))
		}
	}
	if len(sets) == 0 {
		return nil
	}

	var where string
	if v.EntityID != "" {
		args = append(args, v.EntityID)
		where = fmt.Sprintf("entity_id = $%d", len(args))
	} else {
		args = append(args, strings.ToLower(v.Name))
		args = append(args, strings.ToLower(v.Domain))
		where = fmt.Sprintf("LOWER(name) = $%d AND LOWER(COALESCE(domain, '')) = $%d",
			len(args)-1, len(args))
	}

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s", s.table, strings.Join(sets, ", "), where)

	err = resilience.Do(ctx, warehouseRetry("apply patch"), func(ctx context.Context) error {
		_, execErr := s.pool.Exec(ctx, query, args...)
		return execErr
	})
	if err != nil {
		return eris.Wrapf(err, "postgres: apply patch for %s", v.Key())
	}
	return nil
}

// Columns returns the target table's column names, cached with a TTL so a
// batch does not hit information_schema per row.
func (s *PostgresStore) Columns(ctx context.Context) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cols != nil && (s.colTTL <= 0 || time.Since(s.colsFetched) < s.colTTL) {
		return s.cols, nil
	}

	table := s.table
	if idx := strings.LastIndex(table, "."); idx >= 0 {
		table = table[idx+1:]
	}

	rows, err := s.pool.Query(ctx,
		`SELECT column_name FROM information_schema.columns WHERE table_name = $1`, table)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query columns")
	}
	defer rows.Close()

	cols := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "postgres: scan column name")
		}
		cols[name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate columns")
	}
	if len(cols) == 0 {
		return nil, eris.Errorf("postgres: table %s has no columns (missing?)", s.table)
	}

	s.cols = cols
	s.colsFetched = time.Now()
	return cols, nil
}

func (s *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
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
	if err := s.pool.QueryRow(ctx, query).Scan(
		&st.Total, &st.Pending, &st.Done, &st.Locked, &st.NoData, &st.Errored,
		&st.MissingVendor, &st.MissingCapacity, &st.MissingPrice,
	); err != nil {
		return nil, eris.Wrap(err, "postgres: stats")
	}

	vendorQuery := fmt.Sprintf(`SELECT ticket_vendor, COUNT(*) FROM %s
		WHERE ticket_vendor IS NOT NULL GROUP BY 1 ORDER BY 2 DESC`, s.table)
	rows, err := s.pool.Query(ctx, vendorQuery)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: vendor breakdown")
	}
	defer rows.Close()
	for rows.Next() {
		var vendor string
		var count int64
		if err := rows.Scan(&vendor, &count); err != nil {
			return nil, eris.Wrap(err, "postgres: scan vendor count")
		}
		st.VendorCounts[vendor] = count
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate vendor counts")
	}
	return st, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return eris.Wrap(err, "postgres: ping")
	}
	return nil
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	migration := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	entity_id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	name                    TEXT NOT NULL,
	domain                  TEXT,
	city                    TEXT,
	country                 TEXT,
	ticket_vendor           TEXT,
	ticket_vendor_source    TEXT,
	capacity                BIGINT,
	capacity_source         TEXT,
	avg_ticket_price        DOUBLE PRECISION,
	avg_ticket_price_source TEXT,
	annual_revenue          DOUBLE PRECISION,
	annual_revenue_source   TEXT,
	annual_visitors         DOUBLE PRECISION,
	segment                 TEXT,
	notes                   TEXT,
	enrichment_status       TEXT,
	last_updated            TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_%s_status ON %s (enrichment_status);
`, s.table, strings.ReplaceAll(s.table, ".", "_"), s.table)

	if _, err := s.pool.Exec(ctx, migration); err != nil {
		return eris.Wrap(err, "postgres: migrate")
	}
	return nil
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}
