package source

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/domain"
	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/infra/resilience"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// customerRow mirrors one table row. Nullable columns are checked in
// toRecord so bad rows can be reported by id.
type customerRow struct {
	ID               sql.NullString  `db:"master_id"`
	OrderChannel     sql.NullString  `db:"order_channel"`
	LastOrderChannel sql.NullString  `db:"last_order_channel"`
	FirstOrderDate   sql.NullTime    `db:"first_order_date"`
	LastOrderDate    sql.NullTime    `db:"last_order_date"`
	LastOnline       sql.NullTime    `db:"last_order_date_online"`
	LastOffline      sql.NullTime    `db:"last_order_date_offline"`
	OrdersOnline     sql.NullFloat64 `db:"order_num_total_ever_online"`
	OrdersOffline    sql.NullFloat64 `db:"order_num_total_ever_offline"`
	SpendOffline     sql.NullFloat64 `db:"customer_value_total_ever_offline"`
	SpendOnline      sql.NullFloat64 `db:"customer_value_total_ever_online"`
	Interests        sql.NullString  `db:"interested_in_categories_12"`
}

func (r customerRow) toRecord() (domain.CustomerRecord, error) {
	rec := domain.CustomerRecord{
		ID:               r.ID.String,
		OrderChannel:     r.OrderChannel.String,
		LastOrderChannel: r.LastOrderChannel.String,
		LastOrderOnline:  r.LastOnline.Time.UTC(),
		LastOrderOffline: r.LastOffline.Time.UTC(),
		InterestedIn:     ParseTags(r.Interests.String),
	}
	if !r.LastOnline.Valid {
		rec.LastOrderOnline = time.Time{}
	}
	if !r.LastOffline.Valid {
		rec.LastOrderOffline = time.Time{}
	}
	switch {
	case !r.ID.Valid || r.ID.String == "":
		return rec, fmt.Errorf("%s is null", colID)
	case !r.FirstOrderDate.Valid:
		return rec, fmt.Errorf("%s is null", colFirstOrderDate)
	case !r.LastOrderDate.Valid:
		return rec, fmt.Errorf("%s is null", colLastOrderDate)
	}
	rec.FirstOrderDate = r.FirstOrderDate.Time.UTC()
	rec.LastOrderDate = r.LastOrderDate.Time.UTC()

	for _, f := range []struct {
		col string
		src sql.NullFloat64
		dst *float64
	}{
		{colOrdersOnline, r.OrdersOnline, &rec.OrdersOnline},
		{colOrdersOffline, r.OrdersOffline, &rec.OrdersOffline},
		{colSpendOffline, r.SpendOffline, &rec.SpendOffline},
		{colSpendOnline, r.SpendOnline, &rec.SpendOnline},
	} {
		if !f.src.Valid {
			return rec, fmt.Errorf("%s is null", f.col)
		}
		if f.src.Float64 < 0 {
			return rec, fmt.Errorf("%s is negative", f.col)
		}
		*f.dst = f.src.Float64
	}
	return rec, nil
}

// SQLConfig holds the settings of a table-backed source.
type SQLConfig struct {
	Table        string
	QueryTimeout time.Duration
	Retry        resilience.Config
}

// SQL loads the customer snapshot from a Postgres or MySQL table through a
// circuit breaker with retry.
type SQL struct {
	db     *sqlx.DB
	cfg    SQLConfig
	cb     *gobreaker.CircuitBreaker
	logger *zap.Logger
}

// NewSQL wraps an open connection. The table name must be a plain or
// schema-qualified identifier.
func NewSQL(db *sqlx.DB, cfg SQLConfig, logger *zap.Logger) (*SQL, error) {
	if !tableName.MatchString(cfg.Table) {
		return nil, &domain.ErrValidation{Field: "SOURCE_TABLE", Message: fmt.Sprintf("invalid table name %q", cfg.Table)}
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = 30 * time.Second
	}
	return &SQL{
		db:     db,
		cfg:    cfg,
		cb:     resilience.NewCircuitBreaker(db.DriverName()),
		logger: logger,
	}, nil
}

// Name identifies the source by driver.
func (s *SQL) Name() string { return s.db.DriverName() }

func (s *SQL) query() string {
	cols := []string{
		colID, colOrderChannel, colLastOrderChannel,
		colFirstOrderDate, colLastOrderDate, colLastOnline, colLastOffline,
		colOrdersOnline, colOrdersOffline, colSpendOffline, colSpendOnline,
		colInterests,
	}
	return fmt.Sprintf("SELECT %s FROM %s ORDER BY %s", strings.Join(cols, ", "), s.cfg.Table, colID)
}

// Load reads every row of the table.
func (s *SQL) Load(ctx context.Context) ([]domain.CustomerRecord, error) {
	rows, err := resilience.Guard(ctx, s.cb, s.cfg.Retry, func(ctx context.Context) ([]customerRow, error) {
		ctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
		defer cancel()

		var rows []customerRow
		if err := s.db.SelectContext(ctx, &rows, s.query()); err != nil {
			wrapped := &domain.ErrExternalService{Service: s.Name(), Err: err}
			if permanentSQLError(err) {
				return nil, resilience.Permanent(wrapped)
			}
			return nil, wrapped
		}
		return rows, nil
	})
	if err != nil {
		return nil, err
	}

	records := make([]domain.CustomerRecord, 0, len(rows))
	var bad []string
	for i, row := range rows {
		rec, err := row.toRecord()
		if err != nil {
			id := rec.ID
			if id == "" {
				id = fmt.Sprintf("row %d", i+1)
			}
			s.logger.Debug("invalid customer row", zap.String("master_id", id), zap.Error(err))
			bad = append(bad, id)
			continue
		}
		records = append(records, rec)
	}
	if len(bad) > 0 {
		return nil, &domain.ErrInvalidRecords{Stage: "load", Reason: "null or negative required column", IDs: bad}
	}
	return records, nil
}

// permanentSQLError reports schema errors that retrying cannot fix.
func permanentSQLError(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// 42: syntax error or access rule violation (undefined table/column, permissions).
		return pqErr.Code.Class() == "42"
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case 1044, 1045, 1054, 1146: // access denied, bad column, no such table
			return true
		}
	}
	return false
}

// OpenPostgres opens a pooled lib/pq connection and pings it.
func OpenPostgres(ctx context.Context, dsn string) (*sqlx.DB, error) {
	return open(ctx, DriverPostgres, dsn)
}

// OpenMySQL opens a pooled MySQL/MariaDB connection. mariadb:// and
// mysql:// URLs are converted to the driver's DSN format.
func OpenMySQL(ctx context.Context, dsn string) (*sqlx.DB, error) {
	native, err := toMySQLDSN(dsn)
	if err != nil {
		return nil, &domain.ErrValidation{Field: "MYSQL_DSN", Message: err.Error()}
	}
	return open(ctx, DriverMySQL, native)
}

func open(ctx context.Context, driver, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, &domain.ErrExternalService{Service: driver, Err: err}
	}
	return db, nil
}

func toMySQLDSN(dsn string) (string, error) {
	if !strings.HasPrefix(dsn, "mariadb://") && !strings.HasPrefix(dsn, "mysql://") {
		return dsn, nil
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse dsn: %w", err)
	}
	cfg := mysql.NewConfig()
	if u.User != nil {
		cfg.User = u.User.Username()
		cfg.Passwd, _ = u.User.Password()
	}
	cfg.Net = "tcp"
	cfg.Addr = u.Host
	cfg.DBName = strings.TrimPrefix(u.Path, "/")
	if cfg.User == "" || cfg.Addr == "" || cfg.DBName == "" {
		return "", errors.New("incomplete dsn: need user, host and database")
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.InterpolateParams = true
	return cfg.FormatDSN(), nil
}
