package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

type PostgresConfig struct {
	DSN          string        `envconfig:"DSN" split_words:"true" required:"true"`
	QueryTimeout time.Duration `envconfig:"QUERY_TIMEOUT" split_words:"true" default:"5s"`
	MaxOpenConns int           `envconfig:"MAX_OPEN_CONNS" split_words:"true" default:"8"`
}

// PostgresGateway reads the canonical catalog tables. The agent core never
// writes through it.
type PostgresGateway struct {
	db      *bun.DB
	timeout time.Duration
}

var _ Gateway = (*PostgresGateway)(nil)

func NewPostgresGateway(cfg PostgresConfig) (*PostgresGateway, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	if cfg.MaxOpenConns > 0 {
		sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	timeout := cfg.QueryTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &PostgresGateway{
		db:      bun.NewDB(sqldb, pgdialect.New()),
		timeout: timeout,
	}, nil
}

func (g *PostgresGateway) Close() error {
	return g.db.Close()
}

func (g *PostgresGateway) Products(ctx context.Context, category string) ([]Product, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var out []Product
	err := g.db.NewSelect().
		Model(&out).
		Where("lower(category) = lower(?)", strings.TrimSpace(category)).
		Order("sku ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("query products category=%s: %w", category, err)
	}
	return out, nil
}

func (g *PostgresGateway) Product(ctx context.Context, sku string) (Product, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var p Product
	err := g.db.NewSelect().Model(&p).Where("sku = ?", strings.TrimSpace(sku)).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return Product{}, fmt.Errorf("%w: sku=%s", ErrProductNotFound, sku)
	}
	if err != nil {
		return Product{}, fmt.Errorf("query product sku=%s: %w", sku, err)
	}
	return p, nil
}

func (g *PostgresGateway) Project(ctx context.Context, id string) (Project, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var p Project
	err := g.db.NewSelect().Model(&p).Where("id = ?", strings.TrimSpace(id)).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return Project{}, fmt.Errorf("%w: id=%s", ErrProjectNotFound, id)
	}
	if err != nil {
		return Project{}, fmt.Errorf("query project id=%s: %w", id, err)
	}
	return p, nil
}

func (g *PostgresGateway) SearchProjects(ctx context.Context, keyword string) ([]Project, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, nil
	}

	var out []Project
	err := g.db.NewSelect().
		Model(&out).
		WhereGroup(" OR ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				Where("title ILIKE ?", "%"+keyword+"%").
				WhereOr("lower(trend) = lower(?)", keyword)
		}).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("search projects keyword=%s: %w", keyword, err)
	}
	return out, nil
}

// TrendFor loads all trends and matches keywords in memory; the trends
// table is tiny and the match is substring-based.
func (g *PostgresGateway) TrendFor(ctx context.Context, query string) (Trend, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var trends []Trend
	if err := g.db.NewSelect().Model(&trends).Order("name ASC").Scan(ctx); err != nil {
		return Trend{}, fmt.Errorf("query trends: %w", err)
	}

	lowered := strings.ToLower(query)
	for _, t := range trends {
		for _, kw := range t.Keywords {
			if kw != "" && strings.Contains(lowered, strings.ToLower(kw)) {
				return t, nil
			}
		}
	}
	return Trend{}, ErrTrendNotFound
}
