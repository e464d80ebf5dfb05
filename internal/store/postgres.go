package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sanzolab/colorsync/internal/palette"
)

// PostgresConfig controls the connection pool behind the Postgres provider.
type PostgresConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxIface interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// Postgres persists combinations and their color index in two tables.
type Postgres struct {
	pool pgxIface
}

// NewPostgres connects a pool and returns the provider.
func NewPostgres(ctx context.Context, cfg PostgresConfig) (*Postgres, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// NewPostgresWithPool constructs a provider from an existing pool
// (primarily for testing).
func NewPostgresWithPool(pool pgxIface) (*Postgres, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Postgres{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (p *Postgres) Close() {
	if p == nil || p.pool == nil {
		return
	}
	p.pool.Close()
}

// EnsureSchema creates the tables when they do not exist yet.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS color_combinations (
	source        TEXT NOT NULL,
	id            TEXT NOT NULL,
	name          TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	sanzo_number  INT,
	room_types    TEXT[] NOT NULL DEFAULT '{}',
	age_groups    TEXT[] NOT NULL DEFAULT '{}',
	colors        JSONB NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (source, id)
);
CREATE TABLE IF NOT EXISTS colors (
	hex   TEXT PRIMARY KEY,
	name  TEXT NOT NULL DEFAULT '',
	r     INT NOT NULL,
	g     INT NOT NULL,
	b     INT NOT NULL
)`
	if _, err := p.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// UpsertCombinations writes combinations keyed by (source, id) and folds
// their hex colors into the color index.
func (p *Postgres) UpsertCombinations(ctx context.Context, combos []palette.Combination) error {
	for _, combo := range combos {
		if combo.ID == "" || len(combo.Colors) == 0 {
			return fmt.Errorf("combination %q: id and colors are required", combo.Name)
		}
		colorsJSON, err := json.Marshal(combo.Colors)
		if err != nil {
			return fmt.Errorf("marshal colors of %q: %w", combo.ID, err)
		}
		_, err = p.pool.Exec(ctx, `
INSERT INTO color_combinations (
	source, id, name, description, sanzo_number, room_types, age_groups, colors, updated_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,now()
)
ON CONFLICT (source, id) DO UPDATE SET
	name = EXCLUDED.name,
	description = EXCLUDED.description,
	sanzo_number = EXCLUDED.sanzo_number,
	room_types = EXCLUDED.room_types,
	age_groups = EXCLUDED.age_groups,
	colors = EXCLUDED.colors,
	updated_at = now()`,
			string(combo.Source),
			combo.ID,
			combo.Name,
			combo.Description,
			combo.SanzoNumber,
			stringArray(combo.RoomTypes),
			stringArray(combo.AgeGroups),
			colorsJSON,
		)
		if err != nil {
			return fmt.Errorf("upsert combination %q: %w", combo.ID, err)
		}
		for _, color := range combo.Colors {
			if color.Hex == "" || color.RGB == nil {
				continue
			}
			_, err := p.pool.Exec(ctx, `
INSERT INTO colors (hex, name, r, g, b)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (hex) DO UPDATE SET
	name = CASE WHEN colors.name = '' THEN EXCLUDED.name ELSE colors.name END`,
				strings.ToUpper(color.Hex),
				color.Name,
				color.RGB.R,
				color.RGB.G,
				color.RGB.B,
			)
			if err != nil {
				return fmt.Errorf("upsert color %q: %w", color.Hex, err)
			}
		}
	}
	return nil
}

// ListColors returns one page of colors ordered by hex plus the filtered
// total.
func (p *Postgres) ListColors(ctx context.Context, q ColorQuery) ([]palette.CanonicalColor, int, error) {
	page, limit := normalizePage(q.Page, q.Limit)
	pattern := "%" + q.Search + "%"

	var total int
	err := p.pool.QueryRow(ctx, `
SELECT count(*) FROM colors
WHERE $1 = '' OR name ILIKE $2 OR hex ILIKE $2`, q.Search, pattern).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count colors: %w", err)
	}

	rows, err := p.pool.Query(ctx, `
SELECT hex, name, r, g, b FROM colors
WHERE $1 = '' OR name ILIKE $2 OR hex ILIKE $2
ORDER BY hex
LIMIT $3 OFFSET $4`, q.Search, pattern, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list colors: %w", err)
	}
	defer rows.Close()

	colors := make([]palette.CanonicalColor, 0, limit)
	for rows.Next() {
		var (
			hex, name string
			rgb       palette.RGB
		)
		if err := rows.Scan(&hex, &name, &rgb.R, &rgb.G, &rgb.B); err != nil {
			return nil, 0, fmt.Errorf("scan color: %w", err)
		}
		colors = append(colors, palette.CanonicalColor{
			Hex:  hex,
			RGB:  &rgb,
			Name: name,
			Type: palette.ColorTypeHex,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate colors: %w", err)
	}
	return colors, total, nil
}

// ListCombinations returns one page of combinations ordered by (source, id)
// plus the filtered total.
func (p *Postgres) ListCombinations(ctx context.Context, q CombinationQuery) ([]palette.Combination, int, error) {
	page, limit := normalizePage(q.Page, q.Limit)

	var total int
	err := p.pool.QueryRow(ctx, `
SELECT count(*) FROM color_combinations
WHERE ($1 = '' OR $1 ILIKE ANY(room_types))
  AND ($2 = '' OR $2 ILIKE ANY(age_groups))`, q.RoomType, q.AgeGroup).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count combinations: %w", err)
	}

	rows, err := p.pool.Query(ctx, `
SELECT source, id, name, description, sanzo_number, room_types, age_groups, colors
FROM color_combinations
WHERE ($1 = '' OR $1 ILIKE ANY(room_types))
  AND ($2 = '' OR $2 ILIKE ANY(age_groups))
ORDER BY source, id
LIMIT $3 OFFSET $4`, q.RoomType, q.AgeGroup, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list combinations: %w", err)
	}
	defer rows.Close()

	combos := make([]palette.Combination, 0, limit)
	for rows.Next() {
		var (
			combo      palette.Combination
			source     string
			colorsJSON []byte
		)
		if err := rows.Scan(
			&source,
			&combo.ID,
			&combo.Name,
			&combo.Description,
			&combo.SanzoNumber,
			&combo.RoomTypes,
			&combo.AgeGroups,
			&colorsJSON,
		); err != nil {
			return nil, 0, fmt.Errorf("scan combination: %w", err)
		}
		combo.Source = palette.Source(source)
		if err := json.Unmarshal(colorsJSON, &combo.Colors); err != nil {
			return nil, 0, fmt.Errorf("decode colors of %q: %w", combo.ID, err)
		}
		combos = append(combos, combo)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate combinations: %w", err)
	}
	return combos, total, nil
}

// GetColorByHex looks up one canonical color by its "#RRGGBB" value.
func (p *Postgres) GetColorByHex(ctx context.Context, hex string) (palette.CanonicalColor, bool, error) {
	var (
		name string
		rgb  palette.RGB
	)
	err := p.pool.QueryRow(ctx, `
SELECT name, r, g, b FROM colors WHERE hex = $1`, strings.ToUpper(hex)).Scan(&name, &rgb.R, &rgb.G, &rgb.B)
	if errors.Is(err, pgx.ErrNoRows) {
		return palette.CanonicalColor{}, false, nil
	}
	if err != nil {
		return palette.CanonicalColor{}, false, fmt.Errorf("get color %q: %w", hex, err)
	}
	return palette.CanonicalColor{
		Hex:  strings.ToUpper(hex),
		RGB:  &rgb,
		Name: name,
		Type: palette.ColorTypeHex,
	}, true, nil
}

// AllColors returns every stored color ordered by hex.
func (p *Postgres) AllColors(ctx context.Context) ([]palette.CanonicalColor, error) {
	rows, err := p.pool.Query(ctx, `SELECT hex, name, r, g, b FROM colors ORDER BY hex`)
	if err != nil {
		return nil, fmt.Errorf("load colors: %w", err)
	}
	defer rows.Close()

	var colors []palette.CanonicalColor
	for rows.Next() {
		var (
			hex, name string
			rgb       palette.RGB
		)
		if err := rows.Scan(&hex, &name, &rgb.R, &rgb.G, &rgb.B); err != nil {
			return nil, fmt.Errorf("scan color: %w", err)
		}
		colors = append(colors, palette.CanonicalColor{
			Hex:  hex,
			RGB:  &rgb,
			Name: name,
			Type: palette.ColorTypeHex,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate colors: %w", err)
	}
	return colors, nil
}

// CombinationCount reports how many combinations are stored.
func (p *Postgres) CombinationCount(ctx context.Context) (int, error) {
	var total int
	if err := p.pool.QueryRow(ctx, `SELECT count(*) FROM color_combinations`).Scan(&total); err != nil {
		return 0, fmt.Errorf("count combinations: %w", err)
	}
	return total, nil
}

func stringArray(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
