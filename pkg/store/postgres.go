package store

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements MetadataStore on pgx. Pointed at a Supabase
// database it uses the same two tables the hosted project exposes.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresStore connects and pings the database.
func NewPostgresStore(ctx context.Context, dsn string, logger *slog.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parse DSN: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return &PostgresStore{pool: pool, logger: logger.With("component", "store", "backend", "postgres")}, nil
}

// RunMigrations applies unapplied .sql files from migrationsFS in name order,
// tracking them in schema_migrations.
func (p *PostgresStore) RunMigrations(ctx context.Context, migrationsFS fs.FS) error {
	if _, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`); err != nil {
		return fmt.Errorf("store: create schema_migrations: %w", err)
	}

	applied := make(map[string]bool)
	rows, err := p.pool.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("store: load applied migrations: %w", err)
	}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return fmt.Errorf("store: load applied migrations: %w", err)
		}
		applied[v] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("store: load applied migrations: %w", err)
	}

	entries, err := fs.ReadDir(migrationsFS, ".")
	if err != nil {
		return fmt.Errorf("store: read migrations dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") || applied[name] {
			continue
		}
		content, err := fs.ReadFile(migrationsFS, name)
		if err != nil {
			return fmt.Errorf("store: read migration %s: %w", name, err)
		}
		p.logger.Info("running migration", "file", name)
		if _, err := p.pool.Exec(ctx, string(content)); err != nil {
			return fmt.Errorf("store: execute migration %s: %w", name, err)
		}
		if _, err := p.pool.Exec(ctx,
			`INSERT INTO schema_migrations (version) VALUES ($1) ON CONFLICT DO NOTHING`, name,
		); err != nil {
			return fmt.Errorf("store: record migration %s: %w", name, err)
		}
	}
	return nil
}

func (p *PostgresStore) InsertMainImage(ctx context.Context, m *MainImage) error {
	return p.pool.QueryRow(ctx, `
		INSERT INTO pcb_main_images
			(storage_path, public_url, width, height, original_filename, board_code, note)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7)
		RETURNING id::text, created_at`,
		m.StoragePath, m.PublicURL, m.Width, m.Height, m.OriginalFilename, m.BoardCode, m.Note,
	).Scan(&m.ID, &m.CreatedAt)
}

func (p *PostgresStore) InsertDefectCrop(ctx context.Context, c *DefectCrop) error {
	return p.pool.QueryRow(ctx, `
		INSERT INTO pcb_defect_crops
			(main_image_id, crop_storage_path, crop_public_url, crop_width, crop_height,
			 prediction, confidence, bbox_x, bbox_y, bbox_width, bbox_height)
		VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id::text, created_at`,
		c.MainImageID, c.CropStoragePath, c.CropPublicURL, c.CropWidth, c.CropHeight,
		c.Prediction, c.Confidence, c.BBox.X, c.BBox.Y, c.BBox.W, c.BBox.H,
	).Scan(&c.ID, &c.CreatedAt)
}

func (p *PostgresStore) ListMainImages(ctx context.Context) ([]MainImage, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id::text, storage_path, public_url, width, height,
		       COALESCE(original_filename, ''), board_code, note, created_at
		  FROM pcb_main_images
		 ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MainImage
	for rows.Next() {
		var m MainImage
		if err := rows.Scan(&m.ID, &m.StoragePath, &m.PublicURL, &m.Width, &m.Height,
			&m.OriginalFilename, &m.BoardCode, &m.Note, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (p *PostgresStore) ListDefectCrops(ctx context.Context) ([]DefectCrop, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id::text, main_image_id::text, crop_storage_path, crop_public_url,
		       crop_width, crop_height, prediction, confidence,
		       COALESCE(bbox_x, 0), COALESCE(bbox_y, 0), COALESCE(bbox_width, 0), COALESCE(bbox_height, 0),
		       created_at
		  FROM pcb_defect_crops
		 ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DefectCrop
	for rows.Next() {
		var c DefectCrop
		if err := rows.Scan(&c.ID, &c.MainImageID, &c.CropStoragePath, &c.CropPublicURL,
			&c.CropWidth, &c.CropHeight, &c.Prediction, &c.Confidence,
			&c.BBox.X, &c.BBox.Y, &c.BBox.W, &c.BBox.H, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Pool exposes the connection pool.
func (p *PostgresStore) Pool() *pgxpool.Pool { return p.pool }

func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}

var _ MetadataStore = (*PostgresStore)(nil)
