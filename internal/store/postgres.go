package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/stayscan/internal/model"
)

// pgQuerier is the query surface shared by pgxpool.Pool, pgx.Tx, and
// pgxmock's pool mock.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore implements Store on pgx. It is the production backend when
// several operators share one corpus.
type PostgresStore struct {
	q       pgQuerier
	closeFn func()
}

// PoolConfig tunes the pgx connection pool.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres connects a PostgresStore.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns, minConns := int32(4), int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
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
	return &PostgresStore{q: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool-compatible querier; used by
// tests with pgxmock.
func NewPostgresFromPool(q pgQuerier) *PostgresStore {
	return &PostgresStore{q: q}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS hotels (
	source_id          TEXT PRIMARY KEY,
	name               TEXT NOT NULL,
	address            TEXT,
	city_code          TEXT,
	latitude           DOUBLE PRECISION,
	longitude          DOUBLE PRECISION,
	star_level         TEXT,
	rating_score       DOUBLE PRECISION,
	review_count       INTEGER,
	base_price         INTEGER,
	region_type        TEXT,
	business_zone      TEXT,
	business_zone_code TEXT,
	price_level        TEXT,
	fetched_tier       TEXT,
	created_at         TIMESTAMPTZ NOT NULL,
	updated_at         TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS reviews (
	id             TEXT PRIMARY KEY,
	hotel_id       TEXT NOT NULL REFERENCES hotels(source_id),
	author_nick    TEXT,
	content        TEXT NOT NULL,
	summary        TEXT,
	score_clean    DOUBLE PRECISION,
	score_location DOUBLE PRECISION,
	score_service  DOUBLE PRECISION,
	score_value    DOUBLE PRECISION,
	overall_score  DOUBLE PRECISION,
	tags           JSONB,
	has_images     BOOLEAN NOT NULL DEFAULT FALSE,
	image_urls     JSONB,
	room_type      TEXT,
	review_date    TIMESTAMPTZ,
	source_pool    TEXT,
	reply_content  TEXT,
	reply_date     TIMESTAMPTZ,
	created_at     TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS tasks (
	id                 TEXT PRIMARY KEY,
	kind               TEXT NOT NULL,
	region_type        TEXT,
	business_zone_code TEXT,
	price_level        TEXT,
	hotel_id           TEXT,
	priority           INTEGER NOT NULL DEFAULT 0,
	status             TEXT NOT NULL DEFAULT 'pending',
	retry_count        INTEGER NOT NULL DEFAULT 0,
	error_reason       TEXT,
	created_at         TIMESTAMPTZ NOT NULL,
	started_at         TIMESTAMPTZ,
	completed_at       TIMESTAMPTZ,
	items_crawled      INTEGER NOT NULL DEFAULT 0,
	items_target       INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS task_logs (
	id         BIGSERIAL PRIMARY KEY,
	task_id    TEXT NOT NULL,
	level      TEXT NOT NULL,
	message    TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_hotels_region_zone ON hotels(region_type, business_zone_code);
CREATE INDEX IF NOT EXISTS idx_hotels_review_count ON hotels(review_count);
CREATE INDEX IF NOT EXISTS idx_reviews_hotel ON reviews(hotel_id);
CREATE INDEX IF NOT EXISTS idx_tasks_status_prio ON tasks(status, priority DESC, created_at ASC);
CREATE INDEX IF NOT EXISTS idx_tasks_hotel ON tasks(hotel_id);
CREATE INDEX IF NOT EXISTS idx_task_logs_task ON task_logs(task_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.q.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) WithTx(ctx context.Context, fn func(Store) error) error {
	if _, inTx := s.q.(pgx.Tx); inTx {
		return fn(s)
	}
	tx, err := s.q.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	if err := fn(&PostgresStore{q: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit tx")
}

func (s *PostgresStore) UpsertHotel(ctx context.Context, h *model.Hotel) error {
	if err := h.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	_, err := s.q.Exec(ctx, `
INSERT INTO hotels (
	source_id, name, address, city_code, latitude, longitude, star_level,
	rating_score, review_count, base_price, region_type, business_zone,
	business_zone_code, price_level, fetched_tier, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
ON CONFLICT (source_id) DO UPDATE SET
	name               = EXCLUDED.name,
	address            = COALESCE(EXCLUDED.address, hotels.address),
	city_code          = COALESCE(EXCLUDED.city_code, hotels.city_code),
	latitude           = COALESCE(EXCLUDED.latitude, hotels.latitude),
	longitude          = COALESCE(EXCLUDED.longitude, hotels.longitude),
	star_level         = COALESCE(EXCLUDED.star_level, hotels.star_level),
	rating_score       = COALESCE(EXCLUDED.rating_score, hotels.rating_score),
	review_count       = COALESCE(EXCLUDED.review_count, hotels.review_count),
	base_price         = COALESCE(EXCLUDED.base_price, hotels.base_price),
	region_type        = COALESCE(EXCLUDED.region_type, hotels.region_type),
	business_zone      = COALESCE(EXCLUDED.business_zone, hotels.business_zone),
	business_zone_code = COALESCE(EXCLUDED.business_zone_code, hotels.business_zone_code),
	price_level        = COALESCE(EXCLUDED.price_level, hotels.price_level),
	fetched_tier       = COALESCE(EXCLUDED.fetched_tier, hotels.fetched_tier),
	updated_at         = EXCLUDED.updated_at`,
		h.SourceID, h.Name, ns(h.Address), ns(h.CityCode), h.Latitude, h.Longitude,
		ns(h.StarLevel), h.RatingScore, h.ReviewCount, h.BasePrice, ns(h.RegionType),
		ns(h.BusinessZone), ns(h.BusinessZoneCode), ns(h.PriceLevel), ns(h.FetchedTier),
		now, now,
	)
	return eris.Wrap(err, "postgres: upsert hotel")
}

func (s *PostgresStore) GetHotel(ctx context.Context, sourceID string) (*model.Hotel, error) {
	row := s.q.QueryRow(ctx, `SELECT `+hotelColumns+` FROM hotels WHERE source_id = $1`, sourceID)
	h, err := scanHotel(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get hotel")
	}
	return h, nil
}

func (s *PostgresStore) HotelsByReviewThreshold(ctx context.Context, minReviews int) ([]model.Hotel, error) {
	rows, err := s.q.Query(ctx, `
SELECT `+hotelColumns+` FROM hotels
WHERE review_count >= $1
ORDER BY review_count DESC`, minReviews)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: hotels by threshold")
	}
	defer rows.Close()

	var out []model.Hotel
	for rows.Next() {
		h, err := scanHotel(rows.Scan)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan hotel")
		}
		out = append(out, *h)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate hotels")
}

func (s *PostgresStore) UpsertReview(ctx context.Context, r *model.Review) error {
	if err := r.Validate(); err != nil {
		return err
	}
	r.EnsureID()

	tags, err := pgJSON(r.Tags)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal tags")
	}
	images, err := pgJSON(r.ImageURLs)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal image urls")
	}

	_, err = s.q.Exec(ctx, `
INSERT INTO reviews (
	id, hotel_id, author_nick, content, summary, score_clean, score_location,
	score_service, score_value, overall_score, tags, has_images, image_urls,
	room_type, review_date, source_pool, reply_content, reply_date, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
ON CONFLICT (id) DO UPDATE SET
	author_nick    = COALESCE(EXCLUDED.author_nick, reviews.author_nick),
	summary        = COALESCE(EXCLUDED.summary, reviews.summary),
	score_clean    = COALESCE(EXCLUDED.score_clean, reviews.score_clean),
	score_location = COALESCE(EXCLUDED.score_location, reviews.score_location),
	score_service  = COALESCE(EXCLUDED.score_service, reviews.score_service),
	score_value    = COALESCE(EXCLUDED.score_value, reviews.score_value),
	overall_score  = COALESCE(EXCLUDED.overall_score, reviews.overall_score),
	tags           = COALESCE(EXCLUDED.tags, reviews.tags),
	has_images     = EXCLUDED.has_images OR reviews.has_images,
	image_urls     = COALESCE(EXCLUDED.image_urls, reviews.image_urls),
	room_type      = COALESCE(EXCLUDED.room_type, reviews.room_type),
	review_date    = COALESCE(EXCLUDED.review_date, reviews.review_date),
	source_pool    = COALESCE(EXCLUDED.source_pool, reviews.source_pool),
	reply_content  = COALESCE(EXCLUDED.reply_content, reviews.reply_content),
	reply_date     = COALESCE(EXCLUDED.reply_date, reviews.reply_date)`,
		r.ID, r.HotelID, ns(r.AuthorNick), r.Content, ns(r.Summary),
		r.ScoreClean, r.ScoreLocation, r.ScoreService, r.ScoreValue, r.OverallScore,
		tags, r.HasImages, images, ns(r.RoomType), r.Date, ns(string(r.SourcePool)),
		ns(r.ReplyContent), r.ReplyDate, time.Now().UTC(),
	)
	return eris.Wrap(err, "postgres: upsert review")
}

func pgJSON(v []string) (any, error) {
	if len(v) == 0 {
		return nil, nil
	}
	return json.Marshal(v)
}

func (s *PostgresStore) CountReviews(ctx context.Context, hotelID string) (int, error) {
	var n int
	err := s.q.QueryRow(ctx, `SELECT COUNT(*) FROM reviews WHERE hotel_id = $1`, hotelID).Scan(&n)
	return n, eris.Wrap(err, "postgres: count reviews")
}

func (s *PostgresStore) CreateTask(ctx context.Context, t *model.Task) error {
	if t.Status == "" {
		t.Status = model.TaskPending
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	_, err := s.q.Exec(ctx, `
INSERT INTO tasks (`+taskColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		t.ID, string(t.Kind), ns(t.RegionType), ns(t.BusinessZoneCode), ns(t.PriceLevel),
		ns(t.HotelID), t.Priority, string(t.Status), t.RetryCount, ns(t.ErrorReason),
		t.CreatedAt, t.StartedAt, t.CompletedAt, t.ItemsCrawled, t.ItemsTarget,
	)
	return eris.Wrap(err, "postgres: create task")
}

func (s *PostgresStore) GetTask(ctx context.Context, id string) (*model.Task, error) {
	row := s.q.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
	t, err := scanTask(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get task")
	}
	return t, nil
}

func (s *PostgresStore) SaveTask(ctx context.Context, t *model.Task) error {
	tag, err := s.q.Exec(ctx, `
UPDATE tasks SET
	status = $1, retry_count = $2, error_reason = $3, started_at = $4,
	completed_at = $5, items_crawled = $6, items_target = $7, priority = $8
WHERE id = $9`,
		string(t.Status), t.RetryCount, ns(t.ErrorReason), t.StartedAt,
		t.CompletedAt, t.ItemsCrawled, t.ItemsTarget, t.Priority, t.ID,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: save task")
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: task %s not found", t.ID)
	}
	return nil
}

func (s *PostgresStore) HasOpenReviewTask(ctx context.Context, hotelID string) (bool, error) {
	var n int
	err := s.q.QueryRow(ctx, `
SELECT COUNT(*) FROM tasks
WHERE kind = $1 AND hotel_id = $2 AND status IN ($3, $4)`,
		string(model.TaskReviewFetch), hotelID,
		string(model.TaskPending), string(model.TaskInProgress),
	).Scan(&n)
	return n > 0, eris.Wrap(err, "postgres: has open review task")
}

func (s *PostgresStore) NextPending(ctx context.Context, kind model.TaskKind, limit int) ([]model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE status = $1`
	args := []any{string(model.TaskPending)}
	if kind != "" {
		query += ` AND kind = $2 ORDER BY priority DESC, created_at ASC LIMIT $3`
		args = append(args, string(kind), limit)
	} else {
		query += ` ORDER BY priority DESC, created_at ASC LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: next pending")
	}
	defer rows.Close()

	var out []model.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan task")
		}
		out = append(out, *t)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate tasks")
}

func (s *PostgresStore) ResetFailed(ctx context.Context) (int, error) {
	tag, err := s.q.Exec(ctx, `
UPDATE tasks SET status = $1, retry_count = 0, error_reason = NULL
WHERE status = $2`,
		string(model.TaskPending), string(model.TaskFailed),
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: reset failed")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) TaskStats(ctx context.Context) (*TaskStats, error) {
	stats := &TaskStats{ByKind: make(map[model.TaskKind]int)}

	rows, err := s.q.Query(ctx, `SELECT status, kind, COUNT(*) FROM tasks GROUP BY status, kind`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: task stats")
	}
	defer rows.Close()

	for rows.Next() {
		var status, kind string
		var n int
		if err := rows.Scan(&status, &kind, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan stats")
		}
		stats.Total += n
		stats.ByKind[model.TaskKind(kind)] += n
		switch model.TaskStatus(status) {
		case model.TaskPending:
			stats.Pending += n
		case model.TaskInProgress:
			stats.InProgress += n
		case model.TaskCompleted:
			stats.Completed += n
		case model.TaskFailed:
			stats.Failed += n
		case model.TaskSkipped:
			stats.Skipped += n
		}
	}
	return stats, eris.Wrap(rows.Err(), "postgres: iterate stats")
}

func (s *PostgresStore) AppendTaskLog(ctx context.Context, taskID, level, message string) error {
	_, err := s.q.Exec(ctx, `
INSERT INTO task_logs (task_id, level, message, created_at) VALUES ($1, $2, $3, $4)`,
		taskID, level, message, time.Now().UTC(),
	)
	return eris.Wrap(err, "postgres: append task log")
}
