package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/stayscan/internal/model"
)

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore implements Store using modernc.org/sqlite. It is the default
// local backend.
type SQLiteStore struct {
	db *sql.DB
	q  querier
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, q: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS hotels (
	source_id          TEXT PRIMARY KEY,
	name               TEXT NOT NULL,
	address            TEXT,
	city_code          TEXT,
	latitude           REAL,
	longitude          REAL,
	star_level         TEXT,
	rating_score       REAL,
	review_count       INTEGER,
	base_price         INTEGER,
	region_type        TEXT,
	business_zone      TEXT,
	business_zone_code TEXT,
	price_level        TEXT,
	fetched_tier       TEXT,
	created_at         DATETIME NOT NULL,
	updated_at         DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS reviews (
	id            TEXT PRIMARY KEY,
	hotel_id      TEXT NOT NULL REFERENCES hotels(source_id),
	author_nick   TEXT,
	content       TEXT NOT NULL,
	summary       TEXT,
	score_clean   REAL,
	score_location REAL,
	score_service REAL,
	score_value   REAL,
	overall_score REAL,
	tags          TEXT,
	has_images    INTEGER NOT NULL DEFAULT 0,
	image_urls    TEXT,
	room_type     TEXT,
	review_date   DATETIME,
	source_pool   TEXT,
	reply_content TEXT,
	reply_date    DATETIME,
	created_at    DATETIME NOT NULL
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
	created_at         DATETIME NOT NULL,
	started_at         DATETIME,
	completed_at       DATETIME,
	items_crawled      INTEGER NOT NULL DEFAULT 0,
	items_target       INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS task_logs (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	task_id    TEXT NOT NULL,
	level      TEXT NOT NULL,
	message    TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_hotels_region_zone ON hotels(region_type, business_zone_code);
CREATE INDEX IF NOT EXISTS idx_hotels_review_count ON hotels(review_count);
CREATE INDEX IF NOT EXISTS idx_reviews_hotel ON reviews(hotel_id);
CREATE INDEX IF NOT EXISTS idx_tasks_status_prio ON tasks(status, priority DESC, created_at ASC);
CREATE INDEX IF NOT EXISTS idx_tasks_hotel ON tasks(hotel_id);
CREATE INDEX IF NOT EXISTS idx_task_logs_task ON task_logs(task_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.q.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// WithTx runs fn against a transaction-scoped copy of the store.
func (s *SQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	if _, inTx := s.q.(*sql.Tx); inTx {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	if err := fn(&SQLiteStore{db: s.db, q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit tx")
}

// ns maps empty strings to NULL so the COALESCE-based merge in the upserts
// treats them as "not observed".
func ns(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nj(v []string) (any, error) {
	if len(v) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (s *SQLiteStore) UpsertHotel(ctx context.Context, h *model.Hotel) error {
	if err := h.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	_, err := s.q.ExecContext(ctx, `
INSERT INTO hotels (
	source_id, name, address, city_code, latitude, longitude, star_level,
	rating_score, review_count, base_price, region_type, business_zone,
	business_zone_code, price_level, fetched_tier, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(source_id) DO UPDATE SET
	name               = excluded.name,
	address            = COALESCE(excluded.address, hotels.address),
	city_code          = COALESCE(excluded.city_code, hotels.city_code),
	latitude           = COALESCE(excluded.latitude, hotels.latitude),
	longitude          = COALESCE(excluded.longitude, hotels.longitude),
	star_level         = COALESCE(excluded.star_level, hotels.star_level),
	rating_score       = COALESCE(excluded.rating_score, hotels.rating_score),
	review_count       = COALESCE(excluded.review_count, hotels.review_count),
	base_price         = COALESCE(excluded.base_price, hotels.base_price),
	region_type        = COALESCE(excluded.region_type, hotels.region_type),
	business_zone      = COALESCE(excluded.business_zone, hotels.business_zone),
	business_zone_code = COALESCE(excluded.business_zone_code, hotels.business_zone_code),
	price_level        = COALESCE(excluded.price_level, hotels.price_level),
	fetched_tier       = COALESCE(excluded.fetched_tier, hotels.fetched_tier),
	updated_at         = excluded.updated_at`,
		h.SourceID, h.Name, ns(h.Address), ns(h.CityCode), h.Latitude, h.Longitude,
		ns(h.StarLevel), h.RatingScore, h.ReviewCount, h.BasePrice, ns(h.RegionType),
		ns(h.BusinessZone), ns(h.BusinessZoneCode), ns(h.PriceLevel), ns(h.FetchedTier),
		now, now,
	)
	return eris.Wrap(err, "sqlite: upsert hotel")
}

const hotelColumns = `source_id, name, address, city_code, latitude, longitude,
	star_level, rating_score, review_count, base_price, region_type,
	business_zone, business_zone_code, price_level, fetched_tier,
	created_at, updated_at`

func scanHotel(scan func(dest ...any) error) (*model.Hotel, error) {
	var h model.Hotel
	var address, cityCode, starLevel, regionType, zone, zoneCode, priceLevel, fetchedTier sql.NullString
	err := scan(
		&h.SourceID, &h.Name, &address, &cityCode, &h.Latitude, &h.Longitude,
		&starLevel, &h.RatingScore, &h.ReviewCount, &h.BasePrice, &regionType,
		&zone, &zoneCode, &priceLevel, &fetchedTier, &h.CreatedAt, &h.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	h.Address = address.String
	h.CityCode = cityCode.String
	h.StarLevel = starLevel.String
	h.RegionType = regionType.String
	h.BusinessZone = zone.String
	h.BusinessZoneCode = zoneCode.String
	h.PriceLevel = priceLevel.String
	h.FetchedTier = fetchedTier.String
	return &h, nil
}

func (s *SQLiteStore) GetHotel(ctx context.Context, sourceID string) (*model.Hotel, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+hotelColumns+` FROM hotels WHERE source_id = ?`, sourceID)
	h, err := scanHotel(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get hotel")
	}
	return h, nil
}

func (s *SQLiteStore) HotelsByReviewThreshold(ctx context.Context, minReviews int) ([]model.Hotel, error) {
	rows, err := s.q.QueryContext(ctx, `
SELECT `+hotelColumns+` FROM hotels
WHERE review_count >= ?
ORDER BY review_count DESC`, minReviews)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: hotels by threshold")
	}
	defer rows.Close()

	var out []model.Hotel
	for rows.Next() {
		h, err := scanHotel(rows.Scan)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan hotel")
		}
		out = append(out, *h)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate hotels")
}

func (s *SQLiteStore) UpsertReview(ctx context.Context, r *model.Review) error {
	if err := r.Validate(); err != nil {
		return err
	}
	r.EnsureID()

	tags, err := nj(r.Tags)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal tags")
	}
	images, err := nj(r.ImageURLs)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal image urls")
	}

	_, err = s.q.ExecContext(ctx, `
INSERT INTO reviews (
	id, hotel_id, author_nick, content, summary, score_clean, score_location,
	score_service, score_value, overall_score, tags, has_images, image_urls,
	room_type, review_date, source_pool, reply_content, reply_date, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	author_nick   = COALESCE(excluded.author_nick, reviews.author_nick),
	summary       = COALESCE(excluded.summary, reviews.summary),
	score_clean   = COALESCE(excluded.score_clean, reviews.score_clean),
	score_location = COALESCE(excluded.score_location, reviews.score_location),
	score_service = COALESCE(excluded.score_service, reviews.score_service),
	score_value   = COALESCE(excluded.score_value, reviews.score_value),
	overall_score = COALESCE(excluded.overall_score, reviews.overall_score),
	tags          = COALESCE(excluded.tags, reviews.tags),
	has_images    = excluded.has_images OR reviews.has_images,
	image_urls    = COALESCE(excluded.image_urls, reviews.image_urls),
	room_type     = COALESCE(excluded.room_type, reviews.room_type),
	review_date   = COALESCE(excluded.review_date, reviews.review_date),
	source_pool   = COALESCE(excluded.source_pool, reviews.source_pool),
	reply_content = COALESCE(excluded.reply_content, reviews.reply_content),
	reply_date    = COALESCE(excluded.reply_date, reviews.reply_date)`,
		r.ID, r.HotelID, ns(r.AuthorNick), r.Content, ns(r.Summary),
		r.ScoreClean, r.ScoreLocation, r.ScoreService, r.ScoreValue, r.OverallScore,
		tags, r.HasImages, images, ns(r.RoomType), r.Date, ns(string(r.SourcePool)),
		ns(r.ReplyContent), r.ReplyDate, time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: upsert review")
}

func (s *SQLiteStore) CountReviews(ctx context.Context, hotelID string) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM reviews WHERE hotel_id = ?`, hotelID).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count reviews")
}

const taskColumns = `id, kind, region_type, business_zone_code, price_level,
	hotel_id, priority, status, retry_count, error_reason, created_at,
	started_at, completed_at, items_crawled, items_target`

func (s *SQLiteStore) CreateTask(ctx context.Context, t *model.Task) error {
	if t.Status == "" {
		t.Status = model.TaskPending
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	_, err := s.q.ExecContext(ctx, `
INSERT INTO tasks (`+taskColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, string(t.Kind), ns(t.RegionType), ns(t.BusinessZoneCode), ns(t.PriceLevel),
		ns(t.HotelID), t.Priority, string(t.Status), t.RetryCount, ns(t.ErrorReason),
		t.CreatedAt, t.StartedAt, t.CompletedAt, t.ItemsCrawled, t.ItemsTarget,
	)
	return eris.Wrap(err, "sqlite: create task")
}

func scanTask(scan func(dest ...any) error) (*model.Task, error) {
	var t model.Task
	var kind, status string
	var region, zoneCode, priceLevel, hotelID, reason sql.NullString
	err := scan(
		&t.ID, &kind, &region, &zoneCode, &priceLevel, &hotelID,
		&t.Priority, &status, &t.RetryCount, &reason, &t.CreatedAt,
		&t.StartedAt, &t.CompletedAt, &t.ItemsCrawled, &t.ItemsTarget,
	)
	if err != nil {
		return nil, err
	}
	t.Kind = model.TaskKind(kind)
	t.Status = model.TaskStatus(status)
	t.RegionType = region.String
	t.BusinessZoneCode = zoneCode.String
	t.PriceLevel = priceLevel.String
	t.HotelID = hotelID.String
	t.ErrorReason = reason.String
	return &t, nil
}

func (s *SQLiteStore) GetTask(ctx context.Context, id string) (*model.Task, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get task")
	}
	return t, nil
}

func (s *SQLiteStore) SaveTask(ctx context.Context, t *model.Task) error {
	res, err := s.q.ExecContext(ctx, `
UPDATE tasks SET
	status = ?, retry_count = ?, error_reason = ?, started_at = ?,
	completed_at = ?, items_crawled = ?, items_target = ?, priority = ?
WHERE id = ?`,
		string(t.Status), t.RetryCount, ns(t.ErrorReason), t.StartedAt,
		t.CompletedAt, t.ItemsCrawled, t.ItemsTarget, t.Priority, t.ID,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: save task")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: save task rows")
	}
	if n == 0 {
		return eris.Errorf("sqlite: task %s not found", t.ID)
	}
	return nil
}

func (s *SQLiteStore) HasOpenReviewTask(ctx context.Context, hotelID string) (bool, error) {
	var n int
	err := s.q.QueryRowContext(ctx, `
SELECT COUNT(*) FROM tasks
WHERE kind = ? AND hotel_id = ? AND status IN (?, ?)`,
		string(model.TaskReviewFetch), hotelID,
		string(model.TaskPending), string(model.TaskInProgress),
	).Scan(&n)
	return n > 0, eris.Wrap(err, "sqlite: has open review task")
}

func (s *SQLiteStore) NextPending(ctx context.Context, kind model.TaskKind, limit int) ([]model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE status = ?`
	args := []any{string(model.TaskPending)}
	if kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(kind))
	}
	query += ` ORDER BY priority DESC, created_at ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: next pending")
	}
	defer rows.Close()

	var out []model.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan task")
		}
		out = append(out, *t)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate tasks")
}

func (s *SQLiteStore) ResetFailed(ctx context.Context) (int, error) {
	res, err := s.q.ExecContext(ctx, `
UPDATE tasks SET status = ?, retry_count = 0, error_reason = NULL
WHERE status = ?`,
		string(model.TaskPending), string(model.TaskFailed),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: reset failed")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: reset failed rows")
}

func (s *SQLiteStore) TaskStats(ctx context.Context) (*TaskStats, error) {
	stats := &TaskStats{ByKind: make(map[model.TaskKind]int)}

	rows, err := s.q.QueryContext(ctx, `SELECT status, kind, COUNT(*) FROM tasks GROUP BY status, kind`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: task stats")
	}
	defer rows.Close()

	for rows.Next() {
		var status, kind string
		var n int
		if err := rows.Scan(&status, &kind, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan stats")
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
	return stats, eris.Wrap(rows.Err(), "sqlite: iterate stats")
}

func (s *SQLiteStore) AppendTaskLog(ctx context.Context, taskID, level, message string) error {
	_, err := s.q.ExecContext(ctx, `
INSERT INTO task_logs (task_id, level, message, created_at) VALUES (?, ?, ?, ?)`,
		taskID, level, message, time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: append task log")
}
