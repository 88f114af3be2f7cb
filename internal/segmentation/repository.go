package segmentation

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type Repository interface {
	SaveSegmentation(ctx context.Context, s *Segmentation) error
	GetSegmentation(ctx context.Context, sessionID string) (*Segmentation, error)
	ListSegmentations(ctx context.Context, limit int) ([]*Summary, error)
	DeleteSegmentation(ctx context.Context, sessionID string) error

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// SaveSegmentation replaces the stored cut layout of a session in one transaction.
func (r *SQLiteRepository) SaveSegmentation(ctx context.Context, s *Segmentation) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, file_name, video_url, duration_seconds, transcode_status, source_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			file_name = excluded.file_name,
			video_url = excluded.video_url,
			duration_seconds = excluded.duration_seconds,
			transcode_status = excluded.transcode_status,
			source_hash = excluded.source_hash,
			updated_at = excluded.updated_at
	`, s.SessionID, s.FileName, nullString(s.VideoURL), s.DurationSeconds,
		nullString(s.TranscodeStatus), nullString(s.SourceHash),
		s.CreatedAt.Format(time.RFC3339), s.UpdatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}

	for _, table := range []string{"cut_points", "hidden_segments"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE session_id = ?", s.SessionID); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	cuts := s.Cuts()
	for _, t := range cuts.All {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO cut_points (session_id, seconds, manual) VALUES (?, ?, ?)",
			s.SessionID, t, boolToInt(cuts.IsManual(t))); err != nil {
			return fmt.Errorf("insert cut point %v: %w", t, err)
		}
	}
	for _, t := range cuts.Hidden {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO hidden_segments (session_id, start_seconds) VALUES (?, ?)",
			s.SessionID, t); err != nil {
			return fmt.Errorf("insert hidden segment %v: %w", t, err)
		}
	}

	return tx.Commit()
}

func (r *SQLiteRepository) GetSegmentation(ctx context.Context, sessionID string) (*Segmentation, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, file_name, video_url, duration_seconds, transcode_status, source_hash, created_at, updated_at
		FROM sessions WHERE id = ?
	`, sessionID)

	var s Segmentation
	var videoURL, status, hash sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&s.SessionID, &s.FileName, &videoURL, &s.DurationSeconds, &status, &hash, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.VideoURL = videoURL.String
	s.TranscodeStatus = status.String
	s.SourceHash = hash.String
	s.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	s.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	rows, err := r.db.QueryContext(ctx,
		"SELECT seconds, manual FROM cut_points WHERE session_id = ? ORDER BY seconds", sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	s.CutPoints = []float64{}
	s.ManualCutPoints = []float64{}
	for rows.Next() {
		var t float64
		var manual int
		if err := rows.Scan(&t, &manual); err != nil {
			return nil, err
		}
		s.CutPoints = append(s.CutPoints, t)
		if manual == 1 {
			s.ManualCutPoints = append(s.ManualCutPoints, t)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	hidden, err := r.db.QueryContext(ctx,
		"SELECT start_seconds FROM hidden_segments WHERE session_id = ? ORDER BY start_seconds", sessionID)
	if err != nil {
		return nil, err
	}
	defer hidden.Close()

	s.HiddenSegments = []float64{}
	for hidden.Next() {
		var t float64
		if err := hidden.Scan(&t); err != nil {
			return nil, err
		}
		s.HiddenSegments = append(s.HiddenSegments, t)
	}
	return &s, hidden.Err()
}

func (r *SQLiteRepository) ListSegmentations(ctx context.Context, limit int) ([]*Summary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.id, s.file_name, s.duration_seconds, s.updated_at,
			(SELECT COUNT(*) FROM cut_points c WHERE c.session_id = s.id),
			(SELECT COUNT(*) FROM hidden_segments h WHERE h.session_id = s.id)
		FROM sessions s ORDER BY s.updated_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Summary
	for rows.Next() {
		var s Summary
		var updatedAt string
		if err := rows.Scan(&s.SessionID, &s.FileName, &s.DurationSeconds, &updatedAt, &s.CutCount, &s.HiddenCount); err != nil {
			return nil, err
		}
		s.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		out = append(out, &s)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) DeleteSegmentation(ctx context.Context, sessionID string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", sessionID)
	return err
}

func (r *SQLiteRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
