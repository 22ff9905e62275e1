package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/lexiqai/speech-gateway/internal/resilience"
)

// ErrNotFound is returned by lookups that match nothing.
var ErrNotFound = errors.New("record not found")

const sqliteSchema = `
PRAGMA busy_timeout       = 10000;
PRAGMA journal_mode       = WAL;
PRAGMA synchronous        = NORMAL;
PRAGMA foreign_keys       = ON;
PRAGMA temp_store         = MEMORY;

create table if not exists transcriptions (
	id text primary key not null,
	user_id text not null,
	clip_id text not null,
	original_filename text not null,
	transcription text not null,
	language text not null,
	confidence real not null,
	duration_seconds real not null,
	mode text not null,
	num_speakers integer not null default 0,
	cliente_id text,
	ejecutivo_id text,
	created_at text not null
);

create index if not exists transcriptions_user_clip on transcriptions (user_id, clip_id);

create table if not exists transcription_segments (
	transcription_id text not null references transcriptions (id) on delete cascade,
	idx integer not null,
	speaker text not null,
	role text not null,
	start_ms integer not null,
	end_ms integer not null,
	text text not null,
	confidence real not null,
	primary key (transcription_id, idx)
);`

// SQLite stores records in a local sqlite database.
type SQLite struct {
	db    *sql.DB
	retry *resilience.RetryConfig
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string, retry *resilience.RetryConfig) (*SQLite, error) {
	db, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	return &SQLite{db: db, retry: retry}, nil
}

func (s *SQLite) Name() string { return BackendSQLite }

func (s *SQLite) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLite) Close() error { return s.db.Close() }

// Save writes the record and its segments in one transaction.
func (s *SQLite) Save(ctx context.Context, r *Record) error {
	return resilience.Retry(ctx, func(ctx context.Context) error {
		return s.save(ctx, r)
	}, s.retry, resilience.IsRetryableNetworkError)
}

func (s *SQLite) save(ctx context.Context, r *Record) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save transcription: begin trx: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
			}
		}
	}()

	_, err = tx.ExecContext(ctx, `
		insert into transcriptions (
			id, user_id, clip_id, original_filename, transcription, language,
			confidence, duration_seconds, mode, num_speakers, cliente_id, ejecutivo_id, created_at
		) values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		r.ID, r.UserID, r.ClipID, r.OriginalFilename, r.Transcription, r.Language,
		r.Confidence, r.DurationSeconds, r.Mode, r.NumSpeakers,
		nullable(r.ClientHint), nullable(r.ExecutiveHint), r.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save transcription: %w", err)
	}

	if len(r.Segments) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			insert into transcription_segments (
				transcription_id, idx, speaker, role, start_ms, end_ms, text, confidence
			) values ($1, $2, $3, $4, $5, $6, $7, $8)`)
		if err != nil {
			return fmt.Errorf("save segments: prepare: %w", err)
		}
		defer stmt.Close()

		for _, seg := range r.Segments {
			_, err = stmt.ExecContext(ctx, r.ID, seg.Index, seg.Speaker, seg.Role, seg.StartMs, seg.EndMs, seg.Text, seg.Confidence)
			if err != nil {
				return fmt.Errorf("save segment %d: %w", seg.Index, err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("save transcription: commit: %w", err)
	}
	return nil
}

// Get loads a record with its segments.
func (s *SQLite) Get(ctx context.Context, id string) (*Record, error) {
	r := &Record{}
	var clientHint, executiveHint sql.NullString
	var createdAt string

	err := s.db.QueryRowContext(ctx, `
		select id, user_id, clip_id, original_filename, transcription, language,
			confidence, duration_seconds, mode, num_speakers, cliente_id, ejecutivo_id, created_at
		from transcriptions where id = $1`, id).
		Scan(&r.ID, &r.UserID, &r.ClipID, &r.OriginalFilename, &r.Transcription, &r.Language,
			&r.Confidence, &r.DurationSeconds, &r.Mode, &r.NumSpeakers, &clientHint, &executiveHint, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transcription: %w", err)
	}
	r.ClientHint = clientHint.String
	r.ExecutiveHint = executiveHint.String
	if r.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		select idx, speaker, role, start_ms, end_ms, text, confidence
		from transcription_segments where transcription_id = $1 order by idx`, id)
	if err != nil {
		return nil, fmt.Errorf("get segments: %w", err)
	}
	defer rows.Close()

	r.Segments = []Segment{}
	for rows.Next() {
		var seg Segment
		if err := rows.Scan(&seg.Index, &seg.Speaker, &seg.Role, &seg.StartMs, &seg.EndMs, &seg.Text, &seg.Confidence); err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		r.Segments = append(r.Segments, seg)
	}
	return r, rows.Err()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
