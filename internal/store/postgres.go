package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"follower-archive/internal/db"
	"follower-archive/internal/models"
)

// Postgres persists snapshots and change events in two append-only tables.
// Snapshot user lists are stored as jsonb, matching the document shape the
// analytics layer consumes; change events are flat rows bulk-written via
// COPY.
type Postgres struct {
	log *slog.Logger
	db  *db.DB
}

var _ Store = (*Postgres)(nil)

func NewPostgres(log *slog.Logger, dbConn *db.DB) *Postgres {
	return &Postgres{log: log, db: dbConn}
}

// EnsureSchema creates the tables and indexes if they don't exist yet.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS snapshots (
			id BIGSERIAL PRIMARY KEY,
			target_account TEXT NOT NULL,
			list_type TEXT NOT NULL,
			users JSONB NOT NULL DEFAULT '[]'::jsonb,
			collected_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS snapshot_lookup
			ON snapshots (target_account, list_type, collected_at)`,
		`CREATE TABLE IF NOT EXISTS changes (
			id BIGSERIAL PRIMARY KEY,
			target_account TEXT NOT NULL,
			list_type TEXT NOT NULL,
			change_type TEXT NOT NULL,
			detected_at TIMESTAMPTZ NOT NULL,
			user_pk TEXT NOT NULL,
			username TEXT NOT NULL DEFAULT '',
			full_name TEXT NOT NULL DEFAULT '',
			is_private BOOLEAN,
			is_verified BOOLEAN
		)`,
		`CREATE INDEX IF NOT EXISTS changes_lookup
			ON changes (target_account, detected_at)`,
	}

	for _, stmt := range stmts {
		if _, err := p.db.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (p *Postgres) StoreSnapshot(ctx context.Context, account string, listType models.ListType, users []models.User, collectedAt time.Time) (string, error) {
	if users == nil {
		users = []models.User{}
	}
	payload, err := json.Marshal(users)
	if err != nil {
		return "", fmt.Errorf("marshal users: %w", err)
	}

	var id int64
	err = p.db.Pool.QueryRow(ctx,
		`INSERT INTO snapshots (target_account, list_type, users, collected_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		account, string(listType), payload, collectedAt.UTC(),
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("store snapshot: %w", err)
	}

	p.log.Debug("snapshot_stored", "account", account, "list_type", listType, "users", len(users))
	return strconv.FormatInt(id, 10), nil
}

func (p *Postgres) LatestSnapshot(ctx context.Context, account string, listType models.ListType) (*models.Snapshot, error) {
	rows, err := p.db.Pool.Query(ctx,
		`SELECT id, target_account, list_type, users, collected_at
		 FROM snapshots
		 WHERE target_account = $1 AND list_type = $2
		 ORDER BY collected_at DESC
		 LIMIT 1`,
		account, string(listType),
	)
	if err != nil {
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}
	defer rows.Close()

	return scanOneSnapshot(rows)
}

func (p *Postgres) SnapshotAt(ctx context.Context, account string, listType models.ListType, moment time.Time, dir Direction) (*models.Snapshot, error) {
	cmp, order := "<=", "DESC"
	if dir == After {
		cmp, order = ">=", "ASC"
	}

	rows, err := p.db.Pool.Query(ctx,
		`SELECT id, target_account, list_type, users, collected_at
		 FROM snapshots
		 WHERE target_account = $1 AND list_type = $2 AND collected_at `+cmp+` $3
		 ORDER BY collected_at `+order+`
		 LIMIT 1`,
		account, string(listType), moment.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("snapshot at: %w", err)
	}
	defer rows.Close()

	return scanOneSnapshot(rows)
}

func (p *Postgres) SnapshotHistory(ctx context.Context, account string, listType models.ListType, filter SnapshotFilter) ([]models.Snapshot, error) {
	query := `SELECT id, target_account, list_type, users, collected_at
		 FROM snapshots
		 WHERE target_account = $1 AND list_type = $2`
	args := []any{account, string(listType)}

	if filter.Start != nil {
		args = append(args, filter.Start.UTC())
		query += fmt.Sprintf(" AND collected_at >= $%d", len(args))
	}
	if filter.End != nil {
		args = append(args, filter.End.UTC())
		query += fmt.Sprintf(" AND collected_at < $%d", len(args))
	}
	query += " ORDER BY collected_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := p.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("snapshot history: %w", err)
	}
	defer rows.Close()

	out := make([]models.Snapshot, 0)
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *snap)
	}
	return out, rows.Err()
}

func (p *Postgres) StoreChanges(ctx context.Context, events []models.ChangeEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	columns := []string{"target_account", "list_type", "change_type", "detected_at", "user_pk", "username", "full_name", "is_private", "is_verified"}
	values := make([][]any, 0, len(events))
	for _, ev := range events {
		values = append(values, []any{
			ev.TargetAccount,
			string(ev.ListType),
			string(ev.ChangeType),
			ev.DetectedAt.UTC(),
			ev.User.PK,
			ev.User.Username,
			ev.User.FullName,
			ev.User.IsPrivate,
			ev.User.IsVerified,
		})
	}

	inserted, err := p.db.BatchInsert(ctx, "changes", columns, values, db.DefaultBatchConfig())
	if err != nil {
		return inserted, fmt.Errorf("store changes: %w", err)
	}

	p.log.Debug("changes_stored", "count", inserted)
	return inserted, nil
}

func (p *Postgres) ChangesSince(ctx context.Context, filter ChangeFilter) ([]models.ChangeEvent, error) {
	query := `SELECT target_account, list_type, change_type, detected_at, user_pk, username, full_name, is_private, is_verified
		 FROM changes WHERE TRUE`
	args := []any{}

	if filter.TargetAccount != "" {
		args = append(args, filter.TargetAccount)
		query += fmt.Sprintf(" AND target_account = $%d", len(args))
	}
	if filter.Since != nil {
		args = append(args, filter.Since.UTC())
		query += fmt.Sprintf(" AND detected_at >= $%d", len(args))
	}
	if filter.Until != nil {
		args = append(args, filter.Until.UTC())
		query += fmt.Sprintf(" AND detected_at < $%d", len(args))
	}
	query += " ORDER BY detected_at DESC, id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := p.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("changes since: %w", err)
	}
	defer rows.Close()

	out := make([]models.ChangeEvent, 0)
	for rows.Next() {
		var ev models.ChangeEvent
		var listType, changeType string
		if err := rows.Scan(&ev.TargetAccount, &listType, &changeType, &ev.DetectedAt, &ev.User.PK, &ev.User.Username, &ev.User.FullName, &ev.User.IsPrivate, &ev.User.IsVerified); err != nil {
			return nil, fmt.Errorf("scan change: %w", err)
		}
		ev.ListType = models.ListType(listType)
		ev.ChangeType = models.ChangeType(changeType)
		ev.DetectedAt = ev.DetectedAt.UTC()
		out = append(out, ev)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (*models.Snapshot, error) {
	var snap models.Snapshot
	var id int64
	var listType string
	var payload []byte

	if err := row.Scan(&id, &snap.TargetAccount, &listType, &payload, &snap.CollectedAt); err != nil {
		return nil, fmt.Errorf("scan snapshot: %w", err)
	}
	if err := json.Unmarshal(payload, &snap.Users); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot users: %w", err)
	}

	snap.ID = strconv.FormatInt(id, 10)
	snap.ListType = models.ListType(listType)
	snap.CollectedAt = snap.CollectedAt.UTC()
	return &snap, nil
}

type nextScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanOneSnapshot(rows nextScanner) (*models.Snapshot, error) {
	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanSnapshot(rows)
}
