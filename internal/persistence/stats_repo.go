package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/skobkin/zwavelink/internal/domain"
)

// StatsRepo keeps periodic snapshots of the layer counters.
type StatsRepo struct {
	db *sql.DB
}

func NewStatsRepo(db *sql.DB) *StatsRepo {
	return &StatsRepo{db: db}
}

func (r *StatsRepo) Append(ctx context.Context, s domain.StatsSnapshot) error {
	datalinkJSON, err := json.Marshal(s.Datalink)
	if err != nil {
		return fmt.Errorf("marshal datalink stats: %w", err)
	}
	transferJSON, err := json.Marshal(s.Transfer)
	if err != nil {
		return fmt.Errorf("marshal transfer stats: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO stats_snapshots(taken_at, datalink_json, transfer_json)
		VALUES (?, ?, ?)
	`, toUnixMillis(s.At), string(datalinkJSON), string(transferJSON)); err != nil {
		return fmt.Errorf("insert stats snapshot: %w", err)
	}
	return nil
}

// Latest returns the most recent snapshot. ok is false on an empty table.
func (r *StatsRepo) Latest(ctx context.Context) (domain.StatsSnapshot, bool, error) {
	var (
		takenMs                    int64
		datalinkJSON, transferJSON string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT taken_at, datalink_json, transfer_json
		FROM stats_snapshots
		ORDER BY taken_at DESC, id DESC
		LIMIT 1
	`).Scan(&takenMs, &datalinkJSON, &transferJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.StatsSnapshot{}, false, nil
	}
	if err != nil {
		return domain.StatsSnapshot{}, false, fmt.Errorf("query latest stats: %w", err)
	}

	s := domain.StatsSnapshot{At: fromUnixMillis(takenMs)}
	if err := json.Unmarshal([]byte(datalinkJSON), &s.Datalink); err != nil {
		return domain.StatsSnapshot{}, false, fmt.Errorf("decode datalink stats: %w", err)
	}
	if err := json.Unmarshal([]byte(transferJSON), &s.Transfer); err != nil {
		return domain.StatsSnapshot{}, false, fmt.Errorf("decode transfer stats: %w", err)
	}
	return s, true, nil
}

// Prune keeps the newest keep snapshots.
func (r *StatsRepo) Prune(ctx context.Context, keep int) error {
	if _, err := r.db.ExecContext(ctx, `
		DELETE FROM stats_snapshots
		WHERE id NOT IN (SELECT id FROM stats_snapshots ORDER BY taken_at DESC, id DESC LIMIT ?)
	`, keep); err != nil {
		return fmt.Errorf("prune stats snapshots: %w", err)
	}
	return nil
}
