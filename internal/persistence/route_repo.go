package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/skobkin/zwavelink/internal/domain"
	"github.com/skobkin/zwavelink/internal/frame"
)

// RouteRepo stores the repeater routes of the node table.
type RouteRepo struct {
	db *sql.DB
}

func NewRouteRepo(db *sql.DB) *RouteRepo {
	return &RouteRepo{db: db}
}

// Replace swaps all routes of update.Kind to update.Destination in one transaction.
func (r *RouteRepo) Replace(ctx context.Context, update domain.RouteUpdate) error {
	if !update.Kind.Valid() {
		return fmt.Errorf("unknown route kind %q", update.Kind)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace routes tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM routes WHERE destination = ? AND kind = ?`, int64(update.Destination), string(update.Kind)); err != nil {
		return fmt.Errorf("delete routes to %d: %w", update.Destination, err)
	}
	for i, route := range update.Routes {
		if len(route.Repeaters) > frame.MaxRepeaters {
			return fmt.Errorf("route to %d has %d repeaters", update.Destination, len(route.Repeaters))
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO routes(destination, kind, position, repeaters, speed, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, int64(update.Destination), string(update.Kind), i, append([]byte{}, route.Repeaters...), int64(route.Speed), toUnixMillis(route.UpdatedAt)); err != nil {
			return fmt.Errorf("insert route to %d: %w", update.Destination, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace routes tx: %w", err)
	}
	return nil
}

func (r *RouteRepo) ListAll(ctx context.Context) ([]domain.StoredRoute, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT destination, kind, repeaters, speed, updated_at
		FROM routes
		ORDER BY destination, kind, position
	`)
	if err != nil {
		return nil, fmt.Errorf("list routes: %w", err)
	}
	defer rows.Close()

	var out []domain.StoredRoute
	for rows.Next() {
		var (
			route     domain.StoredRoute
			dst       int64
			kind      string
			repeaters []byte
			speed     int64
			updMs     int64
		)
		if err := rows.Scan(&dst, &kind, &repeaters, &speed, &updMs); err != nil {
			return nil, fmt.Errorf("scan route: %w", err)
		}
		route.Destination = frame.NodeID(dst)
		route.Kind = domain.RouteKind(kind)
		route.Repeaters = append([]uint8(nil), repeaters...)
		route.Speed = frame.Speed(speed)
		route.UpdatedAt = fromUnixMillis(updMs)
		out = append(out, route)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate routes: %w", err)
	}
	return out, nil
}
