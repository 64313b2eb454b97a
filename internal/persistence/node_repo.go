package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/skobkin/zwavelink/internal/domain"
	"github.com/skobkin/zwavelink/internal/frame"
)

type NodeRepo struct {
	db *sql.DB
}

func NewNodeRepo(db *sql.DB) *NodeRepo {
	return &NodeRepo{db: db}
}

func (r *NodeRepo) Upsert(ctx context.Context, n domain.Node) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO nodes(node_id, is_lr, flirs250, flirs1000, protocol_version, max_speed, neighbour, lr_tx_power, last_rssi, last_heard_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(node_id) DO UPDATE SET
			is_lr = excluded.is_lr,
			flirs250 = excluded.flirs250,
			flirs1000 = excluded.flirs1000,
			protocol_version = excluded.protocol_version,
			max_speed = excluded.max_speed,
			neighbour = excluded.neighbour,
			lr_tx_power = COALESCE(excluded.lr_tx_power, nodes.lr_tx_power),
			last_rssi = COALESCE(excluded.last_rssi, nodes.last_rssi),
			last_heard_at = MAX(excluded.last_heard_at, nodes.last_heard_at),
			updated_at = excluded.updated_at
	`,
		int64(n.ID), boolToInt(n.LR), boolToInt(n.FLiRS250), boolToInt(n.FLiRS1000),
		int64(n.ProtocolVersion), int64(n.MaxSpeed), boolToInt(n.Neighbour),
		nullableInt8(n.LRTxPower), nullableInt8(n.LastRSSI),
		toUnixMillis(n.LastHeardAt), toUnixMillis(n.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert node %d: %w", n.ID, err)
	}
	return nil
}

func (r *NodeRepo) ListSortedByLastHeard(ctx context.Context) ([]domain.Node, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT node_id, is_lr, flirs250, flirs1000, protocol_version, max_speed, neighbour, lr_tx_power, last_rssi, last_heard_at, updated_at
		FROM nodes
		ORDER BY last_heard_at DESC, node_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	defer rows.Close()

	var out []domain.Node
	for rows.Next() {
		var (
			n                   domain.Node
			id                  int64
			lr, f250, f1000, nb int64
			version, speed      int64
			power, rssi         sql.NullInt64
			heardMs, updMs      int64
		)
		if err := rows.Scan(&id, &lr, &f250, &f1000, &version, &speed, &nb, &power, &rssi, &heardMs, &updMs); err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		n.ID = frame.NodeID(id)
		n.LR, n.FLiRS250, n.FLiRS1000, n.Neighbour = lr != 0, f250 != 0, f1000 != 0, nb != 0
		n.ProtocolVersion = uint8(version)
		n.MaxSpeed = frame.Speed(speed)
		if power.Valid {
			v := int8(power.Int64)
			n.LRTxPower = &v
		}
		if rssi.Valid {
			v := int8(rssi.Int64)
			n.LastRSSI = &v
		}
		n.LastHeardAt = fromUnixMillis(heardMs)
		n.UpdatedAt = fromUnixMillis(updMs)
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nodes: %w", err)
	}
	return out, nil
}
