package domain

import (
	"context"

	"github.com/skobkin/zwavelink/internal/bus"
	"github.com/skobkin/zwavelink/internal/connectors"
)

// WriteQueue serializes persistence writes from async domain events.
type WriteQueue interface {
	Enqueue(name string, fn func(context.Context) error)
}

// StartPersistenceSync writes node table changes and stats snapshots
// published on b to the repositories.
func StartPersistenceSync(ctx context.Context, b bus.MessageBus, queue WriteQueue, nodeRepo NodeRepository, routeRepo RouteRepository, statsRepo StatsRepository) {
	nodeSub := b.Subscribe(connectors.TopicNodeChanged)
	routeSub := b.Subscribe(connectors.TopicRouteChanged)
	statsSub := b.Subscribe(connectors.TopicStats)

	go func() {
		defer b.Unsubscribe(nodeSub, connectors.TopicNodeChanged)
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-nodeSub:
				if !ok {
					return
				}
				update, ok := raw.(NodeUpdate)
				if !ok {
					continue
				}
				n := update.Node
				queue.Enqueue("upsert_node", func(writeCtx context.Context) error {
					return nodeRepo.Upsert(writeCtx, n)
				})
			}
		}
	}()

	go func() {
		defer b.Unsubscribe(routeSub, connectors.TopicRouteChanged)
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-routeSub:
				if !ok {
					return
				}
				update, ok := raw.(RouteUpdate)
				if !ok {
					continue
				}
				queue.Enqueue("replace_routes", func(writeCtx context.Context) error {
					return routeRepo.Replace(writeCtx, update)
				})
			}
		}
	}()

	if statsRepo == nil {
		b.Unsubscribe(statsSub, connectors.TopicStats)
		return
	}
	go func() {
		defer b.Unsubscribe(statsSub, connectors.TopicStats)
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-statsSub:
				if !ok {
					return
				}
				snapshot, ok := raw.(StatsSnapshot)
				if !ok {
					continue
				}
				queue.Enqueue("append_stats", func(writeCtx context.Context) error {
					return statsRepo.Append(writeCtx, snapshot)
				})
			}
		}
	}()
}
