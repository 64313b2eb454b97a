package domain

import "context"

type NodeRepository interface {
	Upsert(ctx context.Context, n Node) error
	ListSortedByLastHeard(ctx context.Context) ([]Node, error)
}

type RouteRepository interface {
	Replace(ctx context.Context, update RouteUpdate) error
	ListAll(ctx context.Context) ([]StoredRoute, error)
}

type StatsRepository interface {
	Append(ctx context.Context, s StatsSnapshot) error
	Latest(ctx context.Context) (StatsSnapshot, bool, error)
}
