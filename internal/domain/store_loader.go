package domain

import (
	"context"
	"fmt"
)

func LoadStoreFromRepositories(ctx context.Context, nodes *NodeStore, nodeRepo NodeRepository, routeRepo RouteRepository) error {
	nodeItems, err := nodeRepo.ListSortedByLastHeard(ctx)
	if err != nil {
		return fmt.Errorf("load nodes from db: %w", err)
	}
	routeItems, err := routeRepo.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("load routes from db: %w", err)
	}

	nodes.Load(nodeItems, routeItems)

	return nil
}
