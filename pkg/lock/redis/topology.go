package redis

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// CheckTopology fails when client talks to a sharded deployment, where a single
// SET NX on one shard cannot provide mutual exclusion.
//
// Cluster and ring clients are refused outright. For a plain client the server
// is asked for its cluster section; a server that refuses the question (ACLs,
// proxies) is assumed to be standalone and a warning is logged.
func CheckTopology(ctx context.Context, client redis.UniversalClient) error {
	switch client.(type) {
	case *redis.ClusterClient, *redis.Ring:
		return ErrClusterUnsupported
	}

	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	info, err := client.Info(ctx, "cluster").Result()
	if err != nil {
		zerolog.Ctx(ctx).Warn().
			Err(err).
			Msg("unable to probe Redis topology, assuming a standalone server")

		return nil
	}

	if clusterEnabled(info) {
		return ErrClusterUnsupported
	}

	return nil
}

// clusterEnabled parses the output of INFO cluster.
func clusterEnabled(info string) bool {
	scanner := bufio.NewScanner(strings.NewReader(info))

	for scanner.Scan() {
		name, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), ":")
		if ok && name == "cluster_enabled" {
			return strings.TrimSpace(value) == "1"
		}
	}

	return false
}
