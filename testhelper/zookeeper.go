package testhelper

import (
	"os"
	"strings"
	"testing"
)

// ZooKeeperServers returns the servers of a real ZooKeeper ensemble, skipping
// the test unless DISTLOCK_ENABLE_ZOOKEEPER_TESTS=1.
//
// DISTLOCK_TEST_ZOOKEEPER_SERVERS may hold a comma-separated list of servers;
// it defaults to localhost:2181.
func ZooKeeperServers(t *testing.T) []string {
	t.Helper()

	if os.Getenv("DISTLOCK_ENABLE_ZOOKEEPER_TESTS") != "1" {
		t.Skip("ZooKeeper tests disabled (set DISTLOCK_ENABLE_ZOOKEEPER_TESTS=1 to enable)")
	}

	servers := os.Getenv("DISTLOCK_TEST_ZOOKEEPER_SERVERS")
	if servers == "" {
		return []string{"localhost:2181"}
	}

	return strings.Split(servers, ",")
}
