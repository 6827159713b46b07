package redlock

// DefaultKeyPrefix namespaces lock keys on every node.
const DefaultKeyPrefix = "lock:"

// Config holds the settings of the independent Redis masters used for Redlock.
type Config struct {
	// Addrs lists the standalone Redis masters, e.g. ["r1:6379", "r2:6379", "r3:6379"].
	// They must not replicate each other.
	Addrs []string

	// Username for authentication (optional, required for Redis ACL).
	Username string

	// Password for authentication (optional).
	Password string

	// DB is the Redis database number.
	DB int

	// UseTLS enables TLS connection.
	UseTLS bool

	// PoolSize is the maximum number of socket connections per node.
	PoolSize int

	// KeyPrefix is prepended to every lock key. Defaults to DefaultKeyPrefix.
	KeyPrefix string
}
