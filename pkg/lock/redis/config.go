package redis

// DefaultKeyPrefix namespaces lock keys in the Redis keyspace.
const DefaultKeyPrefix = "lock:"

// Config holds the connection settings of a standalone Redis server used for locking.
type Config struct {
	// Addr is the address of the Redis server, e.g. "localhost:6379".
	Addr string

	// Username for authentication (optional, required for Redis ACL).
	Username string

	// Password for authentication (optional).
	Password string

	// DB is the Redis database number.
	DB int

	// UseTLS enables TLS connection.
	UseTLS bool

	// PoolSize is the maximum number of socket connections.
	PoolSize int

	// KeyPrefix is prepended to every lock key. Defaults to DefaultKeyPrefix.
	KeyPrefix string
}
