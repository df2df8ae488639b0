package cache

import "time"

// RedisOption configures RedisCache.
type RedisOption func(*RedisConfig)

// RedisConfig holds the L2 connection settings.
type RedisConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	Prefix       string // prepended to every key as "prefix:key"
}

func WithRedisAddr(host string, port int) RedisOption {
	return func(c *RedisConfig) {
		c.Host, c.Port = host, port
	}
}

// WithRedisAuth selects the logical database and its password.
func WithRedisAuth(password string, db int) RedisOption {
	return func(c *RedisConfig) {
		c.Password, c.DB = password, db
	}
}

func WithRedisPool(size, minIdle int) RedisOption {
	return func(c *RedisConfig) {
		c.PoolSize, c.MinIdleConns = size, minIdle
	}
}

// WithRedisDialTimeout bounds the connect and the startup ping.
func WithRedisDialTimeout(d time.Duration) RedisOption {
	return func(c *RedisConfig) {
		c.DialTimeout = d
	}
}

func WithRedisPrefix(prefix string) RedisOption {
	return func(c *RedisConfig) {
		c.Prefix = prefix
	}
}

// MemoryOption configures MemoryCache.
type MemoryOption func(*MemoryConfig)

// MemoryConfig holds the in-process cache settings.
type MemoryConfig struct {
	MaxSize         int
	CleanupInterval time.Duration
	Now             func() time.Time
}

func WithMemoryMaxSize(size int) MemoryOption {
	return func(c *MemoryConfig) {
		c.MaxSize = size
	}
}

func WithMemoryCleanup(interval time.Duration) MemoryOption {
	return func(c *MemoryConfig) {
		c.CleanupInterval = interval
	}
}

// WithMemoryClock overrides the time source. Used by tests.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(c *MemoryConfig) {
		c.Now = now
	}
}

// LayeredOption configures LayeredCache.
type LayeredOption func(*LayeredConfig)

// LayeredConfig holds the L1 settings of a LayeredCache.
type LayeredConfig struct {
	MemoryMaxSize int
	// L1MaxTTL caps how long a value promoted from Redis stays in memory.
	// Zero keeps the remaining Redis TTL.
	L1MaxTTL time.Duration
}

func WithLayeredMemorySize(size int) LayeredOption {
	return func(c *LayeredConfig) {
		c.MemoryMaxSize = size
	}
}

func WithLayeredL1MaxTTL(d time.Duration) LayeredOption {
	return func(c *LayeredConfig) {
		c.L1MaxTTL = d
	}
}
