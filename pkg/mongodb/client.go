package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// ClientOption configures Client.
type ClientOption func(*ClientConfig)

// ClientConfig holds MongoDB connection settings.
type ClientConfig struct {
	URI            string
	Database       string
	MaxPoolSize    uint64
	MinPoolSize    uint64
	ConnectTimeout time.Duration
	MaxIdleTime    time.Duration
}

// WithURI sets the connection string.
func WithURI(uri string) ClientOption {
	return func(c *ClientConfig) {
		c.URI = uri
	}
}

// WithDatabase sets the database name.
func WithDatabase(db string) ClientOption {
	return func(c *ClientConfig) {
		c.Database = db
	}
}

// WithPool sets pool bounds.
func WithPool(min, max uint64) ClientOption {
	return func(c *ClientConfig) {
		c.MinPoolSize = min
		c.MaxPoolSize = max
	}
}

// WithConnectTimeout sets the dial and ping deadline.
func WithConnectTimeout(d time.Duration) ClientOption {
	return func(c *ClientConfig) {
		c.ConnectTimeout = d
	}
}

// Client owns a mongo connection and a selected database.
type Client struct {
	client   *mongo.Client
	database *mongo.Database
}

// NewClient connects and pings MongoDB.
func NewClient(opts ...ClientOption) (*Client, error) {
	cfg := &ClientConfig{
		Database:       "priceagent",
		MaxPoolSize:    10,
		MinPoolSize:    1,
		ConnectTimeout: 10 * time.Second,
		MaxIdleTime:    30 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.URI == "" {
		return nil, fmt.Errorf("uri is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(cfg.URI).
		SetMaxPoolSize(cfg.MaxPoolSize).
		SetMinPoolSize(cfg.MinPoolSize).
		SetMaxConnIdleTime(cfg.MaxIdleTime).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetRetryWrites(true).
		SetRetryReads(true)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	return &Client{client: client, database: client.Database(cfg.Database)}, nil
}

// Database returns the selected database.
func (c *Client) Database() *mongo.Database {
	return c.database
}

// Collection returns a collection handle.
func (c *Client) Collection(name string) *mongo.Collection {
	return c.database.Collection(name)
}

// Health pings the primary.
func (c *Client) Health(ctx context.Context) error {
	return c.client.Ping(ctx, readpref.Primary())
}

// Close disconnects.
func (c *Client) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.client.Disconnect(ctx)
}
