package influxdb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/lanwake/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 * time.Second
)

// Client records reachability history and wake attempts in InfluxDB.
//
// Writes are queued on the library's batching WriteAPI and never block the
// caller. Rejected batches are reported through SetOnError.
type Client struct {
	client influxdb2.Client
	writer api.WriteAPI

	// state guards open so that no point is queued once Close has shut
	// the WriteAPI down.
	state sync.RWMutex
	open  bool

	failed atomic.Uint64

	mu      sync.Mutex
	onError func(err error)
}

// Connect pings the server and prepares the write queue for cfg.Bucket.
// It returns ErrDisabled when the integration is switched off.
func Connect(cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, clientOptions(cfg))

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := ping(ctx, client); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c := &Client{
		client: client,
		writer: client.WriteAPI(cfg.Org, cfg.Bucket),
		open:   true,
	}
	go c.watchWrites(c.writer.Errors())

	return c, nil
}

// clientOptions maps the batch settings onto the library options. Flush
// interval is configured in seconds; the library wants milliseconds.
func clientOptions(cfg config.InfluxDBConfig) *influxdb2.Options {
	batch := uint(defaultBatchSize)
	if cfg.BatchSize > 0 {
		batch = uint(cfg.BatchSize)
	}
	flush := defaultFlushInterval
	if cfg.FlushInterval > 0 {
		flush = time.Duration(cfg.FlushInterval) * time.Second
	}
	return influxdb2.DefaultOptions().
		SetBatchSize(batch).
		SetFlushInterval(uint(flush.Milliseconds()))
}

func ping(ctx context.Context, client influxdb2.Client) error {
	healthy, err := client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	if !healthy {
		return fmt.Errorf("server not healthy")
	}
	return nil
}

// watchWrites drains the WriteAPI error channel until the client closes.
func (c *Client) watchWrites(errs <-chan error) {
	for err := range errs {
		c.failed.Add(1)

		c.mu.Lock()
		callback := c.onError
		c.mu.Unlock()

		if callback != nil {
			callback(fmt.Errorf("%w: %w", ErrWriteFailed, err))
		}
	}
}

// record queues p unless the client has been closed.
func (c *Client) record(p *write.Point) {
	c.state.RLock()
	defer c.state.RUnlock()
	if c.open {
		c.writer.WritePoint(p)
	}
}

// SetOnError sets the callback for rejected batches. Errors passed to it
// wrap ErrWriteFailed.
func (c *Client) SetOnError(callback func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = callback
}

// FailedWrites returns the number of batches the server has rejected.
func (c *Client) FailedWrites() uint64 {
	return c.failed.Load()
}

// IsConnected reports whether the client is still accepting writes.
func (c *Client) IsConnected() bool {
	c.state.RLock()
	defer c.state.RUnlock()
	return c.open
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := ping(ctx, c.client); err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	return nil
}

// Flush blocks until queued points are written. It does nothing after Close.
func (c *Client) Flush() {
	c.state.RLock()
	defer c.state.RUnlock()
	if c.open {
		c.writer.Flush()
	}
}

// Close writes anything still queued and releases the client.
func (c *Client) Close() error {
	c.state.Lock()
	defer c.state.Unlock()
	if c.client == nil || !c.open {
		return nil
	}
	c.open = false
	c.writer.Flush()
	c.client.Close()
	return nil
}
