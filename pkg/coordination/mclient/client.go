// Package mclient is the Client facade (/): it wires together
// MajorityLock, MajorityRegister, and LockingQueue over one shared cluster
// configuration, generates the process-wide client identifier, and
// validates the two constructor-time invariants from the source API:
// enough connected servers to reach quorum, and polling_interval strictly
// less than lock_timeout.
package mclient

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/adgaudio/MajorityRedis/pkg/coordination/merrors"
	"github.com/adgaudio/MajorityRedis/pkg/coordination/mlease"
	"github.com/adgaudio/MajorityRedis/pkg/coordination/mlock"
	"github.com/adgaudio/MajorityRedis/pkg/coordination/mqueue"
	"github.com/adgaudio/MajorityRedis/pkg/coordination/mquorum"
	"github.com/adgaudio/MajorityRedis/pkg/coordination/mregister"
	"github.com/adgaudio/MajorityRedis/pkg/coordination/mscript"
)

// Client is the shared entry point for the three coordination primitives.
type Client struct {
	clientID int64
	servers  []mscript.Server
	nServers int
	leases   *mlease.Registry

	lockTimeout     time.Duration
	pollingInterval time.Duration
	clockDrift      time.Duration
	queueKey        string
	logger          mscript.Logger
	tracerProv      trace.TracerProvider
	meterProv       metric.MeterProvider
}

// Option configures a Client.
type Option func(*config)

type config struct {
	lockTimeout     time.Duration
	pollingInterval time.Duration
	clockDrift      time.Duration
	queueKey        string
	logger          mscript.Logger
	scheduler       mlease.Scheduler
	tracerProv      trace.TracerProvider
	meterProv       metric.MeterProvider
}

// WithLockTimeout sets the lease duration shared by MajorityLock and
// LockingQueue. Default 30s, matching majorityredis_base.py.
func WithLockTimeout(d time.Duration) Option { return func(c *config) { c.lockTimeout = d } }

// WithPollingInterval sets the lease-keeper polling interval. Must be
// strictly less than the lock timeout. Defaults to lockTimeout/5, the
// derivation majorityredis_base.py uses when none is supplied.
func WithPollingInterval(d time.Duration) Option { return func(c *config) { c.pollingInterval = d } }

// WithClockDrift sets the assumed maximum clock drift across servers.
func WithClockDrift(d time.Duration) Option { return func(c *config) { c.clockDrift = d } }

// WithQueueKey overrides the default LockingQueue key ("Q").
func WithQueueKey(key string) Option { return func(c *config) { c.queueKey = key } }

// WithLogger attaches a diagnostic logger shared by all three primitives.
func WithLogger(lg mscript.Logger) Option { return func(c *config) { c.logger = lg } }

// WithScheduler overrides the LeaseKeeper scheduler (for tests).
func WithScheduler(s mlease.Scheduler) Option { return func(c *config) { c.scheduler = s } }

// WithTracerProvider attaches an OpenTelemetry TracerProvider shared by all
// three primitives. Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option { return func(c *config) { c.tracerProv = tp } }

// WithMeterProvider attaches an OpenTelemetry MeterProvider shared by all
// three primitives. Defaults to nil (no metrics).
func WithMeterProvider(mp metric.MeterProvider) Option { return func(c *config) { c.meterProv = mp } }

// New constructs a Client. nServers is the declared cluster size; clients
// must number at least quorum(nServers), matching api.py's
// MajorityRedisException("queue insufficient clients") guard.
func New(clients []redis.UniversalClient, nServers int, opts ...Option) (*Client, error) {
	if len(clients) < mquorum.Quorum(nServers) {
		return nil, fmt.Errorf("%w: %d clients cannot reach quorum of %d for %d declared servers",
			merrors.ErrInvalidConfig, len(clients), mquorum.Quorum(nServers), nServers)
	}

	cfg := &config{
		lockTimeout: 30 * time.Second,
		queueKey:    "Q",
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.pollingInterval == 0 {
		cfg.pollingInterval = cfg.lockTimeout / 5
	}
	if cfg.pollingInterval >= cfg.lockTimeout {
		return nil, fmt.Errorf("%w: polling_interval must be strictly less than lock_timeout", merrors.ErrInvalidConfig)
	}

	servers := make([]mscript.Server, len(clients))
	for i, c := range clients {
		servers[i] = mscript.Server{ID: fmt.Sprintf("server-%d", i), Client: c}
	}

	clientID, err := randClientID()
	if err != nil {
		return nil, err
	}

	return &Client{
		clientID:        clientID,
		servers:         servers,
		nServers:        nServers,
		leases:          mlease.NewRegistry(cfg.scheduler),
		lockTimeout:     cfg.lockTimeout,
		pollingInterval: cfg.pollingInterval,
		clockDrift:      cfg.clockDrift,
		queueKey:        cfg.queueKey,
		logger:          cfg.logger,
		tracerProv:      cfg.tracerProv,
		meterProv:       cfg.meterProv,
	}, nil
}

// ClientID returns the random fencing token chosen for this process.
func (c *Client) ClientID() int64 { return c.clientID }

// Lock returns a MajorityLock bound to this client's configuration.
func (c *Client) Lock() (*mlock.Lock, error) {
	opts := []mlock.Option{
		mlock.WithTimeout(c.lockTimeout),
		mlock.WithPollingInterval(c.pollingInterval),
		mlock.WithClockDrift(c.clockDrift),
	}
	if c.logger != nil {
		opts = append(opts, mlock.WithLogger(c.logger))
	}
	if c.tracerProv != nil {
		opts = append(opts, mlock.WithTracerProvider(c.tracerProv))
	}
	if c.meterProv != nil {
		opts = append(opts, mlock.WithMeterProvider(c.meterProv))
	}
	return mlock.New(c.servers, c.nServers, c.clientID, c.leases, opts...)
}

// Register returns a MajorityRegister bound to this client's configuration.
func (c *Client) Register() *mregister.Register {
	var opts []mregister.Option
	if c.logger != nil {
		opts = append(opts, mregister.WithLogger(c.logger))
	}
	if c.tracerProv != nil {
		opts = append(opts, mregister.WithTracerProvider(c.tracerProv))
	}
	if c.meterProv != nil {
		opts = append(opts, mregister.WithMeterProvider(c.meterProv))
	}
	return mregister.New(c.servers, c.nServers, opts...)
}

// Queue returns a LockingQueue bound to this client's configuration.
func (c *Client) Queue() (*mqueue.Queue, error) {
	opts := []mqueue.Option{
		mqueue.WithTimeout(c.lockTimeout),
		mqueue.WithPollingInterval(c.pollingInterval),
		mqueue.WithClockDrift(c.clockDrift),
	}
	if c.logger != nil {
		opts = append(opts, mqueue.WithLogger(c.logger))
	}
	if c.tracerProv != nil {
		opts = append(opts, mqueue.WithTracerProvider(c.tracerProv))
	}
	if c.meterProv != nil {
		opts = append(opts, mqueue.WithMeterProvider(c.meterProv))
	}
	return mqueue.New(c.servers, c.nServers, c.clientID, c.queueKey, c.leases, opts...)
}

// Close stops every background lease-keeper spawned by this client.
func (c *Client) Close() {
	c.leases.StopAll()
}

// randClientID picks a uniformly random 63-bit integer, matching the
// source API's `random.randint(0, sys.maxsize)` fencing-token semantics —
// not a Snowflake-style generator, which would impose monotonicity and
// node-topology structure this domain explicitly doesn't want (see
// DESIGN.md).
func randClientID() (int64, error) {
	n, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 63))
	if err != nil {
		return 0, fmt.Errorf("mclient: generating client_id: %w", err)
	}
	return n.Int64(), nil
}
