package mclient

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/adgaudio/MajorityRedis/pkg/config/xconf"
)

// ClusterConfig is the on-disk shape of a cluster topology file, loaded via
// pkg/config/xconf. Durations are parsed from Go duration strings ("30s",
// "6s") by koanf's mapstructure decoder.
type ClusterConfig struct {
	// Servers lists every server address in the cluster, including ones
	// currently unreachable — NServers (not len(Servers)) is the quorum
	// denominator, matching the source API's declared-vs-connected split.
	Servers []string `koanf:"servers"`
	// NServers is the declared cluster size. Defaults to len(Servers) when
	// zero.
	NServers        int           `koanf:"n_servers"`
	LockTimeout     time.Duration `koanf:"lock_timeout"`
	PollingInterval time.Duration `koanf:"polling_interval"`
	ClockDrift      time.Duration `koanf:"clock_drift"`
	QueueKey        string        `koanf:"queue_key"`
}

// LoadClusterConfig reads and unmarshals a ClusterConfig from a YAML/JSON
// file via xconf, e.g.:
//
//	servers: ["localhost:6379", "localhost:6380", "localhost:6381"]
//	lock_timeout: 30s
//	polling_interval: 6s
func LoadClusterConfig(path string) (*ClusterConfig, error) {
	cfg, err := xconf.New(path)
	if err != nil {
		return nil, fmt.Errorf("mclient: loading cluster config: %w", err)
	}
	var cc ClusterConfig
	if err := cfg.Unmarshal("", &cc); err != nil {
		return nil, fmt.Errorf("mclient: parsing cluster config: %w", err)
	}
	if cc.NServers == 0 {
		cc.NServers = len(cc.Servers)
	}
	return &cc, nil
}

// NewFromConfig dials every server address in cc and constructs a Client,
// applying any additional opts after the config-derived ones (so callers
// can still override, e.g. WithLogger for a component-tagged logger).
func NewFromConfig(cc *ClusterConfig, opts ...Option) (*Client, error) {
	clients := make([]redis.UniversalClient, len(cc.Servers))
	for i, addr := range cc.Servers {
		clients[i] = redis.NewClient(&redis.Options{Addr: addr})
	}

	allOpts := make([]Option, 0, len(opts)+4)
	if cc.LockTimeout > 0 {
		allOpts = append(allOpts, WithLockTimeout(cc.LockTimeout))
	}
	if cc.PollingInterval > 0 {
		allOpts = append(allOpts, WithPollingInterval(cc.PollingInterval))
	}
	if cc.ClockDrift > 0 {
		allOpts = append(allOpts, WithClockDrift(cc.ClockDrift))
	}
	if cc.QueueKey != "" {
		allOpts = append(allOpts, WithQueueKey(cc.QueueKey))
	}
	allOpts = append(allOpts, opts...)

	return New(clients, cc.NServers, allOpts...)
}
