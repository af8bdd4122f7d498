package main

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/adgaudio/MajorityRedis/pkg/coordination/mclient"
)

// usageError marks an argument error that has already produced its own
// message; run() maps it to exit code 2 rather than the generic failure
// code 1.
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

// isCLIUsageError reports whether err originates from urfave/cli's own
// flag/command parsing (unknown flag, unknown subcommand) rather than from
// command logic.
func isCLIUsageError(err error) bool {
	msg := err.Error()
	for _, prefix := range []string{"flag provided but not defined", "unknown command", "unknown flag"} {
		if len(msg) >= len(prefix) && msg[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}

// dialClient builds an mclient.Client from the global --config/--servers/
// --n-servers/--timeout/--log-level flags, preferring --config when both
// --config and --servers are set. The logger built here has no rotation
// configured, so its cleanup function is a no-op and can be discarded.
func dialClient(configPath string, servers []string, nServers int, timeout time.Duration, logLevel string) (*mclient.Client, error) {
	logger, _, err := mclient.NewDefaultLoggerAtLevel("mclient", logLevel)
	if err != nil {
		return nil, fmt.Errorf("quorumctl: %w", err)
	}

	if configPath != "" {
		cc, err := mclient.LoadClusterConfig(configPath)
		if err != nil {
			return nil, err
		}
		return mclient.NewFromConfig(cc, mclient.WithLogger(logger))
	}
	if len(servers) == 0 {
		return nil, &usageError{msg: "either --config or --servers is required"}
	}
	if nServers == 0 {
		nServers = len(servers)
	}
	clients := make([]redis.UniversalClient, len(servers))
	for i, addr := range servers {
		clients[i] = redis.NewClient(&redis.Options{Addr: addr})
	}
	c, err := mclient.New(clients, nServers, mclient.WithLockTimeout(timeout), mclient.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("quorumctl: %w", err)
	}
	return c, nil
}
