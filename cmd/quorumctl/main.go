// quorumctl is a command-line client for the MajorityRedis coordination
// primitives (MajorityLock, MajorityRegister, LockingQueue), driving a live
// cluster of Redis-compatible servers for manual exercising and debugging.
//
// Usage:
//
//	quorumctl [global options] <command> [command args]
//
// Global options:
//
//	-c, --config   Cluster config file (YAML, see mclient.ClusterConfig)
//	-s, --servers  Comma-separated server addresses (ignored when --config is set)
//	-n, --n-servers Declared cluster size (defaults to len(--servers))
//	-t, --timeout  Lock/lease timeout (default: 30s)
//
// Commands:
//
//	lock <path>              acquire a MajorityLock
//	unlock <path>            release a MajorityLock
//	get <path>               read a MajorityRegister value
//	set <path> <value>       write a MajorityRegister value
//	exists <path>            check MajorityRegister existence
//	ttl <path>               read MajorityRegister TTL
//	put <item>               enqueue an item on the LockingQueue
//	dequeue                  take the next LockingQueue item
//	consume <handle>         mark a LockingQueue item complete
//	size                     report LockingQueue size
//
// Exit codes:
//
//	0: command succeeded
//	1: command failed (no majority, lock busy, ...)
//	2: argument error
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v3"
)

var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run())
}

func createApp() *cli.Command {
	return &cli.Command{
		Name:    "quorumctl",
		Usage:   "MajorityRedis coordination cluster command-line client",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "cluster config file (YAML)",
			},
			&cli.StringSliceFlag{
				Name:    "servers",
				Aliases: []string{"s"},
				Usage:   "server addresses, e.g. -s localhost:6379 -s localhost:6380",
			},
			&cli.IntFlag{
				Name:    "n-servers",
				Aliases: []string{"n"},
				Usage:   "declared cluster size (defaults to the number of --servers)",
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Usage:   "lock/lease timeout",
				Value:   30 * time.Second,
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level: debug, info, warn, error",
				Value: "info",
			},
		},
		Commands:       createCommands(),
		DefaultCommand: "help",
		Authors: []any{
			"MajorityRedis contributors",
		},
		// urfave/cli calling os.Exit directly would bypass the documented
		// exit-code contract; run() maps errors to codes instead.
		ExitErrHandler: func(_ context.Context, _ *cli.Command, err error) {
			if _, ok := err.(cli.ExitCoder); ok {
				fmt.Fprintln(os.Stderr, err)
			}
		},
	}
}

func run() int {
	app := createApp()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := app.Run(ctx, os.Args); err != nil {
		var usageErr *usageError
		if errors.As(err, &usageErr) {
			fmt.Fprintf(os.Stderr, "argument error: %v\n", usageErr)
			return 2
		}
		if isCLIUsageError(err) {
			return 2
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	return 0
}
