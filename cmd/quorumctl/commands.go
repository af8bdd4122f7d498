package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/adgaudio/MajorityRedis/pkg/coordination/merrors"
	"github.com/adgaudio/MajorityRedis/pkg/coordination/mlock"
	"github.com/adgaudio/MajorityRedis/pkg/coordination/mqueue"
)

func createCommands() []*cli.Command {
	return []*cli.Command{
		createLockCommand(),
		createUnlockCommand(),
		createGetCommand(),
		createSetCommand(),
		createExistsCommand(),
		createTTLCommand(),
		createPutCommand(),
		createDequeueCommand(),
		createConsumeCommand(),
		createSizeCommand(),
	}
}

// rootFlags walks up to the top-level command to read the global
// --config/--servers/--n-servers/--timeout flags shared by every
// subcommand.
type rootFlags struct {
	configPath string
	servers    []string
	nServers   int
	timeout    time.Duration
	logLevel   string
}

func readRootFlags(cmd *cli.Command) rootFlags {
	root := cmd
	for root.Parent() != nil {
		root = root.Parent()
	}
	return rootFlags{
		configPath: root.String("config"),
		servers:    root.StringSlice("servers"),
		nServers:   int(root.Int("n-servers")),
		timeout:    root.Duration("timeout"),
		logLevel:   root.String("log-level"),
	}
}

func createLockCommand() *cli.Command {
	return &cli.Command{
		Name:      "lock",
		Usage:     "acquire a MajorityLock on path",
		ArgsUsage: "<path>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return &usageError{msg: "lock requires exactly one <path> argument"}
			}
			rf := readRootFlags(cmd)
			c, err := dialClient(rf.configPath, rf.servers, rf.nServers, rf.timeout, rf.logLevel)
			if err != nil {
				return err
			}
			defer c.Close()

			lock, err := c.Lock()
			if err != nil {
				return err
			}
			expireAt, err := lock.Lock(ctx, cmd.Args().Get(0), mlock.ExtendDisabled)
			if err != nil {
				return fmt.Errorf("lock failed: %w", err)
			}
			fmt.Printf("acquired, expires at unix %d (client_id=%d)\n", expireAt, c.ClientID())
			return nil
		},
	}
}

func createUnlockCommand() *cli.Command {
	return &cli.Command{
		Name:      "unlock",
		Usage:     "release a MajorityLock on path",
		ArgsUsage: "<path>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return &usageError{msg: "unlock requires exactly one <path> argument"}
			}
			rf := readRootFlags(cmd)
			c, err := dialClient(rf.configPath, rf.servers, rf.nServers, rf.timeout, rf.logLevel)
			if err != nil {
				return err
			}
			defer c.Close()

			lock, err := c.Lock()
			if err != nil {
				return err
			}
			fraction := lock.Unlock(ctx, cmd.Args().Get(0))
			fmt.Printf("released, confirmed by %.0f%% of servers\n", fraction*100)
			return nil
		},
	}
}

func createGetCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "read a MajorityRegister value",
		ArgsUsage: "<path>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return &usageError{msg: "get requires exactly one <path> argument"}
			}
			rf := readRootFlags(cmd)
			c, err := dialClient(rf.configPath, rf.servers, rf.nServers, rf.timeout, rf.logLevel)
			if err != nil {
				return err
			}
			defer c.Close()

			value, err := c.Register().Get(ctx, cmd.Args().Get(0))
			if err != nil {
				return fmt.Errorf("get failed: %w", err)
			}
			fmt.Println(value)
			return nil
		},
	}
}

func createSetCommand() *cli.Command {
	return &cli.Command{
		Name:      "set",
		Usage:     "write a MajorityRegister value",
		ArgsUsage: "<path> <value>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 2 {
				return &usageError{msg: "set requires <path> and <value> arguments"}
			}
			rf := readRootFlags(cmd)
			c, err := dialClient(rf.configPath, rf.servers, rf.nServers, rf.timeout, rf.logLevel)
			if err != nil {
				return err
			}
			defer c.Close()

			ok, err := c.Register().Set(ctx, cmd.Args().Get(0), cmd.Args().Get(1))
			if err != nil {
				return fmt.Errorf("set failed: %w", err)
			}
			fmt.Printf("set succeeded: %v\n", ok)
			return nil
		},
	}
}

func createExistsCommand() *cli.Command {
	return &cli.Command{
		Name:      "exists",
		Usage:     "check whether a MajorityRegister key exists",
		ArgsUsage: "<path>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return &usageError{msg: "exists requires exactly one <path> argument"}
			}
			rf := readRootFlags(cmd)
			c, err := dialClient(rf.configPath, rf.servers, rf.nServers, rf.timeout, rf.logLevel)
			if err != nil {
				return err
			}
			defer c.Close()

			ok, err := c.Register().Exists(ctx, cmd.Args().Get(0))
			if err != nil {
				return fmt.Errorf("exists failed: %w", err)
			}
			fmt.Println(ok)
			return nil
		},
	}
}

func createTTLCommand() *cli.Command {
	return &cli.Command{
		Name:      "ttl",
		Usage:     "read the remaining TTL of a MajorityRegister key",
		ArgsUsage: "<path>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return &usageError{msg: "ttl requires exactly one <path> argument"}
			}
			rf := readRootFlags(cmd)
			c, err := dialClient(rf.configPath, rf.servers, rf.nServers, rf.timeout, rf.logLevel)
			if err != nil {
				return err
			}
			defer c.Close()

			ttl, err := c.Register().TTL(ctx, cmd.Args().Get(0))
			if err != nil {
				return fmt.Errorf("ttl failed: %w", err)
			}
			fmt.Println(ttl)
			return nil
		},
	}
}

func createPutCommand() *cli.Command {
	return &cli.Command{
		Name:      "put",
		Usage:     "enqueue an item on the LockingQueue",
		ArgsUsage: "<item>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "priority", Value: 0, Usage: "lower sorts first"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return &usageError{msg: "put requires exactly one <item> argument"}
			}
			rf := readRootFlags(cmd)
			c, err := dialClient(rf.configPath, rf.servers, rf.nServers, rf.timeout, rf.logLevel)
			if err != nil {
				return err
			}
			defer c.Close()

			queue, err := c.Queue()
			if err != nil {
				return err
			}
			fraction := queue.Put(ctx, cmd.Args().Get(0), int(cmd.Int("priority")))
			fmt.Printf("enqueued, confirmed by %.0f%% of servers\n", fraction*100)
			return nil
		},
	}
}

func createDequeueCommand() *cli.Command {
	return &cli.Command{
		Name:  "dequeue",
		Usage: "take the next LockingQueue item",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "check-all-servers", Value: false},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			rf := readRootFlags(cmd)
			c, err := dialClient(rf.configPath, rf.servers, rf.nServers, rf.timeout, rf.logLevel)
			if err != nil {
				return err
			}
			defer c.Close()

			queue, err := c.Queue()
			if err != nil {
				return err
			}
			item, handle, err := queue.Get(ctx, mqueue.ExtendDisabled, cmd.Bool("check-all-servers"))
			if err != nil {
				if errorsIsQueueEmpty(err) {
					fmt.Println("queue empty")
					return nil
				}
				return fmt.Errorf("dequeue failed: %w", err)
			}
			fmt.Printf("item=%s handle=%s\n", item, handle)
			return nil
		},
	}
}

func createConsumeCommand() *cli.Command {
	return &cli.Command{
		Name:      "consume",
		Usage:     "mark a LockingQueue item complete",
		ArgsUsage: "<handle>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return &usageError{msg: "consume requires exactly one <handle> argument"}
			}
			rf := readRootFlags(cmd)
			c, err := dialClient(rf.configPath, rf.servers, rf.nServers, rf.timeout, rf.logLevel)
			if err != nil {
				return err
			}
			defer c.Close()

			queue, err := c.Queue()
			if err != nil {
				return err
			}
			fraction, err := queue.Consume(ctx, mqueue.Handle(cmd.Args().Get(0)))
			if err != nil {
				return fmt.Errorf("consume failed: %w", err)
			}
			fmt.Printf("consumed, confirmed by %.0f%% of servers\n", fraction*100)
			return nil
		},
	}
}

func createSizeCommand() *cli.Command {
	return &cli.Command{
		Name:  "size",
		Usage: "report LockingQueue size",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "queued", Value: true},
			&cli.BoolFlag{Name: "taken", Value: true},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			rf := readRootFlags(cmd)
			c, err := dialClient(rf.configPath, rf.servers, rf.nServers, rf.timeout, rf.logLevel)
			if err != nil {
				return err
			}
			defer c.Close()

			queue, err := c.Queue()
			if err != nil {
				return err
			}
			n, err := queue.Size(ctx, cmd.Bool("queued"), cmd.Bool("taken"))
			if err != nil {
				return fmt.Errorf("size failed: %w", err)
			}
			fmt.Println(strconv.FormatInt(n, 10))
			return nil
		},
	}
}

func errorsIsQueueEmpty(err error) bool {
	return merrors.IsLogicalError(err, merrors.LogicalQueueEmpty)
}
