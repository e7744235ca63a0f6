package cli

import (
	"fmt"

	flag "github.com/spf13/pflag"

	"github.com/kvmdb/kdbcache/internal/ctl"
)

func cmdReset() *Command {
	cmd := &Command{
		Flags: flag.NewFlagSet("reset", flag.ContinueOnError),
		Usage: "reset",
		Short: "zero the monotonic statistics counters",
		Long: "Zero the monotonic statistics counters on the running cache.\n" +
			"Live gauges (dirty_pages, allocated_cp, allocated_lp) keep\n" +
			"describing current state and are not touched.",
	}

	cmd.Exec = func(env *Env, args []string) error {
		if len(args) != 0 {
			return fmt.Errorf("reset takes no positional arguments, got %q", args)
		}

		client, err := ctl.Dial(env.Cfg.SocketPath)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()

		if err := client.ResetStats(); err != nil {
			return err
		}

		env.IO.Println("counters reset")

		return nil
	}

	return cmd
}
