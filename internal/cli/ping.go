package cli

import (
	"fmt"

	flag "github.com/spf13/pflag"

	"github.com/kvmdb/kdbcache/internal/ctl"
)

func cmdPing() *Command {
	cmd := &Command{
		Flags: flag.NewFlagSet("ping", flag.ContinueOnError),
		Usage: "ping",
		Short: "check the control socket and print the instance ID",
	}

	cmd.Exec = func(env *Env, args []string) error {
		if len(args) != 0 {
			return fmt.Errorf("ping takes no positional arguments, got %q", args)
		}

		client, err := ctl.Dial(env.Cfg.SocketPath)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()

		id, err := client.Hello()
		if err != nil {
			return err
		}

		env.IO.Printf("instance %s at %s\n", id, env.Cfg.SocketPath)

		return nil
	}

	return cmd
}
