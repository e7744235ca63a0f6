package cli

import (
	"fmt"

	flag "github.com/spf13/pflag"
)

func cmdPrintConfig() *Command {
	cmd := &Command{
		Flags: flag.NewFlagSet("print-config", flag.ContinueOnError),
		Usage: "print-config",
		Short: "print the resolved configuration and its sources",
	}

	cmd.Exec = func(env *Env, args []string) error {
		if len(args) != 0 {
			return fmt.Errorf("print-config takes no positional arguments, got %q", args)
		}

		env.IO.Printf("socket_path: %s\n", env.Cfg.SocketPath)

		if env.Cfg.MaxBytes == 0 {
			env.IO.Println("max_bytes:   unbounded")
		} else {
			env.IO.Printf("max_bytes:   %d\n", env.Cfg.MaxBytes)
		}

		env.IO.Printf("stats_db:    %s\n", env.Cfg.StatsDB)
		env.IO.Println()

		if env.Sources.Global == "" && env.Sources.Project == "" {
			env.IO.Println("sources: defaults only")

			return nil
		}

		if env.Sources.Global != "" {
			env.IO.Println("global config: ", env.Sources.Global)
		}

		if env.Sources.Project != "" {
			env.IO.Println("project config:", env.Sources.Project)
		}

		return nil
	}

	return cmd
}
