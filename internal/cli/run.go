package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// Env carries resolved configuration and streams into commands.
type Env struct {
	IO      *IO
	Cfg     Config
	Sources ConfigSources
	Sig     <-chan os.Signal
}

// Global flag errors.
var (
	errFlagRequiresArg = errors.New("flag requires an argument")
	errUnknownFlag     = errors.New("unknown flag")
)

type globalFlags struct {
	configPath string
	socketPath string
	workDir    string
	remaining  []string
}

// parseGlobalFlags splits flags that apply before the command word.
func parseGlobalFlags(args []string) (globalFlags, error) {
	var flags globalFlags

	i := 0

	for i < len(args) {
		arg := args[i]

		switch arg {
		case "--config":
			if i+1 >= len(args) {
				return globalFlags{}, fmt.Errorf("%w: %s", errFlagRequiresArg, arg)
			}

			flags.configPath = args[i+1]
			i += 2
		case "--socket":
			if i+1 >= len(args) {
				return globalFlags{}, fmt.Errorf("%w: %s", errFlagRequiresArg, arg)
			}

			flags.socketPath = args[i+1]
			i += 2
		case "-C", "--dir":
			if i+1 >= len(args) {
				return globalFlags{}, fmt.Errorf("%w: %s", errFlagRequiresArg, arg)
			}

			flags.workDir = args[i+1]
			i += 2
		default:
			if len(arg) > 1 && arg[0] == '-' && arg != "-h" && arg != "--help" {
				return globalFlags{}, fmt.Errorf("%w: %s", errUnknownFlag, arg)
			}

			flags.remaining = args[i:]

			return flags, nil
		}
	}

	return flags, nil
}

// commands returns the registry. Rebuilt per call so each invocation
// gets fresh flag sets.
func commands() []*Command {
	return []*Command{
		cmdServe(),
		cmdLayout(),
		cmdStats(),
		cmdReset(),
		cmdPing(),
		cmdPrintConfig(),
	}
}

func printUsage(o *IO) {
	o.Println("Usage: kdbcache [--config <file>] [--socket <path>] [-C <dir>] <command> [args]")
	o.Println()
	o.Println("A fault-driven page cache for database storage. The serve command")
	o.Println("hosts a cache instance; the other commands talk to it over the")
	o.Println("control socket.")
	o.Println()
	o.Println("Commands:")

	for _, c := range commands() {
		o.Println(c.HelpLine())
	}

	o.Println()
	o.Println("Run 'kdbcache <command> --help' for command details.")
}

// Run is the main entry point. Returns exit code.
func Run(out, errOut io.Writer, args []string, env map[string]string, sig <-chan os.Signal) int {
	o := NewIO(out, errOut)

	if len(args) < 2 {
		printUsage(o)

		return 0
	}

	flags, err := parseGlobalFlags(args[1:])
	if err != nil {
		o.ErrPrintln("error:", err)

		return 1
	}

	workDir := flags.workDir
	if workDir == "" {
		workDir, err = os.Getwd()
		if err != nil {
			o.ErrPrintln("error: cannot get working directory:", err)

			return 1
		}
	}

	overrides := Config{SocketPath: flags.socketPath}

	cfg, sources, err := LoadConfig(workDir, flags.configPath, overrides, env)
	if err != nil {
		o.ErrPrintln("error:", err)

		return 1
	}

	if len(flags.remaining) == 0 {
		printUsage(o)

		return 0
	}

	name := flags.remaining[0]
	if name == "-h" || name == "--help" {
		printUsage(o)

		return 0
	}

	cmdEnv := &Env{IO: o, Cfg: cfg, Sources: sources, Sig: sig}

	for _, c := range commands() {
		if c.Name() == name {
			return c.Run(cmdEnv, flags.remaining[1:])
		}
	}

	o.ErrPrintln("error: unknown command:", name)
	printUsage(o)

	return 1
}
