package cli

import (
	"errors"
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/kvmdb/kdbcache/internal/ctl"
	"github.com/kvmdb/kdbcache/pkg/pagecache"
)

func cmdServe() *Command {
	flags := flag.NewFlagSet("serve", flag.ContinueOnError)

	maxBytes := flags.Uint64("max-bytes", 0, "cap backing memory (0 = config value or unbounded)")
	cpSize := flags.Uint64("cp-size", 0, "preconfigure: canonical page size in bytes")
	lpSize := flags.Uint64("lp-size", 0, "preconfigure: logical page size in bytes")
	pages := flags.Uint64("pages", 0, "preconfigure: number of logical pages")

	cmd := &Command{
		Flags: flags,
		Usage: "serve [flags]",
		Short: "host a cache instance on the control socket",
		Long: "Host a cache instance and answer control requests on the socket.\n" +
			"Pass --cp-size/--lp-size/--pages to install a layout at startup;\n" +
			"otherwise a client configures it via 'kdbcache layout set'.",
	}

	cmd.Exec = func(env *Env, args []string) error {
		if len(args) != 0 {
			return fmt.Errorf("serve takes no positional arguments, got %q", args)
		}

		budget := env.Cfg.MaxBytes
		if *maxBytes != 0 {
			budget = *maxBytes
		}

		cache := pagecache.New(pagecache.Options{MaxBytes: budget})
		defer func() { _ = cache.Close() }()

		preconfigured := *cpSize != 0 || *lpSize != 0 || *pages != 0
		if preconfigured {
			layout := pagecache.Layout{CPSize: *cpSize, LPSize: *lpSize, NLPN: *pages}

			if err := cache.SetLayout(layout); err != nil {
				return fmt.Errorf("preconfigure layout: %w", err)
			}
		}

		// A stale socket from a crashed server would block the listener.
		if err := removeStaleSocket(env.Cfg.SocketPath); err != nil {
			return err
		}

		server, err := ctl.Serve(env.Cfg.SocketPath, cache)
		if err != nil {
			return err
		}

		env.IO.Printf("serving on %s (instance %s)\n", env.Cfg.SocketPath, server.ID())

		<-env.Sig

		env.IO.Println("shutting down")

		if err := server.Close(); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}

		// The listener unlinks the socket on close; clean up leftovers
		// if it could not.
		if err := os.Remove(env.Cfg.SocketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}

		return nil
	}

	return cmd
}

// removeStaleSocket deletes a leftover socket file that no server
// answers on. A live server keeps its socket; dialing distinguishes the
// two.
func removeStaleSocket(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return fmt.Errorf("stat socket %s: %w", path, err)
	}

	if info.Mode()&os.ModeSocket == 0 {
		return fmt.Errorf("%s exists and is not a socket", path)
	}

	client, err := ctl.Dial(path)
	if err == nil {
		_ = client.Close()

		return fmt.Errorf("a server is already listening on %s", path)
	}

	if removeErr := os.Remove(path); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
		return fmt.Errorf("remove stale socket %s: %w", path, removeErr)
	}

	return nil
}
