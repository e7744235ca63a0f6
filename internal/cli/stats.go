package cli

import (
	"context"
	"fmt"

	flag "github.com/spf13/pflag"

	"github.com/kvmdb/kdbcache/internal/ctl"
	"github.com/kvmdb/kdbcache/internal/statlog"
	"github.com/kvmdb/kdbcache/pkg/pagecache"
)

func cmdStats() *Command {
	flags := flag.NewFlagSet("stats", flag.ContinueOnError)

	record := flags.String("record", "", "also persist the snapshot to the stats database under this label")
	history := flags.Int("history", 0, "print the last N recorded snapshots instead of querying the server")
	label := flags.String("label", "", "filter --history output by label")

	cmd := &Command{
		Flags: flags,
		Usage: "stats [flags]",
		Short: "print a statistics snapshot",
		Long: "Print a statistics snapshot from the running cache.\n" +
			"With --record <label> the snapshot is also appended to the local\n" +
			"stats database. With --history N the command prints recorded\n" +
			"snapshots instead of contacting the server.",
	}

	cmd.Exec = func(env *Env, args []string) error {
		if len(args) != 0 {
			return fmt.Errorf("stats takes no positional arguments, got %q", args)
		}

		if *history > 0 {
			return printHistory(env, *label, *history)
		}

		client, err := ctl.Dial(env.Cfg.SocketPath)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()

		snap, err := client.GetStats()
		if err != nil {
			return err
		}

		printSnapshot(env.IO, snap)

		if *record != "" {
			log, err := statlog.Open(context.Background(), env.Cfg.StatsDB)
			if err != nil {
				return err
			}
			defer func() { _ = log.Close() }()

			if err := log.Record(context.Background(), *record, snap); err != nil {
				return err
			}

			env.IO.Printf("recorded as %q in %s\n", *record, env.Cfg.StatsDB)
		}

		return nil
	}

	return cmd
}

func printSnapshot(o *IO, s pagecache.Snapshot) {
	o.Printf("total_faults:     %d\n", s.TotalFaults)
	o.Printf("total_mkwrite:    %d\n", s.TotalMkwrite)
	o.Printf("total_cp_alloc:   %d\n", s.TotalCPAlloc)
	o.Printf("total_lp_created: %d\n", s.TotalLPCreated)
	o.Printf("dirty_pages:      %d\n", s.DirtyPages)
	o.Printf("allocated_cp:     %d\n", s.AllocatedCP)
	o.Printf("allocated_lp:     %d\n", s.AllocatedLP)
	o.Printf("read_latency_us:  p50=%d p99=%d\n", s.P50ReadUS, s.P99ReadUS)
	o.Printf("write_latency_us: p50=%d p99=%d\n", s.P50WriteUS, s.P99WriteUS)
}

func printHistory(env *Env, label string, n int) error {
	log, err := statlog.Open(context.Background(), env.Cfg.StatsDB)
	if err != nil {
		return err
	}
	defer func() { _ = log.Close() }()

	entries, err := log.Recent(context.Background(), label, n)
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		env.IO.Println("no recorded snapshots")

		return nil
	}

	for _, e := range entries {
		env.IO.Printf("%s  %-16s faults=%d mkwrite=%d dirty=%d cp=%d lp=%d\n",
			e.TakenAt.Format("2006-01-02 15:04:05"), e.Label,
			e.Snap.TotalFaults, e.Snap.TotalMkwrite,
			e.Snap.DirtyPages, e.Snap.AllocatedCP, e.Snap.AllocatedLP)
	}

	return nil
}
