package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/natefinch/atomic"
	flag "github.com/spf13/pflag"
	"github.com/tailscale/hujson"

	"github.com/kvmdb/kdbcache/internal/ctl"
	"github.com/kvmdb/kdbcache/pkg/pagecache"
)

// layoutFile is the on-disk preset format for `layout save` / `layout
// load`.
type layoutFile struct {
	CPSize uint64 `json:"cp_size"`
	LPSize uint64 `json:"lp_size"`
	Pages  uint64 `json:"pages"`
}

func cmdLayout() *Command {
	flags := flag.NewFlagSet("layout", flag.ContinueOnError)

	cpSize := flags.Uint64("cp-size", 0, "canonical page size in bytes (set)")
	lpSize := flags.Uint64("lp-size", 0, "logical page size in bytes (set)")
	pages := flags.Uint64("pages", 0, "number of logical pages (set)")

	cmd := &Command{
		Flags: flags,
		Usage: "layout <get|set|save|load> [flags] [file]",
		Short: "inspect or install the cache layout",
		Long: "Inspect or install the layout descriptor of a running cache.\n\n" +
			"  layout get               print the current descriptor\n" +
			"  layout set [flags]       install --cp-size/--lp-size/--pages\n" +
			"  layout save <file>       write the current descriptor to a preset file\n" +
			"  layout load <file>       install a descriptor from a preset file\n\n" +
			"Installing a layout is rejected while the cache is active.",
	}

	cmd.Exec = func(env *Env, args []string) error {
		if len(args) == 0 {
			return fmt.Errorf("layout requires a subcommand: get, set, save or load")
		}

		client, err := ctl.Dial(env.Cfg.SocketPath)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()

		switch sub := args[0]; sub {
		case "get":
			layout, err := client.GetLayout()
			if err != nil {
				return err
			}

			printLayout(env.IO, layout)

			return nil
		case "set":
			layout := pagecache.Layout{CPSize: *cpSize, LPSize: *lpSize, NLPN: *pages}

			if err := client.SetLayout(layout); err != nil {
				return err
			}

			env.IO.Printf("layout installed: %d pages x %d bytes\n", layout.NLPN, layout.LPSize)

			return nil
		case "save":
			if len(args) != 2 {
				return fmt.Errorf("layout save requires a file argument")
			}

			layout, err := client.GetLayout()
			if err != nil {
				return err
			}

			return saveLayoutFile(args[1], layout)
		case "load":
			if len(args) != 2 {
				return fmt.Errorf("layout load requires a file argument")
			}

			layout, err := loadLayoutFile(args[1])
			if err != nil {
				return err
			}

			if err := client.SetLayout(layout); err != nil {
				return err
			}

			env.IO.Printf("layout installed from %s\n", args[1])

			return nil
		default:
			return fmt.Errorf("unknown layout subcommand: %s", sub)
		}
	}

	return cmd
}

func printLayout(o *IO, l pagecache.Layout) {
	if l.IsZero() {
		o.Println("no layout configured")

		return
	}

	o.Printf("cp_size:   %d\n", l.CPSize)
	o.Printf("lp_size:   %d\n", l.LPSize)
	o.Printf("pages:     %d\n", l.NLPN)
	o.Printf("cp_per_lp: %d\n", l.CPPerLP())
	o.Printf("total:     %d bytes\n", l.TotalBytes())
}

// saveLayoutFile writes a preset atomically so a crash mid-write never
// leaves a truncated file behind.
func saveLayoutFile(path string, l pagecache.Layout) error {
	data, err := json.MarshalIndent(layoutFile{CPSize: l.CPSize, LPSize: l.LPSize, Pages: l.NLPN}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode layout preset: %w", err)
	}

	data = append(data, '\n')

	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write layout preset %s: %w", path, err)
	}

	return nil
}

// loadLayoutFile reads a preset. HuJSON, so presets may carry comments.
func loadLayoutFile(path string) (pagecache.Layout, error) {
	raw, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return pagecache.Layout{}, fmt.Errorf("read layout preset: %w", err)
	}

	standardized, err := hujson.Standardize(raw)
	if err != nil {
		return pagecache.Layout{}, fmt.Errorf("parse layout preset %s: %w", path, err)
	}

	var f layoutFile

	if err := json.Unmarshal(standardized, &f); err != nil {
		return pagecache.Layout{}, fmt.Errorf("parse layout preset %s: %w", path, err)
	}

	return pagecache.Layout{CPSize: f.CPSize, LPSize: f.LPSize, NLPN: f.Pages}, nil
}
