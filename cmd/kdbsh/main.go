// kdbsh is an interactive shell for exploring a page cache in-process.
//
// Usage:
//
//	kdbsh [opts]
//
// Options:
//
//	-c, --cp-size     Canonical page size in bytes (default: 4096)
//	-l, --lp-size     Logical page size in bytes (default: 65536)
//	-n, --pages       Number of logical pages (default: 256)
//	-m, --max-bytes   Backing memory budget, 0 = unbounded (default: 0)
//
// Commands (in REPL):
//
//	peek <offset> <len>        Read bytes and print a hex dump
//	poke <offset> <text>       Write text at offset
//	fill <offset> <len> <b>    Write len copies of byte b at offset
//	dirty <lpn>                Show dirty canonical pages of one page
//	stats                      Show a statistics snapshot
//	reset                      Zero the monotonic counters
//	layout <cp> <lp> <pages>   Replace the layout (cache must be idle)
//	info                       Show layout and pool state
//	help                       Show this help
//	exit / quit / q            Exit
package main

import (
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"github.com/kvmdb/kdbcache/pkg/pagecache"
)

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	fs := flag.NewFlagSet("kdbsh", flag.ExitOnError)

	cpSize := fs.Uint64("c", 4096, "canonical page size in bytes")
	fs.Uint64Var(cpSize, "cp-size", 4096, "canonical page size in bytes")

	lpSize := fs.Uint64("l", 65536, "logical page size in bytes")
	fs.Uint64Var(lpSize, "lp-size", 65536, "logical page size in bytes")

	pages := fs.Uint64("n", 256, "number of logical pages")
	fs.Uint64Var(pages, "pages", 256, "number of logical pages")

	maxBytes := fs.Uint64("m", 0, "backing memory budget, 0 = unbounded")
	fs.Uint64Var(maxBytes, "max-bytes", 0, "backing memory budget, 0 = unbounded")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return err
	}

	cache := pagecache.New(pagecache.Options{MaxBytes: *maxBytes})
	defer cache.Close()

	layout := pagecache.Layout{CPSize: *cpSize, LPSize: *lpSize, NLPN: *pages}
	if err := cache.SetLayout(layout); err != nil {
		return fmt.Errorf("installing layout: %w", err)
	}

	region, err := cache.Map()
	if err != nil {
		return fmt.Errorf("mapping region: %w", err)
	}
	defer region.Close()

	sh := &shell{cache: cache, region: region}

	return sh.run()
}

// shell is the interactive command loop.
type shell struct {
	cache  *pagecache.Cache
	region *pagecache.Region
	liner  *liner.State
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".kdbsh_history")
}

func (s *shell) run() error {
	s.liner = liner.NewLiner()
	defer s.liner.Close()

	s.liner.SetCtrlCAborts(true)
	s.liner.SetCompleter(s.completer)

	if f, err := os.Open(historyFile()); err == nil {
		s.liner.ReadHistory(f)
		f.Close()
	}

	l := s.region.Layout()
	fmt.Printf("kdbsh - page cache shell (cp_size=%d, lp_size=%d, pages=%d)\n", l.CPSize, l.LPSize, l.NLPN)
	fmt.Println("Type 'help' for available commands.")
	fmt.Println()

	for {
		line, err := s.liner.Prompt("kdbsh> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Println("\nBye!")

				break
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		s.liner.AppendHistory(line)

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "exit", "quit", "q":
			fmt.Println("Bye!")

			s.saveHistory()

			return nil

		case "help", "?":
			s.printHelp()

		case "peek", "read":
			s.cmdPeek(args)

		case "poke", "write":
			s.cmdPoke(args)

		case "fill":
			s.cmdFill(args)

		case "dirty":
			s.cmdDirty(args)

		case "stats":
			s.cmdStats()

		case "reset":
			s.cache.ResetStats()
			fmt.Println("counters reset")

		case "layout":
			s.cmdLayout(args)

		case "info":
			s.cmdInfo()

		case "clear", "cls":
			fmt.Print("\033[H\033[2J")

		default:
			fmt.Printf("Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}

	s.saveHistory()

	return nil
}

func (s *shell) saveHistory() {
	if path := historyFile(); path != "" {
		if f, err := os.Create(path); err == nil {
			s.liner.WriteHistory(f)
			f.Close()
		}
	}
}

func (s *shell) completer(line string) []string {
	commands := []string{
		"peek", "read", "poke", "write",
		"fill", "dirty", "stats", "reset",
		"layout", "info", "clear", "cls",
		"help", "exit", "quit", "q",
	}

	var completions []string

	lower := strings.ToLower(line)
	for _, cmd := range commands {
		if strings.HasPrefix(cmd, lower) {
			completions = append(completions, cmd)
		}
	}

	return completions
}

func (s *shell) printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  peek <offset> <len>        Read bytes and print a hex dump")
	fmt.Println("  poke <offset> <text>       Write text at offset")
	fmt.Println("  fill <offset> <len> <b>    Write len copies of byte b at offset")
	fmt.Println("  dirty <lpn>                Show dirty canonical pages of one page")
	fmt.Println("  stats                      Show a statistics snapshot")
	fmt.Println("  reset                      Zero the monotonic counters")
	fmt.Println("  layout <cp> <lp> <pages>   Replace the layout (cache must be idle)")
	fmt.Println("  info                       Show layout and pool state")
	fmt.Println("  help                       Show this help")
	fmt.Println("  exit / quit / q            Exit")
	fmt.Println()
}

func (s *shell) cmdPeek(args []string) {
	if len(args) != 2 {
		fmt.Println("Usage: peek <offset> <len>")

		return
	}

	off, err1 := strconv.ParseInt(args[0], 0, 64)
	n, err2 := strconv.ParseInt(args[1], 0, 32)

	if err1 != nil || err2 != nil || n <= 0 {
		fmt.Println("peek: offset and len must be non-negative integers")

		return
	}

	buf := make([]byte, n)

	read, err := s.region.ReadAt(buf, off)
	if err != nil && read == 0 {
		fmt.Printf("peek: %v\n", err)

		return
	}

	fmt.Print(hex.Dump(buf[:read]))

	if err != nil {
		fmt.Printf("(short read: %d of %d bytes, %v)\n", read, n, err)
	}
}

func (s *shell) cmdPoke(args []string) {
	if len(args) < 2 {
		fmt.Println("Usage: poke <offset> <text>")

		return
	}

	off, err := strconv.ParseInt(args[0], 0, 64)
	if err != nil {
		fmt.Println("poke: offset must be a non-negative integer")

		return
	}

	data := []byte(strings.Join(args[1:], " "))

	n, err := s.region.WriteAt(data, off)
	if err != nil {
		fmt.Printf("poke: wrote %d bytes: %v\n", n, err)

		return
	}

	fmt.Printf("wrote %d bytes at %d\n", n, off)
}

func (s *shell) cmdFill(args []string) {
	if len(args) != 3 {
		fmt.Println("Usage: fill <offset> <len> <byte>")

		return
	}

	off, err1 := strconv.ParseInt(args[0], 0, 64)
	n, err2 := strconv.ParseInt(args[1], 0, 32)
	b, err3 := strconv.ParseUint(args[2], 0, 8)

	if err1 != nil || err2 != nil || err3 != nil || n <= 0 {
		fmt.Println("fill: arguments must be non-negative integers")

		return
	}

	buf := make([]byte, n)
	for i := range buf {
		buf[i] = byte(b)
	}

	written, err := s.region.WriteAt(buf, off)
	if err != nil {
		fmt.Printf("fill: wrote %d bytes: %v\n", written, err)

		return
	}

	fmt.Printf("filled %d bytes at %d with 0x%02x\n", written, off, byte(b))
}

func (s *shell) cmdDirty(args []string) {
	if len(args) != 1 {
		fmt.Println("Usage: dirty <lpn>")

		return
	}

	lpn, err := strconv.ParseUint(args[0], 0, 64)
	if err != nil {
		fmt.Println("dirty: lpn must be a non-negative integer")

		return
	}

	cps, err := s.region.DirtyCPs(lpn)
	if err != nil {
		fmt.Printf("dirty: %v\n", err)

		return
	}

	if len(cps) == 0 {
		fmt.Printf("page %d has no dirty canonical pages\n", lpn)

		return
	}

	fmt.Printf("page %d dirty canonical pages: %v\n", lpn, cps)
}

func (s *shell) cmdStats() {
	snap := s.cache.Stats()

	fmt.Printf("total_faults:     %d\n", snap.TotalFaults)
	fmt.Printf("total_mkwrite:    %d\n", snap.TotalMkwrite)
	fmt.Printf("total_cp_alloc:   %d\n", snap.TotalCPAlloc)
	fmt.Printf("total_lp_created: %d\n", snap.TotalLPCreated)
	fmt.Printf("dirty_pages:      %d\n", snap.DirtyPages)
	fmt.Printf("allocated_cp:     %d\n", snap.AllocatedCP)
	fmt.Printf("allocated_lp:     %d\n", snap.AllocatedLP)
}

func (s *shell) cmdLayout(args []string) {
	if len(args) != 3 {
		fmt.Println("Usage: layout <cp-size> <lp-size> <pages>")

		return
	}

	cp, err1 := strconv.ParseUint(args[0], 0, 64)
	lp, err2 := strconv.ParseUint(args[1], 0, 64)
	n, err3 := strconv.ParseUint(args[2], 0, 64)

	if err1 != nil || err2 != nil || err3 != nil {
		fmt.Println("layout: arguments must be non-negative integers")

		return
	}

	// The open region pins the cache active, so drop it around the swap.
	if err := s.region.Close(); err != nil {
		fmt.Printf("layout: closing region: %v\n", err)

		return
	}

	layout := pagecache.Layout{CPSize: cp, LPSize: lp, NLPN: n}

	if err := s.cache.SetLayout(layout); err != nil {
		if errors.Is(err, pagecache.ErrInvalidArgument) {
			fmt.Printf("layout: invalid descriptor: %v\n", err)
		} else {
			fmt.Printf("layout: %v\n", err)
		}
	}

	region, err := s.cache.Map()
	if err != nil {
		fmt.Printf("layout: remapping: %v\n", err)

		return
	}

	s.region = region

	l := s.region.Layout()
	fmt.Printf("layout now: cp_size=%d lp_size=%d pages=%d\n", l.CPSize, l.LPSize, l.NLPN)
}

func (s *shell) cmdInfo() {
	l := s.region.Layout()

	fmt.Printf("cp_size:    %d bytes\n", l.CPSize)
	fmt.Printf("lp_size:    %d bytes\n", l.LPSize)
	fmt.Printf("pages:      %d\n", l.NLPN)
	fmt.Printf("cp_per_lp:  %d\n", l.CPPerLP())
	fmt.Printf("total:      %d bytes\n", l.TotalBytes())

	allocated, allocs, frees := s.cache.PoolStats()
	fmt.Printf("pool:       allocated=%d total_allocs=%d total_frees=%d\n", allocated, allocs, frees)
}
