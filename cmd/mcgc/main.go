// Command mcgc is a small interactive/scripted driver for the mark-compact
// collector: it builds a fixture heap, runs a sequence of alloc/collect/stats
// commands read line by line from a script (or stdin), and reports
// before/after space statistics.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/google/shlex"
	"github.com/inhies/go-bytesize"

	"github.com/MaimaityMaitity/mcgc/config"
	"github.com/MaimaityMaitity/mcgc/gc"
	"github.com/MaimaityMaitity/mcgc/internal/heap"
	"github.com/MaimaityMaitity/mcgc/trace"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "mcgc:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("mcgc", flag.ExitOnError)
	configPath := fs.String("config", "", "optional YAML file of gc.Flags overrides")
	stackCap := fs.Int("stack-capacity", 256, "marking stack capacity, in entries")
	maxInline := fs.Int("max-inline-depth", 8, "max inline-recursion depth for long pointer ranges")
	scriptPath := fs.String("script", "", "path to a command script; defaults to stdin")

	flagsPtr := config.RegisterFlags(fs, gc.Flags{})
	if err := fs.Parse(args); err != nil {
		return err
	}
	base, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	// Layer the flags actually given on the command line over the file.
	layered := flag.NewFlagSet("mcgc", flag.ContinueOnError)
	flagsPtr = config.RegisterFlags(layered, base.ToFlags())
	var setErr error
	fs.Visit(func(f *flag.Flag) {
		if setErr == nil && layered.Lookup(f.Name) != nil {
			setErr = layered.Set(f.Name, f.Value.String())
		}
	})
	if setErr != nil {
		return setErr
	}

	h, err := heap.New(heap.DefaultConfig())
	if err != nil {
		return fmt.Errorf("building heap: %w", err)
	}
	defer h.Close()

	c := gc.NewCollector(h, *flagsPtr, *stackCap, *maxInline)
	var tracer gc.Tracer = gc.NopTracer{}
	if flagsPtr.Verbose {
		tracer = trace.NewStdout()
	}

	in := os.Stdin
	if *scriptPath != "" {
		f, err := os.Open(*scriptPath)
		if err != nil {
			return fmt.Errorf("opening script: %w", err)
		}
		defer f.Close()
		in = f
	}

	sess := &session{h: h, c: c, tracer: tracer, roots: map[string]heap.Address{}}
	return sess.runScript(in)
}

// session holds the small amount of state a scripted run accumulates:
// the bootstrap Maps needed to allocate each instance type, and a name ->
// root-slot table so script lines can refer back to earlier allocations.
type session struct {
	h      *heap.Heap
	c      *gc.Collector
	tracer gc.Tracer

	maps  map[heap.InstanceType]heap.Address
	roots map[string]heap.Address
}

func (s *session) mapFor(it heap.InstanceType, size int) (heap.Address, error) {
	if s.maps == nil {
		s.maps = map[heap.InstanceType]heap.Address{}
	}
	if addr, ok := s.maps[it]; ok {
		return addr, nil
	}
	addr, err := s.h.NewMap(s.h.MetaMap(), it, size)
	if err != nil {
		return heap.NullAddress, err
	}
	s.maps[it] = addr
	return addr, nil
}

func (s *session) runScript(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		// shlex splits the way a shell would, so a quoted root name
		// ("hello world") tokenizes as one argument.
		tokens, err := shlex.Split(line)
		if err != nil {
			return fmt.Errorf("line %d: tokenizing: %w", lineNo, err)
		}
		if len(tokens) == 0 || tokens[0][0] == '#' {
			continue
		}
		if err := s.dispatch(tokens); err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
	}
	return scanner.Err()
}

func (s *session) dispatch(tokens []string) error {
	switch tokens[0] {
	case "alloc":
		return s.cmdAlloc(tokens[1:])
	case "collect":
		return s.cmdCollect()
	case "stats":
		s.printStats()
		return nil
	default:
		return fmt.Errorf("unknown command %q", tokens[0])
	}
}

// cmdAlloc handles "alloc <space> <size> [name]": allocates a pointer-free
// byte string of the given size into the named space, optionally keeping it
// alive for the rest of the script via a strong root bound to name.
func (s *session) cmdAlloc(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("alloc requires <space> <size> [name]")
	}
	space, err := s.spaceByName(args[0])
	if err != nil {
		return err
	}
	size, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid size %q: %w", args[1], err)
	}
	mapAddr, err := s.mapFor(heap.SeqStringInstanceType, 0)
	if err != nil {
		return err
	}
	addr, err := s.h.NewSeqString(mapAddr, make([]byte, size), space)
	if err != nil {
		return err
	}
	if len(args) >= 3 {
		name := args[2]
		s.roots[name] = s.h.NewRoot(addr)
	}
	return nil
}

func (s *session) spaceByName(name string) (heap.Allocator, error) {
	switch name {
	case "new":
		return s.h.New, nil
	case "old":
		return s.h.Old, nil
	case "code":
		return s.h.Code, nil
	case "map":
		return s.h.MapSpace, nil
	case "lo":
		return s.h.LO, nil
	default:
		return nil, fmt.Errorf("unknown space %q", name)
	}
}

func (s *session) cmdCollect() error {
	stats, err := s.c.CollectGarbage(s.tracer)
	if err != nil {
		return fmt.Errorf("collecting: %w", err)
	}
	fmt.Printf("collect: compacting=%v frag=%.1f%% marked=%d (%s) relocated=%d overflow-rescans=%d\n",
		stats.Compacting, stats.FragmentationPercent, stats.MarkedObjects,
		bytesize.New(float64(stats.MarkedBytes)), stats.ObjectsRelocated, stats.OverflowRescans)
	return nil
}

func (s *session) printStats() {
	for _, sp := range []*heap.PagedSpace{s.h.Old, s.h.Code, s.h.MapSpace} {
		fmt.Printf("%-12s size=%-10s waste=%-10s free=%s\n",
			sp.ID(),
			bytesize.New(float64(sp.Size())),
			bytesize.New(float64(sp.Waste())),
			bytesize.New(float64(sp.AvailableFree())))
	}
}
