// sysfk: interpreter for a Brainfuck dialect with pointer indirection and
// direct system calls.
//
// Usage:
//
//	sysfk [flags] <program>
//	sysfk -store runs.db -history 10 [program]
//	sysfk -store runs.db -show 3
//	sysfk -config sysfk.toml <program>
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"runtime"
	"time"

	"github.com/fortiblox/sysfk/internal/types"
	"github.com/fortiblox/sysfk/pkg/executor"
	"github.com/fortiblox/sysfk/pkg/host"
	"github.com/fortiblox/sysfk/pkg/parser"
	"github.com/fortiblox/sysfk/pkg/runstore"
	"github.com/fortiblox/sysfk/pkg/vm"
)

// Version information
var (
	Version   = "0.1.0"
	GitCommit = "dev"
)

// Configuration flags
var (
	hostKind    = flag.String("host", defaultHost(), "Trap backend: native, emulated")
	maxSteps    = flag.Uint64("max-steps", 0, "Step limit (0 = unlimited)")
	maxArena    = flag.Int("max-arena", vm.DefaultMaxArena, "Maximum arena size in bytes")
	trace       = flag.Bool("trace", false, "Log every instruction and trap")
	formatOnly  = flag.Bool("fmt", false, "Print the program in canonical form and exit")
	showStats   = flag.Bool("stats", false, "Print program and run statistics")
	storePath   = flag.String("store", "", "Record runs in this store (bolt file or badger directory)")
	storeEngine = flag.String("store-engine", runstore.EngineBolt, "Run store engine: bolt, badger")
	history     = flag.Int("history", 0, "List the newest n recorded runs and exit")
	showRun     = flag.Uint64("show", 0, "Print a recorded run and exit")
	configPath  = flag.String("config", "", "Read flag defaults from this TOML file")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func defaultHost() string {
	if runtime.GOOS == "linux" && runtime.GOARCH == "amd64" {
		return host.KindNative
	}
	return host.KindEmulated
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <program>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Printf("sysfk %s (%s)\n", Version, GitCommit)
		os.Exit(0)
	}

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	if *configPath != "" {
		fc, err := loadConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		fc.apply(givenFlags(flag.CommandLine))
	}

	if *history > 0 || *showRun > 0 {
		if err := inspect(os.Stdout, flag.Arg(0)); err != nil {
			log.Fatalf("Failed to read run store: %v", err)
		}
		return
	}

	path := flag.Arg(0)
	if path == "" {
		flag.Usage()
		log.Fatal("No program path given")
	}

	src, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("Failed to read program: %v", err)
	}

	if *formatOnly {
		fmt.Println(parser.Format(parser.Parse(string(src))))
		return
	}

	code, err := run(os.Stdout, path, src)
	if err != nil {
		log.Fatalf("Run failed: %v", err)
	}
	os.Exit(code)
}

func openStore() (runstore.Store, error) {
	if *storePath == "" {
		return nil, errors.New("no store given, use -store")
	}
	config := runstore.DefaultConfig(*storePath)
	config.Engine = *storeEngine
	return runstore.Open(config)
}

// run executes the program and returns the process exit code.
func run(w io.Writer, path string, src []byte) (int, error) {
	config := executor.DefaultConfig()
	config.Host = *hostKind
	config.MaxSteps = *maxSteps
	config.MaxArena = *maxArena
	config.Trace = *trace

	if *storePath != "" {
		store, err := openStore()
		if err != nil {
			return 0, err
		}
		defer store.Close()
		config.Store = store
	}

	fmt.Fprintf(w, "Executing program at %s\n", path)
	fmt.Fprintln(w, "Begin")

	result, err := executor.New(config).ExecuteNamed(path, src)
	if result == nil {
		return 0, err
	}
	if err != nil {
		log.Printf("Warning: %v", err)
	}

	fmt.Fprintln(w, "Finished")
	if err := writeDump(w, result.Registers, result.Arena); err != nil {
		return 0, err
	}
	if *showStats {
		writeStats(w, result)
	}
	if result.RunID != 0 {
		log.Printf("Recorded run %d", result.RunID)
	}

	switch result.Status {
	case vm.StatusFaulted:
		log.Printf("Program faulted: %v", result.Err)
		return 1, nil
	case vm.StatusExited:
		return int(result.ExitCode & 0xff), nil
	default:
		return 0, nil
	}
}

func writeDump(w io.Writer, regs vm.Registers, arena []byte) error {
	if _, err := io.WriteString(w, regs.String()); err != nil {
		return err
	}
	return vm.HexDump(w, arena)
}

func writeStats(w io.Writer, result *executor.ExecutionResult) {
	fmt.Fprintf(w, "program  %s\n", result.ProgramHash)
	fmt.Fprintf(w, "status   %s\n", result.Status)
	fmt.Fprintf(w, "instrs   %d (max loop depth %d)\n", result.Counts.Total, result.Counts.MaxDepth)
	for op := parser.OpLoop; op <= parser.OpReturn; op++ {
		if n := result.Counts.Of(op); n > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", op, n)
		}
	}
	fmt.Fprintf(w, "steps    %d\n", result.Stats.Steps)
	fmt.Fprintf(w, "traps    %d\n", result.Stats.Traps)
	fmt.Fprintf(w, "arena    %d bytes (%d grows, %d cursors rebased)\n",
		result.Stats.ArenaSize, result.Stats.Grows, result.Stats.Rebased)
	fmt.Fprintf(w, "digest   %s\n", result.ArenaDigest.Hex())
	fmt.Fprintf(w, "elapsed  %s\n", result.Duration)
}

// inspect serves -history and -show. With a program path, -history lists
// only runs of that program.
func inspect(w io.Writer, path string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if *showRun > 0 {
		r, err := store.Get(*showRun)
		if err != nil {
			return err
		}
		return writeRun(w, r)
	}

	var runs []*runstore.Run
	if path != "" {
		src, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		runs, err = store.ByProgram(types.ComputeHash(src), *history)
		if err != nil {
			return err
		}
	} else {
		runs, err = store.List(*history)
		if err != nil {
			return err
		}
	}
	writeHistory(w, runs, store.Count())
	return nil
}

func writeHistory(w io.Writer, runs []*runstore.Run, total uint64) {
	fmt.Fprintf(w, "%d of %d runs\n", len(runs), total)
	for _, r := range runs {
		fmt.Fprintf(w, "%6d  %s  %-9s  %10d steps  %s  %s\n",
			r.ID, r.ProgramHash.Short(), r.Status, r.Steps,
			r.StartedAt.Format(time.RFC3339), r.ProgramPath)
	}
}

func writeRun(w io.Writer, r *runstore.Run) error {
	fmt.Fprintf(w, "run      %d\n", r.ID)
	fmt.Fprintf(w, "program  %s %s\n", r.ProgramHash, r.ProgramPath)
	fmt.Fprintf(w, "host     %s\n", r.Host)
	fmt.Fprintf(w, "status   %s\n", r.Status)
	if r.Error != "" {
		fmt.Fprintf(w, "error    %s\n", r.Error)
	}
	fmt.Fprintf(w, "steps    %d\n", r.Steps)
	fmt.Fprintf(w, "traps    %d\n", r.Traps)
	fmt.Fprintf(w, "started  %s (%s)\n", r.StartedAt.Format(time.RFC3339Nano), r.Duration)
	fmt.Fprintf(w, "digest   %s\n", r.ArenaDigest.Hex())
	return writeDump(w, r.Registers, r.Arena)
}
