// skein CLI - runs a bytecode file on the process scheduler
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/skein/config"
	"github.com/chazu/skein/pkg/bytecode"
	"github.com/chazu/skein/vm"
)

func main() {
	configPath := flag.String("config", "", "Configuration file (default: nearest skein.toml)")
	workers := flag.Int("workers", 0, "Number of process workers (overrides config)")
	tracers := flag.Int("tracers", 0, "Tracer threads per worker (overrides config)")
	verbose := flag.Bool("v", false, "Verbose output")
	disassemble := flag.Bool("dis", false, "Print the disassembly instead of running")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: skein [options] file.skbc\n\n")
		fmt.Fprintf(os.Stderr, "Runs the top-level code of a bytecode file and prints its result.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  skein main.skbc              # Run with the nearest skein.toml\n")
		fmt.Fprintf(os.Stderr, "  skein -workers 1 main.skbc   # Run on a single worker\n")
		fmt.Fprintf(os.Stderr, "  skein -dis main.skbc         # Show the instructions\n")
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}
	path := flag.Arg(0)

	if *disassemble {
		u, err := bytecode.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Print(u.Disassemble())
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *workers > 0 {
		cfg.Scheduler.ProcessWorkers = *workers
	}
	if *tracers > 0 {
		cfg.Scheduler.TracerThreads = *tracers
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid options: %v\n", err)
		os.Exit(1)
	}

	verbosity := cfg.Log.Verbosity
	if *verbose && verbosity < 2 {
		verbosity = 2
	}
	var logFile *string
	if cfg.Log.File != "" {
		logFile = &cfg.Log.File
	}
	commonlog.Configure(verbosity, logFile)

	if *verbose {
		if cfg.Path != "" {
			fmt.Printf("Loaded configuration from %s\n", cfg.Path)
		}
		fmt.Printf("Workers: %d, tracer threads: %d\n",
			cfg.Scheduler.ProcessWorkers, cfg.Scheduler.TracerThreads)
	}

	os.Exit(run(cfg, path))
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	return config.FindAndLoad(".")
}

// run executes path and returns the process exit status. An integer result
// becomes the exit status.
func run(cfg *config.Config, path string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	machine := vm.NewVM(cfg)
	if err := machine.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	result, err := machine.Run(ctx, path)
	if shutdownErr := machine.Shutdown(); shutdownErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", shutdownErr)
		return 2
	}

	var thrown *vm.ThrownError
	switch {
	case errors.As(err, &thrown):
		fmt.Fprintf(os.Stderr, "Uncaught: %v\n", thrown.Value)
		return 1
	case err != nil:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if n, ok := result.(int64); ok {
		return int(n)
	}
	if result != nil {
		fmt.Println(format(result))
	}
	return 0
}

// format prints exported values the way literals are written.
func format(v any) string {
	switch v := v.(type) {
	case string:
		return fmt.Sprintf("%q", v)
	case vm.ErrorObject:
		return "error(" + fmt.Sprintf("%q", v.Message) + ")"
	case []any:
		s := "["
		for i, item := range v {
			if i > 0 {
				s += ", "
			}
			s += format(item)
		}
		return s + "]"
	default:
		return fmt.Sprint(v)
	}
}
