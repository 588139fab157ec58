package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/peterh/liner"
	"golang.org/x/term"

	"github.com/sbl8/arraycore/compiler"
	"github.com/sbl8/arraycore/config"
	"github.com/sbl8/arraycore/model"
	"github.com/sbl8/arraycore/runtime"
)

const historyFile = ".arrsh_history"

func main() {
	var (
		typesPath  = flag.String("types", "", "Type declarations file")
		configPath = flag.String("config", "", "Heap options file (.toml or .yaml)")
		verbose    = flag.Bool("verbose", false, "Log heap events to stderr")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] [script]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	opts := runtime.DefaultOptions()
	if *configPath != "" {
		var err error
		if opts, err = config.Load(*configPath); err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	opts.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	h, err := runtime.NewHeap(opts)
	if err != nil {
		log.Fatalf("Failed to create heap: %v", err)
	}
	types := model.NewRegistry()
	if *typesPath != "" {
		if types, err = compiler.CompileFile(*typesPath); err != nil {
			log.Fatalf("Failed to load types: %v", err)
		}
	}
	sh := newShell(h, types, os.Stdout)

	switch {
	case flag.NArg() > 0:
		f, err := os.Open(flag.Arg(0))
		if err != nil {
			log.Fatalf("Failed to open script: %v", err)
		}
		status := runScript(sh, f, os.Stderr)
		f.Close()
		os.Exit(status)
	case term.IsTerminal(int(os.Stdin.Fd())):
		runInteractive(sh)
	default:
		os.Exit(runScript(sh, os.Stdin, os.Stderr))
	}
}

// runScript executes commands line by line. Errors are reported with their
// line number and do not stop the script; the exit status is 1 if any
// command failed.
func runScript(sh *shell, r io.Reader, errOut io.Writer) int {
	status := 0
	sc := bufio.NewScanner(r)
	for n := 1; sc.Scan(); n++ {
		err := sh.exec(sc.Text())
		if errors.Is(err, errQuit) {
			break
		}
		if err != nil {
			fmt.Fprintf(errOut, "line %d: %v\n", n, err)
			status = 1
		}
	}
	if err := sc.Err(); err != nil {
		fmt.Fprintf(errOut, "read: %v\n", err)
		return 1
	}
	return status
}

func runInteractive(sh *shell) {
	fmt.Println("arrsh - type help for commands")

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)
	ln.SetCompleter(func(line string) []string {
		var out []string
		for _, c := range []string{"new", "fromstr", "push", "get", "set", "unset", "grow", "del",
			"hint", "reshape", "str", "info", "dump", "pin", "unpin", "gc", "stats", "help", "quit"} {
			if strings.HasPrefix(c, line) {
				out = append(out, c)
			}
		}
		return out
	})

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigc)
	go func() {
		<-sigc
		ln.Close()
		os.Exit(130)
	}()

	for {
		line, err := ln.Prompt("arr> ")
		if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
			fmt.Println()
			return
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		ln.AppendHistory(line)
		err = sh.exec(line)
		if errors.Is(err, errQuit) {
			return
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
	}
}
