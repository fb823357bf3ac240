// Package main implements a mock coding agent speaking the stream-json
// contract drover's runner consumes. It runs one shot: read the prompt from
// the flags, write a scripted or built-in event sequence to stdout, exit.
// A prompt containing "fail" produces a failing run for end-to-end tests.
package main

import (
	"flag"
	"fmt"
	"os"
)

// sessionID is unique per process; each task run spawns a fresh process.
var sessionID = fmt.Sprintf("mock-session-%d", os.Getpid())

func main() {
	var (
		prompt       = flag.String("p", "", "task prompt")
		outputFormat = flag.String("output-format", "stream-json", "output format")
		worktree     = flag.String("worktree", "", "isolated workspace name")
		script       = flag.String("script", "", "YAML script of records to emit instead of the built-in scenario")
	)
	flag.Bool("dangerously-skip-permissions", false, "accepted for contract compatibility, ignored")
	flag.Bool("verbose", false, "accepted for contract compatibility, ignored")
	flag.Parse()

	if *prompt == "" {
		fmt.Fprintln(os.Stderr, "mock-agent: -p <prompt> is required")
		os.Exit(2)
	}

	if *outputFormat != "stream-json" {
		// Plain mode mimics an agent CLI run without --output-format.
		fmt.Println("Task completed successfully.")
		return
	}

	if *script != "" {
		s, err := loadScript(*script)
		if err != nil {
			fmt.Fprintf(os.Stderr, "mock-agent: %v\n", err)
			os.Exit(1)
		}
		s.emit(os.Stdout)
		return
	}

	emitScenario(os.Stdout, *prompt, *worktree)
}
