// Package main provides the MEW CLI entry point.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mewdb/mew/pkg/config"
	"github.com/mewdb/mew/pkg/journal"
	"github.com/mewdb/mew/pkg/query"
	"github.com/mewdb/mew/pkg/session"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "mew",
		Short: "MEW - Hypergraph Rewriting Kernel",
		Long: `MEW is a typed, higher-order hypergraph database: a declarative
ontology defines node types, hyperedges, constraints, and production
rules; clients observe the graph with MATCH/WALK/INSPECT and transform
it with SPAWN/KILL/LINK/UNLINK/SET inside transactions that hold every
constraint and reach a rule-quiescent fixed point at commit.`,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("MEW v%s (%s)\n", version, commit)
		},
	})

	runCmd := &cobra.Command{
		Use:   "run <ontology-file> [script-file]",
		Short: "Load an ontology and optionally execute a GQL script",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runRun,
	}
	addSessionFlags(runCmd)
	rootCmd.AddCommand(runCmd)

	replCmd := &cobra.Command{
		Use:   "repl [ontology-file]",
		Short: "Interactive GQL shell",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runRepl,
	}
	addSessionFlags(replCmd)
	rootCmd.AddCommand(replCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func addSessionFlags(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "YAML configuration file")
	cmd.Flags().String("data-dir", "", "Durable journal directory (default: in-memory only)")
}

func openSession(cmd *cobra.Command) (*session.Session, error) {
	cfg := config.LoadFromEnv()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		if err := cfg.LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	if dir, _ := cmd.Flags().GetString("data-dir"); dir != "" {
		cfg.Database.DataDir = dir
		cfg.Database.InMemory = false
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var jrnl journal.Journal = journal.NewNoopJournal()
	if !cfg.Database.InMemory {
		if err := os.MkdirAll(cfg.Database.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		bj, err := journal.OpenBadgerJournal(filepath.Join(cfg.Database.DataDir, "journal"))
		if err != nil {
			return nil, fmt.Errorf("opening journal: %w", err)
		}
		jrnl = bj
	}
	return session.New(cfg, jrnl), nil
}

func runRun(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()
	ctx := context.Background()

	ontology, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading ontology: %w", err)
	}
	if err := s.LoadOntologySource(ctx, string(ontology)); err != nil {
		return err
	}
	fmt.Printf("Loaded ontology %s\n", args[0])

	if len(args) == 2 {
		script, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("reading script: %w", err)
		}
		responses, err := s.ExecuteScript(ctx, string(script))
		for _, resp := range responses {
			printResponse(resp)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func runRepl(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()
	ctx := context.Background()

	if len(args) == 1 {
		ontology, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading ontology: %w", err)
		}
		if err := s.LoadOntologySource(ctx, string(ontology)); err != nil {
			return err
		}
		fmt.Printf("Loaded ontology %s\n", args[0])
	}

	fmt.Printf("MEW v%s - type a GQL statement, or 'exit' to quit\n", version)
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 1<<20), 1<<20)
	for {
		fmt.Print("mew> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}
		resp, err := s.Execute(ctx, line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		printResponse(resp)
	}
	return scanner.Err()
}

func printResponse(resp *session.Response) {
	switch resp.Kind {
	case session.ResponseQuery:
		printResult(resp.Query)
	case session.ResponseMutation:
		m := resp.Mutation
		fmt.Printf("ok: +%dn ~%dn -%dn +%de -%de\n",
			m.NodesCreated, m.NodesModified, m.NodesDeleted, m.EdgesCreated, m.EdgesDeleted)
		if m.Returning != nil {
			printResult(m.Returning)
		}
	case session.ResponseInspect:
		i := resp.Inspect
		if !i.Found {
			fmt.Println("{found: false}")
			return
		}
		fmt.Printf("{found: true, type: %s}\n", i.Type)
		for k, v := range i.Data {
			fmt.Printf("  %s = %s\n", k, v)
		}
		if len(i.Targets) > 0 {
			parts := make([]string, len(i.Targets))
			for n, t := range i.Targets {
				parts[n] = t.String()
			}
			fmt.Printf("  targets = [%s]\n", strings.Join(parts, ", "))
		}
	case session.ResponsePlan:
		fmt.Print(resp.Plan.String())
		if resp.Query != nil {
			printResult(resp.Query)
		}
	default:
		if resp.Message != "" {
			fmt.Println(resp.Message)
		}
	}
	for _, w := range resp.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}
}

func printResult(res *query.Result) {
	if res == nil {
		return
	}
	fmt.Println(strings.Join(res.Columns, " | "))
	for _, row := range res.Rows {
		parts := make([]string, len(row))
		for i, v := range row {
			parts[i] = v.String()
		}
		fmt.Println(strings.Join(parts, " | "))
	}
	fmt.Printf("(%d rows, %s)\n", len(res.Rows), res.Stats.ExecutionTime)
}
