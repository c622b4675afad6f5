package cli

import (
	"fmt"
	"strings"

	"telegram-sync/internal/domain"
	"telegram-sync/internal/infra/pr"
	"telegram-sync/internal/sqlguard"
	"telegram-sync/internal/store"

	"github.com/spf13/cobra"
)

var sqlCmd = &cobra.Command{
	Use:   "sql [query]",
	Short: "Run a read-only query against the cache database",
	Long: `Runs SELECT/WITH/PRAGMA queries against cache.db. With no argument it
starts an interactive REPL (type 'tables' to list the schema registry, 'exit'
to quit); with an argument it runs one query and exits.`,
	RunE: runSQL,
}

func runSQL(cmd *cobra.Command, args []string) error {
	env, _, err := loadConfig()
	if err != nil {
		exitCode = domain.ExitError
		return err
	}

	dataDB, cacheDB, _, _ := dataPaths(env)
	s, err := store.New(dataDB, cacheDB)
	if err != nil {
		exitCode = domain.ExitError
		return fmt.Errorf("open store: %w", err)
	}
	defer s.Close()

	if len(args) > 0 {
		query := strings.Join(args, " ")
		if err := runOneQuery(s, query); err != nil {
			exitCode = domain.ExitCodeForKind(domain.KindOf(err))
			return err
		}
		return nil
	}

	return runSQLRepl(s)
}

func runOneQuery(s *store.Store, query string) error {
	result, err := sqlguard.Run(s, query)
	if err != nil {
		return err
	}
	printResult(result)
	return nil
}

// runSQLRepl drives an interactive readline loop over internal/infra/pr,
// adapted from the teacher's internal/adapters/cli.Service.run: read a line,
// dispatch it, repeat until EOF or 'exit'.
func runSQLRepl(s *store.Store) error {
	if err := pr.Init(); err != nil {
		return fmt.Errorf("init readline: %w", err)
	}
	defer func() {
		if rl := pr.Rl(); rl != nil {
			_ = rl.Close()
		}
	}()

	pr.SetPrompt("sql> ")
	pr.Println("Read-only SQL REPL against cache.db. Type 'tables' for the schema registry, 'exit' to quit.")

	for {
		line, err := pr.Rl().Readline()
		if err != nil {
			return nil
		}
		query := strings.TrimSpace(line)
		switch query {
		case "":
			continue
		case "exit", "quit":
			return nil
		case "tables":
			printRegistry()
			continue
		}

		if err := runOneQuery(s, query); err != nil {
			pr.ErrPrintln("error:", err)
		}
	}
}

func printResult(result *sqlguard.Result) {
	pr.Println(strings.Join(result.Columns, " | "))
	for _, row := range result.Rows {
		pr.PP(row)
	}
	pr.Printf("%d row(s)\n", len(result.Rows))
}

func printRegistry() {
	for _, t := range store.Registry {
		pr.Printf("%s — %s\n", t.Name, t.Description)
		for _, c := range t.Columns {
			pr.Printf("  %-20s %s\n", c.Name, c.Description)
		}
	}
}
