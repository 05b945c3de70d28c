package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/tuannm99/geovec/internal/engine"
)

const shellHelp = `commands:
  list                       list datasets
  info <dataset>             describe a dataset
  dump <dataset> [limit]     print features as GeoJSON
  bbox <dataset> minx,miny,maxx,maxy [limit]
  recover <dataset>          finish an interrupted commit
  help                       show this help
  quit | exit                leave the shell`

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive shell over the data directory",
	RunE: func(cmd *cobra.Command, _ []string) error {
		histPath, _ := cmd.Flags().GetString("history")
		rl, err := readline.NewEx(&readline.Config{
			Prompt:          "geovec> ",
			HistoryFile:     histPath,
			InterruptPrompt: "^C",
			EOFPrompt:       "exit",
		})
		if err != nil {
			return fmt.Errorf("readline: %w", err)
		}
		defer func() { _ = rl.Close() }()

		out := rl.Stdout()
		fmt.Fprintf(out, "data directory %s\n", app.cfg.Storage.DataDir)
		fmt.Fprintln(out, "type help for help")
		for {
			line, err := rl.Readline()
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			if err != nil {
				return nil
			}
			quit, err := runShellLine(cmd.Context(), out, line)
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
			}
			if quit {
				return nil
			}
		}
	},
}

// runShellLine executes one shell command.
func runShellLine(ctx context.Context, w io.Writer, line string) (quit bool, err error) {
	args := strings.Fields(line)
	if len(args) == 0 {
		return false, nil
	}
	need := func(n int) error {
		if len(args) < n+1 {
			return fmt.Errorf("%s needs %d argument(s)", args[0], n)
		}
		return nil
	}
	limit := func(i int) (int, error) {
		if len(args) <= i {
			return 0, nil
		}
		return strconv.Atoi(args[i])
	}

	switch args[0] {
	case "quit", "exit", `\q`:
		return true, nil
	case "help", `\help`:
		fmt.Fprintln(w, shellHelp)
	case "list":
		return false, listDatasets(w)
	case "info":
		if err := need(1); err != nil {
			return false, err
		}
		return false, describe(ctx, w, args[1])
	case "dump":
		if err := need(1); err != nil {
			return false, err
		}
		n, err := limit(2)
		if err != nil {
			return false, err
		}
		return false, dump(ctx, w, args[1], engine.Query{Limit: n})
	case "bbox":
		if err := need(2); err != nil {
			return false, err
		}
		env, err := parseBBox(args[2])
		if err != nil {
			return false, err
		}
		n, err := limit(3)
		if err != nil {
			return false, err
		}
		return false, dump(ctx, w, args[1], engine.Query{BBox: &env, Limit: n})
	case "recover":
		if err := need(1); err != nil {
			return false, err
		}
		rep, err := app.db.Recover(ctx, args[1])
		if err != nil {
			return false, err
		}
		if rep.Clean() {
			fmt.Fprintf(w, "%s: nothing to recover\n", args[1])
		} else {
			fmt.Fprintf(w, "%s: rolled forward %v, removed %d orphan(s)\n", args[1], rep.RolledForward, len(rep.Orphans))
		}
	default:
		return false, fmt.Errorf("unknown command %q", args[0])
	}
	return false, nil
}

func defaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".geovec_history"
	}
	return filepath.Join(home, ".geovec_history")
}

func init() {
	shellCmd.Flags().String("history", defaultHistoryPath(), "history file path")
	rootCmd.AddCommand(shellCmd)
}
