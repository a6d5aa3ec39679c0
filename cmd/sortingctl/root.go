package main

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	errColor  = color.New(color.FgRed, color.Bold)
)

// newRootCmd builds the sortingctl command tree. open is called once per
// command run, so tests can swap the backing stores.
func newRootCmd(open envOpener) *cobra.Command {
	root := &cobra.Command{
		Use:   "sortingctl",
		Short: "Admin tool for the bag sorting catalog",
		Long: `sortingctl talks to the sorting database directly.

It covers the admin actions that are risky or tedious over HTTP:
cascading socket deletes, bulk edits and reordering.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().String("config", "", "path to the yaml config (defaults to $configPath)")

	root.AddCommand(socketsCmd(open))
	root.AddCommand(bagTypesCmd(open))
	root.AddCommand(subtypesCmd(open))
	root.AddCommand(personsCmd(open))
	root.AddCommand(reorderCmd(open))
	root.AddCommand(bagsCmd(open))
	root.AddCommand(statsCmd(open))
	return root
}

// run opens the environment, calls fn and releases it.
func run(open envOpener, fn func(cmd *cobra.Command, e *env, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		e, err := open(cmd)
		if err != nil {
			return err
		}
		if e.close != nil {
			defer e.close()
		}
		return fn(cmd, e, args)
	}
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, a := range args {
		id, err := strconv.ParseInt(a, 10, 64)
		if err != nil || id <= 0 {
			return nil, errors.Errorf("invalid id %q", a)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func readLine(e *env) string {
	line, _ := bufio.NewReader(e.in).ReadString('\n')
	return strings.TrimSpace(line)
}

func yesNo(v bool) string {
	if v {
		return okColor.Sprint("yes")
	}
	return warnColor.Sprint("no")
}

func printUpdated(e *env, n int64) {
	fmt.Fprintf(e.out, "%s %d updated\n", okColor.Sprint("OK"), n)
}
