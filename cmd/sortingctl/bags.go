package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/BearBump/SortBox/internal/models"
	"github.com/spf13/cobra"
)

func bagsCmd(open envOpener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bags",
		Short: "Inspect bags and apply bulk edits",
	}
	cmd.AddCommand(bagsListCmd(open))
	cmd.AddCommand(bagsBulkExtraCmd(open))
	cmd.AddCommand(bagsBulkSourceCmd(open))
	return cmd
}

func bagsListCmd(open envOpener) *cobra.Command {
	var (
		status string
		socket string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent bags, newest first",
		RunE: run(open, func(cmd *cobra.Command, e *env, _ []string) error {
			f := models.BagFilter{Status: models.BagStatusFilter(status), Limit: limit}
			if socket != "" {
				so, err := resolveSocket(cmd.Context(), e, socket)
				if err != nil {
					return err
				}
				f.SocketID = so.ID
			}
			list, err := e.bags.List(cmd.Context(), f)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(e.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tBAG\tSOCKET\tTYPE\tWEIGHT\tSTATUS\tTIME")
			for _, b := range list {
				weight := "-"
				if b.WeightKg.Valid {
					weight = b.WeightKg.Decimal.StringFixed(2)
				}
				state := warnColor.Sprint("pending")
				if b.Processed {
					state = okColor.Sprint("processed")
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
					b.ID, b.BagID, b.SocketCode, b.BagTypeName, weight, state, b.ProcessingDuration())
			}
			return w.Flush()
		}),
	}
	cmd.Flags().StringVar(&status, "status", "", "processed or pending")
	cmd.Flags().StringVarP(&socket, "socket", "s", "", "socket id or code")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "max rows")
	return cmd
}

func bagsBulkExtraCmd(open envOpener) *cobra.Command {
	var extra bool
	cmd := &cobra.Command{
		Use:   "set-extra <id>...",
		Short: "Set or clear the extra flag on several bags",
		Args:  cobra.MinimumNArgs(1),
		RunE: run(open, func(cmd *cobra.Command, e *env, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			n, err := e.bags.BulkSetExtra(cmd.Context(), ids, extra)
			if err != nil {
				return err
			}
			printUpdated(e, n)
			return nil
		}),
	}
	cmd.Flags().BoolVar(&extra, "extra", true, "value of the flag, --extra=false clears it")
	return cmd
}

func bagsBulkSourceCmd(open envOpener) *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "set-source <id>...",
		Short: "Set the bag source on several bags, empty clears it",
		Args:  cobra.MinimumNArgs(1),
		RunE: run(open, func(cmd *cobra.Command, e *env, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			n, err := e.bags.BulkSetSource(cmd.Context(), ids, models.BagSource(strings.ToUpper(source)))
			if err != nil {
				return err
			}
			printUpdated(e, n)
			return nil
		}),
	}
	cmd.Flags().StringVar(&source, "source", "", "IN, OUT or empty")
	return cmd
}

func statsCmd(open envOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Dashboard counters",
		RunE: run(open, func(cmd *cobra.Command, e *env, _ []string) error {
			st, err := e.bags.Stats(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(e.out, "Active sockets: %d\n", st.ActiveSockets)
			fmt.Fprintf(e.out, "Bags:           %d (%s processed, %s pending)\n",
				st.TotalBags, okColor.Sprint(st.ProcessedBags), warnColor.Sprint(st.PendingBags))
			fmt.Fprintf(e.out, "Sorted bags:    %d\n", st.SortedBags)
			fmt.Fprintf(e.out, "Personnel:      %d\n", st.Personnel)
			return nil
		}),
	}
}
