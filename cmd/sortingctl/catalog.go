package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/BearBump/SortBox/internal/models"
	"github.com/spf13/cobra"
)

func bagTypesCmd(open envOpener) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "bagtypes",
		Aliases: []string{"bag-types"},
		Short:   "Manage bag types",
	}
	cmd.AddCommand(bagTypesListCmd(open))
	cmd.AddCommand(bagTypesBulkSourceCmd(open))
	return cmd
}

func bagTypesListCmd(open envOpener) *cobra.Command {
	var (
		socket string
		source string
		active bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List bag types",
		RunE: run(open, func(cmd *cobra.Command, e *env, _ []string) error {
			f := models.BagTypeFilter{ActiveOnly: active}
			if socket != "" {
				so, err := resolveSocket(cmd.Context(), e, socket)
				if err != nil {
					return err
				}
				f.SocketID = so.ID
			}
			if source != "" {
				src, err := models.ParseBagSource(strings.ToUpper(source))
				if err != nil {
					return err
				}
				f.Source = src
			}
			types, err := e.catalog.ListBagTypes(cmd.Context(), f)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(e.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCODE\tNAME\tSOCKET\tSOURCE\tPARAMS\tORDER\tACTIVE")
			for _, t := range types {
				fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%s\t%d\t%s\n",
					t.ID, t.Code, t.Name, t.SocketID, t.Source,
					strings.Join(t.Parameters.Strings(), ","), t.Order, yesNo(t.IsActive))
			}
			return w.Flush()
		}),
	}
	cmd.Flags().StringVarP(&socket, "socket", "s", "", "socket id or code")
	cmd.Flags().StringVar(&source, "source", "", "IN or OUT")
	cmd.Flags().BoolVarP(&active, "active", "a", false, "only active bag types")
	return cmd
}

func bagTypesBulkSourceCmd(open envOpener) *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "set-source <id>...",
		Short: "Set the bag source on several bag types",
		Args:  cobra.MinimumNArgs(1),
		RunE: run(open, func(cmd *cobra.Command, e *env, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			src, err := models.ParseBagSource(strings.ToUpper(source))
			if err != nil {
				return err
			}
			n, err := e.catalog.BulkSetSource(cmd.Context(), ids, src)
			if err != nil {
				return err
			}
			printUpdated(e, n)
			return nil
		}),
	}
	cmd.Flags().StringVar(&source, "source", "", "IN or OUT")
	_ = cmd.MarkFlagRequired("source")
	return cmd
}

func subtypesCmd(open envOpener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subtypes",
		Short: "Manage bag subtypes",
	}
	cmd.AddCommand(subtypesListCmd(open))
	cmd.AddCommand(&cobra.Command{
		Use:   "clear-category <id>...",
		Short: "Detach subtypes from their category",
		Args:  cobra.MinimumNArgs(1),
		RunE: run(open, func(cmd *cobra.Command, e *env, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			n, err := e.catalog.BulkClearCategory(cmd.Context(), ids)
			if err != nil {
				return err
			}
			printUpdated(e, n)
			return nil
		}),
	})
	return cmd
}

func subtypesListCmd(open envOpener) *cobra.Command {
	var (
		bagType  int64
		category int64
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List bag subtypes",
		RunE: run(open, func(cmd *cobra.Command, e *env, _ []string) error {
			subs, err := e.catalog.ListSubtypes(cmd.Context(), models.SubtypeFilter{
				BagTypeID:  bagType,
				CategoryID: category,
			})
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(e.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCODE\tNAME\tBAG TYPE\tCATEGORY\tACTIVE")
			for _, st := range subs {
				cat := "-"
				if st.CategoryID != nil {
					cat = fmt.Sprint(*st.CategoryID)
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%s\n",
					st.ID, st.Code, st.Name, st.BagTypeID, cat, yesNo(st.IsActive))
			}
			return w.Flush()
		}),
	}
	cmd.Flags().Int64Var(&bagType, "bag-type", 0, "filter by bag type id")
	cmd.Flags().Int64Var(&category, "category", 0, "filter by category id")
	return cmd
}

func personsCmd(open envOpener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "persons",
		Short: "Sorting personnel",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List sorting personnel",
		RunE: run(open, func(cmd *cobra.Command, e *env, _ []string) error {
			persons, err := e.catalog.ListPersons(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(e.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tPERSON\tNAME\tBAGS SORTED")
			for _, p := range persons {
				fmt.Fprintf(w, "%d\t%s\t%s\t%d\n", p.ID, p.PersonID, p.Name, p.BagsSorted)
			}
			return w.Flush()
		}),
	})
	return cmd
}

func reorderCmd(open envOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "reorder <socket|bagtype|bagsubtype> <id>...",
		Short: "Rewrite display order, first id gets order 1",
		Long: `Rewrite the display order of sockets, bag types or subtypes.

Examples:
  sortingctl reorder socket 3 1 2
  sortingctl reorder bagtype 10 11 12`,
		Args: cobra.MinimumNArgs(2),
		RunE: run(open, func(cmd *cobra.Command, e *env, args []string) error {
			ids, err := parseIDs(args[1:])
			if err != nil {
				return err
			}
			if err := e.catalog.Reorder(cmd.Context(), models.OrderKind(args[0]), ids); err != nil {
				return err
			}
			fmt.Fprintf(e.out, "%s %d %s rows reordered\n", okColor.Sprint("OK"), len(ids), args[0])
			return nil
		}),
	}
}
