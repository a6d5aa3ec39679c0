package main

import (
	"context"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/BearBump/SortBox/internal/models"
	"github.com/BearBump/SortBox/internal/services/catalog"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func socketsCmd(open envOpener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sockets",
		Short: "Inspect and delete sockets",
	}
	cmd.AddCommand(socketsListCmd(open))
	cmd.AddCommand(socketsImpactCmd(open))
	cmd.AddCommand(socketsDeleteCmd(open))
	return cmd
}

func socketsListCmd(open envOpener) *cobra.Command {
	var active bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sockets in display order",
		RunE: run(open, func(cmd *cobra.Command, e *env, _ []string) error {
			sockets, err := e.catalog.ListSockets(cmd.Context(), active)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(e.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCODE\tNAME\tORDER\tACTIVE\tSOURCE")
			for _, so := range sockets {
				fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%s\n",
					so.ID, so.SocketID, so.Name, so.Order, yesNo(so.IsActive), yesNo(so.SupportsSource))
			}
			return w.Flush()
		}),
	}
	cmd.Flags().BoolVarP(&active, "active", "a", false, "only active sockets")
	return cmd
}

func socketsImpactCmd(open envOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "impact <socket>",
		Short: "Show what deleting a socket would remove",
		Args:  cobra.ExactArgs(1),
		RunE: run(open, func(cmd *cobra.Command, e *env, args []string) error {
			so, err := resolveSocket(cmd.Context(), e, args[0])
			if err != nil {
				return err
			}
			im, err := e.catalog.SocketImpact(cmd.Context(), so.ID)
			if err != nil {
				return err
			}
			printImpact(e, so, im)
			return nil
		}),
	}
}

func socketsDeleteCmd(open envOpener) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <socket>",
		Short: "Delete a socket together with its bag types, bags and sorted bags",
		Long: `Delete a socket and everything that belongs to it.

The socket may be given by numeric id or by code. When the socket still
owns rows you have to type its code to confirm, or pass --yes.

Examples:
  sortingctl sockets delete S7
  sortingctl sockets delete 12 --yes`,
		Args: cobra.ExactArgs(1),
		RunE: run(open, func(cmd *cobra.Command, e *env, args []string) error {
			ctx := cmd.Context()
			so, err := resolveSocket(ctx, e, args[0])
			if err != nil {
				return err
			}

			im, err := e.catalog.DeleteSocket(ctx, so.ID, yes)
			if errors.Is(err, catalog.ErrConfirmationRequired) {
				printImpact(e, so, im)
				fmt.Fprintf(e.out, "Type the socket code (%s) to confirm: ", so.SocketID)
				if readLine(e) != so.SocketID {
					fmt.Fprintln(e.out, warnColor.Sprint("aborted"))
					return nil
				}
				im, err = e.catalog.DeleteSocket(ctx, so.ID, true)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(e.out, "%s socket %s deleted (%d bag types, %d bags, %d sorted bags)\n",
				okColor.Sprint("OK"), so.SocketID, im.BagTypes, im.Bags, im.SortedBags)
			return nil
		}),
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

// resolveSocket accepts either a numeric id or a socket code.
func resolveSocket(ctx context.Context, e *env, ref string) (*models.Socket, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return e.catalog.GetSocket(ctx, id)
	}
	return e.catalog.GetSocketByCode(ctx, ref)
}

func printImpact(e *env, so *models.Socket, im models.SocketImpact) {
	fmt.Fprintf(e.out, "Socket %s (%s)\n", so.SocketID, so.Name)
	if im.Empty() {
		fmt.Fprintf(e.out, "  %s nothing else will be removed\n", okColor.Sprint("OK"))
		return
	}
	fmt.Fprintf(e.out, "  %s this will also remove:\n", errColor.Sprint("WARNING"))
	fmt.Fprintf(e.out, "    bag types:   %d\n", im.BagTypes)
	fmt.Fprintf(e.out, "    subtypes:    %d\n", im.Subtypes)
	fmt.Fprintf(e.out, "    bags:        %d\n", im.Bags)
	fmt.Fprintf(e.out, "    sorted bags: %d\n", im.SortedBags)
}
