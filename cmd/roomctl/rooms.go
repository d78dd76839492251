package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func roomsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rooms",
		Short: "Browse rooms",
	}
	cmd.AddCommand(roomsListCmd(opts))
	cmd.AddCommand(roomsShowCmd(opts))
	return cmd
}

func roomsListCmd(opts *options) *cobra.Command {
	var limit int
	var offset int64

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List rooms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := opts.apiClient()
			if err != nil {
				return err
			}
			rooms, meta, err := api.ListRooms(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}
			if opts.outputJSON {
				return opts.printJSON(rooms)
			}

			w := tabwriter.NewWriter(opts.stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tFLOOR\tCAPACITY\tFEATURES")
			for _, r := range rooms {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n", r.ID, r.Name, r.Floor, r.Capacity, strings.Join(r.Features, ","))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if meta != nil && int64(len(rooms))+meta.Offset < meta.TotalCount {
				fmt.Fprintf(opts.stdout, "(%d of %d, use --offset for more)\n", len(rooms), meta.TotalCount)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum rooms to list")
	cmd.Flags().Int64Var(&offset, "offset", 0, "Rooms to skip")
	return cmd
}

func roomsShowCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "show <room-id>",
		Short: "Show one room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := opts.apiClient()
			if err != nil {
				return err
			}
			room, err := api.GetRoom(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if opts.outputJSON {
				return opts.printJSON(room)
			}
			fmt.Fprintf(opts.stdout, "%s  %s\n", room.ID, room.Name)
			fmt.Fprintf(opts.stdout, "  floor:    %d\n", room.Floor)
			fmt.Fprintf(opts.stdout, "  capacity: %d\n", room.Capacity)
			if len(room.Features) > 0 {
				fmt.Fprintf(opts.stdout, "  features: %s\n", strings.Join(room.Features, ", "))
			}
			return nil
		},
	}
}
