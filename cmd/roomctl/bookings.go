package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"roombook/pkg/client"
	"roombook/pkg/model"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

const displayLayout = "2006-01-02 15:04"

func bookingsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bookings",
		Short: "List bookings",
	}
	cmd.AddCommand(bookingsListCmd(opts))
	cmd.AddCommand(bookingsMineCmd(opts))
	return cmd
}

func bookingsListCmd(opts *options) *cobra.Command {
	var roomID, from, to string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a room's bookings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var window [2]time.Time
			for i, raw := range []string{from, to} {
				if raw == "" {
					continue
				}
				t, err := model.ParseBookingTime(raw, time.Local)
				if err != nil {
					return fmt.Errorf("invalid time %q: use 2006-01-02T15:04 or RFC 3339", raw)
				}
				window[i] = t
			}

			api, err := opts.apiClient()
			if err != nil {
				return err
			}
			bookings, err := api.ListRoomBookings(cmd.Context(), roomID, window[0], window[1])
			if err != nil {
				return err
			}
			return opts.printBookings(bookings)
		},
	}

	cmd.Flags().StringVar(&roomID, "room", "", "Room ID")
	cmd.Flags().StringVar(&from, "from", "", "Only bookings ending after this time")
	cmd.Flags().StringVar(&to, "to", "", "Only bookings starting before this time")
	_ = cmd.MarkFlagRequired("room")
	return cmd
}

func bookingsMineCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "mine",
		Short: "List your bookings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := opts.apiClient()
			if err != nil {
				return err
			}
			bookings, err := api.MyBookings(cmd.Context())
			if err != nil {
				return err
			}
			return opts.printBookings(bookings)
		},
	}
}

type bookingFlags struct {
	room, start, end, purpose, user string
}

func (f *bookingFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.room, "room", "", "Room ID")
	cmd.Flags().StringVar(&f.start, "start", "", "Start time, 2006-01-02T15:04 or RFC 3339")
	cmd.Flags().StringVar(&f.end, "end", "", "End time, 2006-01-02T15:04 or RFC 3339")
	cmd.Flags().StringVar(&f.purpose, "purpose", "", "What the room is for")
	cmd.Flags().StringVar(&f.user, "for", "", "Book on behalf of another user (admins only)")
}

func (f *bookingFlags) payload() *model.BookingPayload {
	return &model.BookingPayload{
		RoomID:    f.room,
		UserName:  f.user,
		StartTime: f.start,
		EndTime:   f.end,
		Purpose:   f.purpose,
	}
}

func bookCmd(opts *options) *cobra.Command {
	var flags bookingFlags

	cmd := &cobra.Command{
		Use:   "book",
		Short: "Book a room",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := opts.apiClient()
			if err != nil {
				return err
			}
			booking, err := api.CreateBooking(cmd.Context(), flags.payload(), uuid.NewString())
			if err != nil {
				return describe(err)
			}
			if opts.outputJSON {
				return opts.printJSON(booking)
			}
			fmt.Fprintf(opts.stdout, "Booked %s: room %s, %s to %s\n",
				booking.ID, booking.RoomID,
				booking.StartTime.Local().Format(displayLayout),
				booking.EndTime.Local().Format(displayLayout),
			)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func checkCmd(opts *options) *cobra.Command {
	var flags bookingFlags

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check whether a booking would be accepted, without saving it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := opts.apiClient()
			if err != nil {
				return err
			}
			result, err := api.CheckBooking(cmd.Context(), flags.payload())
			if err != nil {
				return describe(err)
			}
			if opts.outputJSON {
				return opts.printJSON(result)
			}
			if result.Accepted {
				fmt.Fprintln(opts.stdout, "OK: the booking would be accepted")
				return nil
			}
			fmt.Fprintf(opts.stdout, "Rejected: %s\n", result.Message)
			if r := result.Rejection; r != nil && r.BookingID != "" {
				fmt.Fprintf(opts.stdout, "  conflicts with booking %s\n", r.BookingID)
			}
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func cancelCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <booking-id>",
		Short: "Cancel a booking",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := opts.apiClient()
			if err != nil {
				return err
			}
			if err := api.CancelBooking(cmd.Context(), args[0]); err != nil {
				return describe(err)
			}
			fmt.Fprintf(opts.stdout, "Cancelled %s\n", args[0])
			return nil
		},
	}
}

func whoamiCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the authenticated user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := opts.apiClient()
			if err != nil {
				return err
			}
			me, err := api.Me(cmd.Context())
			if err != nil {
				return err
			}
			if opts.outputJSON {
				return opts.printJSON(me)
			}
			role := "user"
			if me.IsAdmin {
				role = "admin"
			}
			fmt.Fprintf(opts.stdout, "%s (%s)\n", me.Username, role)
			return nil
		},
	}
}

func (o *options) printBookings(bookings []model.Booking) error {
	if o.outputJSON {
		return o.printJSON(bookings)
	}
	if len(bookings) == 0 {
		fmt.Fprintln(o.stdout, "No bookings.")
		return nil
	}
	return writeBookingTable(o.stdout, bookings)
}

func writeBookingTable(out io.Writer, bookings []model.Booking) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tROOM\tUSER\tSTART\tEND\tPURPOSE")
	for _, b := range bookings {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			b.ID, b.RoomID, b.UserName,
			b.StartTime.Local().Format(displayLayout),
			b.EndTime.Local().Format(displayLayout),
			b.Purpose,
		)
	}
	return w.Flush()
}

// describe adds the conflicting booking or offending field to API rejections.
func describe(err error) error {
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	if id, ok := apiErr.Details["conflicting_booking_id"]; ok {
		return fmt.Errorf("%s (conflicts with booking %v)", apiErr.Message, id)
	}
	if field, ok := apiErr.Details["field"]; ok {
		return fmt.Errorf("%s (field %v)", apiErr.Message, field)
	}
	return err
}
