package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"schedlog/internal/activity"
	"schedlog/internal/session"
	"schedlog/internal/store"

	"github.com/spf13/cobra"
)

type LogOptions struct {
	*RootOptions
	Tag string
}

func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "log",
		Short: "List the records in your schedule log",
		Long: `List the records in your schedule log, oldest first.

Records shared into your log by other sessions are included. Use --tag to
keep only records whose title or notes carry a #hashtag.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := rootOpts.open(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Session.Refresh(ctx); err != nil {
				return err
			}
			recs := activity.FilterByTag(app.Session.Snapshot().View().Records, opts.Tag)
			return newPrinter(rootOpts, cmd).print(recs, func(w io.Writer) {
				printRecords(w, recs)
			})
		},
	}

	cmd.Flags().StringVar(&opts.Tag, "tag", "", "only records tagged #tag")
	return cmd
}

func NewWhoamiCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := rootOpts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			st := app.Session.Snapshot()
			return newPrinter(rootOpts, cmd).print(st.View(), func(w io.Writer) {
				if st.Phase != session.Authenticated {
					fmt.Fprintln(w, "Not signed in.")
					return
				}
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintf(tw, "email\t%s\n", st.Email)
				fmt.Fprintf(tw, "uid\t%s\n", st.UID)
				fmt.Fprintf(tw, "schedule\t%s\n", st.ScheduleID)
				fmt.Fprintf(tw, "dark mode\t%s\n", onOff(st.DarkMode))
				fmt.Fprintf(tw, "sharing\t%s\n", onOff(st.Sharing))
				fmt.Fprintf(tw, "records\t%d\n", len(st.Records))
				_ = tw.Flush()
			})
		},
	}
}

func printRecords(w io.Writer, recs []store.ActivityRecord) {
	if len(recs) == 0 {
		fmt.Fprintln(w, "No records yet.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tSTART\tEND\tTITLE\tAUTHOR")
	for _, r := range recs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
			r.SerialNum,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.EndedAt.Local().Format("15:04:05"),
			r.Title,
			r.AuthorEmail,
		)
	}
	_ = tw.Flush()
}
