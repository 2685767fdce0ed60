package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"schedlog/internal/activity"
	"schedlog/internal/apperr"
	"schedlog/internal/session"

	"github.com/spf13/cobra"
)

type TimerOptions struct {
	*RootOptions
	Hours   float64
	Minutes float64
	Seconds float64
	Tick    time.Duration
}

func NewTimerCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TimerOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "timer",
		Short: "Run a countdown and log the activity",
		Long: `Run a countdown and log the activity when it ends.

While the countdown runs, type s and Enter to stop early; you are asked
to confirm with y or n. When the countdown ends you are asked for a
title and notes, then whether to save the record.

Hours are clamped to 0-23, minutes and seconds to 0-59.

Example:
  schedlog timer --minutes 25`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("hours") && !cmd.Flags().Changed("minutes") && !cmd.Flags().Changed("seconds") {
				d := activity.DefaultDuration
				opts.Hours, opts.Minutes, opts.Seconds = float64(d.Hours), float64(d.Minutes), float64(d.Seconds)
			}
			return runTimer(opts, cmd)
		},
	}

	cmd.Flags().Float64Var(&opts.Hours, "hours", 0, "hours (0-23)")
	cmd.Flags().Float64Var(&opts.Minutes, "minutes", 0, "minutes (0-59)")
	cmd.Flags().Float64Var(&opts.Seconds, "seconds", 0, "seconds (0-59)")
	cmd.Flags().DurationVar(&opts.Tick, "tick", time.Second, "countdown tick interval")
	_ = cmd.Flags().MarkHidden("tick")

	return cmd
}

func runTimer(opts *TimerOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	app, err := opts.open(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	if st := app.Session.Snapshot(); st.Phase != session.Authenticated {
		return apperr.Consistency("timer", "sign in before starting a timer")
	}

	lg := activity.New(app.Session, app.Store, activity.WithLogger(app.Logger))
	d, err := lg.Configure(opts.Hours, opts.Minutes, opts.Seconds)
	if err != nil {
		return err
	}
	if err := lg.Start(); err != nil {
		return err
	}

	ui := cmd.ErrOrStderr()
	lines := readLines(cmd.InOrStdin())
	fmt.Fprintf(ui, "Timer running for %s. Type s and Enter to stop.\n", d)

	st, err := countdown(ctx, lg, opts.Tick, lines, ui)
	if err != nil {
		return err
	}
	if st.Reason == activity.Expired {
		fmt.Fprintln(ui, "Time is up.")
	}

	title, _ := nextLine(ctx, lines, ui, "Title ["+activity.DefaultTitle+"]: ")
	notes, _ := nextLine(ctx, lines, ui, "Notes: ")
	save, ok := nextLine(ctx, lines, ui, "Save this record? [y/N] ")
	if !ok || !yes(save) {
		if err := lg.Discard(); err != nil {
			return err
		}
		return newPrinter(opts.RootOptions, cmd).print(map[string]any{"saved": false}, func(w io.Writer) {
			fmt.Fprintln(w, "Discarded.")
		})
	}

	rec, err := lg.Commit(ctx, title, notes)
	if err != nil {
		return err
	}
	return newPrinter(opts.RootOptions, cmd).print(rec, func(w io.Writer) {
		fmt.Fprintf(w, "Saved #%d %s\n", rec.SerialNum, rec.Title)
	})
}

// countdown drives lg until it reaches Prompt, answering stop requests read
// from lines. Closed input leaves the countdown to expire.
func countdown(ctx context.Context, lg *activity.Log, tick time.Duration, lines <-chan string, ui io.Writer) (activity.Status, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	expired := make(chan activity.Status, 1)
	r := &activity.Runner{Log: lg, Interval: tick, OnPhase: func(st activity.Status) {
		if st.Phase == activity.Prompt {
			select {
			case expired <- st:
			default:
			}
		}
	}}
	go r.Run(runCtx)

	for {
		select {
		case <-ctx.Done():
			return activity.Status{}, ctx.Err()
		case st := <-expired:
			return st, nil
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			switch strings.ToLower(strings.TrimSpace(line)) {
			case "s":
				if lg.RequestStop() == nil {
					fmt.Fprintf(ui, "Stop the timer with %s left? [y/n] ", lg.Status().Remaining)
				}
			case "y", "yes":
				if lg.ConfirmStop() == nil {
					return lg.Status(), nil
				}
			case "n", "no":
				if lg.DeclineStop() == nil {
					fmt.Fprintln(ui, "Continuing.")
				}
			}
		}
	}
}

func readLines(r io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			ch <- sc.Text()
		}
	}()
	return ch
}

func nextLine(ctx context.Context, lines <-chan string, ui io.Writer, question string) (string, bool) {
	fmt.Fprint(ui, question)
	select {
	case <-ctx.Done():
		return "", false
	case s, ok := <-lines:
		return strings.TrimSpace(s), ok
	}
}
