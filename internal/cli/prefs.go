package cli

import (
	"context"
	"fmt"
	"io"

	"schedlog/internal/apperr"
	"schedlog/internal/session"

	"github.com/spf13/cobra"
)

func NewPrefsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "Change account preferences",
	}
	cmd.AddCommand(newToggleCommand(rootOpts, "dark-mode", "Turn dark mode on or off", (*session.Manager).SetDarkMode))
	cmd.AddCommand(newToggleCommand(rootOpts, "sharing", "Turn schedule sharing on or off", (*session.Manager).SetSharing))
	return cmd
}

func newToggleCommand(rootOpts *RootOptions, name, short string, set func(*session.Manager, context.Context, bool) error) *cobra.Command {
	return &cobra.Command{
		Use:       name + " on|off",
		Short:     short,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseOnOff(args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			app, err := rootOpts.open(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := set(app.Session, ctx, v); err != nil {
				return err
			}
			return newPrinter(rootOpts, cmd).print(app.Session.Snapshot().View(), func(w io.Writer) {
				fmt.Fprintf(w, "%s %s\n", name, onOff(v))
			})
		},
	}
}

func parseOnOff(s string) (bool, error) {
	switch s {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	}
	return false, apperr.Validation("prefs", "expected on or off, got %q", s)
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
