package cli

import (
	"fmt"
	"io"

	"schedlog/internal/identity"
	"schedlog/internal/session"

	"github.com/spf13/cobra"
)

type credentialOptions struct {
	*RootOptions
	Email    string
	Remember bool
}

func NewSignupCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &credentialOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and an empty schedule log",
		Long: `Create an account and an empty schedule log.

The password is read twice from standard input.

Example:
  schedlog signup --email a@x.com`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p := newPrompter(cmd)
			email, err := askIfEmpty(p, opts.Email, "Email: ")
			if err != nil {
				return err
			}
			password, err := p.ask("Password: ")
			if err != nil {
				return err
			}
			confirm, err := p.ask("Confirm password: ")
			if err != nil {
				return err
			}

			app, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Session.Signup(ctx, email, password, confirm); err != nil {
				return err
			}
			return printSignedIn(newPrinter(opts.RootOptions, cmd), app.Session.Snapshot())
		},
	}

	cmd.Flags().StringVar(&opts.Email, "email", "", "account email (prompted when empty)")
	return cmd
}

func NewLoginCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &credentialOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password",
		Long: `Sign in with email and password.

Without --remember the session ends with this process.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p := newPrompter(cmd)
			email, err := askIfEmpty(p, opts.Email, "Email: ")
			if err != nil {
				return err
			}
			password, err := p.ask("Password: ")
			if err != nil {
				return err
			}

			app, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Session.Login(ctx, email, password, opts.Remember); err != nil {
				return err
			}
			return printSignedIn(newPrinter(opts.RootOptions, cmd), app.Session.Snapshot())
		},
	}

	cmd.Flags().StringVar(&opts.Email, "email", "", "account email (prompted when empty)")
	cmd.Flags().BoolVar(&opts.Remember, "remember", false, "stay signed in across runs")
	return cmd
}

type federatedOptions struct {
	*RootOptions
	IDToken  string
	Remember bool
}

func NewFederatedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &federatedOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "federated",
		Short: "Sign in with an ID token from the federated provider",
		Long: `Sign in with an ID token from the federated provider.

The first sign-in for an identity creates its account and schedule log.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := opts.open(ctx, identity.WithFederation(identity.StaticIDToken(opts.IDToken)))
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Session.FederatedSignin(ctx, opts.Remember); err != nil {
				return err
			}
			return printSignedIn(newPrinter(opts.RootOptions, cmd), app.Session.Snapshot())
		},
	}

	cmd.Flags().StringVar(&opts.IDToken, "id-token", "", "ID token issued by the provider (required)")
	_ = cmd.MarkFlagRequired("id-token")
	cmd.Flags().BoolVar(&opts.Remember, "remember", false, "stay signed in across runs")
	return cmd
}

func NewLogoutCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := rootOpts.open(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Session.Logout(ctx); err != nil {
				return err
			}
			return newPrinter(rootOpts, cmd).print(app.Session.Snapshot().View(), func(w io.Writer) {
				fmt.Fprintln(w, "Signed out.")
			})
		},
	}
}

type deleteOptions struct {
	*RootOptions
	Yes bool
}

func NewDeleteAccountCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &deleteOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "delete-account",
		Short: "Delete the signed-in account and its schedule log",
		Long: `Delete the signed-in account, its schedule log and its credential.

You are asked to confirm twice unless --yes is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			if !opts.Yes {
				ok, err := confirmDelete(newPrompter(cmd), app.Session.Snapshot())
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.ErrOrStderr(), "Nothing deleted.")
					return nil
				}
			}

			if err := app.Session.DeleteAccount(ctx); err != nil {
				return err
			}
			return newPrinter(opts.RootOptions, cmd).print(app.Session.Snapshot().View(), func(w io.Writer) {
				fmt.Fprintln(w, "Account deleted.")
			})
		},
	}

	cmd.Flags().BoolVarP(&opts.Yes, "yes", "y", false, "skip both confirmations")
	return cmd
}

// confirmDelete needs two consecutive yes answers.
func confirmDelete(p *prompter, st session.State) (bool, error) {
	ok, err := p.confirm(fmt.Sprintf("Delete account %s and %d records?", st.Email, len(st.Records)))
	if err != nil || !ok {
		return false, err
	}
	return p.confirm("This cannot be undone. Really delete?")
}

func askIfEmpty(p *prompter, v, question string) (string, error) {
	if v != "" {
		return v, nil
	}
	return p.ask(question)
}

func printSignedIn(p printer, st session.State) error {
	return p.print(st.View(), func(w io.Writer) {
		email := st.Email
		if email == "" {
			email = st.UID
		}
		fmt.Fprintf(w, "Signed in as %s (schedule %s)\n", email, st.ScheduleID)
	})
}
