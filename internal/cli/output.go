package cli

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"schedlog/internal/apperr"
	"schedlog/internal/identity"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Exit codes for the schedlog binary.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // store, identity or consistency failure
	ExitCommandError = 2 // bad input or flags
)

func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	if errors.Is(err, apperr.ErrValidation) {
		return ExitCommandError
	}
	return ExitFailure
}

// Message is the one line printed for a failed command.
func Message(err error) string {
	if errors.Is(err, apperr.ErrAuthProvider) {
		return identity.Describe(err)
	}
	if apperr.KindOf(err) != nil {
		return apperr.UserMessage(err)
	}
	return err.Error()
}

// printer writes command results in the selected format. Text output is
// produced by the caller's func.
type printer struct {
	format string
	w      io.Writer
}

func newPrinter(opts *RootOptions, cmd *cobra.Command) printer {
	return printer{format: opts.Format, w: cmd.OutOrStdout()}
}

func (p printer) print(v any, text func(w io.Writer)) error {
	switch p.format {
	case "json":
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(p.w)
		defer enc.Close()
		return enc.Encode(v)
	default:
		text(p.w)
		return nil
	}
}

// prompter reads answers line by line. Questions go to stderr so they never
// mix with json or yaml output.
type prompter struct {
	in  *bufio.Scanner
	out io.Writer
}

func newPrompter(cmd *cobra.Command) *prompter {
	return &prompter{in: bufio.NewScanner(cmd.InOrStdin()), out: cmd.ErrOrStderr()}
}

// ask returns the trimmed answer. io.ErrUnexpectedEOF means input ended.
func (p *prompter) ask(question string) (string, error) {
	fmt.Fprint(p.out, question)
	if !p.in.Scan() {
		if err := p.in.Err(); err != nil {
			return "", err
		}
		return "", io.ErrUnexpectedEOF
	}
	return strings.TrimSpace(p.in.Text()), nil
}

func (p *prompter) confirm(question string) (bool, error) {
	ans, err := p.ask(question + " [y/N] ")
	if err != nil {
		return false, err
	}
	return yes(ans), nil
}

func yes(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "y" || s == "yes"
}
