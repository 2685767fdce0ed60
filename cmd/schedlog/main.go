package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"schedlog/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := cli.NewRootCommand(nil).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", cli.Message(err))
	}
	os.Exit(cli.ExitCode(err))
}
