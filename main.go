package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"resnet_lib/cmd"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cobra.CheckErr(cmd.NewCLI().ExecuteContext(ctx))
}
