package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	completecmder "github.com/papercomputeco/solo/cmd/solo/complete"
	ledgercmder "github.com/papercomputeco/solo/cmd/solo/ledger"
	servecmder "github.com/papercomputeco/solo/cmd/solo/serve"
)

const soloLongDesc string = `solo serves one text-generation engine behind an
OpenAI-style HTTP API. Requests are admitted to the engine one at a time and
answered either as server-sent events or as a single JSON object.`

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "solo",
		Short:         "Single-engine completion server",
		Long:          soloLongDesc,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(completecmder.NewCompleteCmd())
	cmd.AddCommand(ledgercmder.NewLedgerCmd())

	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
