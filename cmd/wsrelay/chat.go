package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/muurk/wsrelay/internal/client"
	"github.com/muurk/wsrelay/internal/discovery"
	"github.com/muurk/wsrelay/internal/logging"
	"github.com/muurk/wsrelay/internal/ui"
)

var (
	chatURL     string
	scanTimeout time.Duration
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Join a relay from the terminal",
	Long: `Connect to a relay and chat.

Without --url the first relay advertised on the local network is used.
When stdin is not a terminal, each input line is sent as a message and
relay messages are printed as plain lines.`,
	Example: `  # Connect to a known relay
  wsrelay chat --url ws://localhost:9988/websocket

  # Find a relay via mDNS
  wsrelay chat

  # Send one message from a script
  echo "deploy finished" | wsrelay chat --url ws://relay.lan:9988/websocket`,
	RunE: runChat,
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "List relays advertised on the local network",
	Long: `Scan for relays using mDNS/DNS-SD discovery.

This command browses for _wsrelay._tcp services and lists the URL of each
relay found.`,
	RunE: runDiscover,
}

func init() {
	chatCmd.Flags().StringVar(&chatURL, "url", "", "Relay URL (skips discovery)")
	chatCmd.Flags().DurationVar(&scanTimeout, "timeout", discovery.DefaultScanTimeout, "Discovery timeout")
	discoverCmd.Flags().DurationVar(&scanTimeout, "timeout", discovery.DefaultScanTimeout, "Discovery timeout")
}

func runChat(cmd *cobra.Command, args []string) error {
	// Silent unless WSRELAY_LOG_LEVEL is set
	if err := logging.InitializeFromEnv(); err != nil {
		return err
	}
	defer logging.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	url := chatURL
	if url == "" {
		scanner := discovery.NewScanner()
		scanner.Timeout = scanTimeout
		relay, err := scanner.First(ctx)
		if err != nil {
			return fmt.Errorf("relay discovery failed (use --url to connect directly): %w", err)
		}
		url = relay.URL()
	}

	c, err := client.Dial(ctx, url)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	if ui.IsTerminal(os.Stdin) && ui.IsTerminal(os.Stdout) {
		return ui.RunChat(c, url)
	}

	err = ui.RunPlain(ctx, c, os.Stdin, os.Stdout)
	if errors.Is(err, context.Canceled) || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return nil
	}
	return err
}

func runDiscover(cmd *cobra.Command, args []string) error {
	if err := logging.InitializeFromEnv(); err != nil {
		return err
	}
	defer logging.Sync()

	printer := ui.NewPrinter(cmd.OutOrStdout())
	printer.PrintHeader("Relay Discovery", []ui.Param{
		{Key: "Service", Value: discovery.ServiceType},
		{Key: "Timeout", Value: scanTimeout.String()},
	})

	scanner := discovery.NewScanner()
	scanner.Timeout = scanTimeout
	relays, err := scanner.Scan(cmd.Context())
	if err != nil {
		printer.PrintError("Scan failed", err)
		return err
	}

	if len(relays) == 0 {
		printer.PrintError("No relays found", errors.New("check that the server runs with --advertise on this network"))
		return nil
	}

	details := make([]ui.Param, 0, len(relays))
	for _, r := range relays {
		details = append(details, ui.Param{Key: r.Instance, Value: r.URL()})
	}
	printer.PrintSuccess(fmt.Sprintf("Found %d relay(s)", len(relays)), details)
	return nil
}
