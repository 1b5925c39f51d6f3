// Command hoodloader runs the dual-mode USB-CDC firmware on a simulated bus
// and programs it, or any AVR109 bootloader, from the host side.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ardnew/hoodloader/pkg"
	"github.com/ardnew/hoodloader/pkg/prof"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	logLevelFlag   string
	jsonFlag       bool
	cpuProfileFlag string

	stopProfile func() error
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := &cobra.Command{
		Use:   "hoodloader",
		Short: "USB-to-serial bridge with an AVR109 programmer mode",
		Long: `hoodloader runs a USB-CDC device that bridges its virtual serial port to a
UART and turns into an AVR109 programmer when the host opens the port at
57600 baud. The same tool programs such a device from the host side.`,
		SilenceUsage:       true,
		PersistentPreRunE:  setup,
		PersistentPostRunE: teardown,
	}
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "Log in JSON format")
	rootCmd.PersistentFlags().StringVar(&cpuProfileFlag, "cpuprofile", "", "Write a CPU profile to `file` (requires the profile build tag)")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version info",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("hoodloader %s\n", version)
			fmt.Printf("  commit: %s\n", commit)
			fmt.Printf("  built:  %s\n", date)
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available serial ports",
		RunE:  runList,
	}

	rootCmd.AddCommand(newServeCmd(), newFlashCmd(), newReadCmd(), newInfoCmd(), listCmd, versionCmd)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command, args []string) error {
	level, err := pkg.ParseLogLevel(logLevelFlag)
	if err != nil {
		return err
	}
	pkg.SetLogLevel(level)
	if jsonFlag {
		pkg.SetLogFormat(pkg.LogFormatJSON)
	}

	if cpuProfileFlag != "" {
		if !prof.Enabled() {
			pkg.LogWarn(pkg.ComponentCLI, "profiling not compiled in, rebuild with -tags profile")
			return nil
		}
		stopProfile, err = prof.Start(prof.Options{CPU: cpuProfileFlag})
		if err != nil {
			return err
		}
	}
	return nil
}

func teardown(cmd *cobra.Command, args []string) error {
	if stopProfile != nil {
		return stopProfile()
	}
	return nil
}
