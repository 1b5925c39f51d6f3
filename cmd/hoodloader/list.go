package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ardnew/hoodloader/pkg"
	"github.com/ardnew/hoodloader/pkg/usbid"
	"github.com/ardnew/hoodloader/uart"
)

func runList(cmd *cobra.Command, args []string) error {
	ports, err := uart.DetailedPorts()
	if err != nil {
		return fmt.Errorf("failed to list ports: %w", err)
	}
	if len(ports) == 0 {
		fmt.Println("No serial ports found")
		return nil
	}

	ids := usbid.New()
	if err := ids.Load(); err != nil {
		pkg.LogDebug(pkg.ComponentCLI, "usb id database unavailable", "error", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PORT\tUSB DEVICE\tSERIAL")
	for _, p := range ports {
		fmt.Fprintf(w, "%s\t%s\t%s\n", p.Name, describePort(ids, p), p.Serial)
	}
	return w.Flush()
}

func describePort(ids *usbid.Database, p uart.PortInfo) string {
	if !p.USB {
		return "-"
	}
	s := ids.Describe(p.VID, p.PID)
	if p.Product != "" && ids.Product(p.VID, p.PID) == "" {
		s += " " + p.Product
	}
	return s
}
