package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ardnew/hoodloader/board"
	"github.com/ardnew/hoodloader/device"
	"github.com/ardnew/hoodloader/device/hal/enum"
	"github.com/ardnew/hoodloader/device/hal/fifo"
	"github.com/ardnew/hoodloader/nvm"
	"github.com/ardnew/hoodloader/pkg"
	"github.com/ardnew/hoodloader/uart"
)

type serveFlags struct {
	uart         string
	uartBaud     uint32
	loopback     bool
	part         string
	flashImage   string
	eepromImage  string
	resetPin     string
	resetActHigh bool
	txLED        string
	rxLED        string
	features     string
	sentinel     uint32
	ring         int
	usbSerial    string
}

func newServeCmd() *cobra.Command {
	var f serveFlags
	cmd := &cobra.Command{
		Use:   "serve <bus-dir>",
		Short: "Run the firmware on a FIFO bus",
		Long: `Run the dual-mode firmware as a device on a FIFO bus directory.

Bridged data goes to the serial device given by --uart, or to a virtual UART
when none is given. Flash and EEPROM are kept in memory and optionally loaded
from and saved to image files. After a programming session ends, the device
restarts as it would after a watchdog reset.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), args[0], &f)
		},
	}
	cmd.Flags().StringVar(&f.uart, "uart", "", "Serial device to bridge to (virtual UART if empty)")
	cmd.Flags().Uint32Var(&f.uartBaud, "uart-baud", 9600, "Initial UART baud rate")
	cmd.Flags().BoolVar(&f.loopback, "loopback", false, "Echo transmitted bytes on the virtual UART")
	cmd.Flags().StringVar(&f.part, "part", nvm.ATmega16U2.Name, "Target part")
	cmd.Flags().StringVar(&f.flashImage, "flash-image", "", "Flash image `file` loaded at start and saved after each session")
	cmd.Flags().StringVar(&f.eepromImage, "eeprom-image", "", "EEPROM image `file` loaded at start and saved after each session")
	cmd.Flags().StringVar(&f.resetPin, "reset-pin", "", "GPIO pin driving the target reset")
	cmd.Flags().BoolVar(&f.resetActHigh, "reset-active-high", false, "Reset pin is active high")
	cmd.Flags().StringVar(&f.txLED, "tx-led", "", "GPIO pin of the TX activity LED")
	cmd.Flags().StringVar(&f.rxLED, "rx-led", "", "GPIO pin of the RX activity LED")
	cmd.Flags().StringVar(&f.features, "features", "all", "Enabled command groups (e.g. all,-lock-write)")
	cmd.Flags().Uint32Var(&f.sentinel, "sentinel", device.DefaultSentinel, "Baud rate that selects programmer mode")
	cmd.Flags().IntVar(&f.ring, "ring", device.DefaultRingCapacity, "Bridge ring buffer capacity")
	cmd.Flags().StringVar(&f.usbSerial, "usb-serial", "", "USB serial number string reported during enumeration")
	return cmd
}

func runServe(ctx context.Context, busDir string, f *serveFlags) error {
	part, err := nvm.LookupPart(f.part)
	if err != nil {
		return err
	}
	features, err := device.ParseFeatures(f.features)
	if err != nil {
		return err
	}

	mem := nvm.NewMemory(part)
	if err := nvm.LoadFile(mem, nvm.RegionFlash, f.flashImage); err != nil {
		return err
	}
	if err := nvm.LoadFile(mem, nvm.RegionEEPROM, f.eepromImage); err != nil {
		return err
	}

	port, err := openUART(f)
	if err != nil {
		return err
	}
	defer port.Close()

	opts := []device.Option{
		device.WithFeatures(features),
		device.WithSentinel(f.sentinel),
		device.WithRingCapacity(f.ring),
	}
	boardOpts, err := boardOptions(f)
	if err != nil {
		return err
	}
	opts = append(opts, boardOpts...)

	fmt.Printf("Part: %s, features: %s\n", part, features)
	for {
		if err := serveSession(ctx, busDir, f.identity(), mem, port, opts); err != nil {
			if errors.Is(err, context.Canceled) {
				return saveImages(mem, f)
			}
			return err
		}
		if err := saveImages(mem, f); err != nil {
			return err
		}
		fmt.Println("Device restarted")
	}
}

func (f *serveFlags) identity() enum.Identity {
	id := enum.DefaultIdentity
	id.Serial = f.usbSerial
	return id
}

// serveSession runs the firmware until a programming session ends and the
// exit watchdog resets the device.
func serveSession(ctx context.Context, busDir string, id enum.Identity, mem *nvm.Memory, port uart.Port, opts []device.Option) error {
	tr := fifo.New(busDir, fifo.WithIdentity(id))
	if err := tr.Start(ctx); err != nil {
		return err
	}
	defer tr.Close()
	fmt.Printf("Device attached at %s\n", tr.DeviceDir())

	wd := board.NewExitWatchdog(func() {
		pkg.LogInfo(pkg.ComponentCLI, "watchdog reset")
	})
	defer wd.Stop()

	fw := device.New(tr, mem, port, append(opts, device.WithWatchdog(wd))...)
	if err := fw.Run(ctx); err != nil {
		return err
	}

	select {
	case <-wd.Fired():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func openUART(f *serveFlags) (uart.Port, error) {
	if f.uart == "" {
		var opts []uart.VirtualOption
		if f.loopback {
			opts = append(opts, uart.WithLoopback())
		}
		return uart.NewVirtual(opts...), nil
	}
	s, err := uart.Open(f.uart, uart.Config{Baud: f.uartBaud, DataBits: 8})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func boardOptions(f *serveFlags) ([]device.Option, error) {
	if f.resetPin == "" && f.txLED == "" && f.rxLED == "" {
		return nil, nil
	}
	if err := board.Init(); err != nil {
		return nil, err
	}

	var opts []device.Option
	if f.resetPin != "" {
		r, err := board.NewGPIOReset(f.resetPin, !f.resetActHigh)
		if err != nil {
			return nil, err
		}
		opts = append(opts, device.WithReset(r))
	}

	var tx, rx board.LED = board.NopLED{}, board.NopLED{}
	for _, l := range []struct {
		name string
		led  *board.LED
	}{{f.txLED, &tx}, {f.rxLED, &rx}} {
		if l.name == "" {
			continue
		}
		led, err := board.NewGPIOLED(l.name, false)
		if err != nil {
			return nil, err
		}
		*l.led = led
	}
	return append(opts, device.WithLEDs(tx, rx, device.DefaultLEDPulseTicks)), nil
}

func saveImages(mem *nvm.Memory, f *serveFlags) error {
	if f.flashImage != "" {
		if err := nvm.SaveFile(mem, nvm.RegionFlash, f.flashImage); err != nil {
			return err
		}
	}
	if f.eepromImage != "" {
		if err := nvm.SaveFile(mem, nvm.RegionEEPROM, f.eepromImage); err != nil {
			return err
		}
	}
	return nil
}
