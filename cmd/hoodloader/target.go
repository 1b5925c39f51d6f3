package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/ardnew/hoodloader/device/hal/fifo"
	"github.com/ardnew/hoodloader/host/programmer"
	"github.com/ardnew/hoodloader/nvm"
	"github.com/ardnew/hoodloader/pkg/usbid"
)

// targetFlags select how the host reaches the bootloader.
type targetFlags struct {
	port    string
	bus     string
	timeout time.Duration
	part    string
}

func (t *targetFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&t.port, "port", "p", "", "Serial port of the device")
	cmd.Flags().StringVar(&t.bus, "bus", "", "FIFO bus directory of a simulated device")
	cmd.Flags().DurationVar(&t.timeout, "timeout", 2*time.Second, "Response timeout")
	cmd.Flags().StringVar(&t.part, "part", "", "Expected part (checked against the signature)")
}

// open connects to the bootloader and returns a programmer and a closer.
func (t *targetFlags) open(ctx context.Context, opts ...programmer.Option) (*programmer.Programmer, io.Closer, error) {
	var (
		rw  io.ReadWriteCloser
		err error
	)
	switch {
	case t.port != "" && t.bus != "":
		return nil, nil, errors.New("--port and --bus are mutually exclusive")
	case t.port != "":
		rw, err = programmer.OpenSerial(t.port)
		if err != nil {
			return nil, nil, err
		}
		fmt.Printf("Port: %s @ %d baud\n", t.port, programmer.SentinelBaud)
	case t.bus != "":
		if rw, err = dialBus(ctx, t.bus); err != nil {
			return nil, nil, err
		}
	default:
		return nil, nil, errors.New("one of --port or --bus is required")
	}

	if t.part != "" {
		part, err := nvm.LookupPart(t.part)
		if err != nil {
			rw.Close()
			return nil, nil, err
		}
		opts = append(opts, programmer.WithSignature(part.Signature))
	}
	opts = append(opts, programmer.WithTimeout(t.timeout))
	return programmer.New(rw, opts...), rw, nil
}

func dialBus(ctx context.Context, bus string) (*fifo.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	dir, err := fifo.Find(ctx, bus)
	if err != nil {
		return nil, fmt.Errorf("no device on bus %s: %w", bus, err)
	}
	conn, err := fifo.Dial(ctx, dir)
	if err != nil {
		return nil, err
	}
	conn.SetReadTimeout(100 * time.Millisecond)
	if err := conn.Open(ctx, programmer.SentinelBaud); err != nil {
		conn.Close()
		return nil, fmt.Errorf("select programmer mode: %w", err)
	}
	d := conn.Device()
	fmt.Printf("Device: %s (%s) @ %d baud\n", dir,
		usbid.New().Describe(d.VendorID, d.ProductID), programmer.SentinelBaud)
	return conn, nil
}

// progressView renders programmer progress as one bar per phase.
type progressView struct {
	bar   *progressbar.ProgressBar
	phase string
}

func (v *progressView) update(p programmer.Progress) {
	if p.Phase == programmer.PhaseComplete {
		v.finish()
		return
	}
	if p.Total == 0 {
		if p.Phase != v.phase {
			v.finish()
			v.phase = p.Phase
			fmt.Fprintf(os.Stderr, "%s...\n", p.Phase)
		}
		return
	}
	if p.Phase != v.phase || v.bar == nil {
		v.finish()
		v.phase = p.Phase
		v.bar = progressbar.NewOptions(p.Total,
			progressbar.OptionSetDescription(p.Phase),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		)
	}
	v.bar.Set(p.Done)
}

func (v *progressView) finish() {
	if v.bar != nil {
		v.bar.Finish()
		v.bar = nil
	}
}
