package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ardnew/hoodloader/host/ihex"
	"github.com/ardnew/hoodloader/host/programmer"
	"github.com/ardnew/hoodloader/nvm"
	"github.com/ardnew/hoodloader/pkg"
)

func newReadCmd() *cobra.Command {
	var (
		t      targetFlags
		eeprom bool
		size   int
		noExit bool
	)
	cmd := &cobra.Command{
		Use:   "read <output.hex|output.bin>",
		Short: "Dump flash or EEPROM to a file",
		Long: `Read flash (the application section by default) or EEPROM and write it
as Intel HEX when the file name ends in .hex, raw binary otherwise.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			view := &progressView{}
			p, closer, err := t.open(ctx, programmer.WithProgressCallback(view.update))
			if err != nil {
				return err
			}
			defer closer.Close()

			if err := p.Init(ctx); err != nil {
				return err
			}
			n := size
			if n == 0 {
				sig, err := p.Signature(ctx)
				if err != nil {
					return err
				}
				part, err := nvm.PartBySignature(sig)
				if err != nil {
					return fmt.Errorf("%w; pass --size", err)
				}
				n = int(part.BootStart)
				if eeprom {
					n = int(part.EEPROMSize)
				}
			}

			var data []byte
			if eeprom {
				data, err = p.ReadEEPROM(ctx, 0, n)
			} else {
				data, err = p.ReadFlash(ctx, 0, n)
			}
			if err != nil {
				return err
			}
			view.finish()

			if err := writeImage(args[0], data); err != nil {
				return err
			}
			fmt.Printf("Read %d bytes to %s\n", len(data), args[0])

			if noExit {
				return p.Leave(ctx)
			}
			return p.Exit(ctx)
		},
	}
	t.register(cmd)
	cmd.Flags().BoolVar(&eeprom, "eeprom", false, "Read EEPROM instead of flash")
	cmd.Flags().IntVar(&size, "size", 0, "Bytes to read (default: whole region of the detected part)")
	cmd.Flags().BoolVar(&noExit, "no-exit", false, "Stay in the bootloader afterwards")
	return cmd
}

func writeImage(path string, data []byte) error {
	if !strings.EqualFold(filepath.Ext(path), ".hex") {
		return os.WriteFile(path, data, 0o644)
	}
	var buf bytes.Buffer
	if err := ihex.Encode(&buf, trimErased(data)); err != nil {
		return fmt.Errorf("%w: %v", pkg.ErrBadImage, err)
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// trimErased drops trailing 0xFF bytes, which carry no information in a HEX
// file.
func trimErased(data []byte) []byte {
	for len(data) > 0 && data[len(data)-1] == 0xFF {
		data = data[:len(data)-1]
	}
	return data
}
