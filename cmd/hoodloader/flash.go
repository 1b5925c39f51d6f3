package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ardnew/hoodloader/host/ihex"
	"github.com/ardnew/hoodloader/host/programmer"
	"github.com/ardnew/hoodloader/pkg/avr109"
)

func newFlashCmd() *cobra.Command {
	var (
		t      targetFlags
		eeprom bool
		verify bool
		erase  bool
		noExit bool
	)
	cmd := &cobra.Command{
		Use:   "flash <firmware.hex|firmware.bin>",
		Short: "Program flash or EEPROM",
		Long: `Program an Intel HEX or raw binary image through the AVR109 bootloader.

The flash image is written from address 0 in page-sized blocks, after a chip
erase, and read back for verification. With --eeprom the image is written
to EEPROM instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			image, err := loadImage(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Image: %s (%d bytes)\n", args[0], len(image))

			view := &progressView{}
			p, closer, err := t.open(ctx,
				programmer.WithProgressCallback(view.update),
				programmer.WithVerify(verify),
				programmer.WithErase(erase),
			)
			if err != nil {
				return err
			}
			defer closer.Close()

			if err := p.Init(ctx); err != nil {
				return err
			}
			if eeprom {
				if err := p.WriteEEPROM(ctx, 0, image); err != nil {
					return err
				}
				if verify {
					if err := p.Verify(ctx, avr109.MemoryEEPROM, 0, image); err != nil {
						return err
					}
				}
			} else if err := p.Program(ctx, image); err != nil {
				return err
			}
			view.finish()
			fmt.Println("Programming complete")

			if noExit {
				return p.Leave(ctx)
			}
			fmt.Println("Restarting device...")
			return p.Exit(ctx)
		},
	}
	t.register(cmd)
	cmd.Flags().BoolVar(&eeprom, "eeprom", false, "Write the image to EEPROM")
	cmd.Flags().BoolVar(&verify, "verify", true, "Verify after writing")
	cmd.Flags().BoolVar(&erase, "erase", true, "Erase the application section first")
	cmd.Flags().BoolVar(&noExit, "no-exit", false, "Stay in the bootloader afterwards")
	return cmd
}

// loadImage reads a HEX file, or a raw binary for any other extension.
func loadImage(path string) ([]byte, error) {
	if strings.EqualFold(filepath.Ext(path), ".hex") {
		img, err := ihex.Parse(path)
		if err != nil {
			return nil, err
		}
		return img.Bytes(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	return data, nil
}
