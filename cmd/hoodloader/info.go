package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newInfoCmd() *cobra.Command {
	var t targetFlags
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show bootloader info",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p, closer, err := t.open(ctx)
			if err != nil {
				return err
			}
			defer closer.Close()

			info, err := p.Info(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("  Identifier: %s\n", info.Identifier)
			fmt.Printf("  Version:    %s\n", info.Version)
			fmt.Printf("  Signature:  % X\n", info.Signature[:])
			if info.Part != nil {
				fmt.Printf("  Part:       %s (%d KiB flash, %d byte pages)\n",
					info.Part.Name, info.Part.FlashSize/1024, info.Part.PageSize)
			} else {
				fmt.Println("  Part:       unknown")
			}
			if info.BlockSize > 0 {
				fmt.Printf("  Block size: %d\n", info.BlockSize)
			} else {
				fmt.Println("  Block size: unsupported")
			}
			fmt.Printf("  Fuses:      low 0x%02X, high 0x%02X, ext 0x%02X, lock 0x%02X\n",
				info.Fuses.Low, info.Fuses.High, info.Fuses.Extended, info.Fuses.Lock)
			return p.Leave(ctx)
		},
	}
	t.register(cmd)
	return cmd
}
