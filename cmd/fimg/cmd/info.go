package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/flashimg/fimg/spiflash"
	"github.com/flashimg/fimg/tasks"
)

func init() {
	rootCmd.AddCommand(infoCmd)
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Print chip identification and status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dev, bus, err := openFlash()
		if err != nil {
			return err
		}
		defer bus.Close()

		id := dev.JEDEC()
		fmt.Printf("Manufacturer ID: 0x%02x\n", id.Manufacturer)
		if id.MemoryType == 0x00 || id.MemoryType == 0xFF {
			fmt.Println("Memory Type:     unknown / internal flash")
		} else {
			fmt.Printf("Memory Type:     0x%02x\n", id.MemoryType)
		}
		fmt.Printf("Capacity Code:   0x%02x\n", id.Capacity)

		capacity := spiflash.Capacity(id.Capacity)
		if capacity == 0 {
			capacity = tasks.FallbackCapacity
			fmt.Printf("Capacity:        %s (fallback, code out of table range)\n",
				humanize.IBytes(uint64(capacity)))
		} else {
			fmt.Printf("Capacity:        %s\n", humanize.IBytes(uint64(capacity)))
		}

		sr1, err := bus.ReadStatus(1)
		if err != nil {
			return err
		}
		sr2, err := bus.ReadStatus(2)
		if err != nil {
			return err
		}
		fmt.Printf("Status:          SR1=0x%02x SR2=0x%02x\n", sr1, sr2)
		if spiflash.StatusRegister(sr1).BlockProtected() {
			fmt.Println("                 block protection is active")
		}
		return nil
	},
}
