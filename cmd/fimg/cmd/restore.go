package cmd

import (
	"fmt"

	"github.com/apex/log"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/flashimg/fimg/tasks"
)

func init() {
	rootCmd.AddCommand(restoreCmd)
}

var restoreCmd = &cobra.Command{
	Use:   "restore [image]",
	Short: "Erase the chip and reprogram it from an image (newest when omitted)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := ""
		if len(args) > 0 {
			name = args[0]
		}

		dev, bus, err := openFlash()
		if err != nil {
			return err
		}
		defer bus.Close()

		log.Warn("the chip will be erased before programming")

		ui := newProgressUI()
		runner := tasks.New(dev, backupVolume(), tasks.WithProgress(ui.update))

		info, err := runner.Restore(name)
		ui.wait()
		if err != nil {
			return err
		}

		log.WithFields(log.Fields{
			"image": info.Name,
			"size":  humanize.Bytes(uint64(info.Size)),
			"crc32": fmt.Sprintf("0x%08x", info.CRC32),
		}).Info("restore complete, flash matches image")
		return nil
	},
}
