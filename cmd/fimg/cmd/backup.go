package cmd

import (
	"fmt"

	"github.com/apex/log"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/flashimg/fimg/tasks"
)

func init() {
	rootCmd.AddCommand(backupCmd)
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Back up the whole chip to an image on the volume",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dev, bus, err := openFlash()
		if err != nil {
			return err
		}
		defer bus.Close()

		ui := newProgressUI()
		runner := tasks.New(dev, backupVolume(), tasks.WithProgress(ui.update))

		info, err := runner.Backup()
		ui.wait()
		if err != nil {
			return err
		}

		log.WithFields(log.Fields{
			"image": info.Name,
			"size":  humanize.Bytes(uint64(info.Size)),
			"crc32": fmt.Sprintf("0x%08x", info.CRC32),
		}).Info("backup complete")
		return nil
	},
}
