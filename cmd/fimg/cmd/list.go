package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/flashimg/fimg/tasks"
)

func init() {
	rootCmd.AddCommand(listCmd)
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the backup images on the volume",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		vol := backupVolume()
		if err := vol.Mount(); err != nil {
			return err
		}

		names, err := vol.List(tasks.ImageExt)
		if err != nil {
			return err
		}
		if len(names) == 0 {
			fmt.Println("(no images found)")
			return nil
		}

		dir := viper.GetString("backup.dir")
		for _, name := range names {
			fmt.Printf("%s/%s\n", dir, name)
		}
		return nil
	},
}
