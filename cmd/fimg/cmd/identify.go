package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/apex/log"
	"github.com/spf13/cobra"

	"github.com/flashimg/fimg/bench"
	"github.com/flashimg/fimg/chipdb"
)

func init() {
	rootCmd.AddCommand(identifyCmd)

	identifyCmd.Flags().IntP("top", "n", 3, "number of matches to display")
	identifyCmd.Flags().String("db", "Embedded_datasheet.csv", "chip database CSV file")
}

var identifyCmd = &cobra.Command{
	Use:   "identify",
	Short: "Benchmark the chip and rank likely parts from the database",
	Long: `Times erase, program and read operations against sector 0, then scores
every chip database entry against the observed JEDEC bytes and average
timings. Destructive: sector 0 is erased and overwritten.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		topN, _ := cmd.Flags().GetInt("top")
		dbPath, _ := cmd.Flags().GetString("db")

		dbFile, err := os.Open(dbPath)
		if err != nil {
			return fmt.Errorf("open chip database: %w", err)
		}
		defer dbFile.Close()

		entries, err := chipdb.Load(dbFile)
		if err != nil {
			return err
		}
		log.Debugf("loaded %d chip database entries", len(entries))

		dev, bus, err := openFlash()
		if err != nil {
			return err
		}
		defer bus.Close()

		log.Info("running benchmark")
		rep, err := bench.Run(dev)
		if err != nil {
			return err
		}

		fmt.Println("Operation     |      Min |      Max |      Avg")
		fmt.Println("----------------------------------------------")
		printResult := func(name string, r bench.Result, unit time.Duration, suffix string) {
			fmt.Printf("%-8s x%-3d | %8.2f | %8.2f | %8.2f %s\n", name, r.Trials,
				float64(r.Min)/float64(unit),
				float64(r.Max)/float64(unit),
				float64(r.Avg)/float64(unit), suffix)
		}
		printResult("erase", rep.Erase, time.Millisecond, "ms")
		printResult("program", rep.Program, time.Millisecond, "ms")
		printResult("read", rep.Read, time.Microsecond, "us")

		id := dev.JEDEC()
		obs := chipdb.Observation{
			Manufacturer: id.Manufacturer,
			MemoryType:   id.MemoryType,
			Capacity:     id.Capacity,
			ReadUs:       float64(rep.Read.Avg) / float64(time.Microsecond),
			ProgramMs:    float64(rep.Program.Avg) / float64(time.Millisecond),
			EraseMs:      float64(rep.Erase.Avg) / float64(time.Millisecond),
		}

		matches := chipdb.TopMatches(entries, obs, topN)
		if len(matches) == 0 {
			fmt.Println("(no usable database entries)")
			return nil
		}

		fmt.Printf("\nObserved JEDEC: 0x%02x 0x%02x 0x%02x\n",
			obs.Manufacturer, obs.MemoryType, obs.Capacity)
		for i, m := range matches {
			fmt.Printf("\n[#%d] %s (score %.4f, lower is better)\n", i+1, m.Entry.Name, m.Score)
			fmt.Printf("  JEDEC (DB): 0x%02x 0x%02x 0x%02x\n",
				m.Entry.Manufacturer, m.Entry.DeviceID[0], m.Entry.DeviceID[1])
			fmt.Printf("  READ : %8.2f us vs %8.2f us\n", obs.ReadUs, m.Entry.ReadUs)
			fmt.Printf("  PROG : %8.2f ms vs %8.2f ms\n", obs.ProgramMs, m.Entry.ProgramMs)
			fmt.Printf("  ERASE: %8.2f ms vs %8.2f ms\n", obs.EraseMs, m.Entry.EraseMs)
		}
		return nil
	},
}
