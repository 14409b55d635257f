package cmd

import (
	"github.com/apex/log"
	"github.com/spf13/viper"
	"periph.io/x/conn/v3/physic"

	"github.com/flashimg/fimg/spibus"
	"github.com/flashimg/fimg/spiflash"
	"github.com/flashimg/fimg/storage"
)

// openFlash opens the configured SPI port, resets the chip and probes its
// identity. The returned bus must be closed by the caller.
func openFlash() (*spiflash.Device, *spibus.Bus, error) {
	bus, err := spibus.Open(spibus.Config{
		Port:  viper.GetString("spi.port"),
		CS:    viper.GetString("spi.cs"),
		Speed: physic.Frequency(viper.GetInt("spi.speed")) * physic.MegaHertz,
	})
	if err != nil {
		return nil, nil, err
	}

	dev := spiflash.New(bus)
	if err := dev.Init(); err != nil {
		bus.Close()
		return nil, nil, err
	}

	id, err := dev.ReadJEDEC()
	if err != nil {
		bus.Close()
		return nil, nil, err
	}
	log.Debugf("JEDEC id: %s", id)

	return dev, bus, nil
}

func backupVolume() storage.Volume {
	return storage.NewDirVolume(viper.GetString("backup.dir"))
}
