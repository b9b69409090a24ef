package effects

import (
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/host"

	"kblight/internal/core"
)

const (
	coolCelsius = 30.0
	hotCelsius  = 90.0
)

// Thermometer reports the CPU temperature in degrees Celsius.
type Thermometer interface {
	CPUTemperature() (float64, error)
}

type hostThermometer struct{}

// NewHostThermometer reads the hottest CPU package sensor via gopsutil.
func NewHostThermometer() Thermometer {
	return hostThermometer{}
}

var cpuSensorHints = []string{"coretemp", "k10temp", "cpu", "package", "tctl", "tdie"}

func (hostThermometer) CPUTemperature() (float64, error) {
	stats, err := host.SensorsTemperatures()
	if len(stats) == 0 {
		if err == nil {
			err = errors.New("no temperature sensors")
		}
		return 0, err
	}
	hottest, found := 0.0, false
	for _, s := range stats {
		key := strings.ToLower(s.SensorKey)
		for _, hint := range cpuSensorHints {
			if strings.Contains(key, hint) {
				if !found || s.Temperature > hottest {
					hottest = s.Temperature
				}
				found = true
				break
			}
		}
	}
	if !found {
		return 0, errors.New("no cpu temperature sensor")
	}
	return hottest, nil
}

// temperature colors the keyboard from green when the CPU is cool to red
// when it is hot.
type temperature struct {
	thermo Thermometer
	logger zerolog.Logger
}

func (t *temperature) Run(dev *Device, tok *Token, p core.Profile) {
	for {
		celsius, err := t.thermo.CPUTemperature()
		if err != nil {
			t.logger.Warn().Err(err).Msg("temperature read failed, skipping frame")
		} else {
			dev.SetColorsTo(TemperatureColor(celsius))
		}
		if tok.Stopped() {
			return
		}
		if tok.Sleep(time.Second) {
			return
		}
	}
}

// TemperatureColor maps celsius onto a green to red gradient.
func TemperatureColor(celsius float64) core.RGBArray {
	f := (celsius - coolCelsius) / (hotCelsius - coolCelsius)
	if f < 0 {
		f = 0
	}
	if f > 1 {
		f = 1
	}
	return core.Uniform(uint8(255*f+0.5), uint8(255*(1-f)+0.5), 0)
}
