package sensors

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrNoData means that the probe is working, but has nothing new to report
var ErrNoData = errors.New("No data available")

// ErrCRC means a 1-Wire reading failed its checksum on every attempt
var ErrCRC = errors.New("1-Wire CRC check failed")

// Probe is a single ambient sensor
type Probe interface {
	Name() string
	Read() (float64, error)
	Close() error
}

// TemperatureProbe reads a DS18B20 1-Wire thermometer through the w1_therm sysfs interface.
//
// The w1_slave file looks like this:
//
//	72 01 4b 46 7f ff 0e 10 57 : crc=57 YES
//	72 01 4b 46 7f ff 0e 10 57 t=23125
//
// The first line ends with YES if the CRC is valid. The second line holds the temperature in millidegrees Celsius.
type TemperatureProbe struct {
	filename   string
	retries    int
	retryDelay time.Duration
}

// Default location of 1-Wire devices on a Raspberry Pi
const W1DevicesDir = "/sys/bus/w1/devices"

// Create a temperature probe for the given w1_slave file.
// If filename is empty, we use the first DS18B20 device (family code 28) that we can find.
func NewTemperatureProbe(filename string) (*TemperatureProbe, error) {
	if filename == "" {
		matches, _ := filepath.Glob(filepath.Join(W1DevicesDir, "28-*", "w1_slave"))
		if len(matches) == 0 {
			return nil, fmt.Errorf("No DS18B20 devices found in %v", W1DevicesDir)
		}
		filename = matches[0]
	}
	return &TemperatureProbe{
		filename:   filename,
		retries:    5,
		retryDelay: 200 * time.Millisecond,
	}, nil
}

func (t *TemperatureProbe) Name() string {
	return "temperature"
}

func (t *TemperatureProbe) Close() error {
	return nil
}

// Read returns the temperature in degrees Celsius
func (t *TemperatureProbe) Read() (float64, error) {
	for attempt := 0; ; attempt++ {
		raw, err := os.ReadFile(t.filename)
		if err != nil {
			return 0, err
		}
		v, err := ParseW1Slave(string(raw))
		if err == nil || !errors.Is(err, ErrCRC) || attempt >= t.retries {
			return v, err
		}
		time.Sleep(t.retryDelay)
	}
}

// ParseW1Slave parses the contents of a w1_slave file, and returns degrees Celsius
func ParseW1Slave(raw string) (float64, error) {
	scanner := bufio.NewScanner(strings.NewReader(raw))
	lines := []string{}
	for scanner.Scan() {
		lines = append(lines, strings.TrimSpace(scanner.Text()))
	}
	if len(lines) < 2 {
		return 0, fmt.Errorf("Expected 2 lines from 1-Wire device, but got %v", len(lines))
	}
	if !strings.HasSuffix(lines[0], "YES") {
		return 0, ErrCRC
	}
	eq := strings.Index(lines[1], "t=")
	if eq == -1 {
		return 0, fmt.Errorf("No temperature in 1-Wire reading '%v'", lines[1])
	}
	milli, err := strconv.ParseInt(strings.TrimSpace(lines[1][eq+2:]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("Invalid temperature in 1-Wire reading '%v': %w", lines[1], err)
	}
	return float64(milli) / 1000, nil
}
