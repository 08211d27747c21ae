package sensors

import (
	"errors"
	"sync"
	"time"

	"github.com/bmharper/ringbuffer"
	"github.com/cyclopcam/logs"
	"github.com/go-co-op/gocron/v2"
)

// Package sensors polls the ambient tank sensors on their own schedule.
// Sensor failures are logged here, and never reach the frame loop.

// Reading is one sample of all probes. A nil field means that probe had nothing to report.
type Reading struct {
	Time          time.Time `json:"time"`
	Temperature   *float64  `json:"temperature"`   // degrees Celsius
	Concentration *float64  `json:"concentration"` // TDS, parts per million
}

type Config struct {
	Enabled         bool          `json:"enabled"`
	IntervalMS      int           `json:"intervalMS"`      // Poll interval. Default 500.
	HistorySize     int           `json:"historySize"`     // Number of readings kept. Rounded up to a power of 2. Default 128.
	TemperatureFile string        `json:"temperatureFile"` // w1_slave file. Empty means auto-detect. "-" disables.
	TDS             SerialOptions `json:"tds"`             // Empty device disables
}

func DefaultConfig() Config {
	return Config{
		Enabled:     false,
		IntervalMS:  500,
		HistorySize: 128,
		TDS: SerialOptions{
			Device:   "/dev/ttyACM0",
			BaudRate: 9600,
		},
	}
}

func (c *Config) Interval() time.Duration {
	if c.IntervalMS <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(c.IntervalMS) * time.Millisecond
}

// Poller owns the probes, and samples them periodically
type Poller struct {
	log         logs.Log
	interval    time.Duration
	temperature Probe // may be nil
	tds         Probe // may be nil
	scheduler   gocron.Scheduler

	historyLock sync.Mutex
	history     ringbuffer.RingP[Reading]

	lastErrAt map[string]time.Time // Only accessed by poll(), which gocron runs in singleton mode
}

// Open the probes named in cfg. Probes that fail to open are logged and skipped.
func NewPollerFromConfig(log logs.Log, cfg Config) (*Poller, error) {
	var temperature, tds Probe
	if cfg.TemperatureFile != "-" {
		if t, err := NewTemperatureProbe(cfg.TemperatureFile); err != nil {
			log.Warnf("Temperature probe unavailable: %v", err)
		} else {
			temperature = t
		}
	}
	if cfg.TDS.Device != "" {
		if t, err := OpenTDSProbe(log, cfg.TDS); err != nil {
			log.Warnf("TDS probe unavailable: %v", err)
		} else {
			tds = t
		}
	}
	return NewPoller(log, cfg.Interval(), cfg.HistorySize, temperature, tds)
}

// Create a poller. Either probe may be nil.
func NewPoller(log logs.Log, interval time.Duration, historySize int, temperature, tds Probe) (*Poller, error) {
	if historySize <= 0 {
		historySize = 128
	}
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	p := &Poller{
		log:         log,
		interval:    interval,
		temperature: temperature,
		tds:         tds,
		scheduler:   scheduler,
		history:     ringbuffer.NewRingP[Reading](nextPowerOf2(historySize)),
		lastErrAt:   map[string]time.Time{},
	}
	_, err = scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(p.poll),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		scheduler.Shutdown()
		return nil, err
	}
	return p, nil
}

func (p *Poller) Start() {
	p.log.Infof("Polling sensors every %v", p.interval)
	p.scheduler.Start()
}

// Close stops polling and closes the probes
func (p *Poller) Close() {
	if err := p.scheduler.Shutdown(); err != nil {
		p.log.Warnf("Sensor scheduler shutdown: %v", err)
	}
	for _, probe := range []Probe{p.temperature, p.tds} {
		if probe != nil {
			probe.Close()
		}
	}
}

// Sample every probe once, and add the result to the history
func (p *Poller) poll() {
	r := Reading{
		Time:          time.Now(),
		Temperature:   p.sample(p.temperature),
		Concentration: p.sample(p.tds),
	}
	p.historyLock.Lock()
	p.history.Add(r)
	p.historyLock.Unlock()
}

func (p *Poller) sample(probe Probe) *float64 {
	if probe == nil {
		return nil
	}
	v, err := probe.Read()
	if err != nil {
		if !errors.Is(err, ErrNoData) && time.Since(p.lastErrAt[probe.Name()]) > 15*time.Second {
			p.log.Errorf("Error reading %v sensor: %v", probe.Name(), err)
			p.lastErrAt[probe.Name()] = time.Now()
		}
		return nil
	}
	return &v
}

// Latest returns the most recent reading, or false if there are none yet
func (p *Poller) Latest() (Reading, bool) {
	p.historyLock.Lock()
	defer p.historyLock.Unlock()
	if p.history.Len() == 0 {
		return Reading{}, false
	}
	return p.history.Peek(p.history.Len() - 1), true
}

// History returns the retained readings, oldest first
func (p *Poller) History() []Reading {
	p.historyLock.Lock()
	defer p.historyLock.Unlock()
	out := make([]Reading, 0, p.history.Len())
	for i := 0; i < p.history.Len(); i++ {
		out = append(out, p.history.Peek(i))
	}
	return out
}

func nextPowerOf2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
