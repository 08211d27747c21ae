package sensors

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cyclopcam/logs"
	"go.bug.st/serial"
)

// TDSProbe reads total dissolved solids (ppm) from a microcontroller that prints
// one value per line over a serial port.
//
// A background goroutine consumes lines as they arrive. Read returns the most
// recent value, or ErrNoData if nothing new has arrived since the previous Read.
type TDSProbe struct {
	log    logs.Log
	port   io.ReadCloser
	closed chan bool

	lock    sync.Mutex
	latest  float64
	hasNew  bool
	lastErr error // Once the stream fails, we return this error forever
}

type SerialOptions struct {
	Device   string `json:"device"`   // eg /dev/ttyACM0
	BaudRate int    `json:"baudRate"` // eg 9600
}

// Open the serial device and start reading from it
func OpenTDSProbe(log logs.Log, opt SerialOptions) (*TDSProbe, error) {
	if opt.BaudRate == 0 {
		opt.BaudRate = 9600
	}
	mode := &serial.Mode{
		BaudRate: opt.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(opt.Device, mode)
	if err != nil {
		return nil, fmt.Errorf("Failed to open serial port %v: %w", opt.Device, err)
	}
	log.Infof("Opened TDS probe on %v at %v baud", opt.Device, opt.BaudRate)
	return NewTDSProbe(log, port), nil
}

// Create a TDS probe that reads from an already open stream
func NewTDSProbe(log logs.Log, port io.ReadCloser) *TDSProbe {
	t := &TDSProbe{
		log:    log,
		port:   port,
		closed: make(chan bool),
	}
	go t.reader()
	return t
}

func (t *TDSProbe) Name() string {
	return "tds"
}

func (t *TDSProbe) Close() error {
	err := t.port.Close()
	<-t.closed
	return err
}

func (t *TDSProbe) Read() (float64, error) {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.lastErr != nil {
		return 0, t.lastErr
	}
	if !t.hasNew {
		return 0, ErrNoData
	}
	t.hasNew = false
	return t.latest, nil
}

func (t *TDSProbe) reader() {
	defer close(t.closed)
	scanner := bufio.NewScanner(t.port)
	lastInvalidMsg := time.Time{}
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		v, err := strconv.ParseFloat(line, 64)
		if err == nil {
			t.lock.Lock()
			t.latest = v
			t.hasNew = true
			t.lock.Unlock()
		} else if time.Since(lastInvalidMsg) > 15*time.Second {
			t.log.Warnf("Ignoring invalid TDS line '%v'", line)
			lastInvalidMsg = time.Now()
		}
	}
	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	t.lock.Lock()
	t.lastErr = fmt.Errorf("TDS serial stream ended: %w", err)
	t.lock.Unlock()
}
