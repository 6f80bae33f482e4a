package modbuscomm

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/goburrow/modbus"
)

type transport interface {
	modbus.ClientHandler
	Connect() error
	Close() error
}

// Poller reads and writes a single slave over TCP or RTU. Each Read and
// Write opens and closes its own connection.
type Poller struct {
	handler transport
}

// PollerConfig is the configuration format for Poller. Mode is "tcp"
// (IPAddr and Port) or "rtu" (Device and the serial settings).
type PollerConfig struct {
	Mode     string `json:"Mode"`
	IPAddr   string `json:"IPAddr"`
	Port     string `json:"Port"`
	Device   string `json:"Device"`
	BaudRate int    `json:"BaudRate"`
	DataBits int    `json:"DataBits"`
	Parity   string `json:"Parity"`
	StopBits int    `json:"StopBits"`
	SlaveID  byte   `json:"SlaveID"`
	Timeout  int    `json:"Timeout"` // ms

	EnableLogger bool
}

// NewPoller builds the transport for cfg. Nothing is dialed until the first
// Read or Write.
func NewPoller(cfg PollerConfig) (*Poller, error) {
	timeout := time.Millisecond * time.Duration(cfg.Timeout)
	var logger *log.Logger
	if cfg.EnableLogger {
		logger = log.New(os.Stdout, "[Modbus] ", log.LstdFlags)
	}

	switch strings.ToLower(cfg.Mode) {
	case "tcp", "":
		h := modbus.NewTCPClientHandler(cfg.IPAddr + ":" + cfg.Port)
		h.Timeout = timeout
		h.SlaveId = cfg.SlaveID
		h.Logger = logger
		return &Poller{handler: h}, nil
	case "rtu":
		h := modbus.NewRTUClientHandler(cfg.Device)
		if cfg.BaudRate > 0 {
			h.BaudRate = cfg.BaudRate
		}
		if cfg.DataBits > 0 {
			h.DataBits = cfg.DataBits
		}
		if cfg.Parity != "" {
			h.Parity = cfg.Parity
		}
		if cfg.StopBits > 0 {
			h.StopBits = cfg.StopBits
		}
		if timeout > 0 {
			h.Timeout = timeout
		}
		h.SlaveId = cfg.SlaveID
		h.Logger = logger
		return &Poller{handler: h}, nil
	}
	return nil, fmt.Errorf("unsupported modbus mode: %s", cfg.Mode)
}

func (p *Poller) session(f func(modbus.Client) error) error {
	if err := p.handler.Connect(); err != nil {
		return err
	}
	defer p.handler.Close()
	return f(modbus.NewClient(p.handler))
}

// Read returns a value for every register. A register that fails reads as
// readErrorValue and the last failure is returned alongside the map.
func (p *Poller) Read(registers []Register) (map[string]float64, error) {
	values := make(map[string]float64, len(registers))
	err := p.session(func(client modbus.Client) error {
		var failed error
		for _, r := range registers {
			resp, err := readRegister(client, r)
			if err != nil {
				values[r.Name] = readErrorValue
				failed = err
				continue
			}
			values[r.Name] = decode(resp, r)
		}
		return failed
	})
	if err != nil && len(values) == 0 {
		return nil, err
	}
	return values, err
}

func readRegister(client modbus.Client, r Register) ([]byte, error) {
	if r.DataType == Bit {
		if r.FunctionCode == ReadDiscreteInputs {
			return client.ReadDiscreteInputs(r.Address, 1)
		}
		return client.ReadCoils(r.Address, 1)
	}
	if r.FunctionCode == ReadInput {
		return client.ReadInputRegisters(r.Address, r.DataType.words())
	}
	return client.ReadHoldingRegisters(r.Address, r.DataType.words())
}

// Write sends each named value to its register. Unknown names are skipped
// and reported with ErrUnknownRegister.
func (p *Poller) Write(registers []Register, values map[string]float64) error {
	return p.session(func(client modbus.Client) error {
		var failed error
		for name, val := range values {
			r, err := lookup(registers, name)
			if err != nil {
				failed = err
				continue
			}
			if r.DataType == Bit {
				_, err = client.WriteSingleCoil(r.Address, coil(val))
			} else {
				_, err = client.WriteMultipleRegisters(r.Address, r.DataType.words(), encode(val, r))
			}
			if err != nil {
				failed = err
			}
		}
		return failed
	})
}
