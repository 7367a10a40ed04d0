package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/librescoot/ev3uart-service/pkg/config"
	"github.com/librescoot/ev3uart-service/pkg/ev3uart"
	"github.com/librescoot/ev3uart-service/pkg/link"
	"github.com/librescoot/ev3uart-service/pkg/registry"
)

// openTransport selects the Link implementation named by -transport.
// "serial" (the default) is go.bug.st/serial, which supports in-place
// baud changes; "tarm" is github.com/tarm/serial, the teacher's own
// transport library, which closes and reopens the port on a baud
// change instead (see pkg/link/tarm.go).
func openTransport(name, devicePath string, baud int, recv link.Receiver) (link.Link, error) {
	switch name {
	case "", "serial":
		return link.Open(devicePath, baud, recv)
	case "tarm":
		return link.OpenTarm(devicePath, baud, recv)
	default:
		return nil, fmt.Errorf("unknown transport %q (want \"serial\" or \"tarm\")", name)
	}
}

func main() {
	cfg := config.Parse()

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Printf("Starting EV3 UART sensor service")
	log.Printf("Serial device: %s", cfg.SerialDevice)
	log.Printf("Baud rate: %d", cfg.BaudRate)
	log.Printf("Redis address: %s", cfg.RedisAddr)
	log.Printf("Port name: %s", cfg.PortName)

	reg, err := registry.NewRedis(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer reg.Close()
	log.Printf("Connected to Redis")

	var recv link.IndirectReceiver
	transport, err := openTransport(cfg.Transport, cfg.SerialDevice, cfg.BaudRate, &recv)
	if err != nil {
		log.Fatalf("Failed to open %s link %s: %v", cfg.Transport, cfg.SerialDevice, err)
	}
	defer transport.Close()
	log.Printf("Transport: %s", cfg.Transport)

	port := ev3uart.New(transport, reg, cfg.PortName)
	defer port.Close()
	recv.Set(port)
	log.Printf("Listening for sensor sync on %s", cfg.SerialDevice)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	log.Printf("Shutting down...")
}
