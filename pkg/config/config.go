// Package config parses process configuration from command-line
// flags, in the teacher's cmd/bluetooth-service/main.go style.
package config

import "flag"

// Config holds every tunable cmd/ev3uartd needs at startup.
type Config struct {
	SerialDevice string
	BaudRate     int
	Transport    string
	RedisAddr    string
	RedisPass    string
	RedisDB      int
	PortName     string
}

// Parse defines and parses the flag set, returning the resulting
// Config. It calls flag.Parse() itself, matching main.go's top-level
// flag.Parse() call in the teacher.
func Parse() *Config {
	c := &Config{}
	flag.StringVar(&c.SerialDevice, "serial", "/dev/ttymxc1", "Serial device path")
	flag.IntVar(&c.BaudRate, "baud", 2400, "Initial serial baud rate")
	flag.StringVar(&c.Transport, "transport", "serial", `Link implementation: "serial" (go.bug.st/serial, supports in-place baud changes) or "tarm" (github.com/tarm/serial, closes and reopens on baud change)`)
	flag.StringVar(&c.RedisAddr, "redis-addr", "localhost:6379", "Redis server address")
	flag.StringVar(&c.RedisPass, "redis-pass", "", "Redis password")
	flag.IntVar(&c.RedisDB, "redis-db", 0, "Redis database number")
	flag.StringVar(&c.PortName, "port-name", "in1", "Logical name this port is published under")
	flag.Parse()
	return c
}
