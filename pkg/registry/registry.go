// Package registry defines the upward interface a Port publishes its
// completed sensor descriptor through, plus a Redis-backed
// implementation grounded on the teacher's pkg/redis/client.go.
package registry

// DataFormat mirrors ev3uart.DataFormat without importing that
// package, keeping Registry a standalone interface the core depends
// on rather than the reverse.
type DataFormat uint8

const (
	FormatS8 DataFormat = iota
	FormatS16
	FormatS32
	FormatFloat
)

// Snapshot is the complete upward descriptor for one sensor port.
type Snapshot struct {
	TypeID       uint8
	NumModes     uint8
	NumViewModes uint8
	CurrentMode  uint8
	Modes        [8]ModeSnapshot
}

// ModeSnapshot is one mode's descriptor within a Snapshot.
type ModeSnapshot struct {
	Name     string
	Units    string
	RawMin   float32
	RawMax   float32
	PctMin   float32
	PctMax   float32
	SIMin    float32
	SIMax    float32
	DataSets int
	Format   DataFormat
	Figures  int
	Decimals int
	RawData  []byte
}

// Registry is the HandshakeDriver's only upward dependency: publish a
// freshly-discovered sensor once, or report that an already-known
// sensor reconnected.
type Registry interface {
	// Publish records a newly completed sensor descriptor. Called on
	// each completed discovery until one call succeeds (spec.md
	// section 4.4's "first time" branch); later discoveries call
	// Reconnect instead.
	Publish(port string, snap Snapshot) error

	// Reconnect is called instead of Publish when a sensor descriptor
	// for port already exists; lastError carries the Port's most
	// recent diagnostic, if any.
	Reconnect(port string, lastError string)
}
