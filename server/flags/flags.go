// Package flags holds the command line flag values for the server binary.
package flags

// NatsConfig is the flag name for the NATS setup configuration file path.
const NatsConfig = "nats-config"

// Set holds the parsed flag values.
type Set struct {
	NatsConfig string
}

// Value is the active flag set.
var Value Set
