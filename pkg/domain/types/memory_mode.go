package types

import "fmt"

// MemoryMode controls whether a backend message exchange persists a
// durable memory as a side effect
type MemoryMode string

const (
	// MemoryModeAuto writes exactly one memory derived from the exchanged content
	MemoryModeAuto MemoryMode = "auto"
	// MemoryModeReadonly allows memory reads during generation but writes nothing
	MemoryModeReadonly MemoryMode = "readonly"
	// MemoryModeOff disables memory entirely for the exchange
	MemoryModeOff MemoryMode = "off"
)

// AllMemoryModes returns all valid memory modes
func AllMemoryModes() []MemoryMode {
	return []MemoryMode{
		MemoryModeAuto,
		MemoryModeReadonly,
		MemoryModeOff,
	}
}

// IsValid checks if the memory mode is valid
func (m MemoryMode) IsValid() bool {
	switch m {
	case MemoryModeAuto,
		MemoryModeReadonly,
		MemoryModeOff:
		return true
	default:
		return false
	}
}

// String returns the string representation of the memory mode
func (m MemoryMode) String() string {
	return string(m)
}

// ParseMemoryMode parses a string into a MemoryMode
func ParseMemoryMode(s string) (MemoryMode, error) {
	mode := MemoryMode(s)
	if !mode.IsValid() {
		return "", fmt.Errorf("invalid memory mode: %s", s)
	}
	return mode, nil
}
