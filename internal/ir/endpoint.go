package ir

import (
	"fmt"
	"strings"
)

// Endpoint is a parsed "processor.slot" reference.
type Endpoint struct {
	Processor string
	Slot      string
}

func (e Endpoint) String() string { return e.Processor + "." + e.Slot }

// ParseEndpoint splits a "processor.slot" reference. Processor names cannot
// contain dots; slot names can.
func ParseEndpoint(s string) (Endpoint, error) {
	proc, slot, ok := strings.Cut(s, ".")
	if !ok || proc == "" || slot == "" {
		return Endpoint{}, fmt.Errorf("endpoint %q: want processor.slot", s)
	}
	return Endpoint{Processor: proc, Slot: slot}, nil
}
