package client

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/JunaidCD/AyurherbX-sub001/identity"
)

// Descriptor is the persisted deployment record of the ledger. Its absence
// puts the chain client in not-deployed mode: writes fail fast and reads
// report the missing deployment instead of dialing the chain.
type Descriptor struct {
	ChainID    string           `json:"chain_id"`
	Network    string           `json:"network"`
	Owner      identity.Address `json:"owner"`
	DeployedAt time.Time        `json:"deployed_at"`
}

// LoadDescriptor reads the descriptor file. A missing file is not an error:
// it returns (nil, nil) and the client starts in not-deployed mode.
func LoadDescriptor(path string) (*Descriptor, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading ledger descriptor: %w", err)
	}

	var desc Descriptor
	if err := json.Unmarshal(raw, &desc); err != nil {
		return nil, fmt.Errorf("parsing ledger descriptor: %w", err)
	}
	return &desc, nil
}

// SaveDescriptor writes the descriptor file, marking the ledger deployed.
func SaveDescriptor(path string, desc *Descriptor) error {
	descBytes, err := json.MarshalIndent(desc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling ledger descriptor: %w", err)
	}
	if err := os.WriteFile(path, descBytes, 0o644); err != nil {
		return fmt.Errorf("writing ledger descriptor: %w", err)
	}
	return nil
}
