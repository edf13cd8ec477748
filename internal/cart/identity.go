package cart

import (
	"fmt"
	"strings"
)

// DefaultInstance is the instance name used when none is given.
const DefaultInstance = "default"

// Identity is the storage key of a cart.
type Identity struct {
	Identifier string `json:"identifier" yaml:"identifier"`
	Instance   string `json:"instance" yaml:"instance"`
}

// NewIdentity returns an Identity, substituting DefaultInstance for an
// empty instance.
func NewIdentity(identifier, instance string) Identity {
	if strings.TrimSpace(instance) == "" {
		instance = DefaultInstance
	}
	return Identity{Identifier: identifier, Instance: instance}
}

// Validate checks that the identifier is present.
func (id Identity) Validate() error {
	if strings.TrimSpace(id.Identifier) == "" {
		return fmt.Errorf("cart identifier cannot be empty")
	}
	if strings.TrimSpace(id.Instance) == "" {
		return fmt.Errorf("cart instance cannot be empty")
	}
	return nil
}

// String returns "identifier/instance".
func (id Identity) String() string {
	return id.Identifier + "/" + id.Instance
}

// Less orders identities for deadlock-free multi-cart locking.
func (id Identity) Less(other Identity) bool {
	if id.Identifier != other.Identifier {
		return id.Identifier < other.Identifier
	}
	return id.Instance < other.Instance
}
