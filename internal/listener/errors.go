package listener

import "fmt"

// ConfigurationError surfaces from Start when the container is missing
// a required collaborator or its queue reference can't be resolved
// (spec §7).
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("listener: %s", e.Reason)
}
