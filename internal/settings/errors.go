package settings

import (
	"fmt"
	"strings"
)

// MissingSettingError reports a key defined in no scope of a step's chain.
// The configuration is incomplete; the run aborts without retry.
type MissingSettingError struct {
	Key    string
	Scopes []string
}

func (e *MissingSettingError) Error() string {
	return fmt.Sprintf("setting %q is not defined in any scope (searched: %s)",
		e.Key, strings.Join(e.Scopes, " -> "))
}

// TypeError reports a setting that resolved to a value of the wrong type
// for the requested accessor.
type TypeError struct {
	Key    string
	Want   string
	Detail string
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("setting %q is not a %s: %s", e.Key, e.Want, e.Detail)
}
