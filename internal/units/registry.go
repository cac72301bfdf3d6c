// Package units holds the registry of REI units. A unit is a named upstream
// agent identity, each backed by its own bearer credential. The registry is
// built once at startup from the process environment and never mutated after
// that, so handlers can read it concurrently without locking.
package units

import (
	"fmt"
	"sort"
	"strings"
)

// EnvPrefix is the environment variable prefix the registry scans for.
// REI_AGENT_SECRET_ALPHA=tok-123 registers unit "alpha" with credential
// "tok-123".
const EnvPrefix = "REI_AGENT_SECRET_"

// Registry maps unit identifiers (lowercase) to bearer credentials.
//
// The zero value is not useful — build one with FromEnviron. We keep the
// map unexported so nothing outside this package can mutate it or read a
// credential without going through Resolve.
type Registry struct {
	secrets map[string]string
}

// FromEnviron scans an environment (as returned by os.Environ) for
// EnvPrefix-named variables and builds the registry. The part of the
// variable name after the prefix becomes the unit identifier, lowercased.
// Variables with empty values are skipped.
//
// Taking the environ slice as a parameter instead of reading os.Environ
// directly keeps this testable without touching the real process
// environment.
func FromEnviron(environ []string) *Registry {
	secrets := make(map[string]string)

	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if !strings.HasPrefix(name, EnvPrefix) || value == "" {
			continue
		}

		unit := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
		secrets[unit] = value
	}

	return &Registry{secrets: secrets}
}

// Resolve looks up the credential for a unit identifier. The identifier is
// lowercased before lookup, matching how keys were normalized at load time.
//
// On a miss it returns a *NotFoundError listing the configured unit names.
// Credential values never appear in the error — only the names do.
func (r *Registry) Resolve(id string) (string, error) {
	secret, ok := r.secrets[strings.ToLower(id)]
	if !ok {
		return "", &NotFoundError{Unit: id, Available: r.Names()}
	}
	return secret, nil
}

// Names returns the configured unit identifiers in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.secrets))
	for unit := range r.secrets {
		names = append(names, unit)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of configured units.
func (r *Registry) Len() int {
	return len(r.secrets)
}

// NotFoundError reports a lookup for a unit that isn't configured. Its
// message enumerates the valid identifiers so callers can self-correct.
type NotFoundError struct {
	Unit      string
	Available []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("REI unit %q not found. Available units: %v", e.Unit, e.Available)
}
