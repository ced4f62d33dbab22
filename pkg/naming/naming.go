// Package naming validates and parses RedStream stream identifiers.
package naming

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// DefaultNamespace is the root namespace token used when none is configured.
	DefaultNamespace = "nova"

	// CanonicalGrammar documents the canonical four-segment form. The leading
	// segment is the fixed root namespace token.
	CanonicalGrammar = "<namespace>:<domain>:<category>:<name>"

	// LegacyGrammar documents the dotted form kept for backward compatibility.
	LegacyGrammar = "<domain>.<name>[.<qualifier>...]"
)

// Reserved top-level domains under the canonical form.
const (
	DomainSystem    = "system"
	DomainTask      = "task"
	DomainAgent     = "agent"
	DomainUser      = "user"
	DomainMemory    = "memory"
	DomainDevops    = "devops"
	DomainBroadcast = "broadcast"
)

var reservedDomains = map[string]struct{}{
	DomainSystem:    {},
	DomainTask:      {},
	DomainAgent:     {},
	DomainUser:      {},
	DomainMemory:    {},
	DomainDevops:    {},
	DomainBroadcast: {},
}

var (
	namespaceRe = regexp.MustCompile(`^[a-z][a-z0-9]*$`)
	legacyRe    = regexp.MustCompile(`^[a-z]+\.[a-z0-9_-]+(\.[a-z0-9_-]+)*$`)

	domainRe  = regexp.MustCompile(`^[a-z]+$`)
	segmentRe = regexp.MustCompile(`^[a-z0-9_-]+$`)
)

// ReservedDomains returns the reserved canonical domains in a stable order.
func ReservedDomains() []string {
	return []string{
		DomainSystem, DomainTask, DomainAgent, DomainUser,
		DomainMemory, DomainDevops, DomainBroadcast,
	}
}

// IsReservedDomain reports whether domain is one of the platform-reserved
// canonical domains.
func IsReservedDomain(domain string) bool {
	_, ok := reservedDomains[domain]
	return ok
}

// Name is a parsed, validated stream identifier.
type Name struct {
	// Raw is the original identifier as supplied by the caller.
	Raw string

	// Segments are the colon segments (canonical) or dot segments (legacy).
	Segments []string

	// Legacy is true when Raw matched the dotted compatibility form.
	Legacy bool
}

// Namespace returns the root namespace token, or "" for legacy names.
func (n Name) Namespace() string {
	if n.Legacy {
		return ""
	}
	return n.Segments[0]
}

// Domain returns the domain segment. For legacy names this is the first
// dotted segment.
func (n Name) Domain() string {
	if n.Legacy {
		return n.Segments[0]
	}
	return n.Segments[1]
}

// String returns the identifier in its original form.
func (n Name) String() string { return n.Raw }

// Validator checks stream identifiers against the naming grammar for one
// root namespace. The zero value is not usable; construct with New.
type Validator struct {
	namespace string
}

// New creates a Validator for the given root namespace token. An empty token
// selects DefaultNamespace.
func New(namespace string) (*Validator, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if !namespaceRe.MatchString(namespace) {
		return nil, fmt.Errorf("invalid namespace token %q: must match %s", namespace, namespaceRe.String())
	}
	return &Validator{namespace: namespace}, nil
}

// MustNew is New that panics on an invalid namespace token. Intended for
// wiring with compile-time-known tokens.
func MustNew(namespace string) *Validator {
	v, err := New(namespace)
	if err != nil {
		panic(err)
	}
	return v
}

// Default returns a Validator for the default root namespace.
func Default() *Validator { return MustNew(DefaultNamespace) }

// Namespace returns the root namespace token this validator accepts.
func (v *Validator) Namespace() string { return v.namespace }

// Validate checks name against the canonical and legacy grammars and returns
// its segments. It performs no I/O.
func (v *Validator) Validate(name string) ([]string, error) {
	n, err := v.Parse(name)
	if err != nil {
		return nil, err
	}
	return n.Segments, nil
}

// Parse validates name and returns its structured form.
func (v *Validator) Parse(name string) (Name, error) {
	if name == "" {
		return Name{}, &InvalidNameError{Name: name, Reason: "name is empty"}
	}
	if strings.ContainsAny(name, " \t\r\n") {
		return Name{}, &InvalidNameError{Name: name, Reason: "name contains whitespace"}
	}
	if name != strings.ToLower(name) {
		return Name{}, &InvalidNameError{Name: name, Reason: "name contains uppercase characters"}
	}

	if strings.Contains(name, ":") {
		return v.parseCanonical(name)
	}
	if legacyRe.MatchString(name) {
		return Name{Raw: name, Segments: strings.Split(name, "."), Legacy: true}, nil
	}
	return Name{}, &InvalidNameError{Name: name, Reason: "does not match the canonical or legacy grammar"}
}

func (v *Validator) parseCanonical(name string) (Name, error) {
	segments := strings.Split(name, ":")
	if len(segments) != 4 {
		return Name{}, &InvalidNameError{
			Name:   name,
			Reason: fmt.Sprintf("expected exactly 4 colon-delimited segments, got %d", len(segments)),
		}
	}
	for i, seg := range segments {
		if seg == "" {
			return Name{}, &InvalidNameError{
				Name:   name,
				Reason: fmt.Sprintf("segment %d is empty", i+1),
			}
		}
	}
	if segments[0] != v.namespace {
		return Name{}, &InvalidNameError{
			Name:   name,
			Reason: fmt.Sprintf("root namespace must be %q, got %q", v.namespace, segments[0]),
		}
	}
	if !domainRe.MatchString(segments[1]) {
		return Name{}, &InvalidNameError{
			Name:   name,
			Reason: fmt.Sprintf("domain %q must be lowercase letters only", segments[1]),
		}
	}
	for i, seg := range segments[2:] {
		if !segmentRe.MatchString(seg) {
			return Name{}, &InvalidNameError{
				Name:   name,
				Reason: fmt.Sprintf("segment %d contains characters outside [a-z0-9_-]", i+3),
			}
		}
	}
	return Name{Raw: name, Segments: segments}, nil
}

// Build assembles a canonical stream name under this validator's namespace.
// The result is validated; invalid inputs return an error rather than a
// malformed name.
func (v *Validator) Build(domain, category, base string) (string, error) {
	name := fmt.Sprintf("%s:%s:%s:%s", v.namespace, domain, category, base)
	if _, err := v.Parse(name); err != nil {
		return "", err
	}
	return name, nil
}

// MustBuild is Build that panics on invalid input. Intended for fixed,
// compile-time-known stream names.
func (v *Validator) MustBuild(domain, category, base string) string {
	name, err := v.Build(domain, category, base)
	if err != nil {
		panic(err)
	}
	return name
}
