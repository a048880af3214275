package group

import (
	"fmt"
	"strings"
)

// Group identifiers understood by FromName.
const (
	GroupRFC5114      = "rfc5114-1024-160"
	GroupModP2048     = "modp2048"
	GroupSecp256k1    = "secp256k1"
	GroupRistretto255 = "ristretto255"

	// DefaultGroup is used when no group is configured.
	DefaultGroup = GroupRFC5114
)

// FromName returns the named group after validating it.
func FromName(name string) (Group, error) {
	var g Group
	switch strings.ToLower(name) {
	case "", GroupRFC5114:
		g = NewRFC5114()
	case GroupModP2048:
		g = NewModP2048()
	case GroupSecp256k1:
		g = NewSecp256k1()
	case GroupRistretto255:
		g = NewRistretto255()
	default:
		return nil, fmt.Errorf("unsupported group: %s", name)
	}

	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("group %s: %w", g.Name(), err)
	}
	return g, nil
}

// SupportedGroups lists the group identifiers understood by FromName.
func SupportedGroups() []string {
	return []string{GroupRFC5114, GroupModP2048, GroupSecp256k1, GroupRistretto255}
}

// generatorSeed is the public seed beta is derived from.
func generatorSeed(name string) string {
	return "zkcp-auth/1/beta/" + name
}
