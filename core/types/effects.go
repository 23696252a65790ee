package types

import (
	"fmt"
	"strings"
)

// Effect is one kind of external side effect a command may perform.
type Effect uint8

const (
	EffectOutput   Effect = 1 << iota // Writes to stdout or stderr
	EffectFSRead                      // Inspects the filesystem
	EffectFSWrite                     // Modifies the filesystem
	EffectProcess                     // Spawns, replaces, or exits a process
	EffectEnvRead                     // Reads environment or positional parameters
	EffectEnvWrite                    // Mutates the environment
)

// effectNames is ordered by bit so that String is deterministic.
var effectNames = []struct {
	effect Effect
	name   string
}{
	{EffectOutput, "output"},
	{EffectFSRead, "fs_read"},
	{EffectFSWrite, "fs_write"},
	{EffectProcess, "process"},
	{EffectEnvRead, "env_read"},
	{EffectEnvWrite, "env_write"},
}

// ParseEffect maps a catalog name to an Effect.
func ParseEffect(name string) (Effect, error) {
	for _, e := range effectNames {
		if e.name == name {
			return e.effect, nil
		}
	}
	return 0, fmt.Errorf("unknown effect %q", name)
}

// EffectSet is a bitset of effects. The zero value means "no effects".
type EffectSet uint8

// NewEffectSet builds a set from individual effects.
func NewEffectSet(effects ...Effect) EffectSet {
	var s EffectSet
	for _, e := range effects {
		s |= EffectSet(e)
	}
	return s
}

// Has reports whether e is in the set.
func (s EffectSet) Has(e Effect) bool {
	return s&EffectSet(e) != 0
}

// Union returns the union of s and other.
func (s EffectSet) Union(other EffectSet) EffectSet {
	return s | other
}

// IsPure reports whether the set is empty.
func (s EffectSet) IsPure() bool {
	return s == 0
}

// Names returns the effect names in bit order.
func (s EffectSet) Names() []string {
	var names []string
	for _, e := range effectNames {
		if s.Has(e.effect) {
			names = append(names, e.name)
		}
	}
	return names
}

func (s EffectSet) String() string {
	if s.IsPure() {
		return "none"
	}
	return strings.Join(s.Names(), "|")
}
