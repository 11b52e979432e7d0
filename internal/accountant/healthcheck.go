package accountant

import (
	"fmt"
	"sort"
)

// SkipFlag identifies an armed one-shot bypass.
type SkipFlag struct {
	Vault    Identity `json:"vault"`
	Strategy Identity `json:"strategy"`
}

// HealthCheckGate holds one-shot skip flags keyed (vault, strategy).
// An armed flag suppresses the bound check for exactly the next report of
// that pair. Not thread-safe — the engine serializes all access.
//
// The read and the reset are two halves of one report call: armed() is
// consulted during the check, clear() runs only when the report commits.
// A report that aborts leaves the flag armed, matching the all-or-nothing
// call semantics.
type HealthCheckGate struct {
	flags map[string]bool
}

func NewHealthCheckGate() *HealthCheckGate {
	return &HealthCheckGate{flags: make(map[string]bool)}
}

func pairKey(vault, strategy Identity) string {
	return fmt.Sprintf("%s:%s", vault, strategy)
}

func (g *HealthCheckGate) arm(vault, strategy Identity) {
	g.flags[pairKey(vault, strategy)] = true
}

func (g *HealthCheckGate) armed(vault, strategy Identity) bool {
	return g.flags[pairKey(vault, strategy)]
}

// clear resets the flag unconditionally. Called once per committed report
// regardless of branch taken, so one arming never buys more than one bypass.
func (g *HealthCheckGate) clear(vault, strategy Identity) {
	delete(g.flags, pairKey(vault, strategy))
}

// armedFlags returns all armed pairs sorted for deterministic digests.
func (g *HealthCheckGate) armedFlags() []SkipFlag {
	keys := make([]string, 0, len(g.flags))
	for k, set := range g.flags {
		if set {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	flags := make([]SkipFlag, 0, len(keys))
	for _, k := range keys {
		var f SkipFlag
		for i := 0; i < len(k); i++ {
			if k[i] == ':' {
				f.Vault = Identity(k[:i])
				f.Strategy = Identity(k[i+1:])
				break
			}
		}
		flags = append(flags, f)
	}
	return flags
}

func (g *HealthCheckGate) restore(flags []SkipFlag) {
	g.flags = make(map[string]bool, len(flags))
	for _, f := range flags {
		g.flags[pairKey(f.Vault, f.Strategy)] = true
	}
}
