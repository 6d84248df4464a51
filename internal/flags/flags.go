// Package flags gates optional console behavior. The set of flags is fixed
// at startup from the config file's flags section.
package flags

import (
	"slices"

	"github.com/watchdesk/watchdesk/internal/log"
)

const (
	// FlagStrictUnitTransitions enables the hardened unit status table
	// (Out of Service may not jump straight to On Scene).
	FlagStrictUnitTransitions = "strict-unit-transitions"

	// FlagAdminCloseAll allows the bulk close action. Officers only see it
	// when this is on; dispatchers and admins always do.
	FlagAdminCloseAll = "admin-close-all"

	// FlagAlertJournal controls whether alerts and assignments are written
	// to the local SQLite journal.
	FlagAlertJournal = "alert-journal"
)

// Definition describes one flag the console understands.
type Definition struct {
	Name    string
	Default bool
	Usage   string
}

// Known lists every flag with its default.
var Known = []Definition{
	{FlagStrictUnitTransitions, false, "reject unit status jumps the dispatch desk does not allow"},
	{FlagAdminCloseAll, false, "offer close all to officers"},
	{FlagAlertJournal, true, "record alerts and assignments in the local journal"},
}

// Registry answers flag lookups. It is never modified after New.
type Registry struct {
	values  map[string]bool
	unknown []string
}

// New resolves configured values over the Known defaults. Names that are
// not Known are kept but reported by Unknown, since they are usually typos.
func New(configured map[string]bool) *Registry {
	r := &Registry{values: make(map[string]bool, len(Known)+len(configured))}
	for _, d := range Known {
		r.values[d.Name] = d.Default
	}
	for name, on := range configured {
		if !isKnown(name) {
			r.unknown = append(r.unknown, name)
		}
		r.values[name] = on
	}
	slices.Sort(r.unknown)

	for _, name := range r.unknown {
		log.Warn(log.CatConfig, "unrecognized feature flag", "flag", name)
	}
	log.Debug(log.CatConfig, "feature flags resolved", "flags", r.values)
	return r
}

func isKnown(name string) bool {
	return slices.ContainsFunc(Known, func(d Definition) bool { return d.Name == name })
}

// Enabled reports whether name is on. Unset unknown names and a nil
// registry read as off.
func (r *Registry) Enabled(name string) bool {
	if r == nil {
		return false
	}
	return r.values[name]
}

// Unknown returns the configured names that no Known flag matches, sorted.
func (r *Registry) Unknown() []string {
	if r == nil {
		return nil
	}
	return slices.Clone(r.unknown)
}

// All returns a copy of every resolved value.
func (r *Registry) All() map[string]bool {
	out := make(map[string]bool)
	if r == nil {
		return out
	}
	for k, v := range r.values {
		out[k] = v
	}
	return out
}
