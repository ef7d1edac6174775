package pack

import (
	"slices"
	"strings"
	"time"
)

// Actor identifies who packaged a release.
type Actor struct {
	// Hostname is the machine the archive was produced on.
	Hostname string `yaml:"hostname"`
	// Username is the system user who ran the packager.
	Username string `yaml:"username"`
}

// String returns "username@hostname".
func (a *Actor) String() string {
	if a == nil {
		return ""
	}

	return a.Username + "@" + a.Hostname
}

// Clone returns a deep copy of the actor.
func (a *Actor) Clone() *Actor {
	if a == nil {
		return nil
	}

	cloned := *a

	return &cloned
}

// Release records one archive produced for a (template, label) pair.
type Release struct {
	Template    string    `yaml:"template"`
	Platform    Platform  `yaml:"platform"`
	Label       string    `yaml:"label"`
	Archive     string    `yaml:"archive"`
	Checksum    string    `yaml:"checksum"`
	Digest      string    `yaml:"digest"`
	StageDigest string    `yaml:"stage_digest"`
	Size        int64     `yaml:"size"`
	Files       int       `yaml:"files"`
	Actor       *Actor    `yaml:"actor,omitempty"`
	PackagedAt  time.Time `yaml:"packaged_at"`
	Version     string    `yaml:"version"`
}

// Key identifies the release slot the entry occupies.
func (r *Release) Key() string {
	return r.Template + "/" + r.Label
}

// Clone returns a copy of the release to avoid leaking internal references.
func (r *Release) Clone() *Release {
	cloned := *r
	cloned.Actor = r.Actor.Clone()

	return &cloned
}

// Manifest lists the archives currently present in the output directory.
type Manifest struct {
	// Releases is kept sorted by template, then label.
	Releases []*Release `yaml:"releases"`
}

// Put inserts or replaces the release for its (template, label) pair.
func (m *Manifest) Put(r *Release) {
	idx := slices.IndexFunc(m.Releases, func(existing *Release) bool {
		return existing.Key() == r.Key()
	})
	if idx >= 0 {
		m.Releases[idx] = r.Clone()

		return
	}

	m.Releases = append(m.Releases, r.Clone())
	slices.SortFunc(m.Releases, func(a, b *Release) int {
		return strings.Compare(a.Key(), b.Key())
	})
}

// Remove deletes the entry for (template, label) and reports whether it existed.
func (m *Manifest) Remove(template, label string) bool {
	before := len(m.Releases)
	m.Releases = slices.DeleteFunc(m.Releases, func(r *Release) bool {
		return r.Template == template && r.Label == label
	})

	return len(m.Releases) != before
}

// Find returns a copy of the entry for (template, label), or nil.
func (m *Manifest) Find(template, label string) *Release {
	for _, r := range m.Releases {
		if r.Template == template && r.Label == label {
			return r.Clone()
		}
	}

	return nil
}
