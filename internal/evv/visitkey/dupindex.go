package visitkey

import "sync"

// DuplicateIndex groups record identifiers under their visit key hash so
// repeated captures of the same visit surface before submission.
type DuplicateIndex struct {
	mu     sync.Mutex
	groups map[string]*group
}

type group struct {
	key     string
	members []string
}

func NewDuplicateIndex() *DuplicateIndex {
	return &DuplicateIndex{groups: make(map[string]*group)}
}

// Add records a member under the original (unversioned) form of key, so a
// correction groups with the visit it corrects.
func (d *DuplicateIndex) Add(key, memberID string) {
	base := Original(key)
	h := Hash(base)

	d.mu.Lock()
	defer d.mu.Unlock()
	g := d.groups[h]
	if g == nil {
		g = &group{key: base}
		d.groups[h] = g
	}
	g.members = append(g.members, memberID)
}

// Members returns every member recorded under key, in insertion order.
func (d *DuplicateIndex) Members(key string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	g := d.groups[Hash(Original(key))]
	if g == nil {
		return nil
	}
	out := make([]string, len(g.members))
	copy(out, g.members)
	return out
}

// Duplicates returns the groups holding more than one member, keyed by the
// original visit key.
func (d *DuplicateIndex) Duplicates() map[string][]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string][]string)
	for _, g := range d.groups {
		if len(g.members) > 1 {
			members := make([]string, len(g.members))
			copy(members, g.members)
			out[g.key] = members
		}
	}
	return out
}
