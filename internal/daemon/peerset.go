package daemon

import "slices"

// peerSet is an insertion ordered set of identifiers or addresses.
type peerSet struct {
	items []string
}

func (s *peerSet) add(v string) bool {
	if v == "" || s.has(v) {
		return false
	}
	s.items = append(s.items, v)
	return true
}

func (s *peerSet) remove(v string) {
	s.items = slices.DeleteFunc(s.items, func(x string) bool { return x == v })
}

func (s *peerSet) has(v string) bool {
	return slices.Contains(s.items, v)
}

func (s *peerSet) len() int {
	return len(s.items)
}

func (s *peerSet) list() []string {
	return slices.Clone(s.items)
}

// aliasTable binds aliases to identifiers, first claim wins. Each identifier
// holds at most one alias.
type aliasTable struct {
	owner map[string]string
	alias map[string]string
}

func newAliasTable() *aliasTable {
	return &aliasTable{
		owner: make(map[string]string),
		alias: make(map[string]string),
	}
}

// claim binds alias to peer, dropping the previous alias of peer. It fails if
// another peer holds alias.
func (t *aliasTable) claim(peer, alias string) bool {
	if peer == "" || alias == "" {
		return false
	}
	if cur, ok := t.owner[alias]; ok {
		return cur == peer
	}
	if prev, ok := t.alias[peer]; ok {
		delete(t.owner, prev)
	}
	t.owner[alias] = peer
	t.alias[peer] = alias
	return true
}

// resolve returns the identifier bound to name, or name itself.
func (t *aliasTable) resolve(name string) string {
	if peer, ok := t.owner[name]; ok {
		return peer
	}
	return name
}

func (t *aliasTable) snapshot() map[string]string {
	out := make(map[string]string, len(t.owner))
	for a, p := range t.owner {
		out[a] = p
	}
	return out
}

// sorted returns (alias, peer) pairs ordered by alias.
func (t *aliasTable) sorted() [][2]string {
	names := make([]string, 0, len(t.owner))
	for a := range t.owner {
		names = append(names, a)
	}
	slices.Sort(names)
	out := make([][2]string, 0, len(names))
	for _, a := range names {
		out = append(out, [2]string{a, t.owner[a]})
	}
	return out
}
