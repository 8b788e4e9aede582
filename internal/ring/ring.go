// Package ring implements the replicated mailbox store used to hold messages
// for peers that are currently offline.
//
// Every node keeps a locally observed, sorted ring of member identifiers. The
// owner of a destination identifier is its ring successor (the smallest member
// that is >= the identifier, wrapping around) and the backup is the member
// right after the owner. A node therefore holds the keys in the cyclic range
// (pred(pred(self)), self]. When membership changes, AddMember and RemoveMember
// compute a Plan describing which entries have to be pushed to which peer so
// that the replication factor of two is restored.
//
// A Store is not safe for concurrent use. It is owned by the daemon dispatch
// loop.
package ring

import (
	"sort"
)

// Entry is one mailbox value. Broadcast marks the ownerless broadcast fallback
// when it travels inside a bootstrap hand-off.
type Entry struct {
	Owner     string
	Payload   string
	Broadcast bool
}

// Plan is a redistribution step: Entries have to be sent to Recipient.
type Plan struct {
	Recipient string
	Entries   []Entry
}

type Store struct {
	self        string
	members     []string
	mailbox     map[string]string
	fallback    string
	hasFallback bool
}

func New(self string) *Store {
	return &Store{
		self:    self,
		members: []string{self},
		mailbox: make(map[string]string),
	}
}

func (s *Store) Self() string {
	return s.self
}

// Members returns a copy of the sorted ring.
func (s *Store) Members() []string {
	out := make([]string, len(s.members))
	copy(out, s.members)
	return out
}

// Len returns the number of explicit mailbox entries.
func (s *Store) Len() int {
	return len(s.mailbox)
}

// ClosestOwners returns the owner of target followed by its backup. The backup
// is omitted when it is the owner itself.
func (s *Store) ClosestOwners(target string) []string {
	return successors(s.members, sort.SearchStrings(s.members, target))
}

// ClosestOther is ClosestOwners over the ring without target. It is used to
// find a live peer to pull from after (re)joining, so the asker is never
// returned. The result is empty when target is the only member.
func (s *Store) ClosestOther(target string) []string {
	others := make([]string, 0, len(s.members))
	for _, m := range s.members {
		if m != target {
			others = append(others, m)
		}
	}
	if len(others) == 0 {
		return nil
	}
	i := sort.Search(len(others), func(j int) bool { return others[j] > target })
	return successors(others, i)
}

func successors(ids []string, i int) []string {
	if i >= len(ids) {
		i = 0
	}
	out := []string{ids[i]}
	if next := ids[(i+1)%len(ids)]; next != out[0] {
		out = append(out, next)
	}
	return out
}

func (s *Store) Store(owner, payload string) {
	s.mailbox[owner] = payload
}

// StoreBroadcast sets the broadcast fallback and overwrites every pending
// mailbox value with it.
func (s *Store) StoreBroadcast(payload string) {
	for owner := range s.mailbox {
		s.mailbox[owner] = payload
	}
	s.fallback = payload
	s.hasFallback = true
}

// AdoptFallback sets the broadcast fallback received in a hand-off. It never
// replaces a fallback that is already held and never touches the mailbox.
func (s *Store) AdoptFallback(payload string) bool {
	if s.hasFallback {
		return false
	}
	s.fallback = payload
	s.hasFallback = true
	return true
}

func (s *Store) Fallback() (string, bool) {
	return s.fallback, s.hasFallback
}

// Get returns the mailbox value for owner, falling back to the last broadcast.
func (s *Store) Get(owner string) (string, bool) {
	if v, ok := s.mailbox[owner]; ok {
		return v, true
	}
	if s.hasFallback {
		return s.fallback, true
	}
	return "", false
}

// Entries returns the explicit mailbox entries sorted by owner.
func (s *Store) Entries() []Entry {
	out := make([]Entry, 0, len(s.mailbox))
	for owner, payload := range s.mailbox {
		out = append(out, Entry{Owner: owner, Payload: payload})
	}
	sortEntries(out)
	return out
}

// EntriesInRange returns the entries whose owner lies in the cyclic half-open
// interval (start, end]. If start >= end the interval wraps past the largest
// identifier; start == end selects the whole ring.
func (s *Store) EntriesInRange(start, end string) []Entry {
	var out []Entry
	for owner, payload := range s.mailbox {
		if InRange(owner, start, end) {
			out = append(out, Entry{Owner: owner, Payload: payload})
		}
	}
	sortEntries(out)
	return out
}

// InRange reports whether key is in the cyclic interval (start, end].
func InRange(key, start, end string) bool {
	if start < end {
		return key > start && key <= end
	}
	return key > start || key <= end
}

// Responsible reports whether the local node is owner or backup for key.
func (s *Store) Responsible(key string) bool {
	if len(s.members) <= 2 {
		return true
	}
	return InRange(key, s.neighbor(-2), s.self)
}

// AddMember inserts peer into the ring. It returns the entries that have to
// be pushed to peer, or nil when the local responsibilities did not change or
// there is nothing to hand off.
func (s *Store) AddMember(peer string) *Plan {
	i := sort.SearchStrings(s.members, peer)
	if i < len(s.members) && s.members[i] == peer {
		return nil
	}
	s.members = append(s.members, "")
	copy(s.members[i+1:], s.members[i:])
	s.members[i] = peer

	if len(s.members) <= 2 {
		// Bootstrap: both members hold everything.
		entries := s.Entries()
		if s.hasFallback {
			entries = append(entries, Entry{Payload: s.fallback, Broadcast: true})
		}
		return newPlan(peer, entries)
	}

	pred, pred2 := s.neighbor(-1), s.neighbor(-2)
	switch peer {
	case pred:
		// peer now owns (pred2, peer] and we back it up, so it gets a copy.
		// What lies before pred2 is no longer ours.
		moved := s.takeOutside(pred2, s.self)
		copied := s.EntriesInRange(pred2, peer)
		return newPlan(peer, append(moved, copied...))
	case pred2:
		return newPlan(peer, s.takeOutside(pred2, s.self))
	default:
		return nil
	}
}

// RemoveMember drops peer from the ring. When peer was a direct neighbour the
// range now owned locally is returned for the (new) successor, which becomes
// its backup. The local identifier is never removed.
func (s *Store) RemoveMember(peer string) *Plan {
	if peer == s.self {
		return nil
	}
	i := sort.SearchStrings(s.members, peer)
	if i >= len(s.members) || s.members[i] != peer {
		return nil
	}
	wasPred := peer == s.neighbor(-1)
	wasSucc := peer == s.neighbor(1)
	s.members = append(s.members[:i], s.members[i+1:]...)

	if len(s.members) == 1 || (!wasPred && !wasSucc) {
		return nil
	}
	succ := s.neighbor(1)
	if len(s.members) == 2 {
		return newPlan(succ, s.Entries())
	}
	return newPlan(succ, s.EntriesInRange(s.neighbor(-1), s.self))
}

// neighbor returns the member k positions away from the local node.
func (s *Store) neighbor(k int) string {
	n := len(s.members)
	i := sort.SearchStrings(s.members, s.self)
	return s.members[((i+k)%n+n)%n]
}

func (s *Store) takeOutside(start, end string) []Entry {
	var out []Entry
	for owner, payload := range s.mailbox {
		if InRange(owner, start, end) {
			continue
		}
		out = append(out, Entry{Owner: owner, Payload: payload})
		delete(s.mailbox, owner)
	}
	sortEntries(out)
	return out
}

func newPlan(recipient string, entries []Entry) *Plan {
	if len(entries) == 0 {
		return nil
	}
	return &Plan{Recipient: recipient, Entries: entries}
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Owner < entries[j].Owner })
}
