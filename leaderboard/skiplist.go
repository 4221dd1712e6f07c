package leaderboard

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
	"sync"

	"scoreboard/core"
)

// A skip list keyed by (score desc, seq asc) to achieve O(log n) updates.
// seq grows on every write, so among equal scores whoever got there first ranks first.

const maxLevel = 16
const pFactor = 0.25

type item struct {
	player core.PlayerID
	score  float64
	seq    uint64
}

type node struct {
	it   item
	next [maxLevel]*node
}

// SkipList is a concurrent ordered score set. The zero value is not usable; call NewSkipList.
type SkipList struct {
	mu       sync.RWMutex
	head     *node
	lvl      int
	seq      uint64
	byPlayer map[core.PlayerID]*node
	rng      *rand.Rand
}

func NewSkipList() *SkipList {
	// Use crypto/rand to generate a secure seed for PCG
	var seed [16]byte
	if _, err := cryptorand.Read(seed[:]); err != nil {
		seed = [16]byte{}
	}
	seed1 := binary.BigEndian.Uint64(seed[:8])
	seed2 := binary.BigEndian.Uint64(seed[8:])

	return &SkipList{
		head:     &node{},
		lvl:      1,
		byPlayer: map[core.PlayerID]*node{},
		rng:      rand.New(rand.NewPCG(seed1, seed2)),
	}
}

func (s *SkipList) randomLevel() int {
	lvl := 1
	for lvl < maxLevel && s.rng.Float64() < pFactor {
		lvl++
	}
	return lvl
}

func less(a, b item) bool {
	if a.score == b.score {
		return a.seq < b.seq
	}
	return a.score > b.score // higher score first
}

// UpdateIfGreater stores score for player when the player is unknown or score beats the
// stored value. The comparison and the write happen under one lock.
func (s *SkipList) UpdateIfGreater(player core.PlayerID, score float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.byPlayer[player]; ok {
		if score <= old.it.score {
			return false
		}
		s.removeLocked(old.it)
	}
	s.insertLocked(player, score)
	return true
}

func (s *SkipList) insertLocked(player core.PlayerID, score float64) {
	s.seq++
	it := item{player: player, score: score, seq: s.seq}
	update := [maxLevel]*node{}
	cur := s.head
	for i := s.lvl - 1; i >= 0; i-- {
		for cur.next[i] != nil && less(cur.next[i].it, it) {
			cur = cur.next[i]
		}
		update[i] = cur
	}
	lvl := s.randomLevel()
	if lvl > s.lvl {
		for i := s.lvl; i < lvl; i++ {
			update[i] = s.head
		}
		s.lvl = lvl
	}
	n := &node{it: it}
	for i := 0; i < lvl; i++ {
		n.next[i] = update[i].next[i]
		update[i].next[i] = n
	}
	s.byPlayer[player] = n
}

func (s *SkipList) removeLocked(it item) {
	update := [maxLevel]*node{}
	cur := s.head
	for i := s.lvl - 1; i >= 0; i-- {
		for cur.next[i] != nil && less(cur.next[i].it, it) {
			cur = cur.next[i]
		}
		update[i] = cur
	}
	target := update[0].next[0]
	if target == nil || target.it.player != it.player {
		return
	}
	for i := 0; i < s.lvl; i++ {
		if update[i].next[i] == target {
			update[i].next[i] = target.next[i]
		}
	}
	delete(s.byPlayer, it.player)
	for s.lvl > 1 && s.head.next[s.lvl-1] == nil {
		s.lvl--
	}
}

func (s *SkipList) TopN(n int) []core.ScoreEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 {
		return []core.ScoreEntry{}
	}
	if n > len(s.byPlayer) {
		n = len(s.byPlayer)
	}
	out := make([]core.ScoreEntry, 0, n)
	cur := s.head.next[0]
	for cur != nil && len(out) < n {
		out = append(out, core.ScoreEntry{Player: cur.it.player, Score: cur.it.score})
		cur = cur.next[0]
	}
	return out
}

// Len reports the number of players tracked.
func (s *SkipList) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byPlayer)
}
