package memtable

import (
	"iter"
	"math/rand"

	"github.com/flashlog/flashlog/internal/record"
)

const maxLevel = 32

type skipListNode struct {
	key     string
	rec     record.Record
	forward []*skipListNode
}

func newSkipListNode(key string, rec record.Record, levels int) *skipListNode {
	return &skipListNode{
		key:     key,
		rec:     rec,
		forward: make([]*skipListNode, levels+1),
	}
}

// skipList is an ordered, in-place-updating map from string key to Record,
// the structure backing MemTable. It is the teacher's generic
// memtable.SkipList monomorphized to the concrete key/value pair this
// store needs (spec.md §4.5).
type skipList struct {
	head   *skipListNode
	levels int
	size   int
}

func newSkipList() *skipList {
	return &skipList{
		head:   newSkipListNode("", record.Record{}, 0),
		levels: -1,
	}
}

func (sl *skipList) get(key string) (record.Record, bool) {
	curr := sl.head

	for level := sl.levels; level >= 0; level-- {
		for {
			next := curr.forward[level]
			if next == nil || next.key > key {
				break
			}
			if next.key == key {
				return next.rec, true
			}
			curr = next
		}
	}

	return record.Record{}, false
}

func getRandomLevel() int {
	level := 0
	for rand.Int31()&1 == 0 && level < maxLevel {
		level++
	}
	return level
}

func (sl *skipList) adjustLevels(level int) {
	prev := sl.head.forward
	sl.head = newSkipListNode("", record.Record{}, level)
	sl.levels = level
	copy(sl.head.forward, prev)
}

// put inserts or overwrites the record for key, returning the previous
// record (if any) so MemTable can adjust its size counter.
func (sl *skipList) put(key string, rec record.Record) (prev record.Record, existed bool) {
	newLevel := getRandomLevel()
	if newLevel > sl.levels {
		sl.adjustLevels(newLevel)
	}

	updates := make([]*skipListNode, sl.levels+1)
	x := sl.head

	for level := sl.levels; level >= 0; level-- {
		for x.forward[level] != nil && x.forward[level].key < key {
			x = x.forward[level]
		}
		updates[level] = x
	}

	if x.forward[0] != nil && x.forward[0].key == key {
		prev = x.forward[0].rec
		x.forward[0].rec = rec
		return prev, true
	}

	newNode := newSkipListNode(key, rec, newLevel)
	for level := 0; level <= newLevel; level++ {
		newNode.forward[level] = updates[level].forward[level]
		updates[level].forward[level] = newNode
	}

	sl.size++
	return record.Record{}, false
}

func (sl *skipList) iterator() iter.Seq2[string, record.Record] {
	return func(yield func(string, record.Record) bool) {
		curr := sl.head.forward[0]
		for curr != nil {
			if !yield(curr.key, curr.rec) {
				return
			}
			curr = curr.forward[0]
		}
	}
}

func (sl *skipList) len() int { return sl.size }
