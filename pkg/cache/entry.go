package cache

import (
	"time"
)

// entry is one cached value linked into the coordinator's recency list
// (head = most recently used, tail = least recently used).
type entry[K comparable, V any] struct {
	key K
	val V

	cost       int64
	lastAccess time.Time
	cachedAt   time.Time

	prev *entry[K, V]
	next *entry[K, V]
}

// lruList is an intrusive doubly linked list. It is not safe for
// concurrent use; the coordinator guards it with its lock.
type lruList[K comparable, V any] struct {
	head *entry[K, V]
	tail *entry[K, V]
	len  int
	cost int64
}

// pushFront inserts e as the most recently used entry.
func (l *lruList[K, V]) pushFront(e *entry[K, V]) {
	e.prev = nil
	e.next = l.head
	if l.head != nil {
		l.head.prev = e
	}
	l.head = e
	if l.tail == nil {
		l.tail = e
	}
	l.len++
	l.cost += e.cost
}

// moveToFront promotes e to most recently used.
func (l *lruList[K, V]) moveToFront(e *entry[K, V]) {
	if e == l.head {
		return
	}
	l.unlink(e)
	e.next = l.head
	if l.head != nil {
		l.head.prev = e
	}
	l.head = e
	if l.tail == nil {
		l.tail = e
	}
}

// remove detaches e and updates counters.
func (l *lruList[K, V]) remove(e *entry[K, V]) {
	l.unlink(e)
	l.len--
	l.cost -= e.cost
	if l.cost < 0 {
		l.cost = 0
	}
}

func (l *lruList[K, V]) unlink(e *entry[K, V]) {
	if e.prev != nil {
		e.prev.next = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	}
	if l.head == e {
		l.head = e.next
	}
	if l.tail == e {
		l.tail = e.prev
	}
	e.prev, e.next = nil, nil
}

// back returns the least recently used entry, or nil.
func (l *lruList[K, V]) back() *entry[K, V] {
	return l.tail
}
