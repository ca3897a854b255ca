package vault

import "fmt"

// queueStore is the indexed backing store for the redemption queue. Entries
// live at monotonically growing indices; head and tail are cursors into
// that index space, so push and pop never shift elements.
type queueStore interface {
	QueueHead() (uint64, error)
	QueueTail() (uint64, error)
	SetQueueHead(head uint64) error
	SetQueueTail(tail uint64) error
	QueueEntry(index uint64) (*QueueEntry, bool, error)
	PutQueueEntry(index uint64, entry *QueueEntry) error
	DeleteQueueEntry(index uint64) error
}

// RedemptionQueue is the FIFO sequence of unpaid redemption remainders.
// Strict head-first ordering is the fairness contract: no entry is ever
// paid while an earlier entry remains unpaid.
type RedemptionQueue struct {
	store queueStore
}

// NewRedemptionQueue binds a queue to its backing store.
func NewRedemptionQueue(store queueStore) *RedemptionQueue {
	return &RedemptionQueue{store: store}
}

func (q *RedemptionQueue) cursors() (head, tail uint64, err error) {
	head, err = q.store.QueueHead()
	if err != nil {
		return 0, 0, err
	}
	tail, err = q.store.QueueTail()
	if err != nil {
		return 0, 0, err
	}
	return head, tail, nil
}

// Len reports the number of queued entries.
func (q *RedemptionQueue) Len() (uint64, error) {
	head, tail, err := q.cursors()
	if err != nil {
		return 0, err
	}
	return tail - head, nil
}

// Empty reports whether no entries are queued.
func (q *RedemptionQueue) Empty() (bool, error) {
	length, err := q.Len()
	if err != nil {
		return false, err
	}
	return length == 0, nil
}

// PushBack appends an entry at the tail.
func (q *RedemptionQueue) PushBack(entry *QueueEntry) error {
	_, tail, err := q.cursors()
	if err != nil {
		return err
	}
	if err := q.store.PutQueueEntry(tail, entry.Copy()); err != nil {
		return err
	}
	return q.store.SetQueueTail(tail + 1)
}

// Front returns the head entry without removing it.
func (q *RedemptionQueue) Front() (*QueueEntry, error) {
	head, tail, err := q.cursors()
	if err != nil {
		return nil, err
	}
	if head == tail {
		return nil, ErrQueueEmpty
	}
	entry, ok, err := q.store.QueueEntry(head)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: index %d", errQueueCorrupt, head)
	}
	return entry, nil
}

// PopFront removes and returns the head entry.
func (q *RedemptionQueue) PopFront() (*QueueEntry, error) {
	head, tail, err := q.cursors()
	if err != nil {
		return nil, err
	}
	if head == tail {
		return nil, ErrQueueEmpty
	}
	entry, ok, err := q.store.QueueEntry(head)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: index %d", errQueueCorrupt, head)
	}
	if err := q.store.DeleteQueueEntry(head); err != nil {
		return nil, err
	}
	if err := q.store.SetQueueHead(head + 1); err != nil {
		return nil, err
	}
	return entry, nil
}

// At returns the entry at position i measured from the head.
func (q *RedemptionQueue) At(i uint64) (*QueueEntry, error) {
	head, tail, err := q.cursors()
	if err != nil {
		return nil, err
	}
	if head+i >= tail {
		return nil, fmt.Errorf("%w: position %d of %d", errQueueIndex, i, tail-head)
	}
	entry, ok, err := q.store.QueueEntry(head + i)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: index %d", errQueueCorrupt, head+i)
	}
	return entry, nil
}
