package vault

import (
	"errors"
	"math/big"
	"testing"

	"fundvault/crypto"
)

type mockQueueStore struct {
	head, tail uint64
	entries    map[uint64]*QueueEntry
}

func newMockQueueStore() *mockQueueStore {
	return &mockQueueStore{entries: make(map[uint64]*QueueEntry)}
}

func (m *mockQueueStore) QueueHead() (uint64, error)     { return m.head, nil }
func (m *mockQueueStore) QueueTail() (uint64, error)     { return m.tail, nil }
func (m *mockQueueStore) SetQueueHead(head uint64) error { m.head = head; return nil }
func (m *mockQueueStore) SetQueueTail(tail uint64) error { m.tail = tail; return nil }

func (m *mockQueueStore) QueueEntry(index uint64) (*QueueEntry, bool, error) {
	entry, ok := m.entries[index]
	if !ok {
		return nil, false, nil
	}
	return entry.Copy(), true, nil
}

func (m *mockQueueStore) PutQueueEntry(index uint64, entry *QueueEntry) error {
	m.entries[index] = entry.Copy()
	return nil
}

func (m *mockQueueStore) DeleteQueueEntry(index uint64) error {
	delete(m.entries, index)
	return nil
}

func queueAddr(b byte) crypto.Address {
	var raw [20]byte
	raw[19] = b
	return crypto.NewAddress(crypto.FundPrefix, raw[:])
}

func TestQueueFIFOOrdering(t *testing.T) {
	queue := NewRedemptionQueue(newMockQueueStore())
	for i := byte(1); i <= 3; i++ {
		entry := &QueueEntry{Investor: queueAddr(i), Shares: big.NewInt(int64(i) * 100)}
		if err := queue.PushBack(entry); err != nil {
			t.Fatalf("push: %v", err)
		}
	}
	length, err := queue.Len()
	if err != nil {
		t.Fatalf("len: %v", err)
	}
	if length != 3 {
		t.Fatalf("expected length 3, got %d", length)
	}
	for i := byte(1); i <= 3; i++ {
		front, err := queue.Front()
		if err != nil {
			t.Fatalf("front: %v", err)
		}
		if !front.Investor.Equal(queueAddr(i)) {
			t.Fatalf("front out of order at %d", i)
		}
		popped, err := queue.PopFront()
		if err != nil {
			t.Fatalf("pop: %v", err)
		}
		if popped.Shares.Cmp(big.NewInt(int64(i)*100)) != 0 {
			t.Fatalf("popped wrong entry: %s", popped.Shares)
		}
	}
	empty, err := queue.Empty()
	if err != nil {
		t.Fatalf("empty: %v", err)
	}
	if !empty {
		t.Fatal("queue should be empty")
	}
	if _, err := queue.PopFront(); !errors.Is(err, ErrQueueEmpty) {
		t.Fatalf("expected ErrQueueEmpty, got %v", err)
	}
}

func TestQueueRandomAccess(t *testing.T) {
	queue := NewRedemptionQueue(newMockQueueStore())
	for i := byte(1); i <= 4; i++ {
		if err := queue.PushBack(&QueueEntry{Investor: queueAddr(i), Shares: big.NewInt(int64(i))}); err != nil {
			t.Fatalf("push: %v", err)
		}
	}
	if _, err := queue.PopFront(); err != nil {
		t.Fatalf("pop: %v", err)
	}
	// Index 0 is now the second inserted entry.
	entry, err := queue.At(0)
	if err != nil {
		t.Fatalf("at: %v", err)
	}
	if !entry.Investor.Equal(queueAddr(2)) {
		t.Fatal("At(0) should return the current head")
	}
	entry, err = queue.At(2)
	if err != nil {
		t.Fatalf("at: %v", err)
	}
	if !entry.Investor.Equal(queueAddr(4)) {
		t.Fatal("At(2) should return the last entry")
	}
	if _, err := queue.At(3); err == nil {
		t.Fatal("out of range access should fail")
	}
}
