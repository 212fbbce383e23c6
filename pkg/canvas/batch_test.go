package canvas

import (
	"fmt"
	"testing"

	"github.com/Scofieldfree/excalidraw-mcp/pkg/scene"
)

func testSkeletons(n int) []*scene.Element {
	els := make([]*scene.Element, n)
	for i := range els {
		els[i] = &scene.Element{
			ID:   fmt.Sprintf("el-%d", i),
			Type: scene.TypeRectangle,
		}
	}
	return els
}

func TestBatchLedgerAddAndAck(t *testing.T) {
	l := newBatchLedger(10, testLogger())

	b1 := l.add("s1", testSkeletons(2))
	b2 := l.add("s1", testSkeletons(1))

	if b1.ID == "" || b2.ID == "" || b1.ID == b2.ID {
		t.Fatalf("batch ids: %q, %q", b1.ID, b2.ID)
	}

	pending := l.unsynced("s1")
	if len(pending) != 2 || pending[0].ID != b1.ID || pending[1].ID != b2.ID {
		t.Fatalf("unsynced order wrong: %v", pending)
	}

	if !l.markSynced("s1", b1.ID) {
		t.Fatal("markSynced returned false for a pending batch")
	}
	if l.markSynced("s1", b1.ID) {
		t.Fatal("markSynced succeeded twice for one batch")
	}
	if l.markSynced("s1", "") {
		t.Fatal("markSynced succeeded for empty id")
	}
	if l.markSynced("s1", "missing") {
		t.Fatal("markSynced succeeded for unknown id")
	}

	pending = l.unsynced("s1")
	if len(pending) != 1 || pending[0].ID != b2.ID {
		t.Fatalf("unsynced after ack: %v", pending)
	}
}

func TestBatchLedgerPruneSyncedFirst(t *testing.T) {
	l := newBatchLedger(3, testLogger())

	b1 := l.add("s1", testSkeletons(1))
	b2 := l.add("s1", testSkeletons(1))
	b3 := l.add("s1", testSkeletons(1))
	l.markSynced("s1", b2.ID)

	// At capacity: the next add evicts the oldest synced batch, not the
	// oldest overall.
	b4 := l.add("s1", testSkeletons(1))

	ids := make(map[string]bool)
	for _, b := range l.unsynced("s1") {
		ids[b.ID] = true
	}
	if !ids[b1.ID] || !ids[b3.ID] || !ids[b4.ID] {
		t.Fatalf("unsynced survivors = %v, want b1,b3,b4", ids)
	}
	if l.count("s1") != 3 {
		t.Fatalf("count = %d, want 3", l.count("s1"))
	}
}

func TestBatchLedgerPruneOldestWhenAllUnsynced(t *testing.T) {
	l := newBatchLedger(2, testLogger())

	b1 := l.add("s1", testSkeletons(1))
	b2 := l.add("s1", testSkeletons(1))
	b3 := l.add("s1", testSkeletons(1))

	pending := l.unsynced("s1")
	if len(pending) != 2 {
		t.Fatalf("count = %d, want 2", len(pending))
	}
	if pending[0].ID != b2.ID || pending[1].ID != b3.ID {
		t.Fatalf("survivors = %s,%s, want %s,%s", pending[0].ID, pending[1].ID, b2.ID, b3.ID)
	}
	_ = b1
}

func TestBatchLedgerDrop(t *testing.T) {
	l := newBatchLedger(10, testLogger())

	l.add("s1", testSkeletons(1))
	l.add("s2", testSkeletons(1))

	l.drop("s1")
	if l.count("s1") != 0 {
		t.Fatalf("count(s1) = %d after drop", l.count("s1"))
	}
	if l.count("s2") != 1 {
		t.Fatalf("count(s2) = %d, drop leaked across sessions", l.count("s2"))
	}
}
