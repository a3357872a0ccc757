package tasks

import (
	"testing"

	"github.com/google/uuid"
)

func TestMergeLWWCommutative(t *testing.T) {
	a := NewLWW("x", 1, "alice")
	b := NewLWW("y", 2, "bob")
	if MergeLWW(a, b) != MergeLWW(b, a) {
		t.Fatal("merge should be commutative")
	}
}

func TestMergeLWWAssociative(t *testing.T) {
	a := NewLWW("x", 1, "alice")
	b := NewLWW("y", 2, "bob")
	c := NewLWW("z", 2, "carol")
	left := MergeLWW(MergeLWW(a, b), c)
	right := MergeLWW(a, MergeLWW(b, c))
	if left != right {
		t.Fatalf("merge should be associative: left=%+v right=%+v", left, right)
	}
}

func TestMergeLWWIdempotent(t *testing.T) {
	a := NewLWW("x", 1, "alice")
	if MergeLWW(a, a) != a {
		t.Fatal("merge should be idempotent")
	}
}

func TestMergeLWWTimestampTiebreak(t *testing.T) {
	older := NewLWW("old", 1, "alice")
	newer := NewLWW("new", 2, "alice")
	if got := MergeLWW(older, newer); got != newer {
		t.Fatalf("higher timestamp should win, got %+v", got)
	}
}

func TestMergeLWWAuthorTiebreakOnEqualTimestamp(t *testing.T) {
	a := NewLWW("a-value", 5, "alice")
	b := NewLWW("b-value", 5, "bob")
	got := MergeLWW(a, b)
	if got.Author != "bob" {
		t.Fatalf("lexicographically greater author should win on tie, got %+v", got)
	}
}

func fixedClock(ts uint64) func() uint64 {
	return func() uint64 { return ts }
}

func TestTaskConvergenceAfterBidirectionalFullStateExchange(t *testing.T) {
	roomID := uuid.Must(uuid.NewV7())

	alice := NewManager(roomID, "alice", fixedClock(1))
	task, _, err := alice.CreateTask("x")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	bob := NewManager(roomID, "bob", fixedClock(2))
	bob.ApplyRemote(alice.BuildFullState())
	if _, err := bob.UpdateStatus(task.ID, StatusCompleted); err != nil {
		t.Fatalf("bob update: %v", err)
	}

	// Exchange full-state snapshots in both orders; both must converge.
	aliceState := alice.BuildFullState()
	bobState := bob.BuildFullState()

	alice.ApplyRemote(bobState)
	bob.ApplyRemote(aliceState)

	aliceTasks := alice.GetTasks()
	bobTasks := bob.GetTasks()
	if len(aliceTasks) != 1 || len(bobTasks) != 1 {
		t.Fatalf("expected one task on each side, got alice=%d bob=%d", len(aliceTasks), len(bobTasks))
	}
	if aliceTasks[0].Title.Value != "x" || aliceTasks[0].Status.Value != StatusCompleted {
		t.Fatalf("alice did not converge: %+v", aliceTasks[0])
	}
	if bobTasks[0].Title.Value != "x" || bobTasks[0].Status.Value != StatusCompleted {
		t.Fatalf("bob did not converge: %+v", bobTasks[0])
	}
}

func TestDeletedTaskHiddenFromListButKeptInFullState(t *testing.T) {
	roomID := uuid.Must(uuid.NewV7())
	m := NewManager(roomID, "alice", fixedClock(1))
	task, _, _ := m.CreateTask("to delete")
	if _, err := m.DeleteTask(task.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if len(m.GetTasks()) != 0 {
		t.Fatal("deleted task should be hidden from GetTasks")
	}
	full := m.BuildFullState()
	if len(full.Tasks) != 1 {
		t.Fatal("deleted task should still appear in full-state snapshots")
	}
}

func TestApplyRemoteFieldUpdateOnUnknownTaskCreatesStub(t *testing.T) {
	roomID := uuid.Must(uuid.NewV7())
	m := NewManager(roomID, "alice", fixedClock(1))

	unknownID := uuid.Must(uuid.NewV7())
	m.ApplyRemote(SyncMessage{
		Kind:         SyncKindFieldUpdate,
		TaskID:       unknownID,
		RoomID:       roomID,
		Field:        FieldStatus,
		StatusUpdate: NewLWW(StatusInProgress, 5, "bob"),
	})

	full := m.BuildFullState()
	if len(full.Tasks) != 1 || full.Tasks[0].Status.Value != StatusInProgress {
		t.Fatalf("expected stub task retained with applied update, got %+v", full.Tasks)
	}
}

func TestCreateTaskRejectsEmptyAndOversizedTitle(t *testing.T) {
	roomID := uuid.Must(uuid.NewV7())
	m := NewManager(roomID, "alice", fixedClock(1))

	if _, _, err := m.CreateTask(""); err == nil {
		t.Fatal("expected error for empty title")
	}
	big := make([]byte, MaxTaskTitleLength+1)
	if _, _, err := m.CreateTask(string(big)); err == nil {
		t.Fatal("expected error for oversized title")
	}
}
