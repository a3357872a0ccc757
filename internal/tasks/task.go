package tasks

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// MaxTaskTitleLength bounds a task title.
const MaxTaskTitleLength = 256

// Status is a task's lifecycle state. Deleted is a soft status change,
// never a hard erase -- deleted tasks stay in full-state snapshots so
// convergence is preserved across peers that did not see the deletion.
type Status int

const (
	StatusOpen Status = iota
	StatusInProgress
	StatusCompleted
	StatusDeleted
)

func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusInProgress:
		return "in_progress"
	case StatusCompleted:
		return "completed"
	case StatusDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Task is a room's shared CRDT task. Assignee is represented as an LWW
// register over a string, empty meaning unassigned.
type Task struct {
	ID        uuid.UUID
	RoomID    uuid.UUID
	Title     LWW[string]
	Status    LWW[Status]
	Assignee  LWW[string]
	CreatedAt uint64
	CreatedBy string
}

// Field identifies which LWW register a FieldUpdate carries.
type Field int

const (
	FieldTitle Field = iota
	FieldStatus
	FieldAssignee
)

// SyncKind tags a TaskSyncMessage's active variant.
type SyncKind int

const (
	SyncKindFieldUpdate SyncKind = iota
	SyncKindFullState
	SyncKindRequestFullState
)

// SyncMessage is produced by every task mutation for broadcast.
type SyncMessage struct {
	Kind SyncKind

	// FieldUpdate
	TaskID uuid.UUID
	RoomID uuid.UUID
	Field  Field

	// FieldUpdate payload (only one is meaningful, selected by Field)
	TitleUpdate    LWW[string]
	StatusUpdate   LWW[Status]
	AssigneeUpdate LWW[string]

	// FullState
	Tasks []Task
}

// ValidateTitle enforces the non-empty, <=256-char invariant.
func ValidateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("tasks: title must not be empty")
	}
	if len(title) > MaxTaskTitleLength {
		return fmt.Errorf("tasks: title exceeds %d characters", MaxTaskTitleLength)
	}
	return nil
}

// mergeTask field-wise merges two versions of the same task via LWW on
// every field independently.
func mergeTask(a, b Task) Task {
	return Task{
		ID:        a.ID,
		RoomID:    a.RoomID,
		Title:     MergeLWW(a.Title, b.Title),
		Status:    MergeLWW(a.Status, b.Status),
		Assignee:  MergeLWW(a.Assignee, b.Assignee),
		CreatedAt: a.CreatedAt,
		CreatedBy: a.CreatedBy,
	}
}

// mergeTaskList merges a remote task list into local, field-wise for
// shared IDs and add-wins (the remote copy is kept as-is) for IDs the
// local map does not yet know about.
func mergeTaskList(local map[uuid.UUID]Task, remote []Task) map[uuid.UUID]Task {
	for _, rt := range remote {
		if lt, ok := local[rt.ID]; ok {
			local[rt.ID] = mergeTask(lt, rt)
		} else {
			local[rt.ID] = rt
		}
	}
	return local
}

// sortByCreatedAt returns tasks sorted by CreatedAt ascending.
func sortByCreatedAt(tasks []Task) []Task {
	out := append([]Task(nil), tasks...)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out
}
