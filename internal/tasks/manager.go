package tasks

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Manager holds one room's task map and produces SyncMessage values for
// every mutation, to be broadcast by the caller.
type Manager struct {
	roomID       uuid.UUID
	localPeerID  string
	nowMillis    func() uint64

	mu    sync.RWMutex
	tasks map[uuid.UUID]Task
}

// NewManager builds a task manager for one room. nowMillis is injected
// so callers (and tests) control the clock.
func NewManager(roomID uuid.UUID, localPeerID string, nowMillis func() uint64) *Manager {
	return &Manager{roomID: roomID, localPeerID: localPeerID, nowMillis: nowMillis, tasks: make(map[uuid.UUID]Task)}
}

// CreateTask validates title, builds a Task with every LWW field
// stamped (now, localPeerID), status Open, and returns a single-task
// FullState sync message (single-task FullState implements add-wins
// creation).
func (m *Manager) CreateTask(title string) (Task, SyncMessage, error) {
	if err := ValidateTitle(title); err != nil {
		return Task{}, SyncMessage{}, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return Task{}, SyncMessage{}, fmt.Errorf("tasks: generate task id: %w", err)
	}
	now := m.nowMillis()

	t := Task{
		ID:        id,
		RoomID:    m.roomID,
		Title:     NewLWW(title, now, m.localPeerID),
		Status:    NewLWW(StatusOpen, now, m.localPeerID),
		Assignee:  NewLWW("", now, m.localPeerID),
		CreatedAt: now,
		CreatedBy: m.localPeerID,
	}

	m.mu.Lock()
	m.tasks[id] = t
	m.mu.Unlock()

	return t, SyncMessage{Kind: SyncKindFullState, RoomID: m.roomID, Tasks: []Task{t}}, nil
}

// UpdateStatus stamps a fresh LWW register and overwrites the local
// task's status, returning a FieldUpdate sync message.
func (m *Manager) UpdateStatus(taskID uuid.UUID, status Status) (SyncMessage, error) {
	reg := NewLWW(status, m.nowMillis(), m.localPeerID)

	m.mu.Lock()
	t, ok := m.tasks[taskID]
	if !ok {
		m.mu.Unlock()
		return SyncMessage{}, fmt.Errorf("tasks: unknown task %s", taskID)
	}
	t.Status = reg
	m.tasks[taskID] = t
	m.mu.Unlock()

	return SyncMessage{Kind: SyncKindFieldUpdate, TaskID: taskID, RoomID: m.roomID, Field: FieldStatus, StatusUpdate: reg}, nil
}

// UpdateAssignee stamps a fresh LWW register and overwrites the local
// task's assignee, returning a FieldUpdate sync message.
func (m *Manager) UpdateAssignee(taskID uuid.UUID, assignee string) (SyncMessage, error) {
	reg := NewLWW(assignee, m.nowMillis(), m.localPeerID)

	m.mu.Lock()
	t, ok := m.tasks[taskID]
	if !ok {
		m.mu.Unlock()
		return SyncMessage{}, fmt.Errorf("tasks: unknown task %s", taskID)
	}
	t.Assignee = reg
	m.tasks[taskID] = t
	m.mu.Unlock()

	return SyncMessage{Kind: SyncKindFieldUpdate, TaskID: taskID, RoomID: m.roomID, Field: FieldAssignee, AssigneeUpdate: reg}, nil
}

// DeleteTask sets status to Deleted -- a soft status change.
func (m *Manager) DeleteTask(taskID uuid.UUID) (SyncMessage, error) {
	return m.UpdateStatus(taskID, StatusDeleted)
}

// ApplyRemote folds an incoming sync message into local state. On
// FieldUpdate for an unknown task, a stub task is created so the update
// is retained (add-wins across arbitrary out-of-order delivery). On
// FullState, every remote task is merged field-wise via LWW.
// RequestFullState is a no-op; callers use BuildFullState to respond.
func (m *Manager) ApplyRemote(msg SyncMessage) {
	switch msg.Kind {
	case SyncKindFieldUpdate:
		m.applyFieldUpdate(msg)
	case SyncKindFullState:
		m.mu.Lock()
		m.tasks = mergeTaskList(m.tasks, msg.Tasks)
		m.mu.Unlock()
	case SyncKindRequestFullState:
		// No-op; see BuildFullState.
	}
}

func (m *Manager) applyFieldUpdate(msg SyncMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[msg.TaskID]
	if !ok {
		t = Task{ID: msg.TaskID, RoomID: msg.RoomID}
	}

	switch msg.Field {
	case FieldTitle:
		t.Title = MergeLWW(t.Title, msg.TitleUpdate)
	case FieldStatus:
		t.Status = MergeLWW(t.Status, msg.StatusUpdate)
	case FieldAssignee:
		t.Assignee = MergeLWW(t.Assignee, msg.AssigneeUpdate)
	}
	m.tasks[msg.TaskID] = t
}

// GetTasks returns non-Deleted tasks sorted by CreatedAt.
func (m *Manager) GetTasks() []Task {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Task
	for _, t := range m.tasks {
		if t.Status.Value != StatusDeleted {
			out = append(out, t)
		}
	}
	return sortByCreatedAt(out)
}

// BuildFullState returns ALL tasks, including Deleted ones, so
// convergence is preserved across peers that did not see the deletion.
func (m *Manager) BuildFullState() SyncMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, t)
	}
	return SyncMessage{Kind: SyncKindFullState, RoomID: m.roomID, Tasks: sortByCreatedAt(out)}
}
