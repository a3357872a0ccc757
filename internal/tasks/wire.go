package tasks

import (
	"termchat/internal/codecutil"

	"github.com/google/uuid"
)

// EncodeSync serializes a SyncMessage for transport inside an envelope's
// opaque TaskSync bytes.
func EncodeSync(msg SyncMessage) []byte {
	w := codecutil.NewWriter()
	w.PutByte(byte(msg.Kind))
	w.PutBytes(msg.RoomID[:])

	switch msg.Kind {
	case SyncKindFieldUpdate:
		w.PutBytes(msg.TaskID[:])
		w.PutByte(byte(msg.Field))
		switch msg.Field {
		case FieldTitle:
			putLWWString(w, msg.TitleUpdate)
		case FieldStatus:
			putLWWStatus(w, msg.StatusUpdate)
		case FieldAssignee:
			putLWWString(w, msg.AssigneeUpdate)
		}
	case SyncKindFullState:
		w.PutUvarint(uint64(len(msg.Tasks)))
		for _, t := range msg.Tasks {
			putTask(w, t)
		}
	case SyncKindRequestFullState:
		// No payload.
	}
	return w.Bytes()
}

// DecodeSync parses bytes produced by EncodeSync.
func DecodeSync(data []byte) (SyncMessage, error) {
	r := codecutil.NewReader(data)
	kindByte, err := r.GetByte()
	if err != nil {
		return SyncMessage{}, err
	}
	roomID, err := getUUID(r)
	if err != nil {
		return SyncMessage{}, err
	}

	msg := SyncMessage{Kind: SyncKind(kindByte), RoomID: roomID}

	switch msg.Kind {
	case SyncKindFieldUpdate:
		taskID, err := getUUID(r)
		if err != nil {
			return SyncMessage{}, err
		}
		fieldByte, err := r.GetByte()
		if err != nil {
			return SyncMessage{}, err
		}
		msg.TaskID = taskID
		msg.Field = Field(fieldByte)
		switch msg.Field {
		case FieldTitle:
			lww, err := getLWWString(r)
			if err != nil {
				return SyncMessage{}, err
			}
			msg.TitleUpdate = lww
		case FieldStatus:
			lww, err := getLWWStatus(r)
			if err != nil {
				return SyncMessage{}, err
			}
			msg.StatusUpdate = lww
		case FieldAssignee:
			lww, err := getLWWString(r)
			if err != nil {
				return SyncMessage{}, err
			}
			msg.AssigneeUpdate = lww
		}
	case SyncKindFullState:
		n, err := r.GetUvarint()
		if err != nil {
			return SyncMessage{}, err
		}
		tasks := make([]Task, 0, n)
		for i := uint64(0); i < n; i++ {
			t, err := getTask(r)
			if err != nil {
				return SyncMessage{}, err
			}
			tasks = append(tasks, t)
		}
		msg.Tasks = tasks
	case SyncKindRequestFullState:
		// No payload.
	}
	return msg, nil
}

func getUUID(r *codecutil.Reader) (uuid.UUID, error) {
	b, err := r.GetBytesCopy()
	if err != nil {
		return uuid.UUID{}, err
	}
	var id uuid.UUID
	copy(id[:], b)
	return id, nil
}

func putLWWString(w *codecutil.Writer, l LWW[string]) {
	w.PutString(l.Value)
	w.PutUvarint(l.Timestamp)
	w.PutString(l.Author)
}

func getLWWString(r *codecutil.Reader) (LWW[string], error) {
	v, err := r.GetString()
	if err != nil {
		return LWW[string]{}, err
	}
	ts, err := r.GetUvarint()
	if err != nil {
		return LWW[string]{}, err
	}
	author, err := r.GetString()
	if err != nil {
		return LWW[string]{}, err
	}
	return LWW[string]{Value: v, Timestamp: ts, Author: author}, nil
}

func putLWWStatus(w *codecutil.Writer, l LWW[Status]) {
	w.PutByte(byte(l.Value))
	w.PutUvarint(l.Timestamp)
	w.PutString(l.Author)
}

func getLWWStatus(r *codecutil.Reader) (LWW[Status], error) {
	v, err := r.GetByte()
	if err != nil {
		return LWW[Status]{}, err
	}
	ts, err := r.GetUvarint()
	if err != nil {
		return LWW[Status]{}, err
	}
	author, err := r.GetString()
	if err != nil {
		return LWW[Status]{}, err
	}
	return LWW[Status]{Value: Status(v), Timestamp: ts, Author: author}, nil
}

func putTask(w *codecutil.Writer, t Task) {
	w.PutBytes(t.ID[:])
	w.PutBytes(t.RoomID[:])
	putLWWString(w, t.Title)
	putLWWStatus(w, t.Status)
	putLWWString(w, t.Assignee)
	w.PutUvarint(t.CreatedAt)
	w.PutString(t.CreatedBy)
}

func getTask(r *codecutil.Reader) (Task, error) {
	id, err := getUUID(r)
	if err != nil {
		return Task{}, err
	}
	roomID, err := getUUID(r)
	if err != nil {
		return Task{}, err
	}
	title, err := getLWWString(r)
	if err != nil {
		return Task{}, err
	}
	status, err := getLWWStatus(r)
	if err != nil {
		return Task{}, err
	}
	assignee, err := getLWWString(r)
	if err != nil {
		return Task{}, err
	}
	createdAt, err := r.GetUvarint()
	if err != nil {
		return Task{}, err
	}
	createdBy, err := r.GetString()
	if err != nil {
		return Task{}, err
	}
	return Task{
		ID: id, RoomID: roomID, Title: title, Status: status, Assignee: assignee,
		CreatedAt: createdAt, CreatedBy: createdBy,
	}, nil
}
