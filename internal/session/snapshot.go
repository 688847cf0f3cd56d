package session

import (
	"time"

	"voxbrief/internal/analysis"
)

// Snapshot is the read-only view published to the presentation layer.
type Snapshot struct {
	SessionID     string           `json:"sessionId,omitempty"`
	State         State            `json:"state"`
	Status        string           `json:"status"`
	Transcript    string           `json:"transcript,omitempty"`
	Result        *analysis.Result `json:"result,omitempty"`
	ErrorKind     string           `json:"errorKind,omitempty"`
	Chunks        int              `json:"chunks"`
	Bytes         int              `json:"bytes"`
	ModelLoaded   bool             `json:"modelLoaded"`
	ModelLoading  bool             `json:"modelLoading"`
	CredentialSet bool             `json:"credentialSet"`
	StartedAt     *time.Time       `json:"startedAt,omitempty"`
	FinishedAt    *time.Time       `json:"finishedAt,omitempty"`
}

// CanStart reports whether a Start issued now would pass the guards.
func (s Snapshot) CanStart() bool {
	return s.ModelLoaded && !s.ModelLoading && s.CredentialSet && s.State.Settled()
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// subscribers fans snapshots out with latest-wins delivery. Callers hold the
// controller lock.
type subscribers struct {
	next int
	subs map[int]chan Snapshot
}

func (s *subscribers) add(initial Snapshot) (int, chan Snapshot) {
	if s.subs == nil {
		s.subs = make(map[int]chan Snapshot)
	}
	id := s.next
	s.next++
	ch := make(chan Snapshot, 1)
	ch <- initial
	s.subs[id] = ch
	return id, ch
}

func (s *subscribers) remove(id int) {
	if ch, ok := s.subs[id]; ok {
		delete(s.subs, id)
		close(ch)
	}
}

func (s *subscribers) publish(snap Snapshot) {
	for _, ch := range s.subs {
		select {
		case ch <- snap:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

func (s *subscribers) closeAll() {
	for id := range s.subs {
		s.remove(id)
	}
}
