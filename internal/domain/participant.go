package domain

import "errors"

const MaxDisplayNameLen = 36

var (
	ErrNameEmpty   = errors.New("display name empty")
	ErrNameTooLong = errors.New("display name too long")
)

// Role of a participant inside a room.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
)

// Participant is the session-independent identity of one room member.
type Participant struct {
	ID   ClientID `json:"id"`
	Name string   `json:"name"`
	Role Role     `json:"role"`
}

// NewParticipant avoids raw literals in adapters and keeps validation obvious.
func NewParticipant(id ClientID, name string, role Role) (*Participant, error) {
	if len(name) == 0 {
		return nil, ErrNameEmpty
	}
	if len(name) > MaxDisplayNameLen {
		return nil, ErrNameTooLong
	}
	if role != RoleTeacher {
		role = RoleStudent
	}
	return &Participant{ID: id, Name: name, Role: role}, nil
}

func (p *Participant) IsTeacher() bool { return p.Role == RoleTeacher }
