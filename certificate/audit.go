package certificate

import (
	"encoding/json"
	"fmt"
	"time"
)

// Action identifies what happened to a certificate in its audit log.
type Action string

const (
	ActionCreated  Action = "created"
	ActionRevoked  Action = "revoked"
	ActionVerified Action = "verified"
	ActionViewed   Action = "viewed"
)

// Valid reports whether a is one of the known actions.
func (a Action) Valid() bool {
	switch a {
	case ActionCreated, ActionRevoked, ActionVerified, ActionViewed:
		return true
	default:
		return false
	}
}

// ParseAction converts s to an Action.
func ParseAction(s string) (Action, error) {
	a := Action(s)
	if !a.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidAction, s)
	}
	return a, nil
}

// UnmarshalJSON rejects unknown actions so a stored log can never carry one.
func (a *Action) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseAction(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// AuditEvent is one entry in a certificate's append-only audit log.
type AuditEvent struct {
	Action    Action    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

func (e AuditEvent) validate() error {
	if !e.Action.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidAction, e.Action)
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("audit event %s: timestamp is required", e.Action)
	}
	return validateID(e.UserID, "audit user id")
}

// AppendAudit appends e to the record's audit log. Earlier entries are
// never touched.
func (r *Record) AppendAudit(e AuditEvent) error {
	if err := e.validate(); err != nil {
		return err
	}
	e.Timestamp = e.Timestamp.UTC()
	r.AuditLog = append(r.AuditLog, e)
	return nil
}

// LastEvent returns the most recent audit event for action, if any.
func (r *Record) LastEvent(action Action) (AuditEvent, bool) {
	for i := len(r.AuditLog) - 1; i >= 0; i-- {
		if r.AuditLog[i].Action == action {
			return r.AuditLog[i], true
		}
	}
	return AuditEvent{}, false
}
