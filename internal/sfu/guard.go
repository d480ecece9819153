package sfu

import "github.com/classmesh/sfu/internal/session"

// requireTeacher guards privileged operations. It sits at the top of every
// teacher-only path instead of relying on transport-level checks.
func requireTeacher(c *session.Client) error {
	if c == nil {
		return E(CodeNotFound, "unknown client")
	}
	if !c.IsTeacher() {
		return E(CodeUnauthorized, "operation requires the teacher role")
	}
	return nil
}
