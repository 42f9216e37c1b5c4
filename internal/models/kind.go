package models

import "fmt"

// ParticipantKind discriminates which identity collection a message side
// resolves against. It is a closed enum; anything else is rejected at the
// boundary instead of silently resolving to nothing.
type ParticipantKind string

const (
	KindEndUser   ParticipantKind = "EndUser"
	KindStaffUser ParticipantKind = "StaffUser"
)

// Role is the presence role of a connection.
type Role string

const (
	RoleEndUser Role = "EndUser"
	RoleAdmin   Role = "Admin"
)

// ParseKind validates a wire tag against the closed enum.
func ParseKind(s string) (ParticipantKind, error) {
	switch ParticipantKind(s) {
	case KindEndUser, KindStaffUser:
		return ParticipantKind(s), nil
	}
	return "", fmt.Errorf("unknown participant kind %q", s)
}

// ParseRole validates a wire role tag.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleEndUser, RoleAdmin:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// KindForRole maps a presence role to the identity collection it lives in.
func KindForRole(r Role) ParticipantKind {
	if r == RoleAdmin {
		return KindStaffUser
	}
	return KindEndUser
}
