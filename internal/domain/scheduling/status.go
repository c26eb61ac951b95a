package scheduling

import "github.com/clinicops/clinic/internal/platform/auth"

const (
	StatusWaiting   = "waiting"
	StatusBooked    = "booked"
	StatusDone      = "done"
	StatusCancelled = "cancelled"
	StatusNoShow    = "no_show"
)

var validStatuses = map[string]bool{
	StatusWaiting: true, StatusBooked: true, StatusDone: true,
	StatusCancelled: true, StatusNoShow: true,
}

// transitions lists the legal moves out of each open status. Terminal
// statuses have no entry.
var transitions = map[string]map[string]bool{
	StatusWaiting: {StatusDone: true, StatusCancelled: true, StatusNoShow: true},
	StatusBooked:  {StatusDone: true, StatusCancelled: true, StatusNoShow: true},
}

// roleTargets lists what each role may set through UpdateStatus. done is only
// reached through encounter completion.
var roleTargets = map[string]map[string]bool{
	auth.RoleAdmin:        {StatusWaiting: true, StatusCancelled: true},
	auth.RoleReceptionist: {StatusWaiting: true, StatusCancelled: true},
	auth.RoleDoctor:       {StatusCancelled: true, StatusNoShow: true},
	auth.RolePatient:      {StatusCancelled: true},
}

func IsValidStatus(s string) bool { return validStatuses[s] }

// IsTerminal reports whether no further transition is possible from s.
func IsTerminal(s string) bool {
	return validStatuses[s] && transitions[s] == nil
}

// CanTransition reports whether from → to is a legal lifecycle move.
func CanTransition(from, to string) bool {
	return transitions[from][to]
}

// IsOpen reports whether an encounter may still be recorded against s.
func IsOpen(s string) bool {
	return s == StatusWaiting || s == StatusBooked
}

func roleMaySet(role, status string) bool {
	return roleTargets[role][status]
}
