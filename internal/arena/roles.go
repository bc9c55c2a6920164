package arena

// Role is the rock-paper-scissors assignment a participant carries for the
// duration of a match.
type Role string

const (
	RoleRock     Role = "rock"
	RolePaper    Role = "paper"
	RoleScissors Role = "scissors"
)

// Roles lists every role exactly once, in canonical order.
var Roles = [3]Role{RoleRock, RolePaper, RoleScissors}

// Outcome is the result of a contact between two roles, seen from the first.
type Outcome int

const (
	OutcomeTie Outcome = iota
	OutcomeWin
	OutcomeLose
)

// beats maps each role to the role it eliminates.
var beats = map[Role]Role{
	RoleRock:     RoleScissors,
	RoleScissors: RolePaper,
	RolePaper:    RoleRock,
}

// RPSResult resolves a contact per the standard cycle
// rock→scissors→paper→rock.
func RPSResult(a, b Role) Outcome {
	switch {
	case a == b:
		return OutcomeTie
	case beats[a] == b:
		return OutcomeWin
	default:
		return OutcomeLose
	}
}

// Valid reports whether the role is one of the three playable roles.
func (r Role) Valid() bool {
	_, ok := beats[r]
	return ok
}
