package pump

// Role of an execution context within its tree.
type Role int

const (
	// Primary is the root context, which runs Jobs.
	Primary Role = iota
	// Secondary is any other context, which sends Jobs to its parent.
	Secondary
)

func (r Role) String() string {
	switch r {
	case Primary:
		return "primary"
	case Secondary:
		return "secondary"
	default:
		return "unknown"
	}
}
