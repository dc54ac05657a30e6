package production

import "fmt"

// Phase is a step of the production sequence.
type Phase int

const (
	AwaitingIdeas Phase = iota
	AwaitingScript
	Producing
	Ready
)

func (p Phase) String() string {
	switch p {
	case AwaitingIdeas:
		return "awaiting_ideas"
	case AwaitingScript:
		return "awaiting_script"
	case Producing:
		return "producing"
	case Ready:
		return "ready"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}
