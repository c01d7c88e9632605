package logic

// PlanFor decides how many relay pulses an action needs from the given status.
// Two pulses mean stop-then-reverse and must be separated by a full pulse duration.
func PlanFor(current Status, action Action) Plan {
	p := Plan{Action: action, From: current}

	switch action {
	case ActionOpen:
		switch current {
		case StatusOpen:
			p.Message = "already open"
		case StatusClosed:
			p.Pulses, p.Message = 1, "opening"
		case StatusOpening:
			p.Message = "already opening"
		case StatusClosing:
			p.Pulses, p.Message = 2, "stopping then opening"
		case StatusStopped:
			p.Pulses, p.Message = 2, "reversing to open"
		default:
			p.Pulses, p.Message = 1, "state unknown, actuating once"
		}
	case ActionClose:
		switch current {
		case StatusOpen:
			p.Pulses, p.Message = 1, "closing"
		case StatusClosed:
			p.Message = "already closed"
		case StatusOpening:
			p.Pulses, p.Message = 2, "stopping then closing"
		case StatusClosing:
			p.Message = "already closing"
		case StatusStopped:
			p.Pulses, p.Message = 2, "reversing to close"
		default:
			p.Pulses, p.Message = 1, "state unknown, actuating once"
		}
	default:
		p.Message = "unsupported action"
	}
	return p
}
