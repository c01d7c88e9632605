package logic

// LEDPattern is the set of indicator LEDs lit for a status.
type LEDPattern struct {
	Red    bool
	Yellow bool
	Green  bool
}

// PatternFor maps a status to its indicator pattern.
//
//	closed          green
//	open            red
//	opening/closing yellow
//	stopped         red + yellow
//	unknown         all three
func PatternFor(s Status) LEDPattern {
	switch s {
	case StatusClosed:
		return LEDPattern{Green: true}
	case StatusOpen:
		return LEDPattern{Red: true}
	case StatusOpening, StatusClosing:
		return LEDPattern{Yellow: true}
	case StatusStopped:
		return LEDPattern{Red: true, Yellow: true}
	default:
		return LEDPattern{Red: true, Yellow: true, Green: true}
	}
}
