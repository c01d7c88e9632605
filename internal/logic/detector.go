package logic

// Decision is the outcome of evaluating a sensor edge against the prior status.
type Decision struct {
	Status Status
	// Arm is set when the new status starts a transit that must be watched.
	Arm bool
}

// Decide evaluates a fresh sensor snapshot against the prior status.
// edge is the sensor that raised the event, or SensorNone for the startup probe.
// The returned status equals prior when the edge does not change anything.
func Decide(prior Status, snap Snapshot, edge Sensor) Decision {
	switch {
	case snap.Fault():
		return Decision{Status: StatusUnknown}
	case snap.Closed:
		return Decision{Status: StatusClosed}
	case snap.Open:
		return Decision{Status: StatusOpen}
	}

	// Neither sensor asserted: only meaningful relative to the edge and prior status.
	switch {
	case edge == SensorClosed && prior == StatusClosed:
		return Decision{Status: StatusOpening, Arm: true}
	case edge == SensorOpen && prior == StatusOpen:
		return Decision{Status: StatusClosing, Arm: true}
	case edge == SensorNone:
		// Unverifiable at boot; an unsealed door is the safer assumption.
		return Decision{Status: StatusOpen}
	}
	return Decision{Status: prior}
}

// Expire returns the status to report when the transit watchdog runs out.
// ok is false when the status already resolved and the expiry must be ignored.
func Expire(current Status) (next Status, ok bool) {
	if !current.InTransit() {
		return current, false
	}
	return StatusOpen, true
}
