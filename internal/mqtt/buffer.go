package mqtt

import "log"

// pendingMsg is a serialized message waiting for the broker to come back.
type pendingMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox holds messages published while disconnected, oldest first.
// When full the oldest message is discarded. Callers synchronize.
type outbox struct {
	slots   []pendingMsg
	next    int // index the next push writes to
	count   int
	dropped int // messages discarded since the last drain
}

func newOutbox(capacity int) *outbox {
	if capacity < 1 {
		capacity = 1
	}
	return &outbox{slots: make([]pendingMsg, capacity)}
}

func (o *outbox) push(msg pendingMsg) {
	size := len(o.slots)
	if o.count == size {
		if o.dropped == 0 {
			log.Printf("mqtt: offline buffer full (%d messages), discarding oldest", size)
		}
		o.dropped++
	} else {
		o.count++
	}
	o.slots[o.next] = msg
	o.next = (o.next + 1) % size
}

// drain returns the held messages in publish order and empties the outbox.
func (o *outbox) drain() []pendingMsg {
	if o.count == 0 {
		return nil
	}
	size := len(o.slots)
	out := make([]pendingMsg, 0, o.count)
	for i := o.next - o.count; i < o.next; i++ {
		out = append(out, o.slots[(i+size)%size])
	}
	o.count, o.next, o.dropped = 0, 0, 0
	return out
}

func (o *outbox) len() int {
	return o.count
}
