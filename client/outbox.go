package client

import "github.com/ggoodman/fleetsocket/chat"

// Outbox is the FIFO of sends that have not yet been handed to a transport.
// It is not safe for concurrent use; Session guards it.
type Outbox struct {
	items []chat.Envelope
}

func (o *Outbox) Push(env chat.Envelope) {
	o.items = append(o.items, env)
}

func (o *Outbox) Len() int { return len(o.items) }

// Drain hands queued envelopes to send oldest first. An envelope leaves the
// Outbox once send accepts it. Drain stops at the first error and keeps the
// failed envelope and everything after it.
func (o *Outbox) Drain(send func(chat.Envelope) error) error {
	for len(o.items) > 0 {
		if err := send(o.items[0]); err != nil {
			return err
		}
		o.items[0] = chat.Envelope{}
		o.items = o.items[1:]
	}
	o.items = nil
	return nil
}
