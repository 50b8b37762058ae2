package email

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNoSenders is returned by a composite with nothing to deliver through.
var ErrNoSenders = errors.New("email: no senders configured")

// CompositeEmailSender fans one message out to every registered Sender.
// SMTP is always first; the Redis and file capture senders ride along in mock and debug setups.
type CompositeEmailSender struct {
	senders []Sender
}

func NewCompositeEmailSender(senders ...Sender) *CompositeEmailSender {
	cs := &CompositeEmailSender{}
	for _, s := range senders {
		cs.AddSender(s)
	}
	return cs
}

// AddSender ignores nil so optional senders can be passed unconditionally.
func (cs *CompositeEmailSender) AddSender(sender Sender) {
	if sender != nil {
		cs.senders = append(cs.senders, sender)
	}
}

// Send delivers through all senders concurrently. A failing sender does not
// stop the others; the returned error joins each failure tagged with its sender type.
func (cs *CompositeEmailSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	if len(cs.senders) == 0 {
		return ErrNoSenders
	}
	if len(cs.senders) == 1 {
		return cs.senders[0].Send(ctx, to, subject, rawMessage)
	}

	errs := make([]error, len(cs.senders))
	var wg sync.WaitGroup
	for i, sender := range cs.senders {
		wg.Add(1)
		go func(i int, sender Sender) {
			defer wg.Done()
			if err := sender.Send(ctx, to, subject, rawMessage); err != nil {
				errs[i] = fmt.Errorf("%T: %w", sender, err)
			}
		}(i, sender)
	}
	wg.Wait()

	return errors.Join(errs...)
}
