package relay

type unsubscriber interface {
	Unsubscribe(id int64)
}

// Token cancels one subscription. Closing it never closes the broker.
type Token struct {
	id     int64
	broker unsubscriber
}

// EmptyToken is a token bound to nothing; closing it is a no-op.
var EmptyToken = &Token{id: -1}

// ID returns the subscription id, or a non-positive value for an empty token.
func (t *Token) ID() int64 {
	if t == nil {
		return -1
	}

	return t.id
}

// Close removes the subscription from its broker and disposes the handler.
// Closing an already closed or empty token does nothing.
func (t *Token) Close() error {
	if t == nil || t.broker == nil || t.id <= 0 {
		return nil
	}

	t.broker.Unsubscribe(t.id)

	return nil
}
