package feed

// Message is a push delivered by a live subscription. It is one of
// FullSnapshot, Delta or Failure.
type Message[T Item] interface {
	isMessage()
}

// FullSnapshot is the complete current result set of the subscribed query.
// It is not a delta: the collection rebuilds its sequence from it.
type FullSnapshot[T Item] struct {
	Items []T
}

// Delta carries incremental changes. No shipped source emits it yet; the
// collection applies it as upsert + remove and re-sorts.
type Delta[T Item] struct {
	Upserts []T
	Removed []string
}

// Failure reports that the subscription broke. The sequence is left as is
// and the error is surfaced through View.Err until the next snapshot.
type Failure[T Item] struct {
	Err error
}

func (FullSnapshot[T]) isMessage() {}
func (Delta[T]) isMessage()        {}
func (Failure[T]) isMessage()      {}
