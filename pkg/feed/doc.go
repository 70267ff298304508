// Package feed provides the live paginated collection used by every list
// screen: the post feed, a post's comment thread and a trick's video log.
//
// A Collection merges two inputs into one ordered, deduplicated sequence:
//
//   - pushes from a live subscription (Source.Subscribe), delivered as
//     FullSnapshot, Delta or Failure messages
//   - on-demand pages fetched after a Cursor (Source.Fetch via LoadMore)
//
// Items are ordered by OrderKey descending with ties broken by ItemID
// ascending. A FullSnapshot replaces the materialized sequence (see
// MergePolicy for the windowed alternative). LoadMore only ever appends
// beyond the current tail.
//
// Cursors are bound to the Key (filter + ordering) they were produced under.
// Changing the filter closes the subscription and discards both the sequence
// and the cursor; LoadMore takes the filter as an argument and rejects a stale
// one with ErrValidation.
//
// Example:
//
//	c := feed.New[models.Post](src, feed.WithOrderBy("date_created"))
//	defer c.Close()
//
//	sub, err := c.Open(ctx, feed.Where("user_id", uid))
//	if err != nil {
//	    return err
//	}
//	defer sub.Close()
//
//	for view := range c.Watch() {
//	    render(view.Items)
//	}
package feed
