package message

import "sort"

// Compare orders two messages for display. The result is negative when a
// sorts before b, positive when after, zero only for identical ids.
//
// Rules, in order:
//  1. creation time ascending;
//  2. on exact time ties, a pending message sorts after any non-pending one,
//     so an optimistic agent message never jumps above a confirmed customer
//     message written in the same millisecond;
//  3. remaining ties break on lexicographic message id.
func Compare(a, b Message) int {
	if a.CreatedAt.Before(b.CreatedAt) {
		return -1
	}
	if a.CreatedAt.After(b.CreatedAt) {
		return 1
	}
	if a.Pending() != b.Pending() {
		if a.Pending() {
			return 1
		}
		return -1
	}
	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	default:
		return 0
	}
}

// Sort orders messages in place by the display rule. The sort is stable so
// equal elements keep their arrival order, though Compare leaves no true
// ties between distinct messages.
func Sort(messages []Message) {
	sort.SliceStable(messages, func(i, j int) bool {
		return Compare(messages[i], messages[j]) < 0
	})
}
