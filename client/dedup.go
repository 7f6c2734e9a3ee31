package client

import (
	"github.com/ggoodman/fleetsocket/chat"
)

// IsDuplicate reports whether a and b are the same message as seen by a
// client: equal content, sender and room, stamped less than chat.DedupWindow
// apart. Ids are not compared since an optimistic entry carries a
// client-generated id.
func IsDuplicate(a, b chat.Envelope) bool {
	if a.Content != b.Content || a.From != b.From || a.RoomID != b.RoomID {
		return false
	}
	lo, hi := a.TS, b.TS
	if lo > hi {
		lo, hi = hi, lo
	}
	// Unsigned difference cannot overflow for any pair of stamps.
	return uint64(hi)-uint64(lo) < uint64(chat.DedupWindow.Milliseconds())
}
