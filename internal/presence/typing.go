package presence

import (
	"sort"
	"time"

	"github.com/quocanhngo/tripzi/internal/model"
)

const (
	// DefaultTypingClear is how long a typing mark lives without new input
	DefaultTypingClear = 3 * time.Second
	// DefaultTypingStale is the age after which a typing mark is ignored
	DefaultTypingStale = 5 * time.Second
)

// TypingUsers returns the other participants whose typing mark is younger
// than stale, sorted by user id. A mark from a crashed client expires on
// its own this way.
func TypingUsers(conv *model.Conversation, self string, now time.Time, stale time.Duration) []string {
	if conv == nil {
		return []string{}
	}
	users := make([]string, 0, len(conv.Typing))
	for uid, at := range conv.Typing {
		if uid == self || at.IsZero() || !conv.HasParticipant(uid) {
			continue
		}
		if now.Sub(at) < stale {
			users = append(users, uid)
		}
	}
	sort.Strings(users)
	return users
}

// SameUsers reports whether two sorted id lists are equal
func SameUsers(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
