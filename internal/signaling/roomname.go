package signaling

import (
	"strconv"
	"strings"

	"friendclub-backend/pkg/constants"
)

// Identities are escaped so that "_" only ever separates the name's parts.
var (
	identityEscaper   = strings.NewReplacer("%", "%25", "_", "%5F")
	identityUnescaper = strings.NewReplacer("%5F", "_", "%25", "%")
)

// DirectRoom is a parsed canonical 1:1 room name
type DirectRoom struct {
	A, B   string
	ByName bool // identities are user names rather than external ids
}

// Includes reports whether identity is one of the pair
func (r DirectRoom) Includes(identity string) bool {
	return identity != "" && (identity == r.A || identity == r.B)
}

// DirectRoomName derives the canonical room for a pair of external user ids:
// room_<min>_<max>. Ids compare numerically when both are integers, lexically
// otherwise, so the caller/callee order never changes the result.
func DirectRoomName(a, b string) string {
	return pairRoomName(constants.DirectRoomPrefix, a, b)
}

// NamedRoomName derives the canonical room for a pair of user names. It never
// collides with an id-based room.
func NamedRoomName(a, b string) string {
	return pairRoomName(constants.NamedRoomPrefix, a, b)
}

// ParseDirectRoomName splits a canonical room name back into its two identities
func ParseDirectRoomName(name string) (DirectRoom, bool) {
	prefix, rest, ok := strings.Cut(name, "_")
	if !ok {
		return DirectRoom{}, false
	}
	var byName bool
	switch prefix {
	case constants.DirectRoomPrefix:
	case constants.NamedRoomPrefix:
		byName = true
	default:
		return DirectRoom{}, false
	}

	parts := strings.Split(rest, "_")
	if len(parts) != 2 {
		return DirectRoom{}, false
	}
	a, okA := unescapeIdentity(parts[0])
	b, okB := unescapeIdentity(parts[1])
	if !okA || !okB {
		return DirectRoom{}, false
	}
	return DirectRoom{A: a, B: b, ByName: byName}, true
}

// directRoomFor picks external ids when both sides have one, names otherwise
func directRoomFor(nameA, idA, nameB, idB string) string {
	if idA != "" && idB != "" {
		return DirectRoomName(idA, idB)
	}
	return NamedRoomName(nameA, nameB)
}

func pairRoomName(prefix, a, b string) string {
	if directLess(b, a) {
		a, b = b, a
	}
	return prefix + "_" + identityEscaper.Replace(a) + "_" + identityEscaper.Replace(b)
}

// unescapeIdentity rejects empty and non-canonical encodings
func unescapeIdentity(s string) (string, bool) {
	if s == "" {
		return "", false
	}
	out := identityUnescaper.Replace(s)
	if identityEscaper.Replace(out) != s {
		return "", false
	}
	return out, true
}

func directLess(a, b string) bool {
	x, errA := strconv.ParseInt(a, 10, 64)
	y, errB := strconv.ParseInt(b, 10, 64)
	if errA == nil && errB == nil {
		return x < y
	}
	return a < b
}
