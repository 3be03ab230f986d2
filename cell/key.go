package cell

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// KeyKind identifies which variant a Key holds.
type KeyKind int

const (
	KeyString KeyKind = iota
	KeyUint
	KeyInt
	KeyUUID
	KeyPair
	KeyTriple
)

var kindStrings = map[KeyKind]string{
	KeyString: "string",
	KeyUint:   "uint",
	KeyInt:    "int",
	KeyUUID:   "uuid",
	KeyPair:   "pair",
	KeyTriple: "triple",
}

func (k KeyKind) String() string {
	if s, ok := kindStrings[k]; ok {
		return s
	}
	return "unknown"
}

// Key identifies the bucket a check is made against. The zero value is an
// empty string key.
//
// Key is comparable: two keys that are == always produce the same wire
// argument, which is what the server buckets on.
type Key struct {
	kind  KeyKind
	parts [3]string
	u     uint64
	i     int64
	id    uuid.UUID
}

// String creates a text key.
func String(s string) Key {
	return Key{kind: KeyString, parts: [3]string{s}}
}

// Uint creates an unsigned integer key.
func Uint(u uint64) Key {
	return Key{kind: KeyUint, u: u}
}

// Int creates a signed integer key.
func Int(i int64) Key {
	return Key{kind: KeyInt, i: i}
}

// UUID creates a key from a unique identifier.
func UUID(id uuid.UUID) Key {
	return Key{kind: KeyUUID, id: id}
}

// Pair creates a two component key, e.g. user and route.
func Pair(a, b string) Key {
	return Key{kind: KeyPair, parts: [3]string{a, b}}
}

// Triple creates a three component key.
func Triple(a, b, c string) Key {
	return Key{kind: KeyTriple, parts: [3]string{a, b, c}}
}

// Kind returns the variant held by the key.
func (k Key) Kind() KeyKind {
	return k.kind
}

// IsZero reports whether k is the empty string key.
func (k Key) IsZero() bool {
	return k == Key{}
}

// String returns the display form of the key. Composite keys are rendered
// as "(a, b)" and "(a, b, c)".
func (k Key) String() string {
	switch k.kind {
	case KeyUint:
		return strconv.FormatUint(k.u, 10)
	case KeyInt:
		return strconv.FormatInt(k.i, 10)
	case KeyUUID:
		return k.id.String()
	case KeyPair:
		return composite(k.parts[:2])
	case KeyTriple:
		return composite(k.parts[:])
	default:
		return k.parts[0]
	}
}

// Arg returns the key as a single command argument.
func (k Key) Arg() any {
	switch k.kind {
	case KeyUint:
		return k.u
	case KeyInt:
		return k.i
	case KeyString:
		return k.parts[0]
	default:
		// uuid.UUID implements encoding.BinaryMarshaler, which go-redis would
		// send as 16 raw bytes. The canonical form keeps keys readable.
		return k.String()
	}
}

// Parts returns one typed wire value per key component.
func (k Key) Parts() []any {
	switch k.kind {
	case KeyPair:
		return []any{k.parts[0], k.parts[1]}
	case KeyTriple:
		return []any{k.parts[0], k.parts[1], k.parts[2]}
	default:
		return []any{k.Arg()}
	}
}

func composite(parts []string) string {
	var b strings.Builder
	b.WriteByte('(')
	for i, p := range parts {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p)
	}
	b.WriteByte(')')
	return b.String()
}
