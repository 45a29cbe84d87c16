// Package idgen generates time-ordered identifiers that double as primary keys
// and pagination cursors.
//
// An identifier is 16 lowercase base-36 characters: 9 for milliseconds since
// 2000-01-01T00:00:00Z, 7 for a tail. Both parts are fixed width, so comparing
// two identifiers as strings compares them by creation time first.
package idgen

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

const (
	timeLen = 9
	tailLen = 7
	// Len is the length of every identifier.
	Len = timeLen + tailLen

	// tailSpace is 36^7.
	tailSpace uint64 = 78364164096
	// maxStep bounds the random increment used when the millisecond repeats.
	maxStep uint64 = 1 << 16
	// maxTime is 36^9 - 1 milliseconds (~3257 years after the epoch).
	maxTime uint64 = 101559956668415
)

// Epoch is the zero point of the time prefix.
var Epoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// ErrMalformedIdentifier is returned when an identifier cannot be decoded.
var ErrMalformedIdentifier = errors.New("malformed identifier")

// Suffix selects the tail of a synthetic boundary identifier.
type Suffix int

const (
	// Min sorts before every identifier generated in the same millisecond.
	Min Suffix = iota
	// Max sorts after every identifier generated in the same millisecond.
	Max
)

type state struct {
	ms   uint64
	tail uint64
}

// Generator emits identifiers that never go backwards, even when the clock does.
// It is safe for concurrent use and takes no locks.
type Generator struct {
	last  atomic.Pointer[state]
	clock func() time.Time
	rand  func() uint64
}

// New returns a Generator reading the wall clock.
func New() *Generator {
	return &Generator{clock: time.Now, rand: cryptoUint64}
}

// NewWithClock is New with an injected clock, for tests.
func NewWithClock(clock func() time.Time) *Generator {
	return &Generator{clock: clock, rand: cryptoUint64}
}

// Next generates an identifier for the current time.
func (g *Generator) Next() string {
	return g.Generate(g.clock())
}

// Generate generates an identifier for t. If t is not later than the last
// emitted millisecond, the last millisecond is reused and the tail advances.
func (g *Generator) Generate(t time.Time) string {
	ms := toMillis(t)
	for {
		prev := g.last.Load()
		next := &state{}
		switch {
		case prev == nil || ms > prev.ms:
			next.ms = ms
			next.tail = g.rand() % (tailSpace / 2)
		default:
			next.ms = prev.ms
			next.tail = prev.tail + 1 + g.rand()%maxStep
			if next.tail >= tailSpace {
				next.ms++
				next.tail = g.rand() % (tailSpace / 2)
			}
		}
		if g.last.CompareAndSwap(prev, next) {
			return encode(next.ms, next.tail)
		}
	}
}

// Bound returns a synthetic identifier for t used as a range boundary.
// Bound(t, Min) excludes identifiers of that millisecond when used as an
// upper bound; Bound(t, Max) excludes them when used as a lower bound.
func Bound(t time.Time, s Suffix) string {
	if s == Max {
		return encode(toMillis(t), tailSpace-1)
	}
	return encode(toMillis(t), 0)
}

// FromUnixMilli is Bound for an epoch-milliseconds timestamp.
func FromUnixMilli(ms int64, s Suffix) string {
	return Bound(time.UnixMilli(ms), s)
}

// ParseTime decodes the creation time of id.
func ParseTime(id string) (time.Time, error) {
	if !Valid(id) {
		return time.Time{}, ErrMalformedIdentifier
	}
	ms, err := strconv.ParseUint(id[:timeLen], 36, 64)
	if err != nil {
		return time.Time{}, ErrMalformedIdentifier
	}
	return Epoch.Add(time.Duration(ms) * time.Millisecond), nil
}

// Valid reports whether id has the identifier shape.
func Valid(id string) bool {
	if len(id) != Len {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'z') {
			return false
		}
	}
	return true
}

func toMillis(t time.Time) uint64 {
	d := t.Sub(Epoch).Milliseconds()
	if d < 0 {
		return 0
	}
	if uint64(d) > maxTime {
		return maxTime
	}
	return uint64(d)
}

func encode(ms, tail uint64) string {
	var b strings.Builder
	b.Grow(Len)
	pad(&b, strconv.FormatUint(ms, 36), timeLen)
	pad(&b, strconv.FormatUint(tail, 36), tailLen)
	return b.String()
}

func pad(b *strings.Builder, s string, width int) {
	for i := len(s); i < width; i++ {
		b.WriteByte('0')
	}
	b.WriteString(s)
}

func cryptoUint64() uint64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic("idgen: crypto/rand unavailable: " + err.Error())
	}
	return binary.LittleEndian.Uint64(buf[:])
}
