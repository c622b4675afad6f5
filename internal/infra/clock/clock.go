// Package clock provides the engine's single injectable time source, mirrored
// from the teacher's single-function apptime/clock packages but promoted to
// an interface so the scheduler, rate limiter and sync worker tests can drive
// time deterministically without a live clock.
package clock

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// Clock abstracts wall-clock time.
type Clock interface {
	Now() time.Time
}

// System is the production Clock backed by time.Now.
type System struct{}

func (System) Now() time.Time { return time.Now() }

// Fake is a test Clock with a settable, monotonically-advanceable value.
type Fake struct {
	t time.Time
}

// NewFake returns a Fake clock pinned at t.
func NewFake(t time.Time) *Fake { return &Fake{t: t} }

func (f *Fake) Now() time.Time { return f.t }

// Advance moves the fake clock forward by d.
func (f *Fake) Advance(d time.Duration) { f.t = f.t.Add(d) }

// Set pins the fake clock to t.
func (f *Fake) Set(t time.Time) { f.t = t }

// NowMs is a convenience returning c.Now() as unix milliseconds, the
// engine's canonical timestamp representation.
func NowMs(c Clock) int64 { return c.Now().UnixMilli() }

// Nonce63 returns a random 63-bit non-negative integer, used as the MTProto
// request nonce per the clock-and-ids component.
func Nonce63() (int64, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, err
	}
	v := int64(binary.BigEndian.Uint64(buf[:]) & (1<<63 - 1))
	return v, nil
}
