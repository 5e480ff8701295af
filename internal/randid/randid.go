// Package randid generates the archive identifier stamped into every
// volume header of an archive.
package randid

import "time"

// New returns a non-zero 32-bit archive identifier derived from the
// current time, xoring seconds and microseconds, retrying on the
// one-in-2^32 chance of a zero result.
func New() uint32 {
	var id uint32
	for id == 0 {
		now := time.Now()
		id = uint32(now.Unix()) ^ uint32(now.Nanosecond()/1000)
	}
	return id
}
