package gdd

import "time"

// EpicsEpochOffset is the number of seconds between the POSIX epoch and the
// EPICS epoch (1990-01-01 00:00:00 UTC).
const EpicsEpochOffset = 631152000

// TimeStamp is a time relative to the EPICS epoch, as carried in DBR_TIME
// structures.
type TimeStamp struct {
	Sec  uint32
	Nsec uint32
}

// FromTime converts t to a TimeStamp. Times before the EPICS epoch clamp to zero.
func FromTime(t time.Time) TimeStamp {
	sec := t.Unix() - EpicsEpochOffset
	if sec < 0 {
		return TimeStamp{}
	}
	return TimeStamp{Sec: uint32(sec), Nsec: uint32(t.Nanosecond())}
}

// Now returns the current time as a TimeStamp.
func Now() TimeStamp {
	return FromTime(time.Now())
}

// Time converts the stamp back to a time.Time in UTC.
func (ts TimeStamp) Time() time.Time {
	return time.Unix(int64(ts.Sec)+EpicsEpochOffset, int64(ts.Nsec)).UTC()
}

// IsZero reports whether the stamp was never set.
func (ts TimeStamp) IsZero() bool {
	return ts.Sec == 0 && ts.Nsec == 0
}

// Before reports whether ts is earlier than other.
func (ts TimeStamp) Before(other TimeStamp) bool {
	if ts.Sec != other.Sec {
		return ts.Sec < other.Sec
	}
	return ts.Nsec < other.Nsec
}
