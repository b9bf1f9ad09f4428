package types

import "time"

// Timestamp is a block time in Unix nanoseconds. It is informational
// only: deadlines and expiry windows are counted in heights.
type Timestamp int64

// TimestampOf converts t.
func TimestampOf(t time.Time) Timestamp { return Timestamp(t.UnixNano()) }

// Time returns ts in UTC.
func (ts Timestamp) Time() time.Time { return time.Unix(0, int64(ts)).UTC() }
