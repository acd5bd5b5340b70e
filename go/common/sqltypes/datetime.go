// Copyright 2025 Supabase, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sqltypes

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Text layouts of the DATE, TIME and TIMESTAMP families.
const (
	DateLayout      = "2006-01-02"
	TimeLayout      = "15:04:05"
	TimestampLayout = "2006-01-02 15:04:05.999999999"
)

// Horolog dates count days from 1840-12-31, which is day 0.
var horologEpochUnix = time.Date(1840, 12, 31, 0, 0, 0, 0, time.UTC).Unix()

const secondsPerDay = 24 * 60 * 60

// HorologToDate converts a horolog day count to a UTC date.
func HorologToDate(days int64) time.Time {
	return time.Unix(horologEpochUnix+days*secondsPerDay, 0).UTC()
}

// DateToHorolog converts the calendar date of t to a horolog day count.
func DateToHorolog(t time.Time) int64 {
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return (d.Unix() - horologEpochUnix) / secondsPerDay
}

// posixFlag is the sign-flag bit of TIMESTAMP_POSIX values.
const posixFlag = int64(1) << 60

// PosixToTime decodes a TIMESTAMP_POSIX value. Positive wire values hold
// microseconds since the Unix epoch with bit 60 set; non-positive ones hold
// pre-epoch values with the top nibble cleared to 0xE.
func PosixToTime(w int64) time.Time {
	var micros int64
	if w > 0 {
		micros = w ^ posixFlag
	} else {
		micros = w | -posixFlag
	}
	return time.UnixMicro(micros).UTC()
}

// TimeToPosix encodes t as a TIMESTAMP_POSIX value with microsecond precision.
func TimeToPosix(t time.Time) int64 {
	return t.UnixMicro() ^ posixFlag
}

// TimeOfDay is a wall-clock time without a date.
type TimeOfDay struct {
	Hour       int
	Minute     int
	Second     int
	Nanosecond int
}

// NewTimeOfDay returns the time of day h:m:s.
func NewTimeOfDay(h, m, s int) TimeOfDay {
	return TimeOfDay{Hour: h, Minute: m, Second: s}
}

// TimeOfDayOf returns the wall-clock part of t.
func TimeOfDayOf(t time.Time) TimeOfDay {
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second(), Nanosecond: t.Nanosecond()}
}

// TimeOfDayFromSeconds converts seconds since midnight.
func TimeOfDayFromSeconds(sec int64) TimeOfDay {
	sec %= secondsPerDay
	if sec < 0 {
		sec += secondsPerDay
	}
	return TimeOfDay{Hour: int(sec / 3600), Minute: int(sec % 3600 / 60), Second: int(sec % 60)}
}

// Seconds returns whole seconds since midnight.
func (t TimeOfDay) Seconds() int64 {
	return int64(t.Hour)*3600 + int64(t.Minute)*60 + int64(t.Second)
}

func (t TimeOfDay) String() string {
	s := fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
	if t.Nanosecond != 0 {
		frac := strings.TrimRight(fmt.Sprintf("%09d", t.Nanosecond), "0")
		s += "." + frac
	}
	return s
}

// ParseTimeOfDay parses "15:04:05" with an optional fractional part.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	clock, frac, _ := strings.Cut(strings.TrimSpace(s), ".")
	t, err := time.Parse(TimeLayout, clock)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("%w: time %q", ErrConversion, s)
	}
	tod := TimeOfDayOf(t)
	if frac != "" {
		if len(frac) > 9 {
			frac = frac[:9]
		}
		n, err := strconv.Atoi(frac + strings.Repeat("0", 9-len(frac)))
		if err != nil {
			return TimeOfDay{}, fmt.Errorf("%w: time %q", ErrConversion, s)
		}
		tod.Nanosecond = n
	}
	return tod, nil
}
