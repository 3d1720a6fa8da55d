package coord

import (
	"strconv"
	"strings"
	"time"
)

// Verb is the state a probe instance announces in its client data.
type Verb string

const (
	VerbStart Verb = "START" // a lifecycle run is in progress
	VerbDone  Verb = "DONE"  // a run finished; Value holds its result
)

const (
	formatLayout = "2006-01-02 15:04:05.000000"
	// parseLayout accepts any number of fractional digits after the seconds.
	parseLayout = "2006-01-02 15:04:05"
)

// Record is the scratch value shared between probe instances, stored on the
// server as "VERB YYYY-MM-DD HH:MM:SS.ffffff [value]" in local time.
type Record struct {
	Verb     Verb
	At       time.Time
	Value    int
	HasValue bool
}

// String renders the record in its wire form.
func (r Record) String() string {
	s := string(r.Verb) + " " + r.At.In(time.Local).Format(formatLayout)
	if r.HasValue {
		s += " " + strconv.Itoa(r.Value)
	}
	return s
}

// ParseRecord decodes a stored record. Anything that is not three or four
// space separated fields with a known verb, a valid timestamp and an integer
// value is reported as absent.
func ParseRecord(s string) (Record, bool) {
	parts := strings.Split(s, " ")
	if len(parts) != 3 && len(parts) != 4 {
		return Record{}, false
	}

	verb := Verb(parts[0])
	if verb != VerbStart && verb != VerbDone {
		return Record{}, false
	}
	at, err := time.ParseInLocation(parseLayout, parts[1]+" "+parts[2], time.Local)
	if err != nil {
		return Record{}, false
	}

	r := Record{Verb: verb, At: at}
	if len(parts) == 4 {
		v, err := strconv.Atoi(parts[3])
		if err != nil {
			return Record{}, false
		}
		r.Value, r.HasValue = v, true
	}
	return r, true
}

// FreshAt reports whether the record was written less than window before now.
func (r Record) FreshAt(now time.Time, window time.Duration) bool {
	return now.Sub(r.At) < window
}
