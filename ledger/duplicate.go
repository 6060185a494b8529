package ledger

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// =============================================================================
// DUPLICATE DETECTOR - Guards photo ingestion against re-registration
// =============================================================================

const (
	CandidateDateLayout = "2/1/2006"
	CandidateTimeLayout = "15:04"
)

// Candidate is a punch as parsed from a receipt photo, before it is stored.
type Candidate struct {
	Date string // dd/MM/yyyy
	Time string // HH:mm
	Name string // optional
}

// Timestamp parses the candidate's date and time in loc.
func (c Candidate) Timestamp(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	date, clock := strings.TrimSpace(c.Date), strings.TrimSpace(c.Time)
	if date == "" || clock == "" {
		return time.Time{}, &InvalidEventError{Reason: "date and time are required"}
	}
	ts, err := time.ParseInLocation(CandidateDateLayout+" "+CandidateTimeLayout, date+" "+clock, loc)
	if err != nil {
		return time.Time{}, &InvalidEventError{Reason: fmt.Sprintf("unreadable date/time %q %q", date, clock)}
	}
	return ts, nil
}

// FindDuplicate returns the first existing punch registered at the same
// date and minute as the candidate. When both sides carry a name the names
// must also match after normalization.
func FindDuplicate(c Candidate, existing []PunchEvent, loc *time.Location) (PunchEvent, bool) {
	ts, err := c.Timestamp(loc)
	if err != nil {
		return PunchEvent{}, false
	}
	name := NormalizeName(c.Name)

	for _, e := range existing {
		if !sameMinute(e.Timestamp, ts) {
			continue
		}
		if name != "" && e.ExtractedName != "" && NormalizeName(e.ExtractedName) != name {
			continue
		}
		return e, true
	}
	return PunchEvent{}, false
}

// IsDuplicate reports whether the candidate matches an existing punch.
func IsDuplicate(c Candidate, existing []PunchEvent, loc *time.Location) bool {
	_, dup := FindDuplicate(c, existing, loc)
	return dup
}

func sameMinute(a, b time.Time) bool {
	return a.Truncate(time.Minute).Equal(b.Truncate(time.Minute))
}

// NormalizeName folds case, strips accents and collapses whitespace, so
// "  JOSÉ  da Silva" and "jose da silva" compare equal.
func NormalizeName(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	// Transformers keep state, build a fresh chain per call.
	stripMarks := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(stripMarks, s)
	if err != nil {
		folded = s
	}
	folded = cases.Fold().String(folded)
	return strings.Join(strings.Fields(folded), " ")
}

// NamesMatch compares two names after normalization.
func NamesMatch(a, b string) bool {
	return NormalizeName(a) == NormalizeName(b)
}
