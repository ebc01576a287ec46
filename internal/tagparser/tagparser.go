// Package tagparser parses CRM tag strings like "south-region, march
// contact" into a structured Tag. It is a pure transform, deliberately
// free of I/O, so the core can be tested without a live CRM.
package tagparser

import (
	"fmt"
	"strings"
	"time"
)

// Tag is a parsed CRM tag: a region slug plus an inferred contact window.
type Tag struct {
	Region string
	Month  time.Month
	Year   int
}

var monthNames = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June,
	"july": time.July, "august": time.August, "september": time.September,
	"october": time.October, "november": time.November, "december": time.December,
}

// Parse splits a tag string of the form "<region>, <month> contact" and
// infers the contact year from now: if the tag's month is on or after
// now's month, the year is this year, otherwise next year. This is the
// literal year-inference rule and is not adjusted at the January 1
// boundary — a tag parsed on January 1 for a "december contact" still
// resolves to the current year, not the one just ended.
func Parse(raw string, now time.Time) (Tag, error) {
	parts := strings.SplitN(raw, ",", 2)
	if len(parts) != 2 {
		return Tag{}, fmt.Errorf("tagparser: %q is not a \"region, month contact\" tag", raw)
	}

	region := strings.TrimSpace(parts[0])
	if region == "" {
		return Tag{}, fmt.Errorf("tagparser: %q has an empty region", raw)
	}

	monthField := strings.TrimSpace(parts[1])
	monthWord := strings.ToLower(strings.TrimSpace(strings.TrimSuffix(monthField, "contact")))
	month, ok := monthNames[monthWord]
	if !ok {
		return Tag{}, fmt.Errorf("tagparser: %q does not name a recognized month", raw)
	}

	year := now.Year()
	if month < now.Month() {
		year++
	}

	return Tag{Region: region, Month: month, Year: year}, nil
}

// String renders the tag back to its canonical "region, month contact" form.
func (t Tag) String() string {
	return fmt.Sprintf("%s, %s contact", t.Region, strings.ToLower(t.Month.String()))
}
