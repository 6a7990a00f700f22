package keyword

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"orgfinder/internal/model"
)

var clockRe = regexp.MustCompile(`\b(\d{1,2})(?::(\d{2}))?\s*(am|pm)\b`)

var dayAliases = map[string][]string{
	"monday":    {"Monday"},
	"mon":       {"Monday"},
	"tuesday":   {"Tuesday"},
	"tue":       {"Tuesday"},
	"tues":      {"Tuesday"},
	"wednesday": {"Wednesday"},
	"wed":       {"Wednesday"},
	"thursday":  {"Thursday"},
	"thu":       {"Thursday"},
	"thurs":     {"Thursday"},
	"friday":    {"Friday"},
	"fri":       {"Friday"},
	"saturday":  {"Saturday"},
	"sat":       {"Saturday"},
	"sunday":    {"Sunday"},
	"sun":       {"Sunday"},
	"weekend":   {"Saturday", "Sunday"},
	"weekends":  {"Saturday", "Sunday"},
	"weekday":   {"Monday", "Tuesday", "Wednesday", "Thursday", "Friday"},
	"weekdays":  {"Monday", "Tuesday", "Wednesday", "Thursday", "Friday"},
}

// Representative clock times for coarse day-part vocabulary.
var dayPartHours = map[string]string{
	"morning":   "9:00 AM",
	"noon":      "12:00 PM",
	"afternoon": "2:00 PM",
	"evening":   "6:00 PM",
	"night":     "8:00 PM",
	"tonight":   "8:00 PM",
}

// ParseTimeFilter derives day and hour tokens from a time fragment. Day
// names and ranges ("weekend") become capitalized day tokens; clock times
// and day-part words become canonical "H:MM AM" hour tokens. Unrecognized
// words are dropped rather than guessed at.
func ParseTimeFilter(fragment string) model.TimeFilter {
	var f model.TimeFilter
	lowered := strings.ToLower(fragment)

	seenHours := make(map[string]bool)
	for _, m := range clockRe.FindAllStringSubmatch(lowered, -1) {
		hour, err := strconv.Atoi(m[1])
		if err != nil || hour < 1 || hour > 12 {
			continue
		}
		minute := m[2]
		if minute == "" {
			minute = "00"
		}
		meridiem := "AM"
		if strings.HasPrefix(m[3], "p") {
			meridiem = "PM"
		}
		token := fmt.Sprintf("%d:%s %s", hour, minute, meridiem)
		if !seenHours[token] {
			seenHours[token] = true
			f.HourTokens = append(f.HourTokens, token)
		}
	}
	// Strip matched clock times so "8pm" does not also tokenize as "8".
	lowered = clockRe.ReplaceAllString(lowered, " ")

	seenDays := make(map[string]bool)
	for _, raw := range tokenSplitRe.Split(lowered, -1) {
		token := strings.Trim(raw, "-'")
		if token == "" {
			continue
		}
		if days, ok := dayAliases[token]; ok {
			for _, day := range days {
				if !seenDays[day] {
					seenDays[day] = true
					f.DayTokens = append(f.DayTokens, day)
				}
			}
			continue
		}
		if hour, ok := dayPartHours[token]; ok && !seenHours[hour] {
			seenHours[hour] = true
			f.HourTokens = append(f.HourTokens, hour)
		}
	}
	return f
}

// temporalWords are bare time markers that carry no place signal.
var temporalWords = map[string]bool{
	"open": true, "now": true, "today": true, "tomorrow": true,
	"hours": true, "late": true, "early": true,
}

// fillerWords connect a place or time to the rest of a phrase but are not a
// place on their own ("around 8pm" minus the time is just "around").
var fillerWords = map[string]bool{
	"around": true, "at": true, "after": true, "before": true,
	"until": true, "till": true, "by": true, "from": true, "on": true,
	"in": true, "the": true, "a": true, "an": true, "this": true,
	"next": true, "near": true, "nearby": true, "close": true, "to": true,
}

// StripTemporalVocabulary removes clock times, day names and day-part words
// from the fragment so they can never be mistaken for a place name. It
// returns the remaining words and whether any of them is substantive, i.e.
// more than connective filler.
func StripTemporalVocabulary(fragment string) (string, bool) {
	lowered := clockRe.ReplaceAllString(strings.ToLower(fragment), " ")

	var kept []string
	substantive := false
	for _, raw := range tokenSplitRe.Split(lowered, -1) {
		token := strings.Trim(raw, "-'")
		if token == "" {
			continue
		}
		if _, ok := dayAliases[token]; ok {
			continue
		}
		if _, ok := dayPartHours[token]; ok {
			continue
		}
		if temporalWords[token] {
			continue
		}
		kept = append(kept, token)
		if !fillerWords[token] {
			substantive = true
		}
	}
	return strings.Join(kept, " "), substantive
}

// ContainsTemporalVocabulary reports whether the fragment holds any time
// signal: a clock time, a day name or range, or day-part vocabulary. Used to
// keep temporal phrases out of spatial resolution.
func ContainsTemporalVocabulary(fragment string) bool {
	lowered := strings.ToLower(fragment)
	if clockRe.MatchString(lowered) {
		return true
	}
	for _, raw := range tokenSplitRe.Split(lowered, -1) {
		token := strings.Trim(raw, "-'")
		if _, ok := dayAliases[token]; ok {
			return true
		}
		if _, ok := dayPartHours[token]; ok {
			return true
		}
		if temporalWords[token] {
			return true
		}
	}
	return false
}
