// Package correlation links backend task records to Gmail threads.
//
// Task backends have no foreign-key column for a thread, so the thread id is
// embedded in the task's free-text notes as "gmail_thread_id: <id>". All
// encoding, decoding and matching of that marker goes through this package.
package correlation

import (
	"regexp"
	"strings"
)

// Prefix is the marker label written into task notes.
const Prefix = "gmail_thread_id: "

var markerRe = regexp.MustCompile(`gmail_thread_id: ([^\s"]+)`)

// Sanitize strips characters that would break a backend search filter.
func Sanitize(threadID string) string {
	return strings.TrimSpace(strings.ReplaceAll(threadID, `"`, ""))
}

// Marker returns the marker line for a thread.
func Marker(threadID string) string {
	return Prefix + Sanitize(threadID)
}

// Encode appends the marker to notes, separated by a rule.
func Encode(notes, threadID string) string {
	if notes == "" {
		return Marker(threadID)
	}
	return notes + "\n\n-----\n\n" + Marker(threadID)
}

// Decode returns the thread id carried by notes. When several markers are
// present the last one wins.
func Decode(notes string) (string, bool) {
	all := markerRe.FindAllStringSubmatch(notes, -1)
	if len(all) == 0 {
		return "", false
	}
	return all[len(all)-1][1], true
}

// Matches reports whether notes carry a marker for exactly threadID.
func Matches(notes, threadID string) bool {
	want := Sanitize(threadID)
	if want == "" {
		return false
	}
	for _, m := range markerRe.FindAllStringSubmatch(notes, -1) {
		if m[1] == want {
			return true
		}
	}
	return false
}
