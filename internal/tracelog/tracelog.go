// Package tracelog parses the line-oriented output of the UI automation tool.
//
// Every line the tool emits follows a fixed prefix format
//
//	YYYY-MM-DD HH:MM:SS ±HHMM LABEL: MESSAGE
//
// Parse extracts the structured fields and classifies the label into a
// Status. Lines that do not match the prefix are not an error: the raw text
// is preserved and all structured fields stay empty.
package tracelog

import (
	"regexp"
	"strings"
)

// Status is the classification of a single log line.
type Status string

const (
	StatusStart   Status = "start"
	StatusStopped Status = "stopped"
	StatusPass    Status = "pass"
	StatusFail    Status = "fail"
	StatusError   Status = "error"
	StatusWarning Status = "warning"
	StatusIssue   Status = "issue"
	StatusDefault Status = "default"
	StatusDebug   Status = "debug"
	StatusUnknown Status = "unknown"
)

// statusOrder is matched against the label first to last; the first pattern
// contained in the label wins. Labels can carry several keywords at once
// (e.g. "Fail: The target application appears to have died" also contains
// "error" elsewhere in some tool builds), so the order is load-bearing.
var statusOrder = []Status{
	StatusStart,
	StatusStopped,
	StatusPass,
	StatusFail,
	StatusError,
	StatusWarning,
	StatusIssue,
	StatusDefault,
	StatusDebug,
}

// Message is one classified log line. Constructed per line, immutable,
// discarded after listener dispatch.
type Message struct {
	Raw    string // original line, verbatim
	Text   string // payload after the "LABEL: " prefix
	Date   string // YYYY-MM-DD
	Time   string // HH:MM:SS
	Offset string // ±HHMM
	Status Status
}

var lineRx = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}) (\d{2}:\d{2}:\d{2}) ([+-]\d{4}) ([^:]+): (.*)$`)

// Parse turns one raw line into a Message. It never fails: input that does
// not match the prefix format yields a Message with empty structured fields
// and Raw preserved.
func Parse(raw string) Message {
	m := lineRx.FindStringSubmatch(raw)
	if m == nil {
		return Message{Raw: raw}
	}
	return Message{
		Raw:    raw,
		Date:   m[1],
		Time:   m[2],
		Offset: m[3],
		Text:   m[5],
		Status: classify(m[4]),
	}
}

func classify(label string) Status {
	l := strings.ToLower(label)
	for _, s := range statusOrder {
		if strings.Contains(l, string(s)) {
			return s
		}
	}
	return StatusUnknown
}
