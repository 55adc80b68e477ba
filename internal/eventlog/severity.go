package eventlog

import (
	"fmt"
	"strings"
)

type Severity int

const (
	Info Severity = iota
	Notice
	Warning
	Error
)

var severityNames = [...]string{"info", "notice", "warning", "error"}

func (s Severity) String() string {
	if s < Info || s > Error {
		return fmt.Sprintf("severity(%d)", int(s))
	}
	return severityNames[s]
}

// ParseSeverity maps a level name back to its Severity.
func ParseSeverity(raw string) (Severity, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	for i, candidate := range severityNames {
		if candidate == name {
			return Severity(i), nil
		}
	}
	return Info, fmt.Errorf("eventlog: unknown severity %q", raw)
}
