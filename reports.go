package corofleet

import "strings"

// Severity classifies a report item.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
)

// Report is one structured finding produced while validating options or
// running a multi-step operation. Forced operations downgrade most errors to
// warnings instead of dropping them.
type Report struct {
	Severity Severity
	Message  string
	Node     string
}

func (r Report) String() string {
	prefix := "Error: "
	if r.Severity == SeverityWarning {
		prefix = "Warning: "
	}
	if r.Node != "" {
		return prefix + r.Node + ": " + r.Message
	}
	return prefix + r.Message
}

// Reports is an ordered list of report items.
type Reports []Report

func (rs Reports) String() string {
	lines := make([]string, len(rs))
	for i, r := range rs {
		lines[i] = r.String()
	}
	return strings.Join(lines, "\n")
}

// HasErrors reports whether any item is error-severity.
func (rs Reports) HasErrors() bool {
	for _, r := range rs {
		if r.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Warnings returns only the warning-severity items.
func (rs Reports) Warnings() Reports {
	var out Reports
	for _, r := range rs {
		if r.Severity == SeverityWarning {
			out = append(out, r)
		}
	}
	return out
}

// Err returns a ValidationError when the list contains errors, nil otherwise.
func (rs Reports) Err() error {
	if rs.HasErrors() {
		return &ValidationError{Reports: rs}
	}
	return nil
}

// report builds an item whose severity depends on whether the caller forced
// the operation: forced findings are downgraded to warnings.
func report(forced bool, message string) Report {
	severity := SeverityError
	if forced {
		severity = SeverityWarning
	}
	return Report{Severity: severity, Message: message}
}
