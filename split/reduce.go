package split

import (
	"strconv"
	"strings"
)

// sessionPrefix starts every canonical session id; the digits after it count
// months since the baseline visit.
const sessionPrefix = "ses-M"

// parseSessionMonths extracts the months-since-baseline value from a
// canonical session id. Ids must round-trip through encodeSessionMonths:
// values below ten carry exactly one leading zero (ses-M03), larger values
// none (ses-M12). Anything else is rejected.
func parseSessionMonths(id string) (int, error) {
	digits, ok := strings.CutPrefix(id, sessionPrefix)
	if !ok || digits == "" {
		return 0, &MalformedSessionIDError{SessionID: id}
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n < 0 {
		return 0, &MalformedSessionIDError{SessionID: id}
	}
	if encodeSessionMonths(n) != id {
		return 0, &MalformedSessionIDError{SessionID: id}
	}
	return n, nil
}

// encodeSessionMonths renders a months value in the canonical padded form.
func encodeSessionMonths(n int) string {
	if n < 10 {
		return sessionPrefix + "0" + strconv.Itoa(n)
	}
	return sessionPrefix + strconv.Itoa(n)
}

// Reduce collapses a multi-session table to one row per subject, keeping
// each subject's chronologically earliest session. Subjects appear in the
// order they first occur in t. The kept session id is re-encoded in the
// canonical padded form; every other cell of the kept row passes through
// unchanged. t itself is not modified.
func Reduce(t *Table) (*Table, error) {
	if err := t.Require(ColParticipant, ColSession, ColDiagnosis); err != nil {
		return nil, err
	}
	order, groups, err := t.SubjectGroups()
	if err != nil {
		return nil, err
	}
	scol, _ := t.ColumnIndex(ColSession)

	b := newTableBuilder(t, len(order))
	for _, subject := range order {
		earliest := -1
		months := 0
		for _, i := range groups[subject] {
			m, err := parseSessionMonths(t.rows[i][scol])
			if err != nil {
				return nil, err
			}
			if earliest < 0 || m < months {
				earliest, months = i, m
			}
		}
		row := make([]string, len(t.rows[earliest]))
		copy(row, t.rows[earliest])
		row[scol] = encodeSessionMonths(months)
		b.appendRow(row)
	}
	return b.table(), nil
}
