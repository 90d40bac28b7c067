package split

// Expand re-expands a subject-level subset to every session those subjects
// have in the full table. Per-subject row blocks follow the iteration order
// of subset's rows; inside a block, rows keep their order from full. The
// result carries full's columns and shares its row storage; neither input is
// modified.
func Expand(full, subset *Table) (*Table, error) {
	if err := subset.Require(ColParticipant); err != nil {
		return nil, err
	}
	_, groups, err := full.SubjectGroups()
	if err != nil {
		return nil, err
	}
	pcol, _ := subset.ColumnIndex(ColParticipant)

	total := 0
	for i := 0; i < subset.Len(); i++ {
		subject := subset.rows[i][pcol]
		rows, ok := groups[subject]
		if !ok {
			return nil, &UnknownSubjectError{ParticipantID: subject}
		}
		total += len(rows)
	}

	b := newTableBuilder(full, total)
	for i := 0; i < subset.Len(); i++ {
		for _, j := range groups[subset.rows[i][pcol]] {
			b.appendRow(full.rows[j])
		}
	}
	return b.table(), nil
}
