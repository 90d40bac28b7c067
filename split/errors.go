package split

import "fmt"

// MissingColumnError reports a required column absent from a table header.
type MissingColumnError struct {
	Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("required column %q not found", e.Column)
}

// MalformedSessionIDError reports a session id that does not follow the
// canonical ses-M<NN> form.
type MalformedSessionIDError struct {
	SessionID string
}

func (e *MalformedSessionIDError) Error() string {
	return fmt.Sprintf("malformed session id %q (want ses-M<NN>)", e.SessionID)
}

// UnknownSubjectError reports a subject present in a subset but absent from
// the full table it is expanded against.
type UnknownSubjectError struct {
	ParticipantID string
}

func (e *UnknownSubjectError) Error() string {
	return fmt.Sprintf("subject %q not found in full table", e.ParticipantID)
}

// InsufficientSamplesError reports a diagnosis with too few subjects to
// stratify over the requested partitioning.
type InsufficientSamplesError struct {
	Label  string
	Count  int
	Needed int
}

func (e *InsufficientSamplesError) Error() string {
	return fmt.Sprintf("diagnosis %q has %d subjects, need at least %d", e.Label, e.Count, e.Needed)
}
