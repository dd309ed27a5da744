package rag

// ScrubPHI removes protected health information from request fields before
// they reach log output. Currently a pass-through: the call site marks the
// boundary where de-identification (HIPAA Safe Harbor) will happen.
//
// TODO: mask MRNs and names once the de-identification ruleset is approved.
func ScrubPHI(fields map[string]string) map[string]string {
	return fields
}
