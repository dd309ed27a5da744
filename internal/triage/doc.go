// Package triage orchestrates answering a patient question: fetch the
// patient's clinical summary, ground a prompt in it, generate a response
// through the selected model backend, and log the conversation. Every run is
// correlated by a trace id that survives into the response and the audit
// trail.
package triage
