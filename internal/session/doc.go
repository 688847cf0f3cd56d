// Package session owns the recording session state machine.
//
// A Controller holds exactly one Session at a time and moves it through
// Idle, Recording, Transcribing, Analyzing, and Done, or into Error from any
// of the three working states. Sessions are value objects: every change goes
// through a transition method that returns the next Session, and the
// controller replaces its copy under its lock. After Stop the decode,
// transcribe, and analyze stages run as one sequential chain that
// short-circuits on the first failure.
package session
