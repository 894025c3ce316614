// Package models defines the inbound event union shared by transports and the
// dialogue engine.
package models

// EventKind tags an inbound event. The set is closed: transports decode raw
// payloads into exactly one of these kinds at the boundary, and nothing
// downstream re-parses payload strings.
type EventKind string

const (
	// EventText carries free-form text input for the current step.
	EventText EventKind = "text"
	// EventToggle flips membership of Text in the active selection set.
	EventToggle EventKind = "toggle"
	// EventDone completes the active multi-select step.
	EventDone EventKind = "done"
	// EventSkip skips the optional media step.
	EventSkip EventKind = "skip"
	// EventCancel aborts the dialogue.
	EventCancel EventKind = "cancel"
	// EventPhoto carries an opaque photo reference for the media step.
	EventPhoto EventKind = "photo"
	// EventCommand carries a named bot command (register, myprofile, ...).
	EventCommand EventKind = "command"
)

// Command names produced by the transport decoder.
const (
	CommandRegister  = "register"
	CommandMyProfile = "myprofile"
	CommandUpdate    = "update"
	CommandFind      = "find"
	CommandHelp      = "help"
)

// Event is one decoded inbound event from a messenger transport, tagged with
// the subject identity.
type Event struct {
	Identity string    `json:"identity"`
	Kind     EventKind `json:"kind"`
	// Text holds the free-form payload for EventText, the selection value
	// for EventToggle, the command name for EventCommand, and the photo
	// reference for EventPhoto.
	Text string `json:"text,omitempty"`
	// Args holds the remainder of a command line for EventCommand.
	Args string `json:"args,omitempty"`
	Time int64  `json:"time"`
}
