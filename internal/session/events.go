package session

// EventKind discriminates the inbound event variants.
type EventKind int

const (
	// EventText is free-form text typed by the user.
	EventText EventKind = iota
	// EventCommand is a slash command, with the leading slash stripped.
	EventCommand
	// EventButton is an inline keyboard press, carrying the callback data
	// of the pressed button.
	EventButton
)

// Event is one inbound user action. "Skip", "back" and "cancel" arrive as
// button events with their own callback data, never as sentinel text — a
// user typing the literal word "пропустить" is just entering text.
type Event struct {
	Kind   EventKind
	Text   string
	Button string
}

// TextEvent builds a text event.
func TextEvent(s string) Event { return Event{Kind: EventText, Text: s} }

// CommandEvent builds a command event.
func CommandEvent(name string) Event { return Event{Kind: EventCommand, Text: name} }

// ButtonEvent builds a button event.
func ButtonEvent(data string) Event { return Event{Kind: EventButton, Button: data} }

// Callback data values for the trip dialogue keyboards.
const (
	BtnNewEntry    = "new_entry"
	BtnLastEntries = "last_entries"
	BtnEditLast    = "edit_last"
	BtnHelp        = "help"
	BtnExport      = "export"
	BtnMainMenu    = "main_menu"
	BtnCancel      = "cancel"

	BtnTimeNow       = "time_now"
	BtnTimeManual    = "time_manual"
	BtnEndTimeNow    = "end_time_now"
	BtnEndTimeManual = "end_time_manual"
	BtnSkipProject   = "skip_project"
	BtnSkipAddress   = "skip_address"
	BtnConfirmSave   = "confirm_save"
	BtnGoBack        = "go_back"

	BtnEditProject = "edit_project"
	BtnEditAddress = "edit_address"
	BtnEditComment = "edit_comment"
)
