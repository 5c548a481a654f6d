package domain

// Reply is the single outbound message a dialogue step produces.
// Text may contain Telegram HTML markup. A zero Reply (empty Text) means
// the step produced no outbound message.
type Reply struct {
	Text     string
	Keyboard [][]Button

	// Edit asks the transport to edit the message the pressed button was
	// attached to instead of sending a new one.
	Edit bool

	// ShowMenu asks the transport to follow up with the main menu after a
	// short cosmetic pause (zero under tests).
	ShowMenu bool
}

// Button is one inline keyboard button. Data is the callback payload the
// transport echoes back as a button event.
type Button struct {
	Label string
	Data  string
}

// Row builds one keyboard row.
func Row(buttons ...Button) []Button { return buttons }
