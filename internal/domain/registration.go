package domain

import "time"

// Registration is one registered user of the bot.
// FullName is the display name resolved into the engineer column at commit
// time; it is never taken from the trip input itself.
type Registration struct {
	UserID    int64
	FullName  string
	CreatedAt time.Time
}
