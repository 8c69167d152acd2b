package data

import "time"

// Run is one completed booklet download, as recorded in the history
// database.
type Run struct {
	BookletID  string
	Title      string
	Chapters   int
	Succeeded  int
	Images     int
	OutputPath string
	FinishedAt time.Time
}
