package reporting

import "time"

// Report is a data coverage summary of the card-market stores.
type Report struct {
	// Metadata
	GeneratedAt     time.Time
	WindowDays      int // recent-sales window
	MinCompsPerCard int // threshold for a card to count as well covered

	Summary Summary

	// Coverage checks against configured thresholds
	Checks          []CheckRow
	AllChecksPassed bool
}

// Summary holds store-wide counts.
type Summary struct {
	Cards             int `json:"cards"`
	Listings          int `json:"listings"`
	Comps             int `json:"comps"`
	CompsRecent       int `json:"compsRecent"`
	CardsWithMinComps int `json:"cardsWithMinComps"`
	RawImports        int `json:"rawImports"`
}

// CheckRow represents one coverage criterion.
type CheckRow struct {
	Name      string `json:"name"`
	Threshold string `json:"threshold"`
	Actual    string `json:"actual"`
	Pass      bool   `json:"pass"`
}
