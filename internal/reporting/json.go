package reporting

import "encoding/json"

// jsonReport is the machine-readable form of Report.
type jsonReport struct {
	GeneratedAt     string     `json:"generatedAt"`
	WindowDays      int        `json:"windowDays"`
	MinCompsPerCard int        `json:"minCompsPerCard"`
	Summary         Summary    `json:"summary"`
	Checks          []CheckRow `json:"checks,omitempty"`
	AllChecksPassed bool       `json:"allChecksPassed"`
}

// RenderJSON renders report as indented JSON.
func RenderJSON(r *Report) (string, error) {
	b, err := json.MarshalIndent(jsonReport{
		GeneratedAt:     r.GeneratedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		WindowDays:      r.WindowDays,
		MinCompsPerCard: r.MinCompsPerCard,
		Summary:         r.Summary,
		Checks:          r.Checks,
		AllChecksPassed: r.AllChecksPassed,
	}, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b) + "\n", nil
}
