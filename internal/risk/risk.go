// Package risk implements the 5x5 severity x likelihood classification used
// by every risk view.
package risk

// Level classifies a scored risk.
type Level string

const (
	Low    Level = "Low"
	Medium Level = "Medium"
	High   Level = "High"
)

const (
	// MinRating and MaxRating bound severity and likelihood values.
	MinRating = 1
	MaxRating = 5
)

// Score maps severity x likelihood to a level. severity*likelihood >= 15 is
// High, >= 8 is Medium, anything below is Low.
func Score(severity, likelihood int) Level {
	value := severity * likelihood
	switch {
	case value >= 15:
		return High
	case value >= 8:
		return Medium
	default:
		return Low
	}
}

// Value returns the raw severity*likelihood product shown in matrix cells.
func Value(severity, likelihood int) int {
	return severity * likelihood
}

// ValidRating reports whether v is inside [MinRating, MaxRating].
func ValidRating(v int) bool {
	return v >= MinRating && v <= MaxRating
}
