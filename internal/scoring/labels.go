package scoring

import "strings"

// Label is a visual classifier output on the relaxed/anxious scale.
type Label string

const (
	LabelVeryRelaxed   Label = "very_relaxed"
	LabelRelaxed       Label = "relaxed"
	LabelMildlyAnxious Label = "mildly_anxious"
	LabelAnxious       Label = "anxious"
	LabelVeryAnxious   Label = "very_anxious"
)

var labelPoints = map[Label]int{
	LabelVeryRelaxed:   5,
	LabelRelaxed:       4,
	LabelMildlyAnxious: 3,
	LabelAnxious:       2,
	LabelVeryAnxious:   1,
}

// LabelPoints returns the frame score for l, or 0 when the label is not
// recognised. Matching ignores case and surrounding whitespace.
func LabelPoints(l Label) int {
	return labelPoints[Label(strings.ToLower(strings.TrimSpace(string(l))))]
}
