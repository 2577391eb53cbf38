package scoring

import "math"

// SessionScore is the result of one capture, or of a whole section when
// Captures > 1. It is immutable after creation.
type SessionScore struct {
	// ConfidencePoints is the confidence percentage rounded to 0..100.
	ConfidencePoints int `json:"confidencePoints"`

	// SpeechPoints is 0, 5 or 10 for a capture and the sum for a section.
	SpeechPoints int `json:"speechPoints"`

	TotalPoints    int    `json:"totalPoints"`
	Recommendation string `json:"recommendation"`

	// Captures is the number of captures the score covers.
	Captures int `json:"captures"`
}

// CaptureScore combines an aggregator mean and speech points.
func CaptureScore(mean float64, speechPoints int) SessionScore {
	conf := int(math.Round(Percentage(mean)))
	return SessionScore{
		ConfidencePoints: conf,
		SpeechPoints:     speechPoints,
		TotalPoints:      conf + speechPoints,
		Recommendation:   Recommend(float64(conf), float64(speechPoints)),
		Captures:         1,
	}
}

// SectionScore aggregates capture scores: confidence is averaged, speech and
// total points are summed. A section without captures scores zero.
func SectionScore(captures []SessionScore) SessionScore {
	if len(captures) == 0 {
		return SessionScore{Recommendation: recommendNoCaptures}
	}
	var conf, speech, total int
	for _, c := range captures {
		conf += c.ConfidencePoints
		speech += c.SpeechPoints
		total += c.TotalPoints
	}
	n := float64(len(captures))
	meanConf := float64(conf) / n
	return SessionScore{
		ConfidencePoints: int(math.Round(meanConf)),
		SpeechPoints:     speech,
		TotalPoints:      total,
		Recommendation:   Recommend(meanConf, float64(speech)/n),
		Captures:         len(captures),
	}
}

const (
	recommendNoCaptures = "Section finished. There was nothing to score this time."
	recommendExcellent  = "Excellent delivery. You are ready for the next section."
	recommendNoSpeech   = "We could not match your speech to the sentence. Listen to the example again and repeat it aloud."
	recommendTense      = "Your words were on point but you looked tense. Take a breath and try again slowly."
	recommendWording    = "You looked comfortable. Focus on saying every word of the sentence."
	recommendKeepGoing  = "Good progress. Repeat the exercise to build fluency."
)

// Recommend picks a hint from a confidence percentage and speech points per
// capture.
func Recommend(confidencePct, speechPoints float64) string {
	switch {
	case confidencePct >= 70 && speechPoints >= SpeechPointsFull:
		return recommendExcellent
	case speechPoints <= SpeechPointsNone:
		return recommendNoSpeech
	case confidencePct < 40:
		return recommendTense
	case speechPoints < SpeechPointsFull && confidencePct >= 70:
		return recommendWording
	default:
		return recommendKeepGoing
	}
}
