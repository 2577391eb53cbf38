package scene

// ApplyProgress returns copies of sections with Locked derived from the
// learner's progress: completedOrder is the Order of the last completed
// section (0 when none). A section is unlocked when it is completed or is the
// next one up.
func ApplyProgress(sections []Section, completedOrder int) []Section {
	out := make([]Section, len(sections))
	for i := range sections {
		out[i] = *sections[i].Clone()
		out[i].Locked = sections[i].Order > completedOrder+1
	}
	return out
}
