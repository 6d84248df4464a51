package dispatch

// AlertIntent asks the alert sequencer to announce one call. It is consumed
// exactly once.
type AlertIntent struct {
	CallID   string
	Priority int
	AudioRef string
	Summary  string
}

// HasAudio reports whether the intent carries a dispatch recording.
func (a AlertIntent) HasAudio() bool {
	return a.AudioRef != ""
}

// Detect returns an intent for every call in current that is alert-worthy
// and was not already alert-worthy under the same id in previous. Results
// follow current's order.
//
// When both sides carry a version, a current entry older than the previous
// entry comes from an out-of-order fetch and never alerts.
func Detect(previous *Snapshot, current []Call) []AlertIntent {
	var intents []AlertIntent
	for _, c := range current {
		if !c.Status.AlertWorthy() {
			continue
		}
		if prev, ok := previous.Get(c.ID); ok {
			if prev.Status.AlertWorthy() {
				continue
			}
			if prev.Version != 0 && c.Version != 0 && c.Version < prev.Version {
				continue
			}
		}
		intents = append(intents, AlertIntent{
			CallID:   c.ID,
			Priority: c.Priority,
			AudioRef: c.DispatchAudioURL,
			Summary:  c.Summary(),
		})
	}
	return intents
}
