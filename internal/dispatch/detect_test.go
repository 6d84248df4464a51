package dispatch

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func call(id string, status CallStatus) Call {
	return Call{ID: id, Status: status, Priority: 3, CreatedAt: time.Unix(1700000000, 0)}
}

func snapshotOf(calls ...Call) *Snapshot {
	return NewSnapshot(calls, time.Now())
}

func intentIDs(intents []AlertIntent) []string {
	ids := make([]string, 0, len(intents))
	for _, in := range intents {
		ids = append(ids, in.CallID)
	}
	return ids
}

func TestDetect_NewActiveCallAlongsideDispatched(t *testing.T) {
	prev := snapshotOf(call("A", CallDispatched))
	current := []Call{call("A", CallDispatched), call("B", CallActive)}

	intents := Detect(prev, current)

	require.Equal(t, []string{"B"}, intentIDs(intents))
}

func TestDetect_AlreadyActiveDoesNotRealert(t *testing.T) {
	prev := snapshotOf(call("A", CallActive))

	intents := Detect(prev, []Call{call("A", CallActive)})

	require.Empty(t, intents)
}

func TestDetect_ReenteringActiveAlertsAgain(t *testing.T) {
	prev := snapshotOf(call("A", CallDispatched))

	intents := Detect(prev, []Call{call("A", CallActive)})

	require.Equal(t, []string{"A"}, intentIDs(intents))
}

func TestDetect_EmptyPreviousAlertsEveryActive(t *testing.T) {
	current := []Call{call("A", CallActive), call("B", CallOnScene), call("C", CallActive)}

	require.Equal(t, []string{"A", "C"}, intentIDs(Detect(nil, current)))
	require.Equal(t, []string{"A", "C"}, intentIDs(Detect(NewSnapshotStore().Load(), current)))
}

func TestDetect_CarriesPriorityAndAudio(t *testing.T) {
	c := call("A", CallActive)
	c.Priority = 1
	c.DispatchAudioURL = "/static/dispatch/A.mp3"
	c.IncidentType = "Fire"
	c.Location = "12 Elm St"

	intents := Detect(nil, []Call{c})

	require.Len(t, intents, 1)
	require.Equal(t, 1, intents[0].Priority)
	require.True(t, intents[0].HasAudio())
	require.Equal(t, "/static/dispatch/A.mp3", intents[0].AudioRef)
	require.Equal(t, "Fire - 12 Elm St", intents[0].Summary)
}

func TestDetect_StaleVersionIgnored(t *testing.T) {
	prevCall := call("A", CallDispatched)
	prevCall.Version = 7
	stale := call("A", CallActive)
	stale.Version = 5

	require.Empty(t, Detect(snapshotOf(prevCall), []Call{stale}))

	fresh := call("A", CallActive)
	fresh.Version = 8
	require.Equal(t, []string{"A"}, intentIDs(Detect(snapshotOf(prevCall), []Call{fresh})))
}

func TestDetect_UnversionedCallsIgnoreGuard(t *testing.T) {
	prevCall := call("A", CallDispatched)
	prevCall.Version = 7

	require.Equal(t, []string{"A"}, intentIDs(Detect(snapshotOf(prevCall), []Call{call("A", CallActive)})))
}

func TestDetect_DoesNotMutatePrevious(t *testing.T) {
	prev := snapshotOf(call("A", CallDispatched))
	_ = Detect(prev, []Call{call("A", CallActive), call("B", CallActive)})

	got, ok := prev.Get("A")
	require.True(t, ok)
	require.Equal(t, CallDispatched, got.Status)
	require.Equal(t, 1, prev.Len())
}

// TestDetect_AtMostOneAlertPerActiveStreak drives random status histories
// through Detect and checks that each call alerts exactly once per
// continuous Active streak.
func TestDetect_AtMostOneAlertPerActiveStreak(t *testing.T) {
	statuses := []CallStatus{CallActive, CallDispatched, CallOnScene, CallClosed}

	rapid.Check(t, func(r *rapid.T) {
		numCalls := rapid.IntRange(1, 6).Draw(r, "numCalls")
		numPolls := rapid.IntRange(1, 25).Draw(r, "numPolls")

		var prev *Snapshot
		wasActive := make(map[string]bool)
		alerts := make(map[string]int)
		streaks := make(map[string]int)

		for poll := 0; poll < numPolls; poll++ {
			var current []Call
			for i := 0; i < numCalls; i++ {
				id := fmt.Sprintf("call-%d", i)
				present := rapid.Bool().Draw(r, "present")
				if !present {
					wasActive[id] = false
					continue
				}
				status := rapid.SampledFrom(statuses).Draw(r, "status")
				current = append(current, call(id, status))
				if status == CallActive && !wasActive[id] {
					streaks[id]++
				}
				wasActive[id] = status == CallActive
			}

			for _, in := range Detect(prev, current) {
				alerts[in.CallID]++
			}
			prev = NewSnapshot(current, time.Now())
		}

		for id, n := range alerts {
			if n != streaks[id] {
				r.Fatalf("call %s alerted %d times across %d Active streaks", id, n, streaks[id])
			}
		}
		for id, n := range streaks {
			if alerts[id] != n {
				r.Fatalf("call %s had %d Active streaks but %d alerts", id, n, alerts[id])
			}
		}
	})
}
