package alert

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/watchdesk/watchdesk/internal/dispatch"
)

// fakeScheduler records scheduled callbacks; tests fire them explicitly.
type fakeScheduler struct {
	mu    sync.Mutex
	steps []*fakeTimer
}

type fakeTimer struct {
	delay   time.Duration
	fn      func()
	fired   bool
	stopped bool
	mu      *sync.Mutex
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{delay: d, fn: f, mu: &s.mu}
	s.steps = append(s.steps, t)
	return t
}

func (s *fakeScheduler) delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, 0, len(s.steps))
	for _, t := range s.steps {
		out = append(out, t.delay)
	}
	return out
}

// fireAll runs every unfired, unstopped callback in delay order.
func (s *fakeScheduler) fireAll() {
	s.mu.Lock()
	var due []*fakeTimer
	for _, t := range s.steps {
		if !t.fired && !t.stopped {
			t.fired = true
			due = append(due, t)
		}
	}
	s.mu.Unlock()
	sort.SliceStable(due, func(i, j int) bool { return due[i].delay < due[j].delay })
	for _, t := range due {
		t.fn()
	}
}

type fakePlayer struct {
	mu       sync.Mutex
	tones    int
	played   []string
	toneErr  error
	playErr  error
	playHook func()
}

func (p *fakePlayer) Tone(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tones++
	return p.toneErr
}

func (p *fakePlayer) Play(ctx context.Context, path string) error {
	if p.playHook != nil {
		p.playHook()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.played = append(p.played, path)
	return p.playErr
}

func (p *fakePlayer) counts() (int, []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tones, append([]string(nil), p.played...)
}

type recordedAlert struct {
	callID string
	muted  bool
}

type fakeRecorder struct {
	mu      sync.Mutex
	entries []recordedAlert
}

func (r *fakeRecorder) RecordAlert(ctx context.Context, in dispatch.AlertIntent, muted bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, recordedAlert{callID: in.CallID, muted: muted})
	return nil
}

func newTestSequencer(t *testing.T, player Player, opts ...Option) (*Sequencer, *fakeScheduler) {
	t.Helper()
	sched := &fakeScheduler{}
	q := NewSequencer(player, DefaultConfig(), append([]Option{WithScheduler(sched)}, opts...)...)
	t.Cleanup(q.Close)
	return q, sched
}

func TestEnqueue_TwoPulsesThenAudio(t *testing.T) {
	player := &fakePlayer{}
	q, sched := newTestSequencer(t, player)

	q.Enqueue([]dispatch.AlertIntent{{CallID: "c1", Priority: 1, AudioRef: "/tmp/c1.mp3"}})

	require.Equal(t, []time.Duration{0, DefaultPulseGap, DefaultAudioDelay}, sched.delays())
	require.Equal(t, 3, q.Pending())

	sched.fireAll()
	tones, played := player.counts()
	require.Equal(t, 2, tones)
	require.Equal(t, []string{"/tmp/c1.mp3"}, played)
	require.Zero(t, q.Pending())
}

func TestEnqueue_NoAudioReferenceOnlyPulses(t *testing.T) {
	player := &fakePlayer{}
	q, sched := newTestSequencer(t, player)

	q.Enqueue([]dispatch.AlertIntent{{CallID: "c1", Priority: 2}})
	require.Equal(t, []time.Duration{0, DefaultPulseGap}, sched.delays())

	sched.fireAll()
	tones, played := player.counts()
	require.Equal(t, 2, tones)
	require.Empty(t, played)
}

func TestEnqueue_ZeroIntentsIsNoop(t *testing.T) {
	recorder := &fakeRecorder{}
	q, sched := newTestSequencer(t, &fakePlayer{}, WithRecorder(recorder))

	q.Enqueue(nil)
	q.Enqueue([]dispatch.AlertIntent{})

	require.Empty(t, sched.delays())
	require.Empty(t, recorder.entries)
}

func TestEnqueue_MutedSchedulesNothingButJournals(t *testing.T) {
	player := &fakePlayer{}
	recorder := &fakeRecorder{}
	q, sched := newTestSequencer(t, player, WithRecorder(recorder))

	q.Mute()
	q.Enqueue([]dispatch.AlertIntent{{CallID: "c1", AudioRef: "/tmp/a.mp3"}, {CallID: "c2"}})
	sched.fireAll()

	tones, played := player.counts()
	require.Zero(t, tones)
	require.Empty(t, played)
	require.Equal(t, []recordedAlert{{"c1", true}, {"c2", true}}, recorder.entries)
}

func TestMuteMidSequenceDoesNotCancelScheduled(t *testing.T) {
	player := &fakePlayer{}
	q, sched := newTestSequencer(t, player)

	q.Enqueue([]dispatch.AlertIntent{{CallID: "c1", AudioRef: "/tmp/a.mp3"}})
	q.Mute()
	q.Enqueue([]dispatch.AlertIntent{{CallID: "c2", AudioRef: "/tmp/b.mp3"}})
	sched.fireAll()

	tones, played := player.counts()
	require.Equal(t, 2, tones)
	require.Equal(t, []string{"/tmp/a.mp3"}, played)
}

func TestToggle(t *testing.T) {
	q := NewSequencer(NoopPlayer{}, Config{Muted: true})
	defer q.Close()

	require.True(t, q.Muted())
	require.False(t, q.Toggle())
	require.False(t, q.Muted())
	require.True(t, q.Toggle())
	q.Unmute()
	require.False(t, q.Muted())
}

func TestEnqueue_FailuresAreIsolated(t *testing.T) {
	player := &fakePlayer{toneErr: errors.New("device busy"), playErr: errors.New("decode error")}
	q, sched := newTestSequencer(t, player)

	q.Enqueue([]dispatch.AlertIntent{
		{CallID: "c1", AudioRef: "/tmp/a.mp3"},
		{CallID: "c2", AudioRef: "/tmp/b.mp3"},
	})
	require.NotPanics(t, sched.fireAll)

	tones, played := player.counts()
	require.Equal(t, 4, tones)
	require.ElementsMatch(t, []string{"/tmp/a.mp3", "/tmp/b.mp3"}, played)
}

type fakeFetcher struct {
	err error
}

func (f fakeFetcher) Fetch(ctx context.Context, ref string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "/cache/" + ref, nil
}

func TestEnqueue_FetcherResolvesReference(t *testing.T) {
	player := &fakePlayer{}
	q, sched := newTestSequencer(t, player, WithFetcher(fakeFetcher{}))

	q.Enqueue([]dispatch.AlertIntent{{CallID: "c1", AudioRef: "c1.mp3"}})
	sched.fireAll()

	_, played := player.counts()
	require.Equal(t, []string{"/cache/c1.mp3"}, played)
}

func TestEnqueue_FetchFailureStillPulses(t *testing.T) {
	player := &fakePlayer{}
	q, sched := newTestSequencer(t, player, WithFetcher(fakeFetcher{err: errors.New("404")}))

	q.Enqueue([]dispatch.AlertIntent{{CallID: "c1", AudioRef: "c1.mp3"}})
	sched.fireAll()

	tones, played := player.counts()
	require.Equal(t, 2, tones)
	require.Empty(t, played)
}

func TestClose_CancelsPendingAndRejectsNewWork(t *testing.T) {
	player := &fakePlayer{}
	sched := &fakeScheduler{}
	q := NewSequencer(player, DefaultConfig(), WithScheduler(sched))

	q.Enqueue([]dispatch.AlertIntent{{CallID: "c1", AudioRef: "/tmp/a.mp3"}})
	q.Close()
	q.Close()

	require.Zero(t, q.Pending())
	sched.fireAll()
	tones, played := player.counts()
	require.Zero(t, tones)
	require.Empty(t, played)

	q.Enqueue([]dispatch.AlertIntent{{CallID: "c2"}})
	require.Len(t, sched.delays(), 3)
}

func TestEnqueue_ConcurrentSessionsDoNotSerialize(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 2)
	player := &fakePlayer{playHook: func() {
		started <- struct{}{}
		<-release
	}}
	q := NewSequencer(player, Config{PulseGap: time.Millisecond, AudioDelay: 2 * time.Millisecond})

	q.Enqueue([]dispatch.AlertIntent{
		{CallID: "c1", AudioRef: "/tmp/a.mp3"},
		{CallID: "c2", AudioRef: "/tmp/b.mp3"},
	})

	for i := 0; i < 2; i++ {
		select {
		case <-started:
		case <-time.After(2 * time.Second):
			t.Fatal("second playback blocked behind the first")
		}
	}
	close(release)
	q.Close()
}

func TestClose_RacingEnqueueWithFetcher(t *testing.T) {
	for round := 0; round < 20; round++ {
		q := NewSequencer(&fakePlayer{}, Config{PulseGap: time.Millisecond, AudioDelay: time.Millisecond, PlayLimit: time.Second},
			WithFetcher(fakeFetcher{}))

		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 10; j++ {
					q.Enqueue([]dispatch.AlertIntent{{CallID: "c1", AudioRef: "c1.mp3"}})
				}
			}()
		}
		require.NotPanics(t, q.Close)
		wg.Wait()
		require.Zero(t, q.Pending())
	}
}
