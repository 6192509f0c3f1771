package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/chadiek/smileright-voice/internal/language"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestManager(t *testing.T, n Notifier, a Archiver) *Manager {
	t.Helper()
	m, err := NewManager(Dependencies{
		Location:  time.UTC,
		Extractor: &fakeExtractor{},
		Notifier:  n,
		Archiver:  a,
	})
	require.NoError(t, err)
	t.Cleanup(m.Shutdown)
	return m
}

func TestSession_CompletesAndArchives(t *testing.T) {
	arch := &recordingArchiver{}
	notif := &recordingNotifier{}
	m := newTestManager(t, notif, arch)
	ctx := context.Background()

	s, greeting, err := m.Open(ctx, "call-1", "+15145859691")
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultGreeting}, greeting.Responses)

	for _, v := range []string{"Hello I need an appointment", monday9, "Ada", "Lovelace", "same", "cleaning"} {
		out, err := s.Say(ctx, Utterance{Text: v})
		require.NoError(t, err)
		require.False(t, out.Ended, v)
	}
	assert.Equal(t, language.English, s.Language())

	out, err := s.Say(ctx, Utterance{Text: "yes"})
	require.NoError(t, err)
	assert.True(t, out.Ended)

	<-s.Done()
	rec, ok := s.Record()
	require.True(t, ok)
	assert.Equal(t, EndCompleted, rec.EndReason)
	assert.True(t, rec.Confirmed)
	assert.Empty(t, rec.Missing)
	assert.Equal(t, "2025-06-02T09:00:00Z", rec.Booking[SlotDateTime])
	assert.Equal(t, "(1) 514 585 9691", rec.Booking[SlotPhone])
	assert.Equal(t, EnglishBookingID, rec.ActiveHandler)

	require.Len(t, arch.records(), 1)
	assert.Equal(t, "call-1", arch.records()[0].SessionID)
	assert.Len(t, notif.calls, 1)

	_, err = s.Say(ctx, Utterance{Text: "hello?"})
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.Len(t, s.Transitions(), 1)
	assert.Equal(t, language.English, s.Language())

	_, live := m.Get("call-1")
	assert.False(t, live)
}

func bookThrough(t *testing.T, s *Session) {
	t.Helper()
	for _, v := range []string{"Hello I need an appointment", monday9, "Ada", "Lovelace", "5145859691", "cleaning"} {
		out, err := s.Say(context.Background(), Utterance{Text: v})
		require.NoError(t, err)
		require.False(t, out.Ended, v)
	}
}

func TestSession_ClosingTurnDoesNotWaitForArchive(t *testing.T) {
	g := newGate()
	m := newTestManager(t, nil, gatedArchiver{g})
	s, _, err := m.Open(context.Background(), "slow-archive", "")
	require.NoError(t, err)
	bookThrough(t, s)

	out, err := s.Say(context.Background(), Utterance{Text: "yes"})
	require.NoError(t, err)
	assert.True(t, out.Ended)
	assert.Equal(t, language.English, out.Language)
	assert.Equal(t, []string{DefaultPrompts(language.English).Closing}, out.Responses)

	<-g.entered
	_, ended := s.Record()
	assert.False(t, ended, "archive still in flight")
	close(g.release)
	<-s.Done()
}

func TestSession_NotifiesAfterClosingTurn(t *testing.T) {
	g := newGate()
	m := newTestManager(t, gatedNotifier{g}, nil)
	s, _, err := m.Open(context.Background(), "slow-sms", "")
	require.NoError(t, err)
	bookThrough(t, s)

	out, err := s.Say(context.Background(), Utterance{Text: "yes"})
	require.NoError(t, err)
	assert.True(t, out.Ended)

	<-g.entered
	close(g.release)
	<-s.Done()
}

func TestSession_NotifierErrorStillArchives(t *testing.T) {
	arch := &recordingArchiver{}
	notif := &recordingNotifier{err: errors.New("twilio down")}
	m := newTestManager(t, notif, arch)
	s, _, err := m.Open(context.Background(), "sms-down", "")
	require.NoError(t, err)
	bookThrough(t, s)

	out, err := s.Say(context.Background(), Utterance{Text: "yes"})
	require.NoError(t, err)
	assert.True(t, out.Ended)
	<-s.Done()
	assert.Len(t, notif.calls, 1)
	require.Len(t, arch.records(), 1)
	assert.True(t, arch.records()[0].Confirmed)
}

func TestSession_DisconnectDoesNotNotify(t *testing.T) {
	notif := &recordingNotifier{}
	m := newTestManager(t, notif, nil)
	s, _, err := m.Open(context.Background(), "hangup", "")
	require.NoError(t, err)
	bookThrough(t, s)
	s.Close()
	assert.Empty(t, notif.calls)
}

func TestSession_DisconnectKeepsPartialBooking(t *testing.T) {
	arch := &recordingArchiver{}
	m := newTestManager(t, nil, arch)
	ctx := context.Background()

	s, _, err := m.Open(ctx, "call-2", "")
	require.NoError(t, err)
	for _, v := range []string{"Bonjour je voudrais un rendez-vous", monday9, "Ada"} {
		_, err := s.Say(ctx, Utterance{Text: v})
		require.NoError(t, err)
	}

	require.True(t, m.End("call-2"))
	assert.False(t, m.End("call-2"))

	rec, ok := s.Record()
	require.True(t, ok)
	assert.Equal(t, EndDisconnected, rec.EndReason)
	assert.Equal(t, language.French, rec.Language)
	assert.Equal(t, "Ada", rec.Booking[SlotFirstName])
	assert.Equal(t, []Slot{SlotLastName, SlotPhone, SlotReason}, rec.Missing)
	assert.False(t, rec.Confirmed)
	require.Len(t, arch.records(), 1)
	assert.Equal(t, 0, m.Len())
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	m := newTestManager(t, nil, nil)
	s, _, err := m.Open(context.Background(), "", "")
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID())
	s.Close()
	s.Close()
	_, err = s.Open(context.Background())
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestSession_CallerContextCancelled(t *testing.T) {
	m := newTestManager(t, nil, nil)
	s, _, err := m.Open(context.Background(), "call-3", "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Say(ctx, Utterance{Text: "hello"})
	assert.ErrorIs(t, err, context.Canceled)

	// The session itself is still live.
	out, err := s.Say(context.Background(), Utterance{Text: "hello appointment"})
	require.NoError(t, err)
	assert.NotNil(t, out.Transition)
}

func TestManager_DuplicateID(t *testing.T) {
	m := newTestManager(t, nil, nil)
	_, _, err := m.Open(context.Background(), "dup", "")
	require.NoError(t, err)
	_, _, err = m.Open(context.Background(), "dup", "")
	assert.ErrorIs(t, err, ErrSessionExists)
	assert.Equal(t, 1, m.Len())
}

func TestManager_ShutdownDisconnectsAll(t *testing.T) {
	arch := &recordingArchiver{}
	m, err := NewManager(Dependencies{Extractor: &fakeExtractor{}, Archiver: arch})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, _, err := m.Open(context.Background(), fmt.Sprintf("s-%d", i), "")
		require.NoError(t, err)
	}
	m.Shutdown()
	assert.Equal(t, 0, m.Len())
	assert.Len(t, arch.records(), 5)

	_, _, err = m.Open(context.Background(), "late", "")
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestManager_SessionsRunInParallel(t *testing.T) {
	m := newTestManager(t, nil, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, _, err := m.Open(ctx, fmt.Sprintf("p-%d", i), "")
			if !assert.NoError(t, err) {
				return
			}
			text := "Hello I need an appointment"
			if i%2 == 1 {
				text = "Bonjour je voudrais un rendez-vous"
			}
			out, err := s.Say(ctx, Utterance{Text: text})
			if assert.NoError(t, err) && assert.NotNil(t, out.Transition) {
				want := EnglishBookingID
				if i%2 == 1 {
					want = FrenchBookingID
				}
				assert.Equal(t, want, out.Transition.To)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 8, m.Len())
}

func TestNewManager_RequiresExtractor(t *testing.T) {
	_, err := NewManager(Dependencies{})
	assert.Error(t, err)
}
