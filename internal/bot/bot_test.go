package bot

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ca-srg/twangy/internal/chat"
	"github.com/ca-srg/twangy/internal/nlu"
)

type sentMessage struct {
	channelID string
	text      string
}

// fakePlatform implements chat.Platform
type fakePlatform struct {
	events     chan chat.Event
	connectErr error
	sendErr    error
	sentCh     chan sentMessage

	mu           sync.Mutex
	sent         []sentMessage
	disconnected bool
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		events: make(chan chat.Event, 10),
		sentCh: make(chan sentMessage, 10),
	}
}

func (f *fakePlatform) Connect(ctx context.Context) error {
	if f.connectErr != nil {
		return f.connectErr
	}
	<-ctx.Done()
	return nil
}

func (f *fakePlatform) Events() <-chan chat.Event { return f.events }

func (f *fakePlatform) SendMessage(ctx context.Context, channelID, text string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	m := sentMessage{channelID: channelID, text: text}
	f.mu.Lock()
	f.sent = append(f.sent, m)
	f.mu.Unlock()
	f.sentCh <- m
	return nil
}

func (f *fakePlatform) Disconnect() error {
	f.mu.Lock()
	f.disconnected = true
	f.mu.Unlock()
	return nil
}

func (f *fakePlatform) sentMessages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

type recordingReporter struct {
	errs []error
	ctx  []map[string]string
}

func (r *recordingReporter) Report(err error, context map[string]string) {
	r.errs = append(r.errs, err)
	r.ctx = append(r.ctx, context)
}

type stubUnderstander struct{}

func (stubUnderstander) Understand(ctx context.Context, text string) (*nlu.Understanding, error) {
	return &nlu.Understanding{Text: text, Intent: "none"}, nil
}

func messageEvent(authorID, text, channelID string) chat.Event {
	return chat.NewMessageEvent(chat.Message{
		AuthorID:      authorID,
		AuthorMention: "<@" + authorID + ">",
		Text:          text,
		ChannelID:     channelID,
	})
}

func TestBot_ReadyPrintsTwoLines(t *testing.T) {
	var out bytes.Buffer
	b, err := New(newFakePlatform(), nil, WithStdout(&out))
	require.NoError(t, err)

	b.handleEvent(context.Background(), chat.NewReadyEvent(chat.Identity{Name: "twangy", ID: "UBOT"}))

	assert.Equal(t, "Username: twangy\nId: UBOT\n", out.String())
	assert.Equal(t, chat.Identity{Name: "twangy", ID: "UBOT"}, b.Self())
}

func TestBot_ReconnectDoesNotReprintIdentity(t *testing.T) {
	p := newFakePlatform()
	var out bytes.Buffer
	b, err := New(p, nil, WithStdout(&out))
	require.NoError(t, err)

	ctx := context.Background()
	b.handleEvent(ctx, chat.NewReadyEvent(chat.Identity{Name: "twangy", ID: "UBOT"}))
	b.handleEvent(ctx, chat.NewReadyEvent(chat.Identity{Name: "twangy", ID: "UBOT"}))

	assert.Equal(t, "Username: twangy\nId: UBOT\n", out.String())

	// a later session still updates the identity used for the self check
	b.handleEvent(ctx, chat.NewReadyEvent(chat.Identity{Name: "twangy2", ID: "UBOT2"}))
	assert.Equal(t, chat.Identity{Name: "twangy2", ID: "UBOT2"}, b.Self())
	assert.Equal(t, "Username: twangy\nId: UBOT\n", out.String())

	b.handleEvent(ctx, messageEvent("UBOT2", "twangy echo", "C1"))
	assert.Empty(t, p.sentMessages())
}

func TestBot_HandleMessage(t *testing.T) {
	p := newFakePlatform()
	var out bytes.Buffer
	b, err := New(p, nil, WithStdout(&out))
	require.NoError(t, err)

	ctx := context.Background()
	b.handleEvent(ctx, chat.NewReadyEvent(chat.Identity{Name: "twangy", ID: "UBOT"}))
	b.handleEvent(ctx, messageEvent("UBOT", "twangy test", "C1"))
	b.handleEvent(ctx, messageEvent("UALICE", "hello there", "C1"))
	b.handleEvent(ctx, messageEvent("UALICE", "twangy ping", "C1"))

	assert.Equal(t, []sentMessage{{channelID: "C1", text: "Hello <@UALICE>"}}, p.sentMessages())
	received, replies, errs := b.Stats()
	assert.Equal(t, int64(3), received)
	assert.Equal(t, int64(1), replies)
	assert.Equal(t, int64(0), errs)
}

func TestBot_SendFailureIsReportedAndLogged(t *testing.T) {
	p := newFakePlatform()
	p.sendErr = errors.New("network down")
	reporter := &recordingReporter{}
	core, logs := observer.New(zap.InfoLevel)

	b, err := New(p, nil, WithErrorReporter(reporter), WithLogger(zap.New(core)))
	require.NoError(t, err)

	b.handleEvent(context.Background(), messageEvent("UALICE", "twangy", "C7"))

	require.Len(t, reporter.errs, 1)
	assert.ErrorIs(t, reporter.errs[0], p.sendErr)
	assert.Equal(t, "C7", reporter.ctx[0]["channel"])
	_, _, errs := b.Stats()
	assert.Equal(t, int64(1), errs)
	assert.Equal(t, 1, logs.FilterMessage("message handler failed").Len())
}

func TestBot_HoldsNLUWithoutCallingIt(t *testing.T) {
	u := stubUnderstander{}
	b, err := New(newFakePlatform(), nil, WithNLU(u))
	require.NoError(t, err)
	assert.Equal(t, u, b.NLU())
}

func TestNew_RejectsNilPlatform(t *testing.T) {
	_, err := New(nil, nil)
	require.Error(t, err)
}

func TestBot_StartProcessesEventsInOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := newFakePlatform()
	var out bytes.Buffer
	hookCalled := false
	b, err := New(p, NewProcessor(&TriggerDetector{}, &Formatter{}),
		WithStdout(&out),
		WithShutdownHook(func() { hookCalled = true }),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- b.Start(ctx) }()

	p.events <- chat.NewReadyEvent(chat.Identity{Name: "twangy", ID: "UBOT"})
	p.events <- messageEvent("UBOT", "twangy test", "C1")
	p.events <- messageEvent("UBOB", "nothing to see", "C1")
	p.events <- messageEvent("UALICE", "TWANGY hi", "C2")

	select {
	case m := <-p.sentCh:
		assert.Equal(t, sentMessage{channelID: "C2", text: "Hello <@UALICE>"}, m)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reply")
	}

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("bot did not stop")
	}

	assert.Len(t, p.sentMessages(), 1)
	assert.Equal(t, "Username: twangy\nId: UBOT\n", out.String())
	assert.True(t, p.disconnected)
	assert.True(t, hookCalled)
}

func TestBot_StartReturnsConnectError(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := newFakePlatform()
	p.connectErr = chat.ErrInvalidAuth
	b, err := New(p, nil)
	require.NoError(t, err)

	err = b.Start(context.Background())
	require.ErrorIs(t, err, chat.ErrInvalidAuth)
	assert.True(t, p.disconnected)
}

func TestBot_StartStopsWhenEventStreamCloses(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := newFakePlatform()
	b, err := New(p, nil)
	require.NoError(t, err)

	close(p.events)

	done := make(chan error, 1)
	go func() { done <- b.Start(context.Background()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("bot did not stop after event stream closed")
	}
}
