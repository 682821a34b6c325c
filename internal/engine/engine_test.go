package engine

import (
	"context"
	"testing"
	"time"

	"lmsync/internal/domain"
)

func newTestEngine(ch *fakeChannel, api *fakeAPI) *Engine {
	return New(Options{
		ViewerID:     viewer,
		ViewerRole:   domain.RoleStudent,
		Channel:      ch,
		API:          api,
		PollInterval: time.Hour,
		Logger:       testLogger(),
	})
}

func TestEngine_SendConnectedUsesChannelOnly(t *testing.T) {
	ch := newFakeChannel(true)
	api := newFakeAPI()
	e := newTestEngine(ch, api)

	if err := e.Send(context.Background(), 42, "hi"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	emits := ch.emitted()
	if len(emits) != 1 {
		t.Fatalf("emits = %d, want 1", len(emits))
	}
	sm, ok := emits[0].(domain.SendMessage)
	if !ok || sm.ToUserID != 42 || sm.Content != "hi" {
		t.Errorf("emit = %+v", emits[0])
	}
	api.mu.Lock()
	defer api.mu.Unlock()
	if api.sendCalls != 0 {
		t.Errorf("sendCalls = %d, want 0 (no REST when connected)", api.sendCalls)
	}
}

func TestEngine_SendDisconnectedFallsBackToExactlyOnePost(t *testing.T) {
	ch := newFakeChannel(false)
	api := newFakeAPI()
	e := newTestEngine(ch, api)

	if err := e.Send(context.Background(), 42, "hi"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if emits := ch.emitted(); len(emits) != 0 {
		t.Errorf("emits = %d, want 0", len(emits))
	}
	api.mu.Lock()
	defer api.mu.Unlock()
	if api.sendCalls != 1 {
		t.Errorf("sendCalls = %d, want exactly 1", api.sendCalls)
	}
}

func TestEngine_SendRESTFailureSurfaces(t *testing.T) {
	ch := newFakeChannel(false)
	api := newFakeAPI()
	api.sendErr = context.DeadlineExceeded
	e := newTestEngine(ch, api)

	if err := e.Send(context.Background(), 42, "hi"); err == nil {
		t.Error("expected error when both paths are unavailable")
	}
}

func TestEngine_UnreadCountPrefersChannelAck(t *testing.T) {
	ch := newFakeChannel(true)
	ch.ackCount = 5
	api := newFakeAPI()
	e := newTestEngine(ch, api)

	if got := e.UnreadCount(context.Background()); got != 5 {
		t.Errorf("UnreadCount = %d, want 5 from ack", got)
	}
	api.mu.Lock()
	defer api.mu.Unlock()
	if api.conversationsCalls != 0 {
		t.Errorf("REST fallback used despite ack: %d calls", api.conversationsCalls)
	}
}

func TestEngine_UnreadCountFallsBackToThreadSum(t *testing.T) {
	ch := newFakeChannel(false)
	api := newFakeAPI()
	api.threads = []domain.Thread{
		{PartnerID: 7, UnreadCount: 2},
		{PartnerID: 42, UnreadCount: 1},
	}
	e := newTestEngine(ch, api)

	if got := e.UnreadCount(context.Background()); got != 3 {
		t.Errorf("UnreadCount = %d, want 3 from thread sum", got)
	}
	api.mu.Lock()
	defer api.mu.Unlock()
	if api.conversationsCalls != 1 {
		t.Errorf("conversationsCalls = %d, want 1", api.conversationsCalls)
	}
}

func TestEngine_OpenConversationEmitsMarkAllRead(t *testing.T) {
	ch := newFakeChannel(true)
	api := newFakeAPI()
	api.history[42] = []domain.Message{msg(101, 42, viewer, 10)}
	e := newTestEngine(ch, api)

	got := e.OpenConversation(context.Background(), 42)

	if len(got) != 1 || got[0].ID != 101 {
		t.Fatalf("buffer = %v", ids(got))
	}
	emits := ch.emitted()
	if len(emits) != 1 {
		t.Fatalf("emits = %d, want 1", len(emits))
	}
	ra, ok := emits[0].(domain.ReadAll)
	if !ok || ra.PartnerID != 42 {
		t.Errorf("emit = %+v, want ReadAll for 42", emits[0])
	}
}

func TestEngine_OpenConversationDisconnectedStillOpens(t *testing.T) {
	ch := newFakeChannel(false)
	api := newFakeAPI()
	api.history[42] = []domain.Message{msg(101, 42, viewer, 10)}
	e := newTestEngine(ch, api)

	got := e.OpenConversation(context.Background(), 42)

	if len(got) != 1 {
		t.Errorf("buffer = %v, want history despite channel being down", ids(got))
	}
	if emits := ch.emitted(); len(emits) != 0 {
		t.Errorf("emits = %d, want 0", len(emits))
	}
}

func TestEngine_NewMessagePushRoutesEverywhere(t *testing.T) {
	ch := newFakeChannel(true)
	api := newFakeAPI()
	api.history[42] = []domain.Message{}
	e := newTestEngine(ch, api)

	var notifies int
	e.Unread.Subscribe(func() { notifies++ })
	var observed []domain.Message
	e.OnNewMessage = func(m domain.Message) { observed = append(observed, m) }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		e.Start(ctx)
		close(done)
	}()
	waitForHandlers(t, ch)

	e.OpenConversation(ctx, 42)
	notifies = 0 // open itself notifies once

	ch.deliver(domain.MessageNew{Message: msg(101, 42, viewer, 10)})

	if got := e.Stream.Messages(); len(got) != 1 || got[0].ID != 101 {
		t.Errorf("stream = %v, want [101]", ids(got))
	}
	if notifies != 1 {
		t.Errorf("unread notifies = %d, want exactly 1", notifies)
	}
	if len(observed) != 1 || observed[0].ID != 101 {
		t.Errorf("OnNewMessage saw %v", observed)
	}

	cancel()
	<-done
}

func TestEngine_OwnMessagePushSkipsNotificationSink(t *testing.T) {
	ch := newFakeChannel(true)
	api := newFakeAPI()
	e := newTestEngine(ch, api)

	var observed int
	e.OnNewMessage = func(domain.Message) { observed++ }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		e.Start(ctx)
		close(done)
	}()
	waitForHandlers(t, ch)

	ch.deliver(domain.MessageNew{Message: msg(101, viewer, 42, 10)})

	if observed != 0 {
		t.Errorf("own message reached notification sink %d times", observed)
	}

	cancel()
	<-done
}

func TestEngine_BulkReceiptPushUpdatesBufferAndBadge(t *testing.T) {
	ch := newFakeChannel(true)
	api := newFakeAPI()
	api.history[42] = []domain.Message{msg(101, 42, viewer, 10), msg(102, 42, viewer, 20)}
	e := newTestEngine(ch, api)

	var notifies int
	e.Unread.Subscribe(func() { notifies++ })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		e.Start(ctx)
		close(done)
	}()
	waitForHandlers(t, ch)

	e.OpenConversation(ctx, 42)
	notifies = 0

	ch.deliver(domain.MessageBulkUpdated{IDs: []int64{101, 102}, IsRead: true})

	for _, m := range e.Stream.Messages() {
		if !m.IsRead {
			t.Errorf("message %d not read after bulk receipt", m.ID)
		}
	}
	if notifies != 1 {
		t.Errorf("unread notifies = %d, want 1", notifies)
	}

	cancel()
	<-done
}

func TestEngine_UnreadUpdatePushNotifiesOnce(t *testing.T) {
	ch := newFakeChannel(true)
	e := newTestEngine(ch, newFakeAPI())

	var notifies int
	e.Unread.Subscribe(func() { notifies++ })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		e.Start(ctx)
		close(done)
	}()
	waitForHandlers(t, ch)

	ch.deliver(domain.UnreadUpdate{})

	if notifies != 1 {
		t.Errorf("notifies = %d, want exactly 1", notifies)
	}

	cancel()
	<-done
}

func waitForHandlers(t *testing.T, ch *fakeChannel) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		ch.mu.Lock()
		n := len(ch.handlers)
		ch.mu.Unlock()
		if n > 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("engine never registered its push handler")
		}
		time.Sleep(time.Millisecond)
	}
}
