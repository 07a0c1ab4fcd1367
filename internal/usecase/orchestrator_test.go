package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"aria/internal/domain"
)

type mockTransport struct {
	mu        sync.Mutex
	connected bool
	sent      []string
	sendErr   error
	events    chan domain.InboundEvent
}

func newMockTransport(connected bool) *mockTransport {
	return &mockTransport{connected: connected, events: make(chan domain.InboundEvent, 16)}
}

func (m *mockTransport) Send(_ context.Context, _ string, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, message)
	return nil
}

func (m *mockTransport) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockTransport) Events() <-chan domain.InboundEvent { return m.events }

func (m *mockTransport) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type mockHistory struct {
	mu         sync.Mutex
	messages   map[string][]domain.Message
	gates      map[string]chan struct{} // block ListMessages until released
	listing    []domain.Conversation
	deleted    []string
	wipedAll   bool
	msgLimits  []int
	listLimits []int
}

func newMockHistory() *mockHistory {
	return &mockHistory{
		messages: make(map[string][]domain.Message),
		gates:    make(map[string]chan struct{}),
	}
}

func (m *mockHistory) ListConversations(_ context.Context, limit, _ int) (*domain.ConversationPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listLimits = append(m.listLimits, limit)
	return &domain.ConversationPage{Conversations: m.listing, Total: len(m.listing)}, nil
}

func (m *mockHistory) ListMessages(_ context.Context, conversationID string, limit int) ([]domain.Message, error) {
	m.mu.Lock()
	m.msgLimits = append(m.msgLimits, limit)
	gate := m.gates[conversationID]
	msgs := m.messages[conversationID]
	m.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return msgs, nil
}

func (m *mockHistory) DeleteConversation(_ context.Context, conversationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, conversationID)
	return nil
}

func (m *mockHistory) DeleteAllConversations(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wipedAll = true
	return nil
}

type mockPrefs struct {
	mu        sync.Mutex
	panelOpen bool
	activeID  string
	saves     int
}

func (m *mockPrefs) Load(_ context.Context) (bool, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.panelOpen, m.activeID, nil
}

func (m *mockPrefs) Save(_ context.Context, panelOpen bool, activeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.panelOpen = panelOpen
	m.activeID = activeID
	m.saves++
	return nil
}

type orchFixture struct {
	orch      *Orchestrator
	store     *Store
	transport *mockTransport
	history   *mockHistory
	prefs     *mockPrefs
	catalog   *mockCatalog
	player    *mockPlayer
	nav       *mockNavigator
}

func newOrchFixture(t *testing.T) *orchFixture {
	t.Helper()
	store := newTestStore()
	catalog := &mockCatalog{}
	player := &mockPlayer{}
	nav := &mockNavigator{}
	executor := NewExecutor(catalog, player, nav, nil, slog.Default())
	transport := newMockTransport(true)
	history := newMockHistory()
	prefs := &mockPrefs{}
	orch := NewOrchestrator(store, executor, transport, history, prefs, nil, slog.Default())
	return &orchFixture{
		orch:      orch,
		store:     store,
		transport: transport,
		history:   history,
		prefs:     prefs,
		catalog:   catalog,
		player:    player,
		nav:       nav,
	}
}

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting: %s", msg)
}

func TestOrchestratorSendOptimisticBeforeTransport(t *testing.T) {
	f := newOrchFixture(t)
	f.orch.Select(context.Background(), "c1")

	if err := f.orch.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	snap := f.orch.Snapshot()
	if len(snap.Messages) != 1 || snap.Messages[0].Content != "hello" {
		t.Errorf("messages = %+v", snap.Messages)
	}
	if f.transport.sentCount() != 1 {
		t.Errorf("transport sends = %d, want 1", f.transport.sentCount())
	}
}

func TestOrchestratorSendDisconnected(t *testing.T) {
	f := newOrchFixture(t)
	f.transport.connected = false
	f.orch.Select(context.Background(), "c1")

	err := f.orch.Send(context.Background(), "hello")
	if !errors.Is(err, domain.ErrTransportClosed) {
		t.Fatalf("err = %v, want ErrTransportClosed", err)
	}
	if f.transport.sentCount() != 0 {
		t.Error("no transport call expected")
	}
	if n := len(f.orch.Snapshot().Messages); n != 0 {
		t.Errorf("no optimistic message expected, got %d", n)
	}
}

func TestOrchestratorTransportFailureKeepsOptimisticMessage(t *testing.T) {
	f := newOrchFixture(t)
	f.transport.sendErr = errors.New("broken pipe")
	f.orch.Select(context.Background(), "c1")

	if err := f.orch.Send(context.Background(), "hello"); err == nil {
		t.Fatal("expected send error")
	}

	snap := f.orch.Snapshot()
	if len(snap.Messages) != 1 {
		t.Error("optimistic message must never be retracted")
	}
	if snap.Status != StatusError {
		t.Errorf("status = %s, want error", snap.Status)
	}
	if snap.LastError == nil || snap.LastError.Code != string(domain.CodeTransportClosed) {
		t.Errorf("last error = %+v", snap.LastError)
	}
}

func TestOrchestratorStreamingRoundTrip(t *testing.T) {
	f := newOrchFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.orch.Run(ctx)

	f.orch.Select(ctx, "c1")
	if err := f.orch.Send(ctx, "play some jazz"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	f.transport.events <- domain.InboundEvent{Kind: domain.InboundToken, ConversationID: "c1", Token: "Put"}
	f.transport.events <- domain.InboundEvent{Kind: domain.InboundToken, ConversationID: "c1", Token: "ting on jazz"}
	waitFor(t, func() bool {
		return f.orch.Snapshot().StreamBuffer == "Putting on jazz"
	}, "buffer accumulation")

	f.transport.events <- domain.InboundEvent{
		Kind:           domain.InboundComplete,
		ConversationID: "c1",
		MessageID:      "m1",
		FullResponse:   "Putting on jazz.",
		Actions:        []domain.Action{{Kind: domain.ActionPlayTrack, TrackID: "t1"}},
	}
	waitFor(t, func() bool {
		return f.orch.Snapshot().Status == StatusIdle
	}, "completion applied")

	snap := f.orch.Snapshot()
	if len(snap.Messages) != 2 || snap.Messages[1].Content != "Putting on jazz." {
		t.Errorf("messages = %+v", snap.Messages)
	}
	waitFor(t, func() bool {
		f.player.mu.Lock()
		defer f.player.mu.Unlock()
		return len(f.player.current) == 1
	}, "action executed")
}

func TestOrchestratorDuplicateCompletionRunsActionsOnce(t *testing.T) {
	f := newOrchFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.orch.Run(ctx)

	f.orch.Select(ctx, "c1")
	f.orch.Send(ctx, "queue it")

	complete := domain.InboundEvent{
		Kind:           domain.InboundComplete,
		ConversationID: "c1",
		MessageID:      "m1",
		FullResponse:   "done",
		Actions:        []domain.Action{{Kind: domain.ActionPlayTrack, TrackID: "t1"}},
	}
	f.transport.events <- complete
	f.transport.events <- complete

	waitFor(t, func() bool {
		return f.orch.Snapshot().Status == StatusIdle
	}, "completion applied")
	// Give the duplicate a chance to (incorrectly) execute.
	time.Sleep(50 * time.Millisecond)

	f.player.mu.Lock()
	defer f.player.mu.Unlock()
	if len(f.player.current) != 1 {
		t.Errorf("play_track ran %d times, want 1", len(f.player.current))
	}
	if n := len(f.orch.Snapshot().Messages); n != 2 {
		t.Errorf("messages = %d, want 2", n)
	}
}

func TestOrchestratorStaleHistoryLoadDiscarded(t *testing.T) {
	f := newOrchFixture(t)
	gate := make(chan struct{})
	f.history.gates["slow"] = gate
	f.history.messages["slow"] = []domain.Message{{ID: "old"}}
	f.history.messages["fast"] = []domain.Message{{ID: "fresh"}}

	ctx := context.Background()
	f.orch.Select(ctx, "slow")
	f.orch.Select(ctx, "fast")

	waitFor(t, func() bool {
		snap := f.orch.Snapshot()
		return len(snap.Messages) == 1 && snap.Messages[0].ID == "fresh"
	}, "fast history load")

	close(gate) // slow load resolves after the switch

	time.Sleep(50 * time.Millisecond)
	snap := f.orch.Snapshot()
	if len(snap.Messages) != 1 || snap.Messages[0].ID != "fresh" {
		t.Errorf("stale load leaked: %+v", snap.Messages)
	}
}

func TestOrchestratorConfiguredHistoryLimits(t *testing.T) {
	f := newOrchFixture(t)
	f.orch.SetHistoryLimits(75, 12)

	ctx := context.Background()
	f.orch.Select(ctx, "c1")
	f.orch.RefreshConversations(ctx)

	waitFor(t, func() bool {
		f.history.mu.Lock()
		defer f.history.mu.Unlock()
		return len(f.history.msgLimits) == 1
	}, "history load issued")

	f.history.mu.Lock()
	defer f.history.mu.Unlock()
	if f.history.msgLimits[0] != 75 {
		t.Errorf("message load limit = %d, want 75", f.history.msgLimits[0])
	}
	if len(f.history.listLimits) == 0 || f.history.listLimits[0] != 12 {
		t.Errorf("listing page size = %v, want [12]", f.history.listLimits)
	}

	// Non-positive values keep the previous limits.
	f.orch.SetHistoryLimits(0, -1)
	if f.orch.historyLimit != 75 || f.orch.listingLimit != 12 {
		t.Errorf("limits reset: %d, %d", f.orch.historyLimit, f.orch.listingLimit)
	}
}

func TestOrchestratorSendDuringHistoryLoad(t *testing.T) {
	f := newOrchFixture(t)
	gate := make(chan struct{})
	f.history.gates["c1"] = gate
	f.history.messages["c1"] = []domain.Message{
		{ID: "h1", ConversationID: "c1", Role: domain.RoleAssistant, Content: "earlier reply"},
	}

	ctx := context.Background()
	f.orch.Select(ctx, "c1")

	if err := f.orch.Send(ctx, "hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	close(gate) // the load resolves after the send

	waitFor(t, func() bool {
		return len(f.orch.Snapshot().Messages) == 2
	}, "history merge after send")

	snap := f.orch.Snapshot()
	if snap.Messages[0].ID != "h1" {
		t.Errorf("loaded history must come first: %+v", snap.Messages)
	}
	if snap.Messages[1].Role != domain.RoleUser || snap.Messages[1].Content != "hello" {
		t.Errorf("optimistic message must survive the load: %+v", snap.Messages[1])
	}
	if snap.Status != StatusStreaming {
		t.Errorf("status = %s, want streaming", snap.Status)
	}
}

func TestOrchestratorDeleteActiveConversation(t *testing.T) {
	f := newOrchFixture(t)
	f.history.listing = []domain.Conversation{{ID: "c2"}}
	ctx := context.Background()
	f.orch.Select(ctx, "c1")

	if err := f.orch.Delete(ctx, "c1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if len(f.history.deleted) != 1 || f.history.deleted[0] != "c1" {
		t.Errorf("deleted = %v", f.history.deleted)
	}
	snap := f.orch.Snapshot()
	if snap.ActiveID != "" {
		t.Errorf("active id = %q, want placeholder", snap.ActiveID)
	}
	if len(snap.Conversations) != 1 || snap.Conversations[0].ID != "c2" {
		t.Errorf("listing not refreshed: %+v", snap.Conversations)
	}
}

func TestOrchestratorDeleteAll(t *testing.T) {
	f := newOrchFixture(t)
	ctx := context.Background()
	f.store.SetConversations([]domain.Conversation{{ID: "a"}, {ID: "b"}})
	f.orch.Select(ctx, "a")

	if err := f.orch.DeleteAll(ctx); err != nil {
		t.Fatalf("DeleteAll: %v", err)
	}
	if !f.history.wipedAll {
		t.Error("remote delete-all not called")
	}
	snap := f.orch.Snapshot()
	if len(snap.Conversations) != 0 || snap.ActiveID != "" {
		t.Errorf("state after delete-all: %+v", snap)
	}
}

func TestOrchestratorPlaceholderCompletionRefreshesListing(t *testing.T) {
	f := newOrchFixture(t)
	f.history.listing = []domain.Conversation{{ID: "srv-1", Title: "New chat"}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.orch.Run(ctx)

	f.orch.StartNewConversation(ctx)
	f.orch.Send(ctx, "hi")

	f.transport.events <- domain.InboundEvent{
		Kind:           domain.InboundComplete,
		ConversationID: "srv-1",
		MessageID:      "m1",
		FullResponse:   "hello",
	}

	waitFor(t, func() bool {
		snap := f.orch.Snapshot()
		return snap.ActiveID == "srv-1" && len(snap.Conversations) == 1
	}, "placeholder adoption and listing refresh")

	f.prefs.mu.Lock()
	savedID := f.prefs.activeID
	f.prefs.mu.Unlock()
	if savedID != "srv-1" {
		t.Errorf("prefs active id = %q, want srv-1", savedID)
	}
}

func TestOrchestratorRestore(t *testing.T) {
	f := newOrchFixture(t)
	f.prefs.panelOpen = true
	f.prefs.activeID = "c7"
	f.history.messages["c7"] = []domain.Message{{ID: "m1"}, {ID: "m2"}}

	f.orch.Restore(context.Background())

	if !f.orch.PanelOpen() {
		t.Error("panel state not restored")
	}
	waitFor(t, func() bool {
		snap := f.orch.Snapshot()
		return snap.ActiveID == "c7" && len(snap.Messages) == 2
	}, "restored conversation history")
}

func TestOrchestratorRunStopsOnClosedTransport(t *testing.T) {
	f := newOrchFixture(t)
	done := make(chan error, 1)
	go func() { done <- f.orch.Run(context.Background()) }()
	close(f.transport.events)
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after transport close")
	}
}
