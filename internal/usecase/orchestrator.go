package usecase

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"aria/internal/domain"
	"aria/internal/infra/tracer"
)

// defaultHistoryLimit bounds a single-conversation message load.
const defaultHistoryLimit = 200

// defaultListingLimit bounds one page of the conversation listing.
const defaultListingLimit = 50

// Orchestrator is the composition root of the assistant subsystem: the only
// component that talks to both the store and the outside world. It binds
// inbound transport events to store transitions, exposes the outbound
// intents, and hands completed-reply actions to the executor exactly once.
type Orchestrator struct {
	store     *Store
	executor  *Executor
	transport domain.Transport
	history   domain.History
	prefs     domain.Prefs
	bus       domain.EventBus
	logger    *slog.Logger

	historyLimit int
	listingLimit int
	panelOpen    bool
}

// NewOrchestrator wires the store, executor and collaborators together.
// prefs and bus may be nil.
func NewOrchestrator(
	store *Store,
	executor *Executor,
	transport domain.Transport,
	history domain.History,
	prefs domain.Prefs,
	bus domain.EventBus,
	logger *slog.Logger,
) *Orchestrator {
	o := &Orchestrator{
		store:        store,
		executor:     executor,
		transport:    transport,
		history:      history,
		prefs:        prefs,
		bus:          bus,
		logger:       logger,
		historyLimit: defaultHistoryLimit,
		listingLimit: defaultListingLimit,
	}
	executor.SetErrorSink(store.RecordActionError)
	return o
}

// SetHistoryLimits overrides the per-conversation message load limit and the
// conversation listing page size. Non-positive values keep the defaults.
func (o *Orchestrator) SetHistoryLimits(maxMessages, pageSize int) {
	if maxMessages > 0 {
		o.historyLimit = maxMessages
	}
	if pageSize > 0 {
		o.listingLimit = pageSize
	}
}

// Restore loads persisted UI preferences and reselects the previously
// active conversation. Call once before Run.
func (o *Orchestrator) Restore(ctx context.Context) {
	if o.prefs == nil {
		return
	}
	panelOpen, activeID, err := o.prefs.Load(ctx)
	if err != nil {
		o.logger.Warn("loading preferences failed", "error", err)
		return
	}
	o.panelOpen = panelOpen
	if activeID != "" {
		o.Select(ctx, activeID)
	}
}

// Run consumes inbound transport events until the context is cancelled or
// the transport closes its event channel. Events are applied in delivery
// order on this single goroutine; completed-reply actions execute inline,
// which preserves the one-batch-at-a-time ordering of the single-threaded
// original design.
func (o *Orchestrator) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-o.transport.Events():
			if !ok {
				return nil
			}
			o.handleInbound(ctx, ev)
		}
	}
}

func (o *Orchestrator) handleInbound(ctx context.Context, ev domain.InboundEvent) {
	res := o.store.Apply(ev)
	if !res.Applied {
		// Expected race, not a fault: the user switched conversations
		// while this event was in flight.
		o.logger.Debug("discarded stale inbound event",
			"kind", string(ev.Kind),
			"conversation_id", ev.ConversationID,
		)
		return
	}

	switch ev.Kind {
	case domain.InboundToken:
		o.publish(ctx, domain.EventStreamToken, ev.ConversationID, nil)
	case domain.InboundComplete:
		o.publish(ctx, domain.EventStreamCompleted, ev.ConversationID, domain.StreamCompletedPayload{
			MessageID: ev.MessageID,
			Content:   ev.FullResponse,
			Actions:   len(ev.Actions),
		})
		if res.AssignedID != "" {
			o.persistPrefs(ctx)
			// The placeholder became a real conversation; the listing
			// has a new entry.
			o.RefreshConversations(ctx)
		}
		if len(res.Actions) > 0 {
			o.executor.Execute(ctx, o.store.Snapshot().ActiveID, res.Actions)
		}
	case domain.InboundError:
		o.publish(ctx, domain.EventStreamError, ev.ConversationID, domain.ActionFailedPayload{Error: ev.Err})
	}
}

// Send admits and transmits a user message. The optimistic user message is
// applied to the store before the transport send; a rejected send (empty
// message, disconnected transport, stream in flight) leaves no trace and
// surfaces no error beyond the returned one.
func (o *Orchestrator) Send(ctx context.Context, message string) error {
	ctx, span := tracer.StartSpan(ctx, "store.send")
	defer span.End()

	msg, err := o.store.Send(message, o.transport.Connected())
	if err != nil {
		o.logger.Debug("send rejected", "error", err)
		tracer.RecordError(span, err)
		return err
	}

	o.publish(ctx, domain.EventStreamStarted, msg.ConversationID, nil)
	o.publish(ctx, domain.EventMessageSent, msg.ConversationID, nil)

	if err := o.transport.Send(ctx, msg.ConversationID, msg.Content); err != nil {
		// Explicit transport error path: the optimistic message stays,
		// streaming state is torn down through the normal error transition.
		o.logger.Error("transport send failed", "error", err)
		tracer.RecordError(span, err)
		o.store.Apply(domain.InboundEvent{
			Kind:           domain.InboundError,
			ConversationID: msg.ConversationID,
			Err:            "failed to send message",
			Code:           string(domain.CodeTransportClosed),
		})
		return err
	}
	tracer.SetOK(span)
	return nil
}

// Select switches the active conversation and loads its history. A load
// resolving after the user switched again is discarded by generation.
func (o *Orchestrator) Select(ctx context.Context, conversationID string) {
	gen := o.store.Select(conversationID)
	o.persistPrefs(ctx)
	o.publish(ctx, domain.EventConversationSelected, conversationID, nil)

	if conversationID == "" {
		return
	}

	o.store.BeginHistoryLoad(gen)
	go func() {
		msgs, err := o.history.ListMessages(ctx, conversationID, o.historyLimit)
		if err != nil {
			o.logger.Warn("history load failed",
				"conversation_id", conversationID,
				"error", err,
			)
			// Resolve the loading state; an empty history is better than a
			// stuck spinner. Stale generations are discarded inside.
			o.store.CompleteHistoryLoad(gen, nil)
			return
		}
		if !o.store.CompleteHistoryLoad(gen, msgs) {
			o.logger.Debug("discarded stale history load", "conversation_id", conversationID)
		}
	}()
}

// StartNewConversation clears the active conversation without any network
// call. The placeholder becomes real with the first completion.
func (o *Orchestrator) StartNewConversation(ctx context.Context) {
	o.store.StartNewConversation()
	o.persistPrefs(ctx)
	o.publish(ctx, domain.EventConversationSelected, "", nil)
}

// Delete removes one conversation remotely and locally, then refreshes the
// cached listing. Deleting the active conversation falls back to a fresh
// placeholder.
func (o *Orchestrator) Delete(ctx context.Context, conversationID string) error {
	if err := o.history.DeleteConversation(ctx, conversationID); err != nil {
		o.store.RecordActionError(domain.WrapOp("delete conversation", err))
		return err
	}
	o.store.RemoveConversation(conversationID)
	if o.store.Snapshot().ActiveID == conversationID {
		o.StartNewConversation(ctx)
	}
	o.publish(ctx, domain.EventConversationDeleted, conversationID, nil)
	o.RefreshConversations(ctx)
	return nil
}

// DeleteAll removes every conversation and resets to a placeholder.
func (o *Orchestrator) DeleteAll(ctx context.Context) error {
	if err := o.history.DeleteAllConversations(ctx); err != nil {
		o.store.RecordActionError(domain.WrapOp("delete all conversations", err))
		return err
	}
	o.store.SetConversations(nil)
	o.StartNewConversation(ctx)
	o.publish(ctx, domain.EventConversationDeleted, "", nil)
	return nil
}

// RefreshConversations reloads the first page of the conversation listing
// into the store.
func (o *Orchestrator) RefreshConversations(ctx context.Context) {
	page, err := o.history.ListConversations(ctx, o.listingLimit, 0)
	if err != nil {
		o.logger.Warn("conversation listing failed", "error", err)
		return
	}
	o.store.SetConversations(page.Conversations)
}

// ClearError dismisses the surfaced error.
func (o *Orchestrator) ClearError() { o.store.ClearError() }

// SetPendingInput records the in-progress input text.
func (o *Orchestrator) SetPendingInput(text string) { o.store.SetPendingInput(text) }

// SetPanelOpen persists whether the conversation panel is open.
func (o *Orchestrator) SetPanelOpen(ctx context.Context, open bool) {
	o.panelOpen = open
	o.persistPrefs(ctx)
}

// PanelOpen reports the persisted panel state.
func (o *Orchestrator) PanelOpen() bool { return o.panelOpen }

// Connected reports transport connectivity for the rendering layer.
func (o *Orchestrator) Connected() bool { return o.transport.Connected() }

// Snapshot exposes the current store state.
func (o *Orchestrator) Snapshot() Snapshot { return o.store.Snapshot() }

func (o *Orchestrator) persistPrefs(ctx context.Context) {
	if o.prefs == nil {
		return
	}
	if err := o.prefs.Save(ctx, o.panelOpen, o.store.Snapshot().ActiveID); err != nil {
		o.logger.Warn("saving preferences failed", "error", err)
	}
}

func (o *Orchestrator) publish(ctx context.Context, eventType domain.EventType, conversationID string, payload any) {
	if o.bus == nil {
		return
	}
	ev := domain.Event{
		Type:           eventType,
		Timestamp:      time.Now(),
		ConversationID: conversationID,
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return
		}
		ev.Payload = raw
	}
	o.bus.Publish(ctx, ev)
}
