package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"

	"github.com/gowebpki/jcs"

	"github.com/JoaoGuiPan/bank-account/internal/events"
)

// AccountViewStore is the read-model side the projector maintains.
type AccountViewStore interface {
	RefreshAccountView(ctx context.Context, accountID string) error
	IsEventProcessed(ctx context.Context, key string) bool
	MarkEventProcessed(ctx context.Context, key string)
}

// BalanceProjector consumes account events and keeps the Redis account views
// in sync with PostgreSQL. Idempotent: duplicate delivery of the same event
// is detected and skipped without touching the read model.
type BalanceProjector struct {
	views AccountViewStore
}

func NewBalanceProjector(views AccountViewStore) *BalanceProjector {
	return &BalanceProjector{views: views}
}

// HandleEvent refreshes the view of every account an event touches. Returning
// an error leaves the message un-ACKed so the stream redelivers it.
func (p *BalanceProjector) HandleEvent(ctx context.Context, event events.Event) error {
	key, err := dedupeKey(event)
	if err != nil {
		return err
	}
	if p.views.IsEventProcessed(ctx, key) {
		log.Printf("Event %s already processed, skipping duplicate delivery", key)
		return nil
	}

	for _, accountID := range affectedAccounts(event) {
		if err := p.views.RefreshAccountView(ctx, accountID); err != nil {
			return fmt.Errorf("failed to refresh view for account %s: %w", accountID, err)
		}
	}

	p.views.MarkEventProcessed(ctx, key)
	return nil
}

func affectedAccounts(event events.Event) []string {
	switch event.Type {
	case events.AccountOpened:
		var data events.AccountOpenedEvent
		if decodeEventData(event, &data) != nil {
			return nil
		}
		return []string{data.AccountID}
	case events.BalanceUpdated:
		var data events.BalanceUpdatedEvent
		if decodeEventData(event, &data) != nil {
			return nil
		}
		return []string{data.AccountID}
	case events.TransferCompleted:
		var data events.TransferCompletedEvent
		if decodeEventData(event, &data) != nil {
			return nil
		}
		return []string{data.FromAccountID, data.ToAccountID}
	default:
		return nil
	}
}

// decodeEventData re-marshals the envelope's untyped Data into the typed
// event struct.
func decodeEventData(event events.Event, dst any) error {
	raw, err := json.Marshal(event.Data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}

// dedupeKey identifies an event across redeliveries. Events published by this
// service carry a uuid; for foreign events without one, the key is the SHA-256
// of the RFC 8785 canonical form of the envelope, so the same bytes always
// dedupe to the same key regardless of field order.
func dedupeKey(event events.Event) (string, error) {
	if event.ID != "" {
		return event.ID, nil
	}
	raw, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("failed to marshal event for dedupe: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize event for dedupe: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
