package service

import (
	"context"

	"github.com/sinaabedii/arian-etc-sub001/internal/domain"
	"github.com/sinaabedii/arian-etc-sub001/internal/event"
)

// SyncPolicy decides how a store reacts to its remote counterpart.
type SyncPolicy struct {
	// RollbackOnFailure restores the pre-mutation snapshot when the paired
	// remote call fails.
	RollbackOnFailure bool `json:"rollbackOnFailure"`

	// OverwriteOnEmptyRemote lets an empty remote listing replace local
	// state. When false an empty listing leaves local state untouched.
	OverwriteOnEmptyRemote bool `json:"overwriteOnEmptyRemote"`
}

// DefaultCartPolicy rolls back failed mutations and ignores empty listings.
func DefaultCartPolicy() SyncPolicy {
	return SyncPolicy{RollbackOnFailure: true, OverwriteOnEmptyRemote: false}
}

// DefaultWishlistPolicy keeps failed removals and always takes the remote listing.
func DefaultWishlistPolicy() SyncPolicy {
	return SyncPolicy{RollbackOnFailure: false, OverwriteOnEmptyRemote: true}
}

// Outcome reports what happened to the remote half of a mutation.
type Outcome string

const (
	// OutcomeLocal means no remote call was made: the line was never synced
	// or the visitor is signed out.
	OutcomeLocal Outcome = "local"
	// OutcomeSynced means the backend accepted the change.
	OutcomeSynced Outcome = "synced"
	// OutcomeRolledBack means the backend rejected the change and the local
	// state was restored.
	OutcomeRolledBack Outcome = "rolled_back"
	// OutcomeKept means the backend rejected the change and the local change
	// was kept.
	OutcomeKept Outcome = "kept"
	// OutcomeStale means the store was cleared or closed while the call was
	// in flight and its result was dropped.
	OutcomeStale Outcome = "stale"
)

// EventPublisher receives sync events. *event.Producer implements it.
type EventPublisher interface {
	PublishCartRolledBack(ctx context.Context, sessionID string, data event.CartRolledBackData) error
	PublishCartReconciled(ctx context.Context, sessionID string, state domain.CartState) error
	PublishWishlistReconciled(ctx context.Context, sessionID string, state domain.WishlistState) error
}

var _ EventPublisher = (*event.Producer)(nil)

// NoopPublisher drops every event. It is used when Kafka is disabled.
type NoopPublisher struct{}

func (NoopPublisher) PublishCartRolledBack(context.Context, string, event.CartRolledBackData) error {
	return nil
}

func (NoopPublisher) PublishCartReconciled(context.Context, string, domain.CartState) error {
	return nil
}

func (NoopPublisher) PublishWishlistReconciled(context.Context, string, domain.WishlistState) error {
	return nil
}
