package evidence

import (
	"context"
	"errors"
)

// ErrUnavailable signals that a collaborator's backing store could not be
// reached within its deadline. The gatherer treats it as zero evidence from
// that source; it is never surfaced to the caller as a turn failure.
var ErrUnavailable = errors.New("evidence collaborator unavailable")

// StateSnapshotProvider serves the latest per-zone operational metrics and alerts.
type StateSnapshotProvider interface {
	QueryState(ctx context.Context, f Filter) ([]StateRecord, error)
}

// ActiveEventProvider serves open incidents and events.
type ActiveEventProvider interface {
	QueryEvents(ctx context.Context, f Filter) ([]EventRecord, error)
}

// ServiceOutageProvider serves current service-outage records.
type ServiceOutageProvider interface {
	QueryOutages(ctx context.Context, f Filter) ([]OutageRecord, error)
}

// AssetRegistryProvider serves critical-asset metadata per zone.
type AssetRegistryProvider interface {
	QueryAssets(ctx context.Context, f Filter) ([]AssetRecord, error)
}

// PlaybookProvider serves response playbooks keyed by event type.
type PlaybookProvider interface {
	QueryPlaybooks(ctx context.Context, f Filter) ([]Playbook, error)
}

// Providers bundles the five collaborators for the gatherer.
type Providers struct {
	State     StateSnapshotProvider
	Events    ActiveEventProvider
	Outages   ServiceOutageProvider
	Assets    AssetRegistryProvider
	Playbooks PlaybookProvider
}
