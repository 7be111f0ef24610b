package db

import (
	"context"

	"github.com/civicops/civicops-ai/internal/evidence"
)

// Providers exposes the reference store through the evidence collaborator
// interfaces, one adapter per source.
func Providers(store ReferenceStore) evidence.Providers {
	return evidence.Providers{
		State:     stateProvider{store},
		Events:    eventProvider{store},
		Outages:   outageProvider{store},
		Assets:    assetProvider{store},
		Playbooks: playbookProvider{store},
	}
}

type stateProvider struct{ store ReferenceStore }

func (p stateProvider) QueryState(ctx context.Context, f evidence.Filter) ([]evidence.StateRecord, error) {
	return p.store.QueryZoneStates(ctx, f)
}

type eventProvider struct{ store ReferenceStore }

func (p eventProvider) QueryEvents(ctx context.Context, f evidence.Filter) ([]evidence.EventRecord, error) {
	return p.store.QueryActiveEvents(ctx, f)
}

type outageProvider struct{ store ReferenceStore }

func (p outageProvider) QueryOutages(ctx context.Context, f evidence.Filter) ([]evidence.OutageRecord, error) {
	return p.store.QueryServiceOutages(ctx, f)
}

type assetProvider struct{ store ReferenceStore }

func (p assetProvider) QueryAssets(ctx context.Context, f evidence.Filter) ([]evidence.AssetRecord, error) {
	return p.store.QueryAssets(ctx, f)
}

type playbookProvider struct{ store ReferenceStore }

func (p playbookProvider) QueryPlaybooks(ctx context.Context, f evidence.Filter) ([]evidence.Playbook, error) {
	return p.store.QueryPlaybooks(ctx, f)
}
