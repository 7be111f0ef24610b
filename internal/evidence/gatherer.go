package evidence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/civicops/civicops-ai/internal/metrics"
)

// Gatherer fans out to the relevant collaborators concurrently, each call
// bounded by an independent timeout. A collaborator that times out or signals
// unavailability contributes zero evidence for the turn; the turn proceeds
// with whatever arrived in time.
type Gatherer struct {
	providers Providers
	timeout   time.Duration
	limit     int
	log       *zap.Logger
}

// NewGatherer creates a gatherer with a per-collaborator timeout and a
// per-collaborator record limit.
func NewGatherer(providers Providers, timeout time.Duration, limit int, log *zap.Logger) *Gatherer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gatherer{
		providers: providers,
		timeout:   timeout,
		limit:     limit,
		log:       log,
	}
}

// sourcesFor returns the collaborators relevant to an intent category.
// Playbooks are always fetched so the synthesizer can recommend actions.
func sourcesFor(eventType string) []Source {
	switch eventType {
	case "power_outage":
		return []Source{SourceServiceOutages, SourceActiveEvents, SourceStateSnapshot, SourceAssetRegistry, SourcePlaybooks}
	case "aqi_spike":
		return []Source{SourceStateSnapshot, SourceActiveEvents, SourcePlaybooks}
	case "road_closure":
		return []Source{SourceActiveEvents, SourceStateSnapshot, SourceAssetRegistry, SourcePlaybooks}
	case "infrastructure_failure":
		return []Source{SourceActiveEvents, SourceServiceOutages, SourceStateSnapshot, SourceAssetRegistry, SourcePlaybooks}
	default:
		return []Source{SourceStateSnapshot, SourceActiveEvents, SourceServiceOutages, SourceAssetRegistry, SourcePlaybooks}
	}
}

// Gather issues one query per relevant collaborator, concurrently, scoped by
// the resolved city/zone. The returned batch is immutable: items are sorted
// deterministically and never mutated after return.
func (g *Gatherer) Gather(ctx context.Context, eventType, cityID, zoneID string) *Batch {
	filter := Filter{CityID: cityID, ZoneID: zoneID, Limit: g.limit}

	batch := &Batch{}
	var mu sync.Mutex

	add := func(source Source, f Filter, items []Item, err error) {
		mu.Lock()
		defer mu.Unlock()

		if err != nil {
			reason := "unavailable"
			if errors.Is(err, context.DeadlineExceeded) {
				reason = "timeout"
			}
			batch.Gaps = append(batch.Gaps, Gap{Source: source, Reason: reason})
			batch.Calls = append(batch.Calls, Call{Collaborator: string(source), Filter: f})
			metrics.CollaboratorRequests.WithLabelValues(string(source), reason).Inc()
			g.log.Warn("evidence collaborator contributed no evidence",
				zap.String("source", string(source)),
				zap.String("reason", reason),
				zap.Error(err),
			)
			return
		}

		ids := make([]string, 0, len(items))
		for _, it := range items {
			ids = append(ids, it.ID)
		}
		sort.Strings(ids)

		batch.Items = append(batch.Items, items...)
		batch.Calls = append(batch.Calls, Call{Collaborator: string(source), Filter: f, EvidenceIDs: ids})
		metrics.CollaboratorRequests.WithLabelValues(string(source), "ok").Inc()
		metrics.EvidenceItemsGathered.WithLabelValues(string(source)).Add(float64(len(items)))
	}

	eg, egCtx := errgroup.WithContext(ctx)

	for _, source := range sourcesFor(eventType) {
		switch source {
		case SourceStateSnapshot:
			if g.providers.State == nil {
				continue
			}
			eg.Go(func() error {
				items, err := g.timed(egCtx, source, func(cctx context.Context) ([]Item, error) {
					records, err := g.providers.State.QueryState(cctx, filter)
					if err != nil {
						return nil, err
					}
					return wrapStateRecords(records), nil
				})
				add(source, filter, items, err)
				return nil
			})

		case SourceActiveEvents:
			if g.providers.Events == nil {
				continue
			}
			eg.Go(func() error {
				items, err := g.timed(egCtx, source, func(cctx context.Context) ([]Item, error) {
					records, err := g.providers.Events.QueryEvents(cctx, filter)
					if err != nil {
						return nil, err
					}
					return wrapEventRecords(records), nil
				})
				add(source, filter, items, err)
				return nil
			})

		case SourceServiceOutages:
			if g.providers.Outages == nil {
				continue
			}
			eg.Go(func() error {
				items, err := g.timed(egCtx, source, func(cctx context.Context) ([]Item, error) {
					records, err := g.providers.Outages.QueryOutages(cctx, filter)
					if err != nil {
						return nil, err
					}
					return wrapOutageRecords(records), nil
				})
				add(source, filter, items, err)
				return nil
			})

		case SourceAssetRegistry:
			if g.providers.Assets == nil {
				continue
			}
			eg.Go(func() error {
				items, err := g.timed(egCtx, source, func(cctx context.Context) ([]Item, error) {
					records, err := g.providers.Assets.QueryAssets(cctx, filter)
					if err != nil {
						return nil, err
					}
					return wrapAssetRecords(records), nil
				})
				add(source, filter, items, err)
				return nil
			})

		case SourcePlaybooks:
			if g.providers.Playbooks == nil {
				continue
			}
			// Playbooks are keyed by event type, not zone.
			pbFilter := Filter{CityID: cityID, Type: eventType, Limit: g.limit}
			eg.Go(func() error {
				items, err := g.timed(egCtx, source, func(cctx context.Context) ([]Item, error) {
					records, err := g.providers.Playbooks.QueryPlaybooks(cctx, pbFilter)
					if err != nil {
						return nil, err
					}
					return wrapPlaybooks(records), nil
				})
				add(source, pbFilter, items, err)
				return nil
			})
		}
	}

	// Workers absorb their own failures, so Wait only joins.
	_ = eg.Wait()

	// Deterministic batch order regardless of arrival order.
	sort.Slice(batch.Items, func(i, j int) bool {
		if batch.Items[i].Source != batch.Items[j].Source {
			return batch.Items[i].Source < batch.Items[j].Source
		}
		return batch.Items[i].ID < batch.Items[j].ID
	})
	sort.Slice(batch.Gaps, func(i, j int) bool { return batch.Gaps[i].Source < batch.Gaps[j].Source })
	sort.Slice(batch.Calls, func(i, j int) bool { return batch.Calls[i].Collaborator < batch.Calls[j].Collaborator })

	return batch
}

// timed runs one collaborator query under the per-call deadline, recording
// its duration.
func (g *Gatherer) timed(ctx context.Context, source Source, fn func(context.Context) ([]Item, error)) ([]Item, error) {
	cctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	items, err := fn(cctx)
	metrics.CollaboratorDuration.WithLabelValues(string(source)).Observe(time.Since(start).Seconds())

	if err != nil {
		return nil, err
	}
	if cctx.Err() != nil {
		return nil, cctx.Err()
	}
	return items, nil
}

func severityForTier(tier string) int {
	switch tier {
	case "high":
		return 3
	case "medium":
		return 2
	default:
		return 1
	}
}

func severityForOutageStatus(status string) int {
	switch status {
	case "active":
		return 4
	case "restoring":
		return 2
	default:
		return 1
	}
}

func wrapStateRecords(records []StateRecord) []Item {
	now := time.Now().UTC()
	items := make([]Item, 0, len(records))
	for _, r := range records {
		payload, _ := json.Marshal(r)
		items = append(items, Item{
			Source:     SourceStateSnapshot,
			ID:         fmt.Sprintf("state_%s", r.ZoneID),
			ZoneID:     r.ZoneID,
			Kind:       "zone_state",
			Severity:   severityForTier(r.RiskTier),
			RecordedAt: r.ObservedAt,
			Payload:    payload,
			FetchedAt:  now,
		})
	}
	return items
}

func wrapEventRecords(records []EventRecord) []Item {
	now := time.Now().UTC()
	items := make([]Item, 0, len(records))
	for _, r := range records {
		payload, _ := json.Marshal(r)
		items = append(items, Item{
			Source:     SourceActiveEvents,
			ID:         r.ID,
			ZoneID:     r.ZoneID,
			Kind:       r.Type,
			Severity:   r.Severity,
			RecordedAt: r.ReportedAt,
			Payload:    payload,
			FetchedAt:  now,
		})
	}
	return items
}

func wrapOutageRecords(records []OutageRecord) []Item {
	now := time.Now().UTC()
	items := make([]Item, 0, len(records))
	for _, r := range records {
		payload, _ := json.Marshal(r)
		items = append(items, Item{
			Source:     SourceServiceOutages,
			ID:         r.ID,
			ZoneID:     r.ZoneID,
			Kind:       r.Service,
			Severity:   severityForOutageStatus(r.Status),
			RecordedAt: r.StartedAt,
			Payload:    payload,
			FetchedAt:  now,
		})
	}
	return items
}

func wrapAssetRecords(records []AssetRecord) []Item {
	now := time.Now().UTC()
	items := make([]Item, 0, len(records))
	for _, r := range records {
		severity := 1
		if r.Critical {
			severity = 2
		}
		payload, _ := json.Marshal(r)
		items = append(items, Item{
			Source:    SourceAssetRegistry,
			ID:        r.ID,
			ZoneID:    r.ZoneID,
			Kind:      r.Kind,
			Severity:  severity,
			Payload:   payload,
			FetchedAt: now,
		})
	}
	return items
}

func wrapPlaybooks(records []Playbook) []Item {
	now := time.Now().UTC()
	items := make([]Item, 0, len(records))
	for _, r := range records {
		payload, _ := json.Marshal(r)
		items = append(items, Item{
			Source:    SourcePlaybooks,
			ID:        r.ID,
			Kind:      r.EventType,
			Severity:  1,
			Payload:   payload,
			FetchedAt: now,
		})
	}
	return items
}
