package db

import (
	"time"

	"github.com/civicops/civicops-ai/internal/evidence"
)

// Fixtures is a reference-data set loadable with Store.Seed.
type Fixtures struct {
	ZoneStates []evidence.StateRecord
	Events     []evidence.EventRecord
	Outages    []evidence.OutageRecord
	Assets     []evidence.AssetRecord
	Playbooks  []evidence.Playbook
}

// DefaultFixtures returns a small but representative city: five zones, a mix
// of risk tiers, one active power outage, open incidents, critical assets,
// and playbooks covering the supported event types. Intended for local
// development and demos via the --seed flag.
func DefaultFixtures() *Fixtures {
	now := time.Now().UTC().Truncate(time.Second)

	return &Fixtures{
		ZoneStates: []evidence.StateRecord{
			{ZoneID: "Z_001", CityID: "C_001", RiskScore: 0.82, RiskTier: "high", Alerts: []string{"load_shedding", "voltage_sag"}, Metrics: map[string]float64{"demand_mw": 410, "supply_mw": 355}, ObservedAt: now},
			{ZoneID: "Z_002", CityID: "C_001", RiskScore: 0.35, RiskTier: "low", Alerts: []string{}, Metrics: map[string]float64{"demand_mw": 180, "supply_mw": 240}, ObservedAt: now},
			{ZoneID: "Z_003", CityID: "C_001", RiskScore: 0.58, RiskTier: "medium", Alerts: []string{"aqi_warning"}, Metrics: map[string]float64{"aqi": 162}, ObservedAt: now},
			{ZoneID: "Z_004", CityID: "C_001", RiskScore: 0.12, RiskTier: "low", Alerts: []string{}, Metrics: map[string]float64{"demand_mw": 95, "supply_mw": 140}, ObservedAt: now},
			{ZoneID: "Z_005", CityID: "C_001", RiskScore: 0.44, RiskTier: "medium", Alerts: []string{"bridge_sensor_offline"}, Metrics: map[string]float64{"traffic_index": 0.7}, ObservedAt: now},
		},
		Events: []evidence.EventRecord{
			{ID: "evt_001", CityID: "C_001", ZoneID: "Z_001", Type: "power_outage", Severity: 3, Status: "open", Description: "Substation feeder trip reported by grid telemetry", ReportedAt: now.Add(-25 * time.Minute)},
			{ID: "evt_002", CityID: "C_001", ZoneID: "Z_003", Type: "aqi_spike", Severity: 2, Status: "open", Description: "PM2.5 above threshold near industrial corridor", ReportedAt: now.Add(-2 * time.Hour)},
			{ID: "evt_003", CityID: "C_001", ZoneID: "Z_005", Type: "road_closure", Severity: 2, Status: "open", Description: "North bridge closed for emergency inspection", ReportedAt: now.Add(-40 * time.Minute)},
		},
		Outages: []evidence.OutageRecord{
			{ID: "out_001", CityID: "C_001", ZoneID: "Z_001", Service: "power", Status: "active", Description: "Feeder F-12 down, approx 4200 households affected", StartedAt: now.Add(-30 * time.Minute)},
			{ID: "out_002", CityID: "C_001", ZoneID: "Z_004", Service: "water", Status: "restoring", Description: "Pump station back online, pressure normalizing", StartedAt: now.Add(-5 * time.Hour)},
		},
		Assets: []evidence.AssetRecord{
			{ID: "ast_001", CityID: "C_001", ZoneID: "Z_001", Kind: "hospital", Name: "Riverside General Hospital", Critical: true},
			{ID: "ast_002", CityID: "C_001", ZoneID: "Z_001", Kind: "substation", Name: "Substation North-12", Critical: true},
			{ID: "ast_003", CityID: "C_001", ZoneID: "Z_003", Kind: "school", Name: "Hillcrest Elementary", Critical: false},
			{ID: "ast_004", CityID: "C_001", ZoneID: "Z_005", Kind: "bridge", Name: "North River Bridge", Critical: true},
		},
		Playbooks: []evidence.Playbook{
			{ID: "pb_power_high", EventType: "power_outage", TriggerTier: "high", Actions: []string{"Dispatch repair crew to affected feeder", "Activate backup feeders for critical assets", "Issue outage notice to affected zones"}, ETAMinutes: 45, CostUSD: 12000, Effectiveness: 0.75},
			{ID: "pb_power_med", EventType: "power_outage", TriggerTier: "medium", Actions: []string{"Dispatch inspection crew", "Prepare load balancing plan"}, ETAMinutes: 90, CostUSD: 4000, Effectiveness: 0.5},
			{ID: "pb_aqi", EventType: "aqi_spike", TriggerTier: "*", Actions: []string{"Issue air quality advisory", "Restrict industrial emissions in corridor", "Deploy mobile monitoring unit"}, ETAMinutes: 120, CostUSD: 2500, Effectiveness: 0.4},
			{ID: "pb_road", EventType: "road_closure", TriggerTier: "*", Actions: []string{"Publish detour routing", "Notify transit operators", "Schedule structural inspection"}, ETAMinutes: 60, CostUSD: 1500, Effectiveness: 0.6},
			{ID: "pb_infra", EventType: "infrastructure_failure", TriggerTier: "*", Actions: []string{"Dispatch engineering assessment team", "Isolate affected segment"}, ETAMinutes: 75, CostUSD: 8000, Effectiveness: 0.55},
			{ID: "pb_default", EventType: "*", TriggerTier: "*", Actions: []string{"Escalate to duty operations manager"}, ETAMinutes: 30, CostUSD: 500, Effectiveness: 0.2},
		},
	}
}
