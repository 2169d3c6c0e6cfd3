// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package store implements the telemetry/incident persistence:
// a single telemetry_events table holds every typed event (process,
// audit, flow, security) as a JSON body tagged with its event_type,
// next to an incidents table; there is no separate table per event
// type. Events are indexed by ts_ns, device_id and event_type,
// incidents by device_id and start_ts, and telemetry has time-based
// retention. Writes are batched per DeviceTelemetry, one transaction
// per flush rather than one per event.
package store

import (
	"database/sql"
	"encoding/json"
	"time"

	_ "modernc.org/sqlite"

	"github.com/amoskys/amoskys/internal/clock"
	"github.com/amoskys/amoskys/internal/errors"
	"github.com/amoskys/amoskys/internal/model"
)

// Store persists telemetry events and incidents to an embedded sqlite
// database, single-writer/multi-reader.
type Store struct {
	db *sql.DB
}

// Open opens or creates the store database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "open telemetry store")
	}
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS telemetry_events (
		event_id TEXT PRIMARY KEY,
		device_id TEXT NOT NULL,
		device_type TEXT NOT NULL,
		event_type TEXT NOT NULL,
		severity TEXT NOT NULL,
		ts_ns INTEGER NOT NULL,
		body BLOB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_telemetry_events_ts ON telemetry_events(ts_ns);
	CREATE INDEX IF NOT EXISTS idx_telemetry_events_device ON telemetry_events(device_id);
	CREATE INDEX IF NOT EXISTS idx_telemetry_events_type ON telemetry_events(event_type);

	CREATE TABLE IF NOT EXISTS incidents (
		incident_id TEXT PRIMARY KEY,
		device_id TEXT NOT NULL,
		severity TEXT NOT NULL,
		rule_name TEXT NOT NULL,
		summary TEXT NOT NULL,
		tactics TEXT NOT NULL,
		techniques TEXT NOT NULL,
		evidence_event_ids TEXT NOT NULL,
		metadata TEXT NOT NULL,
		start_ts INTEGER NOT NULL,
		end_ts INTEGER NOT NULL,
		state TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_incidents_device ON incidents(device_id);
	CREATE INDEX IF NOT EXISTS idx_incidents_start ON incidents(start_ts);
	`
	_, err := s.db.Exec(schema)
	if err != nil {
		return errors.Wrap(err, errors.KindInternal, "init telemetry schema")
	}
	return nil
}

// RecordTelemetry persists every event in dt as a single transaction.
func (s *Store) RecordTelemetry(dt model.DeviceTelemetry) error {
	if len(dt.Events) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, errors.KindTransient, "begin telemetry tx")
	}
	stmt, err := tx.Prepare(`
		INSERT INTO telemetry_events (event_id, device_id, device_type, event_type, severity, ts_ns, body)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(event_id) DO NOTHING
	`)
	if err != nil {
		tx.Rollback()
		return errors.Wrap(err, errors.KindInternal, "prepare telemetry insert")
	}
	defer stmt.Close()

	for _, ev := range dt.Events {
		body, err := json.Marshal(ev)
		if err != nil {
			tx.Rollback()
			return errors.Wrap(err, errors.KindInternal, "marshal telemetry event")
		}
		if _, err := stmt.Exec(ev.EventID, dt.DeviceID, string(dt.DeviceType), string(ev.EventType), string(ev.Severity), int64(ev.EventTSNs), body); err != nil {
			tx.Rollback()
			return errors.Wrap(err, errors.KindTransient, "insert telemetry event")
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.KindTransient, "commit telemetry tx")
	}
	return nil
}

// DistinctDeviceIDs returns the set of devices with telemetry recorded
// at or after since, for the correlation engine's tumbling-cadence scan
// mode to discover which device windows need evaluating.
func (s *Store) DistinctDeviceIDs(since time.Time) ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT device_id FROM telemetry_events WHERE ts_ns >= ?`, uint64(since.UnixNano()))
	if err != nil {
		return nil, errors.Wrap(err, errors.KindTransient, "query distinct device ids")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, errors.KindInternal, "scan device id")
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.KindTransient, "distinct device id rows")
	}
	return out, nil
}

// QueryEvents returns events for deviceID within [since, until), oldest
// first, optionally filtered by eventType ("" means all types).
func (s *Store) QueryEvents(deviceID string, eventType model.EventType, since, until time.Time) ([]model.TelemetryEvent, error) {
	query := `SELECT body FROM telemetry_events WHERE device_id = ? AND ts_ns >= ? AND ts_ns < ?`
	args := []any{deviceID, uint64(since.UnixNano()), uint64(until.UnixNano())}
	if eventType != "" {
		query += ` AND event_type = ?`
		args = append(args, string(eventType))
	}
	query += ` ORDER BY ts_ns ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindTransient, "query telemetry events")
	}
	defer rows.Close()

	var out []model.TelemetryEvent
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, errors.Wrap(err, errors.KindInternal, "scan telemetry event")
		}
		var ev model.TelemetryEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return nil, errors.Wrap(err, errors.KindInternal, "unmarshal telemetry event")
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.KindTransient, "query telemetry rows")
	}
	return out, nil
}

// RecordIncident inserts inc, or updates it in place if an incident
// with the same deterministic IncidentID already exists (re-running the
// same evidence through the correlation engine must not create
// duplicates).
func (s *Store) RecordIncident(inc model.Incident) error {
	tactics, err := json.Marshal(inc.Tactics)
	if err != nil {
		return errors.Wrap(err, errors.KindInternal, "marshal tactics")
	}
	techniques, err := json.Marshal(inc.Techniques)
	if err != nil {
		return errors.Wrap(err, errors.KindInternal, "marshal techniques")
	}
	evidence, err := json.Marshal(inc.EvidenceEventIDs)
	if err != nil {
		return errors.Wrap(err, errors.KindInternal, "marshal evidence")
	}
	metadata, err := json.Marshal(inc.Metadata)
	if err != nil {
		return errors.Wrap(err, errors.KindInternal, "marshal metadata")
	}

	_, err = s.db.Exec(`
		INSERT INTO incidents (incident_id, device_id, severity, rule_name, summary, tactics, techniques, evidence_event_ids, metadata, start_ts, end_ts, state)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(incident_id) DO UPDATE SET
			severity = excluded.severity,
			summary = excluded.summary,
			tactics = excluded.tactics,
			techniques = excluded.techniques,
			evidence_event_ids = excluded.evidence_event_ids,
			metadata = excluded.metadata,
			end_ts = excluded.end_ts
	`,
		inc.IncidentID, inc.DeviceID, string(inc.Severity), inc.RuleName, inc.Summary,
		string(tactics), string(techniques), string(evidence), string(metadata),
		inc.StartTS.UnixNano(), inc.EndTS.UnixNano(), string(inc.State),
	)
	if err != nil {
		return errors.Wrap(err, errors.KindTransient, "record incident")
	}
	return nil
}

// ListIncidents returns incidents for deviceID, optionally filtered by
// state ("" means all states), newest first.
func (s *Store) ListIncidents(deviceID string, state model.IncidentState) ([]model.Incident, error) {
	query := `SELECT incident_id, device_id, severity, rule_name, summary, tactics, techniques, evidence_event_ids, metadata, start_ts, end_ts, state FROM incidents WHERE device_id = ?`
	args := []any{deviceID}
	if state != "" {
		query += ` AND state = ?`
		args = append(args, string(state))
	}
	query += ` ORDER BY start_ts DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindTransient, "list incidents")
	}
	defer rows.Close()

	var out []model.Incident
	for rows.Next() {
		var inc model.Incident
		var severity, stateStr string
		var tactics, techniques, evidence, metadata string
		var start, end int64
		if err := rows.Scan(&inc.IncidentID, &inc.DeviceID, &severity, &inc.RuleName, &inc.Summary, &tactics, &techniques, &evidence, &metadata, &start, &end, &stateStr); err != nil {
			return nil, errors.Wrap(err, errors.KindInternal, "scan incident")
		}
		inc.Severity = model.Severity(severity)
		inc.State = model.IncidentState(stateStr)
		inc.StartTS = time.Unix(0, start)
		inc.EndTS = time.Unix(0, end)
		if err := json.Unmarshal([]byte(tactics), &inc.Tactics); err != nil {
			return nil, errors.Wrap(err, errors.KindInternal, "unmarshal tactics")
		}
		if err := json.Unmarshal([]byte(techniques), &inc.Techniques); err != nil {
			return nil, errors.Wrap(err, errors.KindInternal, "unmarshal techniques")
		}
		if err := json.Unmarshal([]byte(evidence), &inc.EvidenceEventIDs); err != nil {
			return nil, errors.Wrap(err, errors.KindInternal, "unmarshal evidence")
		}
		if err := json.Unmarshal([]byte(metadata), &inc.Metadata); err != nil {
			return nil, errors.Wrap(err, errors.KindInternal, "unmarshal metadata")
		}
		out = append(out, inc)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.KindTransient, "list incidents rows")
	}
	return out, nil
}

// Transition updates an incident's state for the triage API: an
// operator (or automation) acknowledges an incident by moving it to
// INVESTIGATING, and closes it by moving it to RESOLVED or
// FALSE_POSITIVE. The current state is not checked: any state may be
// set from any other. An unknown incidentID is an error.
func (s *Store) Transition(incidentID string, to model.IncidentState) error {
	res, err := s.db.Exec(`UPDATE incidents SET state = ? WHERE incident_id = ?`, string(to), incidentID)
	if err != nil {
		return errors.Wrap(err, errors.KindTransient, "transition incident")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, errors.KindInternal, "transition rows affected")
	}
	if n == 0 {
		return errors.Errorf(errors.KindPermanent, "no such incident: %s", incidentID)
	}
	return nil
}

// Prune deletes telemetry events older than the retention cutoff,
// returning rows removed. Incidents are retained regardless of
// telemetry retention since they are small and operator-facing.
func (s *Store) Prune(retention time.Duration) (int64, error) {
	cutoff := uint64(clock.Now().Add(-retention).UnixNano())
	res, err := s.db.Exec(`DELETE FROM telemetry_events WHERE ts_ns < ?`, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, errors.KindInternal, "prune telemetry events")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, errors.KindInternal, "prune rows affected")
	}
	return n, nil
}
