// Package harness runs duewatch scenarios as executable contract tests.
//
// A scenario drives one or more engine instances sharing an in-memory store
// and a fake clock through a list of steps, then checks assertions against
// the displayed notifications and the persisted state.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: visa_reminder
//	description: "A card due in two days notifies once"
//	start: 2026-10-14T09:00:00-03:00
//	instances: [a, b]
//	steps:
//	  - send:
//	      command: save-data
//	      key: due-items
//	      id: all
//	      data: [{id: visa-1, nombre: Visa, fechaVencimiento: "2026-10-16", montoAdeudado: 15000}]
//	  - send: {command: force-check}
//	    expect:
//	      ok: true
//	      data: {notified: [vencimiento-visa-1]}
//	  - advance: 24h
//	  - instance: b
//	    send: {command: activate-now}
//	assertions:
//	  - type: shown
//	    tag: vencimiento-visa-1
//	    title_contains: "vence en 2 días"
//	  - type: lease
//	    holder: b
//
// # Step Kinds
//
// Each step does exactly one thing:
//
//   - send: submits an inbound message and waits for its reply
//   - push: submits an external push payload
//   - advance: moves the fake clock forward, firing due timers
//   - sync: triggers a periodic sync for a tag
//   - stop: stops an instance, releasing its lease
//   - restart: stops an instance and starts a fresh one with the same id
//
// Steps target the first instance unless they name another one. After every
// step all instances are drained, so the trace is deterministic.
//
// # Assertion Types
//
//   - shown / not_shown: a tag is (not) in an instance's tray
//   - tray_count: number of notifications in an instance's tray
//   - display_count: number of display calls made by an instance
//   - record: a key exists (or not) in a store collection
//   - lease: which instance holds the lease ("" for vacant)
//   - armed: whether an instance has a local timer for a scheduled id
//
// # Golden Snapshots
//
// RunWithGolden compares the step trace against
// testdata/golden/{name}.golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness
