// Package harness runs roster scenarios: scripted store operations checked
// against expected outcomes, the resulting trace and the final document.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	seed: seeds/legacy.json        # optional, relative to the scenario file
//	setup:
//	  - action: group.create
//	    args: { name: Platform }
//	    bind: platform
//	flow:
//	  - invoke: person.upsert
//	    args:
//	      profile: { 姓名: 张三, 电话: "13812345678" }
//	      group: $platform
//	    bind: zhang
//	    expect:
//	      case: Created
//	assertions:
//	  - type: trace_contains
//	    action: person.upsert
//	  - type: final_state
//	    table: people
//	    where: { id: $zhang }
//	    expect: { phone: "13812345678", group_count: 1 }
//
// A step's bind names a variable holding the "id" of its result. Any string
// argument of the form $name is replaced by that variable in later steps and
// in assertions.
//
// # Actions
//
// Every action calls the store, or the importer for import.rows, and
// completes with one case:
//
//   - Success: the operation applied
//   - Created, Merged: person.upsert made a new person or merged into one
//   - NotFound: the person, group, membership or event does not exist
//   - Error: the operation failed; the result carries the error text
//
// # Assertion Types
//
//   - trace_contains: an action appears in the trace with matching args
//   - trace_order: actions appear in the given order
//   - trace_count: an action appears exactly N times
//   - final_state: exactly one row of a state table matches where, and it
//     carries the expected values
//   - row_count: a state table has exactly N rows matching where
//
// State tables are projected from the final document: org, groups, people,
// memberships and events. See stateTables for their columns.
//
// # Deterministic Testing
//
// Each run uses a fresh in-memory backend, a stepping clock starting at
// testutil.Epoch and sequential ids, so the same scenario always produces
// the same trace and document. RunWithGolden compares the trace against a
// snapshot in testdata/golden.
package harness
