// Package harness runs YAML test scenarios against a fresh database.
//
// # Scenario Format
//
//	name: scenario_name
//	description: "What this scenario validates"
//	engine: embedded            # or generic
//	setup:
//	  - script: "create table ..."
//	steps:
//	  - name: insert
//	    script: ["insert into t (a) values (${a})", "select count(*) as total from t"]
//	    request: { a: 1 }
//	    expect:
//	      values: { total: 1 }
//	  - name: list
//	    mode: table
//	    script: "select * from t"
//	    expect:
//	      rows: 1
//	  - name: broken
//	    script: "insert into t (a) values (${missing})"
//	    expect:
//	      error: MISSING_PARAMETER
//	assertions:
//	  - type: trace_order
//	    steps: [insert, list]
//	  - type: final_state
//	    table: t
//	    where: { a: 1 }
//	    expect: { a: 1 }
//
// Every step is recorded in the trace: its request, the response object
// (value mode) or report (table mode), and the error kind when it failed.
// Golden files under testdata/golden hold the expected trace of each
// scenario; regenerate them with go test -update.
package harness
