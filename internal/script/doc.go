// Package script runs scenario scripts against the pubsub registry.
//
// A script is an ordered list of steps, each one registry operation with an
// optional expected outcome. Scripts are written in YAML, JSON or TOML:
//
//	name: once-then-gone
//	steps:
//	  - op: once
//	    key: A
//	    handler: h1
//	  - op: publish
//	    key: A
//	    data: hello
//	  - op: publish
//	    key: A
//	    expect: key_not_found
//
// Running a script produces a transcript with one entry per handler
// invocation and one outcome per step. Handlers created by a script record
// their invocation, optionally subscribe another handler (spawn) and
// optionally fail, which makes delivery order, snapshot semantics and error
// propagation visible without writing Go.
package script
