// Package rules loads declarative rule-sets and compiles them into laws.
//
// A rule-set is a YAML document:
//
//	version: 1.0.0
//	name: accounts
//	laws:
//	  - name: non-negative
//	    store: balance
//	    message: balance must not be negative
//	    expr: state >= 0
//	    repair: "state < 0 ? 0 : state"
//	    reactions:
//	      - target: audit-count
//	        compute: "target == null ? 1 : target + 1"
//	  - name: profile-shape
//	    store: profile
//	    schema: '{name: string, age: int & >=0}'
//
// expr, repair and compute are CEL expressions over the variable state (the
// law's store value); compute also sees target, the current value of the
// reaction's target store. schema is a CUE constraint that the state must
// unify with. A law needs expr, schema or both.
//
// Compiled laws operate on untyped values (any). Numbers produced by CEL are
// normalized: integral values become int64, others float64.
package rules
