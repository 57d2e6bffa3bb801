// Package core contains the shared domain types for minerwatch: the EVE
// telemetry event shape, indicator candidates, synthesized Suricata rules,
// the known-indicator sets, and the recent-pattern cache used to suppress
// re-generation of rules for indicators that were already ruled.
package core
