// Package taskgraph turns the XPI catalog and declarative kind
// configurations into task descriptors for the CI task-graph engine.
//
// The central piece is dependency grouping: upstream tasks (build, sign,
// upload) are partitioned by a key, one primary task is selected per group,
// and a merged descriptor carrying the primary's attributes and an explicit
// dependency edge to every group member is emitted for the next stage.
package taskgraph
