// Package dag is a small make-style build engine. Targets are registered on
// an explicit Graph with their dependencies, a rebuild policy and an action;
// Run resolves a target's transitive dependencies, running independent ones
// concurrently, and executes every target at most once for the lifetime of
// the graph.
//
// A content-based target whose artifact already exists once its dependencies
// have resolved is skipped without calling its action. A target whose
// dependency failed is never executed and fails with a *DependencyError that
// names the target where the failure originated.
package dag
