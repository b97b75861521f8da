/*
Package log provides structured logging for sky-omega using zerolog.

A single package-level Logger is initialized once via Init and shared by every
subsystem. Components obtain a child logger scoped to their name via
WithComponent, WithTree, or WithQuery so that log lines carry enough context to
correlate a page split, a query plan, or a patch batch back to its origin
without threading a logger through every call.

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})
	treeLog := log.WithTree("spo")
	treeLog.Debug().Int("page_id", 42).Msg("split leaf")
*/
package log
