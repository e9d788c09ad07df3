// Package lineage records directed derivation edges between entities and
// answers one-hop and transitive lineage questions over them.
//
// Records are append-only and the implied graph may contain cycles. Every
// transitive walk is breadth-first with a visited set local to the call, so
// each entity is reported once per direction at the least depth it is
// reachable from, and the walk always terminates.
//
// # Basic Usage
//
//	tracker, err := lineage.NewTracker(lineage.Config{Repo: store})
//	if err != nil {
//	    return err
//	}
//
//	_, err = tracker.TrackTransformation(ctx, lineage.TrackRequest{
//	    Source:           core.NewEntityRef("doc", "42"),
//	    Target:           core.NewEntityRef("task", "7"),
//	    RelationshipType: core.RelationshipDerivedFrom,
//	})
//
//	path, err := tracker.GetFullLineagePath(ctx, core.NewEntityRef("task", "7"), 10)
//	for _, n := range path.Upstream {
//	    fmt.Printf("%s at depth %d\n", n.Entity, n.Depth)
//	}
package lineage
