// Package retention deletes audit events older than a configured number of
// days.
//
// A Pruner works on any provider whose decorator chain contains an
// audit.Pruner. When an archive directory is configured and the chain also
// contains an audit.Queryer, the doomed events are first exported to a JSON
// file named after the cutoff date.
//
//	p, err := retention.NewPruner(provider, &retention.Config{Days: 90, Schedule: "0 3 * * *"})
//	if err != nil {
//	    return err
//	}
//	if err := p.Start(ctx); err != nil {
//	    return err
//	}
//	defer p.Stop()
//
// A zero Days keeps events forever; an empty Schedule disables the
// scheduler while manual Prune calls still work.
package retention
