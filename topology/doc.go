// Package topology provides replica drain signals for causeway stores.
//
// A drained replica is taken out of read rotation: the store stops serving
// reads from it and routes them to other eligible replicas or the primary.
// Draining never affects consistency, since a read that finds no eligible
// replica is always served by the primary.
//
// # Overview
//
// The package provides implementations of the [causeway.TopologyWatcher]
// and [causeway.TopologyOperator] interfaces:
//   - [causeway.TopologyWatcher]: Emits [causeway.TopologyUpdate] events when
//     a replica's drain state changes.
//   - [causeway.TopologyOperator]: Sets drain states programmatically.
//
// # NATS Topology
//
// [NATS] watches a NATS KV key for a drain document and writes it through
// SetDrain:
//
//	nc, _ := nats.Connect("nats://localhost:4222")
//	js, _ := jetstream.New(nc)
//	kv, _ := js.KeyValue(ctx, "causeway-config")
//
//	watcher, _ := topology.NewNATS(kv,
//	    topology.WithKey("orders.topology.drain"),
//	)
//
//	store, _ := sqlstore.New(ctx, primary, replicas,
//	    sqlstore.WithTopologyWatcher(watcher),
//	)
//
// # Drain Configuration Format
//
// The KV value is a JSON object listing the replicas to drain:
//
//	{
//	    "drain": ["replica-2"],
//	    "reason": "OS Patching"
//	}
//
// Drain mode requires explicit operator actions:
//   - Start maintenance: PUT the drain document (or call SetDrain)
//   - End maintenance: DELETE the key, or PUT a document without the replica
//
// There is no automatic expiry. A malformed document is logged and treated
// as an empty drain list.
//
// # Local Topology
//
// [Local] provides an in-memory implementation for tests and demos:
//
//	local := topology.NewLocal()
//	_ = local.SetDrain(ctx, "replica-2", true, "maintenance")
//
//	// Later...
//	_ = local.SetDrain(ctx, "replica-2", false, "")
package topology
