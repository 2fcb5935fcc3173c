// Package client is the protobee client.
//
// A DB handle talks to a protobee server over one authenticated connection:
//
//	db, err := client.Open(ctx, serverKey, clientPrimaryKey, client.WithAddress(addr))
//	if err != nil {
//		return err
//	}
//	defer db.Close(ctx)
//
//	err = db.Put(ctx, "/users/1", user, client.PutOptions{})
//
// Batch, Checkout and Snapshot derive handles that share the connection and
// address a server-side instance. Derived handles cannot derive further.
// Write guards (read-only views, batch-only calls) fail locally without a
// round trip.
//
// Every response carries the version watermark of the addressed target and
// handles only ever raise their watermark. The server pushes a sync
// notification after each append; the main handle refreshes in the
// background with at most one refresh in flight.
//
// When the connection drops, the next call on the main handle dials again.
// Instances and streams opened on the lost connection do not survive and
// fail with ErrInstanceLost.
package client
