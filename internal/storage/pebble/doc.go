// Package pebblestore is a thin wrapper around Pebble with an fsync policy,
// batches, snapshots and metrics hooks. sharedlog keeps each container's
// metadata directory in one of these stores.
//
//	db, err := pebblestore.Open(pebblestore.Options{
//	    DataDir: filepath.Join(containerDir, "meta"),
//	    Fsync:   pebblestore.FsyncModeAlways,
//	    Logger:  logger,
//	})
//	if err != nil { /* handle */ }
//	defer db.Close()
//
//	b := db.NewBatch()
//	_ = b.Set([]byte("s/..."), record, nil)
//	_ = db.CommitBatch(ctx, b)
//	b.Close()
//
// With FsyncModeNever, callers make writes durable with Sync.
package pebblestore
