// Package session owns the durable session table.
//
// A Store keeps every session in memory and one JSON record per session in
// a storage directory. Create, Update and Delete return only after the
// record write or removal completed; when it fails the in-memory table is
// left as it was and the error wraps ErrPersistence.
//
//	st := storage.New(filepath.Join(dataDir, "sessions"))
//	store, err := session.Open(ctx, st)
//	sess, err := store.Create(ctx, id, userID, types.ModeNormal, "default", prompt, &threadID)
//
// Sessions returned by Get and the list functions are copies. Mutate a copy
// and pass it to Update to persist the change.
//
// Exporter writes one-off session snapshots for download.
package session
