// Package media persists captured images and indexes capture sets.
//
// A capture set is the output of one photometric sequence run: one image
// per light, stored under <base_dir>/sets/<set_name>/. The SQLite index
// (capture_sets, capture_artifacts) records each set's status and counters
// while the filesystem remains the source of artifact bytes.
//
// # Path safety
//
// Set names and artifact filenames arrive from the network. Every path is
// resolved and verified to stay inside the base directory before any
// filesystem access; traversal attempts fail with ErrUnsafePath and set
// names are restricted to [a-zA-Z0-9._-].
//
// # Usage
//
//	repo := media.NewSQLiteRepository(db.DB)
//	store, err := media.NewStore(cfg.Media.BaseDir, repo, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	set, _ := store.CreateSet(ctx, "scan-042")
//	store.SaveArtifact(ctx, set.Name, 0, "ringlight_top", imageBytes, "image/jpeg")
//	store.FinalizeSet(ctx, set.Name, media.SetStatusCompleted, "")
package media
