// Package storage saves fetched feed results to an output directory.
//
// Each result is written as <key>.json, where the key is usually a username.
// Writes go through a temporary file and a rename, so a reader never sees a
// half-written result. On creation the Manager indexes the files already in
// the directory, so a batch that is run again can skip keys it already has.
//
// Usage:
//
//	manager, err := storage.NewManager(afero.NewOsFs(), "profiles")
//	if err != nil {
//	    return err
//	}
//
//	if !manager.Has("instagram") {
//	    err = manager.Put("instagram", profile)
//	}
package storage
