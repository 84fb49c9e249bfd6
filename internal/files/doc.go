// Package files provides the small set of file system primitives the state
// files rely on.
//
// WriteAtomic replaces a file by writing a temporary sibling, syncing it and
// renaming it over the target, so a reader sees either the old content or
// the new one and never a partial write. ReadLimited refuses files larger
// than a caller supplied bound before reading them into memory.
//
// Example usage:
//
//	if err := files.WriteAtomic(path, data, 0600); err != nil {
//	    return err
//	}
//	data, err := files.ReadLimited(path, config.MaxStateFileSize)
package files
