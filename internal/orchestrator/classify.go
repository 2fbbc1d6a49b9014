package orchestrator

import (
	"context"
	"path"
	"strconv"
	"strings"

	"dbbackup/internal/catalog"
	"dbbackup/internal/fio"
)

// relationDirs are the PGDATA subdirectories holding relation segment
// files keyed to a database OID subdirectory (base/<dboid>/ and the
// default and global tablespaces use the same naming inside their own
// root).
var relationDirs = map[string]bool{"base": true, "global": true}

// forkSuffixes maps a relation filename's fork suffix to its canonical
// name; the absence of a suffix means the main fork.
var forkSuffixes = map[string]string{
	"_fsm":  "fsm",
	"_vm":   "vm",
	"_init": "init",
}

// ClassifyPGData walks pgdataPath (on DbHost) recursively, returning one
// FileEntry per file/directory/symlink found, with relation segment
// files additionally decoded into (dbOid, relOid, forkName, segno).
// Temporary relation files (t_<backendid>_<relfilenode>) and unlogged
// init-less forks mid-crash are skipped, matching what a fresh PGDATA
// scan would reasonably exclude from a consistent backup.
func ClassifyPGData(ctx context.Context, fac fio.Facade, pgdataPath string) ([]*catalog.FileEntry, error) {
	var out []*catalog.FileEntry
	if err := walkDir(ctx, fac, pgdataPath, "", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func walkDir(ctx context.Context, fac fio.Facade, absDir, relDir string, out *[]*catalog.FileEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entries, err := fac.Opendir(ctx, fio.DbHost, absDir)
	if err != nil {
		return err
	}

	cfs := isCFSTablespace(entries)

	for _, de := range entries {
		if shouldSkipName(de.Name) {
			continue
		}
		absPath := path.Join(absDir, de.Name)
		relPath := de.Name
		if relDir != "" {
			relPath = path.Join(relDir, de.Name)
		}

		if de.IsDir {
			*out = append(*out, &catalog.FileEntry{
				Path: absPath, RelPath: relPath, Kind: catalog.KindDir, Mode: uint32(de.Mode.Perm()),
			})
			if err := walkDir(ctx, fac, absPath, relPath, out); err != nil {
				return err
			}
			continue
		}
		if de.IsLink {
			*out = append(*out, &catalog.FileEntry{
				Path: absPath, RelPath: relPath, Kind: catalog.KindSymlink,
				Mode: uint32(de.Mode.Perm()), Linked: de.LinkTo,
			})
			continue
		}

		entry := &catalog.FileEntry{
			Path: absPath, RelPath: relPath, Kind: catalog.KindRegular,
			Mode: uint32(de.Mode.Perm()), Size: de.Size, IsCfs: cfs,
		}
		if dbOid, relOid, fork, segno, ok := parseRelationFilename(relDir, de.Name); ok {
			entry.IsDatafile = true
			entry.DbOid = dbOid
			entry.RelOid = relOid
			entry.ForkName = fork
			entry.Segno = segno
		}
		*out = append(*out, entry)
	}
	return nil
}

// shouldSkipName excludes entries a physical backup never needs to
// carry: lock/socket files regenerated on startup, and the backup
// engine's own lockfile/control files should this scan ever run over
// a path that happens to nest a catalog dir (defensive, not expected).
func shouldSkipName(name string) bool {
	switch name {
	case "postmaster.pid", "postmaster.opts", ".s.PGSQL.5432", "backup_label", "tablespace_map":
		return true
	}
	return strings.HasPrefix(name, ".s.PGSQL.")
}

// isCFSTablespace reports whether dirEntries (one directory's listing)
// contains the pg_compression marker file CFS tablespaces carry,
// meaning every relation file beneath it is stored pre-compressed and
// must not be re-compressed by the page codec.
func isCFSTablespace(entries []fio.DirEntry) bool {
	for _, e := range entries {
		if e.Name == "pg_compression" {
			return true
		}
	}
	return false
}

// parseRelationFilename decodes a PostgreSQL relation segment filename
// of the form <relfilenode>[_fork][.segno] found under base/<dbOid>/ or
// global/. Returns ok=false for anything that doesn't match (directory
// scaffolding, non-numeric names, config files living alongside).
func parseRelationFilename(relDir, name string) (dbOid, relOid uint32, fork string, segno int64, ok bool) {
	parts := strings.Split(relDir, "/")
	if len(parts) == 0 {
		return 0, 0, "", 0, false
	}
	top := parts[0]
	if !relationDirs[top] {
		return 0, 0, "", 0, false
	}

	var dbOidStr string
	if top == "global" {
		dbOidStr = "0"
	} else {
		if len(parts) < 2 {
			return 0, 0, "", 0, false
		}
		dbOidStr = parts[1]
	}
	db64, err := strconv.ParseUint(dbOidStr, 10, 32)
	if err != nil {
		return 0, 0, "", 0, false
	}

	base := name
	fork = "main"
	for suffix, forkName := range forkSuffixes {
		if strings.Contains(base, suffix) {
			idx := strings.Index(base, suffix)
			rest := base[idx+len(suffix):]
			if rest == "" || rest[0] == '.' {
				fork = forkName
				base = base[:idx] + rest
				break
			}
		}
	}

	relStr := base
	if i := strings.IndexByte(base, '.'); i >= 0 {
		relStr = base[:i]
		segStr := base[i+1:]
		seg, err := strconv.ParseInt(segStr, 10, 64)
		if err != nil {
			return 0, 0, "", 0, false
		}
		segno = seg
	}

	rel64, err := strconv.ParseUint(relStr, 10, 32)
	if err != nil {
		return 0, 0, "", 0, false
	}

	return uint32(db64), uint32(rel64), fork, segno, true
}
