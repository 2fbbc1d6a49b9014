package catalog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"

	"dbbackup/internal/xerrors"
)

const fileListName = "backup_content.control"

// filelistFlushPages bounds the write buffer to roughly 500 pages,
// amortizing syscall cost without holding an unbounded amount of
// file-list JSON in memory.
const filelistFlushPages = 500
const pageSize = 8192

// fileEntryJSON is the on-disk JSON shape; it omits fields that are
// either in-memory only (PageMap, claimed) or not always applicable.
type fileEntryJSON struct {
	Path           string `json:"path"`
	Size           int64  `json:"size"`
	Mode           uint32 `json:"mode"`
	IsDatafile     bool   `json:"is_datafile"`
	IsCfs          bool   `json:"is_cfs"`
	Crc            uint32 `json:"crc"`
	CompressAlg    string `json:"compress_alg"`
	ExternalDirNum int    `json:"external_dir_num"`

	Segno   *int64  `json:"segno,omitempty"`
	Linked  *string `json:"linked,omitempty"`
	NBlocks *int64  `json:"n_blocks,omitempty"`

	RelPath    string `json:"rel_path,omitempty"`
	Kind       string `json:"kind,omitempty"`
	WriteSize  int64  `json:"write_size"`
	DbOid      uint32 `json:"db_oid,omitempty"`
	TblspcOid  uint32 `json:"tblspc_oid,omitempty"`
	RelOid     uint32 `json:"rel_oid,omitempty"`
	ForkName   string `json:"fork_name,omitempty"`
	ExistsPrev bool   `json:"exists_in_prev,omitempty"`
}

func toJSON(e *FileEntry) fileEntryJSON {
	j := fileEntryJSON{
		Path:           e.Path,
		RelPath:        e.RelPath,
		Kind:           string(e.Kind),
		Size:           e.Size,
		Mode:           e.Mode,
		IsDatafile:     e.IsDatafile,
		IsCfs:          e.IsCfs,
		Crc:            e.Crc,
		CompressAlg:    string(e.CompressAlg),
		ExternalDirNum: e.ExternalDirNum,
		WriteSize:      e.WriteSize,
		DbOid:          e.DbOid,
		TblspcOid:      e.TblspcOid,
		RelOid:         e.RelOid,
		ForkName:       e.ForkName,
		ExistsPrev:     e.ExistsInPrev,
	}
	if e.IsDatafile {
		segno := e.Segno
		j.Segno = &segno
	}
	if e.Linked != "" {
		linked := e.Linked
		j.Linked = &linked
	}
	if e.IsDatafile {
		nblocks := e.NBlocks
		j.NBlocks = &nblocks
	}
	return j
}

func fromJSON(j fileEntryJSON) *FileEntry {
	e := &FileEntry{
		Path:           j.Path,
		RelPath:        j.RelPath,
		Kind:           FileKind(j.Kind),
		Size:           j.Size,
		Mode:           j.Mode,
		IsDatafile:     j.IsDatafile,
		IsCfs:          j.IsCfs,
		Crc:            j.Crc,
		CompressAlg:    CompressAlg(j.CompressAlg),
		ExternalDirNum: j.ExternalDirNum,
		WriteSize:      j.WriteSize,
		DbOid:          j.DbOid,
		TblspcOid:      j.TblspcOid,
		RelOid:         j.RelOid,
		ForkName:       j.ForkName,
		ExistsInPrev:   j.ExistsPrev,
	}
	if j.Segno != nil {
		e.Segno = *j.Segno
	}
	if j.Linked != nil {
		e.Linked = *j.Linked
	}
	if j.NBlocks != nil {
		e.NBlocks = *j.NBlocks
	}
	return e
}

// WriteFileList writes entries to dir/backup_content.control, one JSON
// object per line, flushed in chunks, crash-safe via tmp+rename.
func WriteFileList(dir string, entries []*FileEntry) error {
	path := filepath.Join(dir, fileListName)
	return writeAtomic(path, func(w *bufio.Writer) error {
		flushThreshold := filelistFlushPages * pageSize
		since := 0
		for _, e := range entries {
			b, err := json.Marshal(toJSON(e))
			if err != nil {
				return err
			}
			n, err := w.Write(b)
			if err != nil {
				return err
			}
			if err := w.WriteByte('\n'); err != nil {
				return err
			}
			since += n + 1
			if since >= flushThreshold {
				if err := w.Flush(); err != nil {
					return err
				}
				since = 0
			}
		}
		return nil
	})
}

// ReadFileList parses dir/backup_content.control.
func ReadFileList(dir string) ([]*FileEntry, error) {
	path := filepath.Join(dir, fileListName)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, xerrors.Wrap(xerrors.KindCatalog, xerrors.SeverityError, err, "open file list")
	}
	defer f.Close()

	var out []*FileEntry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var j fileEntryJSON
		if err := json.Unmarshal(line, &j); err != nil {
			return nil, xerrors.Wrap(xerrors.KindCatalog, xerrors.SeverityError, err, "parse file list line")
		}
		out = append(out, fromJSON(j))
	}
	if err := sc.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.KindIO, xerrors.SeverityError, err, "read file list")
	}
	return out, nil
}
