// Package snapshot implements the snapshot codec (C7): a simple
// length-prefixed text format for string entries, used by SAVE/LOAD and
// the scheduler's autosnapshot job.
package snapshot

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/lunarcache/lunardb/engine"
)

// header is the magic line every snapshot file begins with.
const header = "LUNAR_CACHE_V1"

// Store is the subset of shard.Manager the codec needs: enumerate live
// string entries for Save, and re-insert them for Load.
type Store interface {
	ForEach(fn func(key, value string))
	Set(key, value string, ttlSeconds int64)
}

// Save writes every live string entry in store to path, in the
// LUNAR_CACHE_V1 format. List entries are not representable in this
// format and are silently skipped.
func Save(store Store, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("snapshot: create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if _, err := w.WriteString(header + "\n"); err != nil {
		return fmt.Errorf("snapshot: write header: %w", err)
	}

	var writeErr error
	store.ForEach(func(key, value string) {
		if writeErr != nil {
			return
		}
		writeErr = writeRecord(w, key, value)
	})
	if writeErr != nil {
		return fmt.Errorf("snapshot: write record: %w", writeErr)
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("snapshot: flush: %w", err)
	}
	return nil
}

func writeRecord(w *bufio.Writer, key, value string) error {
	if _, err := fmt.Fprintf(w, "%d\n%s\n%d\n%s\n", len(key), key, len(value), value); err != nil {
		return err
	}
	return nil
}

// Load reads a snapshot file and replays its entries into store via
// Set(key, value, 0). An invalid or missing header fails with
// engine.ErrBadFormat. EOF mid-record fails with engine.ErrTruncated. A
// clean EOF at a record boundary is normal termination. On failure the
// store holds whatever was loaded before the error (partial load is
// acceptable, per spec).
func Load(store Store, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("snapshot: open %s: %w", path, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)

	line, err := readLine(r)
	if err != nil || line != header {
		return engine.ErrBadFormat
	}

	for {
		keyLen, err := readLengthLine(r)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return engine.ErrTruncated
		}

		key, err := readExact(r, keyLen)
		if err != nil {
			return engine.ErrTruncated
		}

		valLen, err := readLengthLine(r)
		if err != nil {
			return engine.ErrTruncated
		}

		value, err := readExact(r, valLen)
		if err != nil {
			return engine.ErrTruncated
		}

		store.Set(key, value, 0)
	}
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(line, "\n"), nil
}

func readLengthLine(r *bufio.Reader) (int, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		if err == io.EOF && line == "" {
			return 0, io.EOF
		}
		if err == io.EOF {
			return 0, engine.ErrTruncated
		}
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSuffix(line, "\n"))
	if err != nil || n < 0 {
		return 0, engine.ErrTruncated
	}
	return n, nil
}

// readExact reads exactly n bytes followed by a newline delimiter.
func readExact(r *bufio.Reader, n int) (string, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	nl, err := r.ReadByte()
	if err != nil || nl != '\n' {
		return "", engine.ErrTruncated
	}
	return string(buf), nil
}
