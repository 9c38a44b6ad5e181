package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// doc is one file in a store's home directory. Writes replace the whole file
// through a sibling temp file and a rename, so a reader sees either the old
// document or the new one.
type doc struct {
	path string
}

func docAt(dir, name string) doc { return doc{path: filepath.Join(dir, name)} }

func (d doc) exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// bytes returns the file content, or nil when the file is absent.
func (d doc) bytes() ([]byte, error) {
	b, err := os.ReadFile(d.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("read %s: %w", filepath.Base(d.path), err)
	}
	return b, nil
}

// decode unmarshals the file into out. An absent file leaves out as it is.
func (d doc) decode(out any) error {
	b, err := d.bytes()
	if err != nil || b == nil {
		return err
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(d.path), err)
	}
	return nil
}

func (d doc) encode(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return d.replace(b)
}

// replace swaps in b as the new content. Files hold key material, so the
// directory is 0700 and the file 0600.
func (d doc) replace(b []byte) (err error) {
	dir := filepath.Dir(d.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(d.path)+".*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	for _, step := range []func() error{
		func() error { return tmp.Chmod(0o600) },
		func() error {
			_, err := tmp.Write(b)
			return err
		},
		tmp.Sync,
		tmp.Close,
	} {
		if err = step(); err != nil {
			return err
		}
	}
	return os.Rename(tmp.Name(), d.path)
}
