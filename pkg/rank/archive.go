package rank

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// WriteArchive writes the function-embedding catalog to path, replacing any
// existing file. The format is a private gob cache rewritten wholesale by
// cmd/embedgen; it is not meant to be edited or read by other tools.
func WriteArchive(path string, funcs []FuncEmbedding) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("rank: create archive: %w", err)
	}
	if err := gob.NewEncoder(f).Encode(funcs); err != nil {
		f.Close()
		return fmt.Errorf("rank: encode archive: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("rank: close archive: %w", err)
	}
	return nil
}

// ReadArchive loads the function-embedding catalog at path. A missing file is
// not an error: it yields an empty catalog, which ranks as "no preferences"
// and leaves selection to the required-function list. Any other read or
// decode failure is reported.
func ReadArchive(path string) ([]FuncEmbedding, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("rank: open archive: %w", err)
	}
	defer f.Close()

	var funcs []FuncEmbedding
	if err := gob.NewDecoder(f).Decode(&funcs); err != nil {
		return nil, fmt.Errorf("rank: decode archive %s: %w", path, err)
	}
	return funcs, nil
}

// LoadRanked reads the archive at path and ranks its entries against
// promptEmbedding. A missing archive yields an empty ranking.
func LoadRanked(path string, promptEmbedding []float32) ([]string, error) {
	funcs, err := ReadArchive(path)
	if err != nil {
		return nil, err
	}
	return Rank(promptEmbedding, funcs), nil
}
