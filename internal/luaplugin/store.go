// Package luaplugin reads and edits Steam plugin Lua files: the shared
// Steamtools.lua that unlocks DLCs through addappid lines, and per-game
// <appid>.lua scripts, which are inspected in a sandboxed Lua state.
package luaplugin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"github.com/Guliveer/steam-gameloader-go/internal/jsonutil"
	"github.com/Guliveer/steam-gameloader-go/internal/model"
)

// PathFunc resolves the current Steamtools.lua location.
type PathFunc func(ctx context.Context) (string, error)

// Store edits Steamtools.lua. All read-modify-write cycles are serialized
// by one mutex, so a single Store must be shared by every writer.
type Store struct {
	mu   sync.Mutex
	fs   afero.Fs
	path PathFunc
}

// NewStore creates a Store over the file returned by path.
func NewStore(fs afero.Fs, path PathFunc) *Store {
	return &Store{fs: fs, path: path}
}

// StaticPath returns a PathFunc that always yields p.
func StaticPath(p string) PathFunc {
	return func(context.Context) (string, error) { return p, nil }
}

// Path returns the resolved Steamtools.lua location.
func (s *Store) Path(ctx context.Context) (string, error) {
	return s.path(ctx)
}

func (s *Store) readLines(path string) ([]string, error) {
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	text = strings.TrimRight(text, "\n")
	if text == "" {
		return nil, nil
	}
	return strings.Split(text, "\n"), nil
}

func (s *Store) writeLines(path string, lines []string) error {
	content := ""
	if len(lines) > 0 {
		content = strings.Join(lines, "\n") + "\n"
	}
	return jsonutil.WriteBytes(s.fs, path, []byte(content))
}

// lineAppID returns the first addappid argument of line if it is numeric.
func lineAppID(line string) (string, bool) {
	compact := strings.ReplaceAll(strings.TrimSpace(line), " ", "")
	compact = strings.ReplaceAll(compact, "\t", "")
	if !strings.HasPrefix(compact, "addappid(") {
		return "", false
	}
	args := strings.TrimPrefix(compact, "addappid(")
	end := strings.IndexAny(args, ",)")
	if end < 0 {
		return "", false
	}
	id := args[:end]
	if !model.IsAppID(id) {
		return "", false
	}
	return id, true
}

// ParseAddAppIDs returns the numeric addappid ids of src in file order, deduplicated.
func ParseAddAppIDs(src string) []string {
	var ids []string
	seen := make(map[string]struct{})
	for _, line := range strings.Split(strings.ReplaceAll(src, "\r\n", "\n"), "\n") {
		id, ok := lineAppID(line)
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// Installed returns the unlocked ids. A missing file means none.
func (s *Store) Installed(ctx context.Context) ([]string, error) {
	path, err := s.path(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	lines, err := s.readLines(path)
	if err != nil {
		return nil, err
	}
	return ParseAddAppIDs(strings.Join(lines, "\n")), nil
}

// Add appends addappid(<id>, 1) for each id not already present and
// returns the ids actually added.
func (s *Store) Add(ctx context.Context, ids []string) ([]string, error) {
	for _, id := range ids {
		if !model.IsAppID(id) {
			return nil, fmt.Errorf("invalid appid %q", id)
		}
	}

	path, err := s.path(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	lines, err := s.readLines(path)
	if err != nil {
		return nil, err
	}

	present := make(map[string]struct{})
	for _, id := range ParseAddAppIDs(strings.Join(lines, "\n")) {
		present[id] = struct{}{}
	}

	var added []string
	for _, id := range ids {
		if _, ok := present[id]; ok {
			continue
		}
		present[id] = struct{}{}
		lines = append(lines, fmt.Sprintf("addappid(%s, 1)", id))
		added = append(added, id)
	}
	if len(added) == 0 {
		return nil, nil
	}

	if err := s.writeLines(path, lines); err != nil {
		return nil, err
	}
	return added, nil
}

// Remove drops every addappid line of the given ids and returns the number
// of lines removed. With no ids, every addappid line is removed.
func (s *Store) Remove(ctx context.Context, ids []string) (int, error) {
	path, err := s.path(ctx)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	lines, err := s.readLines(path)
	if err != nil {
		return 0, err
	}
	if lines == nil {
		return 0, nil
	}

	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	kept := make([]string, 0, len(lines))
	removed := 0
	for _, line := range lines {
		id, ok := lineAppID(line)
		if ok {
			if _, hit := drop[id]; hit || len(ids) == 0 {
				removed++
				continue
			}
		}
		kept = append(kept, line)
	}
	if removed == 0 {
		return 0, nil
	}

	if err := s.writeLines(path, kept); err != nil {
		return 0, err
	}
	return removed, nil
}
