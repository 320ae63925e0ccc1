// Package fix finds, applies and removes game fixes: bypass archives
// published per AppID plus a local catalog matched by game name.
package fix

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/spf13/afero"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	trademarks   = regexp.MustCompile(`[™©®]`)
	parenthetic  = regexp.MustCompile(`\s*\([^)]*\)`)
	nonWord      = regexp.MustCompile(`[^\p{L}\p{N}_\s]`)
	extraSpacing = regexp.MustCompile(`\s+`)
)

var stopWords = map[string]struct{}{
	"online": {}, "patch": {}, "bypass": {}, "tested": {}, "ok": {}, "zip": {},
	"edition": {}, "definitive": {}, "remastered": {}, "gold": {}, "deluxe": {},
	"complete": {}, "ultimate": {}, "goty": {}, "enhanced": {},
}

// Normalize folds a game name into its catalog key:
// "My Game: Deluxe Edition (2020)" becomes "my game".
func Normalize(name string) string {
	if name == "" {
		return ""
	}
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), name)
	if err != nil {
		folded = name
	}

	s := strings.ToLower(folded)
	s = trademarks.ReplaceAllString(s, "")
	s = parenthetic.ReplaceAllString(s, "")
	s = nonWord.ReplaceAllString(s, " ")

	words := strings.Fields(s)
	kept := words[:0]
	for _, w := range words {
		if _, stop := stopWords[w]; !stop {
			kept = append(kept, w)
		}
	}
	return strings.TrimSpace(extraSpacing.ReplaceAllString(strings.Join(kept, " "), " "))
}

// Entry is one catalog fix.
type Entry struct {
	Name       string `json:"name"`
	URL        string `json:"url"`
	Normalized string `json:"normalized_name"`
}

// Match is a search hit.
type Match struct {
	Entry
	Score int `json:"match_score"`
}

// Catalog is the local fix list keyed by normalized game name.
type Catalog struct {
	entries map[string]Entry
	loaded  bool
}

type catalogFile struct {
	Fixes map[string]string `json:"fixes"`
}

// LoadCatalog reads {"fixes": {name: url}} from path. A missing file yields
// an empty, unloaded catalog.
func LoadCatalog(afs afero.Fs, path string) (*Catalog, error) {
	c := &Catalog{entries: make(map[string]Entry)}
	data, err := afero.ReadFile(afs, path)
	if errors.Is(err, fs.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return c, fmt.Errorf("reading fix catalog %s: %w", path, err)
	}

	var file catalogFile
	if err := json.Unmarshal(data, &file); err != nil {
		return c, fmt.Errorf("parsing fix catalog %s: %w", path, err)
	}
	for name, url := range file.Fixes {
		key := Normalize(name)
		if key == "" || url == "" {
			continue
		}
		c.entries[key] = Entry{Name: name, URL: url, Normalized: key}
	}
	c.loaded = true
	return c, nil
}

// NewCatalog builds a catalog from name to URL pairs.
func NewCatalog(fixes map[string]string) *Catalog {
	c := &Catalog{entries: make(map[string]Entry, len(fixes)), loaded: true}
	for name, url := range fixes {
		if key := Normalize(name); key != "" {
			c.entries[key] = Entry{Name: name, URL: url, Normalized: key}
		}
	}
	return c
}

// Loaded reports whether a catalog file was read.
func (c *Catalog) Loaded() bool { return c.loaded }

// Len returns the number of entries.
func (c *Catalog) Len() int { return len(c.entries) }

func wordSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(s) {
		set[w] = struct{}{}
	}
	return set
}

// Find returns the best catalog entry for a game name: an exact normalized
// match, else the highest word-overlap score of at least 2.
func (c *Catalog) Find(name string) (Entry, bool) {
	query := Normalize(name)
	if query == "" {
		return Entry{}, false
	}
	if e, ok := c.entries[query]; ok {
		return e, true
	}

	words := wordSet(query)
	var best Entry
	bestScore := 0
	for _, key := range c.sortedKeys() {
		keyWords := wordSet(key)
		common := 0
		for w := range words {
			if _, ok := keyWords[w]; ok {
				common++
			}
		}
		if common == 0 {
			continue
		}

		score := common
		if common == len(words) {
			score += 5
		}
		if strings.Contains(key, query) || strings.Contains(query, key) {
			score += 3
		}
		if score > bestScore {
			best, bestScore = c.entries[key], score
		}
	}
	return best, bestScore >= 2
}

func (c *Catalog) sortedKeys() []string {
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Search returns the entries whose key contains the query or is contained
// in it, best first, up to limit (20 when limit <= 0), and the total hit count.
func (c *Catalog) Search(query string, limit int) ([]Match, int) {
	if limit <= 0 {
		limit = 20
	}
	q := Normalize(query)
	if q == "" {
		return []Match{}, 0
	}

	words := wordSet(q)
	matches := []Match{}
	for _, key := range c.sortedKeys() {
		if !strings.Contains(key, q) && !strings.Contains(q, key) {
			continue
		}
		score := 0
		for w := range wordSet(key) {
			if _, ok := words[w]; ok {
				score++
			}
		}
		matches = append(matches, Match{Entry: c.entries[key], Score: score})
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })

	total := len(matches)
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, total
}

// All returns every entry ordered by normalized name.
func (c *Catalog) All() []Entry {
	out := make([]Entry, 0, len(c.entries))
	for _, k := range c.sortedKeys() {
		out = append(out, c.entries[k])
	}
	return out
}

// Stats describes the catalog.
type Stats struct {
	Loaded bool     `json:"loaded"`
	Count  int      `json:"count"`
	Sample []string `json:"sample"`
}

// Stats returns the catalog size and up to five keys.
func (c *Catalog) Stats() Stats {
	keys := c.sortedKeys()
	if len(keys) > 5 {
		keys = keys[:5]
	}
	return Stats{Loaded: c.loaded, Count: len(c.entries), Sample: keys}
}
