// Package store talks to the public Steam Store API: app details, app
// names and store search, with JSON caches in front of the slow calls.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Guliveer/steam-gameloader-go/internal/cache"
	"github.com/Guliveer/steam-gameloader-go/internal/constants"
	"github.com/Guliveer/steam-gameloader-go/internal/httpclient"
	"github.com/Guliveer/steam-gameloader-go/internal/logger"
	"github.com/Guliveer/steam-gameloader-go/internal/model"
	"github.com/Guliveer/steam-gameloader-go/internal/utils"
)

// Cache namespaces.
const (
	NamesNamespace  = "steam_games_cache"
	SearchNamespace = "search_cache"
)

const (
	defaultLanguage = "brazilian"
	defaultCountry  = "BR"
	minQueryLength  = 2
)

var (
	ErrAppNotFound   = errors.New("app not found on the Steam store")
	ErrQueryTooShort = errors.New("search term must have at least 2 characters")
)

// Config configures a Client.
type Config struct {
	// BaseURL replaces constants.StoreAPIBase; tests point it at httptest.
	BaseURL   string
	NamesTTL  time.Duration
	SearchTTL time.Duration
}

// Client is a cached Steam Store API client.
type Client struct {
	http    httpclient.Fetcher
	baseURL string
	names   *cache.TTL[string]
	search  *cache.TTL[[]SearchResult]
	group   singleflight.Group
	log     *logger.Logger
}

// New creates a Client. Caches live in cacheStore.
func New(fetcher httpclient.Fetcher, cacheStore cache.Store, cfg Config, log *logger.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = constants.StoreAPIBase
	}
	if cfg.NamesTTL <= 0 {
		cfg.NamesTTL = constants.NamesCacheTTL
	}
	if cfg.SearchTTL <= 0 {
		cfg.SearchTTL = constants.SearchCacheTTL
	}
	return &Client{
		http:    fetcher,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		names:   cache.NewTTL[string](cacheStore, NamesNamespace, cfg.NamesTTL),
		search:  cache.NewTTL[[]SearchResult](cacheStore, SearchNamespace, cfg.SearchTTL),
		log:     log,
	}
}

// StoreURL is the public store page of appid.
func StoreURL(appid string) string {
	return fmt.Sprintf(constants.StoreAppURL, appid)
}

type appDetailsEntry struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

// AppDetails fetches the appdetails data of appid. lang defaults to brazilian.
func (c *Client) AppDetails(ctx context.Context, appid, lang string) (*AppData, error) {
	if !model.IsAppID(appid) {
		return nil, fmt.Errorf("invalid appid %q", appid)
	}
	if lang == "" {
		lang = defaultLanguage
	}

	query := url.Values{}
	query.Set("appids", appid)
	query.Set("l", lang)
	query.Set("cc", defaultCountry)

	var resp map[string]appDetailsEntry
	if err := c.http.GetJSON(ctx, c.baseURL+"/appdetails", query, &resp); err != nil {
		return nil, fmt.Errorf("fetching appdetails for %s: %w", appid, err)
	}

	entry, ok := resp[appid]
	if !ok || !entry.Success || len(entry.Data) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrAppNotFound, appid)
	}

	var data AppData
	if err := json.Unmarshal(entry.Data, &data); err != nil {
		return nil, fmt.Errorf("decoding appdetails for %s: %w", appid, err)
	}
	return &data, nil
}

// FallbackName is used when an app name cannot be resolved.
func FallbackName(appid string) string {
	return "AppID " + appid
}

// AppName resolves the display name of appid. The bool reports whether the
// name came from the cache. Failures yield FallbackName, which is not cached.
func (c *Client) AppName(ctx context.Context, appid string) (string, bool) {
	if name, ok := c.names.Get(ctx, appid); ok && name != "" {
		return name, true
	}

	v, _, _ := c.group.Do(appid, func() (any, error) {
		reqCtx, cancel := context.WithTimeout(ctx, constants.AppNameTimeout)
		defer cancel()

		data, err := c.AppDetails(reqCtx, appid, "english")
		if err != nil || strings.TrimSpace(data.Name) == "" {
			if err != nil {
				c.log.Debug("App name lookup failed", "appid", appid, "error", err)
			}
			return "", nil
		}

		name := utils.TruncateName(strings.TrimSpace(data.Name), constants.MaxNameLength)
		if err := c.names.Set(ctx, appid, name); err != nil {
			c.log.Warn("Failed to cache app name", "appid", appid, "error", err)
		}
		return name, nil
	})

	name, _ := v.(string)
	if name == "" {
		return FallbackName(appid), false
	}
	return name, false
}

// ClearNames empties the app name cache.
func (c *Client) ClearNames(ctx context.Context) error {
	return c.names.Clear(ctx)
}

// NamesCached returns the cached name of appid without any network call.
func (c *Client) NamesCached(ctx context.Context, appid string) (string, bool) {
	return c.names.Get(ctx, appid)
}

type searchResponse struct {
	Total   int          `json:"total"`
	Items   []searchItem `json:"items"`
	Results []searchItem `json:"results"`
}

// Search queries storesearch for term. Results are cached; when the Store
// cannot be reached an expired cache entry is served instead.
func (c *Client) Search(ctx context.Context, term string, limit int) ([]SearchResult, error) {
	term = strings.TrimSpace(term)
	if len([]rune(term)) < minQueryLength {
		return nil, ErrQueryTooShort
	}
	if limit <= 0 {
		limit = constants.StoreSearchMaxResults
	}

	key := strings.ToLower(term)
	if cached, ok := c.search.Get(ctx, key); ok {
		c.log.Debug("Search served from cache", "term", term, "results", len(cached))
		return cached, nil
	}

	results, err := c.searchRemote(ctx, term, limit)
	if err != nil {
		if stale, storedAt, ok := c.search.GetStale(ctx, key); ok {
			c.log.Warn("Search failed, serving stale cache", "term", term, "stored_at", storedAt, "error", err)
			return stale, nil
		}
		return nil, err
	}

	if err := c.search.Set(ctx, key, results); err != nil {
		c.log.Warn("Failed to cache search", "term", term, "error", err)
	}
	c.log.Info("Store search", "term", term, "results", len(results))
	return results, nil
}

func (c *Client) searchRemote(ctx context.Context, term string, limit int) ([]SearchResult, error) {
	query := url.Values{}
	query.Set("term", term)
	query.Set("l", defaultLanguage)
	query.Set("cc", defaultCountry)
	query.Set("max_results", fmt.Sprint(limit))

	var resp searchResponse
	if err := c.http.GetJSON(ctx, c.baseURL+"/storesearch", query, &resp); err != nil {
		return nil, fmt.Errorf("searching store: %w", err)
	}

	items := resp.Items
	if len(items) == 0 {
		items = resp.Results
	}
	if len(items) > limit {
		items = items[:limit]
	}

	results := make([]SearchResult, 0, len(items))
	for _, item := range items {
		if r, ok := projectSearchItem(item); ok {
			results = append(results, r)
		}
	}
	return results, nil
}

func projectSearchItem(item searchItem) (SearchResult, bool) {
	id := item.ID.String()
	name := strings.TrimSpace(item.Name)
	if !model.IsAppID(id) || id == "0" || name == "" {
		return SearchResult{}, false
	}

	r := SearchResult{
		ID:                 id,
		AppID:              id,
		Name:               name,
		Platforms:          item.Platforms,
		PlatformsFormatted: item.Platforms.String(),
		ReleaseDate:        ReleaseDate{Date: "Não informada"},
		ShortDescription:   item.ShortDescription,
		HeaderImage:        item.SmallCapsuleImage,
		TinyImage:          item.TinyImage,
		Type:               item.Type,
	}
	if r.HeaderImage == "" {
		r.HeaderImage = item.TinyImage
	}
	if r.Type == "" {
		r.Type = "game"
	}
	if item.ReleaseDate != nil {
		r.ReleaseDate = *item.ReleaseDate
	}
	if item.Metacritic != nil {
		r.MetacriticScore = item.Metacritic.Score
	} else if item.Metascore != "" {
		fmt.Sscan(item.Metascore, &r.MetacriticScore)
	}

	r.Price = SearchPrice{Currency: "BRL"}
	if item.Price != nil {
		r.Price.Final = item.Price.Final
		r.Price.Original = item.Price.Initial
		r.Price.DiscountPercent = item.Price.DiscountPercent
		if item.Price.Currency != "" {
			r.Price.Currency = item.Price.Currency
		}
	}
	if r.Price.Original == 0 {
		r.Price.Original = r.Price.Final
	}
	r.Price.Formatted = utils.FormatBRL(r.Price.Final)
	r.IsFree = r.Price.Final == 0
	return r, true
}

// ClearSearch empties the search cache.
func (c *Client) ClearSearch(ctx context.Context) error {
	return c.search.Clear(ctx)
}

// GameDetails returns the detail projection of appid.
func (c *Client) GameDetails(ctx context.Context, appid string) (*GameDetails, error) {
	data, err := c.AppDetails(ctx, appid, defaultLanguage)
	if err != nil {
		return nil, err
	}

	d := &GameDetails{
		AppID:               appid,
		Name:                data.Name,
		Type:                data.Type,
		DetailedDescription: data.DetailedDescription,
		AboutTheGame:        data.AboutTheGame,
		ShortDescription:    data.ShortDescription,
		SupportedLanguages:  data.SupportedLanguages,
		Categories:          descriptions(data.Categories),
		Genres:              descriptions(data.Genres),
		Recommendations:     data.Recommendations.Total,
		Achievements:        data.Achievements.Total,
		ReleaseDate:         data.ReleaseDate,
		Developers:          nonNil(data.Developers),
		Publishers:          nonNil(data.Publishers),
		Metacritic:          data.Metacritic,
		Website:             data.Website,
		HeaderImage:         data.HeaderImage,
		Background:          data.Background,
		PCRequirements:      data.PCRequirements,
		MacRequirements:     data.MacRequirements,
		LinuxRequirements:   data.LinuxRequirements,
		Screenshots:         []string{},
		Movies:              []string{},
		StoreURL:            StoreURL(appid),
	}
	for _, s := range data.Screenshots {
		if s.PathFull != "" {
			d.Screenshots = append(d.Screenshots, s.PathFull)
		}
	}
	for _, m := range data.Movies {
		if src := m.Webm["max"]; src != "" {
			d.Movies = append(d.Movies, src)
		}
	}
	return d, nil
}

func descriptions(items []described) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it.Description != "" {
			out = append(out, it.Description)
		}
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Ping reports whether the Store search endpoint answers with results.
func (c *Client) Ping(ctx context.Context) bool {
	results, err := c.searchRemote(ctx, "test", 1)
	return err == nil && len(results) > 0
}
