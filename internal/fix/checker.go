package fix

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/Guliveer/steam-gameloader-go/internal/constants"
	"github.com/Guliveer/steam-gameloader-go/internal/httpclient"
	"github.com/Guliveer/steam-gameloader-go/internal/logger"
	"github.com/Guliveer/steam-gameloader-go/internal/store"
)

// NameResolver resolves the display name of an app.
type NameResolver interface {
	AppName(ctx context.Context, appid string) (string, bool)
}

// Remote is a fix published per AppID.
type Remote struct {
	Status    int    `json:"status"`
	Available bool   `json:"available"`
	URL       string `json:"url,omitempty"`
}

// Local is a catalog fix matched by name.
type Local struct {
	Available    bool   `json:"available"`
	Source       string `json:"source"`
	URL          string `json:"url,omitempty"`
	OriginalName string `json:"original_name,omitempty"`
	MatchedName  string `json:"matched_name,omitempty"`
}

// CheckResult lists the fixes available for an AppID.
type CheckResult struct {
	AppID      string `json:"appid"`
	GameName   string `json:"gameName"`
	GenericFix Remote `json:"genericFix"`
	OnlineFix  Remote `json:"onlineFix"`
	LocalFix   Local  `json:"localFix"`
	HasFix     bool   `json:"has_fix"`
}

// Checker probes the remote fix archives and the local catalog.
type Checker struct {
	http       httpclient.Fetcher
	names      NameResolver
	catalog    *Catalog
	genericURL string
	onlineURLs []string
	log        *logger.Logger
}

// NewChecker creates a Checker over the default fix URLs.
func NewChecker(fetcher httpclient.Fetcher, names NameResolver, catalog *Catalog, log *logger.Logger) *Checker {
	return &Checker{
		http:       fetcher,
		names:      names,
		catalog:    catalog,
		genericURL: constants.GenericFixURL,
		onlineURLs: []string{constants.OnlineFix1URL, constants.OnlineFix2URL},
		log:        log,
	}
}

// SetURLs replaces the fix URL templates; %s is the AppID.
func (c *Checker) SetURLs(generic string, online ...string) {
	c.genericURL = generic
	c.onlineURLs = online
}

// Catalog returns the local catalog.
func (c *Checker) Catalog() *Catalog { return c.catalog }

func (c *Checker) head(ctx context.Context, url string) int {
	resp, err := c.http.Head(ctx, url, constants.FixHeadTimeout)
	if err != nil {
		c.log.Debug("Fix probe failed", "url", url, "error", err)
		return 0
	}
	return resp.StatusCode
}

// GameName resolves the name used to match the catalog.
func (c *Checker) GameName(ctx context.Context, appid string) string {
	name, _ := c.names.AppName(ctx, appid)
	if name == "" || name == store.FallbackName(appid) {
		return "Jogo " + appid
	}
	return name
}

// Check probes the generic and online archives concurrently and falls back
// to the local catalog when neither exists.
func (c *Checker) Check(ctx context.Context, appid string) *CheckResult {
	res := &CheckResult{AppID: appid, LocalFix: Local{Source: "none"}}

	statuses := make([]int, 1+len(c.onlineURLs))
	urls := make([]string, len(statuses))
	urls[0] = fmt.Sprintf(c.genericURL, appid)
	for i, tmpl := range c.onlineURLs {
		urls[i+1] = fmt.Sprintf(tmpl, appid)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res.GameName = c.GameName(gctx, appid)
		return nil
	})
	for i, u := range urls {
		g.Go(func() error {
			statuses[i] = c.head(gctx, u)
			return nil
		})
	}
	_ = g.Wait()

	res.GenericFix.Status = statuses[0]
	if statuses[0] == http.StatusOK {
		res.GenericFix.Available = true
		res.GenericFix.URL = urls[0]
	}
	for i := 1; i < len(urls); i++ {
		if statuses[i] == http.StatusOK {
			res.OnlineFix = Remote{Status: statuses[i], Available: true, URL: urls[i]}
			break
		}
	}
	res.HasFix = res.GenericFix.Available || res.OnlineFix.Available

	if !res.HasFix && c.catalog != nil {
		if e, ok := c.catalog.Find(res.GameName); ok {
			res.LocalFix = Local{
				Available:    true,
				Source:       "json_local",
				URL:          e.URL,
				OriginalName: e.Name,
				MatchedName:  res.GameName,
			}
			res.HasFix = true
			c.log.Info("Local fix matched", "appid", appid, "game", res.GameName, "fix", e.Name)
		}
	}
	return res
}
