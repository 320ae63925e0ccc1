package download

import (
	"context"
	"errors"
	"net"
	"time"
)

// SystemStatus summarizes the health of every download source.
type SystemStatus struct {
	Available       bool              `json:"download_system_available"`
	GitAvailable    bool              `json:"git_available"`
	GitEnabled      bool              `json:"git_enabled"`
	Mirrors         map[string]string `json:"external_apis_status"`
	MirrorCount     int               `json:"external_apis_count"`
	RepositoryCount int               `json:"repositories_count"`
	BudgetSeconds   float64           `json:"budget_seconds"`
	Stages          []string          `json:"stages"`
	CacheEnabled    bool              `json:"cache_enabled"`
	Status          string            `json:"status"`
	CheckedAt       time.Time         `json:"last_updated"`
}

// SystemStatus probes every mirror and git. The result is cached briefly.
func (d *Downloader) SystemStatus(ctx context.Context) SystemStatus {
	if cached, ok := d.status.Get(ctx, statusKey); ok {
		return cached
	}

	stages := make([]string, len(d.strategies))
	for i, s := range d.strategies {
		stages[i] = s.Name()
	}

	st := SystemStatus{
		Available:       true,
		GitAvailable:    GitAvailable(ctx, d.git),
		GitEnabled:      d.gitEnabled,
		Mirrors:         d.api.MirrorStatus(ctx),
		MirrorCount:     len(d.api.Mirrors()),
		RepositoryCount: len(d.repos),
		BudgetSeconds:   d.budget.Seconds(),
		Stages:          stages,
		CacheEnabled:    true,
		Status:          "operational",
		CheckedAt:       time.Now(),
	}
	if err := d.status.Set(ctx, statusKey, st); err != nil {
		d.log.Warn("Failed to cache download status", "error", err)
	}
	return st
}

// ClearCache empties the download, mirror check and status caches.
func (d *Downloader) ClearCache(ctx context.Context) error {
	return errors.Join(
		d.last.Clear(ctx),
		d.checks.Clear(ctx),
		d.status.Clear(ctx),
	)
}

// Available returns the names of the mirrors that serve appid.
func (d *Downloader) Available(ctx context.Context, appid string) []string {
	return mirrorNames(d.api.AvailableMirrors(ctx, appid))
}

// LastSource returns the download cache entry of appid.
func (d *Downloader) LastSource(ctx context.Context, appid string) (CacheEntry, bool) {
	return d.last.Get(ctx, appid)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
