// Package constants defines the Steam Store endpoints, download mirrors,
// manifest repositories, file names, user-agent strings, and default
// timeout/TTL values used throughout the loader.
package constants

import "time"

const (
	// StoreAPIBase is the base URL of the public Steam Store API.
	StoreAPIBase = "https://store.steampowered.com/api"
	// StoreAppURL is the public store page of an app; %s is the AppID.
	StoreAppURL = "https://store.steampowered.com/app/%s"
	// HeaderImageURL is the store header artwork of an app; %s is the AppID.
	HeaderImageURL = "https://cdn.cloudflare.steamstatic.com/steam/apps/%s/header.jpg"
)

// AppIDPlaceholder is replaced with the AppID in mirror URL templates.
const AppIDPlaceholder = "<appid>"

// Mirror is a named external archive source whose URL template contains AppIDPlaceholder.
type Mirror struct {
	Name string
	URL  string
}

// DefaultMirrors are the built-in archive mirrors in cascade order.
var DefaultMirrors = []Mirror{
	{Name: "Sadie", URL: "http://167.235.229.108/m/<appid>"},
	{Name: "Ryuu", URL: "http://167.235.229.108/<appid>"},
	{Name: "TwentyTwo Cloud", URL: "http://masss.pythonanywhere.com/storage?auth=IEOIJE54esfsipoE56GE4&appid=<appid>"},
	{Name: "Sushi", URL: "https://raw.githubusercontent.com/sushi-dev55/sushitools-games-repo/refs/heads/main/<appid>.zip"},
	{Name: "Servidor Principal", URL: "https://pub-5b6d3b7c03fd4ac1afb5bd3017850e20.r2.dev/<appid>.zip"},
	{Name: "GitHub Codeload", URL: "https://codeload.github.com/SteamAutoCracks/ManifestHub/zip/refs/heads/<appid>"},
}

// DefaultRepositories are the git repositories searched by the git stages.
var DefaultRepositories = []string{
	"https://github.com/SteamAutoCracks/ManifestHub",
	"https://github.com/OpenSteamLoader/GameFiles",
	"https://github.com/blumenal/luafastdb",
	"https://github.com/SPIN0ZAi/SB_manifest_DB",
}

// IndividualLuaURLs are raw-file templates tried for <appid>.lua.
var IndividualLuaURLs = []string{
	"https://raw.githubusercontent.com/SteamAutoCracks/ManifestHub/<appid>/<appid>.lua",
	"https://raw.githubusercontent.com/OpenSteamLoader/GameFiles/main/<appid>.lua",
	"https://raw.githubusercontent.com/SPIN0ZAi/SB_manifest_DB/<appid>/<appid>.lua",
	"https://raw.githubusercontent.com/blumenal/luafastdb/main/<appid>.lua",
}

// IndividualManifestURLs are raw-file templates tried for <appid>.manifest.
var IndividualManifestURLs = []string{
	"https://raw.githubusercontent.com/SteamAutoCracks/ManifestHub/<appid>/<appid>.manifest",
	"https://raw.githubusercontent.com/OpenSteamLoader/GameFiles/main/<appid>.manifest",
	"https://raw.githubusercontent.com/SPIN0ZAi/SB_manifest_DB/<appid>/<appid>.manifest",
}

const (
	// GenericFixURL is the generic bypass archive; %s is the AppID.
	GenericFixURL = "https://github.com/ShayneVi/Bypasses/releases/download/v1.0/%s.zip"
	// OnlineFix1URL is the first online-fix archive; %s is the AppID.
	OnlineFix1URL = "https://github.com/ShayneVi/OnlineFix1/releases/download/fixes/%s.zip"
	// OnlineFix2URL is the second online-fix archive; %s is the AppID.
	OnlineFix2URL = "https://github.com/ShayneVi/OnlineFix2/releases/download/fixes/%s.zip"
)

// Source names reported by the download cascade.
const (
	SourceNone           = "nenhuma"
	SourceError          = "erro"
	SourceIndividual     = "github_individual"
	SourceGitBranch      = "git_branch"
	SourceGitTraditional = "git_tradicional"
)

const (
	// UserAgent is sent by the downloader and fix fetcher.
	UserAgent = "SteamGameLoader/2.0"
	// StoreUserAgent is sent to the Steam Store API.
	StoreUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

const (
	// SteamtoolsLua is the plugin file holding addappid lines for DLC unlocks.
	SteamtoolsLua = "Steamtools.lua"
	// HidDLL is the DLL replaced inside the Steam root.
	HidDLL = "hid.dll"
	// HidDLLBase64File holds the base64-encoded hid.dll.
	HidDLLBase64File = "hid_dll_base64.txt"
	// WriteProbeFile is created and removed to probe directory writability.
	WriteProbeFile = "write_test.tmp"
	// BackupSuffix is appended to a replaced destination file.
	BackupSuffix = ".backup"
	// DLLBackupDir is the folder inside the Steam root holding hid.dll backups.
	DLLBackupDir = "otosteam_backups"
	// FixLogPattern is the per-AppID fix log written into the install directory; %s is the AppID.
	FixLogPattern = "luatools-fix-log-%s.log"
	// FixLogFilesMarker precedes the list of extracted files inside a fix log.
	FixLogFilesMarker = "Arquivos extraídos:"
	// FixesCatalogFile is the default local fix catalog.
	FixesCatalogFile = "fixes_list.json"
)

const (
	// MinPayloadSize is the smallest payload (bytes) accepted from any source.
	MinPayloadSize = 100
	// StatusTestAppID is probed by the mirror system-status check.
	StatusTestAppID = "570"
	// MaxNameLength is the longest app name kept before truncation.
	MaxNameLength = 100
	// DownloadChunkSize is the read size of streamed downloads.
	DownloadChunkSize = 8192
	// StoreSearchMaxResults is the default number of search results.
	StoreSearchMaxResults = 50
	// DLCWorkers bounds concurrent DLC detail lookups.
	DLCWorkers = 5
	// NameWorkers bounds concurrent app name lookups.
	NameWorkers = 5
	// MaxSizeScanFiles caps the file walk used to compute install sizes.
	MaxSizeScanFiles = 50000
)

const (
	// DefaultDownloadBudget is the shared deadline of one download cascade.
	DefaultDownloadBudget = 3 * time.Minute
	// DownloadTimeout bounds one mirror GET.
	DownloadTimeout = 25 * time.Second
	// GitTimeout bounds one git clone.
	GitTimeout = 45 * time.Second
	// APITimeout is the default Steam Store request timeout.
	APITimeout = 12 * time.Second
	// HeadTimeout bounds one mirror HEAD probe.
	HeadTimeout = 8 * time.Second
	// IndividualTimeout bounds one raw-file GET.
	IndividualTimeout = 15 * time.Second
	// FixHeadTimeout bounds one fix availability probe.
	FixHeadTimeout = 5 * time.Second
	// AppNameTimeout bounds an app name lookup.
	AppNameTimeout = 8 * time.Second
	// FixDownloadTimeout bounds one fix archive download.
	FixDownloadTimeout = 5 * time.Minute
	// DefaultMaxRetries is the default number of retries for idempotent requests.
	DefaultMaxRetries = 3
	// DefaultRetryBackoff is the base of the exponential retry backoff.
	DefaultRetryBackoff = 500 * time.Millisecond
	// StoreRateLimit is the minimum interval between Store API requests.
	StoreRateLimit = 500 * time.Millisecond
	// DefaultGracefulShutdownTimeout is the timeout for graceful HTTP server shutdown.
	DefaultGracefulShutdownTimeout = 5 * time.Second
	// DefaultSteamShutdownTimeout bounds the wait for Steam to exit.
	DefaultSteamShutdownTimeout = 10 * time.Second
	// SteamPollInterval is the process poll interval while waiting for Steam.
	SteamPollInterval = 500 * time.Millisecond
	// EventsPingInterval is the keepalive period of /api/events.
	EventsPingInterval = 30 * time.Second
	// EventsWriteTimeout bounds one websocket write.
	EventsWriteTimeout = 10 * time.Second
	// TrayRefreshInterval is the tray status refresh period.
	TrayRefreshInterval = 15 * time.Second
	// NotifyTimeout bounds one external notification.
	NotifyTimeout = 5 * time.Second
)

// Cache TTLs.
const (
	DownloadCacheTTL  = 24 * time.Hour
	APICheckCacheTTL  = 30 * time.Minute
	SearchCacheTTL    = time.Hour
	NamesCacheTTL     = 7 * 24 * time.Hour
	DLCCacheTTL       = time.Hour
	DLCGamesCacheTTL  = 10 * time.Minute
	InstalledCacheTTL = 5 * time.Minute
	SteamPathCacheTTL = 5 * time.Minute
	DLLStatusTTL      = 30 * time.Second
	HeaderCacheTTL    = 30 * time.Second
	SystemStatusTTL   = time.Minute
)
