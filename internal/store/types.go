package store

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Price is the price_overview block of appdetails. Amounts are in cents.
type Price struct {
	Currency         string `json:"currency"`
	Initial          int    `json:"initial"`
	Final            int    `json:"final"`
	DiscountPercent  int    `json:"discount_percent"`
	InitialFormatted string `json:"initial_formatted"`
	FinalFormatted   string `json:"final_formatted"`
}

// ReleaseDate is the release_date block shared by appdetails and search.
type ReleaseDate struct {
	ComingSoon bool   `json:"coming_soon"`
	Date       string `json:"date"`
}

// Platforms lists supported operating systems.
type Platforms struct {
	Windows bool `json:"windows"`
	Mac     bool `json:"mac"`
	Linux   bool `json:"linux"`
}

// String renders the platforms as "Windows • macOS • Linux".
func (p Platforms) String() string {
	var names []string
	if p.Windows {
		names = append(names, "Windows")
	}
	if p.Mac {
		names = append(names, "macOS")
	}
	if p.Linux {
		names = append(names, "Linux")
	}
	if len(names) == 0 {
		return "Não especificado"
	}
	return strings.Join(names, " • ")
}

type described struct {
	Description string `json:"description"`
}

type screenshot struct {
	PathThumbnail string `json:"path_thumbnail"`
	PathFull      string `json:"path_full"`
}

type movie struct {
	Name      string            `json:"name"`
	Thumbnail string            `json:"thumbnail"`
	Webm      map[string]string `json:"webm"`
	MP4       map[string]string `json:"mp4"`
}

type total struct {
	Total int `json:"total"`
}

// Metacritic is the review score block.
type Metacritic struct {
	Score int    `json:"score"`
	URL   string `json:"url,omitempty"`
}

// FullGame links a DLC to its base game.
type FullGame struct {
	AppID string `json:"appid"`
	Name  string `json:"name"`
}

// AppData is the subset of the appdetails "data" object the loader uses.
type AppData struct {
	Type                string          `json:"type"`
	Name                string          `json:"name"`
	SteamAppID          int             `json:"steam_appid"`
	IsFree              bool            `json:"is_free"`
	ShortDescription    string          `json:"short_description"`
	DetailedDescription string          `json:"detailed_description"`
	AboutTheGame        string          `json:"about_the_game"`
	SupportedLanguages  string          `json:"supported_languages"`
	HeaderImage         string          `json:"header_image"`
	CapsuleImage        string          `json:"capsule_image"`
	Background          string          `json:"background"`
	Website             string          `json:"website"`
	Developers          []string        `json:"developers"`
	Publishers          []string        `json:"publishers"`
	PriceOverview       *Price          `json:"price_overview"`
	Platforms           Platforms       `json:"platforms"`
	ReleaseDate         ReleaseDate     `json:"release_date"`
	Categories          []described     `json:"categories"`
	Genres              []described     `json:"genres"`
	Screenshots         []screenshot    `json:"screenshots"`
	Movies              []movie         `json:"movies"`
	Recommendations     total           `json:"recommendations"`
	Achievements        total           `json:"achievements"`
	Metacritic          Metacritic      `json:"metacritic"`
	PCRequirements      json.RawMessage `json:"pc_requirements"`
	MacRequirements     json.RawMessage `json:"mac_requirements"`
	LinuxRequirements   json.RawMessage `json:"linux_requirements"`
	DLC                 []json.Number   `json:"dlc"`
	FullGame            *FullGame       `json:"fullgame"`
}

// DLCIDs returns the numeric DLC ids of the app, deduplicated, in order.
func (a *AppData) DLCIDs() []string {
	seen := make(map[string]struct{}, len(a.DLC))
	ids := make([]string, 0, len(a.DLC))
	for _, n := range a.DLC {
		v, err := strconv.ParseInt(n.String(), 10, 64)
		if err != nil || v <= 0 {
			continue
		}
		id := strconv.FormatInt(v, 10)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// SearchPrice is the price block of a search result.
type SearchPrice struct {
	Final           int    `json:"final"`
	Original        int    `json:"original"`
	DiscountPercent int    `json:"discount_percent"`
	Formatted       string `json:"formatted"`
	Currency        string `json:"currency"`
}

// SearchResult is one projected storesearch item.
type SearchResult struct {
	ID                 string      `json:"id"`
	AppID              string      `json:"appid"`
	Name               string      `json:"name"`
	Price              SearchPrice `json:"price"`
	Platforms          Platforms   `json:"platforms"`
	PlatformsFormatted string      `json:"platforms_formatted"`
	ReleaseDate        ReleaseDate `json:"release_date"`
	MetacriticScore    int         `json:"metacritic_score"`
	ShortDescription   string      `json:"short_description"`
	HeaderImage        string      `json:"header_image"`
	TinyImage          string      `json:"tiny_image"`
	Type               string      `json:"type"`
	IsFree             bool        `json:"is_free"`
}

// searchItem is the raw storesearch item.
type searchItem struct {
	ID    json.Number `json:"id"`
	Name  string      `json:"name"`
	Type  string      `json:"type"`
	Price *struct {
		Currency        string `json:"currency"`
		Initial         int    `json:"initial"`
		Final           int    `json:"final"`
		DiscountPercent int    `json:"discount_percent"`
	} `json:"price"`
	Platforms         Platforms    `json:"platforms"`
	ReleaseDate       *ReleaseDate `json:"release_date"`
	Metascore         string       `json:"metascore"`
	Metacritic        *Metacritic  `json:"metacritic"`
	TinyImage         string       `json:"tiny_image"`
	SmallCapsuleImage string       `json:"small_capsule_image"`
	ShortDescription  string       `json:"short_description"`
}

// GameDetails is the projection served by the details endpoint.
type GameDetails struct {
	AppID               string          `json:"appid"`
	Name                string          `json:"name"`
	Type                string          `json:"type"`
	DetailedDescription string          `json:"detailed_description"`
	AboutTheGame        string          `json:"about_the_game"`
	ShortDescription    string          `json:"short_description"`
	SupportedLanguages  string          `json:"supported_languages"`
	Categories          []string        `json:"categories"`
	Genres              []string        `json:"genres"`
	Recommendations     int             `json:"recommendations"`
	Achievements        int             `json:"achievements"`
	ReleaseDate         ReleaseDate     `json:"release_date"`
	Developers          []string        `json:"developers"`
	Publishers          []string        `json:"publishers"`
	Metacritic          Metacritic      `json:"metacritic"`
	Website             string          `json:"website"`
	HeaderImage         string          `json:"header_image"`
	Background          string          `json:"background"`
	PCRequirements      json.RawMessage `json:"pc_requirements,omitempty"`
	MacRequirements     json.RawMessage `json:"mac_requirements,omitempty"`
	LinuxRequirements   json.RawMessage `json:"linux_requirements,omitempty"`
	Screenshots         []string        `json:"screenshots"`
	Movies              []string        `json:"movies"`
	StoreURL            string          `json:"store_url"`
}
