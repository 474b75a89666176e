package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	HistoryCfg  HistoryConfig
	SourcesCfg  SourcesConfig
	DownloadCfg DownloadConfig
	CleanupCfg  CleanupConfig
	LibraryCfg  LibraryConfig
	HTTPTimeout int    `env:"HTTP_TIMEOUT" env-default:"30"` // seconds
	HTTPRetries int    `env:"HTTP_RETRIES" env-default:"3"`
	Debug       string `env:"DEBUG" env-default:"WARN"`
	Flags       Flags
}

// UserConfig is the per-user slice of the configuration handed to each phase.
// The engine never reads ambient state, so several users can run in one
// process.
type UserConfig struct {
	Name    string
	Sources SourcesConfig
}

type LibraryConfig struct {
	URL         string `env:"LIBRARY_URL" env-default:"http://127.0.0.1:4533"`
	User        string `env:"LIBRARY_USER"`
	Password    string `env:"LIBRARY_PASSWORD"`
	Version     string `env:"SUBSONIC_VERSION" env-default:"1.16.1"`
	ClientID    string `env:"CLIENT_ID" env-default:"trackdrop"`
	LibraryDir  string `env:"MUSIC_LIBRARY_PATH" env-default:"/music/"`
	PlaylistFmt string `env:"PLAYLIST_NAME" env-default:"TrackDrop: %s"` // %s is the source name
	ScanWait    int    `env:"SCAN_WAIT" env-default:"2"` // minutes to let the scan settle
	PageSize    int    `env:"LIBRARY_PAGE_SIZE" env-default:"5000"`
}

type HistoryConfig struct {
	StateDir      string `env:"STATE_DIR" env-default:"/data/history/"`
	RetentionDays int    `env:"HISTORY_RETENTION_DAYS" env-default:"180"`
}

type SourcesConfig struct {
	User         string `env:"TRACKDROP_USER" env-default:"admin"`
	Listenbrainz Listenbrainz
	Lastfm       Lastfm
	LLM          LLM
	Links        []string `env:"SHARED_LINKS"` // ad-hoc shared links to ingest
}

type Listenbrainz struct {
	Enabled       bool   `env:"LISTENBRAINZ_ENABLED" env-default:"true"`
	User          string `env:"LISTENBRAINZ_USER"`
	Token         string `env:"LISTENBRAINZ_TOKEN"`
	URL           string `env:"LISTENBRAINZ_URL" env-default:"https://api.listenbrainz.org"`
	FreshReleases bool   `env:"FRESH_RELEASES_ENABLED" env-default:"false"`
	FreshDays     int    `env:"FRESH_RELEASES_DAYS" env-default:"7"`
}

type Lastfm struct {
	Enabled    bool   `env:"LASTFM_ENABLED" env-default:"false"`
	User       string `env:"LASTFM_USER"`
	APIKey     string `env:"LASTFM_API_KEY"`
	APISecret  string `env:"LASTFM_API_SECRET"`
	SessionKey string `env:"LASTFM_SESSION_KEY"`
	URL        string `env:"LASTFM_URL" env-default:"https://ws.audioscrobbler.com/2.0"`
}

type LLM struct {
	Enabled bool   `env:"LLM_ENABLED" env-default:"false"`
	URL     string `env:"LLM_URL" env-default:"https://openrouter.ai/api/v1/chat/completions"`
	APIKey  string `env:"LLM_API_KEY"`
	Model   string `env:"LLM_MODEL" env-default:"deepseek/deepseek-chat"`
	Count   int    `env:"LLM_RECOMMENDATIONS" env-default:"25"`
	History int    `env:"LLM_SCROBBLE_WINDOW" env-default:"50"` // recent listens fed to the prompt
}

type DownloadConfig struct {
	Backend       string  `env:"DOWNLOAD_BACKEND" env-default:"streamrip"` // streamrip or deemix
	Quality       string  `env:"QUALITY_PROFILE" env-default:"flac"`
	DownloadDir   string  `env:"DOWNLOAD_DIR" env-default:"/data/downloads/"`
	MaxConcurrent int     `env:"MAX_CONCURRENT_DOWNLOADS" env-default:"4"`
	Attempts      int     `env:"DOWNLOAD_ATTEMPTS" env-default:"3"`
	RateLimit     float64 `env:"BACKEND_RATE_LIMIT" env-default:"1"` // downloads per second per backend
	CooldownSec   int     `env:"QUOTA_COOLDOWN" env-default:"300"`
	StreamripBin  string  `env:"STREAMRIP_PATH" env-default:"rip"`
	DeemixBin     string  `env:"DEEMIX_PATH" env-default:"deemix"`
}

type CleanupConfig struct {
	Enabled        bool   `env:"CLEANUP_ENABLED" env-default:"true"`
	StrictFeedback bool   `env:"STRICT_FEEDBACK" env-default:"false"` // block delete/strip on feedback failure
	TaggerBin      string `env:"KID3_PATH" env-default:"kid3-cli"`
}

func ReadEnv(path string) Config {
	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			log.Fatalf("Failed to load config: %s", err)
		}
	}
	cfg.VerifyDir()
	return cfg
}

func (cfg *Config) VerifyDir() {
	cfg.DownloadCfg.DownloadDir = fixDir(cfg.DownloadCfg.DownloadDir)
	cfg.LibraryCfg.LibraryDir = fixDir(cfg.LibraryCfg.LibraryDir)
	cfg.HistoryCfg.StateDir = fixDir(cfg.HistoryCfg.StateDir)
}

// User builds the per-user view handed to run phases.
func (cfg *Config) User() UserConfig {
	name := cfg.Flags.User
	if name == "" {
		name = cfg.SourcesCfg.User
	}
	return UserConfig{Name: name, Sources: cfg.SourcesCfg}
}

func (cfg *Config) Validate() error {
	switch cfg.DownloadCfg.Backend {
	case "streamrip", "deemix":
	default:
		return fmt.Errorf("unsupported download backend %q (use streamrip or deemix)", cfg.DownloadCfg.Backend)
	}
	if cfg.SourcesCfg.Listenbrainz.Enabled && cfg.SourcesCfg.Listenbrainz.User == "" {
		return fmt.Errorf("LISTENBRAINZ_USER is required when ListenBrainz is enabled")
	}
	if cfg.SourcesCfg.Lastfm.Enabled && (cfg.SourcesCfg.Lastfm.User == "" || cfg.SourcesCfg.Lastfm.APIKey == "") {
		return fmt.Errorf("LASTFM_USER and LASTFM_API_KEY are required when Last.fm is enabled")
	}
	if cfg.SourcesCfg.LLM.Enabled && cfg.SourcesCfg.LLM.APIKey == "" {
		return fmt.Errorf("LLM_API_KEY is required when LLM recommendations are enabled")
	}
	return nil
}

func fixDir(dir string) string {
	if !strings.HasSuffix(dir, "/") && dir != "" {
		return dir + "/"
	}
	return dir
}
