// Package config holds the process-wide, read-only configuration
// singleton resolved once at startup from CLI flags and environment
// variables, per the "global mutable state" design note: app identity
// and ledger/storage addresses vary by ENVIRONMENT, everything else is
// just the CLI knobs.
package config

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Config is the fully-resolved set of knobs every component reads via
// Get(). It is built once, at process startup, and never mutated after.
type Config struct {
	ConcurrentCrawlers int
	ConcurrentTabs     int
	URLRetries         int
	WithUpload         bool
	MinWaitAfterNav    time.Duration
	MaxWaitAfterNav    time.Duration
	BrowserTimeout     time.Duration
	WriterDirectory    string
	FetchingFrequency  time.Duration

	InDocker bool

	AppName         string
	AppVersion      string
	ContractAddress string

	LedgerBaseURL  string
	StorageBaseURL string
	DedupRedisAddr string
	ProxyBinary    string

	WalletPath string
}

const (
	prodAppName         = "archivetheweb"
	prodAppVersion      = "0.0.1"
	prodContractAddress = "dD1DuvgM_Vigtnv4vl2H1IYn9CgLvYuhbEWPOL-_4Mw"

	devAppName         = "atw"
	devAppVersion      = "0.0.1_dev"
	devContractAddress = "-27RfG2DJAI3ddQlrXkN1rmS5fBSC4eG8Zfhz8skYTU"
)

var (
	current *Config
	once    sync.Once
)

// Options mirrors the CLI flag set; New() fills the ENVIRONMENT-derived
// fields on top of it.
type Options struct {
	ConcurrentCrawlers int
	ConcurrentTabs     int
	URLRetries         int
	WithUpload         bool
	MinWaitAfterNav    int
	MaxWaitAfterNav    int
	BrowserTimeout     int
	WriterDirectory    string
	FetchingFrequency  int
	LedgerBaseURL      string
	StorageBaseURL     string
	DedupRedisAddr     string
	ProxyBinary        string
	WalletPath         string
}

// New resolves and installs the process-wide config from the given CLI
// options. Only the first call takes effect; later calls are ignored so
// that tests and the real entrypoint can both call New() defensively.
func New(o Options) *Config {
	once.Do(func() {
		writerDir := o.WriterDirectory
		if writerDir == "" {
			writerDir = filepath.Join(os.TempDir(), "archiver-"+uuid.NewString()[:11])
		}

		c := &Config{
			ConcurrentCrawlers: o.ConcurrentCrawlers,
			ConcurrentTabs:     o.ConcurrentTabs,
			URLRetries:         o.URLRetries,
			WithUpload:         o.WithUpload,
			MinWaitAfterNav:    time.Duration(o.MinWaitAfterNav) * time.Second,
			MaxWaitAfterNav:    time.Duration(o.MaxWaitAfterNav) * time.Second,
			BrowserTimeout:     time.Duration(o.BrowserTimeout) * time.Second,
			WriterDirectory:    writerDir,
			FetchingFrequency:  time.Duration(o.FetchingFrequency) * time.Second,
			InDocker:           os.Getenv("IN_DOCKER") != "",
			LedgerBaseURL:      o.LedgerBaseURL,
			StorageBaseURL:     o.StorageBaseURL,
			DedupRedisAddr:     o.DedupRedisAddr,
			ProxyBinary:        o.ProxyBinary,
			WalletPath:         o.WalletPath,
		}

		if os.Getenv("ENVIRONMENT") == "production" {
			c.AppName = prodAppName
			c.AppVersion = prodAppVersion
			c.ContractAddress = prodContractAddress
		} else {
			c.AppName = devAppName
			c.AppVersion = devAppVersion
			c.ContractAddress = devContractAddress
		}

		current = c
	})

	return current
}

// Get returns the installed configuration. Panics if New has not been
// called yet — every entrypoint (cmd/atwworker and tests that exercise
// more than one package) must call New first.
func Get() *Config {
	if current == nil {
		panic("config: Get called before New")
	}
	return current
}

// reset is test-only: it clears the singleton so a _test.go file in this
// package can exercise New's ENVIRONMENT branches independently.
func reset() {
	once = sync.Once{}
	current = nil
}
