package whatsapp

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store"
	"golang.org/x/sync/singleflight"
)

const DefaultVersionRefreshInterval = 10 * time.Minute

var errNilVersion = errors.New("latest WhatsApp Web version is nil")

// VersionFetcher returns the latest WhatsApp Web version.
type VersionFetcher func(ctx context.Context) (store.WAVersionContainer, error)

// FetchLatestVersion asks web.whatsapp.com for the current client revision.
func FetchLatestVersion(ctx context.Context) (store.WAVersionContainer, error) {
	httpClient := &http.Client{Timeout: 15 * time.Second}
	latest, err := whatsmeow.GetLatestVersion(ctx, httpClient)
	if err != nil {
		return store.WAVersionContainer{}, err
	}
	if latest == nil {
		return store.WAVersionContainer{}, errNilVersion
	}
	return *latest, nil
}

type VersionStatus struct {
	CurrentVersion string     `json:"current_version"`
	IsLatest       bool       `json:"is_latest"`
	LastRefreshed  *time.Time `json:"last_refreshed,omitempty"`
	LastError      string     `json:"last_error,omitempty"`
}

// VersionNegotiator keeps the protocol version whatsmeow advertises in step
// with WhatsApp Web. A failed fetch keeps the version already in use.
type VersionNegotiator struct {
	fetch       VersionFetcher
	minInterval time.Duration
	group       singleflight.Group

	mu            sync.RWMutex
	lastRefreshed *time.Time
	lastError     string
	latest        *store.WAVersionContainer
}

func NewVersionNegotiator(fetch VersionFetcher, minInterval time.Duration) *VersionNegotiator {
	if fetch == nil {
		fetch = FetchLatestVersion
	}
	if minInterval < 0 {
		minInterval = DefaultVersionRefreshInterval
	}
	return &VersionNegotiator{
		fetch:       fetch,
		minInterval: minInterval,
	}
}

func (v *VersionNegotiator) Status() VersionStatus {
	v.mu.RLock()
	defer v.mu.RUnlock()

	current := store.GetWAVersion()
	var last *time.Time
	if v.lastRefreshed != nil {
		t := *v.lastRefreshed
		last = &t
	}
	return VersionStatus{
		CurrentVersion: FormatVersion(current),
		IsLatest:       v.latest != nil && *v.latest == current,
		LastRefreshed:  last,
		LastError:      v.lastError,
	}
}

// Refresh fetches and applies the latest version. Unless force is set, calls
// within the minimum interval of the previous attempt return the cached status
// and refreshed=false.
func (v *VersionNegotiator) Refresh(ctx context.Context, force bool) (VersionStatus, bool, error) {
	if !force && v.minInterval > 0 {
		v.mu.RLock()
		last := v.lastRefreshed
		v.mu.RUnlock()
		if last != nil && time.Since(*last) < v.minInterval {
			return v.Status(), false, nil
		}
	}

	_, err, _ := v.group.Do("refresh", func() (interface{}, error) {
		latest, err := v.fetch(ctx)
		now := time.Now()

		v.mu.Lock()
		defer v.mu.Unlock()
		v.lastRefreshed = &now
		if err != nil {
			v.lastError = err.Error()
			return nil, err
		}
		store.SetWAVersion(latest)
		v.latest = &latest
		v.lastError = ""
		return nil, nil
	})
	return v.Status(), true, err
}

func FormatVersion(v store.WAVersionContainer) string {
	return strconv.FormatUint(uint64(v[0]), 10) + "." +
		strconv.FormatUint(uint64(v[1]), 10) + "." +
		strconv.FormatUint(uint64(v[2]), 10)
}
