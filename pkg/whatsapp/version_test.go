package whatsapp

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.mau.fi/whatsmeow/store"
)

func TestVersionNegotiatorThrottles(t *testing.T) {
	original := store.GetWAVersion()
	t.Cleanup(func() { store.SetWAVersion(original) })

	var calls atomic.Int32
	latest := store.WAVersionContainer{2, 3000, 1234567890}
	v := NewVersionNegotiator(func(context.Context) (store.WAVersionContainer, error) {
		calls.Add(1)
		return latest, nil
	}, time.Hour)

	status, refreshed, err := v.Refresh(context.Background(), false)
	if err != nil || !refreshed {
		t.Fatalf("first refresh: refreshed=%v err=%v", refreshed, err)
	}
	if status.CurrentVersion != "2.3000.1234567890" || !status.IsLatest {
		t.Fatalf("status = %+v", status)
	}

	if _, refreshed, _ := v.Refresh(context.Background(), false); refreshed {
		t.Fatal("refresh within the minimum interval was not throttled")
	}
	if _, refreshed, _ := v.Refresh(context.Background(), true); !refreshed {
		t.Fatal("forced refresh was throttled")
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("fetch calls = %d, want 2", got)
	}
}

func TestVersionNegotiatorKeepsVersionOnFailure(t *testing.T) {
	original := store.GetWAVersion()
	v := NewVersionNegotiator(func(context.Context) (store.WAVersionContainer, error) {
		return store.WAVersionContainer{}, errors.New("unreachable")
	}, 0)

	status, _, err := v.Refresh(context.Background(), false)
	if err == nil {
		t.Fatal("expected fetch error")
	}
	if store.GetWAVersion() != original {
		t.Fatal("version changed after a failed fetch")
	}
	if status.LastError != "unreachable" || status.LastRefreshed == nil {
		t.Fatalf("status = %+v", status)
	}
}
