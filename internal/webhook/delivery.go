package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/gdbrns/go-whatsapp-send-gateway/pkg/log"
)

const (
	defaultWorkers       = 2
	defaultRetryLimit    = 3
	defaultQueueSize     = 256
	defaultRetryInterval = 2 * time.Second
)

type Options struct {
	URL        string
	Secret     string
	Workers    int
	RetryLimit int
	QueueSize  int
	// RetryInterval is the first retry delay; later ones grow exponentially.
	RetryInterval time.Duration
	// AllowPrivate permits plain HTTP and private or loopback hosts.
	AllowPrivate bool
	HTTPClient   *http.Client
}

// Engine posts lifecycle and delivery events to a single configured
// endpoint. A zero URL yields a disabled engine whose Dispatch is a no-op.
type Engine struct {
	url           string
	secret        string
	httpClient    *http.Client
	retryLimit    int
	retryInterval time.Duration
	enabled       bool

	mu     sync.RWMutex
	closed bool
	queue  chan WebhookEvent

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	delivered atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

func NewEngine(opts Options) (*Engine, error) {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		url:           strings.TrimSpace(opts.URL),
		secret:        opts.Secret,
		httpClient:    opts.HTTPClient,
		retryLimit:    opts.RetryLimit,
		retryInterval: opts.RetryInterval,
		ctx:           ctx,
		cancel:        cancel,
	}
	if e.url == "" {
		return e, nil
	}
	if err := validateURL(e.url, opts.AllowPrivate); err != nil {
		cancel()
		return nil, fmt.Errorf("invalid WEBHOOK_URL: %w", err)
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	if e.retryLimit <= 0 {
		e.retryLimit = defaultRetryLimit
	}
	if e.retryInterval <= 0 {
		e.retryInterval = defaultRetryInterval
	}
	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if e.httpClient == nil {
		e.httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	e.enabled = true
	e.queue = make(chan WebhookEvent, queueSize)
	for i := 0; i < workers; i++ {
		e.wg.Add(1)
		go e.worker()
	}
	return e, nil
}

func (e *Engine) Enabled() bool {
	return e != nil && e.enabled
}

// Dispatch queues an event without blocking. Events are dropped when the
// queue is full or the engine is shutting down.
func (e *Engine) Dispatch(eventType EventType, data map[string]interface{}) {
	if !e.Enabled() {
		return
	}
	event := WebhookEvent{
		ID:        uuid.NewString(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		e.drop(event, "engine shut down")
		return
	}
	select {
	case e.queue <- event:
	default:
		e.drop(event, "queue full")
	}
}

func (e *Engine) drop(event WebhookEvent, why string) {
	e.dropped.Add(1)
	log.Print(nil).WithField("event", event.EventType).WithField("event_id", event.ID).
		Warn("Webhook delivery " + string(DeliveryDropped) + ": " + why)
}

func (e *Engine) Stats() Stats {
	if !e.Enabled() {
		return Stats{}
	}
	return Stats{
		Enabled:   true,
		Delivered: e.delivered.Load(),
		Failed:    e.failed.Load(),
		Dropped:   e.dropped.Load(),
		Queued:    len(e.queue),
	}
}

// Shutdown stops accepting events and drains the queue. When ctx expires
// first, in-flight retries are aborted.
func (e *Engine) Shutdown(ctx context.Context) error {
	if !e.Enabled() {
		return nil
	}
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.queue)
	}
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		e.cancel()
		return nil
	case <-ctx.Done():
		e.cancel()
		<-done
		return ctx.Err()
	}
}

func (e *Engine) worker() {
	defer e.wg.Done()
	for event := range e.queue {
		e.deliver(event)
	}
}

func (e *Engine) deliver(event WebhookEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Print(nil).WithError(err).Error("Failed to marshal webhook event")
		e.failed.Add(1)
		return
	}
	signature := generateSignature(payload, e.secret)

	attempts := 0
	operation := func() error {
		attempts++
		return e.post(payload, signature, event.EventType)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.retryInterval
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(e.retryLimit-1)), e.ctx)

	entry := log.Print(nil).WithField("event", event.EventType).WithField("event_id", event.ID)
	if err := backoff.Retry(operation, policy); err != nil {
		e.failed.Add(1)
		entry.WithField("attempts", attempts).WithError(err).Warn("Webhook delivery " + string(DeliveryFailed))
		return
	}
	e.delivered.Add(1)
	entry.WithField("attempts", attempts).Debug("Webhook delivery " + string(DeliverySuccess))
}

func (e *Engine) post(payload []byte, signature string, eventType EventType) error {
	req, err := http.NewRequestWithContext(e.ctx, http.MethodPost, e.url, bytes.NewReader(payload))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", signature)
	req.Header.Set("X-Hub-Signature-256", signature)
	req.Header.Set("X-Webhook-Event", string(eventType))
	req.Header.Set("User-Agent", "WhatsApp-Send-Gateway/1.0")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return err
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	err = fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	// client errors other than throttling will not improve on retry
	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		return backoff.Permanent(err)
	}
	return err
}

func generateSignature(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func validateURL(rawURL string, allowPrivate bool) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	if u.Host == "" {
		return errors.New("URL has no host")
	}
	if allowPrivate {
		if u.Scheme != "https" && u.Scheme != "http" {
			return fmt.Errorf("unsupported scheme %q", u.Scheme)
		}
		return nil
	}

	if u.Scheme != "https" {
		return errors.New("only HTTPS URLs are allowed")
	}
	host := strings.ToLower(u.Hostname())
	if host == "localhost" {
		return errors.New("private/local network URLs are not allowed")
	}
	if ip := net.ParseIP(host); ip != nil {
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() || ip.IsLinkLocalUnicast() {
			return errors.New("private/local network URLs are not allowed")
		}
	}
	return nil
}
