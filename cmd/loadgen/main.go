// Command loadgen drives synthetic traffic through the stack: it registers
// throwaway accounts, logs them in, and exercises the order API with the
// issued tokens. Useful for watching the active-session gauge and for
// shaking out store contention.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type stats struct {
	registrations uint64
	logins        uint64
	loginFailures uint64
	ordersCreated uint64
	ordersDeleted uint64
	errors        uint64
}

type worker struct {
	id      int
	authURL string
	crmURL  string
	client  *http.Client
	log     *logrus.Entry
	stats   *stats
}

func main() {
	var (
		authURL  = flag.String("auth-url", "http://localhost:5000", "base URL of the token authority")
		crmURL   = flag.String("crm-url", "http://localhost:5001", "base URL of the CRM service")
		workers  = flag.Int("workers", 10, "number of concurrent workers")
		rate     = flag.Float64("rate", 50, "target operations per second across all workers")
		duration = flag.Duration("duration", 0, "how long to run (0 = until interrupted)")
		report   = flag.Duration("report", 10*time.Second, "stats report interval")
		verbose  = flag.Bool("verbose", false, "log every operation")
	)
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	if *workers <= 0 || *rate <= 0 {
		log.Fatal("workers and rate must be positive")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	st := &stats{}

	c := cron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", *report), func() {
		log.WithFields(logrus.Fields{
			"registrations":  atomic.LoadUint64(&st.registrations),
			"logins":         atomic.LoadUint64(&st.logins),
			"login_failures": atomic.LoadUint64(&st.loginFailures),
			"orders_created": atomic.LoadUint64(&st.ordersCreated),
			"orders_deleted": atomic.LoadUint64(&st.ordersDeleted),
			"errors":         atomic.LoadUint64(&st.errors),
		}).Info("progress")
	}); err != nil {
		log.WithError(err).Fatal("failed to schedule stats report")
	}
	c.Start()
	defer c.Stop()

	// Per-worker pacing so the aggregate rate lands near the target.
	interval := time.Duration(float64(*workers) / *rate * float64(time.Second))

	log.WithFields(logrus.Fields{
		"workers":  *workers,
		"rate":     *rate,
		"auth_url": *authURL,
		"crm_url":  *crmURL,
	}).Info("starting load generation")

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < *workers; i++ {
		w := &worker{
			id:      i,
			authURL: *authURL,
			crmURL:  *crmURL,
			client: &http.Client{
				Timeout: 5 * time.Second,
				// Redirects are where the session cookie is set; stop
				// there so we can read it off the response.
				CheckRedirect: func(req *http.Request, via []*http.Request) error {
					return http.ErrUseLastResponse
				},
			},
			log:   log.WithField("worker", i),
			stats: st,
		}
		g.Go(func() error {
			return w.run(gctx, interval)
		})
	}

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		log.WithError(err).Error("load generation aborted")
		os.Exit(1)
	}

	log.WithFields(logrus.Fields{
		"registrations":  atomic.LoadUint64(&st.registrations),
		"logins":         atomic.LoadUint64(&st.logins),
		"login_failures": atomic.LoadUint64(&st.loginFailures),
		"orders_created": atomic.LoadUint64(&st.ordersCreated),
		"orders_deleted": atomic.LoadUint64(&st.ordersDeleted),
		"errors":         atomic.LoadUint64(&st.errors),
	}).Info("load generation finished")
}

func (w *worker) run(ctx context.Context, interval time.Duration) error {
	username := fmt.Sprintf("loadgen-%s", uuid.NewString()[:8])
	password := uuid.NewString()

	if err := w.register(ctx, username, password); err != nil {
		return fmt.Errorf("worker %d: register: %w", w.id, err)
	}
	atomic.AddUint64(&w.stats.registrations, 1)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var token string
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		// Sessions expire; log in again whenever we have no usable token.
		if token == "" {
			t, err := w.login(ctx, username, password)
			if err != nil {
				atomic.AddUint64(&w.stats.loginFailures, 1)
				w.log.WithError(err).Debug("login failed")
				continue
			}
			token = t
			atomic.AddUint64(&w.stats.logins, 1)
			continue
		}

		if err := w.orderRoundTrip(ctx, token); err != nil {
			atomic.AddUint64(&w.stats.errors, 1)
			w.log.WithError(err).Debug("order round trip failed")
			// Most likely the session expired; force a fresh login.
			token = ""
		}
	}
}

func (w *worker) register(ctx context.Context, username, password string) error {
	form := url.Values{"username": {username}, "password": {password}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.authURL+"/register", bytes.NewBufferString(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	drain(resp)
	if resp.StatusCode != http.StatusSeeOther {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (w *worker) login(ctx context.Context, username, password string) (string, error) {
	form := url.Values{"username": {username}, "password": {password}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.authURL+"/login", bytes.NewBufferString(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := w.client.Do(req)
	if err != nil {
		return "", err
	}
	drain(resp)
	if resp.StatusCode != http.StatusSeeOther {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	for _, c := range resp.Cookies() {
		if c.Name == "auth_token" {
			return c.Value, nil
		}
	}
	return "", fmt.Errorf("no session cookie in login response")
}

// orderRoundTrip creates an order and then deletes it, both with the
// session cookie attached, leaving the order collection roughly stable.
func (w *worker) orderRoundTrip(ctx context.Context, token string) error {
	body, err := json.Marshal(map[string]interface{}{
		"item":  fmt.Sprintf("widget-%d", rand.Intn(1000)),
		"price": float64(rand.Intn(10000)) / 100,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.crmURL+"/api/orders", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(&http.Cookie{Name: "auth_token", Value: token})

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("create order: status %d", resp.StatusCode)
	}

	var created struct {
		OrderID string `json:"order_id"`
	}
	if err := json.Unmarshal(data, &created); err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	atomic.AddUint64(&w.stats.ordersCreated, 1)

	req, err = http.NewRequestWithContext(ctx, http.MethodDelete, w.crmURL+"/api/orders/"+created.OrderID, nil)
	if err != nil {
		return err
	}
	req.AddCookie(&http.Cookie{Name: "auth_token", Value: token})

	resp, err = w.client.Do(req)
	if err != nil {
		return err
	}
	drain(resp)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("delete order: status %d", resp.StatusCode)
	}
	atomic.AddUint64(&w.stats.ordersDeleted, 1)
	return nil
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
