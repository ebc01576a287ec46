// Command outreachd is the outreach-control daemon: it runs the send
// dispatcher, stale-lease reaper, Gmail reconciler, and auto-stop
// controller as concurrent periodic loops against a shared set of
// file-backed stores.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ignite/outreach-control/internal/approval"
	"github.com/ignite/outreach-control/internal/archive"
	"github.com/ignite/outreach-control/internal/autostop"
	"github.com/ignite/outreach-control/internal/config"
	"github.com/ignite/outreach-control/internal/dispatch"
	"github.com/ignite/outreach-control/internal/domain"
	"github.com/ignite/outreach-control/internal/experiment"
	"github.com/ignite/outreach-control/internal/killswitch"
	"github.com/ignite/outreach-control/internal/ledger"
	"github.com/ignite/outreach-control/internal/notify"
	"github.com/ignite/outreach-control/internal/pkg/cache"
	"github.com/ignite/outreach-control/internal/pkg/logger"
	"github.com/ignite/outreach-control/internal/policy"
	"github.com/ignite/outreach-control/internal/provider/gmail"
	"github.com/ignite/outreach-control/internal/queue"
	"github.com/ignite/outreach-control/internal/reaper"
	"github.com/ignite/outreach-control/internal/reconcile"
	"github.com/ignite/outreach-control/internal/reportsink"
	"github.com/redis/go-redis/v9"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("outreachd: failed to load config: %v", err)
	}

	if err := os.MkdirAll(cfg.Server.DataDir, 0o755); err != nil {
		log.Fatalf("outreachd: failed to create data dir: %v", err)
	}

	l, err := ledger.Open(filepath.Join(cfg.Server.DataDir, "metrics.ndjson"))
	if err != nil {
		log.Fatalf("outreachd: failed to open ledger: %v", err)
	}
	q, err := queue.Open(filepath.Join(cfg.Server.DataDir, "send_queue.ndjson"))
	if err != nil {
		log.Fatalf("outreachd: failed to open queue: %v", err)
	}
	approvals, err := approval.Open(filepath.Join(cfg.Server.DataDir, "approvals.ndjson"))
	if err != nil {
		log.Fatalf("outreachd: failed to open approval registry: %v", err)
	}
	experiments, err := experiment.OpenRegistry(filepath.Join(cfg.Server.DataDir, "experiments.json"))
	if err != nil {
		log.Fatalf("outreachd: failed to open experiment registry: %v", err)
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	}
	var killSwitchCache cache.TTLCache
	if redisClient != nil {
		killSwitchCache = cache.New(redisClient)
	}
	ks := killswitch.New(
		filepath.Join(cfg.Server.DataDir, "runtime_kill_switch.json"),
		time.Duration(cfg.Gate.KillSwitchTTL)*time.Second,
		killSwitchCache,
	)

	counter := policy.NewDailyCounter(redisClient)
	gate := policy.New(policy.Config{
		EnableAutoSend:   cfg.Gate.EnableAutoSend,
		AllowlistDomains: cfg.Gate.AllowlistDomains,
		AllowlistEmails:  cfg.Gate.AllowlistEmails,
		MaxPerDay:        cfg.Gate.MaxPerDay,
	}, counter, config.IsKillSwitchEnvSet)

	ctx, cancel := context.WithCancel(context.Background())

	mailProvider := gmail.New(ctx, gmail.Credentials{
		ClientID:     cfg.Gmail.ClientID,
		ClientSecret: cfg.Gmail.ClientSecret,
		RefreshToken: cfg.Gmail.RefreshToken,
	}, cfg.Gmail.Timeout())

	dispatcher := dispatch.New(q, l, approvals, gate, ks, mailProvider)
	reap := reaper.New(q, cfg.Queue.StaleMinutes)
	reconciler := reconcile.New(l, mailProvider)
	autoStop := autostop.New(l, ks, domain.AutoStopConfig{
		WindowDays:      cfg.AutoStop.WindowDays,
		MinSentTotal:    cfg.AutoStop.MinSentTotal,
		ReplyRateMin:    cfg.AutoStop.ReplyRateMin,
		BlockedRateMax:  cfg.AutoStop.BlockedRateMax,
		ConsecutiveDays: cfg.AutoStop.ConsecutiveDays,
	})
	notifier := notify.New(cfg.Slack.WebhookURL, 10*time.Second)

	var deadLetterArchive *archive.Archiver
	if cfg.Archive.Enabled {
		deadLetterArchive, err = archive.New(ctx, cfg.Archive.S3Bucket, "outreach/dead-letters/", cfg.Archive.AWSRegion)
		if err != nil {
			logger.Error("outreachd: failed to initialize dead-letter archive, continuing without it", "error", err.Error())
			deadLetterArchive = nil
		}
	}

	var reportSink *reportsink.Sink
	if cfg.ReportSink.Enabled {
		reportSink, err = reportsink.Open(cfg.ReportSink.DatabaseURL)
		if err != nil {
			logger.Error("outreachd: failed to initialize report sink, continuing without it", "error", err.Error())
			reportSink = nil
		}
	}

	logger.Info("outreachd: starting", "data_dir", cfg.Server.DataDir, "hostname", cfg.Server.Hostname)

	go runDispatchLoop(ctx, dispatcher, time.Duration(cfg.Queue.PollInterval)*time.Second)
	go runReaperLoop(ctx, reap, time.Duration(cfg.Queue.PollInterval)*time.Second*6)
	go runReconcileLoop(ctx, reconciler, q, time.Minute*5)
	go runAutoStopLoop(ctx, autoStop, notifier, time.Duration(cfg.AutoStop.TickIntervalSecs)*time.Second)
	go runSafetyLoop(ctx, l, experiments, notifier, reportSink, 10*time.Minute)
	if deadLetterArchive != nil {
		go runArchiveLoop(ctx, q, deadLetterArchive, time.Minute*5)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("outreachd: shutting down")
	cancel()
	time.Sleep(time.Second)
	if reportSink != nil {
		reportSink.Close()
	}
	logger.Info("outreachd: stopped")
}

func runDispatchLoop(ctx context.Context, d *dispatch.Dispatcher, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for {
				ranJob, err := d.Tick(ctx)
				if err != nil {
					logger.Error("dispatch loop: tick failed", "error", err.Error())
					break
				}
				if !ranJob {
					break
				}
			}
		}
	}
}

func runReaperLoop(ctx context.Context, r *reaper.Reaper, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := r.Sweep()
			if err != nil {
				logger.Error("reaper loop: sweep failed", "error", err.Error())
				continue
			}
			if n > 0 {
				logger.Info("reaper loop: reaped stale leases", "count", n)
			}
		}
	}
}

func runReconcileLoop(ctx context.Context, rc *reconcile.Reconciler, q *queue.Store, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var audits []reconcile.DraftAudit
			for _, job := range q.All() {
				if job.Status != domain.StatusSent {
					continue
				}
				audits = append(audits, reconcile.DraftAudit{
					TrackingID:     job.TrackingID,
					CompanyID:      job.CompanyID,
					TemplateID:     job.TemplateID,
					ABVariant:      job.ABVariant,
					DraftCreatedAt: job.CreatedAt,
				})
			}
			rc.ReconcileAll(ctx, audits)
		}
	}
}

// runSafetyLoop periodically aggregates every running experiment and, when
// CheckSafety recommends freezing or rolling back, notifies Slack. It never
// mutates experiment state itself — that remains an operator decision made
// through outreachctl.
func runSafetyLoop(ctx context.Context, l *ledger.Ledger, experiments *experiment.Registry, n *notify.Notifier, sink *reportsink.Sink, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now().UTC()
			events := l.AllEvents()
			for _, cfg := range experiments.All() {
				if cfg.Status != domain.ExperimentRunning {
					continue
				}
				agg := experiment.Compute(events, cfg, now)
				result := experiment.CheckSafety(agg, cfg)
				if result.Action != experiment.ActionOK {
					logger.Info("safety loop: recommendation", "experiment_id", cfg.ExperimentID, "action", string(result.Action))
					n.Send(ctx, "experiment "+cfg.ExperimentID+" safety check: "+string(result.Action))
				}
				if sink != nil {
					if err := sink.MirrorRollup(ctx, cfg.ExperimentID, agg.Days); err != nil {
						logger.Error("safety loop: failed to mirror rollup", "experiment_id", cfg.ExperimentID, "error", err.Error())
					}
				}
			}
		}
	}
}

// runArchiveLoop mirrors newly dead-lettered jobs to S3. seen tracks
// job_ids already mirrored this process lifetime, since the queue store has
// no durable "archived" flag of its own.
func runArchiveLoop(ctx context.Context, q *queue.Store, a *archive.Archiver, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	seen := make(map[string]bool)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now().UTC()
			for _, job := range q.All() {
				if job.Status != domain.StatusDeadLetter || seen[job.JobID] {
					continue
				}
				if err := a.MirrorDeadLetter(ctx, job, now); err != nil {
					logger.Error("archive loop: failed to mirror dead letter", "job_id", job.JobID, "error", err.Error())
					continue
				}
				seen[job.JobID] = true
			}
		}
	}
}

func runAutoStopLoop(ctx context.Context, c *autostop.Controller, n *notify.Notifier, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := c.Tick(ctx)
			if err != nil {
				logger.Error("auto-stop loop: tick failed", "error", err.Error())
				continue
			}
			if result.Stopped {
				logger.Info("auto-stop loop: kill switch activated", "reason", result.Reason)
				n.Send(ctx, "outreach auto-stop triggered: "+result.Reason)
			}
		}
	}
}
