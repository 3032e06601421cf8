package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/tinyagi/tinyagi/internal/browser"
	"github.com/tinyagi/tinyagi/internal/harness"
	"github.com/tinyagi/tinyagi/internal/memory"
	"github.com/tinyagi/tinyagi/internal/proactive"
	"github.com/tinyagi/tinyagi/internal/queue"
	"github.com/tinyagi/tinyagi/internal/scheduler"
	"github.com/tinyagi/tinyagi/internal/skills"
	"github.com/tinyagi/tinyagi/internal/tooling"
	"github.com/tinyagi/tinyagi/pkg/protocol"
)

// runServe starts the full tinyagi process: state-home setup, logger,
// repository, every component, the 1 s scheduler tick, and the 60 s
// proactive tick, blocking until interrupted (spec §4.N, §4.M).
func runServe() error {
	home, err := stateHome()
	if err != nil {
		return fmt.Errorf("resolve state home: %w", err)
	}
	if err := home.EnsureDirs(); err != nil {
		return fmt.Errorf("create state dirs: %w", err)
	}

	logger, err := setupLogger()
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	repo, err := openRepo(cfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	cfg.RLock()
	harnessEnabled := cfg.Harness.Enabled
	verifierFailClosed := cfg.Harness.VerifierFailClosed
	browserCfg := cfg.Harness.Browser
	quietStart, quietEnd := cfg.Harness.QuietHours.Start, cfg.Harness.QuietHours.End
	digestTime := cfg.Harness.DigestTime
	cfg.RUnlock()

	spooler := queue.New(home.QueueIncoming(), home.QueueProcessing(), home.QueueOutgoing())
	if err := spooler.Recover(); err != nil {
		return fmt.Errorf("recover queue: %w", err)
	}

	viz := protocol.NewSink(home.Events())

	gate := harness.NewGate(repo, false)
	toolingExec := tooling.New(repo)
	browserExec := browser.New(repo, browserCfg, home.BrowserAuditDir())
	memSvc := memory.New(repo, home.MemoryRawDir())
	skillsSvc := skills.New(repo, home.SkillsDir())
	resolver := newAgentResolver(cfg)

	orch := harness.NewOrchestrator(repo, gate, toolingExec, browserExec, memSvc, skillsSvc, resolver, viz, verifierFailClosed)

	digestFn := func(ctx context.Context, channel, senderID string) (string, error) {
		return memSvc.Summarize(ctx, time.Now().UTC(), home.MemoryDailyDir(), channel, nil)
	}
	proact := proactive.New(repo, spooler, home.ProactiveDeferred(), home.ProactiveState(),
		proactive.QuietHours{Start: quietStart, End: quietEnd}, digestTime, logger, digestFn)

	sched := scheduler.New(spooler, resolver, orch, repo, home.Chats(), logger).
		WithProactive(proact).
		WithFilesDir(home.Files()).
		WithHarnessEnabled(harnessEnabled)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go proact.Run(ctx)

	logger.Info("tinyagi started", "state_home", home.Root)
	return sched.Run(ctx)
}
