package commands

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/sysgate-io/sysgate/internal/broker"
	"github.com/sysgate-io/sysgate/internal/config"
	"github.com/sysgate-io/sysgate/internal/elevate"
	"github.com/sysgate-io/sysgate/internal/executor"
	"github.com/sysgate-io/sysgate/internal/logging"
	"github.com/sysgate-io/sysgate/internal/oplog"
	"github.com/sysgate-io/sysgate/internal/permission"
	"github.com/sysgate-io/sysgate/internal/platform"
	"github.com/sysgate-io/sysgate/internal/proc"
	"github.com/sysgate-io/sysgate/internal/storage"
)

// app holds the wired broker stack for one CLI invocation.
type app struct {
	broker *broker.Broker
	store  *permission.Store
	config *config.Config
}

// buildApp wires the full stack: config, logging, storage, permission
// store, consent, executor, tracker, elevator, platform backend and the
// broker on top.
func buildApp() (*app, error) {
	// A .env alongside the invocation may carry SYSGATE_* overrides.
	_ = godotenv.Load()

	dir, err := GetWorkDir(workDir)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.Workspace == "" {
		cfg.Workspace = dir
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	logging.Init(logging.Config{Level: logging.ParseLevel(cfg.LogLevel), Pretty: printLogs})

	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		return nil, err
	}

	permBase := paths.Data
	if cfg.PermissionsFile != "" {
		permBase = filepath.Dir(cfg.PermissionsFile)
	}
	store := permission.NewStore(permission.WithStorage(storage.New(permBase)))

	var provider permission.ConsentProvider
	if assumeYes {
		provider = permission.ConsentFunc(func(string) bool { return true })
	} else {
		provider = &terminalConsent{in: bufio.NewReader(os.Stdin), out: os.Stderr}
	}

	gate := permission.NewGate(store, provider)
	tracker := proc.NewTracker()
	log := oplog.NewLog(oplog.WithStorage(storage.New(paths.StatePath())))
	exec := executor.New(store, gate, tracker, log, cfg.Workspace,
		executor.WithDefaultTimeout(time.Duration(cfg.DefaultTimeoutSeconds)*time.Second),
		executor.WithExtraSafeCommands(cfg.SafeCommands))
	elevator := elevate.New(gate)

	b, err := broker.New(broker.Deps{
		Store:     store,
		Gate:      gate,
		Executor:  exec,
		Tracker:   tracker,
		Elevator:  elevator,
		Platform:  platform.New(),
		Log:       log,
		Workspace: cfg.Workspace,
		SafeDirs:  cfg.SafeDirs,
	})
	if err != nil {
		return nil, err
	}

	return &app{broker: b, store: store, config: cfg}, nil
}

// terminalConsent prompts on stderr and reads a y/n answer from stdin.
type terminalConsent struct {
	in  *bufio.Reader
	out *os.File
}

func (t *terminalConsent) RequestConsent(description string) bool {
	fmt.Fprintf(t.out, "\n%s\nAllow? [y/N] ", description)
	line, err := t.in.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
