package cli

import (
	"fmt"

	"github.com/toolgate/toolgate/internal/config"
	"github.com/toolgate/toolgate/internal/logger"
	"github.com/toolgate/toolgate/pkg/agent"
	"github.com/toolgate/toolgate/pkg/coretools"
	"github.com/toolgate/toolgate/pkg/security"
	"github.com/toolgate/toolgate/pkg/tool"
)

// runtime is the assembled application stack shared by the commands.
type runtime struct {
	cfg          *config.Config
	log          *logger.Logger
	store        security.Store
	manager      *security.Manager
	registry     *tool.Registry
	orchestrator *agent.Orchestrator
}

// buildRuntime loads config and wires the registry, security manager
// and orchestrator together. The approval provider can be swapped in
// by the caller (the serve command injects the gateway) before first
// use; by default modifying tools follow the simulated policy.
func buildRuntime(approvals security.ApprovalProvider) (*runtime, error) {
	loader := config.NewLoader(cfgFile)
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := config.NewValidator().Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	lg, err := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		Console:    cfg.Logging.Console,
		Pretty:     cfg.Logging.Pretty,
		Redaction:  cfg.Logging.Redaction,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	if err != nil {
		return nil, err
	}

	var store security.Store
	if cfg.Security.AuditDB != "" {
		store, err = security.NewSQLiteStore(cfg.Security.AuditDB)
		if err != nil {
			return nil, err
		}
	} else {
		store = security.NewMemoryStore()
	}

	backupper, err := security.NewFileBackupper(cfg.Security.BackupDir)
	if err != nil {
		return nil, err
	}

	manager, err := security.NewManager(security.ManagerConfig{
		Store:            store,
		ApprovalProvider: approvals,
		Backupper:        backupper,
		ApprovalTimeout:  cfg.Security.ApprovalTimeout(),
		DefaultValidity:  cfg.Security.ApprovalValidity(),
	})
	if err != nil {
		return nil, err
	}

	if cfg.Security.SettingsFile != "" {
		if err := security.LoadSettingsFile(manager, cfg.Security.SettingsFile); err != nil {
			return nil, err
		}
	}

	registry := tool.NewRegistry()
	if err := coretools.RegisterCoreTools(registry, coretools.Options{
		WorkspaceRoot: cfg.WorkspacePath,
	}); err != nil {
		return nil, err
	}

	provider, err := agent.NewProvider(agent.AuthProfile{
		Provider: cfg.LLM.Provider,
		APIKey:   cfg.LLM.APIKey,
		Model:    cfg.LLM.Model,
	})
	if err != nil {
		return nil, err
	}

	orchestrator, err := agent.NewOrchestrator(agent.Config{
		Registry:      registry,
		Security:      manager,
		Provider:      provider,
		MaxIterations: cfg.Orchestrator.MaxIterations,
		ToolTimeout:   cfg.Orchestrator.ToolTimeout(),
		ClientID:      cfg.Orchestrator.ClientID,
	})
	if err != nil {
		return nil, err
	}

	return &runtime{
		cfg:          cfg,
		log:          lg,
		store:        store,
		manager:      manager,
		registry:     registry,
		orchestrator: orchestrator,
	}, nil
}

// close releases the runtime's resources.
func (r *runtime) close() {
	if r.manager != nil {
		_ = r.manager.Close()
	}
	if r.log != nil {
		_ = r.log.Close()
	}
}
