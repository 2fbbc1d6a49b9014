package cmd

import (
	"context"

	"dbbackup/internal/config"
	"dbbackup/internal/logger"
	"dbbackup/internal/notify"
	"dbbackup/internal/security"

	"github.com/spf13/cobra"
)

// cfg, log, auditLogger and notifyManager are package-level so the many
// leaf commands under cmd/ can reach them without threading a context
// struct through every RunE. Execute wires them up once, from whatever
// *config.Config and logger.Logger main() already built.
var (
	cfg           *config.Config
	log           logger.Logger
	auditLogger   *security.AuditLogger
	notifyManager *notify.Manager
)

var rootCmd = &cobra.Command{
	Use:   "dbbackup",
	Short: "High-performance, Go-native database backup engine",
	Long: `dbbackup backs up and restores PostgreSQL and MySQL databases,
including a pure Go physical/incremental engine for PostgreSQL that
works directly against the data directory without shelling out to
pg_basebackup.`,
}

// Execute runs the root command with the given configuration and
// logger. Called once from main().
func Execute(ctx context.Context, c *config.Config, l logger.Logger) error {
	cfg = c
	log = l
	auditLogger = security.NewAuditLogger(l, true)
	notifyManager = buildNotifyManager(cfg)

	rootCmd.PersistentFlags().BoolVar(&cfg.Debug, "debug", cfg.Debug, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&cfg.BackupDir, "backup-dir", cfg.BackupDir, "Directory for backup output")

	return rootCmd.ExecuteContext(ctx)
}

// buildNotifyManager constructs the shared notification manager from
// config, mirroring the per-invocation construction in notify.go's
// test command so scheduled backups get the same webhook/SMTP routing.
func buildNotifyManager(cfg *config.Config) *notify.Manager {
	return notify.NewManager(notify.Config{
		SMTPEnabled:  cfg.NotifySMTPHost != "",
		SMTPHost:     cfg.NotifySMTPHost,
		SMTPPort:     cfg.NotifySMTPPort,
		SMTPUser:     cfg.NotifySMTPUser,
		SMTPPassword: cfg.NotifySMTPPassword,
		SMTPFrom:     cfg.NotifySMTPFrom,
		SMTPTo:       cfg.NotifySMTPTo,
		SMTPTLS:      cfg.NotifySMTPTLS,
		SMTPStartTLS: cfg.NotifySMTPStartTLS,

		WebhookEnabled: cfg.NotifyWebhookURL != "",
		WebhookURL:     cfg.NotifyWebhookURL,
		WebhookMethod:  "POST",

		OnSuccess: cfg.NotifyEnabled,
		OnFailure: cfg.NotifyEnabled,
	})
}
