package cmd

import (
	"context"
	"fmt"
	"time"

	"dbbackup/internal/catalog"
	"dbbackup/internal/cleanup"
	"dbbackup/internal/dbconn"
	"dbbackup/internal/fio"
	"dbbackup/internal/notify"
	"dbbackup/internal/orchestrator"

	"github.com/spf13/cobra"
)

var (
	physicalMode          string
	physicalPGData        string
	physicalJobs          int
	physicalCompressAlg   string
	physicalCompressLevel int
	physicalStream        bool
	physicalStrict        bool
)

var physicalCmd = &cobra.Command{
	Use:   "physical",
	Short: "Create a physical, block-level PostgreSQL backup",
	Long: `Create a physical, block-level backup of a running PostgreSQL
cluster directly from PGDATA, without shelling out to pg_basebackup.

Supports full and three incremental modes against the most recent
successful backup in the catalog:

  --mode FULL     complete copy of every relation file
  --mode PAGE     only blocks referenced by WAL since the parent backup
  --mode DELTA    only blocks whose own LSN is newer than the parent
  --mode PTRACK   only blocks flagged by the ptrack extension

Use --stream to receive WAL concurrently via a background worker
instead of waiting for archived segments after the backup completes.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPhysicalBackup(cmd)
	},
}

func init() {
	backupCmd.AddCommand(physicalCmd)

	physicalCmd.Flags().StringVar(&physicalMode, "mode", "FULL", "Backup mode: FULL, PAGE, DELTA, PTRACK")
	physicalCmd.Flags().StringVar(&physicalPGData, "pgdata", "", "Path to the PostgreSQL data directory (required)")
	physicalCmd.Flags().IntVar(&physicalJobs, "jobs", 4, "Number of parallel file-copy workers")
	physicalCmd.Flags().StringVar(&physicalCompressAlg, "compress-alg", "zlib", "Page compression: none, zlib, pglz, zstd")
	physicalCmd.Flags().IntVar(&physicalCompressLevel, "compress-level", 1, "Compression level")
	physicalCmd.Flags().BoolVar(&physicalStream, "stream", false, "Stream WAL via replication during the backup instead of waiting on archived segments")
	physicalCmd.Flags().BoolVar(&physicalStrict, "strict", true, "Treat a corrupted page read as fatal instead of attempting a ptrack-backed refetch")
	_ = physicalCmd.MarkFlagRequired("pgdata")
}

func runPhysicalBackup(cmd *cobra.Command) error {
	ctx := cmd.Context()

	mode, err := parsePhysicalMode(physicalMode)
	if err != nil {
		return err
	}
	alg, err := parsePhysicalCompressAlg(physicalCompressAlg)
	if err != nil {
		return err
	}

	dsn := buildNativeDSN(cfg.Database)

	clean := cleanup.NewHandler(log)
	defer clean.Shutdown()

	fac := fio.New(fio.NewLocalBackend())

	checkpointTimeout, err := readCheckpointTimeout(ctx, dsn)
	if err != nil {
		log.Warn("could not read checkpoint_timeout, using default", "error", err)
	}

	opts := orchestrator.Options{
		Instance:          cfg.Database,
		BackupRoot:        cfg.BackupDir,
		PGDataPath:        physicalPGData,
		DSN:               dsn,
		Mode:              mode,
		Jobs:              physicalJobs,
		CompressAlg:       alg,
		CompressLevel:     physicalCompressLevel,
		Stream:            physicalStream,
		Strict:            physicalStrict,
		CheckpointTimeout: checkpointTimeout,
	}

	sess := orchestrator.New(opts, fac, clean, log)
	defer sess.Close(ctx)

	log.Info("starting physical backup", "mode", string(mode), "pgdata", physicalPGData, "jobs", physicalJobs)
	start := time.Now()

	backup, err := sess.Run(ctx)
	if err != nil {
		auditLogger.LogBackupFailed(cfg.User, cfg.Database, err)
		if notifyManager != nil {
			notifyManager.Notify(notify.NewEvent(notify.EventBackupFailed, notify.SeverityError, "physical backup failed").
				WithDatabase(cfg.Database).
				WithError(err))
		}
		return fmt.Errorf("physical backup failed: %w", err)
	}

	duration := time.Since(start)
	auditLogger.LogBackupComplete(cfg.User, cfg.Database, cfg.BackupDir, backup.DataBytes)
	if notifyManager != nil {
		notifyManager.Notify(notify.NewEvent(notify.EventBackupCompleted, notify.SeverityInfo, "physical backup completed").
			WithDatabase(cfg.Database).
			WithDetail("duration", duration.String()).
			WithDetail("backup_id", backup.BackupID).
			WithDetail("data_bytes", fmt.Sprintf("%d", backup.DataBytes)))
	}

	log.Info("physical backup completed", "backup_id", backup.BackupID, "data_bytes", backup.DataBytes, "duration", duration)
	return nil
}

// readCheckpointTimeout reads the server's checkpoint_timeout GUC and
// scales it by 1.1 so the post-stop WAL wait comfortably outlasts a
// checkpoint triggered right at backup stop, per the same margin the
// stream worker's drain timeout uses.
func readCheckpointTimeout(ctx context.Context, dsn string) (time.Duration, error) {
	db, err := dbconn.Connect(ctx, dsn, log)
	if err != nil {
		return 0, err
	}
	defer db.Close(ctx)

	raw, err := db.ShowGUC(ctx, "checkpoint_timeout")
	if err != nil {
		return 0, err
	}
	d, err := dbconn.ParseDurationGUC(raw)
	if err != nil {
		return 0, err
	}
	return time.Duration(float64(d) * 1.1), nil
}

func parsePhysicalMode(s string) (catalog.Mode, error) {
	switch s {
	case "FULL":
		return catalog.ModeFull, nil
	case "PAGE":
		return catalog.ModePage, nil
	case "DELTA":
		return catalog.ModeDelta, nil
	case "PTRACK":
		return catalog.ModePtrack, nil
	}
	return "", fmt.Errorf("unknown backup mode %q", s)
}

func parsePhysicalCompressAlg(s string) (catalog.CompressAlg, error) {
	switch s {
	case "none":
		return catalog.CompressNone, nil
	case "zlib":
		return catalog.CompressZlib, nil
	case "pglz":
		return catalog.CompressPglz, nil
	case "zstd":
		return catalog.CompressZstd, nil
	}
	return "", fmt.Errorf("unknown compression algorithm %q", s)
}
