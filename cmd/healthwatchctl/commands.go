package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"healthwatch/internal/archive"
	"healthwatch/internal/config"
	"healthwatch/internal/database"
	"healthwatch/internal/liveness"
	"healthwatch/internal/registry"
)

var (
	rootCmd = &cobra.Command{
		Use:           "healthwatchctl",
		Short:         "Manage Healthwatch monitors and the local alert archive",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	listCmd = &cobra.Command{
		Use:   "list",
		Short: "Show all monitors, their last ping and when they are expected to die",
		Args:  cobra.NoArgs,
		RunE:  runList,
	}
	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Check whether the remote outbox is empty or backed up",
		Args:  cobra.NoArgs,
		RunE:  runStatus,
	}
	removeCmd = &cobra.Command{
		Use:   "remove <id>",
		Short: "Permanently delete a retired monitor so it stops alerting",
		Args:  cobra.ExactArgs(1),
		RunE:  runRemove,
	}
	pauseCmd = &cobra.Command{
		Use:   "pause <id> <hours>",
		Short: "Push a monitor's expected death out by N hours (planned maintenance)",
		Args:  cobra.ExactArgs(2),
		RunE:  runPause,
	}
	testAlertCmd = &cobra.Command{
		Use:   "test-alert",
		Short: "Plant an already-expired monitor so the next sweep generates an alert",
		Args:  cobra.NoArgs,
		RunE:  runTestAlert,
	}
	logCmd = &cobra.Command{
		Use:   "log",
		Short: "Show the last 10 entries of the local alert archive",
		Args:  cobra.NoArgs,
		RunE:  runLog,
	}
	deployCmd = &cobra.Command{
		Use:   "deploy",
		Short: "Push the remote worker via the configured deploy command",
		Args:  cobra.NoArgs,
		RunE:  runDeploy,
	}
)

func init() {
	rootCmd.AddCommand(listCmd, statusCmd, removeCmd, pauseCmd, testAlertCmd, logCmd, deployCmd)
}

func loadConfig() (*config.Config, error) {
	return config.Load(config.Path())
}

// openRegistry connects to the registry database and makes sure the schema
// exists. The caller owns the returned pool.
func openRegistry(cfg *config.Config) (*registry.Registry, *pgxpool.Pool, error) {
	if err := cfg.RequireRegistry(); err != nil {
		return nil, nil, err
	}
	pool, err := database.Connect(cfg.Registry.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := database.Migrate(pool); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return registry.New(pool), pool, nil
}

func registryContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 15*time.Second)
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	tz, err := liveness.ParseTimezone(cfg.Settings.Timezone)
	if err != nil {
		return err
	}

	reg, pool, err := openRegistry(cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	ctx, cancel := registryContext()
	defer cancel()

	monitors, err := reg.ListMonitors(ctx)
	if err != nil {
		return fmt.Errorf("list monitors: %w", err)
	}
	if len(monitors) == 0 {
		fmt.Println("No active monitors found.")
		return nil
	}

	zone := ""
	if tz.IsUTC() {
		zone = " (UTC)"
	}
	fmt.Printf("%-30s | %-20s | %s\n", "MONITOR ID", "LAST PING"+zone, "EXPECTED DEATH"+zone)
	fmt.Println(strings.Repeat("-", 75))

	now := time.Now().Unix()
	for _, m := range monitors {
		death := liveness.DeathTime(m.LastPing, m.TimeoutHours)
		status := tz.FormatTime(death)
		if liveness.IsExpired(now, death) {
			status += " [DEAD]"
		}
		fmt.Printf("%-30s | %-20s | %s\n", m.ID, tz.FormatTime(m.LastPing), status)
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	reg, pool, err := openRegistry(cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	ctx, cancel := registryContext()
	defer cancel()

	count, err := reg.QueueDepth(ctx)
	if err != nil {
		return fmt.Errorf("outbox depth: %w", err)
	}
	if count == 0 {
		fmt.Println("Status: HEALTHY. The remote outbox is empty.")
	} else {
		fmt.Printf("Status: BACKED UP. There are %d pending alerts in the outbox.\n", count)
	}

	eta := liveness.NextSweepETA(cfg.Settings.SweepMinute, time.Now().Minute())
	fmt.Printf("Next remote sweep in ~%d min.\n", eta)
	return nil
}

func runRemove(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	reg, pool, err := openRegistry(cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	ctx, cancel := registryContext()
	defer cancel()

	id := args[0]
	if err := reg.RemoveMonitor(ctx, id); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return fmt.Errorf("monitor %q not found", id)
		}
		return fmt.Errorf("remove monitor: %w", err)
	}
	fmt.Printf("Monitor '%s' has been permanently removed.\n", id)
	return nil
}

func runPause(cmd *cobra.Command, args []string) error {
	id := args[0]
	hours, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("hours must be an integer, got %q", args[1])
	}
	if hours <= 0 {
		return fmt.Errorf("hours must be positive, got %d", hours)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	reg, pool, err := openRegistry(cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	ctx, cancel := registryContext()
	defer cancel()

	if err := reg.PauseMonitor(ctx, id, hours); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return fmt.Errorf("monitor %q not found", id)
		}
		return fmt.Errorf("pause monitor: %w", err)
	}
	fmt.Printf("Monitor '%s' has been paused. Its expected death has been pushed out by %d hours.\n", id, hours)
	return nil
}

func runTestAlert(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	reg, pool, err := openRegistry(cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	ctx, cancel := registryContext()
	defer cancel()

	if err := reg.UpsertTestMonitor(ctx, time.Now().Unix()); err != nil {
		return fmt.Errorf("inject test monitor: %w", err)
	}
	fmt.Printf("Test monitor '%s' planted with a zero timeout. The next remote sweep will queue an alert for it.\n",
		registry.TestMonitorID)
	return nil
}

func runLog(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	entries, err := archive.New(cfg.Settings.ArchivePath).Tail(10)
	if errors.Is(err, archive.ErrNoArchive) {
		fmt.Println("Archive not found. No alerts have been processed locally yet.")
		return nil
	}
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("Archive is empty.")
		return nil
	}

	fmt.Printf("--- Showing last %d entries ---\n", len(entries))
	for _, e := range entries {
		fmt.Println(archive.Delimiter)
		fmt.Printf("TIME:    %s\nSUBJECT: %s\nMESSAGE:\n%s\n", e.Time, e.Subject, e.Body)
		fmt.Println(archive.Delimiter)
		fmt.Println()
	}
	return nil
}

func runDeploy(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	parts := strings.Fields(cfg.Settings.DeployCommand)
	if len(parts) == 0 {
		return fmt.Errorf("config: settings.deploy_command is empty")
	}

	fmt.Printf("Deploying the remote worker: %s\n", cfg.Settings.DeployCommand)
	deploy := exec.Command(parts[0], parts[1:]...)
	deploy.Stdout = os.Stdout
	deploy.Stderr = os.Stderr
	if err := deploy.Run(); err != nil {
		return fmt.Errorf("deploy failed: %w", err)
	}
	fmt.Println("Deployment successful.")
	return nil
}
