package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/steward-ai/steward/internal/config"
	"github.com/steward-ai/steward/internal/memory"
	"github.com/steward-ai/steward/internal/store"
)

var (
	memUser string
	memTier string
)

var memoriesCmd = &cobra.Command{
	Use:   "memories",
	Short: "Inspect memory records",
}

var memoriesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List memories in a tier (hot reads apply inline expiry)",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, db, err := openManager()
		if err != nil {
			return err
		}
		defer db.Close()

		tier, err := normalizeTier(memTier)
		if err != nil {
			return err
		}

		memories, err := mgr.List(memUser, tier)
		if err != nil {
			return err
		}
		printMemories(memories)
		return nil
	},
}

var memoriesSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search memories in a tier",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, db, err := openManager()
		if err != nil {
			return err
		}
		defer db.Close()

		tier, err := normalizeTier(memTier)
		if err != nil {
			return err
		}

		memories, err := mgr.Search(memUser, tier, args[0])
		if err != nil {
			return err
		}
		printMemories(memories)
		return nil
	},
}

func init() {
	memoriesCmd.PersistentFlags().StringVar(&memUser, "user", "default_user", "user id")
	memoriesCmd.PersistentFlags().StringVar(&memTier, "tier", "hot", "tier: hot, cold, archive")
	memoriesCmd.AddCommand(memoriesListCmd)
	memoriesCmd.AddCommand(memoriesSearchCmd)
}

func openManager() (*memory.Manager, *store.DB, error) {
	cfg := config.FromEnv()
	dbPath := cfg.Database.Path
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return nil, nil, err
		}
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	mgr := memory.NewManager(db, time.Duration(cfg.Memory.HotTTLDays)*24*time.Hour)
	return mgr, db, nil
}

func normalizeTier(raw string) (string, error) {
	switch strings.ToUpper(raw) {
	case store.TierHot, store.TierCold, store.TierArchive:
		return strings.ToUpper(raw), nil
	}
	return "", fmt.Errorf("unknown tier %q (want hot, cold, or archive)", raw)
}

func printMemories(memories []store.Memory) {
	if len(memories) == 0 {
		fmt.Fprintln(os.Stderr, "no memories")
		return
	}
	for _, m := range memories {
		line := fmt.Sprintf("%s  [%s]  %s = %s", m.ID, m.Tier, m.Key, m.Value)
		if m.Tier == store.TierHot && m.ExpiresAt != nil {
			line += fmt.Sprintf("  (expires %s, renewed %d)",
				time.UnixMilli(*m.ExpiresAt).Format(time.RFC3339), m.RenewedCount)
		}
		if m.Tier == store.TierArchive {
			line += fmt.Sprintf("  (archived: %s)", m.ArchivedReason)
		}
		fmt.Println(line)
	}
}
