package cmd

import (
	"fmt"

	"github.com/jmehdipour/staffing-awards/internal/db"
	"github.com/jmehdipour/staffing-awards/internal/logger"
	"github.com/jmehdipour/staffing-awards/internal/repository"
	"github.com/jmehdipour/staffing-awards/internal/seed"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the award subcategories",
	RunE: func(cmd *cobra.Command, args []string) error {
		items, err := seed.Subcategories()
		if err != nil {
			return err
		}

		sqlDB, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.MySQLOpts{
			MaxOpenConns:    cfg.MySQL.MaxOpenConns,
			MaxIdleConns:    cfg.MySQL.MaxIdleConns,
			ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.MySQL.ConnMaxIdleTime,
			PingTimeout:     cfg.MySQL.PingTimeout,
		})
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer sqlDB.Close()

		n, err := repository.NewSubcategoriesRepository(sqlDB).Upsert(cmd.Context(), items)
		if err != nil {
			return fmt.Errorf("seed subcategories: %w", err)
		}

		logger.Log.Info("seed completed", zap.Int("subcategories", n))
		return nil
	},
}
