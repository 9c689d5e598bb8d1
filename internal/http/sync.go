package http

import (
	"fmt"
	"net/http"

	"github.com/jmehdipour/staffing-awards/internal/metrics"
	"github.com/jmehdipour/staffing-awards/internal/model"
	"github.com/jmehdipour/staffing-awards/internal/repository"
	"github.com/jmehdipour/staffing-awards/internal/syncer"
	echo "github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// syncRunHandler drains one batch of a target's outbox. Cron calls it.
func syncRunHandler(runners map[model.Target]*syncer.Runner, log *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		target, ok := model.ParseTarget(c.Param("target"))
		if !ok {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown target"})
		}
		r, ok := runners[target]
		if !ok {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "target disabled"})
		}

		sum, err := r.ProcessBatch(c.Request().Context())
		if err != nil {
			log.Error("sync run failed", zap.String("target", target.String()), zap.Error(err))

			return c.JSON(http.StatusInternalServerError, map[string]string{
				"error":   "sync failed",
				"details": err.Error(),
			})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"message":   fmt.Sprintf("%s sync complete", target),
			"processed": sum.Processed,
			"errors":    sum.Errors,
			"total":     sum.Total,
		})
	}
}

func syncStatusHandler(outboxes map[model.Target]repository.OutboxRepository, runners map[model.Target]*syncer.Runner, log *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		target, ok := model.ParseTarget(c.Param("target"))
		if !ok {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown target"})
		}
		store, ok := outboxes[target]
		if !ok {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown target"})
		}

		counts, err := store.CountByStatus(c.Request().Context())
		if err != nil {
			log.Error("outbox count failed", zap.String("target", target.String()), zap.Error(err))

			return c.JSON(http.StatusInternalServerError, map[string]string{
				"error":   "status failed",
				"details": err.Error(),
			})
		}

		byStatus := make(map[string]int64, len(counts))
		for st, n := range counts {
			byStatus[st.String()] = n
			metrics.OutboxRows.WithLabelValues(target.String(), st.String()).Set(float64(n))
		}

		health := "disabled"
		r, enabled := runners[target]
		if enabled {
			health = r.Health()
		}

		return c.JSON(http.StatusOK, map[string]any{
			"target":  target,
			"enabled": enabled,
			"health":  health,
			"counts":  byStatus,
		})
	}
}
