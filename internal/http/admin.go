package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/jmehdipour/staffing-awards/internal/model"
	"github.com/jmehdipour/staffing-awards/internal/repository"
	echo "github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// replayHandler moves a dead row back to pending for one more attempt.
func replayHandler(outboxes map[model.Target]repository.OutboxRepository, log *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		target, ok := model.ParseTarget(c.Param("target"))
		store := outboxes[target]
		if !ok || store == nil {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown target"})
		}

		id := c.Param("id")
		if err := store.Replay(c.Request().Context(), id); err != nil {
			switch {
			case errors.Is(err, repository.ErrOutboxNotFound):
				return c.JSON(http.StatusNotFound, map[string]string{"error": "event not found"})
			case errors.Is(err, repository.ErrNotDead):
				return c.JSON(http.StatusConflict, map[string]string{"error": "event is not dead"})
			}

			log.Error("replay failed", zap.String("target", target.String()), zap.String("id", id), zap.Error(err))

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		log.Info("outbox event replayed", zap.String("target", target.String()), zap.String("id", id))

		return c.JSON(http.StatusOK, map[string]any{
			"id":     id,
			"target": target,
			"status": model.OutboxPending,
		})
	}
}

func listAttemptsHandler(attempts repository.AttemptsRepository, log *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		target, ok := model.ParseTarget(c.Param("target"))
		if !ok {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown target"})
		}
		if attempts == nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "attempt history not configured"})
		}

		limit := 50
		offset := 0
		if v := c.QueryParam("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
				limit = n
			}
		}
		if v := c.QueryParam("offset"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				offset = n
			}
		}

		var outcome string
		switch raw := strings.TrimSpace(c.QueryParam("outcome")); raw {
		case model.AttemptOK, model.AttemptRetry, model.AttemptDead, model.AttemptSkipped:
			outcome = raw
		}

		rows, err := attempts.ListByTarget(
			c.Request().Context(),
			target,
			outcome,
			strings.TrimSpace(c.QueryParam("event_id")),
			limit,
			offset,
		)
		if err != nil {
			log.Error("clickhouse list failed", zap.Error(err))

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"limit":   limit,
			"offset":  offset,
			"count":   len(rows),
			"results": rows,
		})
	}
}
