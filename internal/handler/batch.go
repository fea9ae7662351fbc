package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/rentfolio/ledger-core/internal/service"
)

// BackfillDepositMetadata is the marker name of the deposit metadata sweep.
const BackfillDepositMetadata = "deposits_metadata_v1"

func fireSchedulesHandler(svc *service.SchedulerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /internal/scheduler/run")
		defer span.End()

		summary, err := svc.FireDueSchedules(ctx, time.Now().UTC())
		if err != nil {
			logger.Error("scheduler run failed", zap.Error(err))
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}

func nightlyRunHandler(svc *service.BatchRunner, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /internal/batch/nightly")
		defer span.End()

		summary, err := svc.NightlyRun(ctx, time.Now().UTC())
		if err != nil {
			logger.Error("nightly run failed", zap.Error(err))
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}

func runBackfillHandler(svc *service.BatchRunner, logger *zap.Logger) http.HandlerFunc {
	backfills := map[string]func(context.Context) error{
		BackfillDepositMetadata: svc.BackfillDepositMetadata,
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /internal/backfills/{name}")
		defer span.End()

		name := chi.URLParam(r, "name")
		fn, ok := backfills[name]
		if !ok {
			writeError(w, http.StatusNotFound, "unknown backfill: "+name)
			return
		}

		if err := svc.RunBackfill(ctx, name, fn); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"migration": name, "status": "complete"})
	}
}
