package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/rentfolio/ledger-core/internal/billing"
	"github.com/rentfolio/ledger-core/internal/domain"
	"github.com/rentfolio/ledger-core/internal/service"
)

func createScheduleHandler(svc *service.SchedulerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/schedules")
		defer span.End()

		var req domain.CreateScheduleRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		schedule, err := svc.CreateSchedule(ctx, OrgIDFromContext(ctx), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, schedule)
	}
}

func getScheduleHandler(svc *service.SchedulerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/schedules/{scheduleID}")
		defer span.End()

		schedule, err := svc.GetSchedule(ctx, OrgIDFromContext(ctx), chi.URLParam(r, "scheduleID"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, schedule)
	}
}

type setScheduleStatusRequest struct {
	Status domain.ScheduleState `json:"status"`
}

func setScheduleStatusHandler(svc *service.SchedulerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/schedules/{scheduleID}/status")
		defer span.End()

		var req setScheduleStatusRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		err := svc.SetScheduleStatus(ctx, OrgIDFromContext(ctx), chi.URLParam(r, "scheduleID"), req.Status)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": string(req.Status)})
	}
}

func billingWindowsHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, span := tracer.Start(r.Context(), "GET /v1/billing/windows")
		defer span.End()

		freq := domain.Frequency(r.URL.Query().Get("frequency"))
		switch freq {
		case domain.FrequencyWeekly, domain.FrequencyMonthly, domain.FrequencyQuarterly, domain.FrequencyAnnually:
		default:
			writeError(w, http.StatusBadRequest, "frequency must be one of Weekly, Monthly, Quarterly, Annually")
			return
		}

		asOf := time.Now().UTC()
		if raw := r.URL.Query().Get("as_of"); raw != "" {
			parsed, err := time.Parse(billing.DateLayout, raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "as_of must be formatted YYYY-MM-DD")
				return
			}
			asOf = parsed
		}

		windows := billing.GenerateBillingWindows(freq, asOf)
		if windows == nil {
			windows = []billing.Window{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"windows": windows})
	}
}
