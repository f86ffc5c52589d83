package main

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/de-tools/cost-digest/pkg/adapters"
	"github.com/de-tools/cost-digest/pkg/models/api"
	"github.com/de-tools/cost-digest/pkg/models/domain"
	"github.com/de-tools/cost-digest/pkg/runtime/app"
)

// Response mirrors the API Gateway proxy shape so the function can sit behind
// either a schedule rule or an HTTP trigger.
type Response struct {
	StatusCode int     `json:"statusCode"`
	Body       string  `json:"body"`
	Run        api.Run `json:"run"`
}

type Handler struct {
	runner app.Runner
	logger zerolog.Logger
}

func NewHandler(runner app.Runner, logger zerolog.Logger) *Handler {
	return &Handler{runner: runner, logger: logger}
}

// Handle runs the report once per invocation. The event payload is ignored.
func (h *Handler) Handle(ctx context.Context, _ json.RawMessage) (Response, error) {
	ctx = h.logger.WithContext(ctx)
	run := h.runner.Execute(ctx, domain.TriggerLambda)

	resp := Response{
		StatusCode: http.StatusOK,
		Body:       "Report generated and sent successfully",
		Run:        adapters.MapDomainRunToAPI(run),
	}

	switch run.Status {
	case domain.RunStatusFailed:
		resp.StatusCode = http.StatusInternalServerError
		resp.Body = "Error generating report: " + run.Error
	case domain.RunStatusSkippedConcurrent:
		resp.Body = "Skipped: " + run.Error
	default:
		if run.Delivery.Status == domain.DeliverySkipped {
			resp.Body = "Report generated, delivery skipped: " + run.Delivery.Reason
		}
	}

	return resp, nil
}
