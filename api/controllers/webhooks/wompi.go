package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/andresmgomez/pasarela-backend/api/responses"
	wompiwebhook "github.com/andresmgomez/pasarela-backend/internal/webhooks/wompi"
	pkgerrors "github.com/andresmgomez/pasarela-backend/pkg/errors"
	"github.com/andresmgomez/pasarela-backend/pkg/logger"
	"github.com/andresmgomez/pasarela-backend/pkg/wompi"
)

const maxEventBytes = 1 << 20

type WompiWebhookService interface {
	HandleEvent(ctx context.Context, event *wompi.Event) *wompiwebhook.ReconcileResult
}

// WompiWebhook ingests transaction.updated notifications. The gateway
// retries on non-2xx, so every decoded event is acknowledged with 200
// regardless of the reconciliation outcome; failed reconciliations are
// surfaced through logs and metrics and redelivered later.
func WompiWebhook(svc WompiWebhookService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxEventBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		var event wompi.Event
		if err := json.Unmarshal(payload, &event); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode event"))
			return
		}

		result := svc.HandleEvent(ctx, &event)

		responses.WriteSuccess(w, map[string]string{
			"outcome":   result.Outcome,
			"reference": result.Reference,
		})
	}
}
