package mid

import (
	"context"
	"net/http"

	v1 "github.com/trinitychain/trinitychain/business/web/v1"
	"github.com/trinitychain/trinitychain/foundation/validate"
	"github.com/trinitychain/trinitychain/foundation/web"
	"go.uber.org/zap"
)

// Errors handles errors coming out of the call chain. It detects normal
// application errors which are used to respond to the client in a uniform
// way. Unexpected errors (status >= 500) are logged.
func Errors(log *zap.SugaredLogger) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			err := handler(ctx, w, r)
			if err == nil {
				return nil
			}

			v, verr := web.GetValues(ctx)
			if verr != nil {
				return web.NewShutdownError("web value missing from context")
			}

			log.Errorw("ERROR", "traceid", v.TraceID, "message", err)

			var er v1.ErrorResponse
			var status int

			switch {
			case validate.IsFieldErrors(err):
				er = v1.ErrorResponse{
					Error:  "data validation error",
					Fields: err.Error(),
				}
				status = http.StatusBadRequest

			case v1.IsRequestError(err):
				reqErr := v1.GetRequestError(err)
				er = v1.ErrorResponse{
					Error: reqErr.Error(),
				}
				status = reqErr.Status

			default:
				er = v1.ErrorResponse{
					Error: http.StatusText(http.StatusInternalServerError),
				}
				status = http.StatusInternalServerError
			}

			if err := web.Respond(ctx, w, er, status); err != nil {
				return err
			}

			// If we receive the shutdown err we need to return it back to
			// the base handler to shut down the service.
			if web.IsShutdown(err) {
				return err
			}

			return nil
		}
		return h
	}
	return m
}
