// Package twilio issues call control commands through the Twilio REST API and
// validates inbound webhook signatures.
package twilio

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"
	twiliosdk "github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// errCallNotInProgress is returned by Twilio when a call can no longer be
// modified, which includes calls that already ended.
const errCallNotInProgress = 21220

const statusCompleted = "completed"

// callUpdater is the part of the Twilio v2010 API used here.
type callUpdater interface {
	UpdateCall(sid string, params *openapi.UpdateCallParams) (*openapi.ApiV2010Call, error)
}

// Gateway ends calls through the Twilio REST API.
type Gateway struct {
	calls  callUpdater
	logger *slog.Logger
}

// NewGateway creates a gateway authenticated with the account credentials.
func NewGateway(accountSID, authToken string, logger *slog.Logger) (*Gateway, error) {
	if accountSID == "" || authToken == "" {
		return nil, errors.New("twilio account sid and auth token are required")
	}
	client := twiliosdk.NewRestClientWithParams(twiliosdk.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return newGateway(client.Api, logger), nil
}

func newGateway(calls callUpdater, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{calls: calls, logger: logger}
}

// EndCall sets the call status to completed. A call that is no longer in
// progress counts as ended.
func (g *Gateway) EndCall(ctx context.Context, callID string) error {
	if callID == "" {
		return errors.New("call sid is required")
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "end call")
	}

	params := &openapi.UpdateCallParams{}
	params.SetStatus(statusCompleted)

	if _, err := g.calls.UpdateCall(callID, params); err != nil {
		var restErr *twilioclient.TwilioRestError
		if errors.As(err, &restErr) && restErr.Code == errCallNotInProgress {
			g.logger.Info("call already ended", slog.String("call_id", callID))
			return nil
		}
		return errors.Wrapf(err, "update call %s", callID)
	}

	g.logger.Info("call end requested", slog.String("call_id", callID))
	return nil
}
