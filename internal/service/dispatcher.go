package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dwnmf/Screen-recoder/internal/downloads"
	"github.com/dwnmf/Screen-recoder/internal/dto"
	"github.com/dwnmf/Screen-recoder/internal/recorder"
)

// Dispatcher routes wire messages to the controller and the download manager.
type Dispatcher struct {
	controller *Controller
	downloads  downloads.Downloader
	relay      recorder.Emitter
}

func NewDispatcher(controller *Controller, dl downloads.Downloader, relay recorder.Emitter) *Dispatcher {
	return &Dispatcher{
		controller: controller,
		downloads:  dl,
		relay:      relay,
	}
}

// Dispatch handles one message. Commands return their response; relayed
// notifications return nil. The error is set only for messages that cannot
// be routed.
func (d *Dispatcher) Dispatch(ctx context.Context, data []byte) (interface{}, error) {
	env, err := dto.DecodeEnvelope(data)
	if err != nil {
		return nil, err
	}

	switch env.Action {
	case dto.ActionStartCapture, dto.ActionStartCaptureWithStreamID:
		var req dto.StartCaptureRequest
		if err := env.Decode(&req); err != nil {
			return dto.Failed(err), nil
		}
		return result(d.controller.Start(ctx, req)), nil

	case dto.ActionStopCapture:
		return result(d.controller.Stop(ctx)), nil

	case dto.ActionPauseCapture:
		return result(d.controller.Pause()), nil

	case dto.ActionResumeCapture:
		return result(d.controller.Resume()), nil

	case dto.ActionGetStatus:
		return d.controller.Status(), nil

	case dto.ActionSaveRecording:
		var req dto.SaveRecordingRequest
		if err := env.Decode(&req); err != nil {
			return dto.Failed(err), nil
		}
		res, err := d.downloads.Download(ctx, req)
		if err != nil {
			log.Error().Err(err).Msgf("saveRecording failed for %s", req.Filename)
			return dto.Failed(err), nil
		}
		resp := dto.OK()
		resp.DownloadID = &res.DownloadID
		return resp, nil
	}

	if dto.IsNotificationAction(env.Action) {
		if d.relay != nil {
			d.relay.Emit(dto.RawNotification{Action: env.Action, Body: env.Raw})
		}
		return nil, nil
	}

	return nil, fmt.Errorf("unknown action %q", env.Action)
}

func result(err error) dto.ActionResponse {
	if err != nil {
		return dto.Failed(err)
	}
	return dto.OK()
}
