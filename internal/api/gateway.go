package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/openphotometrics/rigbridge/internal/devlink"
	"github.com/openphotometrics/rigbridge/internal/media"
	"github.com/openphotometrics/rigbridge/internal/sequence"
	"github.com/openphotometrics/rigbridge/internal/session"
)

// ClientConn is the gateway's view of one connected frontend client.
// Implemented by the websocket Client.
type ClientConn interface {
	devlink.FrameSink
	ID() string
	SendEnvelope(env *Envelope)
}

// MediaStore is the capture-set surface the gateway needs.
// Satisfied by media.Store.
type MediaStore interface {
	ListSets(ctx context.Context) ([]media.CaptureSet, error)
	GetSet(ctx context.Context, name string) (*media.CaptureSet, []media.Artifact, error)
	DeleteSet(ctx context.Context, name string) error
	ReadArtifact(ctx context.Context, setName, filename string) ([]byte, string, error)
}

// SequenceRunner executes capture sequences. Satisfied by sequence.Engine.
type SequenceRunner interface {
	Execute(ctx context.Context, run *sequence.Run, emit sequence.ProgressFunc) sequence.Result
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Gateway translates frontend requests into calls against the device
// link, the session arbiter, the sequence engine, and the media store.
//
// Every request produces exactly one envelope carrying the caller's
// request id. Validation failures never reach the device link. For
// run_capture_set the envelope is delivered asynchronously when the run
// terminates; Handle returns nil on that path.
type Gateway struct {
	commander      devlink.Commander
	arbiter        *session.Arbiter
	runner         SequenceRunner
	store          MediaStore
	captureTimeout time.Duration
	logger         Logger
}

// NewGateway creates a gateway.
//
// Parameters:
//   - commander: Device link for pass-through commands
//   - arbiter: Slot authority for streams and sequences
//   - runner: Sequence engine
//   - store: Capture-set store
//   - captureTimeout: Request budget for capture_image (0 for link default)
//   - logger: Optional logger (nil for silent operation)
func NewGateway(commander devlink.Commander, arbiter *session.Arbiter, runner SequenceRunner, store MediaStore, captureTimeout time.Duration, logger Logger) *Gateway {
	return &Gateway{
		commander:      commander,
		arbiter:        arbiter,
		runner:         runner,
		store:          store,
		captureTimeout: captureTimeout,
		logger:         logger,
	}
}

// Handle processes one raw frontend message and returns its envelope.
//
// The request id is recovered from the raw input before structural
// validation so even malformed requests get their envelope back. A nil
// return means the response will be delivered asynchronously
// (run_capture_set).
func (g *Gateway) Handle(ctx context.Context, client ClientConn, raw []byte) *Envelope {
	// Best-effort id extraction so even structurally invalid requests get
	// their envelope back under the caller's id.
	var probe struct {
		RequestID string `json:"request_id"`
	}
	json.Unmarshal(raw, &probe) //nolint:errcheck // Partial decode of possibly malformed input

	var req ClientRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return errorEnvelope("", "malformed request: "+err.Error(), probe.RequestID)
	}
	if req.Action == "" {
		return errorEnvelope("", "action is required", req.RequestID)
	}

	switch req.Action {
	case ActionPing:
		return successEnvelope(ActionPing, "pong", req.RequestID)

	case ActionListCameras, ActionSelectCamera, ActionDeselectCamera,
		ActionGetConfig, ActionGetLightStates:
		return g.passthrough(ctx, req, 0)

	case ActionSetConfig:
		var p struct {
			Name  string          `json:"name"`
			Value json.RawMessage `json:"value"`
		}
		if err := json.Unmarshal(req.Payload, &p); err != nil || p.Name == "" || len(p.Value) == 0 {
			return errorEnvelope(req.Action, "set_config requires name and value", req.RequestID)
		}
		return g.passthrough(ctx, req, 0)

	case ActionSetLightState:
		var p struct {
			Light string `json:"light"`
			On    *bool  `json:"on"`
		}
		if err := json.Unmarshal(req.Payload, &p); err != nil || p.Light == "" || p.On == nil {
			return errorEnvelope(req.Action, "set_light_state requires light and on", req.RequestID)
		}
		return g.passthrough(ctx, req, 0)

	case ActionCaptureImage:
		return g.passthrough(ctx, req, g.captureTimeout)

	case ActionStartStream:
		return g.handleStartStream(ctx, client, req)

	case ActionStopStream:
		return g.handleStopStream(ctx, req)

	case ActionRunCaptureSet:
		return g.handleRunCaptureSet(client, req)

	case ActionListCaptureSets:
		sets, err := g.store.ListSets(ctx)
		if err != nil {
			return errorEnvelope(req.Action, mediaErrorMessage(err), req.RequestID)
		}
		return successEnvelope(req.Action, map[string]any{"sets": sets}, req.RequestID)

	case ActionGetCaptureSet:
		return g.handleGetCaptureSet(ctx, req)

	case ActionDeleteCaptureSet:
		return g.handleDeleteCaptureSet(ctx, req)

	case ActionGetArtifact:
		return g.handleGetArtifact(ctx, req)

	default:
		return errorEnvelope(req.Action, "unknown action: "+req.Action, req.RequestID)
	}
}

// ClientGone cleans up after a frontend client disconnects.
func (g *Gateway) ClientGone(client ClientConn) {
	g.arbiter.HandleClientGone(client, client.ID())
}

// passthrough forwards a request to the device server verbatim and wraps
// the outcome. Transport failures become failure envelopes; device-level
// failures pass the device's error text through unmodified.
func (g *Gateway) passthrough(ctx context.Context, req ClientRequest, timeout time.Duration) *Envelope {
	var payload any
	if len(req.Payload) > 0 {
		payload = req.Payload
	}

	resp, err := g.commander.SendWithTimeout(ctx, req.Action, payload, timeout)
	if err != nil {
		return errorEnvelope(req.Action, err.Error(), req.RequestID)
	}

	return &Envelope{
		Action:    req.Action,
		Success:   resp.Success,
		Data:      resp.Data,
		Error:     resp.Error,
		RequestID: req.RequestID,
	}
}

func (g *Gateway) handleStartStream(ctx context.Context, client ClientConn, req ClientRequest) *Envelope {
	if client == nil {
		return errorEnvelope(req.Action, "start_stream requires a websocket connection", req.RequestID)
	}

	if !g.arbiter.AcquireStream(client) {
		return errorEnvelope(req.Action, "stream already active", req.RequestID)
	}

	resp, err := g.commander.SendWithTimeout(ctx, ActionStartStream, nil, 0)
	if err != nil {
		g.arbiter.ReleaseStream()
		return errorEnvelope(req.Action, err.Error(), req.RequestID)
	}
	if !resp.Success {
		g.arbiter.ReleaseStream()
		return errorEnvelope(req.Action, resp.Error, req.RequestID)
	}

	return successEnvelope(req.Action, resp.Data, req.RequestID)
}

func (g *Gateway) handleStopStream(ctx context.Context, req ClientRequest) *Envelope {
	resp, err := g.commander.SendWithTimeout(ctx, ActionStopStream, nil, 0)
	g.arbiter.ReleaseStream()

	if err != nil {
		return errorEnvelope(req.Action, err.Error(), req.RequestID)
	}
	return &Envelope{
		Action:    req.Action,
		Success:   resp.Success,
		Data:      resp.Data,
		Error:     resp.Error,
		RequestID: req.RequestID,
	}
}

func (g *Gateway) handleRunCaptureSet(client ClientConn, req ClientRequest) *Envelope {
	if client == nil {
		return errorEnvelope(req.Action, "run_capture_set requires a websocket connection", req.RequestID)
	}

	var p struct {
		Name   string   `json:"name"`
		Lights []string `json:"lights"`
	}
	if err := json.Unmarshal(req.Payload, &p); err != nil {
		return errorEnvelope(req.Action, "run_capture_set requires a lights list", req.RequestID)
	}
	if len(p.Lights) == 0 {
		return errorEnvelope(req.Action, "run_capture_set requires a non-empty lights list", req.RequestID)
	}
	for _, light := range p.Lights {
		if light == "" {
			return errorEnvelope(req.Action, "light names must not be empty", req.RequestID)
		}
	}

	name := p.Name
	if name == "" {
		name = "set-" + uuid.NewString()[:8]
	}

	runID, err := g.arbiter.AcquireSequence(client.ID())
	if err != nil {
		if errors.Is(err, session.ErrSequenceActive) {
			return errorEnvelope(req.Action, "capture sequence already running", req.RequestID)
		}
		return errorEnvelope(req.Action, err.Error(), req.RequestID)
	}

	run := sequence.NewRun(runID, name, p.Lights)
	go g.executeRun(client, req.RequestID, run)

	// The final envelope is delivered when the run terminates.
	return nil
}

// executeRun drives one sequence to completion, forwarding progress and
// the final result to the owning client under the original request id.
func (g *Gateway) executeRun(client ClientConn, requestID string, run *sequence.Run) {
	emit := func(p sequence.Progress) {
		if g.arbiter.RunAbandoned(run.ID) {
			return
		}
		client.SendEnvelope(successEnvelope(ActionProgress, p, requestID))
	}

	result := g.runner.Execute(context.Background(), run, emit)

	if g.arbiter.RunAbandoned(run.ID) {
		g.logWarn("capture set finished for a disconnected client", "set_name", result.SetName, "status", result.Status)
	} else {
		env := &Envelope{
			Action:    ActionRunCaptureSet,
			Success:   result.Status == sequence.StatusCompleted,
			Data:      result,
			RequestID: requestID,
		}
		if result.Status != sequence.StatusCompleted {
			env.Error = result.ErrorDetail
		}
		client.SendEnvelope(env)
	}

	g.arbiter.ReleaseSequence(run.ID)
}

func (g *Gateway) handleGetCaptureSet(ctx context.Context, req ClientRequest) *Envelope {
	var p struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(req.Payload, &p); err != nil || p.Name == "" {
		return errorEnvelope(req.Action, "get_capture_set requires name", req.RequestID)
	}

	set, artifacts, err := g.store.GetSet(ctx, p.Name)
	if err != nil {
		return errorEnvelope(req.Action, mediaErrorMessage(err), req.RequestID)
	}

	return successEnvelope(req.Action, map[string]any{
		"set":       set,
		"artifacts": artifacts,
	}, req.RequestID)
}

func (g *Gateway) handleDeleteCaptureSet(ctx context.Context, req ClientRequest) *Envelope {
	var p struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(req.Payload, &p); err != nil || p.Name == "" {
		return errorEnvelope(req.Action, "delete_capture_set requires name", req.RequestID)
	}

	if err := g.store.DeleteSet(ctx, p.Name); err != nil {
		return errorEnvelope(req.Action, mediaErrorMessage(err), req.RequestID)
	}

	return successEnvelope(req.Action, map[string]any{"deleted": p.Name}, req.RequestID)
}

func (g *Gateway) handleGetArtifact(ctx context.Context, req ClientRequest) *Envelope {
	var p struct {
		SetName  string `json:"set_name"`
		Filename string `json:"filename"`
	}
	if err := json.Unmarshal(req.Payload, &p); err != nil || p.SetName == "" || p.Filename == "" {
		return errorEnvelope(req.Action, "get_artifact requires set_name and filename", req.RequestID)
	}

	data, mimetype, err := g.store.ReadArtifact(ctx, p.SetName, p.Filename)
	if err != nil {
		return errorEnvelope(req.Action, mediaErrorMessage(err), req.RequestID)
	}

	return successEnvelope(req.Action, map[string]any{
		"set_name": p.SetName,
		"filename": p.Filename,
		"mimetype": mimetype,
		"image":    base64.StdEncoding.EncodeToString(data),
	}, req.RequestID)
}

// mediaErrorMessage maps store errors to client-facing text.
func mediaErrorMessage(err error) string {
	switch {
	case errors.Is(err, media.ErrSetNotFound):
		return "capture set not found"
	case errors.Is(err, media.ErrArtifactNotFound):
		return "artifact not found"
	case errors.Is(err, media.ErrInvalidName):
		return "invalid set name"
	case errors.Is(err, media.ErrUnsafePath):
		return "invalid path"
	default:
		return fmt.Sprintf("storage error: %v", err)
	}
}

func (g *Gateway) logWarn(msg string, keysAndValues ...any) {
	if g.logger != nil {
		g.logger.Warn(msg, keysAndValues...)
	}
}
