package calls

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wazo-platform/wazo-calld-sub001/internal/amid"
	"github.com/wazo-platform/wazo-calld-sub001/internal/bus"
	"github.com/wazo-platform/wazo-calld-sub001/internal/confd"
	"github.com/wazo-platform/wazo-calld-sub001/internal/errs"
	"github.com/wazo-platform/wazo-calld-sub001/internal/switchctl"
)

// Directory is the slice of the directory service the call service needs.
type Directory interface {
	UserLines(ctx context.Context, userUUID string) ([]confd.Line, error)
}

// Service exposes the call-level REST operations. It is stateless: every
// operation round-trips to the switch.
type Service struct {
	acc       *switchctl.Accessor
	pub       bus.Publisher
	ami       amid.Actioner
	directory Directory
}

// NewService builds the call service.
func NewService(acc *switchctl.Accessor, pub bus.Publisher, ami amid.Actioner, directory Directory) *Service {
	return &Service{acc: acc, pub: pub, ami: ami, directory: directory}
}

// List returns a snapshot of every visible call. Local pairing legs are
// filtered out: they are switch plumbing, not calls.
func (s *Service) List(ctx context.Context) ([]Call, error) {
	infos, err := s.acc.Client().ListChannels()
	if err != nil {
		return nil, err
	}
	result := make([]Call, 0, len(infos))
	for _, info := range infos {
		if switchctl.IsLocal(info) {
			continue
		}
		call, err := snapshotFromInfo(s.acc, info)
		if err != nil {
			// The channel can vanish between list and snapshot.
			if switchctl.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		result = append(result, call)
	}
	return result, nil
}

// Get returns one call by id.
func (s *Service) Get(ctx context.Context, callID string) (Call, error) {
	call, err := Snapshot(s.acc, callID)
	if err != nil {
		if switchctl.IsNotFound(err) {
			return Call{}, errs.CallNotFound(callID)
		}
		return Call{}, err
	}
	return call, nil
}

// OriginateParams describes an outgoing call request.
type OriginateParams struct {
	Extension  string
	Context    string
	UserUUID   string
	TenantUUID string
}

// Originate starts an outgoing call from the user's line toward
// extension@context. The new channel id is the call id from the moment the
// switch reports it.
func (s *Service) Originate(ctx context.Context, params OriginateParams) (Call, error) {
	if params.Extension == "" || params.Context == "" {
		return Call{}, errs.Invalid("invalid-originate", "extension and context are required", nil)
	}

	lines, err := s.directory.UserLines(ctx, params.UserUUID)
	if err != nil {
		return Call{}, translateDirectoryError(err, "user", params.UserUUID)
	}
	if len(lines) == 0 {
		return Call{}, errs.Invalid("user-has-no-line", "user has no line to originate from",
			map[string]any{"user_uuid": params.UserUUID})
	}

	channelID, err := s.acc.Client().Originate(switchctl.OriginateRequest{
		Endpoint:  lines[0].Endpoint,
		Extension: params.Extension,
		Context:   params.Context,
		Priority:  1,
		CallerID:  params.Extension,
		Timeout:   30,
		Variables: map[string]string{
			switchctl.VarUserUUID:      params.UserUUID,
			switchctl.VarTenantUUID:    params.TenantUUID,
			switchctl.VarCallDirection: "outbound",
		},
	})
	if err != nil {
		return Call{}, fmt.Errorf("originate toward %s@%s: %w", params.Extension, params.Context, err)
	}

	slog.Info("call originated",
		"call_id", channelID,
		"user_uuid", params.UserUUID,
		"extension", params.Extension,
		"context", params.Context,
	)

	call, err := Snapshot(s.acc, channelID)
	if err != nil {
		if switchctl.IsNotFound(err) {
			// Hung up in the window between originate and snapshot.
			return Call{}, errs.CallNotFound(channelID)
		}
		return Call{}, err
	}
	publishCall(ctx, s.pub, EventCallCreated, call)
	return call, nil
}

// Hangup terminates the call. When userUUID is non-empty the call must
// belong to that user.
func (s *Service) Hangup(ctx context.Context, callID, userUUID string) error {
	if err := s.verify(callID, userUUID); err != nil {
		return err
	}
	if err := s.acc.Client().Hangup(callID); err != nil {
		if switchctl.IsNotFound(err) {
			return errs.CallNotFound(callID)
		}
		return err
	}
	return nil
}

// Hold flags the call held and announces it. Idempotent.
func (s *Service) Hold(ctx context.Context, callID, userUUID string) error {
	if err := s.verify(callID, userUUID); err != nil {
		return err
	}
	if err := s.acc.SetVariable(callID, switchctl.VarOnHold, "true"); err != nil {
		return translateSwitchError(err, callID)
	}
	s.publishSnapshot(ctx, EventCallHeld, callID)
	return nil
}

// Unhold clears the hold flag and announces the resume. Idempotent.
func (s *Service) Unhold(ctx context.Context, callID, userUUID string) error {
	if err := s.verify(callID, userUUID); err != nil {
		return err
	}
	if err := s.acc.SetVariable(callID, switchctl.VarOnHold, "false"); err != nil {
		return translateSwitchError(err, callID)
	}
	s.publishSnapshot(ctx, EventCallResumed, callID)
	return nil
}

// Mute silences the call's audio through the manager protocol.
func (s *Service) Mute(ctx context.Context, callID, userUUID string) error {
	return s.setMute(ctx, callID, userUUID, true)
}

// Unmute reverses Mute.
func (s *Service) Unmute(ctx context.Context, callID, userUUID string) error {
	return s.setMute(ctx, callID, userUUID, false)
}

func (s *Service) setMute(ctx context.Context, callID, userUUID string, muted bool) error {
	if err := s.verify(callID, userUUID); err != nil {
		return err
	}
	info, err := s.acc.Info(callID)
	if err != nil {
		return translateSwitchError(err, callID)
	}
	if err := amid.MuteAudio(s.ami, info.Name, muted); err != nil {
		return fmt.Errorf("mute %s: %w", callID, err)
	}
	value := "false"
	if muted {
		value = "true"
	}
	if err := s.acc.SetVariable(callID, switchctl.VarMuted, value); err != nil {
		return translateSwitchError(err, callID)
	}
	s.publishSnapshot(ctx, EventCallUpdated, callID)
	return nil
}

// StartRecording starts mixed recording of the call.
func (s *Service) StartRecording(ctx context.Context, callID, userUUID string) error {
	if err := s.verify(callID, userUUID); err != nil {
		return err
	}
	info, err := s.acc.Info(callID)
	if err != nil {
		return translateSwitchError(err, callID)
	}
	filename := fmt.Sprintf("/var/lib/wazo/sounds/recordings/%s.wav", callID)
	if err := amid.StartRecording(s.ami, info.Name, filename); err != nil {
		return fmt.Errorf("start recording %s: %w", callID, err)
	}
	return nil
}

// StopRecording stops a running recording of the call.
func (s *Service) StopRecording(ctx context.Context, callID, userUUID string) error {
	if err := s.verify(callID, userUUID); err != nil {
		return err
	}
	info, err := s.acc.Info(callID)
	if err != nil {
		return translateSwitchError(err, callID)
	}
	if err := amid.StopRecording(s.ami, info.Name); err != nil {
		return fmt.Errorf("stop recording %s: %w", callID, err)
	}
	return nil
}

// SendDTMF injects digits on the call through the manager protocol.
func (s *Service) SendDTMF(ctx context.Context, callID, userUUID, digits string) error {
	if err := s.verify(callID, userUUID); err != nil {
		return err
	}
	if digits == "" {
		return errs.Invalid("invalid-dtmf", "digits are required", nil)
	}
	info, err := s.acc.Info(callID)
	if err != nil {
		return translateSwitchError(err, callID)
	}
	for _, digit := range digits {
		if err := amid.PlayDTMF(s.ami, info.Name, string(digit)); err != nil {
			return fmt.Errorf("send dtmf on %s: %w", callID, err)
		}
	}
	return nil
}

// verify checks existence and, when userUUID is non-empty, ownership.
func (s *Service) verify(callID, userUUID string) error {
	exists, err := s.acc.Exists(callID)
	if err != nil {
		return err
	}
	if !exists {
		return errs.CallNotFound(callID)
	}
	if userUUID == "" {
		return nil
	}
	owner, err := s.acc.UserUUID(callID)
	if err != nil {
		return translateSwitchError(err, callID)
	}
	if owner != userUUID {
		return errs.Forbidden("call-not-owned", "call belongs to another user",
			map[string]any{"call_id": callID})
	}
	return nil
}

func (s *Service) publishSnapshot(ctx context.Context, event, callID string) {
	call, err := Snapshot(s.acc, callID)
	if err != nil {
		slog.Error("failed to snapshot call for event", "event", event, "call_id", callID, "error", err)
		return
	}
	publishCall(ctx, s.pub, event, call)
}

func translateSwitchError(err error, callID string) error {
	if switchctl.IsNotFound(err) {
		return errs.CallNotFound(callID)
	}
	return err
}

func translateDirectoryError(err error, resource, id string) error {
	if e, ok := errs.As(err); ok {
		return e
	}
	if confd.IsNotFound(err) {
		return errs.NotFound("no-such-"+resource, "no such "+resource, map[string]any{resource + "_uuid": id})
	}
	return err
}
