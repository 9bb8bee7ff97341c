// Package switchboard orchestrates the two well-known holding bridges of a
// switchboard: the queue bridge, where incoming calls wait to be answered,
// and the hold bridge, where answered calls are parked. The bridges are
// created lazily on the switch and their membership is the only record of
// which calls are queued or held; the daemon keeps no list of its own.
package switchboard

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wazo-platform/wazo-calld-sub001/internal/bus"
	"github.com/wazo-platform/wazo-calld-sub001/internal/confd"
	"github.com/wazo-platform/wazo-calld-sub001/internal/errs"
	"github.com/wazo-platform/wazo-calld-sub001/internal/switchctl"
)

// Domain event names published by the switchboard subsystem.
const (
	EventQueuedCallsUpdated = "switchboard_queued_calls_updated"
	EventQueuedCallAnswered = "switchboard_queued_call_answered"
	EventHeldCallsUpdated   = "switchboard_held_calls_updated"
	EventHeldCallAnswered   = "switchboard_held_call_answered"
)

const defaultMusicOnHold = "default"

// QueueBridgeID returns the well-known queue bridge id of a switchboard.
func QueueBridgeID(switchboardUUID string) string {
	return "switchboard:" + switchboardUUID + ":queue"
}

// HoldBridgeID returns the well-known hold bridge id of a switchboard.
func HoldBridgeID(switchboardUUID string) string {
	return "switchboard:" + switchboardUUID + ":hold"
}

// Directory is the slice of the directory service the orchestrator needs.
type Directory interface {
	Switchboard(ctx context.Context, switchboardUUID string) (confd.Switchboard, error)
	UserLines(ctx context.Context, userUUID string) ([]confd.Line, error)
}

// QueuedCall is one waiting call as presented to API consumers.
type QueuedCall struct {
	ID             string `json:"call_id"`
	CallerIDName   string `json:"caller_id_name"`
	CallerIDNumber string `json:"caller_id_number"`
}

// Orchestrator implements the switchboard operations. Both mutexes are
// process-wide and shared across all switchboards: queued calls are
// contended by idle operators, so answer attempts serialize; hold
// serializes to stay idempotent under concurrent requests.
type Orchestrator struct {
	acc       *switchctl.Accessor
	pub       bus.Publisher
	directory Directory
	app       string

	answerMu sync.Mutex
	holdMu   sync.Mutex

	// afterFunc schedules the no-answer callback; replaced in tests.
	afterFunc func(d time.Duration, fn func())
	// newID mints answer bridge ids; replaced in tests.
	newID func() string
}

// NewOrchestrator builds the switchboard orchestrator. app is the control
// application operator channels are originated into.
func NewOrchestrator(acc *switchctl.Accessor, pub bus.Publisher, directory Directory, app string) *Orchestrator {
	return &Orchestrator{
		acc:       acc,
		pub:       pub,
		directory: directory,
		app:       app,
		afterFunc: func(d time.Duration, fn func()) { time.AfterFunc(d, fn) },
		newID:     uuid.NewString,
	}
}

func (o *Orchestrator) verifySwitchboard(ctx context.Context, switchboardUUID string) (confd.Switchboard, error) {
	sb, err := o.directory.Switchboard(ctx, switchboardUUID)
	if err != nil {
		if confd.IsNotFound(err) {
			return confd.Switchboard{}, errs.SwitchboardNotFound(switchboardUUID)
		}
		return confd.Switchboard{}, err
	}
	return sb, nil
}

// ensureHoldingBridge creates the holding bridge on first use, starting
// music-on-hold only on creation.
func (o *Orchestrator) ensureHoldingBridge(bridgeID, musicOnHold string) error {
	if _, err := o.acc.Client().BridgeData(bridgeID); err == nil {
		return nil
	} else if !switchctl.IsNotFound(err) {
		return err
	}
	if _, err := o.acc.Client().CreateBridge(bridgeID, switchctl.BridgeKindHolding); err != nil {
		return err
	}
	if musicOnHold == "" {
		musicOnHold = defaultMusicOnHold
	}
	return o.acc.Client().StartMusicOnHold(bridgeID, musicOnHold)
}

// Enqueue answers the channel and parks it in the switchboard's queue
// bridge. When the channel carries both a numeric no-answer timeout and a
// fallback action, a deferred timeout check is scheduled; the timer is
// never cancelled, it re-validates queue membership when it fires.
func (o *Orchestrator) Enqueue(ctx context.Context, tenantUUID, switchboardUUID, channelID string) error {
	sb, err := o.verifySwitchboard(ctx, switchboardUUID)
	if err != nil {
		return err
	}
	exists, err := o.acc.Exists(channelID)
	if err != nil {
		return err
	}
	if !exists {
		return errs.CallNotFound(channelID)
	}

	if err := o.ensureHoldingBridge(QueueBridgeID(switchboardUUID), sb.QueueMusicOnHold); err != nil {
		return fmt.Errorf("ensure queue bridge for switchboard %s: %w", switchboardUUID, err)
	}
	if err := o.acc.Client().Answer(channelID); err != nil {
		return translateSwitchError(err, channelID)
	}
	if err := o.acc.Client().AddChannel(QueueBridgeID(switchboardUUID), channelID); err != nil {
		return translateSwitchError(err, channelID)
	}
	if err := o.acc.SetVariable(channelID, switchctl.VarSwitchboardQueue, switchboardUUID); err != nil {
		return translateSwitchError(err, channelID)
	}
	if err := o.acc.SetVariable(channelID, switchctl.VarTenantUUID, tenantUUID); err != nil {
		return translateSwitchError(err, channelID)
	}

	slog.Info("call queued on switchboard",
		"switchboard_uuid", switchboardUUID,
		"call_id", channelID,
	)
	o.publishQueuedCalls(ctx, tenantUUID, switchboardUUID)

	o.scheduleNoAnswer(switchboardUUID, channelID)
	return nil
}

func (o *Orchestrator) scheduleNoAnswer(switchboardUUID, channelID string) {
	timeoutValue, err := o.acc.Client().ChannelVariable(channelID, switchctl.VarSwitchboardTimeout)
	if err != nil || timeoutValue == "" {
		return
	}
	fallback, err := o.acc.Client().ChannelVariable(channelID, switchctl.VarSwitchboardFallback)
	if err != nil || fallback == "" {
		return
	}
	seconds, err := strconv.Atoi(timeoutValue)
	if err != nil || seconds <= 0 {
		slog.Error("invalid switchboard no-answer timeout",
			"call_id", channelID,
			"timeout", timeoutValue,
		)
		return
	}
	o.afterFunc(time.Duration(seconds)*time.Second, func() {
		if err := o.NoAnswerTimeout(context.Background(), switchboardUUID, channelID); err != nil {
			slog.Error("switchboard no-answer fallback failed",
				"switchboard_uuid", switchboardUUID,
				"call_id", channelID,
				"error", err,
			)
		}
	})
}

// NoAnswerTimeout fires after the scheduled no-answer delay. The channel
// may have been answered or hung up meanwhile, so queue membership is
// re-checked first; a channel no longer queued makes this a silent no-op.
func (o *Orchestrator) NoAnswerTimeout(ctx context.Context, switchboardUUID, channelID string) error {
	queued, err := o.acc.InBridge(QueueBridgeID(switchboardUUID), channelID)
	if err != nil {
		return err
	}
	if !queued {
		slog.Debug("no-answer timer fired for a call no longer queued",
			"switchboard_uuid", switchboardUUID,
			"call_id", channelID,
		)
		return nil
	}

	fallback, err := o.acc.Client().ChannelVariable(channelID, switchctl.VarSwitchboardFallback)
	if err != nil {
		return translateSwitchError(err, channelID)
	}
	extension, dialContext := splitFallback(fallback)
	if dialContext == "" {
		info, err := o.acc.Info(channelID)
		if err != nil {
			return translateSwitchError(err, channelID)
		}
		dialContext = info.Context
	}

	if err := o.acc.Client().ContinueInDialplan(channelID, dialContext, extension, 1); err != nil {
		return translateSwitchError(err, channelID)
	}
	slog.Info("queued call redirected to no-answer fallback",
		"switchboard_uuid", switchboardUUID,
		"call_id", channelID,
		"extension", extension,
		"context", dialContext,
	)

	tenant, _ := o.acc.TenantUUID(channelID)
	o.publishQueuedCalls(ctx, tenant, switchboardUUID)
	return nil
}

// splitFallback parses a fallback action of the form "extension" or
// "extension@context".
func splitFallback(action string) (extension, context string) {
	if at := strings.IndexByte(action, '@'); at >= 0 {
		return action[:at], action[at+1:]
	}
	return action, ""
}

// AnswerQueued originates an operator channel toward the user's line to
// answer a queued call, then removes the call from the queue bridge. The
// whole sequence runs under the answer lock: of two racing answers for the
// same call, exactly one observes it queued; the loser gets not-found.
func (o *Orchestrator) AnswerQueued(ctx context.Context, tenantUUID, switchboardUUID, queuedCallID, userUUID string, lineID int) (string, error) {
	o.answerMu.Lock()
	defer o.answerMu.Unlock()
	return o.answer(ctx, answerRequest{
		tenantUUID:      tenantUUID,
		switchboardUUID: switchboardUUID,
		callID:          queuedCallID,
		userUUID:        userUUID,
		lineID:          lineID,
		bridgeID:        QueueBridgeID(switchboardUUID),
		notQueuedID:     "no-such-queued-call",
		answeredEvent:   EventQueuedCallAnswered,
	})
}

// AnswerHeld answers a call parked in the hold bridge. Held calls are not
// contended the way queued calls are, so no race lock is taken; a
// double-answer is acceptable as best effort.
func (o *Orchestrator) AnswerHeld(ctx context.Context, tenantUUID, switchboardUUID, heldCallID, userUUID string, lineID int) (string, error) {
	return o.answer(ctx, answerRequest{
		tenantUUID:      tenantUUID,
		switchboardUUID: switchboardUUID,
		callID:          heldCallID,
		userUUID:        userUUID,
		lineID:          lineID,
		bridgeID:        HoldBridgeID(switchboardUUID),
		notQueuedID:     "no-such-held-call",
		answeredEvent:   EventHeldCallAnswered,
	})
}

type answerRequest struct {
	tenantUUID      string
	switchboardUUID string
	callID          string
	userUUID        string
	lineID          int
	bridgeID        string
	notQueuedID     string
	answeredEvent   string
}

func (o *Orchestrator) answer(ctx context.Context, req answerRequest) (string, error) {
	if _, err := o.verifySwitchboard(ctx, req.switchboardUUID); err != nil {
		return "", err
	}

	present, err := o.acc.InBridge(req.bridgeID, req.callID)
	if err != nil {
		return "", err
	}
	if !present {
		return "", errs.NotFound(req.notQueuedID, "no such waiting call",
			map[string]any{"call_id": req.callID, "switchboard_uuid": req.switchboardUUID})
	}

	line, err := o.resolveLine(ctx, req.userUUID, req.lineID)
	if err != nil {
		return "", err
	}

	waiting, err := o.acc.Info(req.callID)
	if err != nil {
		return "", translateSwitchError(err, req.callID)
	}

	operatorID, err := o.acc.Client().Originate(switchctl.OriginateRequest{
		Endpoint: line.Endpoint,
		App:      o.app,
		AppArgs:  []string{switchctl.AppArgSwitchboardAnswer, req.switchboardUUID, req.callID},
		CallerID: fmt.Sprintf("%q <%s>", waiting.CallerName, waiting.CallerNumber),
		Timeout:  30,
		Variables: map[string]string{
			switchctl.VarUserUUID:         req.userUUID,
			switchctl.VarTenantUUID:       req.tenantUUID,
			switchctl.VarSwitchboardQueue: req.switchboardUUID,
		},
	})
	if err != nil {
		return "", fmt.Errorf("originate operator channel on line %d: %w", line.ID, err)
	}

	if err := o.acc.Client().RemoveChannel(req.bridgeID, req.callID); err != nil && !switchctl.IsNotFound(err) {
		return "", err
	}

	slog.Info("switchboard call answered",
		"switchboard_uuid", req.switchboardUUID,
		"call_id", req.callID,
		"operator_call_id", operatorID,
		"user_uuid", req.userUUID,
	)
	o.publish(ctx, bus.Message{
		Name:       req.answeredEvent,
		TenantUUID: req.tenantUUID,
		UserUUIDs:  []string{req.userUUID},
		Payload: map[string]any{
			"switchboard_uuid": req.switchboardUUID,
			"call_id":          req.callID,
			"operator_call_id": operatorID,
		},
	})
	if req.bridgeID == QueueBridgeID(req.switchboardUUID) {
		o.publishQueuedCalls(ctx, req.tenantUUID, req.switchboardUUID)
	} else {
		o.publishHeldCalls(ctx, req.tenantUUID, req.switchboardUUID)
	}
	return operatorID, nil
}

func (o *Orchestrator) resolveLine(ctx context.Context, userUUID string, lineID int) (confd.Line, error) {
	lines, err := o.directory.UserLines(ctx, userUUID)
	if err != nil {
		if confd.IsNotFound(err) {
			return confd.Line{}, errs.NotFound("no-such-user", "no such user",
				map[string]any{"user_uuid": userUUID})
		}
		return confd.Line{}, err
	}
	if len(lines) == 0 {
		return confd.Line{}, errs.Invalid("user-has-no-line", "user has no line to answer from",
			map[string]any{"user_uuid": userUUID})
	}
	if lineID == 0 {
		return lines[0], nil
	}
	for _, line := range lines {
		if line.ID == lineID {
			return line, nil
		}
	}
	return confd.Line{}, errs.NotFound("no-such-line", "user has no such line",
		map[string]any{"user_uuid": userUUID, "line_id": lineID})
}

// HoldCall parks an answered call in the switchboard's hold bridge. The
// operation is idempotent under the hold lock: a call already held is left
// untouched. Any bridge the call just left that is reduced to a single
// channel has that lone channel hung up.
func (o *Orchestrator) HoldCall(ctx context.Context, tenantUUID, switchboardUUID, callID string) error {
	o.holdMu.Lock()
	defer o.holdMu.Unlock()

	sb, err := o.verifySwitchboard(ctx, switchboardUUID)
	if err != nil {
		return err
	}

	held, err := o.acc.InBridge(HoldBridgeID(switchboardUUID), callID)
	if err != nil {
		return err
	}
	if held {
		return nil
	}

	exists, err := o.acc.Exists(callID)
	if err != nil {
		return err
	}
	if !exists {
		return errs.CallNotFound(callID)
	}

	former, err := o.acc.BridgesContaining(callID)
	if err != nil {
		return err
	}

	if err := o.ensureHoldingBridge(HoldBridgeID(switchboardUUID), sb.HoldMusicOnHold); err != nil {
		return fmt.Errorf("ensure hold bridge for switchboard %s: %w", switchboardUUID, err)
	}
	if err := o.acc.Client().AddChannel(HoldBridgeID(switchboardUUID), callID); err != nil {
		return translateSwitchError(err, callID)
	}
	if err := o.acc.SetVariable(callID, switchctl.VarSwitchboardHold, switchboardUUID); err != nil {
		return translateSwitchError(err, callID)
	}

	slog.Info("call held on switchboard",
		"switchboard_uuid", switchboardUUID,
		"call_id", callID,
	)
	o.publishHeldCalls(ctx, tenantUUID, switchboardUUID)

	o.hangupLoneRemainders(former, callID)
	return nil
}

// hangupLoneRemainders hangs up the single remaining channel of any bridge
// the held call just left. One party left in a bridge has nothing to talk
// to.
func (o *Orchestrator) hangupLoneRemainders(former []switchctl.BridgeInfo, movedChannelID string) {
	for _, bridge := range former {
		current, err := o.acc.Client().BridgeData(bridge.ID)
		if err != nil {
			if !switchctl.IsNotFound(err) {
				slog.Error("failed to inspect abandoned bridge", "bridge_id", bridge.ID, "error", err)
			}
			continue
		}
		if len(current.ChannelIDs) != 1 || current.ChannelIDs[0] == movedChannelID {
			continue
		}
		if err := o.acc.Client().Hangup(current.ChannelIDs[0]); err != nil && !switchctl.IsNotFound(err) {
			slog.Error("failed to hang up lone bridge remainder",
				"bridge_id", bridge.ID,
				"call_id", current.ChannelIDs[0],
				"error", err,
			)
		}
	}
}

// QueuedCalls lists the calls waiting in the queue bridge.
func (o *Orchestrator) QueuedCalls(ctx context.Context, switchboardUUID string) ([]QueuedCall, error) {
	if _, err := o.verifySwitchboard(ctx, switchboardUUID); err != nil {
		return nil, err
	}
	return o.bridgeCalls(QueueBridgeID(switchboardUUID))
}

// HeldCalls lists the calls parked in the hold bridge.
func (o *Orchestrator) HeldCalls(ctx context.Context, switchboardUUID string) ([]QueuedCall, error) {
	if _, err := o.verifySwitchboard(ctx, switchboardUUID); err != nil {
		return nil, err
	}
	return o.bridgeCalls(HoldBridgeID(switchboardUUID))
}

// bridgeCalls snapshots the members of a lazily created bridge. A missing
// bridge means no calls, not an error.
func (o *Orchestrator) bridgeCalls(bridgeID string) ([]QueuedCall, error) {
	bridge, err := o.acc.Client().BridgeData(bridgeID)
	if err != nil {
		if switchctl.IsNotFound(err) {
			return []QueuedCall{}, nil
		}
		return nil, err
	}
	calls := make([]QueuedCall, 0, len(bridge.ChannelIDs))
	for _, channelID := range bridge.ChannelIDs {
		info, err := o.acc.Info(channelID)
		if err != nil {
			// The channel can hang up between the bridge read and here.
			if switchctl.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		calls = append(calls, QueuedCall{
			ID:             info.ID,
			CallerIDName:   info.CallerName,
			CallerIDNumber: info.CallerNumber,
		})
	}
	return calls, nil
}

func (o *Orchestrator) publishQueuedCalls(ctx context.Context, tenantUUID, switchboardUUID string) {
	calls, err := o.bridgeCalls(QueueBridgeID(switchboardUUID))
	if err != nil {
		slog.Error("failed to list queued calls for event", "switchboard_uuid", switchboardUUID, "error", err)
		return
	}
	o.publish(ctx, bus.Message{
		Name:       EventQueuedCallsUpdated,
		TenantUUID: tenantUUID,
		Payload: map[string]any{
			"switchboard_uuid": switchboardUUID,
			"items":            calls,
		},
	})
}

func (o *Orchestrator) publishHeldCalls(ctx context.Context, tenantUUID, switchboardUUID string) {
	calls, err := o.bridgeCalls(HoldBridgeID(switchboardUUID))
	if err != nil {
		slog.Error("failed to list held calls for event", "switchboard_uuid", switchboardUUID, "error", err)
		return
	}
	o.publish(ctx, bus.Message{
		Name:       EventHeldCallsUpdated,
		TenantUUID: tenantUUID,
		Payload: map[string]any{
			"switchboard_uuid": switchboardUUID,
			"items":            calls,
		},
	})
}

func (o *Orchestrator) publish(ctx context.Context, msg bus.Message) {
	msg.RoutingKey = "switchboards." + msg.Name
	if err := o.pub.Publish(ctx, msg); err != nil {
		slog.Error("failed to publish switchboard event", "event", msg.Name, "error", err)
	}
}

func translateSwitchError(err error, callID string) error {
	if switchctl.IsNotFound(err) {
		return errs.CallNotFound(callID)
	}
	return err
}
