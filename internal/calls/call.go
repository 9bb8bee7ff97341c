// Package calls implements the per-channel call state machine, the switch
// event relay and the call-level service operations. Channel state is read
// from the switch on demand and the only daemon-defined record (the channel
// cache entry) is persisted switch-side, so a daemon restart loses nothing.
package calls

import (
	"time"

	"github.com/wazo-platform/wazo-calld-sub001/internal/switchctl"
)

// Call is the REST/bus representation of one channel.
type Call struct {
	ID             string    `json:"call_id"`
	UserUUID       string    `json:"user_uuid"`
	TenantUUID     string    `json:"tenant_uuid"`
	Status         string    `json:"status"`
	Direction      string    `json:"direction"`
	CallerIDName   string    `json:"caller_id_name"`
	CallerIDNumber string    `json:"caller_id_number"`
	OnHold         bool      `json:"on_hold"`
	Muted          bool      `json:"muted"`
	RecordActive   bool      `json:"record_active"`
	TalkingTo      []string  `json:"talking_to"`
	DialedExten    string    `json:"dialed_extension"`
	CreationTime   time.Time `json:"creation_time"`
}

// Snapshot builds the Call view of a channel from the switch's current
// state. It returns switchctl.ErrNotFound (wrapped) when the channel is
// gone; callers decide whether that is an error or an expected race.
func Snapshot(acc *switchctl.Accessor, channelID string) (Call, error) {
	info, err := acc.Info(channelID)
	if err != nil {
		return Call{}, err
	}
	return snapshotFromInfo(acc, info)
}

func snapshotFromInfo(acc *switchctl.Accessor, info switchctl.ChannelInfo) (Call, error) {
	call := Call{
		ID:             info.ID,
		Status:         info.State,
		CallerIDName:   info.CallerName,
		CallerIDNumber: info.CallerNumber,
		DialedExten:    info.Extension,
		CreationTime:   info.CreatedAt,
	}

	var err error
	if call.UserUUID, err = acc.UserUUID(info.ID); err != nil {
		return Call{}, err
	}
	if call.TenantUUID, err = acc.TenantUUID(info.ID); err != nil {
		return Call{}, err
	}
	if call.Direction, err = acc.Client().ChannelVariable(info.ID, switchctl.VarCallDirection); err != nil {
		return Call{}, err
	}
	if call.OnHold, err = acc.OnHold(info.ID); err != nil {
		return Call{}, err
	}
	if call.Muted, err = acc.Muted(info.ID); err != nil {
		return Call{}, err
	}
	if call.RecordActive, err = acc.Recorded(info.ID); err != nil {
		return Call{}, err
	}

	peers, err := acc.ConnectedChannelIDs(info.ID)
	if err != nil {
		return Call{}, err
	}
	call.TalkingTo = peers
	return call, nil
}
