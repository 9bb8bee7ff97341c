package switchctl

import (
	"fmt"
	"strings"

	"github.com/CyCoreSystems/ari/v6"
	ptypes "github.com/gogo/protobuf/types"
)

// ARIClient implements Client against a live ARI connection.
type ARIClient struct {
	cl ari.Client
}

// NewARIClient wraps an established ARI client.
func NewARIClient(cl ari.Client) *ARIClient {
	return &ARIClient{cl: cl}
}

func channelKey(id string) *ari.Key { return ari.NewKey(ari.ChannelKey, id) }
func bridgeKey(id string) *ari.Key  { return ari.NewKey(ari.BridgeKey, id) }

// notFound reports whether an ARI error is a 404 from the switch, as
// opposed to a transport or server failure.
func notFound(err error) bool {
	if err == nil {
		return false
	}
	type coder interface{ Code() int }
	if c, ok := err.(coder); ok {
		return c.Code() == 404
	}
	return strings.Contains(err.Error(), "404")
}

func (c *ARIClient) ChannelData(id string) (ChannelInfo, error) {
	data, err := c.cl.Channel().Data(channelKey(id))
	if err != nil {
		if notFound(err) {
			return ChannelInfo{}, fmt.Errorf("channel %s: %w", id, ErrNotFound)
		}
		return ChannelInfo{}, fmt.Errorf("channel data %s: %w", id, err)
	}
	return channelInfoFromData(data), nil
}

func channelInfoFromData(data *ari.ChannelData) ChannelInfo {
	info := ChannelInfo{
		ID:              data.ID,
		Name:            data.Name,
		State:           data.State,
		CallerName:      data.Caller.Name,
		CallerNumber:    data.Caller.Number,
		ConnectedName:   data.Connected.Name,
		ConnectedNumber: data.Connected.Number,
	}
	if t, err := ptypes.TimestampFromProto(data.Creationtime); err == nil {
		info.CreatedAt = t
	}
	if data.Dialplan != nil {
		info.Extension = data.Dialplan.Exten
		info.Context = data.Dialplan.Context
	}
	return info
}

func (c *ARIClient) ListChannels() ([]ChannelInfo, error) {
	keys, err := c.cl.Channel().List(nil)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	infos := make([]ChannelInfo, 0, len(keys))
	for _, key := range keys {
		data, err := c.cl.Channel().Data(key)
		if err != nil {
			// The channel may have been destroyed between list and fetch.
			if notFound(err) {
				continue
			}
			return nil, fmt.Errorf("channel data %s: %w", key.ID, err)
		}
		infos = append(infos, channelInfoFromData(data))
	}
	return infos, nil
}

func (c *ARIClient) ChannelVariable(id, name string) (string, error) {
	value, err := c.cl.Channel().GetVariable(channelKey(id), name)
	if err != nil {
		if notFound(err) {
			// ARI answers 404 both for a missing channel and for an unset
			// variable; disambiguate with a channel fetch.
			if _, derr := c.cl.Channel().Data(channelKey(id)); derr != nil {
				return "", fmt.Errorf("channel %s: %w", id, ErrNotFound)
			}
			return "", nil
		}
		return "", fmt.Errorf("get variable %s on %s: %w", name, id, err)
	}
	return value, nil
}

func (c *ARIClient) SetChannelVariable(id, name, value string) error {
	if err := c.cl.Channel().SetVariable(channelKey(id), name, value); err != nil {
		if notFound(err) {
			return fmt.Errorf("channel %s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("set variable %s on %s: %w", name, id, err)
	}
	return nil
}

func (c *ARIClient) Answer(id string) error {
	if err := c.cl.Channel().Answer(channelKey(id)); err != nil {
		if notFound(err) {
			return fmt.Errorf("channel %s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("answer %s: %w", id, err)
	}
	return nil
}

func (c *ARIClient) Hangup(id string) error {
	if err := c.cl.Channel().Hangup(channelKey(id), "normal"); err != nil {
		if notFound(err) {
			return fmt.Errorf("channel %s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("hangup %s: %w", id, err)
	}
	return nil
}

func (c *ARIClient) ContinueInDialplan(id, context, extension string, priority int) error {
	if err := c.cl.Channel().Continue(channelKey(id), context, extension, priority); err != nil {
		if notFound(err) {
			return fmt.Errorf("channel %s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("continue %s: %w", id, err)
	}
	return nil
}

func (c *ARIClient) MoveToApplication(id, app string, args []string) error {
	if err := c.cl.Channel().Move(channelKey(id), app, strings.Join(args, ",")); err != nil {
		if notFound(err) {
			return fmt.Errorf("channel %s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("move %s to %s: %w", id, app, err)
	}
	return nil
}

func (c *ARIClient) Originate(req OriginateRequest) (string, error) {
	handle, err := c.cl.Channel().Originate(nil, ari.OriginateRequest{
		Endpoint:   req.Endpoint,
		Extension:  req.Extension,
		Context:    req.Context,
		Priority:   int64(req.Priority),
		CallerID:   req.CallerID,
		App:        req.App,
		AppArgs:    strings.Join(req.AppArgs, ","),
		Variables:  req.Variables,
		Originator: req.Originator,
		Timeout:    req.Timeout,
	})
	if err != nil {
		return "", fmt.Errorf("originate %s: %w", req.Endpoint, err)
	}
	return handle.ID(), nil
}

func (c *ARIClient) BridgeData(id string) (BridgeInfo, error) {
	data, err := c.cl.Bridge().Data(bridgeKey(id))
	if err != nil {
		if notFound(err) {
			return BridgeInfo{}, fmt.Errorf("bridge %s: %w", id, ErrNotFound)
		}
		return BridgeInfo{}, fmt.Errorf("bridge data %s: %w", id, err)
	}
	return BridgeInfo{ID: data.ID, Kind: data.Type, ChannelIDs: data.ChannelIDs}, nil
}

func (c *ARIClient) ListBridges() ([]BridgeInfo, error) {
	keys, err := c.cl.Bridge().List(nil)
	if err != nil {
		return nil, fmt.Errorf("list bridges: %w", err)
	}
	infos := make([]BridgeInfo, 0, len(keys))
	for _, key := range keys {
		data, err := c.cl.Bridge().Data(key)
		if err != nil {
			if notFound(err) {
				continue
			}
			return nil, fmt.Errorf("bridge data %s: %w", key.ID, err)
		}
		infos = append(infos, BridgeInfo{ID: data.ID, Kind: data.Type, ChannelIDs: data.ChannelIDs})
	}
	return infos, nil
}

func (c *ARIClient) CreateBridge(id, kind string) (BridgeInfo, error) {
	handle, err := c.cl.Bridge().Create(bridgeKey(id), kind, id)
	if err != nil {
		return BridgeInfo{}, fmt.Errorf("create bridge %s: %w", id, err)
	}
	return BridgeInfo{ID: handle.ID(), Kind: kind}, nil
}

func (c *ARIClient) AddChannel(bridgeID, channelID string) error {
	if err := c.cl.Bridge().AddChannel(bridgeKey(bridgeID), channelID); err != nil {
		if notFound(err) {
			return fmt.Errorf("bridge %s or channel %s: %w", bridgeID, channelID, ErrNotFound)
		}
		return fmt.Errorf("add %s to bridge %s: %w", channelID, bridgeID, err)
	}
	return nil
}

func (c *ARIClient) RemoveChannel(bridgeID, channelID string) error {
	if err := c.cl.Bridge().RemoveChannel(bridgeKey(bridgeID), channelID); err != nil {
		if notFound(err) {
			return fmt.Errorf("bridge %s or channel %s: %w", bridgeID, channelID, ErrNotFound)
		}
		return fmt.Errorf("remove %s from bridge %s: %w", channelID, bridgeID, err)
	}
	return nil
}

func (c *ARIClient) DeleteBridge(id string) error {
	if err := c.cl.Bridge().Delete(bridgeKey(id)); err != nil {
		if notFound(err) {
			return fmt.Errorf("bridge %s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("delete bridge %s: %w", id, err)
	}
	return nil
}

func (c *ARIClient) StartMusicOnHold(bridgeID, class string) error {
	if err := c.cl.Bridge().MOH(bridgeKey(bridgeID), class); err != nil {
		if notFound(err) {
			return fmt.Errorf("bridge %s: %w", bridgeID, ErrNotFound)
		}
		return fmt.Errorf("start moh on bridge %s: %w", bridgeID, err)
	}
	return nil
}

func (c *ARIClient) GlobalVariable(name string) (string, error) {
	value, err := c.cl.Asterisk().Variables().Get(ari.NewKey(ari.VariableKey, name))
	if err != nil {
		if notFound(err) {
			return "", nil
		}
		return "", fmt.Errorf("get global %s: %w", name, err)
	}
	return value, nil
}

func (c *ARIClient) SetGlobalVariable(name, value string) error {
	if err := c.cl.Asterisk().Variables().Set(ari.NewKey(ari.VariableKey, name), value); err != nil {
		return fmt.Errorf("set global %s: %w", name, err)
	}
	return nil
}

// Ping verifies the control connection with a cheap round-trip. A missing
// variable is a healthy answer; only transport failures count.
func (c *ARIClient) Ping() error {
	_, err := c.GlobalVariable("CALLD_PING")
	return err
}

func (c *ARIClient) SubscribeApplication(eventSource string) error {
	key := ari.NewKey(ari.ApplicationKey, c.cl.ApplicationName())
	if err := c.cl.Application().Subscribe(key, eventSource); err != nil {
		return fmt.Errorf("subscribe %s: %w", eventSource, err)
	}
	return nil
}
