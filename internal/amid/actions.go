package amid

import "strconv"

// Redirect sends a channel into the dialplan at context/extension.
func Redirect(a Actioner, channel, context, extension string, priority int) error {
	return a.Send("Redirect", map[string]string{
		"Channel":  channel,
		"Context":  context,
		"Exten":    extension,
		"Priority": strconv.Itoa(priority),
	})
}

// PlayDTMF injects a DTMF digit on the channel.
func PlayDTMF(a Actioner, channel, digit string) error {
	return a.Send("PlayDTMF", map[string]string{
		"Channel": channel,
		"Digit":   digit,
	})
}

// MuteAudio mutes or unmutes the read direction of the channel.
func MuteAudio(a Actioner, channel string, mute bool) error {
	state := "off"
	if mute {
		state = "on"
	}
	return a.Send("MuteAudio", map[string]string{
		"Channel":   channel,
		"Direction": "in",
		"State":     state,
	})
}

// StartRecording starts mixed recording of the channel into filename.
func StartRecording(a Actioner, channel, filename string) error {
	return a.Send("MixMonitor", map[string]string{
		"Channel": channel,
		"File":    filename,
		"Options": "ab",
	})
}

// StopRecording stops a recording started with StartRecording.
func StopRecording(a Actioner, channel string) error {
	return a.Send("StopMixMonitor", map[string]string{
		"Channel": channel,
	})
}
