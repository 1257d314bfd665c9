package entities

// Audio references a playable audio resource
type Audio struct {
	Src string `json:"src"`
}

// Chunk is one unit of an utterance received from the agent
type Chunk struct {
	MessageID string `json:"messageId"`
	Sequence  int    `json:"sequence"`
	Audio     *Audio `json:"audio,omitempty"`
	Final     bool   `json:"final,omitempty"`
}

// Playable reports whether the chunk carries audio
func (c Chunk) Playable() bool {
	return c.Audio != nil && c.Audio.Src != ""
}

// AudioResource is what a playback device is asked to play
type AudioResource struct {
	ID        string `json:"resource_id"`
	MessageID string `json:"message_id"`
	Sequence  int    `json:"sequence"`
	Src       string `json:"src"`
}

// PlayerStatus is a lifecycle signal emitted by a playback device
type PlayerStatus string

const (
	PlayerStatusPlaying    PlayerStatus = "playing"
	PlayerStatusIdle       PlayerStatus = "idle"
	PlayerStatusAutoPaused PlayerStatus = "autopaused"
)

// PlayerEvent is a lifecycle signal for a given resource.
// ResourceID may be empty when the device cannot tell which resource it refers to.
type PlayerEvent struct {
	Status     PlayerStatus `json:"status"`
	ResourceID string       `json:"resource_id,omitempty"`
}
