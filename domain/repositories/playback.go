package repositories

import (
	"errors"

	"github.com/satriahrh/voicerelay/domain/entities"
)

// ErrOutputNotConnected is returned when no audio output client is attached
var ErrOutputNotConnected = errors.New("audio output not connected")

// PlaybackDevice plays one audio resource at a time
type PlaybackDevice interface {
	// Play starts playing the resource and returns immediately
	Play(resource entities.AudioResource) error
	// Stop forcibly stops the current resource
	Stop() error
}

// AudioOutputs gives access to playback devices by output ID
type AudioOutputs interface {
	Device(outputID string) PlaybackDevice
	// Subscribe registers fn for player events of an output until
	// unsubscribe is called
	Subscribe(outputID string, fn func(entities.PlayerEvent)) (unsubscribe func())
}
