package audio

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// Init brings up portaudio for the whole process. The returned func must be
// called once on shutdown.
func Init() (func(), error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("init portaudio: %w", err)
	}
	return func() { portaudio.Terminate() }, nil
}
