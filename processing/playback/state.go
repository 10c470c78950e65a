package playback

type State int

const (
	StateIdle State = iota
	StateCapturing
	StatePlaying
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCapturing:
		return "capturing"
	case StatePlaying:
		return "playing"
	default:
		return "unknown"
	}
}
