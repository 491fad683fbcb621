package session

// PermissionState is the outcome of the microphone permission handshake
type PermissionState string

const (
	PermissionUnknown PermissionState = "UNKNOWN"
	PermissionGranted PermissionState = "GRANTED"
	PermissionDenied  PermissionState = "DENIED"
)

// RecorderState represents the capture lifecycle of the single whistle slot
type RecorderState string

const (
	StateIdle          RecorderState = "IDLE"
	StateRecording     RecorderState = "RECORDING"
	StateStoppedOk     RecorderState = "STOPPED_OK"
	StateStoppedFailed RecorderState = "STOPPED_FAILED"
)

// Snapshot is an immutable copy of the session handed to observers
type Snapshot struct {
	Permission   PermissionState `json:"permission"`
	Recorder     RecorderState   `json:"recorder"`
	ArtifactPath string          `json:"artifact_path,omitempty"`
	CanPlay      bool            `json:"can_play"`
	LastError    string          `json:"last_error,omitempty"`
}
