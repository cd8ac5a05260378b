// internal/delivery/phase.go
package delivery

import (
	"errors"
	"time"
)

// Phase is the position of a delivery attempt in the sequence.
type Phase uint8

const (
	// PhaseIdle means no attempt is in flight.
	PhaseIdle Phase = iota

	// PhaseValidating checks fullness and time windows.
	PhaseValidating

	// PhaseDoorOpen holds the door open for the configured duration.
	PhaseDoorOpen

	// PhaseWeightSettle reads the scale after the door closed.
	PhaseWeightSettle

	// PhaseUploading submits the weight vector.
	PhaseUploading

	// PhaseAborted is terminal for attempts rejected while validating.
	PhaseAborted
)

// String returns a human-readable phase name.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhaseValidating:
		return "VALIDATING"
	case PhaseDoorOpen:
		return "DOOR_OPEN"
	case PhaseWeightSettle:
		return "WEIGHT_SETTLE"
	case PhaseUploading:
		return "UPLOADING"
	case PhaseAborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// next lists the legal transitions.
var next = map[Phase][]Phase{
	PhaseIdle:         {PhaseValidating},
	PhaseValidating:   {PhaseDoorOpen, PhaseAborted},
	PhaseDoorOpen:     {PhaseWeightSettle},
	PhaseWeightSettle: {PhaseUploading, PhaseIdle},
	PhaseUploading:    {PhaseIdle},
	PhaseAborted:      {PhaseIdle},
}

// CanTransition reports whether from -> to is a legal step.
func CanTransition(from, to Phase) bool {
	for _, p := range next[from] {
		if p == to {
			return true
		}
	}
	return false
}

// Delivery errors.
var (
	ErrBinFull        = errors.New("delivery: bin full")
	ErrOutOfWindow    = errors.New("delivery: outside deposit window")
	ErrNotConfigured  = errors.New("delivery: no deposit window configured")
	ErrUploadFailed   = errors.New("delivery: upload failed")
	ErrBusy           = errors.New("delivery: attempt already in flight")
	ErrUnknownDoor    = errors.New("delivery: unknown door")
	ErrDoorOpenFailed = errors.New("delivery: door open write failed")
	ErrWeightFailed   = errors.New("delivery: weight read failed")
)

// Reason returns the user-facing message for a delivery error.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrBinFull):
		return "This bin is full, please choose another door."
	case errors.Is(err, ErrOutOfWindow):
		return "Deposits are closed at this time."
	case errors.Is(err, ErrNotConfigured):
		return "No deposit time is set for this door."
	case errors.Is(err, ErrBusy):
		return "Another deposit is in progress, please wait."
	case errors.Is(err, ErrUnknownDoor):
		return "This door does not exist."
	case errors.Is(err, ErrDoorOpenFailed):
		return "The door could not be opened."
	case errors.Is(err, ErrWeightFailed):
		return "The scale could not be read."
	case errors.Is(err, ErrUploadFailed):
		return "The deposit could not be recorded, please try again."
	default:
		return "Unexpected error."
	}
}

// Attempt is one transient deposit run. It is never persisted.
type Attempt struct {
	ID           string
	DoorKey      string
	StartAddress uint16
	OpenedAt     time.Time
	HoldDuration time.Duration
	Phase        Phase
}

// Receipt is the upload collaborator's answer.
type Receipt struct {
	Weight          float64   `json:"weight"`
	Score           float64   `json:"score"`
	FullInfo        bool      `json:"fullInfo"`
	PutInWeightInfo []float64 `json:"putInWeightInfo"`
}
