// Package wireproto encodes and parses the ASCII message grammar carried
// inside frame.Read/frame.Write payloads.
package wireproto

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vertico-systems/vertico/internal/floor"
)

// ErrMalformed is returned for any payload that does not match the
// grammar expected in its context.
var ErrMalformed = errors.New("wireproto: malformed message")

// CarRegister is the first frame a car sends: "CAR <name> <lo> <hi>".
type CarRegister struct {
	Name   string
	Lo, Hi int
}

// Status is a repeated car→dispatcher update: "STATUS <state> <cur> <dest>".
type Status struct {
	State       string
	Current     int
	Destination int
}

// FloorCmd is the dispatcher→car destination update: "FLOOR <n>".
type FloorCmd struct {
	N int
}

// Call is the one-shot call-pad→dispatcher request: "CALL <src> <dst>".
type Call struct {
	Src, Dst int
}

// IndividualService is the car→dispatcher notice sent once before close.
type IndividualService struct{}

// Emergency is the car→dispatcher notice sent once before close.
type Emergency struct{}

// CarAssigned is the dispatcher→call-pad reply naming the serving car.
type CarAssigned struct {
	Name string
}

// Unavailable is the dispatcher→call-pad reply when no car can serve.
type Unavailable struct{}

const (
	kwCar               = "CAR"
	kwStatus            = "STATUS"
	kwFloor             = "FLOOR"
	kwCall              = "CALL"
	kwIndividualService = "INDIVIDUAL SERVICE"
	kwEmergency         = "EMERGENCY"
	kwUnavailable       = "UNAVAILABLE"
)

// EncodeCarRegister renders "CAR <name> <lo> <hi>".
func EncodeCarRegister(m CarRegister) []byte {
	return []byte(fmt.Sprintf("%s %s %s %s", kwCar, m.Name, floor.FromInt(m.Lo), floor.FromInt(m.Hi)))
}

// EncodeStatus renders "STATUS <state> <cur> <dest>".
func EncodeStatus(m Status) []byte {
	return []byte(fmt.Sprintf("%s %s %s %s", kwStatus, m.State, floor.FromInt(m.Current), floor.FromInt(m.Destination)))
}

// EncodeFloor renders "FLOOR <n>".
func EncodeFloor(m FloorCmd) []byte {
	return []byte(fmt.Sprintf("%s %s", kwFloor, floor.FromInt(m.N)))
}

// EncodeCall renders "CALL <src> <dst>".
func EncodeCall(m Call) []byte {
	return []byte(fmt.Sprintf("%s %s %s", kwCall, floor.FromInt(m.Src), floor.FromInt(m.Dst)))
}

// EncodeIndividualService renders "INDIVIDUAL SERVICE".
func EncodeIndividualService() []byte {
	return []byte(kwIndividualService)
}

// EncodeEmergency renders "EMERGENCY".
func EncodeEmergency() []byte {
	return []byte(kwEmergency)
}

// EncodeCarAssigned renders "CAR <name>".
func EncodeCarAssigned(m CarAssigned) []byte {
	return []byte(fmt.Sprintf("%s %s", kwCar, m.Name))
}

// EncodeUnavailable renders "UNAVAILABLE".
func EncodeUnavailable() []byte {
	return []byte(kwUnavailable)
}

// ParseInitial parses the first frame on a freshly accepted dispatcher
// connection, which is either a car registration or a one-shot call.
func ParseInitial(payload []byte) (any, error) {
	fields := strings.Fields(string(payload))
	if len(fields) == 0 {
		return nil, ErrMalformed
	}

	switch fields[0] {
	case kwCar:
		if len(fields) != 4 {
			return nil, ErrMalformed
		}

		lo, err := floor.ToInt(fields[2])
		if err != nil {
			return nil, ErrMalformed
		}

		hi, err := floor.ToInt(fields[3])
		if err != nil {
			return nil, ErrMalformed
		}

		if fields[1] == "" || len(fields[1]) > 128 {
			return nil, ErrMalformed
		}

		return CarRegister{Name: fields[1], Lo: lo, Hi: hi}, nil
	case kwCall:
		if len(fields) != 3 {
			return nil, ErrMalformed
		}

		src, err := floor.ToInt(fields[1])
		if err != nil {
			return nil, ErrMalformed
		}

		dst, err := floor.ToInt(fields[2])
		if err != nil {
			return nil, ErrMalformed
		}

		return Call{Src: src, Dst: dst}, nil
	default:
		return nil, ErrMalformed
	}
}

// ParseCarMessage parses a message received from a registered car's
// ongoing connection: STATUS, INDIVIDUAL SERVICE, or EMERGENCY.
func ParseCarMessage(payload []byte) (any, error) {
	s := string(payload)

	switch {
	case s == kwIndividualService:
		return IndividualService{}, nil
	case s == kwEmergency:
		return Emergency{}, nil
	case strings.HasPrefix(s, kwStatus+" "):
		fields := strings.Fields(s)
		if len(fields) != 4 {
			return nil, ErrMalformed
		}

		cur, err := floor.ToInt(fields[2])
		if err != nil {
			return nil, ErrMalformed
		}

		dest, err := floor.ToInt(fields[3])
		if err != nil {
			return nil, ErrMalformed
		}

		return Status{State: fields[1], Current: cur, Destination: dest}, nil
	default:
		return nil, ErrMalformed
	}
}

// ParseFloorCmd parses the dispatcher→car "FLOOR <n>" message.
func ParseFloorCmd(payload []byte) (FloorCmd, error) {
	fields := strings.Fields(string(payload))
	if len(fields) != 2 || fields[0] != kwFloor {
		return FloorCmd{}, ErrMalformed
	}

	n, err := floor.ToInt(fields[1])
	if err != nil {
		return FloorCmd{}, ErrMalformed
	}

	return FloorCmd{N: n}, nil
}

// ParseCallReply parses the dispatcher→call-pad reply: "CAR <name>" or
// "UNAVAILABLE".
func ParseCallReply(payload []byte) (any, error) {
	s := string(payload)
	if s == kwUnavailable {
		return Unavailable{}, nil
	}

	fields := strings.Fields(s)
	if len(fields) == 2 && fields[0] == kwCar {
		return CarAssigned{Name: fields[1]}, nil
	}

	return nil, ErrMalformed
}
