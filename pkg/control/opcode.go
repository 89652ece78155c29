// ABOUTME: Command opcodes, result codes and message types
// ABOUTME: Defines the small enumerated command set accepted from the host
package control

import "fmt"

// Opcode identifies a control command
type Opcode byte

const (
	OpStartAsyncListener Opcode = 1
	OpSetParameter       Opcode = 2
	OpPushFrames         Opcode = 3
	OpStop               Opcode = 4
)

// Valid reports whether the opcode belongs to the supported set
func (o Opcode) Valid() bool {
	return o >= OpStartAsyncListener && o <= OpStop
}

func (o Opcode) String() string {
	switch o {
	case OpStartAsyncListener:
		return "START_ASYNC_LISTENER"
	case OpSetParameter:
		return "SET_PARAMETER"
	case OpPushFrames:
		return "PUSH_FRAMES"
	case OpStop:
		return "STOP"
	default:
		return fmt.Sprintf("OPCODE(%d)", byte(o))
	}
}

// Result is the outcome code carried in an Ack
type Result byte

const (
	ResultOK          Result = 0
	ResultUnsupported Result = 1
	ResultMalformed   Result = 2
	ResultOverflow    Result = 3
	ResultClosed      Result = 4
)

func (r Result) String() string {
	switch r {
	case ResultOK:
		return "ok"
	case ResultUnsupported:
		return "unsupported"
	case ResultMalformed:
		return "malformed"
	case ResultOverflow:
		return "overflow"
	case ResultClosed:
		return "closed"
	default:
		return fmt.Sprintf("result(%d)", byte(r))
	}
}

// Command is one message from the host runtime
type Command struct {
	Opcode  Opcode
	Arg     byte
	Payload []byte // PUSH_FRAMES only
}

// Ack acknowledges one handled command
type Ack struct {
	Seq    uint32
	Opcode Opcode
	Arg    byte
	Result Result
}

// Status is the channel state a correlating caller can poll
type Status struct {
	Seq        uint32 // sequence number of the last handled command
	LastOpcode Opcode
	LastArg    byte
	LastResult Result
	Param      byte
	Listener   bool
}
