package protocol

import "strconv"

// Status is a response status sent back to the client.
type Status int

const (
	AckOk           Status = 200 // request handled, nothing to return
	AckDataReceived Status = 201 // data received and stored
	AckDataSent     Status = 202 // data in response
	NoPermission    Status = 400 // client not registered on the channel
	NoHandle        Status = 500 // resource missing or store failure
	SecurityFault   Status = 520 // integrity check failed
)

// Code returns the numeric wire code.
func (s Status) Code() int {
	return int(s)
}

func (s Status) String() string {
	switch s {
	case AckOk:
		return "AckOk"
	case AckDataReceived:
		return "AckDataReceived"
	case AckDataSent:
		return "AckDataSent"
	case NoPermission:
		return "NoPermission"
	case NoHandle:
		return "NoHandle"
	case SecurityFault:
		return "SecurityFault"
	default:
		return "Status(" + strconv.Itoa(int(s)) + ")"
	}
}

// ParseStatus maps a wire code back to a Status.
func ParseStatus(code string) (Status, bool) {
	n, err := strconv.Atoi(code)
	if err != nil {
		return 0, false
	}
	switch s := Status(n); s {
	case AckOk, AckDataReceived, AckDataSent, NoPermission, NoHandle, SecurityFault:
		return s, true
	}
	return 0, false
}
