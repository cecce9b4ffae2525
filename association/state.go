package association

import "fmt"

// State is one of the thirteen states of the DICOM Upper Layer protocol
// machine (PS3.8 section 9.2).
type State int

const (
	// Sta1 is idle: no transport connection.
	Sta1 State = iota + 1
	// Sta2 is transport connection open, awaiting A-ASSOCIATE-RQ.
	Sta2
	// Sta3 is awaiting the local accept or reject decision.
	Sta3
	// Sta4 is awaiting transport connection open to complete.
	Sta4
	// Sta5 is awaiting A-ASSOCIATE-AC or A-ASSOCIATE-RJ.
	Sta5
	// Sta6 is association established, ready for data transfer.
	Sta6
	// Sta7 is awaiting A-RELEASE-RP.
	Sta7
	// Sta8 is awaiting the local release response.
	Sta8
	// Sta9 is release collision, requestor side: awaiting local release response.
	Sta9
	// Sta10 is release collision, acceptor side: awaiting A-RELEASE-RP.
	Sta10
	// Sta11 is release collision, requestor side: awaiting A-RELEASE-RP.
	Sta11
	// Sta12 is release collision, acceptor side: awaiting local release response.
	Sta12
	// Sta13 is awaiting transport connection close.
	Sta13
)

var stateDescriptions = map[State]string{
	Sta1:  "idle",
	Sta2:  "awaiting A-ASSOCIATE-RQ",
	Sta3:  "awaiting local accept decision",
	Sta4:  "awaiting transport open",
	Sta5:  "awaiting A-ASSOCIATE-AC or A-ASSOCIATE-RJ",
	Sta6:  "data transfer",
	Sta7:  "awaiting A-RELEASE-RP",
	Sta8:  "awaiting local release response",
	Sta9:  "release collision requestor",
	Sta10: "release collision acceptor",
	Sta11: "release collision requestor awaiting A-RELEASE-RP",
	Sta12: "release collision acceptor awaiting local release response",
	Sta13: "awaiting transport close",
}

// String returns the state name, e.g. "Sta6".
func (s State) String() string {
	if s >= Sta1 && s <= Sta13 {
		return fmt.Sprintf("Sta%d", int(s))
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Description returns the PS3.8 meaning of the state.
func (s State) Description() string {
	if d, ok := stateDescriptions[s]; ok {
		return d
	}
	return "unknown"
}

// terminal reports whether the reader loop must stop in this state.
func (s State) terminal() bool {
	return s == Sta1 || s == Sta13
}

// canSendData reports whether P-DATA-TF may be written in this state.
func (s State) canSendData() bool {
	return s == Sta6 || s == Sta8
}

// canReceiveData reports whether an incoming P-DATA-TF is legal.
func (s State) canReceiveData() bool {
	return s == Sta6 || s == Sta7
}
