// Package types holds DICOM protocol constants: DIMSE command fields and
// statuses, SOP class and transfer syntax UIDs.
package types

// DIMSE command field values (PS3.7 E.1)
const (
	CStoreRQ  = 0x0001
	CStoreRSP = 0x8001
	CGetRQ    = 0x0010
	CGetRSP   = 0x8010
	CFindRQ   = 0x0020
	CFindRSP  = 0x8020
	CMoveRQ   = 0x0021
	CMoveRSP  = 0x8021
	CEchoRQ   = 0x0030
	CEchoRSP  = 0x8030
	CCancelRQ = 0x0FFF
)

// DIMSE status codes
const (
	StatusSuccess               = 0x0000
	StatusCancel                = 0xFE00
	StatusPending               = 0xFF00
	StatusPendingWarning        = 0xFF01
	StatusFailure               = 0xC000
	StatusProcessingFailure     = 0x0110
	StatusUnrecognizedOperation = 0x0211
	StatusSOPClassNotSupported  = 0x0122
	StatusOutOfResources        = 0xA700
	StatusOutOfResourcesSubOps  = 0xA702
	StatusUnableToProcess       = 0xC001
)

// Command Data Set Type values
const (
	DataSetPresent uint16 = 0x0000
	NoDataSet      uint16 = 0x0101
)

// Message represents a parsed DIMSE command
type Message struct {
	CommandField              uint16
	MessageID                 uint16
	AffectedSOPClassUID       string
	AffectedSOPInstanceUID    string
	RequestedSOPClassUID      string
	Priority                  uint16
	CommandDataSetType        uint16
	Status                    uint16
	MessageIDBeingRespondedTo uint16
	MoveDestination           string

	// C-MOVE and C-GET response counters
	NumberOfRemainingSuboperations *uint16
	NumberOfCompletedSuboperations *uint16
	NumberOfFailedSuboperations    *uint16
	NumberOfWarningSuboperations   *uint16
}

// HasDataSet reports whether a data set follows the command.
func (m *Message) HasDataSet() bool {
	return m.CommandDataSetType != NoDataSet
}

// IsResponse reports whether the command field is a response (bit 15 set).
func (m *Message) IsResponse() bool {
	return m.CommandField&0x8000 != 0
}

// IsCancel reports whether the message is a C-CANCEL-RQ.
func (m *Message) IsCancel() bool {
	return m.CommandField == CCancelRQ
}

// IsPendingStatus reports whether status is one of the pending statuses
// that announce further responses for the same request.
func IsPendingStatus(status uint16) bool {
	return status == StatusPending || status == StatusPendingWarning
}

// ResponseCommandFor maps a DIMSE request command to its corresponding response command.
func ResponseCommandFor(request uint16) uint16 {
	switch request {
	case CStoreRQ:
		return CStoreRSP
	case CGetRQ:
		return CGetRSP
	case CFindRQ:
		return CFindRSP
	case CMoveRQ:
		return CMoveRSP
	case CEchoRQ:
		return CEchoRSP
	default:
		return request | 0x8000
	}
}

// CommandName returns the conventional name of a command field, e.g. "C-ECHO-RQ".
func CommandName(field uint16) string {
	switch field {
	case CStoreRQ:
		return "C-STORE-RQ"
	case CStoreRSP:
		return "C-STORE-RSP"
	case CGetRQ:
		return "C-GET-RQ"
	case CGetRSP:
		return "C-GET-RSP"
	case CFindRQ:
		return "C-FIND-RQ"
	case CFindRSP:
		return "C-FIND-RSP"
	case CMoveRQ:
		return "C-MOVE-RQ"
	case CMoveRSP:
		return "C-MOVE-RSP"
	case CEchoRQ:
		return "C-ECHO-RQ"
	case CEchoRSP:
		return "C-ECHO-RSP"
	case CCancelRQ:
		return "C-CANCEL-RQ"
	default:
		return "UNKNOWN"
	}
}
