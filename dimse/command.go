// Package dimse encodes DIMSE command sets and moves DIMSE messages in and
// out of P-DATA-TF presentation data values.
package dimse

import (
	"encoding/binary"
	"fmt"
	"strings"

	dicomerrors "github.com/caio-sobreiro/dicomul/errors"
	"github.com/caio-sobreiro/dicomul/types"
)

// Command element numbers in group 0000
const (
	tagGroupLength               = 0x0000
	tagAffectedSOPClassUID       = 0x0002
	tagRequestedSOPClassUID      = 0x0003
	tagCommandField              = 0x0100
	tagMessageID                 = 0x0110
	tagMessageIDBeingRespondedTo = 0x0120
	tagMoveDestination           = 0x0600
	tagPriority                  = 0x0700
	tagCommandDataSetType        = 0x0800
	tagStatus                    = 0x0900
	tagAffectedSOPInstanceUID    = 0x1000
	tagRemainingSuboperations    = 0x1020
	tagCompletedSuboperations    = 0x1021
	tagFailedSuboperations       = 0x1022
	tagWarningSuboperations      = 0x1023
)

// Priorities
const (
	PriorityMedium uint16 = 0x0000
	PriorityHigh   uint16 = 0x0001
	PriorityLow    uint16 = 0x0002
)

// EncodeCommand encodes a DIMSE command set using Implicit VR Little Endian,
// which PS3.7 mandates for command sets.
func EncodeCommand(msg *types.Message) ([]byte, error) {
	if msg == nil {
		return nil, fmt.Errorf("%w: nil command", dicomerrors.ErrInvalidMessage)
	}

	buf := make([]byte, 0, 256)

	// Command Group Length, filled in once the group is complete
	buf = AppendImplicitElement(buf, 0x0000, tagGroupLength, make([]byte, 4))
	lengthPos := len(buf) - 4

	if msg.AffectedSOPClassUID != "" {
		buf = AppendImplicitElement(buf, 0x0000, tagAffectedSOPClassUID, padUID(msg.AffectedSOPClassUID))
	}
	if msg.RequestedSOPClassUID != "" {
		buf = AppendImplicitElement(buf, 0x0000, tagRequestedSOPClassUID, padUID(msg.RequestedSOPClassUID))
	}

	buf = AppendImplicitElement(buf, 0x0000, tagCommandField, uint16Value(msg.CommandField))

	// requests carry Message ID, responses and C-CANCEL carry the ID they answer
	if !msg.IsResponse() && !msg.IsCancel() {
		buf = AppendImplicitElement(buf, 0x0000, tagMessageID, uint16Value(msg.MessageID))
	}
	if msg.IsResponse() || msg.IsCancel() {
		buf = AppendImplicitElement(buf, 0x0000, tagMessageIDBeingRespondedTo, uint16Value(msg.MessageIDBeingRespondedTo))
	}

	if msg.MoveDestination != "" {
		dest := []byte(msg.MoveDestination)
		if len(dest)%2 == 1 {
			dest = append(dest, ' ')
		}
		buf = AppendImplicitElement(buf, 0x0000, tagMoveDestination, dest)
	}

	if needsPriority(msg.CommandField) {
		buf = AppendImplicitElement(buf, 0x0000, tagPriority, uint16Value(msg.Priority))
	}

	buf = AppendImplicitElement(buf, 0x0000, tagCommandDataSetType, uint16Value(msg.CommandDataSetType))

	if msg.IsResponse() {
		buf = AppendImplicitElement(buf, 0x0000, tagStatus, uint16Value(msg.Status))
	}

	if msg.AffectedSOPInstanceUID != "" {
		buf = AppendImplicitElement(buf, 0x0000, tagAffectedSOPInstanceUID, padUID(msg.AffectedSOPInstanceUID))
	}

	counters := []struct {
		element uint16
		value   *uint16
	}{
		{tagRemainingSuboperations, msg.NumberOfRemainingSuboperations},
		{tagCompletedSuboperations, msg.NumberOfCompletedSuboperations},
		{tagFailedSuboperations, msg.NumberOfFailedSuboperations},
		{tagWarningSuboperations, msg.NumberOfWarningSuboperations},
	}
	for _, c := range counters {
		if c.value != nil {
			buf = AppendImplicitElement(buf, 0x0000, c.element, uint16Value(*c.value))
		}
	}

	binary.LittleEndian.PutUint32(buf[lengthPos:lengthPos+4], uint32(len(buf)-lengthPos-4))
	return buf, nil
}

// AppendImplicitElement appends a DICOM element using Implicit VR (no VR field)
func AppendImplicitElement(buf []byte, group, element uint16, value []byte) []byte {
	var hdr [8]byte
	binary.LittleEndian.PutUint16(hdr[0:2], group)
	binary.LittleEndian.PutUint16(hdr[2:4], element)
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(len(value)))
	buf = append(buf, hdr[:]...)
	return append(buf, value...)
}

// DecodeCommand decodes an Implicit VR Little Endian command set.
func DecodeCommand(data []byte) (*types.Message, error) {
	msg := &types.Message{
		CommandDataSetType: types.NoDataSet,
	}
	seenCommandField := false

	offset := 0
	for offset < len(data) {
		if offset+8 > len(data) {
			return nil, fmt.Errorf("%w: truncated element header at offset %d", dicomerrors.ErrInvalidMessage, offset)
		}
		group := binary.LittleEndian.Uint16(data[offset : offset+2])
		element := binary.LittleEndian.Uint16(data[offset+2 : offset+4])
		length := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		if length < 0 || offset+8+length > len(data) {
			return nil, fmt.Errorf("%w: element (%04x,%04x) exceeds command length", dicomerrors.ErrInvalidMessage, group, element)
		}
		value := data[offset+8 : offset+8+length]
		offset += 8 + length

		if group != 0x0000 {
			continue
		}

		switch element {
		case tagAffectedSOPClassUID:
			msg.AffectedSOPClassUID = trimValue(value)
		case tagRequestedSOPClassUID:
			msg.RequestedSOPClassUID = trimValue(value)
		case tagCommandField:
			if v, ok := uint16Of(value); ok {
				msg.CommandField = v
				seenCommandField = true
			}
		case tagMessageID:
			msg.MessageID, _ = uint16Of(value)
		case tagMessageIDBeingRespondedTo:
			msg.MessageIDBeingRespondedTo, _ = uint16Of(value)
		case tagMoveDestination:
			msg.MoveDestination = trimValue(value)
		case tagPriority:
			msg.Priority, _ = uint16Of(value)
		case tagCommandDataSetType:
			if v, ok := uint16Of(value); ok {
				msg.CommandDataSetType = v
			}
		case tagStatus:
			msg.Status, _ = uint16Of(value)
		case tagAffectedSOPInstanceUID:
			msg.AffectedSOPInstanceUID = trimValue(value)
		case tagRemainingSuboperations:
			msg.NumberOfRemainingSuboperations = uint16Ptr(value)
		case tagCompletedSuboperations:
			msg.NumberOfCompletedSuboperations = uint16Ptr(value)
		case tagFailedSuboperations:
			msg.NumberOfFailedSuboperations = uint16Ptr(value)
		case tagWarningSuboperations:
			msg.NumberOfWarningSuboperations = uint16Ptr(value)
		}
	}

	if !seenCommandField {
		return nil, fmt.Errorf("%w: missing command field", dicomerrors.ErrInvalidMessage)
	}
	return msg, nil
}

func needsPriority(commandField uint16) bool {
	switch commandField {
	case types.CStoreRQ, types.CFindRQ, types.CMoveRQ, types.CGetRQ:
		return true
	}
	return false
}

func padUID(uid string) []byte {
	b := []byte(uid)
	if len(b)%2 == 1 {
		b = append(b, 0x00)
	}
	return b
}

func uint16Value(v uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return b
}

func uint16Of(value []byte) (uint16, bool) {
	if len(value) < 2 {
		return 0, false
	}
	return binary.LittleEndian.Uint16(value[:2]), true
}

func uint16Ptr(value []byte) *uint16 {
	v, ok := uint16Of(value)
	if !ok {
		return nil
	}
	return &v
}

func trimValue(value []byte) string {
	return strings.TrimRight(string(value), "\x00 ")
}
