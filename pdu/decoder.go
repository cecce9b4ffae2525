package pdu

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	dicomerrors "github.com/caio-sobreiro/dicomul/errors"
)

// maxAssociateLength caps the body of the non P-DATA PDUs.
const maxAssociateLength = 1 << 20

// Decoder reads PDUs from an underlying reader.
type Decoder struct {
	r io.Reader

	// MaxPDULength is the largest P-DATA-TF body accepted; 0 disables the check.
	MaxPDULength uint32
}

// NewDecoder returns a decoder reading from r.
func NewDecoder(r io.Reader, maxPDULength uint32) *Decoder {
	return &Decoder{r: r, MaxPDULength: maxPDULength}
}

// Next reads and decodes the next PDU.
//
// Errors from the reader are returned unchanged so callers can tell a
// timeout or EOF apart. Malformed input yields an *errors.AbortError from
// the service provider carrying the abort reason to send to the peer.
func (d *Decoder) Next() (PDU, error) {
	var header [HeaderLength]byte
	if _, err := io.ReadFull(d.r, header[:]); err != nil {
		return nil, err
	}

	pduType := header[0]
	length := binary.BigEndian.Uint32(header[2:6])

	if pduType < TypeAssociateRQ || pduType > TypeAbort {
		return nil, dicomerrors.NewProtocolError(dicomerrors.AbortReasonUnrecognizedPDU,
			dicomerrors.NewPDUError(pduType, "unrecognized PDU type"))
	}
	if err := d.checkLength(pduType, length); err != nil {
		return nil, err
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(d.r, body); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}

	return Decode(pduType, body)
}

func (d *Decoder) checkLength(pduType byte, length uint32) error {
	var limit uint32
	switch pduType {
	case TypePDataTF:
		limit = d.MaxPDULength
	case TypeAssociateRQ, TypeAssociateAC:
		limit = maxAssociateLength
	default:
		// A-ASSOCIATE-RJ, A-RELEASE-RQ/RP and A-ABORT have a fixed 4 byte body
		if length != 4 {
			return invalid(pduType, fmt.Sprintf("invalid length %d", length))
		}
		return nil
	}
	if limit > 0 && length > limit {
		return invalid(pduType, fmt.Sprintf("length %d exceeds limit %d", length, limit))
	}
	return nil
}

// Decode parses the body of a PDU whose header has already been consumed.
func Decode(pduType byte, body []byte) (PDU, error) {
	switch pduType {
	case TypeAssociateRQ:
		return decodeAssociateRQ(body)
	case TypeAssociateAC:
		return decodeAssociateAC(body)
	case TypeAssociateRJ:
		if len(body) < 4 {
			return nil, invalid(pduType, "truncated body")
		}
		return &AssociateRJ{
			Result: dicomerrors.AssociationRejectResult(body[1]),
			Source: dicomerrors.AssociationRejectSource(body[2]),
			Reason: dicomerrors.AssociationRejectReason(body[3]),
		}, nil
	case TypePDataTF:
		return decodePDataTF(body)
	case TypeReleaseRQ:
		return &ReleaseRQ{}, nil
	case TypeReleaseRP:
		return &ReleaseRP{}, nil
	case TypeAbort:
		if len(body) < 4 {
			return nil, invalid(pduType, "truncated body")
		}
		return &Abort{
			Source: dicomerrors.AbortSource(body[2]),
			Reason: dicomerrors.AbortReason(body[3]),
		}, nil
	default:
		return nil, dicomerrors.NewProtocolError(dicomerrors.AbortReasonUnrecognizedPDU,
			dicomerrors.NewPDUError(pduType, "unrecognized PDU type"))
	}
}

func decodeAssociateRQ(body []byte) (*AssociateRQ, error) {
	rq := &AssociateRQ{}
	err := decodeAssociate(TypeAssociateRQ, body, &rq.ProtocolVersion, &rq.CalledAETitle, &rq.CallingAETitle,
		&rq.ApplicationContext, &rq.UserInformation, func(data []byte) error {
			pc, err := decodePresentationContextRQ(data)
			if err != nil {
				return err
			}
			rq.PresentationContexts = append(rq.PresentationContexts, *pc)
			return nil
		}, itemPresentationContextRQ)
	if err != nil {
		return nil, err
	}
	return rq, nil
}

func decodeAssociateAC(body []byte) (*AssociateAC, error) {
	ac := &AssociateAC{}
	err := decodeAssociate(TypeAssociateAC, body, &ac.ProtocolVersion, &ac.CalledAETitle, &ac.CallingAETitle,
		&ac.ApplicationContext, &ac.UserInformation, func(data []byte) error {
			pc, err := decodePresentationContextAC(data)
			if err != nil {
				return err
			}
			ac.PresentationContexts = append(ac.PresentationContexts, *pc)
			return nil
		}, itemPresentationContextAC)
	if err != nil {
		return nil, err
	}
	return ac, nil
}

// decodeAssociate parses the layout shared by A-ASSOCIATE-RQ and -AC; pcItem
// is the presentation context item type expected for this PDU.
func decodeAssociate(pduType byte, body []byte, version *uint16, called, calling, appCtx *string,
	ui *UserInformation, onPC func([]byte) error, pcItem byte) error {
	if len(body) < associateFixedSize {
		return invalid(pduType, "association PDU too short")
	}

	*version = binary.BigEndian.Uint16(body[0:2])
	*called = trimAETitle(body[4:20])
	*calling = trimAETitle(body[20:36])

	// absent async ops window item means one outstanding operation each way
	ui.MaxOpsInvoked = 1
	ui.MaxOpsPerformed = 1

	return walkItems(pduType, body[associateFixedSize:], func(itemType byte, data []byte) error {
		switch itemType {
		case itemApplicationContext:
			*appCtx = normalizeUID(data)
		case pcItem:
			if err := onPC(data); err != nil {
				return invalid(pduType, err.Error())
			}
		case itemUserInformation:
			if err := decodeUserInformation(pduType, data, ui); err != nil {
				return err
			}
		default:
			return dicomerrors.NewProtocolError(dicomerrors.AbortReasonUnrecognizedPDUParameter,
				dicomerrors.NewPDUError(pduType, fmt.Sprintf("unexpected item 0x%02x", itemType)))
		}
		return nil
	})
}

func decodePresentationContextRQ(data []byte) (*PresentationContextRQ, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("presentation context too short: %d", len(data))
	}
	pc := &PresentationContextRQ{ID: data[0]}
	err := walkSubItems(data[4:], func(itemType byte, value []byte) error {
		switch itemType {
		case itemAbstractSyntax:
			pc.AbstractSyntax = normalizeUID(value)
		case itemTransferSyntax:
			pc.TransferSyntaxes = append(pc.TransferSyntaxes, normalizeUID(value))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("presentation context %d: %w", pc.ID, err)
	}
	if pc.AbstractSyntax == "" {
		return nil, fmt.Errorf("presentation context %d missing abstract syntax", pc.ID)
	}
	return pc, nil
}

func decodePresentationContextAC(data []byte) (*PresentationContextAC, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("presentation context too short: %d", len(data))
	}
	pc := &PresentationContextAC{ID: data[0], Result: data[2]}
	err := walkSubItems(data[4:], func(itemType byte, value []byte) error {
		if itemType == itemTransferSyntax {
			pc.TransferSyntax = normalizeUID(value)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("presentation context %d: %w", pc.ID, err)
	}
	if pc.Result == ResultAcceptance && pc.TransferSyntax == "" {
		return nil, fmt.Errorf("accepted presentation context %d missing transfer syntax", pc.ID)
	}
	return pc, nil
}

func decodeUserInformation(pduType byte, data []byte, ui *UserInformation) error {
	return walkItems(pduType, data, func(itemType byte, value []byte) error {
		switch itemType {
		case itemMaxLength:
			if len(value) != 4 {
				return invalid(pduType, "invalid maximum length sub-item")
			}
			ui.MaxPDULength = binary.BigEndian.Uint32(value)
		case itemImplementationClassUID:
			ui.ImplementationClassUID = normalizeUID(value)
		case itemImplementationVersion:
			ui.ImplementationVersionName = strings.TrimRight(string(value), "\x00 ")
		case itemAsyncOpsWindow:
			if len(value) != 4 {
				return invalid(pduType, "invalid asynchronous operations window sub-item")
			}
			ui.MaxOpsInvoked = binary.BigEndian.Uint16(value[0:2])
			ui.MaxOpsPerformed = binary.BigEndian.Uint16(value[2:4])
		case itemRoleSelection:
			if len(value) < 2 {
				return invalid(pduType, "role selection sub-item too short")
			}
			n := int(binary.BigEndian.Uint16(value[0:2]))
			if len(value) != 2+n+2 {
				return invalid(pduType, "invalid role selection sub-item length")
			}
			ui.RoleSelections = append(ui.RoleSelections, RoleSelection{
				SOPClassUID: normalizeUID(value[2 : 2+n]),
				SCU:         value[2+n] == 1,
				SCP:         value[3+n] == 1,
			})
		}
		// other user information sub-items (extended negotiation, user
		// identity) are not interpreted
		return nil
	})
}

func decodePDataTF(body []byte) (*PDataTF, error) {
	p := &PDataTF{}
	offset := 0
	for offset < len(body) {
		if offset+pdvHeaderLength > len(body) {
			return nil, invalid(TypePDataTF, "truncated PDV header")
		}
		length := int(binary.BigEndian.Uint32(body[offset : offset+4]))
		if length < 2 || offset+4+length > len(body) {
			return nil, invalid(TypePDataTF, fmt.Sprintf("invalid PDV length %d", length))
		}
		ctrl := body[offset+5]
		p.PDVs = append(p.PDVs, PDV{
			ContextID: body[offset+4],
			Command:   ctrl&0x01 != 0,
			Last:      ctrl&0x02 != 0,
			Data:      body[offset+6 : offset+4+length],
		})
		offset += 4 + length
	}
	if len(p.PDVs) == 0 {
		return nil, invalid(TypePDataTF, "no PDV items")
	}
	return p, nil
}

// walkItems iterates over items with a 4 byte header (type, reserved, length).
func walkItems(pduType byte, data []byte, fn func(itemType byte, value []byte) error) error {
	offset := 0
	for offset < len(data) {
		if offset+4 > len(data) {
			return invalid(pduType, "truncated item header")
		}
		itemType := data[offset]
		end := offset + 4 + int(binary.BigEndian.Uint16(data[offset+2:offset+4]))
		if end > len(data) {
			return invalid(pduType, fmt.Sprintf("item 0x%02x exceeds PDU length", itemType))
		}
		if err := fn(itemType, data[offset+4:end]); err != nil {
			return err
		}
		offset = end
	}
	return nil
}

func walkSubItems(data []byte, fn func(itemType byte, value []byte) error) error {
	offset := 0
	for offset+4 <= len(data) {
		itemType := data[offset]
		end := offset + 4 + int(binary.BigEndian.Uint16(data[offset+2:offset+4]))
		if end > len(data) {
			return fmt.Errorf("sub-item 0x%02x exceeds length", itemType)
		}
		if err := fn(itemType, data[offset+4:end]); err != nil {
			return err
		}
		offset = end
	}
	if offset != len(data) {
		return fmt.Errorf("trailing bytes after sub-items")
	}
	return nil
}

func invalid(pduType byte, msg string) *dicomerrors.AbortError {
	return dicomerrors.NewProtocolError(dicomerrors.AbortReasonInvalidPDUParameterValue,
		dicomerrors.NewPDUError(pduType, msg))
}

func normalizeUID(raw []byte) string {
	return strings.TrimRight(string(raw), "\x00 ")
}

func trimAETitle(raw []byte) string {
	ae := string(raw)
	if idx := strings.IndexByte(ae, 0); idx != -1 {
		ae = ae[:idx]
	}
	return strings.TrimSpace(ae)
}
