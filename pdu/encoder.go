package pdu

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/caio-sobreiro/dicomul/types"
)

// Fixed header and field sizes
const (
	HeaderLength       = 6
	aeTitleLength      = 16
	associateFixedSize = 68
	pdvHeaderLength    = 6
)

// Encoder writes PDUs to an underlying writer, one Write call per PDU.
type Encoder struct {
	w io.Writer
}

// NewEncoder returns an encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Write encodes p and writes it as a single unit.
func (e *Encoder) Write(p PDU) error {
	buf, err := Encode(p)
	if err != nil {
		return err
	}
	if _, err := e.w.Write(buf); err != nil {
		return fmt.Errorf("failed to send %s: %w", Name(p.Type()), err)
	}
	return nil
}

// Encode returns the wire form of p, header included.
func Encode(p PDU) ([]byte, error) {
	var body []byte
	switch v := p.(type) {
	case *AssociateRQ:
		body = encodeAssociateRQ(v)
	case *AssociateAC:
		body = encodeAssociateAC(v)
	case *AssociateRJ:
		body = []byte{0x00, byte(v.Result), byte(v.Source), byte(v.Reason)}
	case *PDataTF:
		body = encodePDataTF(v)
	case *ReleaseRQ, *ReleaseRP:
		body = make([]byte, 4)
	case *Abort:
		body = []byte{0x00, 0x00, byte(v.Source), byte(v.Reason)}
	default:
		return nil, fmt.Errorf("unsupported PDU %T", p)
	}

	buf := make([]byte, HeaderLength, HeaderLength+len(body))
	buf[0] = p.Type()
	binary.BigEndian.PutUint32(buf[2:6], uint32(len(body)))
	return append(buf, body...), nil
}

func encodeAssociateRQ(rq *AssociateRQ) []byte {
	buf := associateFixedFields(rq.ProtocolVersion, rq.CalledAETitle, rq.CallingAETitle)
	buf = appendItem(buf, itemApplicationContext, []byte(applicationContext(rq.ApplicationContext)))
	for _, pc := range rq.PresentationContexts {
		sub := []byte{pc.ID, 0x00, 0x00, 0x00}
		sub = appendItem(sub, itemAbstractSyntax, []byte(pc.AbstractSyntax))
		for _, ts := range pc.TransferSyntaxes {
			sub = appendItem(sub, itemTransferSyntax, []byte(ts))
		}
		buf = appendItem(buf, itemPresentationContextRQ, sub)
	}
	return appendItem(buf, itemUserInformation, encodeUserInformation(&rq.UserInformation))
}

func encodeAssociateAC(ac *AssociateAC) []byte {
	buf := associateFixedFields(ac.ProtocolVersion, ac.CalledAETitle, ac.CallingAETitle)
	buf = appendItem(buf, itemApplicationContext, []byte(applicationContext(ac.ApplicationContext)))
	for _, pc := range ac.PresentationContexts {
		sub := []byte{pc.ID, 0x00, pc.Result, 0x00}
		// PS3.8 9.3.3.2: the transfer syntax sub-item is only significant when accepted
		if pc.Result == ResultAcceptance {
			sub = appendItem(sub, itemTransferSyntax, []byte(pc.TransferSyntax))
		}
		buf = appendItem(buf, itemPresentationContextAC, sub)
	}
	return appendItem(buf, itemUserInformation, encodeUserInformation(&ac.UserInformation))
}

func associateFixedFields(version uint16, called, calling string) []byte {
	if version == 0 {
		version = ProtocolVersion
	}
	buf := make([]byte, associateFixedSize)
	binary.BigEndian.PutUint16(buf[0:2], version)
	copy(buf[4:20], padAETitle(called))
	copy(buf[20:36], padAETitle(calling))
	return buf
}

func encodeUserInformation(u *UserInformation) []byte {
	var buf []byte

	maxLen := make([]byte, 4)
	binary.BigEndian.PutUint32(maxLen, u.MaxPDULength)
	buf = appendItem(buf, itemMaxLength, maxLen)

	if u.ImplementationClassUID != "" {
		buf = appendItem(buf, itemImplementationClassUID, []byte(u.ImplementationClassUID))
	}
	if u.MaxOpsInvoked != 1 || u.MaxOpsPerformed != 1 {
		window := make([]byte, 4)
		binary.BigEndian.PutUint16(window[0:2], u.MaxOpsInvoked)
		binary.BigEndian.PutUint16(window[2:4], u.MaxOpsPerformed)
		buf = appendItem(buf, itemAsyncOpsWindow, window)
	}
	for _, rs := range u.RoleSelections {
		sub := make([]byte, 2, 4+len(rs.SOPClassUID))
		binary.BigEndian.PutUint16(sub, uint16(len(rs.SOPClassUID)))
		sub = append(sub, rs.SOPClassUID...)
		sub = append(sub, boolByte(rs.SCU), boolByte(rs.SCP))
		buf = appendItem(buf, itemRoleSelection, sub)
	}
	if u.ImplementationVersionName != "" {
		buf = appendItem(buf, itemImplementationVersion, []byte(u.ImplementationVersionName))
	}
	return buf
}

func encodePDataTF(p *PDataTF) []byte {
	size := 0
	for i := range p.PDVs {
		size += pdvHeaderLength + len(p.PDVs[i].Data)
	}
	buf := make([]byte, 0, size)
	for i := range p.PDVs {
		v := &p.PDVs[i]
		var length [4]byte
		binary.BigEndian.PutUint32(length[:], uint32(2+len(v.Data)))
		buf = append(buf, length[:]...)
		buf = append(buf, v.ContextID, v.ControlHeader())
		buf = append(buf, v.Data...)
	}
	return buf
}

// appendItem appends an item header (type, reserved, 16-bit length) and value.
func appendItem(buf []byte, itemType byte, value []byte) []byte {
	var hdr [4]byte
	hdr[0] = itemType
	binary.BigEndian.PutUint16(hdr[2:4], uint16(len(value)))
	buf = append(buf, hdr[:]...)
	return append(buf, value...)
}

func applicationContext(uid string) string {
	if uid == "" {
		return types.ApplicationContextUID
	}
	return uid
}

func padAETitle(ae string) string {
	if len(ae) > aeTitleLength {
		ae = ae[:aeTitleLength]
	}
	return fmt.Sprintf("%-16s", ae)
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
