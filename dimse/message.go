package dimse

import (
	"fmt"

	dicomerrors "github.com/caio-sobreiro/dicomul/errors"
	"github.com/caio-sobreiro/dicomul/pdu"
	"github.com/caio-sobreiro/dicomul/types"
)

// Received is a fully reassembled DIMSE message.
type Received struct {
	ContextID byte
	Message   *types.Message
	Data      []byte
}

// Assembler rebuilds DIMSE messages from the PDVs of successive P-DATA-TF
// PDUs. It is not safe for concurrent use; the reading goroutine owns it.
type Assembler struct {
	contextID   byte
	inProgress  bool
	commandData []byte
	datasetData []byte
	current     *types.Message
}

// NewAssembler returns an empty assembler.
func NewAssembler() *Assembler {
	return &Assembler{}
}

// Feed consumes one PDV. It returns the completed message once the command
// and, when announced, its data set have both been received.
func (a *Assembler) Feed(v *pdu.PDV) (*Received, error) {
	if a.inProgress && v.ContextID != a.contextID {
		return nil, fmt.Errorf("%w: PDV for context %d interleaved with message on context %d",
			dicomerrors.ErrInvalidMessage, v.ContextID, a.contextID)
	}
	a.contextID = v.ContextID
	a.inProgress = true

	if v.Command {
		if a.current != nil {
			return nil, fmt.Errorf("%w: command fragment after complete command", dicomerrors.ErrInvalidMessage)
		}
		a.commandData = append(a.commandData, v.Data...)
		if !v.Last {
			return nil, nil
		}
		msg, err := DecodeCommand(a.commandData)
		if err != nil {
			return nil, err
		}
		a.current = msg
		if !msg.HasDataSet() {
			return a.complete(), nil
		}
		return nil, nil
	}

	if a.current == nil {
		return nil, fmt.Errorf("%w: data set fragment before command", dicomerrors.ErrInvalidMessage)
	}
	a.datasetData = append(a.datasetData, v.Data...)
	if v.Last {
		return a.complete(), nil
	}
	return nil, nil
}

func (a *Assembler) complete() *Received {
	r := &Received{
		ContextID: a.contextID,
		Message:   a.current,
		Data:      a.datasetData,
	}
	*a = Assembler{}
	return r
}

// Fragment splits an encoded command and optional data set into P-DATA-TF
// PDUs no larger than maxPDULength. A maxPDULength of 0 places each part in
// a single PDV. The command never shares a PDU with the data set.
func Fragment(contextID byte, command, data []byte, maxPDULength uint32) []*pdu.PDataTF {
	out := fragmentPart(contextID, true, command, maxPDULength)
	if data != nil {
		out = append(out, fragmentPart(contextID, false, data, maxPDULength)...)
	}
	return out
}

func fragmentPart(contextID byte, command bool, data []byte, maxPDULength uint32) []*pdu.PDataTF {
	// max length bounds the PDU body: PDV length field, context ID and header byte
	chunk := len(data)
	if maxPDULength > 0 {
		chunk = int(maxPDULength) - 6
		if chunk < 1 {
			chunk = 1
		}
	}

	var out []*pdu.PDataTF
	offset := 0
	for {
		end := offset + chunk
		last := false
		if end >= len(data) {
			end = len(data)
			last = true
		}
		out = append(out, &pdu.PDataTF{PDVs: []pdu.PDV{{
			ContextID: contextID,
			Command:   command,
			Last:      last,
			Data:      data[offset:end],
		}}})
		if last {
			return out
		}
		offset = end
	}
}

// Encode builds the P-DATA-TF PDUs for msg and its data set.
func Encode(contextID byte, msg *types.Message, data []byte, maxPDULength uint32) ([]*pdu.PDataTF, error) {
	if msg.HasDataSet() && data == nil {
		return nil, fmt.Errorf("%w: %s announces a data set but none was given",
			dicomerrors.ErrInvalidMessage, types.CommandName(msg.CommandField))
	}
	if !msg.HasDataSet() && data != nil {
		return nil, fmt.Errorf("%w: %s carries a data set but announces none",
			dicomerrors.ErrInvalidMessage, types.CommandName(msg.CommandField))
	}
	command, err := EncodeCommand(msg)
	if err != nil {
		return nil, err
	}
	return Fragment(contextID, command, data, maxPDULength), nil
}
