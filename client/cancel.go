package client

import (
	"errors"
)

// SendCCancel sends a C-CANCEL-RQ for a request started with Invoke. The
// request still ends with a final response delivered to its handler.
// SendCFind, SendCMove and SendCGet cancel on their own when their context
// is done.
func (a *Association) SendCCancel(messageID uint16, sopClassUID string) error {
	if messageID == 0 {
		return errors.New("messageID must be non-zero for C-CANCEL")
	}
	if sopClassUID == "" {
		return errors.New("sopClassUID must be provided for C-CANCEL")
	}

	pc, err := a.PresentationContextFor(sopClassUID)
	if err != nil {
		return err
	}
	if err := a.Cancel(pc, messageID); err != nil {
		return err
	}
	a.logger.Debug("C-CANCEL sent", "message_id", messageID, "sop_class", sopClassUID)
	return nil
}
