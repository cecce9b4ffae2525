package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResponseCommandFor(t *testing.T) {
	tests := []struct {
		request  uint16
		expected uint16
	}{
		{CStoreRQ, CStoreRSP},
		{CGetRQ, CGetRSP},
		{CFindRQ, CFindRSP},
		{CMoveRQ, CMoveRSP},
		{CEchoRQ, CEchoRSP},
		{0x0100, 0x8100},
	}

	for _, tt := range tests {
		t.Run(CommandName(tt.request), func(t *testing.T) {
			assert.Equal(t, tt.expected, ResponseCommandFor(tt.request))
		})
	}
}

func TestIsPendingStatus(t *testing.T) {
	assert.True(t, IsPendingStatus(StatusPending))
	assert.True(t, IsPendingStatus(StatusPendingWarning))
	assert.False(t, IsPendingStatus(StatusSuccess))
	assert.False(t, IsPendingStatus(StatusCancel))
	assert.False(t, IsPendingStatus(StatusFailure))
}

func TestMessage_Classification(t *testing.T) {
	rq := &Message{CommandField: CFindRQ, CommandDataSetType: DataSetPresent}
	rsp := &Message{CommandField: CFindRSP, CommandDataSetType: NoDataSet}
	cancel := &Message{CommandField: CCancelRQ, CommandDataSetType: NoDataSet}

	assert.False(t, rq.IsResponse())
	assert.True(t, rq.HasDataSet())
	assert.True(t, rsp.IsResponse())
	assert.False(t, rsp.HasDataSet())
	assert.True(t, cancel.IsCancel())
	assert.False(t, cancel.IsResponse())
}

func TestCommandName(t *testing.T) {
	assert.Equal(t, "C-ECHO-RQ", CommandName(CEchoRQ))
	assert.Equal(t, "C-MOVE-RSP", CommandName(CMoveRSP))
	assert.Equal(t, "C-CANCEL-RQ", CommandName(CCancelRQ))
	assert.Equal(t, "UNKNOWN", CommandName(0x1234))
}
