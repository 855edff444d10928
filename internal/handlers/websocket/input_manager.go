package websocket

import (
	"context"

	"github.com/gorilla/websocket"
	"github.com/xpanvictor/voxline/internal/domains/sys_manager/pipeline"
	"github.com/xpanvictor/voxline/pkg/Logger"
)

// InputStreamManager turns client frames into pipeline commands.
type InputStreamManager struct {
	logger *Logger.Logger
}

func NewInputStreamManager(logger *Logger.Logger) *InputStreamManager {
	return &InputStreamManager{logger: logger}
}

// Dispatch forwards one frame. Binary frames are audio; text frames are
// control messages. A malformed text frame fails the session.
func (m *InputStreamManager) Dispatch(ctx context.Context, p *pipeline.Pipeline, messageType int, data []byte) error {
	switch messageType {
	case websocket.BinaryMessage:
		return p.PushAudio(ctx, data)
	case websocket.TextMessage:
		msg, err := decodeClientMessage(data)
		if err != nil {
			m.logger.Debugf("rejecting client frame: %v", err)
			return p.Fail(ctx, err)
		}
		switch msg.Type {
		case MessageTypeInterrupt:
			return p.Interrupt(ctx)
		case MessageTypeEnd:
			return p.End(ctx)
		case MessageTypeConfig:
			return p.Configure(ctx, msg.Values)
		}
	}
	return nil
}
