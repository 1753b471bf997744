package server

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/beregbot/bereg/internal/infra/lark"
	"github.com/beregbot/bereg/internal/service"
)

// BotServer connects the chat transport to the message router.
type BotServer struct {
	client *lark.Client
	qaSvc  *service.QAService
	logger *zap.Logger

	// Message deduplication cache, the platform redelivers on slow acks
	seenMsgsMu sync.RWMutex
	seenMsgs   map[string]time.Time // msgID -> timestamp
}

// NewBotServer creates a new bot server
func NewBotServer(client *lark.Client, qaSvc *service.QAService, logger *zap.Logger) *BotServer {
	return &BotServer{
		client:   client,
		qaSvc:    qaSvc,
		logger:   logger,
		seenMsgs: make(map[string]time.Time),
	}
}

// Start starts the server and blocks on the transport connection.
func (s *BotServer) Start() error {
	s.client.OnMessage(s.handleMessage)
	return s.client.Start()
}

// Stop stops the server
func (s *BotServer) Stop() {
	s.client.Stop()
}

// handleMessage handles inbound chat messages
func (s *BotServer) handleMessage(msg *lark.Message) {
	if s.isMessageSeen(msg.MsgID) {
		s.logger.Debug("duplicate message ignored", zap.String("msgID", msg.MsgID))
		return
	}
	s.markMessageSeen(msg.MsgID)

	s.logger.Info("message received",
		zap.String("chatID", msg.ChatID),
		zap.String("senderID", msg.SenderID),
		zap.String("chatType", msg.ChatType))

	s.qaSvc.HandleMessage(context.Background(), &service.MessageRequest{
		ChatID:   msg.ChatID,
		SenderID: msg.SenderID,
		Content:  msg.Content,
	})
}

// isMessageSeen checks if a message has been processed
func (s *BotServer) isMessageSeen(msgID string) bool {
	s.seenMsgsMu.RLock()
	defer s.seenMsgsMu.RUnlock()
	_, exists := s.seenMsgs[msgID]
	return exists
}

// markMessageSeen marks a message as processed
func (s *BotServer) markMessageSeen(msgID string) {
	s.seenMsgsMu.Lock()
	defer s.seenMsgsMu.Unlock()
	s.seenMsgs[msgID] = time.Now()

	// Clean up records older than 5 minutes to prevent unbounded growth
	cutoff := time.Now().Add(-5 * time.Minute)
	for id, ts := range s.seenMsgs {
		if ts.Before(cutoff) {
			delete(s.seenMsgs, id)
		}
	}
}
