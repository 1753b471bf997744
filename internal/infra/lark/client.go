package lark

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	larksdk "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	"github.com/larksuite/oapi-sdk-go/v3/event/dispatcher"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	larkws "github.com/larksuite/oapi-sdk-go/v3/ws"
	"go.uber.org/zap"
)

// Message represents a received chat message
type Message struct {
	ChatID     string
	MsgID      string
	ChatType   string // p2p (private), group
	ThreadID   string // topic root, empty outside topics
	Content    string // extracted text content
	SenderID   string // sender open_id
	CreateTime int64  // milliseconds Unix timestamp
}

// MessageHandler is the callback for received messages
type MessageHandler func(msg *Message)

// Client is the Lark API client
type Client struct {
	appID     string
	appSecret string
	larkCli   *larksdk.Client
	wsCli     *larkws.Client
	onMessage MessageHandler
	logger    *zap.Logger
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewClient creates a new Lark client
func NewClient(appID, appSecret string, logger *zap.Logger) *Client {
	return &Client{
		appID:     appID,
		appSecret: appSecret,
		logger:    logger,
	}
}

// OnMessage sets the message handler
func (c *Client) OnMessage(handler MessageHandler) {
	c.onMessage = handler
}

// Start connects via WebSocket and starts listening for messages
func (c *Client) Start() error {
	c.ctx, c.cancel = context.WithCancel(context.Background())

	c.larkCli = larksdk.NewClient(c.appID, c.appSecret)

	// Note: Must return quickly so SDK can send ACK, otherwise the platform
	// will retry due to timeout
	eventHandler := dispatcher.NewEventDispatcher("", "").
		OnP2MessageReceiveV1(func(ctx context.Context, event *larkim.P2MessageReceiveV1) error {
			go c.handleMessage(event)
			return nil
		})

	c.wsCli = larkws.NewClient(c.appID, c.appSecret,
		larkws.WithEventHandler(eventHandler),
		larkws.WithLogLevel(larkcore.LogLevelInfo),
	)

	c.logger.Info("starting websocket connection")

	// Start WebSocket (blocking)
	return c.wsCli.Start(c.ctx)
}

// Stop disconnects the client
func (c *Client) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
}

// handleMessage processes incoming messages
func (c *Client) handleMessage(event *larkim.P2MessageReceiveV1) {
	rawMsg := event.Event.Message
	if rawMsg == nil {
		return
	}

	// Filter out messages sent by the bot itself to prevent loops
	if event.Event.Sender != nil && event.Event.Sender.SenderType != nil {
		if *event.Event.Sender.SenderType == "app" {
			return
		}
	}

	// Only text messages carry questions; drop stickers, images and the rest
	if rawMsg.MessageType == nil || *rawMsg.MessageType != larkim.MsgTypeText {
		return
	}

	msg := &Message{
		ChatID: *rawMsg.ChatId,
		MsgID:  *rawMsg.MessageId,
	}

	if rawMsg.ChatType != nil {
		msg.ChatType = *rawMsg.ChatType
	}
	if rawMsg.ThreadId != nil {
		msg.ThreadID = *rawMsg.ThreadId
	}
	if rawMsg.CreateTime != nil {
		if ts, err := strconv.ParseInt(*rawMsg.CreateTime, 10, 64); err == nil {
			msg.CreateTime = ts
		}
	}

	if event.Event.Sender != nil && event.Event.Sender.SenderId != nil {
		if event.Event.Sender.SenderId.OpenId != nil {
			msg.SenderID = *event.Event.Sender.SenderId.OpenId
		}
	}

	if rawMsg.Content != nil {
		msg.Content = parseTextContent(*rawMsg.Content)
	}
	if strings.TrimSpace(msg.Content) == "" {
		return
	}

	if c.onMessage != nil {
		c.onMessage(msg)
	}
}

// parseTextContent extracts plain text from a text message payload
func parseTextContent(content string) string {
	var textContent struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(content), &textContent); err != nil {
		return content
	}
	return textContent.Text
}

// SendText sends a text message. The receive id type is derived from the
// id prefix: ou_ for users, oc_ for chats.
func (c *Client) SendText(ctx context.Context, receiveID, text string) error {
	content := map[string]string{"text": text}
	contentJSON, _ := json.Marshal(content)

	receiveIDType := larkim.ReceiveIdTypeChatId
	if strings.HasPrefix(receiveID, "ou_") {
		receiveIDType = larkim.ReceiveIdTypeOpenId
	}

	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(receiveIDType).
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(receiveID).
			MsgType(larkim.MsgTypeText).
			Content(string(contentJSON)).
			Build()).
		Build()

	resp, err := c.larkCli.Im.Message.Create(ctx, req)
	if err != nil {
		return fmt.Errorf("send message failed: %w", err)
	}
	if !resp.Success() {
		return fmt.Errorf("send message error: %s", resp.Msg)
	}

	c.logger.Debug("message sent", zap.String("receive_id", receiveID))
	return nil
}

// ReplyInThread sends a text message into the topic rooted at threadID.
func (c *Client) ReplyInThread(ctx context.Context, threadID, text string) error {
	content := map[string]string{"text": text}
	contentJSON, _ := json.Marshal(content)

	req := larkim.NewReplyMessageReqBuilder().
		MessageId(threadID).
		Body(larkim.NewReplyMessageReqBodyBuilder().
			MsgType(larkim.MsgTypeText).
			Content(string(contentJSON)).
			ReplyInThread(true).
			Build()).
		Build()

	resp, err := c.larkCli.Im.Message.Reply(ctx, req)
	if err != nil {
		return fmt.Errorf("reply in thread failed: %w", err)
	}
	if !resp.Success() {
		return fmt.Errorf("reply in thread error: %s", resp.Msg)
	}

	c.logger.Debug("thread reply sent", zap.String("thread_id", threadID))
	return nil
}
