package lark

import (
	"context"
	"encoding/json"
	"fmt"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkauthen "github.com/larksuite/oapi-sdk-go/v3/service/authen/v1"
	larkcontact "github.com/larksuite/oapi-sdk-go/v3/service/contact/v3"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
)

// Client wraps the Lark Open API SDK for one bot application.
type Client struct {
	c *lark.Client
}

func NewClient(appID, appSecret string) *Client {
	return &Client{c: lark.NewClient(appID, appSecret)}
}

// SendCard sends an interactive card to a chat and returns the message id,
// which becomes the thread root for the mirrored entity.
func (c *Client) SendCard(ctx context.Context, chatID, cardJSON string) (string, error) {
	return c.send(ctx, chatID, "interactive", cardJSON)
}

// SendCardToUser sends an interactive card directly to a user by open_id.
func (c *Client) SendCardToUser(ctx context.Context, openID, cardJSON string) (string, error) {
	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType("open_id").
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(openID).
			MsgType("interactive").
			Content(cardJSON).
			Build()).
		Build()
	resp, err := c.c.Im.Message.Create(ctx, req)
	if err != nil {
		return "", err
	}
	if !resp.Success() {
		return "", fmt.Errorf("lark send message: code=%d msg=%s", resp.Code, resp.Msg)
	}
	if resp.Data == nil || resp.Data.MessageId == nil {
		return "", fmt.Errorf("lark send message: missing message_id")
	}
	return *resp.Data.MessageId, nil
}

func (c *Client) send(ctx context.Context, chatID, msgType, content string) (string, error) {
	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType("chat_id").
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(chatID).
			MsgType(msgType).
			Content(content).
			Build()).
		Build()
	resp, err := c.c.Im.Message.Create(ctx, req)
	if err != nil {
		return "", err
	}
	if !resp.Success() {
		return "", fmt.Errorf("lark send message: code=%d msg=%s", resp.Code, resp.Msg)
	}
	if resp.Data == nil || resp.Data.MessageId == nil {
		return "", fmt.Errorf("lark send message: missing message_id")
	}
	return *resp.Data.MessageId, nil
}

// ReplyText replies in the thread under a root message.
func (c *Client) ReplyText(ctx context.Context, rootMessageID, text string) (string, error) {
	return c.reply(ctx, rootMessageID, "text", textContent(text))
}

// ReplyCard replies with an interactive card in a thread.
func (c *Client) ReplyCard(ctx context.Context, rootMessageID, cardJSON string) (string, error) {
	return c.reply(ctx, rootMessageID, "interactive", cardJSON)
}

func (c *Client) reply(ctx context.Context, messageID, msgType, content string) (string, error) {
	req := larkim.NewReplyMessageReqBuilder().
		MessageId(messageID).
		Body(larkim.NewReplyMessageReqBodyBuilder().
			MsgType(msgType).
			Content(content).
			Build()).
		Build()
	resp, err := c.c.Im.Message.Reply(ctx, req)
	if err != nil {
		return "", err
	}
	if !resp.Success() {
		return "", fmt.Errorf("lark reply message: code=%d msg=%s", resp.Code, resp.Msg)
	}
	if resp.Data == nil || resp.Data.MessageId == nil {
		return "", fmt.Errorf("lark reply message: missing message_id")
	}
	return *resp.Data.MessageId, nil
}

// UpdateCard patches an interactive card in place, used when a mirrored
// issue/PR changes state.
func (c *Client) UpdateCard(ctx context.Context, messageID, cardJSON string) error {
	req := larkim.NewPatchMessageReqBuilder().
		MessageId(messageID).
		Body(larkim.NewPatchMessageReqBodyBuilder().
			Content(cardJSON).
			Build()).
		Build()
	resp, err := c.c.Im.Message.Patch(ctx, req)
	if err != nil {
		return err
	}
	if !resp.Success() {
		return fmt.Errorf("lark update card: code=%d msg=%s", resp.Code, resp.Msg)
	}
	return nil
}

// CreateChatGroup creates a group chat with the given members and returns the
// chat id.
func (c *Client) CreateChatGroup(ctx context.Context, name string, openIDs []string) (string, error) {
	req := larkim.NewCreateChatReqBuilder().
		UserIdType("open_id").
		Body(larkim.NewCreateChatReqBodyBuilder().
			Name(name).
			UserIdList(openIDs).
			Build()).
		Build()
	resp, err := c.c.Im.Chat.Create(ctx, req)
	if err != nil {
		return "", err
	}
	if !resp.Success() {
		return "", fmt.Errorf("lark create chat: code=%d msg=%s", resp.Code, resp.Msg)
	}
	if resp.Data == nil || resp.Data.ChatId == nil {
		return "", fmt.Errorf("lark create chat: missing chat_id")
	}
	return *resp.Data.ChatId, nil
}

// Contact is a flattened directory entry.
type Contact struct {
	OpenID string
	Name   string
	EnName string
	Avatar string
}

// ListContacts pages through the root department's visible users.
func (c *Client) ListContacts(ctx context.Context) ([]Contact, error) {
	var out []Contact
	pageToken := ""
	for {
		builder := larkcontact.NewFindByDepartmentUserReqBuilder().
			UserIdType("open_id").
			DepartmentIdType("department_id").
			DepartmentId("0").
			PageSize(50)
		if pageToken != "" {
			builder = builder.PageToken(pageToken)
		}
		resp, err := c.c.Contact.User.FindByDepartment(ctx, builder.Build())
		if err != nil {
			return nil, err
		}
		if !resp.Success() {
			return nil, fmt.Errorf("lark list contacts: code=%d msg=%s", resp.Code, resp.Msg)
		}
		if resp.Data == nil {
			break
		}
		for _, u := range resp.Data.Items {
			contact := Contact{
				OpenID: deref(u.OpenId),
				Name:   deref(u.Name),
				EnName: deref(u.EnName),
			}
			if u.Avatar != nil {
				contact.Avatar = deref(u.Avatar.Avatar240)
			}
			out = append(out, contact)
		}
		if resp.Data.HasMore == nil || !*resp.Data.HasMore || resp.Data.PageToken == nil {
			break
		}
		pageToken = *resp.Data.PageToken
	}
	return out, nil
}

// ExchangeUserAccessToken trades an OAuth authorization code for the user's
// identity, used by the identity-bind callback.
func (c *Client) ExchangeUserAccessToken(ctx context.Context, code string) (openID, name string, err error) {
	req := larkauthen.NewCreateAccessTokenReqBuilder().
		Body(larkauthen.NewCreateAccessTokenReqBodyBuilder().
			GrantType("authorization_code").
			Code(code).
			Build()).
		Build()
	resp, err := c.c.Authen.AccessToken.Create(ctx, req)
	if err != nil {
		return "", "", err
	}
	if !resp.Success() {
		return "", "", fmt.Errorf("lark oauth exchange: code=%d msg=%s", resp.Code, resp.Msg)
	}
	if resp.Data == nil || resp.Data.OpenId == nil {
		return "", "", fmt.Errorf("lark oauth exchange: missing open_id")
	}
	return *resp.Data.OpenId, deref(resp.Data.Name), nil
}

// ExtractText parses the text field from a Lark message content payload,
// which arrives as a JSON string like {"text":"hello"}.
func ExtractText(raw string) string {
	if raw == "" {
		return ""
	}
	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return ""
	}
	return parsed.Text
}

func textContent(text string) string {
	payload, _ := json.Marshal(map[string]string{"text": text})
	return string(payload)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
