package core

import (
	"ChatRelay/pkg/protocol"

	"go.uber.org/zap"
)

// dispatch 路由一条入站命令。只有连接的字节流已经不可用时才返回错误。
func (h *Hub) dispatch(c *Client, cmd protocol.Command) error {
	switch cmd.Kind {
	case protocol.CmdGroupCreate:
		h.handleCreateGroup(c, cmd)
	case protocol.CmdGroupJoin:
		h.handleJoinGroup(c, cmd)
	case protocol.CmdGroupMsg:
		if cmd.Err != nil {
			c.reply(protocol.GroupError, reasonFor(cmd.Err))
			return nil
		}
		if _, err := h.SendGroupMessage(c, cmd.Group, cmd.Text); err != nil {
			c.reply(protocol.GroupError, reasonFor(err))
		}
	case protocol.CmdFileTransfer:
		return h.relayFile(c, cmd)
	default:
		h.Broadcast(c, cmd.Text)
	}
	return nil
}

func (h *Hub) handleCreateGroup(c *Client, cmd protocol.Command) {
	if cmd.Err != nil {
		c.reply(protocol.GroupError, reasonFor(cmd.Err))
		return
	}
	if err := h.CreateGroup(cmd.Group, c); err != nil {
		c.reply(protocol.GroupError, reasonFor(err))
		return
	}
	c.reply(protocol.GroupCreated, cmd.Group)
}

func (h *Hub) handleJoinGroup(c *Client, cmd protocol.Command) {
	if cmd.Err != nil {
		c.reply(protocol.GroupError, reasonFor(cmd.Err))
		return
	}
	if err := h.JoinGroup(cmd.Group, c); err != nil {
		c.reply(protocol.GroupError, reasonFor(err))
		return
	}
	c.reply(protocol.GroupJoined, cmd.Group)
}

// Broadcast 把消息发给所有在线客户端（包括发送者），返回成功入队的数量
func (h *Hub) Broadcast(sender *Client, text string) int {
	frame := protocol.Frame{Line: protocol.BroadcastLine(sender.Username, text)}
	delivered := h.deliver(h.Clients(), frame)
	sender.log.Debug("广播消息", zap.Int("delivered", delivered))
	return delivered
}

// SendGroupMessage 把消息发给群组的所有成员。发送者必须是成员；
// 群组不存在或发送者不是成员时不投递给任何人。
func (h *Hub) SendGroupMessage(sender *Client, code, text string) (int, error) {
	members, err := h.ResolveFor(code, sender)
	if err != nil {
		return 0, err
	}
	frame := protocol.Frame{Line: protocol.GroupLine(code, sender.Username, text)}
	delivered := h.deliver(members, frame)
	sender.log.Debug("群组消息", zap.String("group", code), zap.Int("delivered", delivered))
	return delivered, nil
}

// deliver 在不持有 Hub 锁的情况下逐个入队。某个接收方失败只会断开它自己。
func (h *Hub) deliver(recipients []*Client, frame protocol.Frame) int {
	delivered := 0
	for _, r := range recipients {
		if err := r.Send(frame); err != nil {
			r.log.Debug("跳过接收方", zap.Error(err))
			continue
		}
		delivered++
	}
	return delivered
}
