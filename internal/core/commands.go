package core

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Admin command literals, matched exactly after trimming
const (
	CommandAddWhitelist     = "添加检测白名单"
	CommandEnableAutoRecall = "开启自动撤回"
	CommandRemoveWhitelist  = "移除检测白名单"
	CommandListWhitelist    = "查看白名单"
)

// CommandHandler executes admin commands against the policy store and
// replies in the group the command came from
type CommandHandler struct {
	policy  PolicyWriter
	gateway Gateway
	logger  *zap.Logger
}

// NewCommandHandler creates a new admin command handler
func NewCommandHandler(policy PolicyWriter, gateway Gateway, logger *zap.Logger) *CommandHandler {
	return &CommandHandler{
		policy:  policy,
		gateway: gateway,
		logger:  logger,
	}
}

// Handle runs the command in text for groupID. Unrecognized text is a
// silent no-op and reports false.
func (h *CommandHandler) Handle(ctx context.Context, groupID, text string) (bool, error) {
	command := strings.TrimSpace(text)
	reply, ok := h.execute(ctx, groupID, command)
	if !ok {
		h.logger.Debug("Ignoring unrecognized admin text",
			zap.String("group_id", groupID),
			zap.String("text", command))
		return false, nil
	}

	h.logger.Info("Executed admin command",
		zap.String("group_id", groupID),
		zap.String("command", command))

	if err := h.gateway.SendMessage(ctx, MessageGroup, groupID, reply); err != nil {
		return true, fmt.Errorf("failed to send command reply: %w", err)
	}
	return true, nil
}

func (h *CommandHandler) execute(ctx context.Context, groupID, command string) (string, bool) {
	switch command {
	case CommandAddWhitelist:
		if h.policy.AddWhitelist(ctx, groupID) {
			return "✅ 当前群聊已添加到图片检测白名单", true
		}
		return "ℹ️ 当前群聊已在白名单中", true

	case CommandEnableAutoRecall:
		if h.policy.EnableAutoRecall(ctx, groupID) {
			return "✅ 当前群聊已开启自动撤回违规消息", true
		}
		return "ℹ️ 当前群聊已开启自动撤回", true

	case CommandRemoveWhitelist:
		if h.policy.RemoveWhitelist(ctx, groupID) {
			return "✅ 当前群聊已从图片检测白名单移除", true
		}
		return "ℹ️ 当前群聊不在白名单中", true

	case CommandListWhitelist:
		return formatWhitelist(h.policy.ListWhitelist()), true

	default:
		return "", false
	}
}

func formatWhitelist(groups []string) string {
	if len(groups) == 0 {
		return "📋 白名单为空"
	}
	var b strings.Builder
	b.WriteString("📋 当前白名单群聊:")
	for _, g := range groups {
		b.WriteString("\n- ")
		b.WriteString(g)
	}
	return b.String()
}
