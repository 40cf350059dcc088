package proxy

import (
	"context"

	"github.com/nullroute-dev/llmgateway/canonical"
)

// injectSystemPrompt implements spec §4.5: if the request already carries a
// system message, it is left untouched; otherwise the user's model-specific
// preset (falling back to their global default) is prepended as the first
// system message. Returns a shallow copy so the caller's original request is
// never mutated.
func (c *Core) injectSystemPrompt(ctx context.Context, userID string, req *canonical.Request) *canonical.Request {
	for _, m := range req.Messages {
		if m.Role == canonical.RoleSystem {
			return req
		}
	}

	preset, err := c.store.GetSystemPromptForModel(ctx, userID, req.Model)
	if err != nil || preset == nil {
		return req
	}

	out := *req
	out.Messages = make([]canonical.Message, 0, len(req.Messages)+1)
	out.Messages = append(out.Messages, canonical.Message{
		Role:    canonical.RoleSystem,
		Content: canonical.MessageContent{Text: preset.Content},
	})
	out.Messages = append(out.Messages, req.Messages...)
	return &out
}
