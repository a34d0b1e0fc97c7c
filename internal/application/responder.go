package application

import (
	"context"
	"strings"
)

// Responder forwards transcriptions to a ChatModel.
type Responder struct {
	chat ChatModel
}

func NewResponder(chat ChatModel) *Responder {
	return &Responder{chat: chat}
}

// Send returns the model's reply to text. Blank text is not sent.
func (r *Responder) Send(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}
	return r.chat.Complete(ctx, text)
}
