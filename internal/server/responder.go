// Package server implements the completion responder that turns inbound chat
// messages into AI-generated replies broadcast through the hub.
package server

import (
	"context"
	"errors"

	openai "github.com/sashabaranov/go-openai"
	log "github.com/sirupsen/logrus"
)

// FallbackReply is broadcast in place of a generated reply whenever the
// completion call fails for any reason.
const FallbackReply = "AI response error"

// Completer produces a text completion for a prompt. Implementations must be
// safe for concurrent use.
type Completer interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// openAICompleter calls the OpenAI chat-completion API.
type openAICompleter struct {
	client *openai.Client
	model  string
}

// NewOpenAICompleter creates a Completer backed by the OpenAI API.
func NewOpenAICompleter(apiKey, model string) Completer {
	return &openAICompleter{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

func (c *openAICompleter) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     c.model,
		MaxTokens: maxTokens,
		Messages: []openai.ChatCompletionMessage{{
			Role:    openai.ChatMessageRoleUser,
			Content: prompt,
		}},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("completion response contained no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Responder synthesizes a reply for each submitted prompt and broadcasts it
// through the hub as an ordinary message. Reply synthesis never blocks the
// relay path and never surfaces an error to it: a failed completion is
// logged and replaced by FallbackReply.
type Responder struct {
	completer Completer
	hub       *Hub
	maxTokens int
}

// NewResponder creates a Responder broadcasting through hub.
func NewResponder(completer Completer, hub *Hub, maxTokens int) *Responder {
	return &Responder{
		completer: completer,
		hub:       hub,
		maxTokens: maxTokens,
	}
}

// Respond submits prompt for completion in a detached goroutine and returns
// immediately. The eventual reply, or the fallback text on error, is
// broadcast to every client registered at that moment. An in-flight request
// is not cancellable once issued.
func (r *Responder) Respond(prompt string) {
	go func() {
		reply, err := r.completer.Complete(context.Background(), prompt, r.maxTokens)
		if err != nil {
			log.WithError(err).Error("Completion request failed")
			reply = FallbackReply
		}
		r.hub.Broadcast(Message{Text: reply})
	}()
}
