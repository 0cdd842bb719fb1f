// Package gateway connects the dispatcher to a chat network.
package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"VKBot/core"
	"VKBot/core/dispatch"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"
)

// Message adapts a network message to dispatch.IncomingMessage.
type Message struct {
	*discordgo.Message
}

func (m Message) Text() string           { return m.Content }
func (m Message) ConversationID() string { return m.ChannelID }
func (m Message) Timestamp() time.Time   { return m.Message.Timestamp }

func (m Message) AuthorID() string {
	if m.Author == nil {
		return ""
	}
	return m.Author.ID
}

type channelSender interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Sender posts replies, at most perSecond of them with bursts of burst.
type Sender struct {
	session channelSender
	limiter *rate.Limiter
}

func NewSender(session channelSender, perSecond float64, burst int) *Sender {
	return &Sender{session: session, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (s *Sender) Send(ctx context.Context, conversationID, text string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("reply to %s: %w", conversationID, err)
	}
	_, err := s.session.ChannelMessageSend(conversationID, text, discordgo.WithContext(ctx))
	return err
}

// Gateway feeds incoming messages to a dispatcher, one goroutine per message.
type Gateway struct {
	d   *dispatch.MessageDispatcher
	ctx context.Context
	wg  sync.WaitGroup
}

func New(ctx context.Context, d *dispatch.MessageDispatcher) *Gateway {
	return &Gateway{d: d, ctx: ctx}
}

func (g *Gateway) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	if r.User == nil {
		return
	}
	g.d.SetSelfID(r.User.ID)
	core.LogInfoF("Logged in as %s (%s)", r.User.Username, r.User.ID)
}

func (g *Gateway) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	g.dispatch(m.Message)
}

func (g *Gateway) onMessageUpdate(_ *discordgo.Session, m *discordgo.MessageUpdate) {
	// Embed-only updates carry no author or content.
	if m.Author != nil && m.Content != "" {
		g.dispatch(m.Message)
	}
}

func (g *Gateway) dispatch(msg *discordgo.Message) {
	if msg == nil {
		return
	}
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		if err := g.d.Dispatch(g.ctx, Message{msg}); err != nil {
			core.LogErrorF("Failed to dispatch message %s: %v", msg.ID, err)
		}
	}()
}

// Wait blocks until every dispatched message is handled.
func (g *Gateway) Wait() {
	g.wg.Wait()
}

// Run connects with token and dispatches messages until ctx is done.
func Run(ctx context.Context, token string, d *dispatch.MessageDispatcher) error {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent

	perSecond, burst := core.Settings.ReplyRate()
	d.SetSender(NewSender(session, perSecond, burst))

	g := New(ctx, d)
	session.AddHandler(g.onReady)
	session.AddHandler(g.onMessageCreate)
	session.AddHandler(g.onMessageUpdate)

	if err := session.Open(); err != nil {
		return fmt.Errorf("open connection: %w", err)
	}
	core.LogInfoF("Bot is now running.  Press CTRL-C to exit.")

	<-ctx.Done()
	err = session.Close()
	g.Wait()
	return err
}
