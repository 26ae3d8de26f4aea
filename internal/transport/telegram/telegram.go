// Package telegram is the Telegram surface of the bot: it answers /ht with
// the device menu and delivers pushes to "tg:" destinations.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"htbot/internal/transport"
	logx "htbot/pkg/logx"
)

// Prefix marks Telegram destinations: "tg:<chat>" or "tg:<chat>:<thread>".
const Prefix = "tg:"

var ErrBadDestination = errors.New("telegram: malformed destination")

type Config struct {
	Token       string
	PollTimeout time.Duration // default 10s
	// Offline skips the getMe handshake; used by tests.
	Offline bool
}

// FormatDestination renders the destination id of a chat (and forum topic).
func FormatDestination(chatID int64, threadID int) string {
	if threadID > 0 {
		return fmt.Sprintf("%s%d:%d", Prefix, chatID, threadID)
	}
	return fmt.Sprintf("%s%d", Prefix, chatID)
}

// ParseDestination is the inverse of FormatDestination.
func ParseDestination(dest string) (chatID int64, threadID int, err error) {
	rest, ok := strings.CutPrefix(dest, Prefix)
	if !ok || rest == "" {
		return 0, 0, ErrBadDestination
	}
	chatPart, threadPart, hasThread := strings.Cut(rest, ":")
	chatID, err = strconv.ParseInt(chatPart, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrBadDestination, dest)
	}
	if hasThread {
		threadID, err = strconv.Atoi(threadPart)
		if err != nil || threadID < 0 {
			return 0, 0, fmt.Errorf("%w: %q", ErrBadDestination, dest)
		}
	}
	return chatID, threadID, nil
}

// MenuMarkup is the inline keyboard carrying the three menu links.
func MenuMarkup(l transport.Links) *tele.ReplyMarkup {
	rm := &tele.ReplyMarkup{}
	rm.Inline(
		rm.Row(rm.URL(transport.LabelRegister, l.Register)),
		rm.Row(rm.URL(transport.LabelStatus, l.Status)),
		rm.Row(rm.URL(transport.LabelHistory, l.History)),
	)
	return rm
}

type Adapter struct {
	bot     *tele.Bot
	baseURL string
	log     logx.Logger

	runMu   sync.Mutex
	running bool
	runWG   sync.WaitGroup
	cancel  context.CancelFunc
}

func New(cfg Config, baseURL string, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		Poller:  &tele.LongPoller{Timeout: timeout},
		Offline: cfg.Offline,
	})
	if err != nil {
		return nil, err
	}
	a := &Adapter{bot: b, baseURL: baseURL, log: log}
	b.Handle(tele.OnText, a.onText)
	return a, nil
}

func (a *Adapter) onText(c tele.Context) error {
	m := c.Message()
	if m == nil || m.Chat == nil || !transport.IsMenuCommand(m.Text) {
		return nil
	}
	dest := FormatDestination(m.Chat.ID, m.ThreadID)
	links := transport.NewLinks(a.baseURL, dest)
	a.log.Info("menu sent", logx.String("chat", dest))
	return c.Send(transport.MenuTitle, &tele.SendOptions{ReplyMarkup: MenuMarkup(links), ThreadID: m.ThreadID})
}

// Send pushes text to a "tg:" destination.
func (a *Adapter) Send(ctx context.Context, destination, text string) error {
	chatID, thread, err := ParseDestination(destination)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err = a.bot.Send(&tele.Chat{ID: chatID}, text, &tele.SendOptions{ThreadID: thread, DisableWebPagePreview: true})
	return err
}

// Start begins long polling. It returns immediately.
func (a *Adapter) Start(ctx context.Context) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.running {
		return nil
	}
	a.running = true
	rctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if err := a.bot.SetCommands([]tele.Command{{Text: "ht", Description: transport.MenuAltText}}); err != nil {
		a.log.Warn("set commands failed", logx.Err(err))
	}

	a.runWG.Add(1)
	go func() {
		defer a.runWG.Done()
		go func() {
			<-rctx.Done()
			a.bot.Stop()
		}()
		a.log.Info("polling started")
		a.bot.Start() // blocks until Stop
	}()
	return nil
}

// Stop ends polling. It never waits longer than a short grace window for
// the in-flight getUpdates call.
func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	cancel := a.cancel
	a.cancel = nil
	wasRunning := a.running
	a.running = false
	a.runMu.Unlock()

	if !wasRunning {
		return nil
	}
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		a.runWG.Wait()
		close(done)
	}()

	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	t := time.NewTimer(grace)
	defer t.Stop()

	select {
	case <-done:
		a.log.Info("polling stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		a.log.Warn("telegram stop grace elapsed; continuing shutdown")
		return nil
	}
}
