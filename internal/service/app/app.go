package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"word_armor/internal/model"
	"word_armor/internal/utils/log"

	"github.com/gdamore/tcell/v2"
	"github.com/gorilla/websocket"
	"github.com/rivo/tview"
	"go.uber.org/zap"
)

type (
	App struct {
		app     *tview.Application
		chatbox *tview.TextView
		input   *tview.InputField

		session *Session
		host    string

		toName string

		writeMu sync.Mutex
		conn    *websocket.Conn
	}
)

func NewApp(session *Session, host string) *App {
	return &App{
		app:     tview.NewApplication(),
		session: session,
		host:    host,
	}
}

func (c *App) Run(ctx context.Context, toName string) error {
	c.toName = toName

	conn, err := initWebhook(c.host, c.session.cfg.User)
	if err != nil {
		return fmt.Errorf("init webhook to server failed: %w", err)
	}
	c.conn = conn

	go c.listenOnWebhook(ctx)
	return c.renderUI()
}

func (c *App) Stop() {
	c.app.Stop()
	if c.conn != nil {
		c.conn.Close()
	}
}

// blocking function
func (c *App) renderUI() error {
	c.chatbox = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	c.chatbox.SetBorder(true).SetTitle(fmt.Sprintf(" Chat with %s ", c.toName))

	c.input = tview.NewInputField().
		SetLabel("Message: ").
		SetFieldWidth(0)
	c.input.SetBorder(true).SetTitle(" New Message ")

	c.input.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		text := c.input.GetText()
		if text == "" {
			return
		}

		go func(msg string) {
			if err := c.SendMessage(msg); err != nil {
				log.Error("send message failed", zap.Error(err))
				c.app.QueueUpdateDraw(func() {
					fmt.Fprintf(c.chatbox, "[red]send failed:[-] %s\n", tview.Escape(err.Error()))
				})
			}
		}(text)
	})

	layout := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(c.chatbox, 0, 1, false).
		AddItem(c.input, 3, 0, true)

	return c.app.SetRoot(layout, true).SetFocus(c.input).Run()
}

func (c *App) listenOnWebhook(ctx context.Context) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			log.Debug("worker web socket closed", zap.Error(err))
			c.conn.Close()
			return
		}

		var env model.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Error("unmarshal envelope failed", zap.Error(err))
			continue
		}

		if err := c.ReceiveMessage(ctx, &env); err != nil {
			log.Error("receive message failed", zap.String("from", env.From), zap.Error(err))
		}
	}
}

func (c *App) SendMessage(msg string) error {
	envs, err := c.session.Armor(c.toName, []byte(msg))
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	for i := range envs {
		if err := c.conn.WriteJSON(&envs[i]); err != nil {
			c.writeMu.Unlock()
			return err
		}
	}
	c.writeMu.Unlock()
	log.Debug("message sent", zap.String("to", c.toName), zap.Int("fragments", len(envs)))

	c.app.QueueUpdateDraw(func() {
		fmt.Fprintf(c.chatbox, "[yellow]You:[-] %s\n", tview.Escape(msg))
		c.input.SetText("")
		c.chatbox.ScrollToEnd()
	})
	return nil
}

func (c *App) ReceiveMessage(ctx context.Context, env *model.Envelope) error {
	msg, done, err := c.session.Receive(ctx, env)
	if err != nil || !done {
		return err
	}

	c.app.QueueUpdateDraw(func() {
		fmt.Fprintf(c.chatbox, "[green]%s:[-] %s\n", tview.Escape(env.From), tview.Escape(string(msg)))
		c.chatbox.ScrollToEnd()
	})
	return nil
}
