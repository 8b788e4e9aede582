// Package display prints delivered messages to the console and records them
// in the message history.
package display

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"ringrelay/internal/store"
)

type Options struct {
	Out     io.Writer
	Color   bool
	History *store.Store
	Logger  *zap.Logger
	Now     func() time.Time
}

// Console implements daemon.Display.
type Console struct {
	mu      sync.Mutex
	out     io.Writer
	history *store.Store
	log     *zap.Logger
	now     func() time.Time

	stamp  *color.Color
	sender *color.Color
	body   *color.Color
	notice *color.Color
}

func New(opts Options) *Console {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	c := &Console{
		out:     opts.Out,
		history: opts.History,
		log:     opts.Logger.With(zap.String("component", "display")),
		now:     opts.Now,
		stamp:   color.New(),
		sender:  color.New(),
		body:    color.New(),
		notice:  color.New(),
	}
	if opts.Color {
		c.stamp = color.New(color.FgHiBlack)
		c.sender = color.New(color.FgHiCyan, color.Bold)
		c.notice = color.New(color.FgYellow)
	}
	for _, col := range []*color.Color{c.stamp, c.sender, c.body, c.notice} {
		if opts.Color {
			col.EnableColor()
		} else {
			col.DisableColor()
		}
	}
	return c
}

func (c *Console) Show(from, text string) {
	now := c.now()
	c.mu.Lock()
	c.print(now, from, text)
	c.mu.Unlock()
	if c.history == nil {
		return
	}
	if err := c.history.Append(store.Record{Time: now.UTC(), From: from, Text: text}); err != nil {
		c.log.Warn("history append failed", zap.String("path", c.history.Path()), zap.Error(err))
	}
}

func (c *Console) print(ts time.Time, from, text string) {
	fmt.Fprintf(c.out, "%s %s %s\n",
		c.stamp.Sprint(ts.Local().Format("15:04:05")),
		c.sender.Sprintf("[%s]", shortID(from)),
		c.body.Sprint(text))
}

// Noticef prints a status line that is not a delivered message.
func (c *Console) Noticef(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notice.Fprintf(c.out, format+"\n", args...)
}

// Write prints p unchanged, serialized with delivered messages.
func (c *Console) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out.Write(p)
}

// Replay prints the last n history records.
func (c *Console) Replay(n int) error {
	if c.history == nil || n == 0 {
		return nil
	}
	recs, err := c.history.Tail(n)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range recs {
		c.print(r.Time, r.From, r.Text)
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
