// Package commands routes slash commands received by the bot to handlers.
package commands

import (
	"context"
	"errors"
	"runtime/debug"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	rtsup "ordercast/internal/runtime/supervisor"
	kit "ordercast/internal/transport"
	"ordercast/pkg/logx"
)

type Request struct {
	Message kit.Message
	Command string
	Args    []string
	Logger  logx.Logger

	sender kit.Sender
}

// Reply sends plain text back to the chat the command came from.
func (r *Request) Reply(ctx context.Context, text string) error {
	_, err := r.sender.SendText(ctx, r.Message.Chat, text, &kit.SendOptions{DisablePreview: true})
	return err
}

type HandlerFunc func(ctx context.Context, req *Request) error

type Command struct {
	Name        string
	Description string
	Timeout     time.Duration
	Handle      HandlerFunc
}

type Router struct {
	log     logx.Logger
	sender  kit.Sender
	workers int
	timeout time.Duration

	mu   sync.RWMutex
	cmds map[string]Command
	jobs chan func()
}

func NewRouter(sender kit.Sender, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{
		log:     log,
		sender:  sender,
		workers: 2,
		timeout: 30 * time.Second,
		cmds:    map[string]Command{},
		jobs:    make(chan func(), 64),
	}
}

func (r *Router) Register(cmds ...Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range cmds {
		name := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(c.Name), "/"))
		if name == "" || c.Handle == nil {
			continue
		}
		c.Name = name
		r.cmds[name] = c
	}
}

// Commands returns registered commands sorted by name.
func (r *Router) Commands() []Command {
	r.mu.RLock()
	out := make([]Command, 0, len(r.cmds))
	for _, c := range r.cmds {
		out = append(out, c)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// DispatchLoop reads messages until ctx is done or in is closed, running
// matched commands on a small worker pool.
func (r *Router) DispatchLoop(ctx context.Context, in <-chan kit.Message) error {
	sup := rtsup.New(ctx,
		rtsup.WithLogger(r.log),
		rtsup.WithCancelOnError(false),
	)
	for i := 0; i < r.workers; i++ {
		idx := i
		sup.GoRestart("command.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-r.jobs:
					if !ok {
						return nil
					}
					job()
				}
			}
		}, rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second))
	}
	r.log.Info("command dispatcher started", logx.Int("workers", r.workers))

	defer func() {
		sup.Cancel()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		r.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-in:
			if !ok {
				return nil
			}
			job := r.route(ctx, msg)
			if job == nil {
				continue
			}
			select {
			case r.jobs <- job:
			default:
				r.log.Warn("command queue full; dropping", logx.String("text", msg.Text))
			}
		}
	}
}

// Handle routes and runs one message synchronously.
func (r *Router) Handle(ctx context.Context, msg kit.Message) {
	if job := r.route(ctx, msg); job != nil {
		job()
	}
}

func (r *Router) route(ctx context.Context, msg kit.Message) func() {
	name, args, ok := parseCommand(msg.Text)
	if !ok {
		return nil
	}
	r.mu.RLock()
	cmd, found := r.cmds[name]
	r.mu.RUnlock()
	if !found {
		r.log.Debug("unknown command", logx.String("cmd", name), logx.String("chat_id", msg.Chat.String()))
		return nil
	}

	req := &Request{
		Message: msg,
		Command: name,
		Args:    args,
		Logger:  r.log.With(logx.String("cmd", name), logx.String("chat_id", msg.Chat.String())),
		sender:  r.sender,
	}
	return func() { r.run(ctx, cmd, req) }
}

func (r *Router) run(ctx context.Context, cmd Command, req *Request) {
	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = r.timeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				req.Logger.Error("panic recovered", logx.Any("panic", p), logx.String("stack", string(debug.Stack())))
				err = errors.New("command panicked")
			}
		}()
		return cmd.Handle(cctx, req)
	}()

	fields := []logx.Field{
		logx.Int64("from_id", req.Message.FromID),
		logx.Duration("took", time.Since(start)),
	}
	if err != nil {
		req.Logger.Warn("command failed", append(fields, logx.Err(err))...)
		return
	}
	req.Logger.Debug("command ok", fields...)
}

// parseCommand extracts "/name@bot arg1 arg2". Names are case-insensitive.
func parseCommand(text string) (string, []string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", nil, false
	}
	parts := strings.Fields(text)
	word := strings.TrimPrefix(parts[0], "/")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	if word == "" {
		return "", nil, false
	}
	return strings.ToLower(word), parts[1:], true
}
