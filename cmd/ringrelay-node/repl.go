package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"unicode"

	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"

	"ringrelay/internal/daemon"
)

const replHelp = `commands:
  send <text>                 broadcast text to every node
  sendto <peer|alias> <text>  deliver text to one node
  table [peer|alias]          multi-line message, ended by an empty line
  whitelist <peer>            admit a peer and share the network state with it
  authorize <peer>            accept control messages from a peer
  alias <name>                claim an alias
  upgrade self <addr>         install the executable served at addr
  upgrade <peer|all> <addr>   ask a node, or every node, to upgrade from addr
  serve <path> | serve stop   offer an executable to peers
  show <what>                 alias aliases discovered connected rejected members
                              addrs id senders whitelist mailbox
  quit`

var showTopics = map[string]bool{
	"alias":      true,
	"aliases":    true,
	"discovered": true,
	"connected":  true,
	"rejected":   true,
	"members":    true,
	"addrs":      true,
	"id":         true,
	"senders":    true,
	"whitelist":  true,
	"mailbox":    true,
}

// action is the outcome of one console line.
type action struct {
	cmd  daemon.Command
	show string
	help bool
	quit bool
}

// parser turns console lines into actions. It keeps the state of table mode.
type parser struct {
	table  bool
	target string
	lines  []string
}

// feed consumes one line. A nil action means there is nothing to do yet.
func (p *parser) feed(line string) (*action, error) {
	if p.table {
		if strings.TrimSpace(line) != "" {
			p.lines = append(p.lines, line)
			return nil, nil
		}
		text, target := strings.Join(p.lines, "\n"), p.target
		p.table, p.target, p.lines = false, "", nil
		if text == "" {
			return nil, nil
		}
		return &action{cmd: daemon.Send{Target: target, Text: text}}, nil
	}

	word, rest := splitWord(line)
	if word == "" {
		return nil, nil
	}
	args := strings.Fields(rest)
	switch word {
	case "send":
		if rest == "" {
			return nil, errors.New("usage: send <text>")
		}
		return &action{cmd: daemon.Send{Text: rest}}, nil
	case "sendto":
		target, text := splitWord(rest)
		if target == "" || text == "" {
			return nil, errors.New("usage: sendto <peer|alias> <text>")
		}
		return &action{cmd: daemon.Send{Target: target, Text: text}}, nil
	case "table":
		if len(args) > 1 {
			return nil, errors.New("usage: table [peer|alias]")
		}
		p.table = true
		if len(args) == 1 {
			p.target = args[0]
		}
		return nil, nil
	case "whitelist":
		if len(args) != 1 {
			return nil, errors.New("usage: whitelist <peer>")
		}
		return &action{cmd: daemon.Whitelist{Peer: args[0]}}, nil
	case "authorize":
		if len(args) != 1 {
			return nil, errors.New("usage: authorize <peer>")
		}
		return &action{cmd: daemon.Authorize{Peer: args[0]}}, nil
	case "alias":
		if len(args) != 1 {
			return nil, errors.New("usage: alias <name>")
		}
		return &action{cmd: daemon.SetAlias{Alias: args[0]}}, nil
	case "upgrade":
		if len(args) != 2 {
			return nil, errors.New("usage: upgrade self|all|<peer> <addr>")
		}
		switch args[0] {
		case "self":
			return &action{cmd: daemon.UpgradeSelf{Addr: args[1]}}, nil
		case "all":
			return &action{cmd: daemon.Upgrade{Addr: args[1]}}, nil
		default:
			return &action{cmd: daemon.Upgrade{Target: args[0], Addr: args[1]}}, nil
		}
	case "serve":
		if len(args) != 1 {
			return nil, errors.New("usage: serve <path>|stop")
		}
		if args[0] == "stop" {
			return &action{cmd: daemon.ServeStop{}}, nil
		}
		return &action{cmd: daemon.Serve{Path: args[0]}}, nil
	case "show":
		if len(args) != 1 || !showTopics[args[0]] {
			return nil, errors.New("usage: show alias|aliases|discovered|connected|rejected|members|addrs|id|senders|whitelist|mailbox")
		}
		return &action{show: args[0]}, nil
	case "help", "?":
		return &action{help: true}, nil
	case "quit", "exit":
		return &action{quit: true}, nil
	}
	return nil, errors.Errorf("unknown command %q, try help", word)
}

// splitWord returns the first whitespace separated word of s and the
// trimmed remainder.
func splitWord(s string) (string, string) {
	s = strings.TrimSpace(s)
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i:])
}

type repl struct {
	client  *daemon.Client
	out     io.Writer
	noticef func(format string, args ...any)
	parser  parser
}

func newREPL(client *daemon.Client, out io.Writer, noticef func(string, ...any)) *repl {
	return &repl{client: client, out: out, noticef: noticef}
}

// run reads commands from in until quit, ctx cancellation or a stopped
// daemon. End of input leaves the node running until ctx is done.
func (r *repl) run(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				<-ctx.Done()
				return nil
			}
			if r.handle(ctx, line) {
				r.client.Close()
				return nil
			}
		}
	}
}

// handle executes one line and reports whether the console should stop.
func (r *repl) handle(ctx context.Context, line string) bool {
	wasTable := r.parser.table
	act, err := r.parser.feed(line)
	if err != nil {
		r.noticef("%v", err)
		return false
	}
	if !wasTable && r.parser.table {
		r.noticef("table mode, finish with an empty line")
	}
	if act == nil {
		return false
	}
	switch {
	case act.quit:
		return true
	case act.help:
		fmt.Fprintln(r.out, replHelp)
	case act.show != "":
		if err := r.show(ctx, act.show); err != nil {
			r.noticef("show %s: %v", act.show, err)
			return errors.Is(err, daemon.ErrStopped)
		}
	case act.cmd != nil:
		if err := r.client.Do(ctx, act.cmd); err != nil {
			r.noticef("%v", err)
			return errors.Is(err, daemon.ErrStopped)
		}
	}
	return false
}

func (r *repl) show(ctx context.Context, topic string) error {
	var (
		rows [][]string
		err  error
	)
	header := []string{strings.ToUpper(topic)}
	switch topic {
	case "id", "alias":
		var v string
		if topic == "id" {
			v, err = r.client.LocalID(ctx)
		} else {
			v, err = r.client.Alias(ctx)
		}
		if err != nil {
			return err
		}
		if v == "" {
			v = "(none)"
		}
		fmt.Fprintln(r.out, v)
		return nil
	case "aliases", "mailbox":
		var m map[string]string
		if topic == "aliases" {
			header = []string{"ALIAS", "PEER"}
			m, err = r.client.Aliases(ctx)
		} else {
			header = []string{"OWNER", "PAYLOAD"}
			m, err = r.client.Mailbox(ctx)
		}
		rows = mapRows(m)
	default:
		var list []string
		switch topic {
		case "discovered":
			list, err = r.client.Discovered(ctx)
		case "connected":
			list, err = r.client.Connected(ctx)
		case "rejected":
			list, err = r.client.Rejected(ctx)
		case "members":
			list, err = r.client.Members(ctx)
		case "addrs":
			list, err = r.client.ListenAddrs(ctx)
		case "senders":
			list, err = r.client.AuthorizedSenders(ctx)
		case "whitelist":
			list, err = r.client.Whitelisted(ctx)
		}
		for _, v := range list {
			rows = append(rows, []string{v})
		}
	}
	if err != nil {
		return err
	}
	renderTable(r.out, header, rows)
	return nil
}

// mapRows sorts m by key. The broadcast fallback, stored under the empty
// key, is shown as "*".
func mapRows(m map[string]string) [][]string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		name := k
		if name == "" {
			name = "*"
		}
		rows = append(rows, []string{name, m[k]})
	}
	return rows
}

func renderTable(w io.Writer, header []string, rows [][]string) {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	table.SetHeaderLine(false)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeader(header)
	table.AppendBulk(rows)
	table.Render()
}
