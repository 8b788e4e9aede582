package main

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ringrelay/internal/daemon"
	"ringrelay/internal/daemon/mock_daemon"
	"ringrelay/internal/network"
	"ringrelay/internal/network/memnet"
)

func TestParserCommands(t *testing.T) {
	cases := []struct {
		line string
		want action
	}{
		{line: "send hello  world", want: action{cmd: daemon.Send{Text: "hello  world"}}},
		{line: "  sendto bob hi there ", want: action{cmd: daemon.Send{Target: "bob", Text: "hi there"}}},
		{line: "whitelist abcd", want: action{cmd: daemon.Whitelist{Peer: "abcd"}}},
		{line: "authorize abcd", want: action{cmd: daemon.Authorize{Peer: "abcd"}}},
		{line: "alias alice", want: action{cmd: daemon.SetAlias{Alias: "alice"}}},
		{line: "upgrade self 10.0.0.1:9803", want: action{cmd: daemon.UpgradeSelf{Addr: "10.0.0.1:9803"}}},
		{line: "upgrade all 10.0.0.1:9803", want: action{cmd: daemon.Upgrade{Addr: "10.0.0.1:9803"}}},
		{line: "upgrade bob 10.0.0.1:9803", want: action{cmd: daemon.Upgrade{Target: "bob", Addr: "10.0.0.1:9803"}}},
		{line: "serve /usr/bin/ringrelay-node", want: action{cmd: daemon.Serve{Path: "/usr/bin/ringrelay-node"}}},
		{line: "serve stop", want: action{cmd: daemon.ServeStop{}}},
		{line: "show members", want: action{show: "members"}},
		{line: "help", want: action{help: true}},
		{line: "quit", want: action{quit: true}},
		{line: "exit", want: action{quit: true}},
	}
	for _, tc := range cases {
		t.Run(tc.line, func(t *testing.T) {
			var p parser
			got, err := p.feed(tc.line)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, tc.want, *got)
		})
	}
}

func TestParserRejects(t *testing.T) {
	for _, line := range []string{
		"send",
		"sendto bob",
		"whitelist",
		"alias a b",
		"upgrade self",
		"serve",
		"show",
		"show secrets",
		"table a b",
		"frobnicate",
	} {
		var p parser
		_, err := p.feed(line)
		assert.Error(t, err, line)
	}
}

func TestParserBlankLine(t *testing.T) {
	var p parser
	act, err := p.feed("   ")
	require.NoError(t, err)
	assert.Nil(t, act)
}

func TestParserTableMode(t *testing.T) {
	var p parser
	for _, line := range []string{"table bob", "| a | b |", "| 1 | 2 |"} {
		act, err := p.feed(line)
		require.NoError(t, err)
		assert.Nil(t, act)
	}
	assert.True(t, p.table)

	act, err := p.feed("")
	require.NoError(t, err)
	require.NotNil(t, act)
	assert.Equal(t, daemon.Send{Target: "bob", Text: "| a | b |\n| 1 | 2 |"}, act.cmd)
	assert.False(t, p.table)

	// An empty table sends nothing and a bare table broadcasts.
	_, _ = p.feed("table")
	act, err = p.feed("")
	require.NoError(t, err)
	assert.Nil(t, act)

	_, _ = p.feed("table")
	_, _ = p.feed("quit")
	act, err = p.feed("")
	require.NoError(t, err)
	assert.Equal(t, daemon.Send{Text: "quit"}, act.cmd)
}

func TestSplitWord(t *testing.T) {
	w, rest := splitWord("  sendto\tbob  hi  ")
	assert.Equal(t, "sendto", w)
	assert.Equal(t, "bob  hi", rest)
	w, rest = splitWord("quit")
	assert.Equal(t, "quit", w)
	assert.Equal(t, "", rest)
}

func TestMapRowsSortsAndNamesFallback(t *testing.T) {
	rows := mapRows(map[string]string{"b": "2", "": "bc", "a": "1"})
	assert.Equal(t, [][]string{{"*", "bc"}, {"a", "1"}, {"b", "2"}}, rows)
}

func TestRenderTable(t *testing.T) {
	var buf bytes.Buffer
	renderTable(&buf, []string{"ALIAS", "PEER"}, [][]string{{"alice", "p1"}, {"bob", "p2"}})
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "ALIAS")
	assert.Contains(t, lines[1], "alice")
	assert.Contains(t, lines[2], "p2")
}

type replHarness struct {
	out     bytes.Buffer
	notices bytes.Buffer
	repl    *repl
	done    chan error
}

// startDaemon runs a single daemon on an in-process hub.
func startDaemon(t *testing.T, id string) *replHarness {
	ctrl := gomock.NewController(t)
	up := mock_daemon.NewMockUpgrader(ctrl)
	up.EXPECT().Stop().AnyTimes()

	hub := memnet.NewHub()
	t.Cleanup(hub.Close)
	in := make(chan network.Inbound)
	events := make(chan network.Event)
	d, err := daemon.New(daemon.Options{
		Network:  hub.Join(id, in, events),
		Inbound:  in,
		Events:   events,
		Upgrader: up,
		Display:  mock_daemon.NewMockDisplay(ctrl),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	h := &replHarness{done: make(chan error, 1)}
	h.repl = newREPL(d.Client(), &h.out, func(format string, args ...any) {
		fmt.Fprintf(&h.notices, format+"\n", args...)
	})
	go func() { h.done <- d.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-h.done
	})
	return h
}

func TestREPLShow(t *testing.T) {
	h := startDaemon(t, "node-a")
	ctx := context.Background()

	assert.False(t, h.repl.handle(ctx, "show id"))
	assert.Equal(t, "node-a\n", h.out.String())

	h.out.Reset()
	assert.False(t, h.repl.handle(ctx, "show alias"))
	assert.Equal(t, "(none)\n", h.out.String())

	h.out.Reset()
	assert.False(t, h.repl.handle(ctx, "alias alice"))
	assert.False(t, h.repl.handle(ctx, "show aliases"))
	assert.Contains(t, h.out.String(), "ALIAS")
	assert.Contains(t, h.out.String(), "alice")
	assert.Contains(t, h.out.String(), "node-a")

	h.out.Reset()
	assert.False(t, h.repl.handle(ctx, "show members"))
	assert.Contains(t, h.out.String(), "MEMBERS")
	assert.Contains(t, h.out.String(), "node-a")

	assert.False(t, h.repl.handle(ctx, "bogus"))
	assert.Contains(t, h.notices.String(), `unknown command "bogus"`)
}

func TestREPLRunQuitStopsDaemon(t *testing.T) {
	h := startDaemon(t, "node-a")
	in := strings.NewReader("alias bob\nshow alias\ntable\nline one\n\nquit\nshow id\n")
	require.NoError(t, h.repl.run(context.Background(), in))
	assert.Equal(t, "bob\n", h.out.String())
	assert.Contains(t, h.notices.String(), "table mode")
	require.NoError(t, <-h.done)
	h.done <- nil
}
