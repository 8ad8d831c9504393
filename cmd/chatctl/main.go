package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/matheus3301/chatd/internal/api"
	"github.com/matheus3301/chatd/internal/ctl"
	"github.com/matheus3301/chatd/internal/session"
	"github.com/matheus3301/chatd/internal/store"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Usage = printUsage
	flag.Parse()

	sessionName, err := session.Resolve(*sessionFlag)
	if err != nil {
		fail(err)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	// sessions list reads the filesystem and works without a daemon.
	if args[0] == "sessions" {
		if len(args) < 2 || args[1] != "list" {
			fmt.Fprintln(os.Stderr, "usage: chatctl sessions list")
			os.Exit(1)
		}
		cmdSessionsList(*jsonFlag)
		return
	}

	socketPath := session.SocketPath(sessionName)
	c, err := ctl.New(socketPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot connect to daemon for session %q: %v\n", sessionName, err)
		os.Exit(1)
	}
	defer func() { _ = c.Close() }()

	if args[0] == "watch" {
		cmdWatch(c, args[1:], *jsonFlag)
		return
	}

	// Login runs catch-up before returning, so it gets more time.
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	out := output{json: *jsonFlag}
	switch args[0] {
	case "status":
		resp, err := c.Session.GetStatus(ctx)
		check(err)
		out.status(resp)
	case "login":
		need(args, 3, "login <email> <password>")
		resp, err := c.Session.Login(ctx, &api.LoginRequest{Email: args[1], Password: args[2]})
		check(err)
		out.print(resp, fmt.Sprintf("Logged in as %s (id %d)", resp.Username, resp.UserID))
	case "signup":
		need(args, 4, "signup <email> <password> <username>")
		check(c.Session.Signup(ctx, &api.SignupRequest{Email: args[1], Password: args[2], Username: args[3]}))
		out.print(map[string]bool{"ok": true}, "Account created. Run login to start syncing.")
	case "rename":
		need(args, 2, "rename <username>")
		resp, err := c.Session.SetUsername(ctx, args[1])
		check(err)
		out.print(resp, fmt.Sprintf("Username is now %s.", resp.Username))
	case "logout":
		check(c.Session.Logout(ctx))
		out.print(map[string]bool{"ok": true}, "Logged out.")
	case "conversations":
		resp, err := c.Chat.ListConversations(ctx)
		check(err)
		out.conversations(resp.Conversations)
	case "history":
		need(args, 2, "history <peer>")
		resp, err := c.Chat.GetHistory(ctx, peer(args[1]))
		check(err)
		out.messages(resp.Messages)
	case "open":
		need(args, 2, "open <peer>")
		resp, err := c.Chat.OpenChat(ctx, peer(args[1]))
		check(err)
		out.messages(resp.Messages)
	case "close":
		check(c.Chat.CloseChat(ctx))
		out.print(map[string]bool{"ok": true}, "Chat closed.")
	case "read":
		need(args, 2, "read <peer>")
		resp, err := c.Chat.MarkRead(ctx, peer(args[1]))
		check(err)
		out.print(resp, fmt.Sprintf("%d message(s) marked read.", resp.Updated))
	case "send":
		need(args, 3, "send <peer> <text>")
		resp, err := c.Message.Send(ctx, peer(args[1]), strings.Join(args[2:], " "))
		check(err)
		out.print(resp, fmt.Sprintf("Sent at %s.", resp.Message.Timestamp))
	case "requests":
		resp, err := c.Chat.ListFriendRequests(ctx)
		check(err)
		out.requests(resp)
	case "accept", "reject":
		need(args, 2, args[0]+" <request-id>")
		check(c.Chat.RespondFriendRequest(ctx, peer(args[1]), args[0] == "accept"))
		out.print(map[string]bool{"ok": true}, "Done.")
	case "add":
		need(args, 2, "add <email>")
		resp, err := c.Chat.AddFriend(ctx, args[1])
		check(err)
		out.print(resp, fmt.Sprintf("Friend request sent to %s (id %d).", resp.Contact.Email, resp.Contact.ID))
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: chatctl [--session <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                   Show session status")
	fmt.Fprintln(os.Stderr, "  login <email> <password> Log in and start sync")
	fmt.Fprintln(os.Stderr, "  signup <e> <pw> <user>   Create an account")
	fmt.Fprintln(os.Stderr, "  rename <username>        Change your username")
	fmt.Fprintln(os.Stderr, "  logout                   Stop sync and forget credentials")
	fmt.Fprintln(os.Stderr, "  conversations            List conversations")
	fmt.Fprintln(os.Stderr, "  history <peer>           Show messages with a peer")
	fmt.Fprintln(os.Stderr, "  open <peer>              Open a chat (incoming messages are read)")
	fmt.Fprintln(os.Stderr, "  close                    Close the open chat")
	fmt.Fprintln(os.Stderr, "  read <peer>              Mark a conversation read")
	fmt.Fprintln(os.Stderr, "  send <peer> <text>       Send a message")
	fmt.Fprintln(os.Stderr, "  requests                 List pending friend requests")
	fmt.Fprintln(os.Stderr, "  accept|reject <id>       Answer a friend request")
	fmt.Fprintln(os.Stderr, "  add <email>              Send a friend request")
	fmt.Fprintln(os.Stderr, "  watch [namespace]        Stream daemon events")
	fmt.Fprintln(os.Stderr, "  sessions list            List known sessions")
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func check(err error) {
	if err == nil {
		return
	}
	if st, ok := grpcstatus.FromError(err); ok {
		if st.Code() == codes.Unauthenticated {
			fmt.Fprintln(os.Stderr, "error: not logged in (use chatctl login)")
			os.Exit(1)
		}
		fail(errors.New(st.Message()))
	}
	fail(err)
}

func need(args []string, n int, usage string) {
	if len(args) < n {
		fmt.Fprintf(os.Stderr, "usage: chatctl %s\n", usage)
		os.Exit(1)
	}
}

func peer(s string) int64 {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		fail(fmt.Errorf("invalid id %q", s))
	}
	return id
}

func cmdWatch(c *ctl.Client, args []string, jsonOut bool) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	req := &api.WatchEventsRequest{}
	if len(args) > 0 {
		req.Namespace = args[0]
	}
	recv, err := c.Chat.WatchEvents(ctx, req)
	check(err)
	for {
		evt, err := recv.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return
			}
			check(err)
		}
		if jsonOut {
			outputJSON(evt)
			continue
		}
		ts := time.UnixMilli(evt.OccurredAtUnixMs).Format(time.TimeOnly)
		fmt.Printf("%s  %-28s %s\n", ts, evt.Kind, string(evt.Payload))
	}
}

func cmdSessionsList(jsonOut bool) {
	sessions, err := session.List()
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(sessions)
		return
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions found.")
		return
	}
	for _, s := range sessions {
		running := "stopped"
		if s.DaemonRunning {
			running = "running"
		}
		fmt.Printf("%-20s %s (%s)\n", s.Name, s.Path, running)
	}
}

type output struct{ json bool }

func (o output) print(v any, text string) {
	if o.json {
		outputJSON(v)
		return
	}
	fmt.Println(text)
}

func (o output) status(resp *api.GetStatusResponse) {
	if o.json {
		outputJSON(resp)
		return
	}
	fmt.Printf("Session: %s\n", resp.Session)
	fmt.Printf("Status:  %s (since %s)\n", resp.Status, time.UnixMilli(resp.StatusSinceUnixMs).Format(time.DateTime))
	fmt.Printf("Uptime:  %s\n", (time.Duration(resp.UptimeMs) * time.Millisecond).Round(time.Second))
	if !resp.LoggedIn {
		fmt.Println("User:    not logged in")
		return
	}
	fmt.Printf("User:    %d\n", resp.UserID)
	fmt.Printf("Cache:   %d messages, %d conversations\n", resp.MessageCount, resp.ConversationCount)
	if resp.ActiveChat > 0 {
		fmt.Printf("Open:    %d\n", resp.ActiveChat)
	}
	if resp.LastCatchUpUnixMs > 0 {
		fmt.Printf("Catch-up: %d message(s) at %s\n", resp.LastCatchUpCount, time.UnixMilli(resp.LastCatchUpUnixMs).Format(time.DateTime))
	}
}

func (o output) conversations(convs []store.ConversationSummary) {
	if o.json {
		outputJSON(convs)
		return
	}
	if len(convs) == 0 {
		fmt.Println("No conversations.")
		return
	}
	for _, c := range convs {
		name := c.PeerName
		if name == "" {
			name = strconv.FormatInt(c.PeerID, 10)
		}
		last := ""
		if c.LastUnreadMessage != nil {
			last = *c.LastUnreadMessage
		}
		fmt.Printf("%-6d %-20s %3d unread  %s\n", c.PeerID, name, c.UnreadCount, last)
	}
}

func (o output) messages(msgs []store.Message) {
	if o.json {
		outputJSON(msgs)
		return
	}
	// Stored newest first; print oldest first like a chat window.
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		mark := " "
		if !m.Read {
			mark = "*"
		}
		fmt.Printf("%s %s  %d -> %d: %s\n", mark, m.Timestamp, m.SenderID, m.RecipientID, m.Content)
	}
}

func (o output) requests(resp *api.ListFriendRequestsResponse) {
	if o.json {
		outputJSON(resp)
		return
	}
	if len(resp.Requests) == 0 {
		fmt.Println("No pending friend requests.")
		return
	}
	for _, r := range resp.Requests {
		fmt.Printf("%-6d from %s <%s> (user %d)\n", r.ID, r.SenderUsername, r.SenderEmail, r.SenderID)
	}
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
