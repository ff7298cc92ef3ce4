// Command client is a minimal terminal client for the chat relay. It opens
// the WebSocket stream, joins with a display name, and renders the relay's
// message kinds. Everything here is presentation: roster sorting, excluding
// oneself from the list, and labelling the public recipient are client-side
// rules, not server contract.
package main

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/olekukonko/tablewriter"

	"github.com/timrolsh/chat-relay/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	url := "ws://localhost:8080/ws"
	if len(os.Args) > 1 {
		url = os.Args[1]
	}

	stdin := bufio.NewScanner(os.Stdin)

	fmt.Print("Display name: ")
	if !stdin.Scan() {
		return fmt.Errorf("no name given")
	}
	name := strings.TrimSpace(stdin.Text())
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}

	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if resp != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", url, err)
	}
	defer conn.Close()

	c := &client{conn: conn, name: name}
	if err := c.send(server.Envelope{Kind: server.KindJoin, Name: name}); err != nil {
		return err
	}

	done := make(chan struct{})
	go c.readLoop(done)

	c.inputLoop(stdin)

	_ = c.send(server.Envelope{Kind: server.KindQuit})
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	<-done
	return nil
}

type client struct {
	conn *websocket.Conn
	name string
}

func (c *client) send(env server.Envelope) error {
	return c.conn.WriteJSON(env)
}

// readLoop renders each server envelope until the connection ends.
func (c *client) readLoop(done chan<- struct{}) {
	defer close(done)
	for {
		var env server.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			color.Gray.Println("connection closed")
			return
		}
		c.render(env)
	}
}

func (c *client) render(env server.Envelope) {
	switch env.Kind {
	case server.KindWelcome:
		if env.Name == c.name {
			color.Green.Printf("Welcome, %s!\n", env.Name)
		} else {
			color.Green.Printf("%s joined the chat\n", env.Name)
		}
	case server.KindChat:
		if env.Public() {
			color.Style{color.FgCyan, color.OpBold}.Printf("[%s] ", env.Sender)
			fmt.Println(env.Text)
		} else if env.Sender == c.name {
			color.Magenta.Printf("[you -> %s] ", env.Recipient)
			fmt.Println(env.Text)
		} else {
			color.Magenta.Printf("[%s -> you] ", env.Sender)
			fmt.Println(env.Text)
		}
	case server.KindListResponse:
		c.renderRoster(env.Users)
	case server.KindExit:
		color.Gray.Printf("%s left the chat\n", env.Name)
	case server.KindKick:
		color.Red.Printf("You were kicked by %s\n", env.Issuer)
	case server.KindDenied:
		color.Red.Println("Request denied")
	default:
		color.Gray.Printf("unhandled message kind %q\n", env.Kind)
	}
}

// renderRoster prints the roster without the client's own name, sorted
// case-insensitively, with the public recipient listed first.
func (c *client) renderRoster(users []string) {
	others := make([]string, 0, len(users))
	for _, u := range users {
		if u != c.name {
			others = append(others, u)
		}
	}
	sort.Slice(others, func(i, j int) bool {
		return strings.ToLower(others[i]) < strings.ToLower(others[j])
	})

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Recipient"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.Append([]string{server.PublicRecipient})
	for _, u := range others {
		table.Append([]string{u})
	}
	table.Render()
}

// inputLoop turns stdin lines into envelopes. Plain lines are public chats;
// slash commands cover the rest.
func (c *client) inputLoop(stdin *bufio.Scanner) {
	for stdin.Scan() {
		line := strings.TrimSpace(stdin.Text())
		if line == "" {
			continue
		}

		if !strings.HasPrefix(line, "/") {
			if err := c.send(server.Envelope{Kind: server.KindChat, Sender: c.name, Text: line}); err != nil {
				return
			}
			continue
		}

		fields := strings.Fields(line)
		switch fields[0] {
		case "/quit":
			return
		case "/list":
			if err := c.send(server.Envelope{Kind: server.KindListRequest}); err != nil {
				return
			}
		case "/w":
			if len(fields) < 3 {
				color.Yellow.Println("usage: /w <user> <text>")
				continue
			}
			text := strings.TrimSpace(strings.TrimPrefix(line, "/w "+fields[1]))
			env := server.Envelope{Kind: server.KindChat, Sender: c.name, Recipient: fields[1], Text: text}
			if err := c.send(env); err != nil {
				return
			}
		case "/kick":
			if len(fields) != 2 {
				color.Yellow.Println("usage: /kick <user>")
				continue
			}
			if err := c.send(server.Envelope{Kind: server.KindKick, Target: fields[1]}); err != nil {
				return
			}
		default:
			color.Yellow.Printf("unknown command %s (try /list, /w, /kick, /quit)\n", fields[0])
		}
	}
}
