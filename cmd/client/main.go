// Package main is a line-oriented terminal client, mainly for poking at
// a node during development.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/atriumchat/atrium/pkg/client"
	"github.com/atriumchat/atrium/pkg/protocol"
)

func main() {
	nodeURL := flag.String("node", "ws://localhost:8444/ws", "Node websocket URL")
	username := flag.String("user", "", "Username to connect as")
	flag.Parse()

	if *username == "" {
		log.Fatal("missing -user")
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(zerolog.WarnLevel).
		With().Timestamp().Logger()

	ctx := context.Background()
	c, err := client.Dial(ctx, *nodeURL, *username, logger)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer c.Close()

	go printEvents(c)

	fmt.Printf("Connected as %s. Type /help for commands.\n", *username)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		select {
		case <-c.Done():
			fmt.Println("connection lost")
			return
		default:
		}

		runCommand(ctx, c, line)
	}
}

func printEvents(c *client.Client) {
	for ev := range c.Events() {
		switch e := ev.(type) {
		case protocol.ClientReady:
			fmt.Printf("<< ready: %d communities\n", len(e.Communities))
			for _, community := range e.Communities {
				fmt.Printf("   [%d] %s (%d rooms)\n", community.ID, community.Name, len(community.Rooms))
			}
		case protocol.AddMessage:
			fmt.Printf("<< [%d/%d] user %d: %s\n", e.Community, e.Room, e.Message.Author, e.Message.Content)
		case protocol.NotifyMessageReady:
			fmt.Printf("<< new activity in room %d/%d\n", e.Community, e.Room)
		case protocol.Edit:
			fmt.Printf("<< message %d edited: %s\n", e.Message, e.NewContent)
		case protocol.Delete:
			fmt.Printf("<< message %d deleted\n", e.Message)
		case protocol.AddRoom:
			fmt.Printf("<< new room [%d] %s\n", e.Room.ID, e.Room.Name)
		case protocol.AddCommunity:
			fmt.Printf("<< joined community [%d] %s\n", e.Community.ID, e.Community.Name)
		case protocol.RemoveCommunity:
			fmt.Printf("<< community %d removed\n", e.ID)
		case protocol.SessionLoggedOut:
			fmt.Println("<< logged out")
		case protocol.AdminPermissionsChanged:
			fmt.Printf("<< permissions in community %d now %b\n", e.Community, e.Permissions)
		case protocol.InternalError:
			fmt.Println("<< node reported an internal error")
		}
	}
}

func runCommand(ctx context.Context, c *client.Client, line string) {
	parts := strings.Fields(line)
	cmd, args := parts[0], parts[1:]

	var req protocol.ClientRequest

	switch cmd {
	case "/help":
		fmt.Println(`commands:
  /create <name>             create a community
  /room <community> <name>   create a room
  /invite <community>        mint an invite code
  /join <code>               join via invite code
  /select <community> <room> select a room
  /sendto <community> <room> <text...>
  /history <community> <room> <before-id> <count>
  /profile <user-id>
  /logout`)
		return
	case "/create":
		req = protocol.CreateCommunity{Name: strings.Join(args, " ")}
	case "/room":
		if len(args) < 2 {
			fmt.Println("usage: /room <community> <name>")
			return
		}
		req = protocol.CreateRoom{Community: parseCommunity(args[0]), Name: strings.Join(args[1:], " ")}
	case "/invite":
		if len(args) < 1 {
			fmt.Println("usage: /invite <community>")
			return
		}
		req = protocol.CreateInvite{Community: parseCommunity(args[0])}
	case "/join":
		if len(args) < 1 {
			fmt.Println("usage: /join <code>")
			return
		}
		req = protocol.JoinCommunity{InviteCode: args[0]}
	case "/select":
		if len(args) < 2 {
			fmt.Println("usage: /select <community> <room>")
			return
		}
		req = protocol.SelectRoom{Community: parseCommunity(args[0]), Room: parseRoom(args[1])}
	case "/sendto":
		if len(args) < 3 {
			fmt.Println("usage: /sendto <community> <room> <text...>")
			return
		}
		req = protocol.SendMessage{
			Community: parseCommunity(args[0]),
			Room:      parseRoom(args[1]),
			Content:   strings.Join(args[2:], " "),
		}
	case "/history":
		if len(args) < 4 {
			fmt.Println("usage: /history <community> <room> <before-id> <count>")
			return
		}
		before, _ := strconv.ParseUint(args[2], 10, 64)
		count, _ := strconv.ParseUint(args[3], 10, 32)
		req = protocol.GetMessages{
			Community: parseCommunity(args[0]),
			Room:      parseRoom(args[1]),
			Selector: protocol.MessageSelector{
				Before: true,
				Bound:  protocol.Bound{Exclusive: false, Message: protocol.MessageID(before)},
			},
			MessageCount: uint32(count),
		}
	case "/profile":
		if len(args) < 1 {
			fmt.Println("usage: /profile <user-id>")
			return
		}
		user, _ := strconv.ParseUint(args[0], 10, 64)
		req = protocol.GetProfile{User: protocol.UserID(user)}
	case "/logout":
		req = protocol.LogOut{}
	default:
		fmt.Printf("unknown command %s\n", cmd)
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	ok, err := c.Do(reqCtx, req)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	printResult(ok)
}

func printResult(ok protocol.OkResponse) {
	switch r := ok.(type) {
	case protocol.OkNoData:
		fmt.Println("ok")
	case protocol.OkAddCommunity:
		fmt.Printf("ok: community [%d] %s\n", r.Community.ID, r.Community.Name)
		for _, room := range r.Community.Rooms {
			fmt.Printf("    room [%d] %s\n", room.ID, room.Name)
		}
	case protocol.OkAddRoom:
		fmt.Printf("ok: room [%d] %s\n", r.Room.ID, r.Room.Name)
	case protocol.OkConfirmMessage:
		fmt.Printf("ok: message %d\n", r.ID)
	case protocol.OkNewInvite:
		fmt.Printf("ok: invite code %s\n", r.Code)
	case protocol.OkProfile:
		fmt.Printf("ok: [%d] %s (%s)\n", r.Profile.ID, r.Profile.Username, r.Profile.DisplayName)
	case protocol.OkRoomUpdate:
		fmt.Printf("ok: %d new messages (continuous=%v)\n", r.Update.NewMessages, r.Update.Continuous)
	case protocol.OkMessageHistory:
		for _, msg := range r.History.Messages {
			fmt.Printf("  [%d] user %d: %s\n", msg.ID, msg.Author, msg.Content)
		}
	}
}

func parseCommunity(s string) protocol.CommunityID {
	v, _ := strconv.ParseUint(s, 10, 64)
	return protocol.CommunityID(v)
}

func parseRoom(s string) protocol.RoomID {
	v, _ := strconv.ParseUint(s, 10, 64)
	return protocol.RoomID(v)
}
