package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"

	"LavTutorClient/internal/bootstrap"
	"LavTutorClient/internal/config"
	"LavTutorClient/internal/model"
	"LavTutorClient/internal/service"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg := config.LoadAppConfig()
	validate := config.NewValidator()
	if err := validate.Struct(cfg); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	httpClient := config.NewHTTPClient(cfg)

	ctx := context.Background()
	chat, err := bootstrap.Init(ctx, cfg, httpClient, validate)
	if err != nil {
		slog.Error("Failed to initialize client", "error", err)
		os.Exit(1)
	}

	if err := chat.Start(ctx); err != nil {
		slog.Error("Failed to start client", "error", err)
		os.Exit(1)
	}
	defer chat.Close()

	if cfg.MetricsAddr != "" {
		go func() {
			slog.Info("Serving metrics", "addr", cfg.MetricsAddr)
			if err := http.ListenAndServe(cfg.MetricsAddr, promhttp.Handler()); err != nil {
				slog.Error("Metrics server stopped", "error", err)
			}
		}()
	}

	user := chat.User()
	fmt.Printf("Connected as %s %s (%s)\n", user.FirstName, user.LastName, user.IDNumber)
	fmt.Println("Commands: /partners, /open <appointment id>, /messages, /notifs, /read <notification id>, /quit")
	fmt.Println("Anything else is sent to the open conversation.")

	runPrompt(chat)
}

func runPrompt(chat *service.ChatService) {
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case line == "/quit":
			return
		case line == "/partners":
			printGroups(chat.Roster().Groups())
		case line == "/messages":
			printMessages(chat)
		case line == "/notifs":
			printNotifications(chat)
		case strings.HasPrefix(line, "/open "):
			openConversation(chat, strings.TrimPrefix(line, "/open "))
		case strings.HasPrefix(line, "/read "):
			markRead(chat, strings.TrimPrefix(line, "/read "))
		case strings.HasPrefix(line, "/"):
			fmt.Println("Unknown command:", line)
		default:
			if _, err := chat.Send(line); err != nil {
				fmt.Println("Send failed:", err)
			}
		}
	}
}

func printGroups(groups []model.PartnerGroup) {
	if len(groups) == 0 {
		fmt.Println("No conversations yet.")
		return
	}
	for _, g := range groups {
		fmt.Printf("%s (%d unread)\n", g.PartnerName, g.TotalUnread)
		for _, c := range g.Conversations {
			fmt.Printf("  [%d] %s %s %s-%s, %d unread\n",
				c.AppointmentID, c.CourseCode, c.AppointmentDate, c.StartTime, c.EndTime, c.UnreadCount)
		}
	}
}

func printMessages(chat *service.ChatService) {
	msgs := chat.Messages().Snapshot()
	if len(msgs) == 0 {
		fmt.Println("No messages.")
		return
	}
	self := chat.User().IDNumber
	for _, m := range msgs {
		who := m.SenderID
		if m.SenderID == self {
			who = "me"
		}
		marker := ""
		if m.Pending() {
			marker = " (sending...)"
		}
		fmt.Printf("%s %s: %s%s\n", m.CreatedAt.Format("15:04"), who, m.Text, marker)
	}
}

func printNotifications(chat *service.ChatService) {
	notifs := chat.Notifications().Snapshot()
	fmt.Printf("%d unread\n", chat.Notifications().UnreadCount())
	for _, n := range notifs {
		flag := " "
		if !n.IsRead {
			flag = "*"
		}
		fmt.Printf("%s [%d] %s %s\n", flag, n.NotificationID, n.Type, n.MessageText)
	}
}

func openConversation(chat *service.ChatService, arg string) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil {
		fmt.Println("Usage: /open <appointment id>")
		return
	}
	if err := chat.OpenConversation(id); err != nil {
		fmt.Println("Open failed:", err)
	}
}

func markRead(chat *service.ChatService, arg string) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil {
		fmt.Println("Usage: /read <notification id>")
		return
	}
	if err := chat.Notifications().MarkRead(context.Background(), id); err != nil {
		fmt.Println("Mark read failed:", err)
	}
}
