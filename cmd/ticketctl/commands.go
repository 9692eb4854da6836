package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/spec-kit/ticket-desk/internal/api/dto"
	"github.com/spec-kit/ticket-desk/internal/domain"
	"github.com/spec-kit/ticket-desk/internal/store"
)

type command struct {
	summary string
	run     func(ctx context.Context, env *commandEnv, args []string) error
}

var commandOrder = []string{"list", "create", "update", "delete", "chat", "send"}

var commands = map[string]command{
	"list":   {summary: "list tickets, optionally filtered by --status", run: runList},
	"create": {summary: "create a ticket", run: runCreate},
	"update": {summary: "change fields of a ticket", run: runUpdate},
	"delete": {summary: "delete a ticket", run: runDelete},
	"chat":   {summary: "show a ticket's chat grouped by day", run: runChat},
	"send":   {summary: "append a chat message to a ticket", run: runSend},
}

func newFlagSet(name string) *pflag.FlagSet {
	return pflag.NewFlagSet("ticketctl "+name, pflag.ContinueOnError)
}

func runList(ctx context.Context, env *commandEnv, args []string) error {
	flagSet := newFlagSet("list")
	status := flagSet.String("status", "All", "All, Pending or Completed")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	filter, err := store.ParseStatusFilter(*status)
	if err != nil {
		return err
	}
	if err := env.store.Load(ctx); err != nil {
		return err
	}
	tickets := env.store.FilteredView(filter)
	items := make([]dto.TicketResponse, 0, len(tickets))
	for _, t := range tickets {
		items = append(items, dto.NewTicketResponse(t, false))
	}
	return env.print(items)
}

func runCreate(ctx context.Context, env *commandEnv, args []string) error {
	flagSet := newFlagSet("create")
	var draft domain.TicketDraft
	var status string
	flagSet.StringVar(&draft.ClientName, "name", "", "client name")
	flagSet.StringVar(&draft.ClientEmail, "email", "", "client email")
	flagSet.StringVar(&draft.ClientNumber, "number", "", "client phone number")
	flagSet.StringVar(&draft.Description, "description", "", "what the client needs")
	flagSet.StringVar(&status, "status", string(domain.TicketStatusPending), "Pending or Completed")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	draft.Status = domain.TicketStatus(status)
	ticket, err := env.store.Create(ctx, draft)
	if err != nil {
		return err
	}
	return env.print(dto.NewTicketResponse(ticket, false))
}

func runUpdate(ctx context.Context, env *commandEnv, args []string) error {
	flagSet := newFlagSet("update")
	name := flagSet.String("name", "", "client name")
	email := flagSet.String("email", "", "client email")
	number := flagSet.String("number", "", "client phone number")
	description := flagSet.String("description", "", "description")
	status := flagSet.String("status", "", "Pending or Completed")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	id, err := singleID(flagSet.Args())
	if err != nil {
		return err
	}

	// Only flags given on the command line become part of the patch.
	var patch domain.TicketPatch
	flagSet.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "name":
			patch.ClientName = name
		case "email":
			patch.ClientEmail = email
		case "number":
			patch.ClientNumber = number
		case "description":
			patch.Description = description
		case "status":
			s := domain.TicketStatus(*status)
			patch.Status = &s
		}
	})

	if err := env.store.Load(ctx); err != nil {
		return err
	}
	ticket, err := env.store.Update(ctx, id, patch)
	if err != nil {
		return err
	}
	return env.print(dto.NewTicketResponse(ticket, false))
}

func runDelete(ctx context.Context, env *commandEnv, args []string) error {
	id, err := singleID(args)
	if err != nil {
		return err
	}
	if err := env.store.Load(ctx); err != nil {
		return err
	}
	if err := env.store.Delete(ctx, id); err != nil {
		return err
	}
	return env.print(map[string]string{"deleted": id})
}

func runChat(ctx context.Context, env *commandEnv, args []string) error {
	flagSet := newFlagSet("chat")
	tz := flagSet.String("tz", "Local", "IANA time zone used for day boundaries")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	id, err := singleID(flagSet.Args())
	if err != nil {
		return err
	}
	loc, err := time.LoadLocation(*tz)
	if err != nil {
		return fmt.Errorf("time zone %q: %w", *tz, err)
	}
	if err := env.store.Load(ctx); err != nil {
		return err
	}
	ticket, ok := env.store.Get(id)
	if !ok {
		return fmt.Errorf("ticket %s not found", id)
	}
	groups := store.GroupChatByDay(ticket.Chat, loc)
	days := make([]dto.ChatDayResponse, 0, len(groups))
	for _, g := range groups {
		messages := make([]dto.ChatMessageResponse, 0, len(g.Messages))
		for _, msg := range g.Messages {
			messages = append(messages, dto.NewChatMessageResponse(msg))
		}
		days = append(days, dto.ChatDayResponse{Day: g.Day, Messages: messages})
	}
	return env.print(days)
}

func runSend(ctx context.Context, env *commandEnv, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: ticketctl send <id> <message>")
	}
	if err := env.store.Load(ctx); err != nil {
		return err
	}
	msg, err := env.store.AppendMessage(ctx, args[0], strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	return env.print(dto.NewChatMessageResponse(msg))
}

func singleID(args []string) (string, error) {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		return "", errors.New("expected exactly one ticket id")
	}
	return args[0], nil
}

func (e *commandEnv) print(v any) error {
	enc := json.NewEncoder(e.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
