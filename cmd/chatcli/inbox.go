package main

import (
	"github.com/spf13/cobra"

	"github.com/Vovarama1992/market-messaging/internal/inbox"
)

const inboxHelp = `Type a message to reply in the open conversation.
  /open <id>     open a conversation and mark it read
  /close         close the open conversation
  /delete <id>   delete a whole conversation
  /rm <msg-id>   delete one of your messages
  /list          show the conversation list
  /quit          leave the inbox`

func newInboxCmd(push *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "inbox",
		Short: "Watch every conversation and reply from one place",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := loadEnv(*push)
			if err != nil {
				return err
			}
			defer e.log.Sync()

			ctx := cmd.Context()
			out := newPrinter(cmd.OutOrStdout())
			in := newConsole(cmd.InOrStdin(), out)
			box := inbox.New(e.client(out), inbox.Options{
				Source:   e.source(inbox.DefaultPollInterval),
				Confirm:  in,
				AlertTTL: e.cfg.AlertTTL,
				Log:      e.log,
				OnChange: func(s inbox.Snapshot) { out.inbox(s, e.session) },
				OnAlert:  out.alert,
			})
			box.Start(ctx)
			defer box.Unload()
			out.info(inboxHelp)

			for {
				line, ok := in.next(ctx)
				if !ok {
					return nil
				}
				verb, arg, isCmd := command(line)
				if !isCmd {
					report(out, e.log, box.Send(ctx, line))
					continue
				}
				switch verb {
				case "quit", "q":
					return nil
				case "open":
					out.forget()
					if err := box.Select(arg); err != nil {
						report(out, e.log, err)
						continue
					}
					out.inbox(box.Snapshot(), e.session)
				case "close":
					box.Deselect()
				case "delete":
					report(out, e.log, box.DeleteConversation(ctx, arg))
				case "rm":
					report(out, e.log, box.DeleteMessage(ctx, arg))
				case "list":
					out.show(renderEntries(box.Conversations(), box.UnreadTotal()))
				case "help":
					out.info(inboxHelp)
				default:
					out.info("Unknown command /" + verb + ". Try /help.")
				}
			}
		},
	}
}
