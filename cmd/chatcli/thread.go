package main

import (
	"github.com/spf13/cobra"

	"github.com/Vovarama1992/market-messaging/internal/chatview"
	"github.com/Vovarama1992/market-messaging/internal/feed"
)

const threadHelp = `Type a message and press enter to send it.
  /delete <id>  delete one of your messages
  /clear        delete the whole conversation
  /quit         close the conversation`

func newThreadCmd(push *bool) *cobra.Command {
	var name, contextID string
	cmd := &cobra.Command{
		Use:   "thread <counterpart-id>",
		Short: "Open a conversation with one counterpart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(*push)
			if err != nil {
				return err
			}
			defer e.log.Sync()

			ctx := cmd.Context()
			out := newPrinter(cmd.OutOrStdout())
			in := newConsole(cmd.InOrStdin(), out)
			view := chatview.New(e.client(out), chatview.Options{
				Source:   e.source(feed.DefaultInterval),
				Confirm:  in,
				Log:      e.log,
				OnChange: out.thread,
			})
			if err := view.Open(ctx, chatview.Counterpart{ID: args[0], Name: name, ContextID: contextID}); err != nil {
				return err
			}
			defer view.Close()
			out.info(threadHelp)

			for {
				line, ok := in.next(ctx)
				if !ok {
					return nil
				}
				verb, arg, isCmd := command(line)
				if !isCmd {
					view.SetDraft(line)
					report(out, e.log, view.Submit(ctx))
					continue
				}
				switch verb {
				case "quit", "q":
					return nil
				case "delete", "rm":
					report(out, e.log, view.DeleteMessage(ctx, arg))
				case "clear":
					err := view.ClearConversation(ctx)
					report(out, e.log, err)
					if view.Status() == chatview.StatusClosed {
						return nil
					}
				case "help":
					out.info(threadHelp)
				default:
					out.info("Unknown command /" + verb + ". Try /help.")
				}
			}
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "counterpart display name")
	cmd.Flags().StringVar(&contextID, "context", "", "listing the conversation is about")
	return cmd
}
