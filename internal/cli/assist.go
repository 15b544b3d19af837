package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"fintrack/internal/chat"
	"fintrack/internal/config"
	"fintrack/internal/session"
	"fintrack/internal/stats"

	"github.com/google/subcommands"
)

type assistCmd struct {
	session string
	persona string
}

func (*assistCmd) Name() string     { return "assist" }
func (*assistCmd) Synopsis() string { return "ask the financial assistant a question" }
func (*assistCmd) Usage() string {
	return `fintrack assist -session <id> [-persona formal|sincero] question...

  Answers a question about the local session's records. Needs ai.api_key
  or GEMINI_API_KEY.
`
}

func (c *assistCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.session, "session", "", "Local session id.")
	f.StringVar(&c.persona, "persona", string(chat.Formal), "Tone of the answer: formal or sincero.")
}

func (c *assistCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	question := strings.TrimSpace(strings.Join(f.Args(), " "))
	if question == "" {
		fmt.Fprintln(os.Stderr, "assist expects a question")
		return subcommands.ExitUsageError
	}
	persona := chat.Persona(c.persona)
	if !persona.Valid() {
		fmt.Fprintf(os.Stderr, "unknown persona %q\n", c.persona)
		return subcommands.ExitUsageError
	}

	return withSession(ctx, c.session, func(cfg *config.Config, s *session.Session) subcommands.ExitStatus {
		if aiKey(cfg) == "" {
			return fail("Error: no Gemini API key configured")
		}
		_, adv, err := newAI(ctx, cfg)
		if err != nil {
			return fail("Error initializing Gemini's client: %v", err)
		}

		now := time.Now()
		txns := s.State.Transactions()
		reply, err := adv.Advise(ctx, question, nil, chat.Context{
			Stats:             stats.Month(txns, now.Year(), now.Month()),
			Transactions:      txns,
			MarketItems:       s.State.MarketItems(),
			Persona:           persona,
			TransactionWindow: cfg.Chat.TransactionWindow,
			MarketWindow:      cfg.Chat.MarketWindow,
		})
		if err != nil {
			return fail("Assistant failed: %v", err)
		}

		var b strings.Builder
		b.WriteString(reply.Text)
		if len(reply.Sources) > 0 {
			b.WriteString("\n\n**Fontes**\n\n")
			for _, src := range reply.Sources {
				fmt.Fprintf(&b, "- [%s](%s)\n", src.Title, src.URI)
			}
		}
		printMarkdown(b.String())
		return subcommands.ExitSuccess
	})
}
