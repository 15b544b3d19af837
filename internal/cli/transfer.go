package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"fintrack/internal/config"
	"fintrack/internal/exchange"
	"fintrack/internal/session"

	"github.com/google/subcommands"
)

type importCmd struct {
	session string
	dryRun  bool
}

func (*importCmd) Name() string     { return "import" }
func (*importCmd) Synopsis() string { return "import transactions from a CSV file" }
func (*importCmd) Usage() string {
	return `fintrack import -session <id> [-n] file.csv

  Reads a ';' or ',' separated file (Data;Descrição;Categoria;Tipo;Valor)
  into the local session. Unknown categories are registered. With -n the
  parsed rows are listed and nothing is stored.
`
}

func (c *importCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.session, "session", "", "Local session id.")
	f.BoolVar(&c.dryRun, "n", false, "Only show what would be imported.")
}

func (c *importCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "import expects exactly one file")
		return subcommands.ExitUsageError
	}
	return withSession(ctx, c.session, func(_ *config.Config, s *session.Session) subcommands.ExitStatus {
		file, err := os.Open(f.Arg(0))
		if err != nil {
			return fail("Error opening %s: %v", f.Arg(0), err)
		}
		defer file.Close()
		raw, err := exchange.ReadImport(file)
		if err != nil {
			return fail("Error reading %s: %v", f.Arg(0), err)
		}

		res, n, err := s.Import(ctx, raw, !c.dryRun)
		if err != nil {
			return fail("Error importing: %v", err)
		}
		if len(res.Candidates) == 0 {
			return fail("No valid transaction found in %s", f.Arg(0))
		}
		for _, nc := range res.NewCategories {
			fmt.Printf("new %s category: %s\n", nc.Type, nc.Name)
		}
		if c.dryRun {
			for _, cand := range res.Candidates {
				fmt.Printf("%s  %-8s %-16s %12s  %s\n", cand.Date, cand.Type, cand.Category, cand.Amount.StringFixed(2), cand.Description)
			}
			fmt.Printf("%d rows readable, %d skipped\n", len(res.Candidates), res.Skipped)
			return subcommands.ExitSuccess
		}
		fmt.Printf("%d transactions imported, %d rows skipped\n", n, res.Skipped)
		return subcommands.ExitSuccess
	})
}

type exportCmd struct {
	session string
	xlsx    bool
}

func (*exportCmd) Name() string     { return "export" }
func (*exportCmd) Synopsis() string { return "export transactions to CSV or XLSX" }
func (*exportCmd) Usage() string {
	return `fintrack export -session <id> [-xlsx] [out]

  Writes every transaction of the local session. Without out the file is
  named backup_financas_YYYY-MM-DD.csv (or .xlsx) in the current directory.
`
}

func (c *exportCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.session, "session", "", "Local session id.")
	f.BoolVar(&c.xlsx, "xlsx", false, "Write a workbook with transactions and market items.")
}

func (c *exportCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withSession(ctx, c.session, func(_ *config.Config, s *session.Session) subcommands.ExitStatus {
		txns := s.State.Transactions()
		if len(txns) == 0 {
			return fail("Nothing to export")
		}

		ext := "csv"
		if c.xlsx {
			ext = "xlsx"
		}
		out := exchange.FileName(time.Now(), ext)
		if f.NArg() > 0 {
			out = f.Arg(0)
		}

		file, err := os.Create(out)
		if err != nil {
			return fail("Error creating %s: %v", out, err)
		}
		if c.xlsx {
			err = exchange.WriteXLSX(file, txns, s.State.MarketItems())
		} else {
			err = exchange.WriteCSV(file, txns)
		}
		if cerr := file.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fail("Error writing %s: %v", out, err)
		}
		fmt.Printf("%d transactions written to %s\n", len(txns), strings.TrimSpace(out))
		return subcommands.ExitSuccess
	})
}
