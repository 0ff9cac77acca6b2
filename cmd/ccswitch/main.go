// Command ccswitch manages multiple Claude Code accounts on one machine:
// it captures the signed-in identity, swaps credential and config blobs
// between accounts, and keeps a small registry with history and health.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"ccswitch/internal/archive"
	"ccswitch/internal/claudeauth"
	"ccswitch/internal/config"
	"ccswitch/internal/core"
	"ccswitch/internal/logging"
	"ccswitch/internal/platform"
	"ccswitch/internal/secrets"
	"ccswitch/internal/store"
)

// version is stamped by the release build; "dev" otherwise.
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	must(run(ctx, os.Args[1:], os.Stdout, os.Stderr, os.Stdin))
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}

// app carries the wired dependencies of one invocation.
type app struct {
	cfg    *config.Config
	log    *slog.Logger
	store  *store.RegistryStore
	blobs  secrets.Store
	client *claudeauth.Client

	stdout io.Writer
	stderr io.Writer
	stdin  io.Reader
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, stdin io.Reader) error {
	verbose := false
	for len(args) > 0 && (args[0] == "--verbose" || args[0] == "-v") {
		verbose = true
		args = args[1:]
	}
	if len(args) < 1 {
		printUsage(stderr)
		return errors.New("missing command")
	}
	cmd, rest := args[0], args[1:]

	if cmd == "help" || cmd == "-h" || cmd == "--help" {
		printUsage(stdout)
		return nil
	}
	if cmd == "version" {
		fmt.Fprintln(stdout, "ccswitch", version)
		return nil
	}

	cfg, err := config.Load(os.Getenv("CCSWITCH_CONFIG"))
	if err != nil {
		return err
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	log, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: stderr,
	})
	if err != nil {
		return err
	}
	if _, err := platform.EnsureDataDirs(cfg.DataDir); err != nil {
		return err
	}

	blobs, err := secrets.NewStore(secrets.Options{
		BackupsDir:      platform.BackupsDir(cfg.DataDir),
		CredentialsPath: cfg.Claude.CredentialsPath,
		KeychainService: cfg.Claude.KeychainService,
		KeychainAccount: cfg.Claude.KeychainAccount,
	})
	if err != nil {
		return err
	}

	a := &app{
		cfg:    cfg,
		log:    log,
		store:  store.NewRegistryStore(cfg.DataDir, log),
		blobs:  blobs,
		client: claudeauth.NewClient(cfg.Claude.ConfigPath, cfg.Claude.LockDir),
		stdout: stdout,
		stderr: stderr,
		stdin:  stdin,
	}

	switch cmd {
	case "add":
		return a.runAdd(rest)
	case "remove", "rm":
		return a.runRemove(rest)
	case "list", "ls":
		return a.runList(rest)
	case "use":
		return a.runUse(ctx, rest)
	case "next":
		return a.runNext(ctx, rest)
	case "alias":
		return a.runAlias(rest)
	case "verify":
		return a.runVerify(rest)
	case "history":
		return a.runHistory(rest)
	case "undo":
		return a.runUndo(ctx, rest)
	case "export":
		return a.runExport(rest)
	case "import":
		return a.runImport(rest)
	case "status":
		return a.runStatus(rest)
	default:
		printUsage(stderr)
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

// engine builds the switch engine; noWait overrides the configured
// blocking behavior for this invocation only.
func (a *app) engine(noWait bool) *core.Engine {
	return core.NewEngine(core.Options{
		Registry:    a.store,
		Secrets:     a.blobs,
		App:         a.client,
		Log:         a.log,
		WaitForExit: a.cfg.Switch.Wait && !noWait,
	})
}

func (a *app) runAdd(args []string) error {
	fs := newFlagSet("add")
	jsonOut := fs.Bool("json", false, "print the result as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	res, err := a.engine(false).Add()
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(a.stdout, res)
	}
	switch {
	case !res.Updated:
		fmt.Fprintf(a.stdout, "added account %d (%s)\n", res.Number, res.Email)
	case res.Changed:
		fmt.Fprintf(a.stdout, "refreshed backups for account %d (%s)\n", res.Number, res.Email)
	default:
		fmt.Fprintf(a.stdout, "account %d (%s) already up to date\n", res.Number, res.Email)
	}
	return nil
}

func (a *app) runRemove(args []string) error {
	fs := newFlagSet("remove")
	yes := fs.Bool("yes", false, "skip the confirmation prompt")
	jsonOut := fs.Bool("json", false, "print the result as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: ccswitch remove <number|email|alias> [--yes]")
	}

	eng := a.engine(false)
	number, err := eng.Resolve(fs.Arg(0))
	if err != nil {
		return err
	}

	if !*yes {
		ok, err := a.confirm(fmt.Sprintf("remove account %d and its backups? [y/N]: ", number))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(a.stdout, "aborted")
			return nil
		}
	}

	res, err := eng.Remove(number)
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(a.stdout, res)
	}
	fmt.Fprintf(a.stdout, "removed account %d (%s)\n", res.Number, res.Email)
	return nil
}

func (a *app) runList(args []string) error {
	fs := newFlagSet("list")
	jsonOut := fs.Bool("json", false, "print accounts as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	infos, err := a.engine(false).List()
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(a.stdout, infos)
	}
	if len(infos) == 0 {
		fmt.Fprintln(a.stdout, "no accounts; run \"ccswitch add\" while signed in")
		return nil
	}

	tw := tabwriter.NewWriter(a.stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  #\tEMAIL\tALIAS\tUSED\tLAST USED\tHEALTH")
	for _, info := range infos {
		marker := " "
		if info.Active {
			marker = "*"
		}
		lastUsed := "-"
		if info.LastUsed != nil {
			lastUsed = info.LastUsed.Local().Format("2006-01-02 15:04")
		}
		alias := info.Alias
		if alias == "" {
			alias = "-"
		}
		fmt.Fprintf(tw, "%s %d\t%s\t%s\t%d\t%s\t%s\n",
			marker, info.Number, info.Email, alias, info.UsageCount, lastUsed, info.Health)
	}
	return tw.Flush()
}

func (a *app) runUse(ctx context.Context, args []string) error {
	fs := newFlagSet("use")
	noWait := fs.Bool("no-wait", false, "fail instead of waiting for open sessions")
	jsonOut := fs.Bool("json", false, "print the result as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: ccswitch use <number|email|alias> [--no-wait]")
	}

	eng := a.engine(*noWait)
	number, err := eng.Resolve(fs.Arg(0))
	if err != nil {
		return err
	}
	res, err := eng.Switch(ctx, number)
	if err != nil {
		return err
	}
	return a.printSwitch(res, *jsonOut)
}

func (a *app) runNext(ctx context.Context, args []string) error {
	fs := newFlagSet("next")
	noWait := fs.Bool("no-wait", false, "fail instead of waiting for open sessions")
	jsonOut := fs.Bool("json", false, "print the result as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	res, err := a.engine(*noWait).SwitchNext(ctx)
	if err != nil {
		return err
	}
	return a.printSwitch(res, *jsonOut)
}

func (a *app) runAlias(args []string) error {
	fs := newFlagSet("alias")
	clear := fs.Bool("clear", false, "remove the alias instead of setting one")
	jsonOut := fs.Bool("json", false, "print the result as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	eng := a.engine(false)
	switch {
	case *clear && fs.NArg() == 1:
		number, err := eng.Resolve(fs.Arg(0))
		if err != nil {
			return err
		}
		res, err := eng.ClearAlias(number)
		if err != nil {
			return err
		}
		if *jsonOut {
			return printJSON(a.stdout, res)
		}
		fmt.Fprintf(a.stdout, "cleared alias of account %d (%s)\n", res.Number, res.Email)
		return nil
	case !*clear && fs.NArg() == 2:
		number, err := eng.Resolve(fs.Arg(0))
		if err != nil {
			return err
		}
		res, err := eng.SetAlias(number, fs.Arg(1))
		if err != nil {
			return err
		}
		if *jsonOut {
			return printJSON(a.stdout, res)
		}
		fmt.Fprintf(a.stdout, "account %d (%s) is now %q\n", res.Number, res.Email, res.Alias)
		return nil
	default:
		return errors.New("usage: ccswitch alias <number|email> <alias> | ccswitch alias <number|email> --clear")
	}
}

func (a *app) runVerify(args []string) error {
	fs := newFlagSet("verify")
	jsonOut := fs.Bool("json", false, "print the report as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 1 {
		return errors.New("usage: ccswitch verify [number|email|alias]")
	}

	eng := a.engine(false)
	var numbers []int
	if fs.NArg() == 1 {
		number, err := eng.Resolve(fs.Arg(0))
		if err != nil {
			return err
		}
		numbers = append(numbers, number)
	}

	report, err := eng.Verify(numbers...)
	if err != nil {
		return err
	}
	if *jsonOut {
		if err := printJSON(a.stdout, report); err != nil {
			return err
		}
	} else {
		for _, check := range report.Checks {
			line := fmt.Sprintf("account %d (%s): %s", check.Number, check.Email, check.Status)
			if check.Detail != "" {
				line += " - " + check.Detail
			}
			fmt.Fprintln(a.stdout, line)
		}
	}
	if !report.Healthy() {
		return errors.New("verification found problems; see the report")
	}
	return nil
}

func (a *app) runHistory(args []string) error {
	fs := newFlagSet("history")
	jsonOut := fs.Bool("json", false, "print the history as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	entries, err := a.engine(false).History()
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(a.stdout, entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(a.stdout, "no switches recorded")
		return nil
	}
	for _, e := range entries {
		from := e.FromEmail
		if from == "" {
			if e.From == 0 {
				from = "(signed out)"
			} else {
				from = fmt.Sprintf("(removed account %d)", e.From)
			}
		}
		to := e.ToEmail
		if to == "" {
			to = fmt.Sprintf("(removed account %d)", e.To)
		}
		fmt.Fprintf(a.stdout, "%s  %s -> %s\n",
			e.Timestamp.Local().Format("2006-01-02 15:04:05"), from, to)
	}
	return nil
}

func (a *app) runUndo(ctx context.Context, args []string) error {
	fs := newFlagSet("undo")
	noWait := fs.Bool("no-wait", false, "fail instead of waiting for open sessions")
	jsonOut := fs.Bool("json", false, "print the result as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	res, err := a.engine(*noWait).Undo(ctx)
	if err != nil {
		return err
	}
	return a.printSwitch(res, *jsonOut)
}

func (a *app) runExport(args []string) error {
	fs := newFlagSet("export")
	jsonOut := fs.Bool("json", false, "print the summary as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: ccswitch export <path.tar.gz>")
	}

	exp := archive.NewExporter(archive.ExporterOptions{
		Registry: a.store,
		Secrets:  a.blobs,
		Log:      a.log,
		Version:  version,
	})
	summary, err := exp.Export(fs.Arg(0))
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(a.stdout, summary)
	}
	fmt.Fprintf(a.stdout, "exported %d account(s) to %s\n", summary.Accounts, summary.Path)
	return nil
}

func (a *app) runImport(args []string) error {
	fs := newFlagSet("import")
	jsonOut := fs.Bool("json", false, "print the summary as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: ccswitch import <path.tar.gz>")
	}

	imp := archive.NewImporter(archive.ImporterOptions{
		Registry: a.store,
		Secrets:  a.blobs,
		Log:      a.log,
	})
	summary, err := imp.Import(fs.Arg(0))
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(a.stdout, summary)
	}
	for _, acc := range summary.Added {
		fmt.Fprintf(a.stdout, "imported %s as account %d\n", acc.Email, acc.Number)
	}
	for _, email := range summary.Skipped {
		fmt.Fprintf(a.stdout, "skipped %s (already managed)\n", email)
	}
	if len(summary.Added) == 0 && len(summary.Skipped) == 0 {
		fmt.Fprintln(a.stdout, "bundle contained no accounts")
	}
	return nil
}

func (a *app) runStatus(args []string) error {
	fs := newFlagSet("status")
	jsonOut := fs.Bool("json", false, "print the status as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	res, err := a.engine(false).Status()
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(a.stdout, res)
	}
	switch {
	case !res.SignedIn:
		fmt.Fprintln(a.stdout, "signed out")
	case !res.Managed:
		fmt.Fprintf(a.stdout, "signed in as %s (unmanaged; run \"ccswitch add\")\n", res.Email)
	case res.Alias != "":
		fmt.Fprintf(a.stdout, "signed in as %s (account %d, alias %s)\n", res.Email, res.Number, res.Alias)
	default:
		fmt.Fprintf(a.stdout, "signed in as %s (account %d)\n", res.Email, res.Number)
	}
	if res.Repaired {
		fmt.Fprintln(a.stdout, "registry pointer was out of date and has been repaired")
	}
	fmt.Fprintf(a.stdout, "%d account(s) managed\n", res.Accounts)
	return nil
}

func (a *app) printSwitch(res *core.SwitchResult, jsonOut bool) error {
	if res.Warning != "" {
		fmt.Fprintln(a.stderr, "warning:", res.Warning)
	}
	if jsonOut {
		return printJSON(a.stdout, res)
	}
	if res.From != 0 {
		fmt.Fprintf(a.stdout, "switched from account %d to %d (%s)\n", res.From, res.To, res.Email)
	} else {
		fmt.Fprintf(a.stdout, "switched to account %d (%s)\n", res.To, res.Email)
	}
	return nil
}

func (a *app) confirm(prompt string) (bool, error) {
	fmt.Fprint(a.stdout, prompt)
	reader := bufio.NewReader(a.stdin)
	line, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

// newFlagSet builds a per-command flag set that reports errors instead
// of printing and exiting, so run can surface them uniformly.
func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "ccswitch commands:")
	fmt.Fprintln(w, "  add                                   capture the signed-in identity as a managed account")
	fmt.Fprintln(w, "  remove <number|email|alias> [--yes]   delete an account and its backups")
	fmt.Fprintln(w, "  list [--json]                         show managed accounts")
	fmt.Fprintln(w, "  use <number|email|alias> [--no-wait]  switch to a specific account")
	fmt.Fprintln(w, "  next [--no-wait]                      switch to the next account in order")
	fmt.Fprintln(w, "  alias <number|email> <alias>          name an account (--clear to remove)")
	fmt.Fprintln(w, "  verify [number|email|alias] [--json]  check backup health")
	fmt.Fprintln(w, "  history [--json]                      show recent switches")
	fmt.Fprintln(w, "  undo [--no-wait]                      switch back to the previous account")
	fmt.Fprintln(w, "  export <path.tar.gz>                  write all accounts to a portable bundle")
	fmt.Fprintln(w, "  import <path.tar.gz>                  merge a bundle into this machine")
	fmt.Fprintln(w, "  status [--json]                       show the live identity")
	fmt.Fprintln(w, "  version                               print the version")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "a leading --verbose enables debug logging for any command")
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
