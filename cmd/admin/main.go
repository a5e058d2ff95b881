package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"custodian/internal/account"
	"custodian/internal/audit"
	"custodian/internal/docstore"
	"custodian/internal/patch"
	"custodian/internal/platform/config"
	"custodian/internal/platform/logger"
	"custodian/internal/platform/metrics"
	platformredis "custodian/internal/platform/redis"
)

const usage = `usage: admin <command> [arguments]

commands:
  create <email> [username]     register a new account (status pending)
  create-admin <email>          register a new admin account
  approve <name>                approve a pending account, print its code
  activate <name> <code> <pw>   activate an approved account
  reset <name>                  issue a new activation code
  block <name>                  retire an account
  unblock <name>                reinstate a blocked account
  show <name>                   print one account
  list [all|pending|blocked]    list accounts
  logs <name>                   print the account's audit trail
  patch <name> [-apply]         count or run a data patch

<name> is an email address or a username.`

// main wires the stores, the audit pipeline, and the account service, then
// dispatches one subcommand. Business logic lives in the internal packages.
func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "admin:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, usage)
		return fmt.Errorf("missing command")
	}

	cfg := config.FromEnv()
	log := logger.New()
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if cfg.PostgresDSN == "" {
		return fmt.Errorf("CUSTODIAN_POSTGRES_DSN is not set")
	}
	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	defer db.Close()

	pg := docstore.NewPostgres(db)
	if err := pg.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	var store docstore.Store = pg
	if cfg.Redis.URL != "" {
		rc, err := platformredis.New(cfg.Redis)
		if err != nil {
			log.Printf("document cache disabled: %v", err)
		} else {
			defer rc.Close()
			store = docstore.NewCache(pg, rc.Client, cfg.Redis.TTL, logger.Named("cache"))
		}
	}

	m := metrics.New()

	var logOpts []audit.LogOption
	mirror := audit.NewMirror(0)
	worker, err := audit.NewWorker(cfg.Kafka, mirror, logger.Named("mirror"))
	if err != nil {
		log.Printf("audit mirror disabled: %v", err)
	} else if worker != nil {
		logOpts = append(logOpts, audit.WithMirror(mirror))
		workerCtx, stopWorker := context.WithCancel(context.Background())
		go func() { _ = worker.Run(workerCtx) }()
		defer func() {
			stopWorker()
			flushCtx, cancelFlush := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancelFlush()
			if err := worker.Close(flushCtx); err != nil {
				log.Printf("audit mirror flush: %v", err)
			}
		}()
	}
	auditLog := audit.NewLog(store, logOpts...)

	service := account.NewService(store, auditLog, cfg.ActivationPeriod, cfg.BcryptCost,
		account.WithLogger(logger.Named("account")), account.WithMetrics(m))

	operator := os.Getenv("CUSTODIAN_OPERATOR")

	command, args := args[0], args[1:]
	switch command {
	case "create":
		if len(args) < 1 {
			return fmt.Errorf("create: email required")
		}
		p := account.CreateParams{Email: args[0]}
		if len(args) > 1 {
			p.Username = args[1]
		}
		u, err := service.Create(ctx, p, operator)
		if err != nil {
			return err
		}
		printUser(u)
		return nil

	case "create-admin":
		if len(args) != 1 {
			return fmt.Errorf("create-admin: email required")
		}
		u, err := service.Create(ctx, account.CreateParams{Email: args[0], Role: account.RoleAdmin}, operator)
		if err != nil {
			return err
		}
		printUser(u)
		return nil

	case "approve":
		if len(args) != 1 {
			return fmt.Errorf("approve: name required")
		}
		u, activation, err := service.Approve(ctx, args[0], operator)
		if err != nil {
			return err
		}
		printUser(u)
		fmt.Printf("activation code: %s (valid until %s)\n",
			activation.Code, activation.Deadline.Format(time.RFC3339))
		return nil

	case "activate":
		if len(args) != 3 {
			return fmt.Errorf("activate: name, code, and password required")
		}
		u, err := service.Activate(ctx, args[0], args[1], args[2])
		if err != nil {
			return err
		}
		printUser(u)
		return nil

	case "reset":
		if len(args) != 1 {
			return fmt.Errorf("reset: name required")
		}
		u, activation, err := service.ResetPassword(ctx, args[0], operator)
		if err != nil {
			return err
		}
		printUser(u)
		fmt.Printf("activation code: %s (valid until %s)\n",
			activation.Code, activation.Deadline.Format(time.RFC3339))
		return nil

	case "block", "unblock":
		if len(args) != 1 {
			return fmt.Errorf("%s: name required", command)
		}
		var u account.User
		if command == "block" {
			u, err = service.Block(ctx, args[0], operator)
		} else {
			u, err = service.Unblock(ctx, args[0], operator)
		}
		if err != nil {
			return err
		}
		printUser(u)
		return nil

	case "show":
		if len(args) != 1 {
			return fmt.Errorf("show: name required")
		}
		u, err := service.Get(ctx, args[0])
		if err != nil {
			return err
		}
		printUser(u)
		return nil

	case "list":
		which := "all"
		if len(args) > 0 {
			which = args[0]
		}
		var users []account.User
		switch which {
		case "all":
			users, err = service.List(ctx)
		case "pending":
			users, err = service.ListPending(ctx)
		case "blocked":
			users, err = service.ListBlocked(ctx)
		default:
			return fmt.Errorf("list: unknown filter %q", which)
		}
		if err != nil {
			return err
		}
		for _, u := range users {
			fmt.Printf("%-40s %-20s %-8s %s\n", u.Email, u.Username, u.Status, u.Role)
		}
		return nil

	case "logs":
		if len(args) != 1 {
			return fmt.Errorf("logs: name required")
		}
		u, err := service.Get(ctx, args[0])
		if err != nil {
			return err
		}
		entries, err := service.Logs(ctx, u.ID)
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Printf("%s operator=%s changed=%v deleted=%v\n",
				e.Timestamp, e.Operator, e.Changed, e.Deleted)
		}
		return nil

	case "patch":
		return runPatch(ctx, store, m, args)

	default:
		fmt.Fprintln(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

// patches lists every registered data migration by name.
var patches = map[string]patch.Patch{
	account.NormalizeEmailPatch{}.Name(): account.NormalizeEmailPatch{},
}

func runPatch(ctx context.Context, store docstore.Store, m *metrics.Metrics, args []string) error {
	fs := flag.NewFlagSet("patch", flag.ContinueOnError)
	apply := fs.Bool("apply", false, "rewrite documents instead of only counting")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		names := make([]string, 0, len(patches))
		for name := range patches {
			names = append(names, name)
		}
		return fmt.Errorf("patch: one patch name required (available: %s)", strings.Join(names, ", "))
	}
	p, ok := patches[fs.Arg(0)]
	if !ok {
		return fmt.Errorf("patch: unknown patch %q", fs.Arg(0))
	}

	runner := patch.NewRunner(store, patch.WithMetrics(m))
	if !*apply {
		count, err := runner.CountRelevant(ctx, p)
		if err != nil {
			return err
		}
		fmt.Printf("%d documents would be modified (re-run with -apply)\n", count)
		return nil
	}
	modified, err := runner.RunAll(ctx, p)
	if err != nil {
		return err
	}
	fmt.Printf("%d documents modified\n", modified)
	return nil
}

func printUser(u account.User) {
	fmt.Printf("id:       %s\n", u.ID)
	fmt.Printf("email:    %s\n", u.Email)
	if u.Username != "" {
		fmt.Printf("username: %s\n", u.Username)
	}
	if u.Name != "" {
		fmt.Printf("name:     %s\n", u.Name)
	}
	fmt.Printf("status:   %s\n", u.Status)
	fmt.Printf("role:     %s\n", u.Role)
	if len(u.Teams) > 0 {
		fmt.Printf("teams:    %s\n", strings.Join(u.Teams, ", "))
	}
	if len(u.Services) > 0 {
		fmt.Printf("services: %s\n", strings.Join(u.Services, ", "))
	}
	if !u.Created.IsZero() {
		fmt.Printf("created:  %s\n", u.Created.Format(time.RFC3339))
	}
}
