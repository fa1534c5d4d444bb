// Package chatclient is the command-line client. It talks to the primary
// service over REST and keeps a direct connection to the shared store, so
// auth keeps working when the primary is down and live views keep flowing
// either way.
package chatclient

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"novachat/internal/contacts"
	"novachat/internal/directory"
	"novachat/internal/domain"
	"novachat/internal/localstate"
	"novachat/internal/messaging"
	"novachat/internal/primary"
	"novachat/internal/session"
	"novachat/internal/store"
)

const (
	defaultAPIURL    = "http://localhost:3001"
	defaultStatePath = "novactl-state.json"
	defaultDBURL     = "novachat.db"
)

func RunCLI(prog string, args []string, stderr io.Writer) error {
	if len(args) < 1 {
		return UsageError{Program: prog}
	}
	cmd := args[0]
	rest := args[1:]
	var err error
	switch cmd {
	case "register":
		err = runRegister(rest)
	case "login":
		err = runLogin(rest)
	case "logout":
		err = runLogout(rest)
	case "whoami":
		err = runWhoami(rest)
	case "users":
		err = runUsers(rest)
	case "toggle":
		err = runToggle(rest)
	case "send":
		err = runSend(rest)
	case "watch":
		err = runWatch(rest)
	default:
		return UsageError{Program: prog}
	}
	if err != nil {
		if stderr == nil {
			stderr = os.Stderr
		}
		fmt.Fprintf(stderr, "error: %v\n", err)
	}
	return err
}

type UsageError struct {
	Program string
}

func (u UsageError) Error() string {
	if u.Program == "" {
		u.Program = "novactl"
	}
	return fmt.Sprintf("Usage: %s <command> [options]", u.Program)
}

func (UsageError) UsageLines() []string {
	return []string{
		"Commands:",
		"  register  Create an identity (primary service, store fallback)",
		"  login     Authenticate and cache the identity locally",
		"  logout    Forget the cached identity",
		"  whoami    Print the cached identity",
		"  users     Print the directory (everyone but you)",
		"  toggle    Save or unsave a contact",
		"  send      Send a message",
		"  watch     Follow one conversation live",
	}
}

type app struct {
	log     *slog.Logger
	store   store.Adapter
	session *session.Controller
	cache   *localstate.Cache
	apiURL  string
}

type appFlags struct {
	api   *string
	db    *string
	drv   *string
	state *string
}

func registerAppFlags(fs *flag.FlagSet) appFlags {
	return appFlags{
		api:   fs.String("api", getenv("NOVACHAT_API", defaultAPIURL), "primary service base URL"),
		db:    fs.String("db", getenv("DATABASE_URL", defaultDBURL), "shared store DSN"),
		drv:   fs.String("driver", getenv("DATABASE_DRIVER", "sqlite"), "shared store driver (sqlite|postgres)"),
		state: fs.String("state", getenv("NOVACTL_STATE_PATH", defaultStatePath), "cached identity path"),
	}
}

func newApp(f appFlags) (*app, error) {
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	var dialector gorm.Dialector
	switch *f.drv {
	case "postgres":
		dialector = postgres.Open(*f.db)
	default:
		dialector = sqlite.Open(*f.db)
	}
	gdb, err := gorm.Open(dialector, &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	st, err := store.NewDB(gdb, log)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	return &app{
		log:     log,
		store:   st,
		session: session.New(primary.NewClient(*f.api), st, log),
		cache:   localstate.New(*f.state, log),
		apiURL:  *f.api,
	}, nil
}

func (a *app) currentUser() (*domain.Identity, error) {
	id, err := a.cache.Load()
	if err != nil {
		return nil, err
	}
	if id == nil {
		return nil, errors.New("not logged in (run login first)")
	}
	return id, nil
}

func runRegister(args []string) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	f := registerAppFlags(fs)
	user := fs.String("user", "", "username")
	pass := fs.String("pass", "", "password")
	avatar := fs.String("avatar", "", "avatar URL (optional)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	a, err := newApp(f)
	if err != nil {
		return err
	}
	id, err := a.session.Register(context.Background(), *user, *pass, *avatar)
	if err != nil {
		return err
	}
	if err := a.cache.Save(*id); err != nil {
		return err
	}
	fmt.Printf("registered and logged in as %s\n", id.Username)
	return nil
}

func runLogin(args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	f := registerAppFlags(fs)
	user := fs.String("user", "", "username")
	pass := fs.String("pass", "", "password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	a, err := newApp(f)
	if err != nil {
		return err
	}
	id, err := a.session.Login(context.Background(), *user, *pass)
	if err != nil {
		return err
	}
	if err := a.cache.Save(*id); err != nil {
		return err
	}
	fmt.Printf("logged in as %s\n", id.Username)
	return nil
}

func runLogout(args []string) error {
	fs := flag.NewFlagSet("logout", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	statePath := fs.String("state", getenv("NOVACTL_STATE_PATH", defaultStatePath), "cached identity path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := localstate.New(*statePath, nil).Clear(); err != nil {
		return err
	}
	fmt.Println("logged out")
	return nil
}

func runWhoami(args []string) error {
	fs := flag.NewFlagSet("whoami", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	statePath := fs.String("state", getenv("NOVACTL_STATE_PATH", defaultStatePath), "cached identity path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := localstate.New(*statePath, nil).Load()
	if err != nil {
		return err
	}
	if id == nil {
		fmt.Println("not logged in")
		return nil
	}
	fmt.Printf("%s (registered %s, %d saved contacts)\n",
		id.Username, time.UnixMilli(id.CreatedAt).Format(time.DateOnly), len(id.SavedContacts))
	return nil
}

func runUsers(args []string) error {
	fs := flag.NewFlagSet("users", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	f := registerAppFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	a, err := newApp(f)
	if err != nil {
		return err
	}
	me, err := a.currentUser()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	first := make(chan []domain.Identity, 1)
	stop, err := directory.New(a.store, a.log).Subscribe(ctx, me.Username, func(ids []domain.Identity) {
		select {
		case first <- ids:
		default:
		}
	})
	if err != nil {
		return err
	}
	defer stop()

	select {
	case ids := <-first:
		if len(ids) == 0 {
			fmt.Println("no other users yet")
			return nil
		}
		for _, id := range ids {
			marker := " "
			if me.HasContact(id.Username) {
				marker = "*"
			}
			fmt.Printf("%s %s\n", marker, id.Username)
		}
		return nil
	case <-ctx.Done():
		return domain.ErrUnreachable
	}
}

func runToggle(args []string) error {
	fs := flag.NewFlagSet("toggle", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	f := registerAppFlags(fs)
	peer := fs.String("peer", "", "contact username")
	if err := fs.Parse(args); err != nil {
		return err
	}
	a, err := newApp(f)
	if err != nil {
		return err
	}
	me, err := a.currentUser()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Re-read the record rather than trusting the cached copy; the toggle
	// flag should reflect the latest saved set we can observe.
	doc, err := a.store.Get(ctx, domain.UsersCollection, domain.NormalizeUsername(me.Username))
	if err != nil {
		return err
	}
	var current domain.Identity
	if err := store.Decode(doc, &current); err != nil {
		return err
	}

	saved := current.HasContact(domain.NormalizeUsername(*peer))
	if err := contacts.New(a.store, a.log).Toggle(ctx, me.Username, *peer, saved); err != nil {
		return err
	}
	if saved {
		fmt.Printf("removed %s from saved contacts\n", *peer)
	} else {
		fmt.Printf("added %s to saved contacts\n", *peer)
	}
	return nil
}

func runSend(args []string) error {
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	f := registerAppFlags(fs)
	to := fs.String("to", "", "recipient username")
	message := fs.String("message", "", "message text (if empty, read stdin)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	a, err := newApp(f)
	if err != nil {
		return err
	}
	me, err := a.currentUser()
	if err != nil {
		return err
	}

	text := *message
	if strings.TrimSpace(text) == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return err
		}
		text = string(data)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := messaging.NewPublisher(a.store).Send(ctx, me.Username, *to, text); err != nil {
		return err
	}
	fmt.Println("sent")
	return nil
}

func runWatch(args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	f := registerAppFlags(fs)
	peer := fs.String("peer", "", "conversation partner")
	remote := fs.Bool("remote", false, "follow via the primary service's watch feed instead of the store")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*peer) == "" {
		return fmt.Errorf("peer is required")
	}
	a, err := newApp(f)
	if err != nil {
		return err
	}
	me, err := a.currentUser()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if *remote {
		return watchRemote(ctx, a.apiURL, me.Username, *peer)
	}

	stop, err := messaging.NewStream(a.store, a.log).Subscribe(ctx, me.Username, *peer, printConversation)
	if err != nil {
		return err
	}
	defer stop()

	<-ctx.Done()
	return nil
}

func printConversation(msgs []domain.Message) {
	fmt.Printf("--- %d message(s)\n", len(msgs))
	for _, m := range msgs {
		fmt.Printf("[%s] %s: %s\n",
			time.UnixMilli(m.CreatedAt).Format(time.TimeOnly), m.From, m.Text)
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
