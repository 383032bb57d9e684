// trinity-link - links Quake 3 players to Discord accounts
package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	flag "github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/ernie/trinity-link/internal/api"
	"github.com/ernie/trinity-link/internal/auth"
	"github.com/ernie/trinity-link/internal/collector"
	"github.com/ernie/trinity-link/internal/config"
	"github.com/ernie/trinity-link/internal/discord"
	"github.com/ernie/trinity-link/internal/domain"
	"github.com/ernie/trinity-link/internal/events"
	"github.com/ernie/trinity-link/internal/linkcode"
	"github.com/ernie/trinity-link/internal/linker"
	"github.com/ernie/trinity-link/internal/links"
	"github.com/ernie/trinity-link/internal/metrics"
	"github.com/ernie/trinity-link/internal/rolesync"
	"github.com/ernie/trinity-link/internal/schedule"
	"github.com/ernie/trinity-link/internal/storage"
	"github.com/ernie/trinity-link/internal/worker"
)

var version = "dev"

const defaultConfigPath = "/etc/trinity/link.yml"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "init":
		cmdInit(os.Args[2:])
	case "serve":
		cmdServe(os.Args[2:])
	case "links":
		cmdLinks(os.Args[2:])
	case "perm":
		cmdPerm(os.Args[2:])
	case "user":
		cmdUser(os.Args[2:])
	case "version":
		fmt.Printf("trinity-link %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: trinity-link <command> [options] [args]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  init [--force]                      Write a new config file (prompts for secrets)")
	fmt.Println("  serve                               Start the link service")
	fmt.Println("  links [--game ID] [--chat ID]       Show linked accounts")
	fmt.Println("  perm grant <guid> <permission>      Grant a permission to a player GUID")
	fmt.Println("  perm revoke <guid> <permission>     Revoke a granted permission")
	fmt.Println("  perm list [guid]                    List granted permissions")
	fmt.Println("  user add [--admin] <username>       Add an API user (prompts for password)")
	fmt.Println("  user remove <username>              Remove a user")
	fmt.Println("  user list                           List all users")
	fmt.Println("  user reset <username>               Reset a user's password")
	fmt.Println("  user admin <username>               Toggle admin status for a user")
	fmt.Println("  version                             Show version")
	fmt.Println("  help                                Show this help")
	fmt.Println()
	fmt.Println("Global Options:")
	fmt.Println("  --config <path>    Path to configuration file (default /etc/trinity/link.yml)")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  sudo trinity-link init")
	fmt.Println("  trinity-link serve --config /etc/trinity/link.yml")
	fmt.Println("  trinity-link perm grant 0123456789ABCDEF0123456789ABCDEF trinitylink.auth")
	fmt.Println("  trinity-link user add --admin myuser")
}

// cmdServe starts the link service
func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	fs.Parse(args)

	// Determine config path
	cfgPath := *configPath
	if cfgPath == "" {
		if _, err := os.Stat(defaultConfigPath); err == nil {
			cfgPath = defaultConfigPath
		} else {
			log.Fatalf("No config file found at %s. Use --config to specify a config file.", defaultConfigPath)
		}
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	log.Printf("Trinity Link %s starting...", version)
	log.Printf("Watching %d servers", len(cfg.Q3Servers))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage
	store, err := storage.New(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()
	log.Printf("Database initialized at %s", cfg.Database.Path)

	linkStore, err := links.Open(ctx, linkPersister(cfg, store))
	if err != nil {
		log.Fatalf("Failed to load links: %v", err)
	}
	log.Printf("Loaded %d links", linkStore.Count())

	// Pending codes expire through the scheduler
	sched, err := schedule.NewCronScheduler()
	if err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}
	pending := linkcode.NewStore(linkcode.Options{
		Length:    cfg.Code.Length,
		Lowercase: cfg.Code.Lowercase,
		Lifetime:  cfg.Code.Lifetime,
	}, linkcode.NewGenerator(), sched)

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.NewCollector(registry)

	// Discord
	discordClient, err := discord.NewClient(cfg.Discord.Token, cfg.Discord.GuildID, cfg.Discord.APIURL)
	if err != nil {
		log.Fatalf("Failed to create Discord client: %v", err)
	}
	if err := discordClient.RefreshGuild(ctx); err != nil {
		log.Printf("Warning: could not load guild %s: %v", cfg.Discord.GuildID, err)
	}
	rolePool := worker.NewPool("rolesync", cfg.Link.RoleWorkers, 256)
	roles := rolesync.New(discordClient, cfg.Link.Roles, rolePool, recorder)

	// Game servers
	commandPool := worker.NewPool("commands", 4, 256)
	manager := collector.NewServerManager(cfg.Q3Servers, collector.NewQ3Client(), cfg.Link.AuthCommands, cfg.Link.DeauthCommands, commandPool)

	engine := linker.New(linker.Config{
		Group:                 cfg.Link.Group,
		RevokeGroupOnLeave:    cfg.Link.RevokeGroupOnLeave,
		DeauthenticateOnLeave: cfg.Link.DeauthenticateOnLeave,
		ChatPrefix:            cfg.Link.ChatPrefix,
		Messages:              cfg.Link.Messages,
		SubmitRatePerMinute:   cfg.Code.SubmitRatePerMinute,
		SubmitBurst:           cfg.Code.SubmitBurst,
		NotifyWorkers:         cfg.Link.NotifyWorkers,
	}, linker.Deps{
		Pending:     pending,
		Links:       linkStore,
		Players:     manager,
		Chat:        discordClient,
		Permissions: auth.NewChecker(cfg.Auth.DefaultPermissions, store),
		Groups:      store,
		Roles:       roles,
		Metrics:     recorder,
	})

	metrics.RegisterLinkCount(registry, engine.LinkCount)
	metrics.RegisterDropped(registry, "notify", engine.NotifyDropped)
	metrics.RegisterDropped(registry, "rolesync", rolePool.Dropped)
	metrics.RegisterDropped(registry, "commands", commandPool.Dropped)

	// NATS
	ns, publisher := startNATS(cfg)
	if publisher != nil && cfg.NATS.Hooks {
		hooks := events.NewHooks(publisher.Conn(), cfg.NATS.SubjectPrefix, cfg.NATS.HookTimeout)
		engine.AddLinkHook(hooks)
		engine.AddUnlinkHook(hooks)
		log.Printf("Link hooks enabled on %s.hooks.*", cfg.NATS.SubjectPrefix)
	}

	// Create auth service
	authService := auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.TokenDuration)

	// Create HTTP router
	router := api.NewRouter(engine, store, authService, metrics.Handler(registry))
	router.StartWebSocketHub(ctx)

	go fanOutEvents(ctx, engine.Events(), router.Hub(), publisher)

	if err := manager.Start(ctx, engine); err != nil {
		log.Fatalf("Failed to start server manager: %v", err)
	}
	log.Printf("Server manager started")

	discordPool := worker.NewPool("discord", 4, 256)
	metrics.RegisterDropped(registry, "discord", discordPool.Dropped)
	gateway := discord.NewGateway(discordClient, engine, discordPool)
	gatewayDone := make(chan struct{})
	go func() {
		defer close(gatewayDone)
		if err := gateway.Run(ctx); err != nil {
			log.Printf("Discord gateway stopped: %v", err)
		}
	}()

	// Start HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.ListenAddr, cfg.Server.HTTPPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Set up signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("HTTP server listening on %s", addr)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Wait for signal or error
	select {
	case sig := <-sigCh:
		log.Printf("Received signal %v, shutting down...", sig)
	case err := <-serverErr:
		log.Fatalf("HTTP server error: %v", err)
	}

	// Sequential shutdown
	log.Println("Shutting down HTTP server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	log.Println("Stopping server manager...")
	manager.Stop()
	if err := commandPool.Close(shutdownCtx); err != nil {
		log.Printf("Error draining chat commands: %v", err)
	}

	cancel()
	<-gatewayDone
	if err := discordPool.Close(shutdownCtx); err != nil {
		log.Printf("Error draining Discord events: %v", err)
	}

	log.Println("Saving links...")
	if err := engine.Close(shutdownCtx); err != nil {
		log.Printf("Error closing link engine: %v", err)
	}
	if err := rolePool.Close(shutdownCtx); err != nil {
		log.Printf("Error draining role updates: %v", err)
	}
	if err := sched.Shutdown(); err != nil {
		log.Printf("Scheduler shutdown error: %v", err)
	}

	if publisher != nil {
		publisher.Close()
	}
	if ns != nil {
		ns.Shutdown()
	}
	log.Println("Shutdown complete")
}

// linkPersister picks the JSON file when one is configured, else the database
func linkPersister(cfg *config.Config, store *storage.Store) links.Persister {
	if cfg.Database.LinksFile != "" {
		log.Printf("Persisting links to %s", cfg.Database.LinksFile)
		return storage.NewFileStore(cfg.Database.LinksFile)
	}
	return store
}

// startNATS starts the embedded server and/or connects the publisher.
// Both results are nil when NATS is not configured.
func startNATS(cfg *config.Config) (*natsserver.Server, *events.Publisher) {
	url := cfg.NATS.URL
	var ns *natsserver.Server
	if cfg.NATS.Embedded {
		var err error
		ns, err = events.StartEmbedded("127.0.0.1", cfg.NATS.EmbeddedPort)
		if err != nil {
			log.Fatalf("Failed to start embedded NATS server: %v", err)
		}
		log.Printf("Embedded NATS server listening on %s", ns.ClientURL())
		if url == "" {
			url = ns.ClientURL()
		}
	}
	if url == "" {
		return nil, nil
	}

	publisher, err := events.Connect(url, cfg.NATS.SubjectPrefix)
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	log.Printf("Publishing link events to %s.*", cfg.NATS.SubjectPrefix)
	return ns, publisher
}

// fanOutEvents copies engine events to websocket clients and NATS
func fanOutEvents(ctx context.Context, in <-chan domain.Event, hub *api.WebSocketHub, publisher *events.Publisher) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-in:
			hub.Broadcast(ev)
			if publisher != nil {
				if err := publisher.Publish(ev); err != nil {
					log.Printf("Error publishing event: %v", err)
				}
			}
		}
	}
}

// cmdInit writes a starter config file
func cmdInit(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to configuration file")
	force := fs.Bool("force", false, "overwrite an existing config file")
	fs.Parse(args)

	if _, err := os.Stat(*configPath); err == nil && !*force {
		fmt.Printf("Config already exists at %s.\n", *configPath)
		fmt.Println("To re-initialize, use --force or remove the file first.")
		return
	}

	cfg := config.Default()
	reader := bufio.NewReader(os.Stdin)

	fmt.Print("Discord bot token: ")
	token, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to read token: %v\n", err)
		os.Exit(1)
	}
	cfg.Discord.Token = strings.TrimSpace(string(token))

	fmt.Print("Discord guild ID: ")
	guild, _ := reader.ReadString('\n')
	cfg.Discord.GuildID = strings.TrimSpace(guild)

	fmt.Print("Quake 3 server address [127.0.0.1:27960]: ")
	address, _ := reader.ReadString('\n')
	address = strings.TrimSpace(address)
	if address == "" {
		address = "127.0.0.1:27960"
	}
	fmt.Print("Quake 3 games.log path: ")
	logPath, _ := reader.ReadString('\n')
	fmt.Print("RCON password: ")
	rcon, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to read RCON password: %v\n", err)
		os.Exit(1)
	}
	cfg.Q3Servers = []config.Q3Server{{
		Name:         "default",
		Address:      address,
		LogPath:      strings.TrimSpace(logPath),
		RconPassword: string(rcon),
	}}

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to generate JWT secret: %v\n", err)
		os.Exit(1)
	}
	cfg.Auth.JWTSecret = hex.EncodeToString(secret)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := config.Save(*configPath, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Config written to %s\n", *configPath)
	fmt.Println("Next: trinity-link user add --admin <username>")
}

// CLI helper variables
var dbPath string

// loadCLIConfig parses --config and returns the config with the remaining args
func loadCLIConfig(args []string) (*config.Config, []string) {
	fs := flag.NewFlagSet("cli", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "path to configuration file")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load config from %s: %v\n", *configPath, err)
		cfg = config.Default()
	}
	dbPath = cfg.Database.Path
	return cfg, fs.Args()
}

func openStore() *storage.Store {
	store, err := storage.New(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open database: %v\n", err)
		os.Exit(1)
	}
	return store
}

// cmdLinks lists linked accounts
func cmdLinks(args []string) {
	fs := flag.NewFlagSet("links", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to configuration file")
	game := fs.String("game", "", "only show the link for this GUID")
	chat := fs.String("chat", "", "only show the link for this Discord user ID")
	fs.Parse(args)

	cfg, _ := loadCLIConfig([]string{"--config", *configPath})
	store := openStore()
	defer store.Close()

	all, err := linkPersister(cfg, store).ReadLinks(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to read links: %v\n", err)
		os.Exit(1)
	}

	var shown []domain.Link
	for _, l := range all {
		if *game != "" && string(l.Game) != *game {
			continue
		}
		if *chat != "" && string(l.Chat) != *chat {
			continue
		}
		shown = append(shown, l)
	}

	if len(shown) == 0 {
		fmt.Println("No links")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "GUID\tDISCORD\tLINKED")
	fmt.Fprintln(w, "----\t-------\t------")
	for _, l := range shown {
		fmt.Fprintf(w, "%s\t%s\t%s\n", l.Game, l.Chat, l.LinkedAt.Local().Format("2006-01-02 15:04"))
	}
	w.Flush()
	fmt.Printf("\n%d link(s)\n", len(shown))
}

func cmdPerm(args []string) {
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "Error: perm subcommand required: grant, revoke, list\n")
		os.Exit(1)
	}

	subCmd := args[0]
	_, remaining := loadCLIConfig(args[1:])
	store := openStore()
	defer store.Close()

	ctx := context.Background()

	var err error
	switch subCmd {
	case "grant":
		err = cmdPermGrant(ctx, store, remaining)
	case "revoke":
		err = cmdPermRevoke(ctx, store, remaining)
	case "list":
		err = cmdPermList(ctx, store, remaining)
	default:
		err = fmt.Errorf("unknown perm command: %s (use: grant, revoke, list)", subCmd)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func cmdPermGrant(ctx context.Context, store *storage.Store, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: trinity-link perm grant <guid> <permission>")
	}
	if err := store.GrantPermission(ctx, domain.Identity(args[0]), args[1]); err != nil {
		return fmt.Errorf("failed to grant permission: %w", err)
	}
	fmt.Printf("Granted %s to %s\n", args[1], args[0])
	return nil
}

func cmdPermRevoke(ctx context.Context, store *storage.Store, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: trinity-link perm revoke <guid> <permission>")
	}
	if err := store.RevokePermission(ctx, domain.Identity(args[0]), args[1]); err != nil {
		return err
	}
	fmt.Printf("Revoked %s from %s\n", args[1], args[0])
	return nil
}

func cmdPermList(ctx context.Context, store *storage.Store, args []string) error {
	var identity domain.Identity
	if len(args) > 0 {
		identity = domain.Identity(args[0])
	}
	grants, err := store.ListPermissions(ctx, identity)
	if err != nil {
		return fmt.Errorf("failed to list permissions: %w", err)
	}
	if len(grants) == 0 {
		fmt.Println("No permissions granted")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "GUID\tPERMISSION\tGRANTED")
	fmt.Fprintln(w, "----\t----------\t-------")
	for _, g := range grants {
		fmt.Fprintf(w, "%s\t%s\t%s\n", g.Identity, g.Permission, g.GrantedAt.Local().Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func cmdUser(args []string) {
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "Error: user subcommand required: add, remove, list, reset, admin\n")
		os.Exit(1)
	}

	subCmd := args[0]
	_, remaining := loadCLIConfig(args[1:])
	store := openStore()
	defer store.Close()

	ctx := context.Background()

	var err error
	switch subCmd {
	case "add":
		err = cmdUserAdd(ctx, store, remaining)
	case "remove":
		err = cmdUserRemove(ctx, store, remaining)
	case "list":
		err = cmdUserList(ctx, store)
	case "reset":
		err = cmdUserReset(ctx, store, remaining)
	case "admin":
		err = cmdUserAdmin(ctx, store, remaining)
	default:
		err = fmt.Errorf("unknown user command: %s (use: add, remove, list, reset, admin)", subCmd)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// readNewPassword prompts twice and enforces the minimum length
func readNewPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	if len(password) < 8 {
		return "", errors.New("password must be at least 8 characters")
	}

	fmt.Print("Confirm password: ")
	confirm, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	if string(password) != string(confirm) {
		return "", errors.New("passwords do not match")
	}
	return string(password), nil
}

func cmdUserAdd(ctx context.Context, store *storage.Store, args []string) error {
	fs := flag.NewFlagSet("user add", flag.ExitOnError)
	isAdmin := fs.Bool("admin", false, "create as admin user")
	fs.Parse(args)

	remaining := fs.Args()
	if len(remaining) < 1 {
		return fmt.Errorf("usage: trinity-link user add [--admin] <username>")
	}
	username := remaining[0]

	if _, err := store.GetUserByUsername(ctx, username); err == nil {
		return fmt.Errorf("user '%s' already exists", username)
	}

	password, err := readNewPassword("Enter password: ")
	if err != nil {
		return err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := store.CreateUser(ctx, username, hash, *isAdmin); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	role := "user"
	if *isAdmin {
		role = "admin"
	}
	fmt.Printf("User '%s' created (%s)\n", username, role)
	return nil
}

func cmdUserRemove(ctx context.Context, store *storage.Store, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: trinity-link user remove <username>")
	}
	username := args[0]

	if err := store.DeleteUser(ctx, username); err != nil {
		return fmt.Errorf("failed to remove user: %w", err)
	}

	fmt.Printf("User '%s' removed\n", username)
	return nil
}

func cmdUserList(ctx context.Context, store *storage.Store) error {
	users, err := store.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}

	if len(users) == 0 {
		fmt.Println("No users configured")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "USERNAME\tROLE\tCREATED\tLAST_LOGIN")
	fmt.Fprintln(w, "--------\t----\t-------\t----------")

	for _, user := range users {
		role := "user"
		if user.IsAdmin {
			role = "admin"
		}
		lastLogin := "never"
		if user.LastLogin != nil {
			lastLogin = user.LastLogin.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", user.Username, role, user.CreatedAt.Format("2006-01-02"), lastLogin)
	}
	return w.Flush()
}

func cmdUserReset(ctx context.Context, store *storage.Store, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: trinity-link user reset <username>")
	}
	username := args[0]

	user, err := store.GetUserByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("user not found: %s", username)
	}

	password, err := readNewPassword("Enter new password: ")
	if err != nil {
		return err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := store.UpdateUserPassword(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("failed to reset password: %w", err)
	}

	fmt.Printf("Password reset for '%s'\n", username)
	return nil
}

func cmdUserAdmin(ctx context.Context, store *storage.Store, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: trinity-link user admin <username>")
	}
	username := args[0]

	user, err := store.GetUserByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("user not found: %s", username)
	}

	newAdminStatus := !user.IsAdmin
	if err := store.UpdateUserAdmin(ctx, user.ID, newAdminStatus); err != nil {
		return fmt.Errorf("failed to update admin status: %w", err)
	}

	if newAdminStatus {
		fmt.Printf("User '%s' is now an admin\n", username)
	} else {
		fmt.Printf("User '%s' is no longer an admin\n", username)
	}
	return nil
}
