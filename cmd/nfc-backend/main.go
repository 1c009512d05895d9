package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/attendancekit/nfc-backend/internal/api"
	"github.com/attendancekit/nfc-backend/internal/config"
	"github.com/attendancekit/nfc-backend/internal/logging"
	"github.com/attendancekit/nfc-backend/internal/reader"
	"github.com/attendancekit/nfc-backend/internal/service"
	"github.com/attendancekit/nfc-backend/internal/tray"
	"github.com/attendancekit/nfc-backend/internal/users"
	"gopkg.in/alecthomas/kingpin.v2"
)

var (
	app = kingpin.New("nfc-backend", "Backend service for contactless card readers (Sony RC-S300 and other PC/SC devices): one-shot reads, continuous scanning and a CSV user directory, exposed over a local HTTP/websocket API.")

	serve         = app.Command("serve", "Start the API server.").Default()
	serveHeadless = serve.Flag("headless", "Run without the system tray.").Bool()

	readCmd     = app.Command("read", "Read a single card and print its UID.")
	readTimeout = readCmd.Flag("timeout", "How long to wait for a card.").Default("5s").Duration()

	usersCmd  = app.Command("users", "Manage the user directory.")
	usersList = usersCmd.Command("list", "List all registered users.")

	usersAdd = usersCmd.Command("add", "Register a user for a card UID (overwrites an existing record).")
	addUID   = usersAdd.Arg("uid", "Card UID in hex.").Required().String()
	addID    = usersAdd.Flag("id", "User ID.").Required().String()
	addName  = usersAdd.Flag("name", "Display name.").Required().String()
	addEmail = usersAdd.Flag("email", "Email address.").String()
	addRole  = usersAdd.Flag("role", "Role.").String()
	addDesc  = usersAdd.Flag("description", "Free-form description.").String()

	usersDel = usersCmd.Command("delete", "Delete a user by card UID.")
	delUID   = usersDel.Arg("uid", "Card UID in hex.").Required().String()

	svcCmd       = app.Command("service", "Manage autostart registration.")
	svcInstall   = svcCmd.Command("install", "Register the agent to start on login.")
	svcUninstall = svcCmd.Command("uninstall", "Remove the autostart registration.")
	svcStatus    = svcCmd.Command("status", "Show the autostart status.")
)

func main() {
	cfg := config.Load()
	logging.Init(logging.DefaultMaxEntries, logging.ParseLevel(cfg.LogLevel))

	switch kingpin.MustParse(app.Parse(os.Args[1:])) {
	case serve.FullCommand():
		runServe(cfg, *serveHeadless)
	case readCmd.FullCommand():
		runRead(cfg, *readTimeout)
	case usersList.FullCommand():
		runUsersList(cfg)
	case usersAdd.FullCommand():
		runUsersAdd(cfg)
	case usersDel.FullCommand():
		runUsersDelete(cfg)
	case svcInstall.FullCommand():
		runService("install")
	case svcUninstall.FullCommand():
		runService("uninstall")
	case svcStatus.FullCommand():
		runService("status")
	default:
		kingpin.FatalUsage("Unrecognized command")
	}
}

func newTransport(cfg *config.Config) reader.Transport {
	if cfg.DebugMode {
		logging.Info(logging.CatSystem, "Debug mode: using synthetic reader", nil)
		return reader.NewDebug()
	}
	return reader.NewPCSC(cfg.Device)
}

func runServe(cfg *config.Config, headless bool) {
	if err := logging.InitFileSink(cfg.LogDir, logging.ParseLevel(cfg.LogLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}
	logging.Info(logging.CatSystem, "NFC backend starting", map[string]any{
		"version": api.Version,
		"addr":    cfg.Address(),
		"debug":   cfg.DebugMode,
	})

	store := users.NewStore(cfg.UserCSVPath)
	if err := store.Ensure(); err != nil {
		fmt.Fprintf(os.Stderr, "users: %v\n", err)
		os.Exit(1)
	}

	buf := reader.NewScanBuffer(cfg.MaxBufferSize)
	ctrl := reader.NewController(newTransport(cfg), buf, time.Duration(cfg.PollTimeout))
	srv := api.New(cfg, ctrl, store)

	shutdown := func() {
		logging.Info(logging.CatSystem, "Shutting down", nil)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
		ctrl.Shutdown()
	}

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signalChan
		shutdown()
		os.Exit(0)
	}()

	serveBlocking := func() {
		if err := srv.ListenAndServe(); err != nil {
			logging.Error(logging.CatSystem, "Server failed", map[string]any{
				"error": err.Error(),
			})
			os.Exit(1)
		}
	}

	if headless || !tray.IsSupported() {
		serveBlocking()
		return
	}

	t := tray.New(cfg.Address(), ctrl, shutdown)
	t.RunWithServer(serveBlocking)
}

func runRead(cfg *config.Config, timeout time.Duration) {
	ctrl := reader.NewController(newTransport(cfg), reader.NewScanBuffer(0), 0)
	defer ctrl.Shutdown()

	res := ctrl.ReadOnce(timeout)
	if res.Err != nil {
		fmt.Fprintf(os.Stderr, "read failed: %v\n", res.Err)
		os.Exit(1)
	}
	if !res.Present() {
		fmt.Println("No card detected")
		os.Exit(1)
	}
	fmt.Println(res.UID.Hex())
}

func runUsersList(cfg *config.Config) {
	store := users.NewStore(cfg.UserCSVPath)
	all, err := store.All()
	if err != nil {
		fmt.Fprintf(os.Stderr, "users: %v\n", err)
		os.Exit(1)
	}

	if len(all) == 0 {
		fmt.Println("No users registered")
		return
	}
	for _, u := range all {
		fmt.Printf("%-20s %-12s %-20s %s\n", u.UIDHex, u.ID, u.Name, u.Role)
	}
}

func runUsersAdd(cfg *config.Config) {
	store := users.NewStore(cfg.UserCSVPath)
	updated, err := store.Register(users.User{
		UIDHex:      *addUID,
		ID:          *addID,
		Name:        *addName,
		Email:       *addEmail,
		Role:        *addRole,
		Description: *addDesc,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "users: %v\n", err)
		os.Exit(1)
	}
	if updated {
		fmt.Printf("Updated user for %s\n", *addUID)
	} else {
		fmt.Printf("Registered user for %s\n", *addUID)
	}
}

func runUsersDelete(cfg *config.Config) {
	store := users.NewStore(cfg.UserCSVPath)
	deleted, err := store.Delete(*delUID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "users: %v\n", err)
		os.Exit(1)
	}
	if !deleted {
		fmt.Printf("No user registered for %s\n", *delUID)
		os.Exit(1)
	}
	fmt.Printf("Deleted user for %s\n", *delUID)
}

func runService(op string) {
	svc := service.New()

	var err error
	switch op {
	case "install":
		err = svc.Install()
		if err == nil {
			fmt.Println("Autostart enabled")
		}
	case "uninstall":
		err = svc.Uninstall()
		if err == nil {
			fmt.Println("Autostart disabled")
		}
	case "status":
		var status string
		status, err = svc.Status()
		if err == nil {
			fmt.Println(status)
		}
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "service: %v\n", err)
		os.Exit(1)
	}
}
