package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"

	"mailcal/internal/advisor"
	"mailcal/internal/config"
	"mailcal/internal/contacts"
	"mailcal/internal/dedup"
	"mailcal/internal/extract"
	"mailcal/internal/google"
	"mailcal/internal/icloud"
	"mailcal/internal/inbox"
	"mailcal/internal/llm"
	"mailcal/internal/models"
	"mailcal/internal/notify"
	"mailcal/internal/pipeline"
	"mailcal/internal/scheduling"
	"mailcal/internal/store"
)

func main() {
	// Load .env file first, but don't error if it doesn't exist.
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "mailcal",
		Usage: "Turn meeting request emails into calendar bookings or reschedule proposals.",
		Commands: []*cli.Command{
			authCommand(),
			runCommand(),
			processCommand(),
			slotsCommand(),
			contactCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authorize Google Calendar and Gmail access and save the token.",
		Action: func(c *cli.Context) error {
			logger := setupLogger("info")
			logger.Info("Starting Google authentication flow.")

			oauthConfig, err := google.OAuthConfig(os.Getenv("GOOGLE_CLIENT_ID"), os.Getenv("GOOGLE_CLIENT_SECRET"))
			if err != nil {
				return fmt.Errorf("failed to get google oauth config: %w", err)
			}

			authURL := oauthConfig.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
			fmt.Printf("Go to the following link in your browser then type the "+
				"authorization code: \n%v\n", authURL)

			fmt.Print("Enter Authorization Code: ")
			reader := bufio.NewReader(os.Stdin)
			authCode, _ := reader.ReadString('\n')
			authCode = strings.TrimSpace(authCode)

			token, err := google.TokenFromWeb(c.Context, oauthConfig, authCode)
			if err != nil {
				return fmt.Errorf("unable to retrieve token from web: %w", err)
			}

			tokenFile := os.Getenv("GOOGLE_TOKEN_FILE")
			if tokenFile == "" {
				tokenFile = "token.json"
			}
			if err := google.SaveToken(tokenFile, token); err != nil {
				return fmt.Errorf("failed to save token: %w", err)
			}

			logger.Info("Successfully authenticated and saved token.", "file", tokenFile)
			return nil
		},
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Fetch the next meeting email from Gmail and process it.",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "dry-run", Usage: "Log events and notifications instead of creating or sending them."},
			&cli.IntFlag{Name: "watch", Value: 300, Usage: "Poll the mailbox every N seconds."},
		},
		Action: func(c *cli.Context) error {
			var interval time.Duration
			if c.IsSet("watch") {
				var err error
				if interval, err = watchInterval(c.Int("watch")); err != nil {
					return err
				}
			}

			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			w, err := wire(c.Context, cfg, logger, c.Bool("dry-run"))
			if err != nil {
				return err
			}
			defer w.close()

			gmail, err := w.gmail(c.Context)
			if err != nil {
				return err
			}
			driver := inbox.NewDriver(gmail, w.seen, w.store, w.pipeline, logger)

			if c.IsSet("watch") {
				driver.Watch(c.Context, interval)
				return nil
			}

			run, err := driver.ProcessNext(c.Context)
			if err != nil {
				return err
			}
			if run == nil {
				logger.Info("No new meeting email found.")
				return nil
			}
			printRun(*run)
			return nil
		},
	}
}

func processCommand() *cli.Command {
	return &cli.Command{
		Name:  "process",
		Usage: "Process a local email without reading the mailbox.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "from", Required: true, Usage: "Sender email address."},
			&cli.StringFlag{Name: "name", Usage: "Sender display name."},
			&cli.StringFlag{Name: "subject", Value: "Meeting request", Usage: "Email subject."},
			&cli.StringFlag{Name: "body-file", Usage: "File holding the email body. Reads stdin when empty."},
			&cli.BoolFlag{Name: "dry-run", Usage: "Log events and notifications instead of creating or sending them."},
		},
		Action: func(c *cli.Context) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}

			body, err := readBody(c.String("body-file"))
			if err != nil {
				return err
			}

			w, err := wire(c.Context, cfg, logger, c.Bool("dry-run"))
			if err != nil {
				return err
			}
			defer w.close()

			email := models.InboundEmail{
				SenderEmail: c.String("from"),
				SenderName:  c.String("name"),
				Subject:     c.String("subject"),
				Body:        body,
				ReceivedAt:  time.Now(),
			}
			driver := inbox.NewDriver(nil, w.seen, w.store, w.pipeline, logger)
			run, err := driver.Process(c.Context, email)
			if err != nil {
				return err
			}
			printRun(*run)
			return nil
		},
	}
}

func slotsCommand() *cli.Command {
	return &cli.Command{
		Name:  "slots",
		Usage: "List free business-hour slots from a date.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "date", Usage: "First day to search (YYYY-MM-DD). Defaults to today."},
			&cli.Float64Flag{Name: "duration", Value: models.DefaultDurationHours, Usage: "Meeting length in hours."},
		},
		Action: func(c *cli.Context) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			loc := cfg.Location()

			start := time.Now().In(loc)
			if d := c.String("date"); d != "" {
				start, err = time.ParseInLocation(models.DateLayout, d, loc)
				if err != nil {
					return fmt.Errorf("invalid --date %q: %w", d, err)
				}
			}

			cal, err := newCalendar(c.Context, cfg, logger)
			if err != nil {
				return err
			}
			finder := scheduling.NewFinder(scheduling.NewChecker(cal, loc, logger), cfg.SearchWindowDays, logger)
			result, err := finder.FindAlternatives(c.Context, start, c.Float64("duration"))
			if err != nil {
				return err
			}

			if len(result.Slots) == 0 {
				fmt.Printf("No free slot in the %d days from %s.\n", cfg.SearchWindowDays, start.Format(models.DateLayout))
				return nil
			}
			for i, s := range result.Slots {
				fmt.Printf("%d. %s (%s)\n", i+1, s, loc)
			}
			return nil
		},
	}
}

func contactCommand() *cli.Command {
	return &cli.Command{
		Name:  "contact",
		Usage: "Manage the contact directory.",
		Subcommands: []*cli.Command{{
			Name:  "add",
			Usage: "Add or update a contact and the project they are attached to.",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "email", Required: true},
				&cli.StringFlag{Name: "name", Required: true},
				&cli.StringFlag{Name: "role"},
				&cli.StringFlag{Name: "service"},
				&cli.StringFlag{Name: "company"},
				&cli.StringFlag{Name: "relation"},
				&cli.StringFlag{Name: "project"},
				&cli.StringFlag{Name: "description"},
				&cli.StringFlag{Name: "decision", Usage: "Latest decision taken with this contact."},
			},
			Action: func(c *cli.Context) error {
				cfg, logger, err := loadConfig()
				if err != nil {
					return err
				}
				st, err := store.Open(c.Context, logger, cfg.Store)
				if err != nil {
					return err
				}
				defer st.Close()

				p := models.PersonContext{
					Name:               c.String("name"),
					Email:              strings.ToLower(c.String("email")),
					Role:               c.String("role"),
					Service:            c.String("service"),
					Company:            c.String("company"),
					RelationType:       c.String("relation"),
					ProjectTitle:       c.String("project"),
					ProjectDescription: c.String("description"),
					LatestDecision:     c.String("decision"),
				}
				if err := st.UpsertPerson(c.Context, p); err != nil {
					return err
				}
				logger.Info("Contact saved.", "email", p.Email)
				return nil
			},
		}},
	}
}

// calendar is what the pipeline needs from either backend.
type calendar interface {
	scheduling.FreeBusy
	pipeline.EventCreator
}

// wiring holds the components shared by the run and process commands.
type wiring struct {
	pipeline *pipeline.Pipeline
	store    store.Store
	seen     inbox.Seen
	gmail    func(ctx context.Context) (*google.GmailClient, error)
	closers  []func() error
}

func (w *wiring) close() {
	for i := len(w.closers) - 1; i >= 0; i-- {
		_ = w.closers[i]()
	}
}

func wire(ctx context.Context, cfg *config.Config, logger *slog.Logger, dryRun bool) (*wiring, error) {
	if dryRun {
		logger.Info("Performing a dry run. No events will be created and no email sent.")
	}
	loc := cfg.Location()
	w := &wiring{}

	st, err := store.Open(ctx, logger, cfg.Store)
	if err != nil {
		return nil, err
	}
	w.store = st
	w.closers = append(w.closers, st.Close)

	if cfg.RedisURL != "" {
		filter, closeRedis, err := dedup.Open(ctx, cfg.RedisURL, cfg.Mail.DedupTTL)
		if err != nil {
			w.close()
			return nil, err
		}
		w.seen = filter
		w.closers = append(w.closers, closeRedis)
	} else {
		logger.Info("REDIS_URL not set, deduplicating in memory.")
		w.seen = dedup.NewMemory(cfg.Mail.DedupTTL)
	}

	var googleClient *http.Client
	googleHTTP := func(ctx context.Context) (*http.Client, error) {
		if googleClient != nil {
			return googleClient, nil
		}
		client, err := google.HTTPClient(ctx, cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.Google.TokenFile)
		if err != nil {
			return nil, fmt.Errorf("google credentials unavailable, did you run the auth command? %w", err)
		}
		googleClient = client
		return client, nil
	}
	w.gmail = func(ctx context.Context) (*google.GmailClient, error) {
		client, err := googleHTTP(ctx)
		if err != nil {
			return nil, err
		}
		return google.NewGmailClient(ctx, logger, cfg.Mail, option.WithHTTPClient(client))
	}

	gen, err := llm.New(ctx, logger, cfg.LLM)
	if err != nil {
		w.close()
		return nil, err
	}

	cal, err := newCalendarWith(ctx, cfg, logger, googleHTTP)
	if err != nil {
		w.close()
		return nil, err
	}

	var events pipeline.EventCreator = cal
	var sink notify.Sink
	if dryRun {
		events = pipeline.LogEvents{Logger: logger}
		sink = notify.LogSink{Logger: logger}
	} else {
		gmail, err := w.gmail(ctx)
		if err != nil {
			w.close()
			return nil, err
		}
		sink = gmail
	}

	checker := scheduling.NewChecker(cal, loc, logger)
	w.pipeline = pipeline.New(pipeline.Deps{
		Extractor:    extract.New(gen, logger),
		Advisor:      advisor.New(gen, logger),
		Resolver:     contacts.NewResolver(st, logger),
		Availability: checker,
		Alternatives: scheduling.NewFinder(checker, cfg.SearchWindowDays, logger),
		Events:       events,
		Recorder:     st,
		Composer:     notify.NewComposer(cfg.Mail.SenderName, loc, cfg.SearchWindowDays),
		Sink:         sink,
	}, loc, logger)
	return w, nil
}

func newCalendar(ctx context.Context, cfg *config.Config, logger *slog.Logger) (calendar, error) {
	return newCalendarWith(ctx, cfg, logger, func(ctx context.Context) (*http.Client, error) {
		return google.HTTPClient(ctx, cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.Google.TokenFile)
	})
}

func newCalendarWith(ctx context.Context, cfg *config.Config, logger *slog.Logger, googleHTTP func(context.Context) (*http.Client, error)) (calendar, error) {
	switch cfg.CalendarBackend {
	case "caldav":
		client, err := icloud.NewClient(ctx, logger, cfg.CalDAV)
		if err != nil {
			return nil, fmt.Errorf("failed to create caldav client: %w", err)
		}
		return client, nil
	default:
		httpClient, err := googleHTTP(ctx)
		if err != nil {
			return nil, err
		}
		client, err := google.NewCalendarClient(ctx, logger, cfg.Google.CalendarID, option.WithHTTPClient(httpClient))
		if err != nil {
			return nil, fmt.Errorf("failed to create google calendar client: %w", err)
		}
		return client, nil
	}
}

// watchInterval converts the --watch value to a poll interval.
func watchInterval(seconds int) (time.Duration, error) {
	if seconds <= 0 {
		return 0, fmt.Errorf("--watch must be a positive number of seconds, got %d", seconds)
	}
	return time.Duration(seconds) * time.Second, nil
}

func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	return cfg, setupLogger(cfg.LogLevel), nil
}

func readBody(path string) (string, error) {
	var r io.Reader = os.Stdin
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return "", fmt.Errorf("open body file: %w", err)
		}
		defer f.Close()
		r = f
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return string(b), nil
}

func printRun(run pipeline.Run) {
	switch o := run.Outcome.(type) {
	case models.Booked:
		fmt.Printf("Booked %q on %s\n", o.Event.Title, models.TimeSlot{Start: o.Event.StartTime, End: o.Event.EndTime})
	case models.AlternativesProposed:
		fmt.Printf("Requested slot unavailable, %d alternatives proposed\n", len(o.Slots.Slots))
	}
	if run.Notification != nil {
		fmt.Printf("Notified %s: %s\n", run.Notification.Recipient, run.Notification.Subject)
	}
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}
