package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/schollz/progressbar/v3"

	"github.com/debashishroy00/wpa-sub002/advisor"
	"github.com/debashishroy00/wpa-sub002/api"
	"github.com/debashishroy00/wpa-sub002/config"
	"github.com/debashishroy00/wpa-sub002/database"
	"github.com/debashishroy00/wpa-sub002/embeddings"
	"github.com/debashishroy00/wpa-sub002/facts"
	"github.com/debashishroy00/wpa-sub002/knowledge"
	"github.com/debashishroy00/wpa-sub002/llm"
	"github.com/debashishroy00/wpa-sub002/retrieval"
	"github.com/debashishroy00/wpa-sub002/trust"
)

const demoUserID = "123"

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	switch os.Args[1] {
	case "serve":
		serveCmd(cfg, logger, os.Args[2:])
	case "ingest":
		ingestCmd(cfg, logger, os.Args[2:])
	case "query":
		queryCmd(cfg, logger, os.Args[2:])
	case "clear":
		clearCmd(cfg, logger, os.Args[2:])
	default:
		logger.Printf("unknown command: %s", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func serveCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := flags.String("addr", cfg.ServerAddr, "listen address for the HTTP API")
	demo := flags.Bool("demo", false, "serve the built-in demo profile without Postgres or Neo4j")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse serve flags: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st, err := buildStack(ctx, cfg, logger, *demo)
	if err != nil {
		logger.Fatalf("%v", err)
	}
	defer st.Close(context.Background())

	if cfg.Knowledge.Watch {
		watcher := knowledge.NewWatcher(st.ingestor, cfg.Knowledge.Dir, logger)
		go func() {
			if err := watcher.Run(ctx); err != nil {
				logger.Printf("knowledge watcher stopped: %v", err)
			}
		}()
	}

	server := api.New(st.advisor, st.kb, st.ingestor, cfg.Knowledge.Dir, st.checks, logger)
	httpSrv := &http.Server{
		Addr:              *addr,
		Handler:           server,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Printf("server shutdown: %v", err)
		}
	}()

	logger.Printf("advisor listening on %s (%d knowledge documents)", *addr, st.docs)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("server: %v", err)
	}
}

func ingestCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("ingest", flag.ExitOnError)
	dir := flags.String("dir", cfg.Knowledge.Dir, "path to the knowledge directory")
	seedDemo := flags.Bool("seed-demo", false, "load the demo profile into Postgres alongside the knowledge sync")
	user := flags.String("user", demoUserID, "user id the demo profile is stored under")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse ingest flags: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var graph *knowledge.Graph
	driver, err := database.NewNeo4jDriver(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPass)
	if err != nil {
		logger.Printf("neo4j unavailable, skipping advice graph sync: %v", err)
	} else {
		defer driver.Close(ctx)
		graph = knowledge.NewGraph(driver)
	}

	kb := knowledge.NewIndex(logger)
	ingestor := knowledge.NewIngestor(kb, graph, logger)
	count, err := ingestor.LoadDirectory(ctx, *dir)
	if err != nil {
		logger.Fatalf("knowledge ingest: %v", err)
	}
	color.Green("✓ %d knowledge documents parsed from %s", count, *dir)

	if !*seedDemo {
		return
	}

	pool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatalf("postgres connection: %v", err)
	}
	defer pool.Close()

	if err := database.EnsureAdvisorSchema(ctx, pool, cfg.Embeddings.Dimension); err != nil {
		logger.Fatalf("advisor schema: %v", err)
	}

	embedder, err := embeddings.NewEmbedder(cfg)
	if err != nil {
		logger.Fatalf("embedder setup: %v", err)
	}

	snap, err := facts.NewDemoSource().Profile(ctx, demoUserID)
	if err != nil {
		logger.Fatalf("demo profile: %v", err)
	}
	if err := facts.SeedProfile(ctx, pool, *user, snap); err != nil {
		logger.Fatalf("seed demo profile: %v", err)
	}

	index := retrieval.NewPostgresIndex(pool, embedder)
	docs := profileDocuments(*user, snap)
	bar := newProgressBar(len(docs), "seeding profile documents")
	for _, doc := range docs {
		if _, err := index.Add(ctx, doc); err != nil {
			logger.Fatalf("seed profile document %q: %v", doc.Metadata.Title, err)
		}
		bar.Add(1)
	}
	color.Green("\n✓ demo profile for user %s seeded (%d documents)", *user, len(docs))
}

func queryCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("query", flag.ExitOnError)
	user := flags.String("user", demoUserID, "user id to answer for")
	session := flags.String("session", "", "session id (defaults to a fresh id)")
	message := flags.String("message", "", "single question; omit for an interactive session")
	mode := flags.String("mode", advisor.ModeConcise, "answer mode: concise or detailed")
	demo := flags.Bool("demo", false, "use the built-in demo profile without Postgres or Neo4j")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse query flags: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st, err := buildStack(ctx, cfg, logger, *demo)
	if err != nil {
		logger.Fatalf("%v", err)
	}
	defer st.Close(context.Background())

	sessionID := *session
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	ask := func(text string) {
		ans, err := st.advisor.HandleQuery(ctx, advisor.Query{UserID: *user, SessionID: sessionID, Message: text, Mode: *mode})
		if err != nil {
			color.Red("turn failed: %v", err)
			return
		}
		printAnswer(ans)
	}

	if strings.TrimSpace(*message) != "" {
		ask(*message)
		return
	}

	color.Cyan("Advisor session %s for user %s. Type 'exit' to quit.", sessionID, *user)
	scanner := bufio.NewScanner(os.Stdin)
	prompt := color.New(color.FgGreen).PrintfFunc()
	for {
		prompt("\nYou: ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.EqualFold(line, "exit") {
			break
		}
		ask(line)
	}
	if err := scanner.Err(); err != nil {
		logger.Fatalf("read input: %v", err)
	}
}

func clearCmd(cfg config.Config, logger *log.Logger, args []string) {
	flags := flag.NewFlagSet("clear", flag.ExitOnError)
	confirmed := flags.Bool("confirm", false, "skip confirmation prompt")
	if err := flags.Parse(args); err != nil {
		logger.Fatalf("parse clear flags: %v", err)
	}

	if !*confirmed {
		fmt.Print("This will permanently delete stored profile data from Postgres and the advice graph from Neo4j. Continue? [y/N]: ")
		scanner := bufio.NewScanner(os.Stdin)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				logger.Fatalf("read confirmation: %v", err)
			}
			logger.Println("clear aborted")
			return
		}
		answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if answer != "y" && answer != "yes" {
			logger.Println("clear aborted")
			return
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatalf("postgres connection: %v", err)
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, "TRUNCATE profile_documents, profile_accounts, profile_debts, profile_cashflow"); err != nil {
		logger.Fatalf("truncate profile tables: %v", err)
	}
	logger.Println("cleared Postgres profile tables")

	driver, err := database.NewNeo4jDriver(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPass)
	if err != nil {
		logger.Printf("neo4j unavailable, advice graph left as is: %v", err)
		return
	}
	defer driver.Close(ctx)

	if err := knowledge.NewGraph(driver).Purge(ctx); err != nil {
		logger.Fatalf("purge advice graph: %v", err)
	}
	logger.Println("advice graph cleared")
}

// stack bundles the long-lived dependencies a command wires together.
type stack struct {
	pool     *pgxpool.Pool
	driver   neo4j.DriverWithContext
	kb       *knowledge.Index
	ingestor *knowledge.Ingestor
	graph    *knowledge.Graph
	advisor  *advisor.Service
	checks   []api.HealthCheck
	docs     int
}

func (s *stack) Close(ctx context.Context) {
	if s.driver != nil {
		s.driver.Close(ctx)
	}
	if s.pool != nil {
		s.pool.Close()
	}
}

// buildStack wires the advisor service for serve and query. In demo mode the
// profile comes from the built-in snapshot and nothing external is dialed
// except the configured model providers.
func buildStack(ctx context.Context, cfg config.Config, logger *log.Logger, demo bool) (*stack, error) {
	var llmClient llm.Client
	if cfg.LLM.Provider != "" && cfg.LLM.Provider != config.ProviderNone {
		client, err := llm.NewClient(cfg)
		if err != nil {
			return nil, fmt.Errorf("llm setup: %w", err)
		}
		llmClient = client
	} else {
		logger.Println("llm provider disabled; open questions fall back to verified claims")
	}

	embedder, err := embeddings.NewEmbedder(cfg)
	if err != nil {
		return nil, fmt.Errorf("embedder setup: %w", err)
	}

	st := &stack{}
	var (
		factSource facts.Source
		profile    retrieval.Index
	)
	if demo {
		factSource = facts.NewDemoSource()
		profile = retrieval.NewMemoryIndex(embedder, logger)
	} else {
		pool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("postgres connection: %w", err)
		}
		st.pool = pool
		if err := database.EnsureAdvisorSchema(ctx, pool, cfg.Embeddings.Dimension); err != nil {
			st.Close(ctx)
			return nil, fmt.Errorf("advisor schema: %w", err)
		}
		factSource = facts.NewPostgresSource(pool)
		profile = retrieval.NewPostgresIndex(pool, embedder)
		st.checks = append(st.checks, api.HealthCheck{Name: "postgres", Check: pool.Ping})

		driver, err := database.NewNeo4jDriver(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPass)
		if err != nil {
			logger.Printf("neo4j unavailable, related-advice insights disabled: %v", err)
		} else {
			st.driver = driver
			st.graph = knowledge.NewGraph(driver)
			st.checks = append(st.checks, api.HealthCheck{Name: "neo4j", Check: driver.VerifyConnectivity})
		}
	}

	st.kb = knowledge.NewIndex(logger)
	st.ingestor = knowledge.NewIngestor(st.kb, st.graph, logger)
	docs, err := st.ingestor.LoadDirectory(ctx, cfg.Knowledge.Dir)
	if err != nil {
		logger.Printf("knowledge load: %v (run ingest or POST /v1/ingest to retry)", err)
	}
	st.docs = docs

	st.advisor = advisor.NewService(llmClient, facts.NewService(factSource), profile, st.kb, st.graph, cfg.Advisor, logger)
	return st, nil
}

func printAnswer(ans *advisor.Answer) {
	fmt.Println()
	fmt.Println(strings.TrimRight(ans.Response, "\n"))
	if ans.Clarify != nil {
		return
	}
	if len(ans.Citations) > 0 {
		color.Cyan("sources: %s", strings.Join(ans.Citations, ", "))
	}
	status := color.Green
	switch ans.TrustTier {
	case trust.TierMedium:
		status = color.Yellow
	case trust.TierLow:
		status = color.Red
	}
	status("trust %s, confidence %.2f, %d iteration(s)", ans.TrustTier, ans.Confidence, ans.IterationsPerformed)
}

// profileDocuments renders a snapshot into the user-scoped snippets the
// retrieval index serves as loop context. Contents stay qualitative; numbers
// reach answers only through the verified claim set.
func profileDocuments(userID string, snap facts.Snapshot) []retrieval.Document {
	docs := make([]retrieval.Document, 0, len(snap.Accounts)+len(snap.Debts)+2)
	for _, a := range snap.Accounts {
		docs = append(docs, retrieval.Document{
			Content:  fmt.Sprintf("%s is a %s account. Balances sync nightly from the aggregation feed.", a.Name, a.Category),
			Metadata: retrieval.Metadata{UserID: userID, Category: a.Category, Title: a.Name},
		})
	}
	for _, d := range snap.Debts {
		docs = append(docs, retrieval.Document{
			Content:  fmt.Sprintf("%s is an open liability with a fixed minimum payment. Payoff ordering is rate-first.", d.Name),
			Metadata: retrieval.Metadata{UserID: userID, Category: "debt", Title: d.Name},
		})
	}
	docs = append(docs,
		retrieval.Document{
			Content:  "Income arrives semi-monthly and recurring expenses are tracked by category. The monthly surplus feeds the brokerage account.",
			Metadata: retrieval.Metadata{UserID: userID, Category: "cashflow", Title: "Savings cadence"},
		},
		retrieval.Document{
			Content:  "The retirement target was set during onboarding and can be adjusted per scenario. Progress is measured against projected net worth.",
			Metadata: retrieval.Metadata{UserID: userID, Category: "planning", Title: "Retirement goal"},
		})
	return docs
}

func newProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func printUsage() {
	fmt.Println("Usage: wpa <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  serve    Run the HTTP advisor API (use --demo for the built-in profile)")
	fmt.Println("  ingest   Parse the knowledge directory and sync the advice graph (--seed-demo loads the demo profile)")
	fmt.Println("  query    Ask the advisor from the terminal, one-shot or interactive")
	fmt.Println("  clear    Remove stored profile data and the advice graph")
}
