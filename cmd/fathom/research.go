package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fathomresearch/fathom/pkg/agent"
	"github.com/fathomresearch/fathom/pkg/config"
	"github.com/fathomresearch/fathom/pkg/llms"
	"github.com/fathomresearch/fathom/pkg/research/orchestrator"
	"github.com/fathomresearch/fathom/pkg/research/planner"
	"github.com/fathomresearch/fathom/pkg/research/searcher"
	"github.com/fathomresearch/fathom/pkg/research/writer"
	"github.com/fathomresearch/fathom/pkg/services"
	"github.com/fathomresearch/fathom/pkg/utils"
	"github.com/fathomresearch/fathom/pkg/workflow"
)

// ResearchCmd runs a full deep-research session: interactive planning first,
// then the orchestrated research run. The final report is printed and written
// to the report artifact path.
type ResearchCmd struct {
	Query []string `arg:"" optional:"" help:"Research query. Read from stdin when omitted."`

	SessionsDB string `help:"SQLite file for planning session records." default:".fathom/sessions.db"`
	Output     string `help:"Where to write the final report." default:"artifacts/report.md"`
}

func (c *ResearchCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadOrDefault(cli.Config, "research")
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	query := strings.TrimSpace(strings.Join(c.Query, " "))
	stdin := bufio.NewReader(os.Stdin)
	if query == "" {
		fmt.Print("Research query: ")
		line, err := stdin.ReadString('\n')
		if err != nil {
			return fmt.Errorf("reading query: %w", err)
		}
		query = strings.TrimSpace(line)
	}
	if query == "" {
		return fmt.Errorf("empty research query")
	}

	if err := os.MkdirAll(filepath.Dir(c.SessionsDB), 0o755); err != nil {
		return err
	}
	sessions, err := services.NewSQLiteSessionStore(c.SessionsDB)
	if err != nil {
		return err
	}
	defer sessions.Close()

	plan, err := c.runPlanner(ctx, cfg, sessions, query, stdin)
	if err != nil {
		return err
	}
	fmt.Printf("\nPlan finalized (research id %s).\n\n", plan.ResearchID)

	report, err := c.runResearch(ctx, cfg, plan)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(c.Output), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(c.Output, []byte(report), 0o644); err != nil {
		return err
	}

	fmt.Println("\n===== FINAL REPORT =====")
	fmt.Println(report)
	fmt.Printf("\nReport written to %s\n", c.Output)
	return nil
}

// runPlanner drives the HITL planning loop over stdin/stdout until the plan
// is accepted or the run is interrupted.
func (c *ResearchCmd) runPlanner(ctx context.Context, cfg *config.ResearchConfig, sessions services.SessionStore, query string, stdin *bufio.Reader) (planner.PlanResult, error) {
	plannerLLM, err := buildLLM(cfg.Planner.MainLLM)
	if err != nil {
		return planner.PlanResult{}, err
	}

	run := planner.NewWorkflow(plannerLLM, cfg, sessions).
		Start(ctx, planner.StartPlanEvent{InitialQuery: query})

	for ev := range run.Stream() {
		input, ok := ev.(workflow.InputRequiredEvent)
		if !ok {
			printEvent(ev)
			continue
		}
		fmt.Printf("\n%s\n> ", input.Prefix)
		line, err := stdin.ReadString('\n')
		if err != nil {
			run.Cancel()
			break
		}
		run.SendEvent(workflow.HumanResponseEvent{
			Response: strings.TrimSpace(line),
			WaiterID: input.WaiterID,
		})
	}

	result, err := run.Wait()
	if err != nil {
		return planner.PlanResult{}, fmt.Errorf("planning: %w", err)
	}
	plan, ok := result.(planner.PlanResult)
	if !ok {
		return planner.PlanResult{}, fmt.Errorf("planning ended without a plan")
	}
	return plan, nil
}

// runResearch wires the evidence pipeline and sub-agents, then executes the
// orchestrator workflow against the finalized plan.
func (c *ResearchCmd) runResearch(ctx context.Context, cfg *config.ResearchConfig, plan planner.PlanResult) (string, error) {
	orchLLM, err := buildLLM(cfg.Orchestrator.MainLLM)
	if err != nil {
		return "", err
	}
	searcherLLM, err := buildLLM(cfg.Searcher.MainLLM)
	if err != nil {
		return "", err
	}
	writerLLM, err := buildLLM(cfg.Writer.MainLLM)
	if err != nil {
		return "", err
	}

	weakCfg := cfg.Searcher.MainLLM
	if cfg.Searcher.WeakLLM != nil {
		weakCfg = *cfg.Searcher.WeakLLM
	}
	if model := os.Getenv("JUDGE_MODEL"); model != "" {
		weakCfg.Model = model
	}
	weakLLM, err := buildLLM(weakCfg)
	if err != nil {
		return "", err
	}

	svcs, err := buildSearcherServices(weakLLM)
	if err != nil {
		return "", err
	}

	researchAgent := func(rc *workflow.Context) *agent.Agent {
		return searcher.New(searcherLLM, rc, cfg, svcs)
	}
	writeAgent := func(rc *workflow.Context) *agent.Agent {
		return writer.New(writerLLM, rc)
	}

	timeout := time.Duration(cfg.Settings.TimeoutSeconds) * time.Second
	run := orchestrator.NewWorkflow(orchLLM, researchAgent, writeAgent, timeout).
		Start(ctx, orchestrator.StartResearchEvent{
			ResearchID: plan.ResearchID,
			Plan:       plan.RenderedPlan(),
		})

	for ev := range run.Stream() {
		printEvent(ev)
	}

	result, err := run.Wait()
	if err != nil {
		return "", fmt.Errorf("research: %w", err)
	}
	research, ok := result.(orchestrator.ResearchResult)
	if !ok {
		return "", fmt.Errorf("research ended without a report")
	}
	return research.Report, nil
}

// buildSearcherServices assembles the evidence pipeline from the available
// adapters, falling back to in-process stand-ins when credentials are absent.
func buildSearcherServices(analysisLLM llms.LLM) (searcher.Services, error) {
	counter, err := utils.NewTokenCounter("gpt-4o")
	if err != nil {
		return searcher.Services{}, err
	}
	analyzer, err := services.NewContentAnalyzer(analysisLLM)
	if err != nil {
		return searcher.Services{}, err
	}

	var search services.WebSearch
	if oxylabs, err := services.NewOxylabsClient(); err == nil {
		search = oxylabs
	} else {
		slog.Warn("web search unavailable, queries will return no results", "error", err)
		search = noSearch{}
	}

	var store services.FileStore
	if llama, err := services.NewLlamaCloudStore(); err == nil {
		// The cloud store is upload-only; the mirror keeps bytes around
		// for the local parser.
		store = services.NewMirrorStore(llama)
	} else {
		slog.Warn("file store unavailable, using in-memory store", "error", err)
		store = services.NewMemoryFileStore()
	}

	return searcher.Services{
		Queries:  services.NewQueryService(analysisLLM),
		Search:   search,
		Evidence: services.NewEvidenceService(search, store, services.NewLocalParser(store), analyzer, counter),
		Counter:  counter,
	}, nil
}

// noSearch stands in for the search provider when no credentials are set.
type noSearch struct{}

func (noSearch) Search(ctx context.Context, query string, maxResults int) ([]services.SearchResult, int, error) {
	return nil, 0, nil
}

func (noSearch) FetchBytes(ctx context.Context, url string) ([]byte, error) {
	return nil, fmt.Errorf("%w: no search provider configured", services.ErrDownloadFailed)
}

// buildLLM constructs the provider for one model slot. Real providers are
// opt-in via USE_REAL_LLM so dry runs never hit the network.
func buildLLM(mc config.LLMModelConfig) (llms.LLM, error) {
	if !envBool("USE_REAL_LLM") {
		mc.Provider = "mock"
	}
	return llms.NewFromConfig(mc)
}

func envBool(name string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// printEvent renders one stream event as a single progress line.
func printEvent(ev workflow.Event) {
	switch e := ev.(type) {
	case agent.ToolCallEvent:
		fmt.Printf("Event: ToolCallEvent agent=%s tool=%s\n", e.Agent, e.Tool)
	case agent.ToolResultEvent:
		fmt.Printf("Event: ToolResultEvent agent=%s tool=%s success=%t\n", e.Agent, e.Tool, e.Success)
	case planner.PlannerStatusEvent:
		fmt.Printf("Event: PlannerStatusEvent level=%s message=%q\n", e.Level, e.Message)
	case workflow.StepFailedEvent:
		fmt.Printf("Event: StepFailedEvent step=%s error=%v\n", e.Step, e.Err)
	default:
		fmt.Printf("Event: %s\n", ev.EventName())
	}
}
