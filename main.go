package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/fatih/color"
	"go.uber.org/zap"

	"github.com/ekaya-inc/schema-mapper/pkg/config"
	"github.com/ekaya-inc/schema-mapper/pkg/dataset"
	"github.com/ekaya-inc/schema-mapper/pkg/eval"
	"github.com/ekaya-inc/schema-mapper/pkg/llm"
	"github.com/ekaya-inc/schema-mapper/pkg/logging"
	"github.com/ekaya-inc/schema-mapper/pkg/mapping"
)

var (
	okFmt   = color.New(color.FgGreen).SprintFunc()
	warnFmt = color.New(color.FgYellow).SprintFunc()
	failFmt = color.New(color.FgRed).SprintFunc()
)

// AppContext carries the loaded configuration and logger into commands.
type AppContext struct {
	Config     *config.Config
	ConfigPath string
	Logger     *zap.Logger
	Ctx        context.Context
}

// GenerateCmd runs the mapping generation stage.
type GenerateCmd struct {
	DataDir string `help:"Root directory holding the datasets" default:"data" type:"path"`
}

func (cmd *GenerateCmd) Run(app *AppContext) error {
	client, err := llm.NewClient(app.Config.Model, app.Logger)
	if err != nil {
		return fmt.Errorf("generation client: %w", err)
	}
	prompts, err := mapping.LoadPrompts(app.Config.Generation)
	if err != nil {
		return err
	}
	writer, err := mapping.NewWriter(app.Config, app.ConfigPath)
	if err != nil {
		return err
	}
	fmt.Printf("run directory: %s\n", writer.RunDir())

	store := dataset.NewFSStore(cmd.DataDir)
	orchestrator := mapping.NewOrchestrator(app.Config, client, store, writer, prompts, app.Logger)

	stats, runErr := orchestrator.Run(app.Ctx)
	if err := writer.WriteRunArtifacts(orchestrator.Tracker()); err != nil {
		app.Logger.Error("writing run artifacts failed", zap.Error(err))
	}
	if runErr != nil {
		return runErr
	}

	fmt.Printf("%s %d records from %d requests (%d retried, %d exhausted)\n",
		okFmt("generated"), stats.RecordsEmitted, stats.Requests, stats.Retried, stats.Exhausted)
	if stats.Incomplete {
		fmt.Printf("%s run stopped early: %s\n", failFmt("incomplete"), stats.StopReason)
		os.Exit(1)
	}
	return nil
}

// EvalTemplateCmd runs the structural evaluator.
type EvalTemplateCmd struct{}

func (cmd *EvalTemplateCmd) Run(app *AppContext) error {
	if err := eval.NewRunner(app.Config, app.Logger).RunStructural(app.Ctx); err != nil {
		return err
	}
	fmt.Println(okFmt("structural evaluation complete"))
	return nil
}

// EvalExecutionCmd runs generated queries against the target database.
type EvalExecutionCmd struct{}

func (cmd *EvalExecutionCmd) Run(app *AppContext) error {
	if err := eval.NewRunner(app.Config, app.Logger).RunExecution(app.Ctx); err != nil {
		return err
	}
	fmt.Println(okFmt("execution evaluation complete"))
	return nil
}

// EvalSemanticCmd runs the LLM judge over mapped pairs.
type EvalSemanticCmd struct {
	DataDir string `help:"Root directory holding the datasets" default:"data" type:"path"`
}

func (cmd *EvalSemanticCmd) Run(app *AppContext) error {
	store := dataset.NewFSStore(cmd.DataDir)
	if err := eval.NewRunner(app.Config, app.Logger).RunSemantic(app.Ctx, store); err != nil {
		return err
	}
	fmt.Println(okFmt("semantic evaluation complete"))
	return nil
}

// SummarizeCmd recomputes evaluation summaries from labeled records.
type SummarizeCmd struct{}

func (cmd *SummarizeCmd) Run(app *AppContext) error {
	if err := eval.NewRunner(app.Config, app.Logger).RunSummary(app.Ctx); err != nil {
		return err
	}
	fmt.Println(okFmt("summaries written"))
	return nil
}

var cli struct {
	Config string `help:"Configuration file path" default:"mapping.yaml" type:"path"`

	Generate      GenerateCmd      `cmd:"" help:"Generate target-schema mappings for source questions"`
	EvalTemplate  EvalTemplateCmd  `cmd:"" help:"Compare source/target SQL templates"`
	EvalExecution EvalExecutionCmd `cmd:"" help:"Execute generated queries against the target database"`
	EvalSemantic  EvalSemanticCmd  `cmd:"" help:"Judge mapped pairs with an LLM"`
	Summarize     SummarizeCmd     `cmd:"" help:"Recompute evaluation summaries"`
}

func main() {
	kctx := kong.Parse(&cli,
		kong.Name("schema-mapper"),
		kong.Description("LLM-driven SQL query mapping and evaluation pipeline"))

	cfg, err := config.Load(cli.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", failFmt("error:"), err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", failFmt("error:"), err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &AppContext{Config: cfg, ConfigPath: cli.Config, Logger: logger, Ctx: ctx}
	if err := kctx.Run(app); err != nil {
		if ctx.Err() != nil {
			fmt.Fprintln(os.Stderr, warnFmt("interrupted; partial results were kept"))
		}
		fmt.Fprintf(os.Stderr, "%s %v\n", failFmt("error:"), err)
		os.Exit(1)
	}
}
