package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/trial-diversity-twin/internal/artifacts"
	apperrors "github.com/ZanzyTHEbar/trial-diversity-twin/internal/errors"
	"github.com/ZanzyTHEbar/trial-diversity-twin/internal/monitoring"
	"github.com/ZanzyTHEbar/trial-diversity-twin/internal/pipeline"
	"github.com/ZanzyTHEbar/trial-diversity-twin/internal/predictor"
	"github.com/ZanzyTHEbar/trial-diversity-twin/internal/schema"
	"github.com/ZanzyTHEbar/trial-diversity-twin/internal/types"
)

type globalOptions struct {
	artifactsPath string
	workbook      string
	profile       string
	predictorURL  string
	predictions   string
	timeout       time.Duration
	logLevel      string
	pretty        bool
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:           "cdrctl",
		Short:         "Score clinical trial designs for demographic representation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	f := root.PersistentFlags()
	f.StringVar(&opts.artifactsPath, "artifacts", "", "artifact bundle YAML (default: embedded bundle)")
	f.StringVar(&opts.workbook, "workbook", "", "xlsx workbook overriding the reference and OOD tables")
	f.StringVar(&opts.profile, "profile", "", "reference profile name")
	f.StringVar(&opts.predictorURL, "predictor-url", "", "base URL of a remote predictor")
	f.StringVar(&opts.predictions, "predictions", "", "JSON file of fixed predictions keyed by target")
	f.DurationVar(&opts.timeout, "timeout", 30*time.Second, "timeout for each scoring run")
	f.StringVar(&opts.logLevel, "log-level", "warn", "log level written to stderr")
	f.BoolVar(&opts.pretty, "pretty", false, "indent JSON output")

	root.AddCommand(
		newValidateCmd(opts),
		newAssembleCmd(opts),
		newScoreCmd(opts),
		newBatchCmd(opts),
		newRulesCmd(opts),
		newReferenceCmd(opts),
	)
	return root
}

func newValidateCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [trial.json]",
		Short: "Validate a trial and print its canonical form",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := opts.pipeline(cmd, false)
			if err != nil {
				return err
			}
			raw, err := readTrial(cmd, args)
			if err != nil {
				return err
			}
			spec, notices, err := p.Validate(raw)
			if err != nil {
				return opts.fail(cmd, err)
			}
			return opts.write(cmd.OutOrStdout(), types.ValidateResponse{Spec: spec, Notices: notices})
		},
	}
}

func newAssembleCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "assemble [trial.json]",
		Short: "Print the feature vector and OOD flag for a trial",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := opts.pipeline(cmd, false)
			if err != nil {
				return err
			}
			raw, err := readTrial(cmd, args)
			if err != nil {
				return err
			}
			asm, err := p.Assemble(raw)
			if err != nil {
				return opts.fail(cmd, err)
			}
			return opts.write(cmd.OutOrStdout(), asm)
		},
	}
}

func newScoreCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "score [trial.json]",
		Short: "Run the full pipeline for one trial",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := opts.pipeline(cmd, true)
			if err != nil {
				return err
			}
			raw, err := readTrial(cmd, args)
			if err != nil {
				return err
			}
			ctx, cancel := opts.runContext(cmd)
			defer cancel()

			res, err := p.Run(ctx, raw)
			if err != nil {
				return opts.fail(cmd, err)
			}
			return opts.write(cmd.OutOrStdout(), res)
		},
	}
}

func newRulesCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "Print the policy rule base",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := opts.pipeline(cmd, false)
			if err != nil {
				return err
			}
			e := p.Engine()
			return opts.write(cmd.OutOrStdout(), types.RulesResponse{Levels: e.Levels(), Rules: e.Spec()})
		},
	}
}

func newReferenceCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reference",
		Short: "Print the active reference proportions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := opts.pipeline(cmd, false)
			if err != nil {
				return err
			}
			return opts.write(cmd.OutOrStdout(), types.NewReferenceResponse(p.Bundle()))
		},
	}
}

// pipeline loads the bundle and, when needed, the model named by the flags.
func (o *globalOptions) pipeline(cmd *cobra.Command, needPredictor bool) (*pipeline.Pipeline, error) {
	b, err := artifacts.Load(artifacts.Options{Path: o.artifactsPath, Workbook: o.workbook, Profile: o.profile})
	if err != nil {
		return nil, err
	}

	logger := monitoring.NewLoggerWithWriter(cmd.ErrOrStderr(), monitoring.ParseLevel(o.logLevel))
	popts := pipeline.Options{Logger: logger, Metrics: monitoring.NewMetrics()}

	if needPredictor {
		switch {
		case o.predictorURL != "" && o.predictions != "":
			return nil, fmt.Errorf("--predictor-url and --predictions are mutually exclusive")
		case o.predictorURL != "":
			popts.Predictor = predictor.NewHTTPPredictor(predictor.HTTPConfig{
				BaseURL: o.predictorURL,
				Timeout: o.timeout,
				Logger:  logger,
			})
		case o.predictions != "":
			if popts.Predictor, err = loadPredictions(o.predictions, b); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("scoring needs --predictor-url or --predictions")
		}
	}

	p, err := pipeline.New(b, popts)
	if err != nil {
		return nil, err
	}
	if needPredictor {
		ctx, cancel := o.runContext(cmd)
		defer cancel()
		if err := p.CheckPredictor(ctx); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (o *globalOptions) runContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return o.runContextFrom(cmd.Context())
}

func (o *globalOptions) runContextFrom(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.timeout)
}

// loadPredictions reads {"target": value, ...} into a fixed predictor ordered
// by the bundle's targets.
func loadPredictions(path string, b *artifacts.Bundle) (*predictor.Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewConfigurationError("cannot read predictions file "+path, err)
	}
	var req types.ScorePredictionsRequest
	if err := json.Unmarshal(data, &req.Predictions); err != nil {
		return nil, apperrors.NewConfigurationError("predictions file must be a JSON object of numbers", err)
	}
	if nulls := req.NullTargets(); len(nulls) > 0 {
		return nil, apperrors.NewConfigurationError(
			"predictions file has null values for "+strings.Join(nulls, ", "), nil)
	}
	pv := req.Vector(b.Targets())
	return predictor.NewStatic(pv.Targets, pv.Values), nil
}

func readTrial(cmd *cobra.Command, args []string) (schema.RawInput, error) {
	var r io.Reader = cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return nil, err
		}
		r = bytes.NewReader(data)
	}
	return decodeTrial(r)
}

func decodeTrial(r io.Reader) (schema.RawInput, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var raw schema.RawInput
	if err := dec.Decode(&raw); err != nil {
		return nil, apperrors.NewBadRequestError("trial must be a JSON object", err)
	}
	if raw == nil {
		raw = schema.RawInput{}
	}
	return raw, nil
}

// fail prints the structured error on stdout so violations stay machine
// readable, then returns it for the exit status.
func (o *globalOptions) fail(cmd *cobra.Command, err error) error {
	if werr := o.write(cmd.OutOrStdout(), apperrors.ToAppError(err)); werr != nil {
		return werr
	}
	return err
}

func (o *globalOptions) write(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	if o.pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
