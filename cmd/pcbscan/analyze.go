package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pcbrecon/internal/ai"
	"pcbrecon/internal/config"
	"pcbrecon/internal/scan"
	"pcbrecon/internal/vision"
)

type analyzeOptions struct {
	outDir      string
	format      string
	maxClusters int
	sampleSize  int
	logFile     string
	noClassify  bool
}

func newAnalyzeCmd(root *rootOptions) *cobra.Command {
	opts := &analyzeOptions{}
	cmd := &cobra.Command{
		Use:   "analyze <image>",
		Short: "Analyse a board photo and write the report plus PNG artefacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFile(root.configPath)
			if err != nil {
				return err
			}
			applyAnalyzeFlags(cmd, opts, cfg)
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runAnalyze(ctx, cfg, opts, args[0], cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.outDir, "out", "o", "", "directory for the report and images (default from config)")
	flags.StringVarP(&opts.format, "format", "f", "text", "report format: text, yaml or json")
	flags.IntVar(&opts.maxClusters, "max-clusters", 0, "largest k tried by the cluster search (default from config)")
	flags.IntVar(&opts.sampleSize, "sample-size", 0, "pixels sampled for clustering (default from config)")
	flags.StringVar(&opts.logFile, "log-file", "", "append the run log to this file (default from config)")
	flags.BoolVar(&opts.noClassify, "no-classify", false, "skip the local ONNX board classifier")
	return cmd
}

// applyAnalyzeFlags lets explicitly set flags override the config file.
func applyAnalyzeFlags(cmd *cobra.Command, opts *analyzeOptions, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("out") {
		cfg.Scan.OutputDir = opts.outDir
	}
	if flags.Changed("max-clusters") {
		cfg.Scan.MaxClusters = opts.maxClusters
	}
	if flags.Changed("sample-size") {
		cfg.Scan.SampleSize = opts.sampleSize
	}
	if flags.Changed("log-file") {
		cfg.Scan.LogFile = opts.logFile
	}
	if opts.noClassify {
		cfg.Scan.ONNXModelPath = ""
	}
}

func runAnalyze(ctx context.Context, cfg *config.Config, opts *analyzeOptions, imagePath string, stdout, stderr io.Writer) error {
	format, err := scan.ParseFormat(opts.format)
	if err != nil {
		return err
	}

	logOut := stderr
	if cfg.Scan.LogFile != "" {
		f, err := os.OpenFile(cfg.Scan.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open log file failed: %w", err)
		}
		defer f.Close()
		logOut = io.MultiWriter(stderr, f)
	}
	logger := log.New(logOut, "", log.LstdFlags)

	llm, err := ai.New(ai.Config{
		Provider: cfg.LLM.Provider,
		BaseURL:  cfg.LLM.BaseURL,
		APIKey:   cfg.LLM.APIKey,
		Timeout:  time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return err
	}

	var classifier scan.Classifier
	if cfg.Scan.ONNXModelPath != "" {
		c := vision.NewClassifier(vision.Config{
			ModelPath:     cfg.Scan.ONNXModelPath,
			LabelsPath:    cfg.Scan.ONNXLabelsPath,
			SharedLibPath: cfg.Scan.ONNXSharedLibPath,
			TopK:          cfg.Scan.ONNXTopK,
		})
		defer c.Close()
		classifier = c
	}

	scanner := scan.NewScanner(llm, classifier, scan.Options{
		Models: scan.Models{
			Vision: cfg.LLM.AnalysisModel,
			Text:   cfg.LLM.TextModel,
		},
		MaxClusters: cfg.Scan.MaxClusters,
		SampleSize:  cfg.Scan.SampleSize,
		Logger:      logger,
	})

	res, err := scanner.Run(ctx, imagePath)
	if err != nil {
		logger.Printf("analysis failed: %v", err)
		return err
	}

	if _, err := scan.WriteArtefacts(cfg.Scan.OutputDir, res); err != nil {
		return err
	}
	reportPath, err := scan.WriteReport(cfg.Scan.OutputDir, res.Report, format)
	if err != nil {
		return err
	}
	logger.Printf("report written to %s", reportPath)

	rendered, err := res.Report.Render(format)
	if err != nil {
		return err
	}
	_, err = stdout.Write(rendered)
	return err
}
