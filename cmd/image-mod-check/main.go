package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mikey/image-mod-relay/internal/classifier"
	"github.com/mikey/image-mod-relay/internal/config"
	"github.com/mikey/image-mod-relay/internal/core"
	"github.com/mikey/image-mod-relay/internal/di"
	"github.com/mikey/image-mod-relay/internal/policy"
	"go.uber.org/zap"
)

func main() {
	flags := di.ParseFlags()

	container, err := di.BuildCLIContainer(flags)
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	if flags.PolicyOp != "" {
		err = container.Invoke(runPolicy)
	} else {
		err = container.Invoke(runCheck)
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

// runCheck classifies one image and prints the verdict the relay would reach
func runCheck(
	flags *di.CLIFlags,
	logger *zap.Logger,
	cfg *config.Config,
	classifierClient *classifier.Client,
	engine *core.Engine,
) error {
	defer logger.Sync()
	defer classifierClient.Close()

	// Read image from file or stdin
	var imageReader io.Reader
	if flags.InputFile != "" {
		file, err := os.Open(flags.InputFile)
		if err != nil {
			return fmt.Errorf("failed to open input file: %w", err)
		}
		defer file.Close()
		imageReader = file
		logger.Info("Reading image from file", zap.String("file", flags.InputFile))
	} else {
		imageReader = os.Stdin
		logger.Info("Reading image from stdin")
	}

	data, err := io.ReadAll(imageReader)
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}

	policyCfg := cfg.GetPolicy()
	snapshot := core.PolicySnapshot{
		ViolationKeywords:   policyCfg.ViolationKeywords,
		ConfidenceThreshold: policyCfg.ConfidenceThreshold,
	}

	// Print image summary
	fmt.Printf("\n=== Image Summary ===\n")
	fmt.Printf("Size: %d bytes\n", len(data))
	if header, format, err := classifier.Inspect(data); err == nil {
		fmt.Printf("Dimensions: %dx%d (%s)\n", header.Width, header.Height, format)
	}
	fmt.Printf("\n")

	fmt.Printf("=== Analysis ===\n")
	fmt.Printf("Provider: %s\n", cfg.GetString("classifier.provider"))
	fmt.Printf("Labels: %s\n", strings.Join(classifierClient.Labels(), ", "))
	fmt.Printf("Confidence threshold: %.2f\n", snapshot.ConfidenceThreshold)
	fmt.Printf("Violation keywords: %s\n", strings.Join(snapshot.ViolationKeywords, ", "))

	startTime := time.Now()
	result := classifierClient.Classify(context.Background(), data)
	duration := time.Since(startTime)

	if result.Err != nil {
		fmt.Printf("\n=== Results ===\n")
		fmt.Printf("Classification failed: %v\n", result.Err)
		fmt.Printf("Processing time: %v\n", duration)
		return nil
	}

	verdict := engine.Decide(result, snapshot)

	// Print results
	fmt.Printf("\n=== Results ===\n")
	fmt.Print(verdict.ReportText)
	fmt.Printf("Violation: %t\n", verdict.Violated)
	if verdict.Violated {
		fmt.Printf("Matched labels: %s\n", strings.Join(verdict.MatchedLabels, ", "))
	}
	fmt.Printf("Source: %s\n", result.Source)
	if result.Mock {
		fmt.Printf("Note: scores are synthetic, the relay does not act on them unless moderation.act_on_mock is set\n")
	}
	fmt.Printf("Processing time: %v\n", duration)
	return nil
}

// runPolicy inspects or edits the persisted policy without a running relay
func runPolicy(flags *di.CLIFlags, logger *zap.Logger, store *policy.Store) error {
	defer logger.Sync()
	defer store.Close()

	return applyPolicy(context.Background(), os.Stdout, store, flags.PolicyOp, strings.TrimSpace(flags.PolicyArg))
}

// applyPolicy runs one policy operation and writes the outcome to w. A
// change that could not be saved is an error.
func applyPolicy(ctx context.Context, w io.Writer, store *policy.Store, op, arg string) error {
	needsArg := map[string]bool{
		"add-whitelist":       true,
		"remove-whitelist":    true,
		"enable-auto-recall":  true,
		"disable-auto-recall": true,
		"add-keyword":         true,
		"remove-keyword":      true,
	}
	if needsArg[op] && arg == "" {
		return fmt.Errorf("policy operation %q requires -arg", op)
	}

	var changed bool
	var changedFmt, unchangedFmt string
	switch op {
	case "list":
		snapshot := store.Snapshot()
		fmt.Fprintf(w, "=== Policy ===\n")
		fmt.Fprintf(w, "Admins: %s\n", strings.Join(snapshot.AdminIDs, ", "))
		fmt.Fprintf(w, "Whitelist groups: %s\n", strings.Join(snapshot.WhitelistGroups, ", "))
		fmt.Fprintf(w, "Auto-recall groups: %s\n", strings.Join(snapshot.AutoRecallGroups, ", "))
		fmt.Fprintf(w, "Violation keywords: %s\n", strings.Join(snapshot.ViolationKeywords, ", "))
		fmt.Fprintf(w, "Confidence threshold: %.2f\n", snapshot.ConfidenceThreshold)
		return nil
	case "list-keywords":
		for _, kw := range store.Keywords() {
			fmt.Fprintln(w, kw)
		}
		return nil
	case "add-whitelist":
		changed = store.AddWhitelist(ctx, arg)
		changedFmt, unchangedFmt = "group %s added to whitelist", "group %s already whitelisted"
	case "remove-whitelist":
		changed = store.RemoveWhitelist(ctx, arg)
		changedFmt, unchangedFmt = "group %s removed from whitelist", "group %s not whitelisted"
	case "enable-auto-recall":
		changed = store.EnableAutoRecall(ctx, arg)
		changedFmt, unchangedFmt = "auto-recall enabled for group %s", "auto-recall already enabled for group %s"
	case "disable-auto-recall":
		changed = store.DisableAutoRecall(ctx, arg)
		changedFmt, unchangedFmt = "auto-recall disabled for group %s", "auto-recall not enabled for group %s"
	case "add-keyword":
		changed = store.AddKeyword(ctx, arg)
		changedFmt, unchangedFmt = "keyword %s added", "keyword %s already present"
	case "remove-keyword":
		changed = store.RemoveKeyword(ctx, arg)
		changedFmt, unchangedFmt = "keyword %s removed", "keyword %s not present"
	default:
		return errors.New("unknown policy operation: " + op)
	}

	if err := store.PersistError(); err != nil {
		return fmt.Errorf("policy change was not saved: %w", err)
	}
	if changed {
		fmt.Fprintf(w, changedFmt+"\n", arg)
	} else {
		fmt.Fprintf(w, unchangedFmt+"\n", arg)
	}
	return nil
}
