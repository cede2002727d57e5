package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/juliehq/julie/internal/config"
	"github.com/juliehq/julie/internal/index"
	"github.com/juliehq/julie/internal/preflight"
	"github.com/juliehq/julie/internal/store"
)

func newDoctorCmd() *cobra.Command {
	var (
		verbose    bool
		jsonOutput bool
		offline    bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check system requirements and diagnose issues",
		Long: `Run system diagnostics to ensure Julie can operate correctly.

Checks:
  - Disk space (100MB minimum)
  - Memory availability (1GB minimum)
  - Write permissions
  - File descriptor limits (1024 minimum)
  - Embedder model status (downloaded/missing)
  - Embedder disk space
  - Index consistency (metadata vs BM25 vs vector store, when an
    index exists)

Note: Embedder checks are non-critical warnings.
If embedder model fails to download, Julie falls back to static embeddings.

Use --verbose for detailed diagnostic information.
Use --json for machine-readable output.`,
		Example: `  # Run diagnostics
  julie doctor

  # Verbose output with details
  julie doctor --verbose

  # JSON output for scripting
  julie doctor --json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd, verbose, jsonOutput, offline)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show detailed diagnostic info")
	cmd.Flags().Bool("json", false, "Output as JSON")
	// Note: --offline flag kept for backwards compatibility but has no effect
	cmd.Flags().BoolVar(&offline, "offline", false, "Reserved for future use")

	// Bind --json flag manually since it's a reserved word
	_ = cmd.Flags().Lookup("json").Value.Set("false")
	cmd.PreRunE = func(cmd *cobra.Command, _ []string) error {
		jsonOutput, _ = cmd.Flags().GetBool("json")
		return nil
	}

	return cmd
}

func runDoctor(cmd *cobra.Command, verbose, jsonOutput, offline bool) error {
	// Set up context with signal handling (uses signal.NotifyContext to prevent goroutine leaks)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Find project root
	root, err := config.FindProjectRoot(".")
	if err != nil {
		root, _ = os.Getwd()
	}

	// Create checker
	checker := preflight.New(
		preflight.WithOffline(offline),
		preflight.WithVerbose(verbose),
		preflight.WithOutput(cmd.OutOrStdout()),
	)

	// Run all checks
	results := checker.RunAll(ctx, root)

	// Reconcile the index stores against each other when an index exists.
	if r, ok := checkIndexConsistency(ctx, root); ok {
		results = append(results, r)
	}

	// Output results
	if jsonOutput {
		return outputJSON(cmd, checker, results)
	}

	checker.PrintResults(results)

	// Check for marker status
	dataDir := filepath.Join(root, ".julie")
	if !preflight.NeedsCheck(dataDir) {
		age := preflight.MarkerAge(dataDir)
		if age > 0 {
			cmd.Printf("\nLast successful check: %s ago\n", formatDuration(age))
		}
	}

	// Return error if critical failures
	if checker.HasCriticalFailures(results) {
		return &doctorError{message: "system check failed"}
	}

	return nil
}

// checkIndexConsistency reconciles the metadata store's embedded
// symbols against the standalone BM25 index and the HNSW vector store.
// Orphans and missing entries surface as a warning, never a critical
// failure: search still works from the metadata store, and a forced
// re-index repairs the derived stores. Returns ok=false when the
// workspace has no index yet.
func checkIndexConsistency(ctx context.Context, root string) (preflight.CheckResult, bool) {
	result := preflight.CheckResult{Name: "index_consistency", Required: false}

	dataDir := filepath.Join(root, ".julie")
	metadataPath := filepath.Join(dataDir, "metadata.db")
	if _, err := os.Stat(metadataPath); err != nil {
		return result, false
	}

	metadata, err := store.NewSQLiteStore(metadataPath)
	if err != nil {
		result.Status = preflight.StatusWarn
		result.Message = "cannot open metadata store: " + err.Error()
		return result, true
	}
	defer func() { _ = metadata.Close() }()

	vectorPath := filepath.Join(dataDir, "vectors.hnsw")
	dims, err := store.ReadHNSWStoreDimensions(vectorPath)
	if err != nil || dims == 0 {
		dims = embed768Dimensions
	}
	vectors, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(dims))
	if err != nil {
		result.Status = preflight.StatusWarn
		result.Message = "cannot open vector store: " + err.Error()
		return result, true
	}
	defer func() { _ = vectors.Close() }()
	if _, statErr := os.Stat(vectorPath); statErr == nil {
		if loadErr := vectors.Load(vectorPath); loadErr != nil {
			result.Status = preflight.StatusWarn
			result.Message = "vector store unreadable: " + loadErr.Error()
			return result, true
		}
	}

	// The standalone BM25 index is optional; reconcile it only when its
	// backing file is present.
	var bm25 store.BM25Index
	bm25Base := filepath.Join(dataDir, "bm25")
	for _, backend := range []string{string(store.BM25BackendSQLite), string(store.BM25BackendBleve)} {
		ext := ".db"
		if backend == string(store.BM25BackendBleve) {
			ext = ".bleve"
		}
		if _, statErr := os.Stat(bm25Base + ext); statErr != nil {
			continue
		}
		if idx, openErr := store.NewBM25IndexWithBackend(bm25Base, store.DefaultBM25Config(), backend); openErr == nil {
			bm25 = idx
			defer func() { _ = idx.Close() }()
		}
		break
	}

	check, err := index.NewConsistencyChecker(metadata, bm25, vectors).Check(ctx)
	if err != nil {
		result.Status = preflight.StatusWarn
		result.Message = "consistency check failed: " + err.Error()
		return result, true
	}

	if len(check.Inconsistencies) == 0 {
		result.Status = preflight.StatusPass
		result.Message = fmt.Sprintf("%d embedded symbols consistent across stores", check.Checked)
		return result, true
	}

	counts := map[string]int{}
	for _, issue := range check.Inconsistencies {
		counts[issue.Type.String()]++
	}
	result.Status = preflight.StatusWarn
	result.Message = fmt.Sprintf("%d inconsistencies across %d symbols", len(check.Inconsistencies), check.Checked)
	result.Details = fmt.Sprintf("%v; run 'julie index --force' to rebuild derived stores", counts)
	return result, true
}

// embed768Dimensions is the fallback dimensionality used to open an
// HNSW store whose sidecar is missing (fresh or never-built graph).
const embed768Dimensions = 768

// doctorError is a custom error for doctor command failures.
type doctorError struct {
	message string
}

func (e *doctorError) Error() string {
	return e.message
}

// JSONOutput is the structure for JSON output.
type JSONOutput struct {
	Status   string             `json:"status"`
	Checks   []JSONCheckResult  `json:"checks"`
	Warnings []string           `json:"warnings,omitempty"`
	Errors   []string           `json:"errors,omitempty"`
}

// JSONCheckResult is a single check result for JSON output.
type JSONCheckResult struct {
	Name     string `json:"name"`
	Status   string `json:"status"`
	Message  string `json:"message"`
	Required bool   `json:"required"`
	Details  string `json:"details,omitempty"`
}

func outputJSON(cmd *cobra.Command, checker *preflight.Checker, results []preflight.CheckResult) error {
	output := JSONOutput{
		Status: checker.SummaryStatus(results),
		Checks: make([]JSONCheckResult, len(results)),
	}

	for i, r := range results {
		output.Checks[i] = JSONCheckResult{
			Name:     r.Name,
			Status:   statusToString(r.Status),
			Message:  r.Message,
			Required: r.Required,
			Details:  r.Details,
		}

		if r.IsCritical() {
			output.Errors = append(output.Errors, r.Name+": "+r.Message)
		} else if r.Status == preflight.StatusWarn {
			output.Warnings = append(output.Warnings, r.Name+": "+r.Message)
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}

func statusToString(s preflight.CheckStatus) string {
	switch s {
	case preflight.StatusPass:
		return "pass"
	case preflight.StatusWarn:
		return "warn"
	case preflight.StatusFail:
		return "fail"
	default:
		return "unknown"
	}
}

func formatDuration(d interface{ Hours() float64 }) string {
	hours := d.Hours()
	if hours < 1 {
		return "less than 1 hour"
	}
	if hours < 24 {
		return formatHours(int(hours))
	}
	days := int(hours / 24)
	if days == 1 {
		return "1 day"
	}
	return formatDays(days)
}

func formatHours(h int) string {
	if h == 1 {
		return "1 hour"
	}
	return string(rune('0'+h/10)) + string(rune('0'+h%10)) + " hours"
}

func formatDays(d int) string {
	if d < 10 {
		return string(rune('0'+d)) + " days"
	}
	return string(rune('0'+d/10)) + string(rune('0'+d%10)) + " days"
}
