package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/iocost-benchmark/iocost-benchmarks-ci/internal/artifact"
	"github.com/iocost-benchmark/iocost-benchmarks-ci/internal/config"
	"github.com/iocost-benchmark/iocost-benchmarks-ci/internal/engine"
	"github.com/iocost-benchmark/iocost-benchmarks-ci/internal/gitops"
	"github.com/iocost-benchmark/iocost-benchmarks-ci/internal/ingest"
	"github.com/iocost-benchmark/iocost-benchmarks-ci/internal/logging"
	"github.com/iocost-benchmark/iocost-benchmarks-ci/internal/merge"
	"github.com/iocost-benchmark/iocost-benchmarks-ci/internal/resultdb"
	"github.com/iocost-benchmark/iocost-benchmarks-ci/internal/tracker"
)

var importFlags struct {
	context     string
	repoPath    string
	skipComment bool
	skipCommit  bool
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Ingest result files from a submission event and update the database",
	Long: `Import processes one issue or issue-comment event: it downloads the
allow-listed result files named in the event body, validates them with the
engine, stores them in the database, re-merges every touched bucket and
commits the outcome on an iocost-bot/<issue> branch.

The event context is read from --context or the GITHUB_CONTEXT environment
variable, exactly as the workflow provides it.`,
	RunE: runImport,
}

func init() {
	f := importCmd.Flags()
	f.StringVar(&importFlags.context, "context", "", "Event context JSON (default: $GITHUB_CONTEXT)")
	f.StringVar(&importFlags.repoPath, "repo", ".", "Path to the benchmarks repository checkout")
	f.BoolVar(&importFlags.skipComment, "skip-comment", false, "Do not post the failure comment")
	f.BoolVar(&importFlags.skipCommit, "skip-commit", false, "Do not stage or commit results")
}

func runImport(cmd *cobra.Command, args []string) error {
	log := logging.New("import")

	cfg, err := config.LoadFromPath(rootFlags.config)
	if err != nil {
		return err
	}

	raw := importFlags.context
	if raw == "" {
		raw = os.Getenv("GITHUB_CONTEXT")
	}
	if raw == "" {
		return fmt.Errorf("event context is required: pass --context or set GITHUB_CONTEXT")
	}

	ectx, err := ingest.ParseContext([]byte(raw))
	if err != nil {
		return err
	}
	issue := ectx.Event.Issue.Number

	store, err := resultdb.NewStore(cfg.DatabaseDir)
	if err != nil {
		return err
	}
	eng := &engine.Exec{Dir: cfg.EngineDir}
	gateway := ingest.NewGateway(store, eng, &ingest.HTTPDownloader{})

	accepted, rejected, err := gateway.Ingest(cmd.Context(), ectx)
	if err != nil {
		return err
	}

	if len(rejected) > 0 && !importFlags.skipComment {
		if ectx.Token == "" {
			log.Warn("no token in event context, not posting failure comment")
		} else {
			gh := tracker.NewGitHub(ectx.Token)
			if err := gh.PostComment(cmd.Context(), ectx.RepositoryOwner, cfg.Repository,
				issue, ingest.FailureReport(rejected)); err != nil {
				return err
			}
			log.Info("posted failure comment", "issue", issue, "failures", len(rejected))
		}
	}

	if len(accepted) == 0 {
		log.Info("found no result files to merge")
		return nil
	}

	staged := make([]string, 0, len(accepted)*2)
	for _, a := range accepted {
		staged = append(staged, a.Path, resultdb.SidecarPath(a.Path))
	}

	merger := merge.NewOrchestrator(store, eng)
	generator := artifact.NewGenerator(eng)

	groups := ingest.GroupByBucket(accepted)
	buckets := make([]ingest.Bucket, 0, len(groups))
	for bucket := range groups {
		buckets = append(buckets, bucket)
	}
	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].Version != buckets[j].Version {
			return buckets[i].Version < buckets[j].Version
		}
		return buckets[i].Model < buckets[j].Model
	})

	var summaries []string
	for _, bucket := range buckets {
		m, fw, err := merger.Merge(cmd.Context(), bucket.Version, bucket.Model)
		if err != nil {
			return err
		}
		out, err := generator.Generate(cmd.Context(), m, fw)
		if err != nil {
			return err
		}

		pdfDir := fmt.Sprintf("pdfs-for-%d", issue)
		if _, err := generator.SavePDFIn(cmd.Context(), m, pdfDir, time.Now()); err != nil {
			return err
		}

		staged = append(staged, m.Path, out.SummaryPath, out.PDFPath)
		if out.HwdbPath != "" {
			staged = append(staged, out.HwdbPath)
		}
		if fw != nil {
			staged = append(staged, fw.Path)
		}

		summaries = append(summaries, fmt.Sprintf("[%s] %s (%d new files)",
			bucket.Version, bucket.Model, len(groups[bucket])))
	}

	if importFlags.skipCommit {
		log.Info("skipping commit", "merged_buckets", len(buckets))
		return nil
	}

	repo, err := gitops.Open(importFlags.repoPath)
	if err != nil {
		return err
	}
	if err := repo.Add(staged...); err != nil {
		return err
	}

	message := fmt.Sprintf("Automated update from issue %d\n\nCloses #%d\n\n%s",
		issue, issue, strings.Join(summaries, ", "))
	hash, err := repo.Commit(message)
	if err != nil {
		return err
	}
	if err := repo.Branch(fmt.Sprintf("iocost-bot/%d", issue), hash); err != nil {
		return err
	}
	log.Info("results committed", "issue", issue, "commit", hash, "buckets", len(buckets))

	// The push and pull request happen in the workflow.
	return nil
}
