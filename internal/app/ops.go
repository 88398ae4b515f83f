package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/rentfree/internal/config"
	"github.com/hitoshi/rentfree/internal/content"
	"github.com/hitoshi/rentfree/internal/database"
	"github.com/hitoshi/rentfree/internal/feedcheck"
	"github.com/hitoshi/rentfree/internal/logger"
	"github.com/hitoshi/rentfree/internal/metrics"
	"github.com/hitoshi/rentfree/internal/token"
)

// validateFetchTimeout はvalidateでURLを取得する際のタイムアウト。
const validateFetchTimeout = 30 * time.Second

// runMigrate はデータベースマイグレーションを実行する。
// 引数なしまたはupで未適用分をすべて適用し、down [N]でN件（省略時はすべて）戻し、versionで現在のバージョンを表示する。
func runMigrate(out io.Writer, cfg *config.Config, args []string) error {
	action := "up"
	if len(args) > 0 {
		action = args[0]
	}

	slog.Info("running database migrations",
		slog.String("action", action),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	switch action {
	case "up":
		if len(args) > 1 {
			return fmt.Errorf("migrate up takes no arguments")
		}
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	case "down":
		steps := 0
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n <= 0 {
				return fmt.Errorf("invalid step count %q", args[1])
			}
			steps = n
		}
		if err := database.RollbackMigrations(cfg.DatabaseURL, steps); err != nil {
			return fmt.Errorf("rollback failed: %w", err)
		}
	case "version":
		version, dirty, err := database.MigrationVersion(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to read migration version: %w", err)
		}
		fmt.Fprintf(out, "version=%d dirty=%t\n", version, dirty)
		return nil
	default:
		return fmt.Errorf("unknown migrate action %q (want up, down, or version)", action)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runImport はシードファイルを取り込み、件数を表で出力する。
func runImport(ctx context.Context, out io.Writer, cfg *config.Config, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open seed file: %w", err)
	}
	defer f.Close()

	seed, err := content.DecodeSeed(f)
	if err != nil {
		return err
	}

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	log := slog.Default()
	repos := newRepositories(db)
	svc := newServices(cfg, repos, metrics.Nop, log)

	importer := content.NewImporter(
		repos.indexes, repos.media, repos.segments, repos.users,
		svc.content, logger.ForComponent(log, "import"),
	)
	sum, err := importer.Import(ctx, seed)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	fmt.Fprintln(out, renderImportSummary(sum))
	return nil
}

func renderImportSummary(sum content.ImportSummary) string {
	rows := [][]string{
		{"index pages", strconv.Itoa(sum.IndexPages)},
		{"media", strconv.Itoa(sum.Media)},
		{"segments", strconv.Itoa(sum.Segments)},
		{"tier rules", strconv.Itoa(sum.TierRules)},
		{"users", strconv.Itoa(sum.Users)},
		{"items", strconv.Itoa(sum.Items)},
		{"variants", strconv.Itoa(sum.Variants)},
	}
	return renderTable([]string{"Kind", "Imported"}, rows, 2)
}

// runResetUser はユーザーのUUIDを再発行する。発行済みのプレミアムURLはすべて無効になる。
func runResetUser(ctx context.Context, out io.Writer, cfg *config.Config, email string) error {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	svc := newServices(cfg, newRepositories(db), metrics.Nop, slog.Default())
	u, err := svc.user.Reset(ctx, email)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "reset %s (uuid=%s, download_reset_counter=%d)\n", u.Email, u.UUID, u.DownloadResetCounter)
	return nil
}

// runFeedLink はユーザーのプレミアムフィードURLを出力する。
func runFeedLink(ctx context.Context, out io.Writer, cfg *config.Config, email, slug string) error {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	svc := newServices(cfg, newRepositories(db), metrics.Nop, slog.Default())
	link, err := svc.feed.PremiumFeedURL(ctx, email, slug)
	if err != nil {
		return err
	}

	slog.Info("premium feed link issued",
		slog.String("slug", slug),
		slog.String("uidb64", token.EncodeUID(email)),
	)
	fmt.Fprintln(out, link)
	return nil
}

// runValidate はURLまたはファイルのフィードを検証し、結果を表で出力する。
// 違反があればエラーを返す。
func runValidate(ctx context.Context, out io.Writer, target string) error {
	var (
		report *feedcheck.Report
		err    error
	)
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		client := &http.Client{Timeout: validateFetchTimeout}
		report, err = feedcheck.Fetch(ctx, client, target)
	} else {
		var doc []byte
		doc, err = os.ReadFile(target)
		if err != nil {
			return fmt.Errorf("failed to read feed file: %w", err)
		}
		report, err = feedcheck.Validate(doc)
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(out, renderReport(report))
	if !report.OK() {
		return fmt.Errorf("feed %s failed validation", target)
	}
	return nil
}

func renderReport(r *feedcheck.Report) string {
	missing := make([]string, len(r.MissingGUIDs))
	for i, pos := range r.MissingGUIDs {
		missing[i] = strconv.Itoa(pos)
	}
	rows := [][]string{
		{"title", r.Title},
		{"type", r.FeedType},
		{"items", strconv.Itoa(r.ItemCount)},
		{"multiple enclosures", joinOrDash(r.EnclosureViolations)},
		{"duplicate guids", joinOrDash(r.DuplicateGUIDs)},
		{"missing guids", joinOrDash(missing)},
	}
	return renderTable([]string{"Check", "Result"}, rows)
}

func joinOrDash(values []string) string {
	if len(values) == 0 {
		return "-"
	}
	return strings.Join(values, ", ")
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
