package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/moyoez/submitsession/orchestrator"
	"github.com/moyoez/submitsession/tool"
	"github.com/moyoez/submitsession/types"
)

type submitOptions struct {
	files       []string
	links       []string
	text        string
	articleType string
}

func newSubmitCommand() *cobra.Command {
	opts := &submitOptions{}
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Run one submission to completion and print its progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().StringArrayVar(&opts.files, "file", nil, "file to upload (repeatable)")
	cmd.Flags().StringArrayVar(&opts.links, "link", nil, "http(s) link to submit (repeatable)")
	cmd.Flags().StringVar(&opts.text, "text", "", "free-text content")
	cmd.Flags().StringVar(&opts.articleType, "article-type", "", "classification tag as id or id:name")
	return cmd
}

// parseArticleType reads "id" or "id:name". An empty value means no tag.
func parseArticleType(v string) (*types.ArticleType, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	id, name, _ := strings.Cut(v, ":")
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("article type id is required")
	}
	return &types.ArticleType{ID: id, Name: strings.TrimSpace(name)}, nil
}

func runSubmit(out io.Writer, opts *submitOptions) error {
	appCfg := setup()

	dispatcher := newDispatcher(appCfg)
	defer dispatcher.Close()
	updates, unsubscribe := dispatcher.Subscribe(64)
	defer unsubscribe()

	ctx := context.Background()
	sub, restored := orchestrator.NewSubmission(ctx, appCfg, newProcessor(appCfg), newDraftStore(appCfg), dispatcher)
	defer sub.Close()
	if restored {
		tool.DefaultLogger.Info("Restored unsent draft text")
	}

	refs, err := resolvePaths(opts.files)
	if err != nil {
		return err
	}
	if len(refs) > 0 {
		if _, err := sub.AddFiles(refs...); err != nil {
			return err
		}
	}
	for _, l := range opts.links {
		if _, err := sub.AddLink(l); err != nil {
			return fmt.Errorf("%s: %v", l, err)
		}
	}
	if opts.text != "" {
		if err := sub.SetText(opts.text); err != nil {
			return err
		}
	}
	at, err := parseArticleType(opts.articleType)
	if err != nil {
		return err
	}
	if at != nil {
		if err := sub.SetArticleType(at); err != nil {
			return err
		}
	}

	results, err := sub.StartAsync(ctx)
	if err != nil {
		return err
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	printer := newProgressPrinter(out, isTerminal(out))
	for {
		select {
		case n := <-updates:
			if n.Session != nil {
				printer.Update(*n.Session)
			}
		case <-sigCtx.Done():
			if sub.Cancel() {
				tool.DefaultLogger.Info("Cancelling submission")
			}
			sigCtx = context.Background()
		case res := <-results:
			printer.Done(sub.Snapshot())
			switch {
			case res.Err == nil:
				return nil
			case errors.Is(res.Err, orchestrator.ErrCancelled):
				return res.Err
			default:
				return fmt.Errorf("submission failed: %v", res.Err)
			}
		}
	}
}

func resolvePaths(paths []string) ([]types.FileRef, error) {
	refs := make([]types.FileRef, 0, len(paths))
	for _, p := range paths {
		ref, err := tool.ResolveFileRef(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %v", p, err)
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

var (
	labelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("33"))
	okStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	errStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
)

// progressPrinter rewrites one status line on a terminal and prints
// one line per change of status or stage otherwise.
type progressPrinter struct {
	out  io.Writer
	tty  bool
	last string
}

func newProgressPrinter(out io.Writer, tty bool) *progressPrinter {
	return &progressPrinter{out: out, tty: tty}
}

func (p *progressPrinter) Update(s types.Session) {
	line := formatProgress(s)
	if p.tty {
		fmt.Fprintf(p.out, "\r\033[K%s", line)
		return
	}
	key := string(s.Status) + "/" + string(s.ProcessingStage)
	if key == p.last {
		return
	}
	p.last = key
	fmt.Fprintln(p.out, line)
}

func (p *progressPrinter) Done(s types.Session) {
	if p.tty {
		fmt.Fprint(p.out, "\r\033[K")
	}
	switch s.Status {
	case types.StatusCompleted:
		fmt.Fprintln(p.out, okStyle.Render("Completed")+" "+formatProgress(s))
	case types.StatusCancelled:
		fmt.Fprintln(p.out, errStyle.Render("Cancelled")+" "+formatProgress(s))
	default:
		fmt.Fprintln(p.out, errStyle.Render("Failed")+" "+s.Error)
	}
}

func formatProgress(s types.Session) string {
	stats := s.Stats()
	line := fmt.Sprintf("%s %3d%% files %d/%d", labelStyle.Render(string(s.Status)), s.Progress, stats.SuccessFiles, stats.TotalFiles)
	if stats.FailedFiles > 0 {
		line += fmt.Sprintf(" (%d failed)", stats.FailedFiles)
	}
	if s.ProcessingMessage != "" {
		line += " " + s.ProcessingMessage
	}
	if s.EstimatedTimeRemaining != nil {
		line += fmt.Sprintf(" eta %s", s.EstimatedTimeRemaining.Round(time.Second))
	}
	return line
}
