package analyzer

import (
	"context"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/a11y-audit/internal/model"
	"github.com/sells-group/a11y-audit/internal/parse"
	"github.com/sells-group/a11y-audit/internal/resilience"
	"github.com/sells-group/a11y-audit/pkg/llm"
)

// FixRequest asks for one finding to be remediated in its file.
type FixRequest struct {
	SourceText string
	Filename   string
	Provider   string
	ModelHint  string
	Finding    model.Finding
	// Force applies the fix even when its quality score misses the
	// apply threshold.
	Force bool
}

// Fix generates, applies, and judges a remediation for one finding. The
// gate is heuristic: the fix lands only when its quality score clears the
// apply threshold, unless forced. The original text rides along as Backup
// so callers can roll back. A response that cannot be parsed is a result
// (ParseNote set, nothing applied), not an error; a provider call that
// exhausts its retries is an error.
func (a *Analyzer) Fix(ctx context.Context, req FixRequest) (*model.FixReport, error) {
	provider, err := llm.ParseProvider(req.Provider)
	if err != nil {
		return nil, eris.Wrap(err, "analyzer: resolve provider")
	}
	client, err := a.registry.Get(provider)
	if err != nil {
		return nil, eris.Wrap(err, "analyzer: resolve provider")
	}

	file := model.NewSourceFile(req.Filename, req.SourceText)
	report := &model.FixReport{
		IssueID: req.Finding.IssueID,
		Backup:  req.SourceText,
	}
	log := zap.L().With(
		zap.String("file", req.Filename),
		zap.String("provider", req.Provider),
		zap.String("issue_id", req.Finding.IssueID),
	)

	prompt := RemediationPrompt(file, req.Finding)
	retryCfg := a.retry
	retryCfg.OnRetry = resilience.RetryLogger(string(provider), "remediation")
	cb := a.breakers.Get(string(provider))

	resp, err := resilience.DoVal(ctx, retryCfg, cb, func(ctx context.Context) (*llm.Response, error) {
		if gerr := a.governor.Wait(ctx, provider); gerr != nil {
			return nil, gerr
		}
		return client.Call(ctx, llm.Request{
			Prompt:    prompt,
			System:    auditorSystem,
			ModelHint: req.ModelHint,
		})
	})
	if err != nil {
		return nil, eris.Wrap(err, "analyzer: remediation call")
	}
	report.Usage = a.charge(provider, resp)

	rr := parse.Remediation(resp.Text)
	if rr.Failed {
		log.Warn("analyzer: remediation response unparseable",
			zap.Int("raw_len", len(resp.Text)),
		)
		report.ParseNote = &model.ParseNote{RawExcerpt: rr.RawExcerpt}
		return report, nil
	}
	report.Changes = rr.Fix.Changes

	fixedText := applyFix(file, rr.Fix)
	fv := a.validator.CheckFix(file, req.Finding, fixedText)
	report.Validation = &fv

	threshold := a.cfg.Remediation.ApplyThreshold
	switch {
	case fv.Quality >= threshold:
		report.Applied = true
		report.FixedText = fixedText
	case req.Force:
		report.Applied = true
		report.Forced = true
		report.FixedText = fixedText
		log.Warn("analyzer: applying fix below quality threshold",
			zap.Float64("quality", fv.Quality),
			zap.Float64("threshold", threshold),
		)
	default:
		log.Info("analyzer: fix withheld",
			zap.Float64("quality", fv.Quality),
			zap.Float64("threshold", threshold),
		)
	}
	return report, nil
}

// applyFix materializes a remediation. Individual changes are applied in
// descending line order so one edit cannot shift the line numbers of the
// rest; the full rewrite is used only when no changes are listed. Each
// change replaces the claimed original substring on its line, falling back
// to replacing the whole line when the substring is absent.
func applyFix(file *model.SourceFile, fix model.Remediation) string {
	if len(fix.Changes) == 0 {
		return fix.FixedCode
	}

	out := make([]string, len(file.Lines))
	copy(out, file.Lines)

	changes := make([]model.FixChange, len(fix.Changes))
	copy(changes, fix.Changes)
	sort.SliceStable(changes, func(i, j int) bool {
		return changes[i].LineNumber > changes[j].LineNumber
	})

	for _, ch := range changes {
		idx := ch.LineNumber - 1
		if idx < 0 || idx >= len(out) {
			zap.L().Debug("analyzer: fix change out of range",
				zap.Int("line", ch.LineNumber),
				zap.Int("total_lines", len(out)),
			)
			continue
		}
		if ch.Original != "" && strings.Contains(out[idx], ch.Original) {
			out[idx] = strings.Replace(out[idx], ch.Original, ch.Fixed, 1)
		} else {
			out[idx] = ch.Fixed
		}
	}
	return strings.Join(out, "\n")
}
