// Command outreachctl is the operator CLI: stop-send, resume-send,
// stop-status, rollback, approve-send (the binding §4.12 verb surface),
// plus scan, report, propose, promote, approve, safety, and status (§6's
// operator convenience verbs). Every verb accepts --json.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/outreach-control/internal/approval"
	"github.com/ignite/outreach-control/internal/config"
	"github.com/ignite/outreach-control/internal/domain"
	"github.com/ignite/outreach-control/internal/experiment"
	"github.com/ignite/outreach-control/internal/killswitch"
	"github.com/ignite/outreach-control/internal/ledger"
	"github.com/ignite/outreach-control/internal/ops"
	"github.com/ignite/outreach-control/internal/provider/crm"
	"github.com/ignite/outreach-control/internal/queue"
	"github.com/ignite/outreach-control/internal/tagparser"
)

type app struct {
	surface     *ops.Surface
	experiments *experiment.Registry
	ledger      *ledger.Ledger
	cfg         *config.Config
	jsonOutput  bool
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to YAML config file")
	jsonOutput := flag.Bool("json", false, "emit machine-readable JSON output")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: outreachctl [--json] <verb> [args...]")
		os.Exit(2)
	}

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		fatal(*jsonOutput, "config", err)
	}

	a, err := newApp(cfg, *jsonOutput)
	if err != nil {
		fatal(*jsonOutput, "init", err)
	}

	verb, rest := args[0], args[1:]
	ctx := context.Background()

	var result interface{}
	var verbErr error

	switch verb {
	case "stop-send":
		result, verbErr = a.stopSend(ctx, rest)
	case "resume-send":
		result, verbErr = a.resumeSend(ctx, rest)
	case "stop-status":
		result, verbErr = a.stopStatus(ctx)
	case "rollback":
		result, verbErr = a.rollback(ctx, rest)
	case "approve-send":
		result, verbErr = a.approveSend(ctx, rest)
	case "scan":
		result, verbErr = a.scan(ctx, rest)
	case "report":
		result, verbErr = a.report(ctx, rest)
	case "propose":
		result, verbErr = a.propose(ctx, rest)
	case "promote":
		result, verbErr = a.promote(ctx, rest)
	case "approve":
		result, verbErr = a.approve(ctx, rest)
	case "safety":
		result, verbErr = a.safety(ctx, rest)
	case "status":
		result, verbErr = a.status(ctx)
	default:
		fmt.Fprintf(os.Stderr, "outreachctl: unknown verb %q\n", verb)
		os.Exit(2)
	}

	if verbErr != nil {
		fatal(*jsonOutput, verb, verbErr)
	}

	a.emit(result)
}

func newApp(cfg *config.Config, jsonOutput bool) (*app, error) {
	if err := os.MkdirAll(cfg.Server.DataDir, 0o755); err != nil {
		return nil, err
	}

	l, err := ledger.Open(filepath.Join(cfg.Server.DataDir, "metrics.ndjson"))
	if err != nil {
		return nil, err
	}
	q, err := queue.Open(filepath.Join(cfg.Server.DataDir, "send_queue.ndjson"))
	if err != nil {
		return nil, err
	}
	approvals, err := approval.Open(filepath.Join(cfg.Server.DataDir, "approvals.ndjson"))
	if err != nil {
		return nil, err
	}
	experiments, err := experiment.OpenRegistry(filepath.Join(cfg.Server.DataDir, "experiments.json"))
	if err != nil {
		return nil, err
	}
	ks := killswitch.New(
		filepath.Join(cfg.Server.DataDir, "runtime_kill_switch.json"),
		time.Duration(cfg.Gate.KillSwitchTTL)*time.Second,
		nil,
	)

	surface := ops.New(l, q, ks, approvals, experiments, queue.NewJobID)

	return &app{surface: surface, experiments: experiments, ledger: l, cfg: cfg, jsonOutput: jsonOutput}, nil
}

func (a *app) emit(result interface{}) {
	if result == nil {
		return
	}
	if a.jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(result)
		return
	}
	fmt.Printf("%+v\n", result)
}

func fatal(jsonOutput bool, verb string, err error) {
	if jsonOutput {
		enc := json.NewEncoder(os.Stderr)
		_ = enc.Encode(map[string]string{"verb": verb, "error": err.Error()})
	} else {
		fmt.Fprintf(os.Stderr, "outreachctl: %s: %v\n", verb, err)
	}
	os.Exit(1)
}

// --- Core §4.12 verbs ---

func (a *app) stopSend(ctx context.Context, args []string) (interface{}, error) {
	fs := flag.NewFlagSet("stop-send", flag.ExitOnError)
	reason := fs.String("reason", "", "why sending is being stopped")
	setBy := fs.String("set-by", "", "operator identity")
	fs.Parse(args)

	if err := a.surface.StopSend(ctx, *reason, *setBy); err != nil {
		return nil, err
	}
	return map[string]string{"status": "stopped"}, nil
}

func (a *app) resumeSend(ctx context.Context, args []string) (interface{}, error) {
	fs := flag.NewFlagSet("resume-send", flag.ExitOnError)
	reason := fs.String("reason", "", "why sending is being resumed")
	setBy := fs.String("set-by", "", "operator identity")
	fs.Parse(args)

	if err := a.surface.ResumeSend(ctx, *reason, *setBy); err != nil {
		return nil, err
	}
	return map[string]string{"status": "resumed"}, nil
}

func (a *app) stopStatus(ctx context.Context) (interface{}, error) {
	return a.surface.StopStatus(ctx)
}

func (a *app) rollback(ctx context.Context, args []string) (interface{}, error) {
	fs := flag.NewFlagSet("rollback", flag.ExitOnError)
	experimentID := fs.String("experiment-id", "", "experiment to roll back")
	reason := fs.String("reason", "", "why the rollback was triggered")
	setBy := fs.String("set-by", "", "operator identity")
	alsoStopSend := fs.Bool("also-stop-send", false, "also activate the runtime kill switch")
	fs.Parse(args)

	return a.surface.Rollback(ctx, *experimentID, *reason, *setBy, *alsoStopSend)
}

func (a *app) approveSend(ctx context.Context, args []string) (interface{}, error) {
	fs := flag.NewFlagSet("approve-send", flag.ExitOnError)
	draftID := fs.String("draft-id", "", "draft being approved")
	approvedBy := fs.String("approved-by", "", "operator identity")
	reason := fs.String("reason", "", "why approval was granted")
	ticket := fs.String("ticket", "", "tracking ticket reference")
	toEmail := fs.String("to", "", "recipient address (stored out-of-band, never in the job)")
	execute := fs.Bool("execute", false, "enqueue immediately instead of also stopping sends")
	trackingID := fs.String("tracking-id", "", "tracking id for phase-2 enqueue")
	companyID := fs.String("company-id", "", "company id for phase-2 enqueue")
	templateID := fs.String("template-id", "", "template id for phase-2 enqueue")
	toDomain := fs.String("to-domain", "", "recipient domain for phase-2 enqueue")
	token := fs.String("token", "", "phase-1 token; when set, runs phase 2 instead")
	variant := fs.String("variant", "", "ab_variant for phase-2 enqueue: A, B, or empty")
	fs.Parse(args)

	if *token != "" {
		job, err := a.surface.ApproveSendPhase2(ctx, *token, *trackingID, *companyID, *templateID, domain.ABVariant(*variant), *toDomain)
		if err != nil {
			return nil, err
		}
		return job, nil
	}

	issuedToken, err := a.surface.ApproveSendPhase1(ctx, *draftID, *approvedBy, *reason, *ticket, *toEmail, *execute)
	if err != nil {
		return nil, err
	}
	if *execute {
		job, err := a.surface.ApproveSendPhase2(ctx, issuedToken, *trackingID, *companyID, *templateID, domain.ABVariant(*variant), *toDomain)
		if err != nil {
			return nil, err
		}
		return job, nil
	}
	return map[string]string{"token": issuedToken}, nil
}

// --- §6 convenience verbs ---

func (a *app) scan(ctx context.Context, args []string) (interface{}, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("usage: scan <tag>")
	}
	tag := args[0]

	client := crm.New(a.cfg.CRM.BaseURL, a.cfg.CRM.SessionToken, a.cfg.CRM.Timeout())
	return client.SearchByTag(ctx, tag)
}

func (a *app) propose(ctx context.Context, args []string) (interface{}, error) {
	fs := flag.NewFlagSet("propose", flag.ExitOnError)
	fs.Parse(args)
	rest := fs.Args()
	if len(rest) < 2 {
		return nil, fmt.Errorf("usage: propose <tag> <template_id>")
	}
	tag, templateID := rest[0], rest[1]

	parsed, err := tagparser.Parse(tag, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	client := crm.New(a.cfg.CRM.BaseURL, a.cfg.CRM.SessionToken, a.cfg.CRM.Timeout())
	contacts, err := client.SearchByTag(ctx, tag)
	if err != nil {
		return nil, err
	}

	proposed := make([]string, 0, len(contacts))
	for _, contact := range contacts {
		trackingID := uuid.NewString()
		_, err := a.ledger.Append(domain.Event{
			EventType:  domain.DraftCreated,
			TrackingID: trackingID,
			CompanyID:  contact.CompanyID,
			TemplateID: templateID,
			Meta: map[string]interface{}{
				"tag":    parsed.String(),
				"domain": contact.Domain,
			},
		})
		if err != nil {
			return nil, err
		}
		proposed = append(proposed, trackingID)
	}

	return map[string]interface{}{"tag": parsed.String(), "proposed_tracking_ids": proposed}, nil
}

func (a *app) promote(ctx context.Context, args []string) (interface{}, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("usage: promote <experiment_id> <template_id>")
	}
	experimentID, winnerTemplateID := args[0], args[1]

	cfg, ok := a.experiments.Get(experimentID)
	if !ok {
		return nil, fmt.Errorf("outreachctl: unknown experiment %s", experimentID)
	}

	found := false
	for i := range cfg.Templates {
		if cfg.Templates[i].TemplateID == winnerTemplateID {
			cfg.Templates[i].Status = domain.ExperimentRunning
			found = true
		} else {
			cfg.Templates[i].Status = domain.ExperimentEnded
		}
	}
	if !found {
		return nil, fmt.Errorf("outreachctl: template %s is not part of experiment %s", winnerTemplateID, experimentID)
	}

	if err := a.experiments.Put(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (a *app) approve(ctx context.Context, args []string) (interface{}, error) {
	fs := flag.NewFlagSet("approve", flag.ExitOnError)
	approvedBy := fs.String("approved-by", "", "operator identity")
	reason := fs.String("reason", "", "why approval was granted")
	ticket := fs.String("ticket", "", "tracking ticket reference")
	toEmail := fs.String("to", "", "recipient address")
	fs.Parse(args)
	rest := fs.Args()
	if len(rest) < 1 {
		return nil, fmt.Errorf("usage: approve <draft_id>")
	}

	token, err := a.surface.ApproveSendPhase1(ctx, rest[0], *approvedBy, *reason, *ticket, *toEmail, true)
	if err != nil {
		return nil, err
	}
	return map[string]string{"token": token}, nil
}

func (a *app) safety(ctx context.Context, args []string) (interface{}, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("usage: safety <experiment_id>")
	}
	cfg, ok := a.experiments.Get(args[0])
	if !ok {
		return experiment.CheckSafetyForMissing(), nil
	}

	agg := experiment.Compute(a.ledger.AllEvents(), cfg, time.Now().UTC())
	return experiment.CheckSafety(agg, cfg), nil
}

func (a *app) report(ctx context.Context, args []string) (interface{}, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("usage: report <experiment_id>")
	}
	cfg, ok := a.experiments.Get(args[0])
	if !ok {
		return nil, fmt.Errorf("outreachctl: unknown experiment %s", args[0])
	}

	return experiment.Compute(a.ledger.AllEvents(), cfg, time.Now().UTC()), nil
}

func (a *app) status(ctx context.Context) (interface{}, error) {
	killSwitchState, err := a.surface.StopStatus(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	events := a.ledger.AllEvents()
	experiments := make([]map[string]interface{}, 0)
	for _, cfg := range a.experiments.All() {
		agg := experiment.Compute(events, cfg, now)
		safety := experiment.CheckSafety(agg, cfg)
		experiments = append(experiments, map[string]interface{}{
			"experiment_id": cfg.ExperimentID,
			"status":        cfg.Status,
			"safety_action": safety.Action,
		})
	}

	return map[string]interface{}{
		"kill_switch": killSwitchState,
		"experiments": experiments,
	}, nil
}
