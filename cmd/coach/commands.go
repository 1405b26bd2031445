package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"dealer_coach_backend/internal/coaching/approval"
	"dealer_coach_backend/internal/coaching/seed"
	"dealer_coach_backend/internal/coaching/transport"
	"dealer_coach_backend/internal/scheduler"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func previewCmd() *cobra.Command {
	var req transport.PreviewRequest
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Show the KPI preview ordered by risk",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd, 0)
			defer cancel()
			return withRuntime(ctx, func(ctx context.Context, rt *runtime) error {
				analysis, err := rt.svc.Preview(ctx, req)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(analysis)
				}
				fmt.Printf("Window %s .. %s\n", analysis.Window.Start.Format(dateLayout), analysis.Window.End.Format(dateLayout))
				renderPreview(os.Stdout, analysis.Preview)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&req.Region, "region", "", "only agents in this region")
	cmd.Flags().IntVar(&req.WindowDays, "window-days", 0, "days in the current window")
	cmd.Flags().IntVar(&req.Limit, "limit", 0, "maximum rows")
	return cmd
}

func championsCmd() *cobra.Command {
	var req transport.ChampionsRequest
	cmd := &cobra.Command{
		Use:   "champions",
		Short: "List agents by points with their grade",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd, 0)
			defer cancel()
			return withRuntime(ctx, func(ctx context.Context, rt *runtime) error {
				champions, err := rt.svc.Champions(ctx, req)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(champions)
				}
				renderChampions(os.Stdout, champions)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&req.WindowDays, "window-days", 0, "days in the current window")
	cmd.Flags().IntVar(&req.Limit, "limit", 0, "maximum rows")
	return cmd
}

func seedCmd() *cobra.Command {
	var opts seed.Options
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Write synthetic dealer activity to the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd, 0)
			defer cancel()
			return withRuntime(ctx, func(ctx context.Context, rt *runtime) error {
				if rt.repo == nil {
					return errors.New("seed needs DATABASE_URL")
				}
				n, err := rt.repo.InsertActivity(ctx, seed.Generate(opts))
				if err != nil {
					return err
				}
				fmt.Printf("Seeded %d activity rows.\n", n)
				return nil
			})
		},
	}
	cmd.Flags().Uint64Var(&opts.Seed, "seed", seed.DefaultSeed, "random seed")
	cmd.Flags().IntVar(&opts.Dealers, "dealers", seed.DefaultDealers, "number of dealers")
	cmd.Flags().IntVar(&opts.Days, "days", seed.DefaultDays, "days of history per dealer")
	cmd.Flags().StringVar(&opts.Region, "region", seed.DefaultRegion, "region of every dealer")
	return cmd
}

func snapshotCmd() *cobra.Command {
	var payload scheduler.SnapshotPayload
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Enqueue a notification snapshot for the scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			client, err := scheduler.NewClient(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			ctx, cancel := commandContext(cmd, 0)
			defer cancel()
			id, err := client.EnqueueSnapshot(ctx, payload)
			if err != nil {
				return err
			}
			fmt.Printf("Enqueued snapshot %s.\n", id)
			return nil
		},
	}
	cmd.Flags().StringVar(&payload.Goal, "goal", "", "goal recorded on the notifications")
	cmd.Flags().StringVar(&payload.Region, "region", "", "only agents in this region")
	cmd.Flags().IntVar(&payload.WindowDays, "window-days", 0, "days in the current window")
	cmd.Flags().IntVar(&payload.TopN, "top-n", 0, "number of agents to notify")
	return cmd
}

func runCmd() *cobra.Command {
	var (
		req     transport.StartSessionRequest
		minRisk float64
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline and review the coaching message interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("min-risk") {
				req.MinRisk = &minRisk
			}
			ctx, cancel := commandContext(cmd, 0)
			defer cancel()
			return withRuntime(ctx, func(ctx context.Context, rt *runtime) error {
				c := &console{
					rt:       rt,
					in:       bufio.NewReader(cmd.InOrStdin()),
					out:      cmd.OutOrStdout(),
					operator: viper.GetString("operator"),
				}
				return c.run(ctx, req)
			})
		},
	}
	cmd.Flags().StringVar(&req.Goal, "goal", "", "manager goal; asked for when empty")
	cmd.Flags().IntVar(&req.HorizonDays, "horizon", 0, "horizon in days (7-120)")
	cmd.Flags().StringVar(&req.Region, "region", "", "only agents in this region")
	cmd.Flags().IntVar(&req.WindowDays, "window-days", 0, "days in the current window")
	cmd.Flags().StringVar(&req.TargetingMode, "mode", "", "targeting mode: deterministic or delegated")
	cmd.Flags().IntVar(&req.TopN, "top-n", 0, "number of agents to target")
	cmd.Flags().Float64Var(&minRisk, "min-risk", 0, "minimum risk for deterministic targeting")
	cmd.Flags().StringVar(&req.Style, "style", "", "message style: professional, motivational or friendly")
	cmd.Flags().IntSliceVar(&req.Selected, "select", nil, "recommendation ids to use; asked for when empty")
	cmd.Flags().StringSliceVar(&req.Constraints, "constraint", nil, "constraint for the recommendations (repeatable)")
	return cmd
}

// console drives one review session from a terminal.
type console struct {
	rt       *runtime
	in       *bufio.Reader
	out      io.Writer
	operator string
}

const consoleHelp = `Commands:
  a              approve and send the draft to every target
  r [style]      regenerate, optionally in another style
  e              edit the draft (finish with a line containing only ".")
  g [levels]     send per performance group (e.g. "g low medium")
  s              show the session again
  q              quit without sending`

func (c *console) run(ctx context.Context, req transport.StartSessionRequest) error {
	goal := strings.TrimSpace(req.Goal)
	if goal == "" {
		line, err := c.prompt("Goal: ")
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		if line == "" {
			return errors.New("a goal is required")
		}
		goal = line
	}

	verdict, err := c.rt.svc.ValidateGoal(ctx, transport.ValidateGoalRequest{Goal: goal, PeriodDays: req.HorizonDays})
	if err != nil {
		return err
	}
	if !verdict.IsValid {
		fmt.Fprintln(c.out, "The goal is not specific enough:")
		for _, why := range verdict.Why {
			fmt.Fprintln(c.out, "  -", why)
		}
		if verdict.Suggestion != "" {
			answer, err := c.prompt(fmt.Sprintf("Use %q instead? [Y/n] ", verdict.Suggestion))
			if err != nil && !errors.Is(err, io.EOF) {
				return err
			}
			if answer == "" || strings.EqualFold(answer, "y") {
				goal = verdict.Suggestion
			}
		}
	}
	req.Goal = goal
	if req.HorizonDays == 0 {
		req.HorizonDays = verdict.HorizonDays
	}

	res, err := c.rt.svc.Run(ctx, req.RunRequest)
	if err != nil {
		return err
	}
	renderPreview(c.out, res.Preview)
	renderRecommendations(c.out, res.Recommendations)
	renderSelection(c.out, res.Selection)

	selected := req.Selected
	if len(selected) == 0 && len(res.Recommendations) > 1 {
		line, err := c.prompt("Recommendations to use (e.g. 1,3; empty for all): ")
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		if selected, err = parseSelection(line); err != nil {
			return err
		}
	}

	session, err := c.rt.svc.OpenSession(ctx, c.operator, res, req.Style, selected)
	if err != nil {
		return err
	}
	c.show(session)
	fmt.Fprintln(c.out, consoleHelp)

	for {
		line, err := c.prompt("> ")
		if errors.Is(err, io.EOF) {
			line = "q"
		} else if err != nil {
			return err
		}
		action, ok, err := c.parse(line)
		if err != nil {
			return err
		}
		if !ok {
			if line == "s" {
				c.show(session)
			} else if line == "q" {
				fmt.Fprintln(c.out, "Nothing was sent.")
				return nil
			} else {
				fmt.Fprintln(c.out, consoleHelp)
			}
			continue
		}

		outcome, err := c.rt.svc.ApplyAction(ctx, session.ID, c.operator, action)
		if err != nil {
			fmt.Fprintln(c.out, "error:", err)
			continue
		}
		session = outcome.Session
		if session.State.Terminal() {
			renderResults(c.out, outcome.Results)
			return nil
		}
		c.show(session)
	}
}

// parse turns a console line into an action. ok is false for console-only
// commands.
func (c *console) parse(line string) (transport.ActionRequest, bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return transport.ActionRequest{}, false, nil
	}
	switch fields[0] {
	case "a":
		return transport.ActionRequest{Type: string(approval.ActionApprove)}, true, nil
	case "r":
		req := transport.ActionRequest{Type: string(approval.ActionRegenerate)}
		if len(fields) > 1 {
			req.Style = fields[1]
		}
		return req, true, nil
	case "g":
		return transport.ActionRequest{Type: string(approval.ActionGroupSend), Levels: fields[1:]}, true, nil
	case "e":
		fmt.Fprintln(c.out, `Enter the new text, end with "." on its own line:`)
		var lines []string
		for {
			l, err := c.in.ReadString('\n')
			if err != nil && !errors.Is(err, io.EOF) {
				return transport.ActionRequest{}, false, err
			}
			l = strings.TrimRight(l, "\r\n")
			if l == "." || errors.Is(err, io.EOF) {
				break
			}
			lines = append(lines, l)
		}
		return transport.ActionRequest{Type: string(approval.ActionEdit), Text: strings.Join(lines, "\n")}, true, nil
	}
	return transport.ActionRequest{}, false, nil
}

// parseSelection reads recommendation ids separated by commas or spaces.
func parseSelection(line string) ([]int, error) {
	fields := strings.FieldsFunc(line, func(r rune) bool { return r == ',' || r == ' ' })
	ids := make([]int, 0, len(fields))
	for _, f := range fields {
		id, err := strconv.Atoi(f)
		if err != nil || id < 1 {
			return nil, fmt.Errorf("invalid recommendation number %q", f)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (c *console) prompt(label string) (string, error) {
	fmt.Fprint(c.out, label)
	line, err := c.in.ReadString('\n')
	line = strings.TrimSpace(line)
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return line, nil
		}
		return "", err
	}
	return line, nil
}

func (c *console) show(s *approval.Session) {
	fmt.Fprintf(c.out, "\n[%s] style=%s\n%s\n\n", s.State, s.Style, s.Draft)
}
