package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"wmsforge/internal/app"
	"wmsforge/internal/config"
	"wmsforge/internal/db"
	"wmsforge/internal/domain"
	"wmsforge/internal/risk"
	"wmsforge/internal/server"
	"wmsforge/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "wms",
	Short: "WMS Forge CLI",
	Long: `WMS Forge authors Work Method Statements: step-by-step method documents
with risk assessments and equipment lists for heavy-lifting and transport
projects.
Core concepts:
- Workspace: your .wmsforge directory holding the database; wmsforge.yml
  tunes the suggestion catalog.
- Project: a job site (name, location, dates) that owns its WMS documents.
- WMS: one method statement with ordered work steps, risks, and equipment.
- Steps: ordered 1..N; deleting or moving a step renumbers the rest.
- Risks: severity x likelihood on a 5x5 matrix (>=15 High, >=8 Medium),
  optionally tied to specific steps; 'wms risk matrix' draws the grid.
- Templates: save a WMS as a reusable blueprint and apply it anywhere;
  every application mints fresh ids.
- Suggestions: canned risk candidates per analysis type (lifting,
  transport, ocean, general); nothing is added until you accept them.
- Event log: diary of changes, view with 'wms log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("WMSFORGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "", "actor identifier (defaults to config author)")
	rootCmd.PersistentFlags().String("project", "", "project id (overrides current selection)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("project", rootCmd.PersistentFlags().Lookup("project"))
}

func registerCommands() {
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(wmsCmd())
	rootCmd.AddCommand(stepCmd())
	rootCmd.AddCommand(riskCmd())
	rootCmd.AddCommand(equipmentCmd())
	rootCmd.AddCommand(templateCmd())
	rootCmd.AddCommand(suggestCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectUpdateCmd())
	prj.AddCommand(projectDeleteCmd())
	prj.AddCommand(projectUseCmd())
	return prj
}

func projectCreateCmd() *cobra.Command {
	var name, location, description string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, ac *app.Context) error {
				p, err := ac.Store.CreateProject(ctx, name, location, description)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "project name")
	cmd.Flags().StringVar(&location, "location", "", "location")
	cmd.Flags().StringVar(&description, "description", "", "description")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func projectListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, ac *app.Context) error {
				items := ac.Store.Projects()
				if viper.GetBool("json") {
					return printJSON(items)
				}
				currentID := ""
				if cur, ok := ac.Store.CurrentProject(); ok {
					currentID = cur.ID
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Location", "WMS", "Current"})
				for _, p := range items {
					mark := ""
					if p.ID == currentID {
						mark = "*"
					}
					tw.AppendRow(table.Row{p.ID, p.Name, p.Location, len(p.WMSList), mark})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func projectShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, ac *app.Context) error {
				p, err := resolveProject(ac.Store)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func projectUpdateCmd() *cobra.Command {
	var name, location, description, startDate, endDate string
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, ac *app.Context) error {
				p, err := resolveProject(ac.Store)
				if err != nil {
					return err
				}
				if cmd.Flags().Changed("name") {
					p.Name = name
				}
				if cmd.Flags().Changed("location") {
					p.Location = location
				}
				if cmd.Flags().Changed("description") {
					p.Description = description
				}
				if cmd.Flags().Changed("start-date") {
					p.StartDate = startDate
				}
				if cmd.Flags().Changed("end-date") {
					p.EndDate = endDate
				}
				updated, err := ac.Store.UpdateProject(ctx, p)
				if err != nil {
					return err
				}
				return printJSONOrTable(updated)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "project name")
	cmd.Flags().StringVar(&location, "location", "", "location")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&startDate, "start-date", "", "start date (RFC3339)")
	cmd.Flags().StringVar(&endDate, "end-date", "", "end date (RFC3339)")
	return cmd
}

func projectDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, ac *app.Context) error {
				return ac.Store.DeleteProject(ctx, args[0])
			})
		},
	}
	return cmd
}

func projectUseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "use <id>",
		Short: "Select the current project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, ac *app.Context) error {
				if _, err := ac.Store.GetProject(args[0]); err != nil {
					return err
				}
				if err := ac.Store.SetCurrentProject(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("Current project set to %s\n", args[0])
				return nil
			})
		},
	}
	return cmd
}

func wmsCmd() *cobra.Command {
	w := &cobra.Command{
		Use:   "wms",
		Short: "Manage work method statements",
		Long:  "A WMS is one method document: ordered work steps, a risk register, and the equipment each step needs.",
	}
	w.AddCommand(wmsCreateCmd())
	w.AddCommand(wmsListCmd())
	w.AddCommand(wmsShowCmd())
	w.AddCommand(wmsUpdateCmd())
	w.AddCommand(wmsDeleteCmd())
	return w
}

func wmsCreateCmd() *cobra.Command {
	var title, scope string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a WMS in the current project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, ac *app.Context) error {
				p, err := resolveProject(ac.Store)
				if err != nil {
					return err
				}
				w, err := ac.Store.CreateWMS(ctx, p.ID, title, scope)
				if err != nil {
					return err
				}
				return printJSONOrTable(w)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "document title")
	cmd.Flags().StringVar(&scope, "scope", "", "scope of work")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func wmsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List WMS documents in the current project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, ac *app.Context) error {
				p, err := resolveProject(ac.Store)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(p.WMSList)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Steps", "Risks", "High"})
				for _, w := range p.WMSList {
					high := 0
					for _, r := range w.Risks {
						if risk.Score(r.Severity, r.Likelihood) == risk.High {
							high++
						}
					}
					tw.AppendRow(table.Row{w.ID, w.Title, len(w.Steps), len(w.Risks), high})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func wmsShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <wms-id>",
		Short: "Show a WMS",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, ac *app.Context) error {
				p, err := resolveProject(ac.Store)
				if err != nil {
					return err
				}
				w, err := ac.Store.GetWMS(p.ID, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(w)
			})
		},
	}
	return cmd
}

func wmsUpdateCmd() *cobra.Command {
	var title, scope string
	var tags []string
	cmd := &cobra.Command{
		Use:   "update <wms-id>",
		Short: "Update WMS title, scope, or tags",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, ac *app.Context) error {
				p, err := resolveProject(ac.Store)
				if err != nil {
					return err
				}
				w, err := ac.Store.GetWMS(p.ID, args[0])
				if err != nil {
					return err
				}
				if cmd.Flags().Changed("title") {
					w.Title = title
				}
				if cmd.Flags().Changed("scope") {
					w.Scope = scope
				}
				if cmd.Flags().Changed("tag") {
					w.Tags = tags
				}
				updated, err := ac.Store.UpdateWMS(ctx, w)
				if err != nil {
					return err
				}
				return printJSONOrTable(updated)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "document title")
	cmd.Flags().StringVar(&scope, "scope", "", "scope of work")
	cmd.Flags().StringArrayVar(&tags, "tag", []string{}, "tag (repeatable, replaces existing)")
	return cmd
}

func wmsDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <wms-id>",
		Short: "Delete a WMS",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, ac *app.Context) error {
				p, err := resolveProject(ac.Store)
				if err != nil {
					return err
				}
				return ac.Store.DeleteWMS(ctx, p.ID, args[0])
			})
		},
	}
	return cmd
}

func stepCmd() *cobra.Command {
	st := &cobra.Command{
		Use:   "step",
		Short: "Manage work steps",
		Long:  "Steps are the ordered actions of a WMS. Order stays a dense 1..N: deletions renumber, and moves reposition.",
	}
	st.AddCommand(stepAddCmd())
	st.AddCommand(stepListCmd())
	st.AddCommand(stepUpdateCmd())
	st.AddCommand(stepMoveCmd())
	st.AddCommand(stepDeleteCmd())
	return st
}

func stepAddCmd() *cobra.Command {
	var wmsID, title, description, notes string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Append a work step",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, ac *app.Context) error {
				p, err := resolveProject(ac.Store)
				if err != nil {
					return err
				}
				s, err := ac.Store.AddStep(ctx, p.ID, wmsID, title, description, notes)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringVar(&wmsID, "wms", "", "wms id")
	cmd.Flags().StringVar(&title, "title", "", "step title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&notes, "notes", "", "notes")
	_ = cmd.MarkFlagRequired("wms")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func stepListCmd() *cobra.Command {
	var wmsID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List steps of a WMS",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, ac *app.Context) error {
				p, err := resolveProject(ac.Store)
				if err != nil {
					return err
				}
				w, err := ac.Store.GetWMS(p.ID, wmsID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(w.Steps)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"#", "ID", "Title", "Equipment"})
				for _, s := range w.Steps {
					tw.AppendRow(table.Row{s.Order, s.ID, s.Title, len(s.Equipment)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&wmsID, "wms", "", "wms id")
	_ = cmd.MarkFlagRequired("wms")
	return cmd
}

func stepUpdateCmd() *cobra.Command {
	var wmsID, title, description, notes string
	cmd := &cobra.Command{
		Use:   "update <step-id>",
		Short: "Update a work step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, ac *app.Context) error {
				p, err := resolveProject(ac.Store)
				if err != nil {
					return err
				}
				w, err := ac.Store.GetWMS(p.ID, wmsID)
				if err != nil {
					return err
				}
				var target *domain.WorkStep
				for i := range w.Steps {
					if w.Steps[i].ID == args[0] {
						target = &w.Steps[i]
						break
					}
				}
				if target == nil {
					return fmt.Errorf("step %s: %w", args[0], store.ErrNotFound)
				}
				if cmd.Flags().Changed("title") {
					target.Title = title
				}
				if cmd.Flags().Changed("description") {
					target.Description = description
				}
				if cmd.Flags().Changed("notes") {
					target.Notes = notes
				}
				updated, err := ac.Store.UpdateStep(ctx, p.ID, wmsID, *target)
				if err != nil {
					return err
				}
				return printJSONOrTable(updated)
			})
		},
	}
	cmd.Flags().StringVar(&wmsID, "wms", "", "wms id")
	cmd.Flags().StringVar(&title, "title", "", "step title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&notes, "notes", "", "notes")
	_ = cmd.MarkFlagRequired("wms")
	return cmd
}

func stepMoveCmd() *cobra.Command {
	var wmsID string
	var position int
	cmd := &cobra.Command{
		Use:   "move <step-id>",
		Short: "Move a step to a new position",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, ac *app.Context) error {
				p, err := resolveProject(ac.Store)
				if err != nil {
					return err
				}
				if err := ac.Store.MoveStep(ctx, p.ID, wmsID, args[0], position); err != nil {
					return err
				}
				w, err := ac.Store.GetWMS(p.ID, wmsID)
				if err != nil {
					return err
				}
				return printJSONOrTable(w.Steps)
			})
		},
	}
	cmd.Flags().StringVar(&wmsID, "wms", "", "wms id")
	cmd.Flags().IntVar(&position, "to", 1, "1-based target position")
	_ = cmd.MarkFlagRequired("wms")
	return cmd
}

func stepDeleteCmd() *cobra.Command {
	var wmsID string
	cmd := &cobra.Command{
		Use:   "delete <step-id>",
		Short: "Delete a work step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, ac *app.Context) error {
				p, err := resolveProject(ac.Store)
				if err != nil {
					return err
				}
				return ac.Store.DeleteStep(ctx, p.ID, wmsID, args[0])
			})
		},
	}
	cmd.Flags().StringVar(&wmsID, "wms", "", "wms id")
	_ = cmd.MarkFlagRequired("wms")
	return cmd
}

func riskCmd() *cobra.Command {
	r := &cobra.Command{
		Use:   "risk",
		Short: "Manage risks",
		Long:  "Risks score severity x likelihood on a 5x5 matrix: 15+ is High, 8-14 Medium, below 8 Low. A risk may be tied to specific steps or apply to the whole WMS.",
	}
	r.AddCommand(riskAddCmd())
	r.AddCommand(riskListCmd())
	r.AddCommand(riskUpdateCmd())
	r.AddCommand(riskDeleteCmd())
	r.AddCommand(riskMatrixCmd())
	return r
}

func riskAddCmd() *cobra.Command {
	var wmsID, category, description, mitigation string
	var severity, likelihood int
	var steps []string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a risk",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, ac *app.Context) error {
				p, err := resolveProject(ac.Store)
				if err != nil {
					return err
				}
				r, err := ac.Store.AddRisk(ctx, p.ID, wmsID, domain.Risk{
					Type:              domain.RiskCategory(category),
					Description:       description,
					Severity:          severity,
					Likelihood:        likelihood,
					Mitigation:        mitigation,
					AssociatedStepIDs: steps,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(r)
			})
		},
	}
	cmd.Flags().StringVar(&wmsID, "wms", "", "wms id")
	cmd.Flags().StringVar(&category, "category", "General", "risk category (Lifting, Transport, OceanFreight, General)")
	cmd.Flags().StringVar(&description, "description", "", "what can go wrong")
	cmd.Flags().IntVar(&severity, "severity", 3, "severity 1-5")
	cmd.Flags().IntVar(&likelihood, "likelihood", 3, "likelihood 1-5")
	cmd.Flags().StringVar(&mitigation, "mitigation", "", "how it is controlled")
	cmd.Flags().StringArrayVar(&steps, "step", []string{}, "associated step id (repeatable)")
	_ = cmd.MarkFlagRequired("wms")
	_ = cmd.MarkFlagRequired("description")
	_ = cmd.MarkFlagRequired("mitigation")
	return cmd
}

func riskListCmd() *cobra.Command {
	var wmsID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List risks of a WMS",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, ac *app.Context) error {
				p, err := resolveProject(ac.Store)
				if err != nil {
					return err
				}
				w, err := ac.Store.GetWMS(p.ID, wmsID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(w.Risks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Category", "Description", "SxL", "Level", "Steps", "Source"})
				for _, r := range w.Risks {
					scope := "general"
					if len(r.AssociatedStepIDs) > 0 {
						scope = strings.Join(r.AssociatedStepIDs, ",")
					}
					tw.AppendRow(table.Row{
						r.ID, r.Type, r.Description,
						fmt.Sprintf("%dx%d", r.Severity, r.Likelihood),
						risk.Score(r.Severity, r.Likelihood), scope, r.Source,
					})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&wmsID, "wms", "", "wms id")
	_ = cmd.MarkFlagRequired("wms")
	return cmd
}

func riskUpdateCmd() *cobra.Command {
	var wmsID, category, description, mitigation string
	var severity, likelihood int
	var steps []string
	cmd := &cobra.Command{
		Use:   "update <risk-id>",
		Short: "Update a risk",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, ac *app.Context) error {
				p, err := resolveProject(ac.Store)
				if err != nil {
					return err
				}
				w, err := ac.Store.GetWMS(p.ID, wmsID)
				if err != nil {
					return err
				}
				var target *domain.Risk
				for i := range w.Risks {
					if w.Risks[i].ID == args[0] {
						target = &w.Risks[i]
						break
					}
				}
				if target == nil {
					return fmt.Errorf("risk %s: %w", args[0], store.ErrNotFound)
				}
				if cmd.Flags().Changed("category") {
					target.Type = domain.RiskCategory(category)
				}
				if cmd.Flags().Changed("description") {
					target.Description = description
				}
				if cmd.Flags().Changed("severity") {
					target.Severity = severity
				}
				if cmd.Flags().Changed("likelihood") {
					target.Likelihood = likelihood
				}
				if cmd.Flags().Changed("mitigation") {
					target.Mitigation = mitigation
				}
				if cmd.Flags().Changed("step") {
					target.AssociatedStepIDs = steps
				}
				updated, err := ac.Store.UpdateRisk(ctx, p.ID, wmsID, *target)
				if err != nil {
					return err
				}
				return printJSONOrTable(updated)
			})
		},
	}
	cmd.Flags().StringVar(&wmsID, "wms", "", "wms id")
	cmd.Flags().StringVar(&category, "category", "", "risk category")
	cmd.Flags().StringVar(&description, "description", "", "what can go wrong")
	cmd.Flags().IntVar(&severity, "severity", 0, "severity 1-5")
	cmd.Flags().IntVar(&likelihood, "likelihood", 0, "likelihood 1-5")
	cmd.Flags().StringVar(&mitigation, "mitigation", "", "how it is controlled")
	cmd.Flags().StringArrayVar(&steps, "step", []string{}, "associated step id (repeatable, replaces existing)")
	_ = cmd.MarkFlagRequired("wms")
	return cmd
}

func riskDeleteCmd() *cobra.Command {
	var wmsID string
	cmd := &cobra.Command{
		Use:   "delete <risk-id>",
		Short: "Delete a risk",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, ac *app.Context) error {
				p, err := resolveProject(ac.Store)
				if err != nil {
					return err
				}
				return ac.Store.DeleteRisk(ctx, p.ID, wmsID, args[0])
			})
		},
	}
	cmd.Flags().StringVar(&wmsID, "wms", "", "wms id")
	_ = cmd.MarkFlagRequired("wms")
	return cmd
}

func riskMatrixCmd() *cobra.Command {
	var wmsID string
	cmd := &cobra.Command{
		Use:   "matrix",
		Short: "Draw the 5x5 risk matrix",
		Long:  "Rows are likelihood (5 at top), columns severity. Cells show the level, plus the count of matching risks when --wms is given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, ac *app.Context) error {
				counts := map[[2]int]int{}
				if wmsID != "" {
					p, err := resolveProject(ac.Store)
					if err != nil {
						return err
					}
					w, err := ac.Store.GetWMS(p.ID, wmsID)
					if err != nil {
						return err
					}
					for _, r := range w.Risks {
						counts[[2]int{r.Severity, r.Likelihood}]++
					}
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				header := table.Row{"L \\ S"}
				for s := risk.MinRating; s <= risk.MaxRating; s++ {
					header = append(header, s)
				}
				tw.AppendHeader(header)
				for l := risk.MaxRating; l >= risk.MinRating; l-- {
					row := table.Row{l}
					for s := risk.MinRating; s <= risk.MaxRating; s++ {
						cell := string(risk.Score(s, l))
						if n := counts[[2]int{s, l}]; n > 0 {
							cell = fmt.Sprintf("%s (%d)", cell, n)
						}
						row = append(row, cell)
					}
					tw.AppendRow(row)
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&wmsID, "wms", "", "wms id (optional, overlays risk counts)")
	return cmd
}

func equipmentCmd() *cobra.Command {
	eq := &cobra.Command{
		Use:   "equipment",
		Short: "Manage step equipment",
	}
	eq.AddCommand(equipmentAddCmd())
	eq.AddCommand(equipmentRemoveCmd())
	eq.AddCommand(equipmentSummaryCmd())
	return eq
}

func equipmentAddCmd() *cobra.Command {
	var wmsID, stepID, name, category, icon string
	var quantity int
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Attach equipment to a step",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, ac *app.Context) error {
				p, err := resolveProject(ac.Store)
				if err != nil {
					return err
				}
				eq, err := ac.Store.AddEquipment(ctx, p.ID, wmsID, stepID, domain.Equipment{
					Name:     name,
					Category: domain.EquipmentCategory(category),
					Quantity: quantity,
					Icon:     icon,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(eq)
			})
		},
	}
	cmd.Flags().StringVar(&wmsID, "wms", "", "wms id")
	cmd.Flags().StringVar(&stepID, "step", "", "step id")
	cmd.Flags().StringVar(&name, "name", "", "equipment name")
	cmd.Flags().StringVar(&category, "category", "tool", "category (crane, truck, ppe, container, tool, vehicle)")
	cmd.Flags().IntVar(&quantity, "quantity", 1, "quantity")
	cmd.Flags().StringVar(&icon, "icon", "", "icon name")
	_ = cmd.MarkFlagRequired("wms")
	_ = cmd.MarkFlagRequired("step")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func equipmentRemoveCmd() *cobra.Command {
	var wmsID, stepID string
	cmd := &cobra.Command{
		Use:   "remove <equipment-id>",
		Short: "Detach equipment from a step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, ac *app.Context) error {
				p, err := resolveProject(ac.Store)
				if err != nil {
					return err
				}
				return ac.Store.RemoveEquipment(ctx, p.ID, wmsID, stepID, args[0])
			})
		},
	}
	cmd.Flags().StringVar(&wmsID, "wms", "", "wms id")
	cmd.Flags().StringVar(&stepID, "step", "", "step id")
	_ = cmd.MarkFlagRequired("wms")
	_ = cmd.MarkFlagRequired("step")
	return cmd
}

func equipmentSummaryCmd() *cobra.Command {
	var wmsID string
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Aggregate equipment across all steps of a WMS",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, ac *app.Context) error {
				p, err := resolveProject(ac.Store)
				if err != nil {
					return err
				}
				w, err := ac.Store.GetWMS(p.ID, wmsID)
				if err != nil {
					return err
				}
				agg := domain.AggregateEquipment(w)
				if viper.GetBool("json") {
					return printJSON(agg)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Category", "Name", "Quantity"})
				for _, cat := range domain.EquipmentCategories {
					for _, eq := range agg[cat] {
						tw.AppendRow(table.Row{cat, eq.Name, eq.Quantity})
					}
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&wmsID, "wms", "", "wms id")
	_ = cmd.MarkFlagRequired("wms")
	return cmd
}

func templateCmd() *cobra.Command {
	t := &cobra.Command{
		Use:   "template",
		Short: "Manage WMS templates",
		Long:  "Templates are reusable blueprints. Saving strips identity; applying mints fresh ids every time, so instances never share state with the template or each other.",
	}
	t.AddCommand(templateSaveCmd())
	t.AddCommand(templateListCmd())
	t.AddCommand(templateShowCmd())
	t.AddCommand(templateApplyCmd())
	t.AddCommand(templateDeleteCmd())
	return t
}

func templateSaveCmd() *cobra.Command {
	var wmsID, title string
	cmd := &cobra.Command{
		Use:   "save",
		Short: "Save a WMS as a template",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, ac *app.Context) error {
				p, err := resolveProject(ac.Store)
				if err != nil {
					return err
				}
				w, err := ac.Store.GetWMS(p.ID, wmsID)
				if err != nil {
					return err
				}
				t, err := ac.Store.SaveAsTemplate(ctx, w, title)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&wmsID, "wms", "", "wms id")
	cmd.Flags().StringVar(&title, "title", "", "template title (defaults to \"<wms title> Template\")")
	_ = cmd.MarkFlagRequired("wms")
	return cmd
}

func templateListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, ac *app.Context) error {
				items := ac.Store.Templates()
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Steps", "Risks"})
				for _, t := range items {
					tw.AppendRow(table.Row{t.ID, t.Title, len(t.WMS.Steps), len(t.WMS.Risks)})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func templateShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <template-id>",
		Short: "Show a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, ac *app.Context) error {
				t, err := ac.Store.GetTemplate(args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func templateApplyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply <template-id>",
		Short: "Instantiate a template into the current project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, ac *app.Context) error {
				p, err := resolveProject(ac.Store)
				if err != nil {
					return err
				}
				w, err := ac.Store.ApplyTemplate(ctx, p.ID, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(w)
			})
		},
	}
	return cmd
}

func templateDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <template-id>",
		Short: "Delete a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, ac *app.Context) error {
				return ac.Store.DeleteTemplate(ctx, args[0])
			})
		},
	}
	return cmd
}

func suggestCmd() *cobra.Command {
	var wmsID, analysis string
	var accept bool
	cmd := &cobra.Command{
		Use:   "suggest",
		Short: "Suggest risks for a WMS",
		Long:  "Draft risk candidates from the canned catalog. Candidates are only printed unless --accept adds them, each with a fresh id and the ai source marker.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, ac *app.Context) error {
				p, err := resolveProject(ac.Store)
				if err != nil {
					return err
				}
				w, err := ac.Store.GetWMS(p.ID, wmsID)
				if err != nil {
					return err
				}
				candidates, err := ac.Suggester.SuggestRisks(ctx, w, analysis)
				if err != nil {
					return err
				}
				if accept {
					added := make([]domain.Risk, 0, len(candidates))
					for _, c := range candidates {
						r, err := ac.Store.AddRisk(ctx, p.ID, wmsID, c)
						if err != nil {
							return err
						}
						added = append(added, r)
					}
					return printJSONOrTable(added)
				}
				if viper.GetBool("json") {
					return printJSON(candidates)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Category", "Description", "SxL", "Level", "Mitigation"})
				for _, c := range candidates {
					tw.AppendRow(table.Row{
						c.Type, c.Description,
						fmt.Sprintf("%dx%d", c.Severity, c.Likelihood),
						risk.Score(c.Severity, c.Likelihood), c.Mitigation,
					})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&wmsID, "wms", "", "wms id")
	cmd.Flags().StringVar(&analysis, "analysis", "general", "analysis type (lifting, transport, ocean, general)")
	cmd.Flags().BoolVar(&accept, "accept", false, "add all candidates to the WMS")
	_ = cmd.MarkFlagRequired("wms")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect workspace config",
		Long:  "wmsforge.yml holds the author id and the suggestion catalog. Missing files fall back to built-in defaults.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, ac *app.Context) error {
				return printJSONOrTable(ac.Config)
			})
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate workspace config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of every mutation: project, WMS, step, risk, equipment, and template changes.",
	}
	lg.AddCommand(logTailCmd())
	return lg
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, ac *app.Context) error {
				items, err := ac.Events.Latest(ctx, n, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, ac *app.Context) error {
				authCfg := server.AuthConfig{
					JWTSecret:    os.Getenv("WMSFORGE_JWT_SECRET"),
					DefaultActor: ac.Config.Author.ID,
				}
				handler, err := server.New(server.Config{
					Store:     ac.Store,
					Suggester: ac.Suggester,
					Events:    ac.Events,
					BasePath:  basePath,
					Auth:      authCfg,
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				mode := "open (set WMSFORGE_JWT_SECRET to require bearer tokens)"
				if authCfg.JWTSecret != "" {
					mode = "bearer auth"
				}
				fmt.Printf("Serving WMS Forge API on http://%s%s (%s, OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, mode, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func withApp(ctx context.Context, fn func(context.Context, *app.Context) error) error {
	ac, err := app.Resolve(viper.GetString("workspace"), viper.GetString("actor-id"))
	if err != nil {
		return err
	}
	defer ac.Close()
	return fn(ctx, ac)
}

// resolveProject prefers --project, then the persisted current selection.
func resolveProject(s *store.Store) (domain.Project, error) {
	if id := strings.TrimSpace(viper.GetString("project")); id != "" {
		return s.GetProject(id)
	}
	if p, ok := s.CurrentProject(); ok {
		return p, nil
	}
	return domain.Project{}, fmt.Errorf("no project selected; use --project or 'wms project use <id>'")
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
