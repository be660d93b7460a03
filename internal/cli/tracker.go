package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"ReqTrack/internal/dynfield"
	"ReqTrack/internal/output"
	"ReqTrack/internal/tracker"
)

func addPageFlags(cmd *cobra.Command) {
	cmd.Flags().Int("skip", 0, "пропустить записей")
	cmd.Flags().Int("limit", 100, "максимум записей")
}

func pageFlags(cmd *cobra.Command) tracker.Page {
	skip, _ := cmd.Flags().GetInt("skip")
	limit, _ := cmd.Flags().GetInt("limit")
	return tracker.Page{Skip: skip, Limit: limit}
}

func (a *App) newProjectsCmd() *cobra.Command {
	projectsCmd := &cobra.Command{
		Use:     "projects",
		Aliases: []string{"project"},
		Short:   "Проекты",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Список проектов",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.handleProjectsList(cmd)
		},
	}
	listCmd.Flags().String("status", "", "статус")
	listCmd.Flags().String("priority", "", "приоритет")
	listCmd.Flags().String("client", "", "клиент")
	listCmd.Flags().String("active", "", "фильтр по активности (true, false)")
	listCmd.Flags().StringP("search", "s", "", "поиск по названию и описанию")
	addPageFlags(listCmd)

	getCmd := &cobra.Command{
		Use:   "get [id]",
		Short: "Показать проект",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.handleProjectsGet(cmd, args[0])
		},
	}

	summaryCmd := &cobra.Command{
		Use:   "summary [id]",
		Short: "Отчет по проекту",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.handleProjectsSummary(cmd, args[0])
		},
	}

	projectsCmd.AddCommand(listCmd, getCmd, summaryCmd)
	return projectsCmd
}

func (a *App) handleProjectsList(cmd *cobra.Command) error {
	ctx := cmd.Context()
	if _, err := a.requireSession(ctx); err != nil {
		return handleError(err, cmd, a.logger)
	}

	rawActive, _ := cmd.Flags().GetString("active")
	active, err := parseBoolFilter(rawActive)
	if err != nil {
		return handleError(err, cmd, a.logger)
	}
	filter := tracker.ProjectFilter{IsActive: active, Page: pageFlags(cmd)}
	filter.Status, _ = cmd.Flags().GetString("status")
	filter.Priority, _ = cmd.Flags().GetString("priority")
	filter.ClientName, _ = cmd.Flags().GetString("client")
	filter.Search, _ = cmd.Flags().GetString("search")

	projects, err := a.tracker.ListProjects(ctx, filter)
	if err != nil {
		return handleError(err, cmd, a.logger)
	}
	return a.printer.Print(projects, func() *output.TableData {
		table := output.NewTableData("ID", "NAME", "STATUS", "PRIORITY", "CLIENT", "REQUIREMENTS", "PROGRESS")
		table.Empty = "No projects found"
		for _, p := range projects {
			style := output.StyleDefault
			if !p.IsActive {
				style = output.StyleMuted
			}
			table.AddRowWithStyle(style,
				p.ID,
				output.Truncate(p.Name, 40),
				p.Status,
				p.Priority,
				p.ClientName,
				fmt.Sprintf("%d/%d", p.CompletedRequirementsCount, p.RequirementsCount),
				percent(p.ProgressPercentage),
			)
		}
		return table
	})
}

func (a *App) handleProjectsGet(cmd *cobra.Command, id string) error {
	ctx := cmd.Context()
	if _, err := a.requireSession(ctx); err != nil {
		return handleError(err, cmd, a.logger)
	}

	detail, err := a.tracker.GetProjectDetail(ctx, id, a.fields)
	if err != nil {
		return handleError(err, cmd, a.logger)
	}
	p := detail.Project
	if a.printer.Structured() {
		view := ProjectView{Project: p}
		view.Fields, view.Missing = fieldViews(detail.Fields)
		return a.printer.Print(view, nil)
	}

	table := output.KeyValue(
		"ID", p.ID,
		"Name", p.Name,
		"Description", p.Description,
		"Status", p.Status,
		"Priority", p.Priority,
		"Client", p.ClientName,
		"Start", p.StartDate,
		"End", p.EndDate,
		"Budget", p.Budget,
		"Active", output.YesNo(p.IsActive),
		"Requirements", fmt.Sprintf("%d/%d", p.CompletedRequirementsCount, p.RequirementsCount),
		"Progress", percent(p.ProgressPercentage),
		"Created", p.CreatedAt,
	)
	if err := a.printer.Print(p, func() *output.TableData { return table }); err != nil {
		return err
	}
	return a.printDynamicFields(detail.Fields)
}

func (a *App) handleProjectsSummary(cmd *cobra.Command, id string) error {
	ctx := cmd.Context()
	if _, err := a.requireSession(ctx); err != nil {
		return handleError(err, cmd, a.logger)
	}

	summary, err := a.tracker.ProjectSummary(ctx, id)
	if err != nil {
		return handleError(err, cmd, a.logger)
	}
	return a.printer.Print(summary, func() *output.TableData {
		s := summary.Statistics
		table := output.KeyValue(
			"Project", summary.Project.Name,
			"Requirements", strconv.Itoa(s.TotalRequirements),
			"Completed", strconv.Itoa(s.CompletedRequirements),
			"Overdue", strconv.Itoa(s.OverdueRequirements),
			"Completion", percent(s.CompletionRate),
		)
		addBreakdown(table, "By status", summary.RequirementsByStatus)
		addBreakdown(table, "By type", summary.RequirementsByType)
		addBreakdown(table, "By priority", summary.RequirementsByPriority)
		return table
	})
}

func (a *App) newRequirementsCmd() *cobra.Command {
	requirementsCmd := &cobra.Command{
		Use:     "requirements",
		Aliases: []string{"requirement", "req"},
		Short:   "Требования",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Список требований",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.handleRequirementsList(cmd)
		},
	}
	listCmd.Flags().String("project", "", "идентификатор проекта")
	listCmd.Flags().String("type", "", "тип")
	listCmd.Flags().String("priority", "", "приоритет")
	listCmd.Flags().String("status", "", "статус")
	listCmd.Flags().String("complexity", "", "сложность")
	listCmd.Flags().String("assigned-to", "", "исполнитель")
	listCmd.Flags().String("overdue", "", "фильтр по просрочке (true, false)")
	listCmd.Flags().StringP("search", "s", "", "поиск по заголовку и описанию")
	addPageFlags(listCmd)

	getCmd := &cobra.Command{
		Use:   "get [id]",
		Short: "Показать требование",
		Long:  `Показывает требование и значения его динамических полей по текущей схеме.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.handleRequirementsGet(cmd, args[0])
		},
	}

	requirementsCmd.AddCommand(listCmd, getCmd)
	return requirementsCmd
}

func (a *App) handleRequirementsList(cmd *cobra.Command) error {
	ctx := cmd.Context()
	if _, err := a.requireSession(ctx); err != nil {
		return handleError(err, cmd, a.logger)
	}

	rawOverdue, _ := cmd.Flags().GetString("overdue")
	overdue, err := parseBoolFilter(rawOverdue)
	if err != nil {
		return handleError(err, cmd, a.logger)
	}
	filter := tracker.RequirementFilter{IsOverdue: overdue, Page: pageFlags(cmd)}
	filter.ProjectID, _ = cmd.Flags().GetString("project")
	filter.Type, _ = cmd.Flags().GetString("type")
	filter.Priority, _ = cmd.Flags().GetString("priority")
	filter.Status, _ = cmd.Flags().GetString("status")
	filter.Complexity, _ = cmd.Flags().GetString("complexity")
	filter.AssignedTo, _ = cmd.Flags().GetString("assigned-to")
	filter.Search, _ = cmd.Flags().GetString("search")

	requirements, err := a.tracker.ListRequirements(ctx, filter)
	if err != nil {
		return handleError(err, cmd, a.logger)
	}
	return a.printer.Print(requirements, func() *output.TableData {
		table := output.NewTableData("ID", "TITLE", "TYPE", "PRIORITY", "STATUS", "DUE", "PROGRESS")
		table.Empty = "No requirements found"
		for _, r := range requirements {
			style := output.StyleDefault
			if r.IsOverdue {
				style = output.StyleError
			}
			table.AddRowWithStyle(style,
				r.ID,
				output.Truncate(r.Title, 40),
				r.Type,
				r.Priority,
				r.Status,
				r.DueDate,
				percent(r.ProgressPercentage),
			)
		}
		return table
	})
}

// RequirementView требование со значениями динамических полей для json/yaml
type RequirementView struct {
	tracker.Requirement
	Fields []FieldValueView `json:"fields"`
	// Missing обязательные активные поля без значения
	Missing []string `json:"missing_required,omitempty"`
}

// ProjectView проект со значениями динамических полей для json/yaml
type ProjectView struct {
	tracker.Project
	Fields  []FieldValueView `json:"fields"`
	Missing []string         `json:"missing_required,omitempty"`
}

// FieldValueView значение динамического поля для json/yaml
type FieldValueView struct {
	Name    string      `json:"name"`
	Label   string      `json:"label"`
	Value   interface{} `json:"value"`
	Status  string      `json:"status"`
	Problem string      `json:"problem,omitempty"`
}

func fieldViews(in dynfield.Interpretation) ([]FieldValueView, []string) {
	views := make([]FieldValueView, 0, len(in.Values))
	for _, v := range in.Values {
		views = append(views, FieldValueView{
			Name:    v.Name,
			Label:   v.Label,
			Value:   v.Raw,
			Status:  string(v.Status),
			Problem: v.Problem,
		})
	}
	var missing []string
	for _, def := range in.Missing {
		missing = append(missing, def.FieldName)
	}
	return views, missing
}

func (a *App) handleRequirementsGet(cmd *cobra.Command, id string) error {
	ctx := cmd.Context()
	if _, err := a.requireSession(ctx); err != nil {
		return handleError(err, cmd, a.logger)
	}

	detail, err := a.tracker.GetRequirementDetail(ctx, id, a.fields)
	if err != nil {
		return handleError(err, cmd, a.logger)
	}
	r := detail.Requirement
	if a.printer.Structured() {
		view := RequirementView{Requirement: r}
		view.Fields, view.Missing = fieldViews(detail.Fields)
		return a.printer.Print(view, nil)
	}

	table := output.KeyValue(
		"ID", r.ID,
		"Title", r.Title,
		"Description", r.Description,
		"Project", r.ProjectID,
		"Type", r.Type,
		"Priority", r.Priority,
		"Status", r.Status,
		"Complexity", r.Complexity,
		"Assigned to", r.AssignedTo,
		"Due", r.DueDate,
		"Overdue", output.YesNo(r.IsOverdue),
		"Progress", percent(r.ProgressPercentage),
		"Created", r.CreatedAt,
	)
	if err := a.printer.Print(r, func() *output.TableData { return table }); err != nil {
		return err
	}
	return a.printDynamicFields(detail.Fields)
}

// printDynamicFields выводит таблицу значений динамических полей
func (a *App) printDynamicFields(in dynfield.Interpretation) error {
	if len(in.Values) == 0 && len(in.Missing) == 0 {
		return nil
	}

	table := output.NewTableData("FIELD", "VALUE", "STATUS")
	for _, v := range in.Values {
		style := output.StyleDefault
		status := string(v.Status)
		switch {
		case v.Problem != "":
			style = output.StyleError
			status = v.Problem
		case v.Status == dynfield.ValueInactive:
			style = output.StyleMuted
		case v.Status == dynfield.ValueOrphan:
			style = output.StyleWarning
			status = "orphan (field deleted)"
		}
		table.AddRowWithStyle(style, v.Label, dynfield.FormatValue(v.Raw), status)
	}
	for _, def := range in.Missing {
		table.AddRowWithStyle(output.StyleError, def.Label(), "", "required, missing")
	}

	fmt.Fprintln(a.printer.Out)
	return a.printer.Print(nil, func() *output.TableData { return table })
}

func (a *App) newUsersCmd() *cobra.Command {
	usersCmd := &cobra.Command{
		Use:     "users",
		Aliases: []string{"user"},
		Short:   "Пользователи",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Список пользователей",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.handleUsersList(cmd)
		},
	}
	addPageFlags(listCmd)

	usersCmd.AddCommand(listCmd)
	return usersCmd
}

func (a *App) handleUsersList(cmd *cobra.Command) error {
	ctx := cmd.Context()
	if _, err := a.requireSession(ctx); err != nil {
		return handleError(err, cmd, a.logger)
	}

	users, err := a.tracker.ListUsers(ctx, pageFlags(cmd))
	if err != nil {
		return handleError(err, cmd, a.logger)
	}
	return a.printer.Print(users, func() *output.TableData {
		table := output.NewTableData("ID", "USERNAME", "NAME", "EMAIL", "ROLE", "ACTIVE")
		table.Empty = "No users found"
		for i := range users {
			u := &users[i]
			style := output.StyleDefault
			if !u.IsActive {
				style = output.StyleMuted
			}
			table.AddRowWithStyle(style, u.ID, u.Username, u.DisplayName(), u.Email, u.Role, output.YesNo(u.IsActive))
		}
		return table
	})
}

func (a *App) newDashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Сводный отчет",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.handleDashboard(cmd)
		},
	}
}

func (a *App) handleDashboard(cmd *cobra.Command) error {
	ctx := cmd.Context()
	if _, err := a.requireSession(ctx); err != nil {
		return handleError(err, cmd, a.logger)
	}

	d, err := a.tracker.Dashboard(ctx)
	if err != nil {
		return handleError(err, cmd, a.logger)
	}
	return a.printer.Print(d, func() *output.TableData {
		s := d.Summary
		table := output.KeyValue(
			"Projects", strconv.Itoa(s.TotalProjects),
			"Active projects", strconv.Itoa(s.ActiveProjects),
			"Requirements", strconv.Itoa(s.TotalRequirements),
			"Completed", strconv.Itoa(s.CompletedRequirements),
			"Overdue", strconv.Itoa(s.OverdueRequirements),
			"New projects (30 days)", strconv.Itoa(s.RecentProjects),
			"New requirements (30 days)", strconv.Itoa(s.RecentRequirements),
		)
		addBreakdown(table, "Projects by status", d.ProjectsByStatus)
		addBreakdown(table, "Requirements by status", d.RequirementsByStatus)
		addBreakdown(table, "Requirements by type", d.RequirementsByType)
		addBreakdown(table, "Requirements by priority", d.RequirementsByPriority)
		return table
	})
}

func addBreakdown(table *output.TableData, title string, b tracker.Breakdown) {
	if len(b) == 0 {
		return
	}
	table.AddRowWithStyle(output.StyleMuted, title+":", "")
	for _, c := range b {
		table.AddRow("  "+c.Key, strconv.Itoa(c.Count))
	}
}

func percent(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64) + "%"
}
