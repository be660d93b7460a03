package cli

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	pkgerrors "ReqTrack/pkg/errors"

	"ReqTrack/internal/dynfield"
	"ReqTrack/internal/output"
)

func (a *App) newFieldsCmd() *cobra.Command {
	fieldsCmd := &cobra.Command{
		Use:     "fields",
		Aliases: []string{"field"},
		Short:   "Администрирование динамических полей",
		Long: `Команды для управления определениями динамических полей:
просмотр, создание, изменение, удаление, активация и деактивация.`,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Список полей",
		Long:  `Отображает определения полей в порядке сущности, номера и времени создания.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.handleFieldsList(cmd)
		},
	}
	listCmd.Flags().String("applies-to", "", "сущность (requirement, project, user)")
	listCmd.Flags().String("active", "", "фильтр по активности (true, false)")

	getCmd := &cobra.Command{
		Use:   "get [id]",
		Short: "Показать поле",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.handleFieldsGet(cmd, args[0])
		},
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Создать поле",
		Long: `Создает определение поля. Для типа select нужен хотя бы один --option.
После создания список полей перечитывается с сервера.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.handleFieldsCreate(cmd)
		},
	}
	addDefinitionFlags(createCmd)
	createCmd.MarkFlagRequired("name")
	createCmd.MarkFlagRequired("type")

	updateCmd := &cobra.Command{
		Use:   "update [id]",
		Short: "Изменить поле",
		Long:  `Изменяет переданные флагами свойства поля, остальные остаются прежними.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.handleFieldsUpdate(cmd, args[0])
		},
	}
	addDefinitionFlags(updateCmd)

	deleteCmd := &cobra.Command{
		Use:   "delete [id]",
		Short: "Удалить поле",
		Long:  `Безвозвратно удаляет определение поля после подтверждения.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.handleFieldsDelete(cmd, args[0])
		},
	}

	activateCmd := &cobra.Command{
		Use:   "activate [id]",
		Short: "Активировать поле",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.handleFieldsToggle(cmd, args[0], true)
		},
	}

	deactivateCmd := &cobra.Command{
		Use:   "deactivate [id]",
		Short: "Деактивировать поле",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.handleFieldsToggle(cmd, args[0], false)
		},
	}

	initCmd := &cobra.Command{
		Use:   "init-defaults",
		Short: "Создать стандартный набор полей",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.handleFieldsInitDefaults(cmd)
		},
	}

	fieldsCmd.AddCommand(listCmd, getCmd, createCmd, updateCmd, deleteCmd, activateCmd, deactivateCmd, initCmd)
	return fieldsCmd
}

func addDefinitionFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("name", "n", "", "машинное имя поля")
	cmd.Flags().StringP("label", "l", "", "подпись")
	cmd.Flags().StringP("description", "d", "", "описание")
	cmd.Flags().StringP("type", "t", "", "тип (text, number, date, select, textarea, boolean, checkbox)")
	cmd.Flags().StringSlice("option", nil, "вариант select поля (можно повторять)")
	cmd.Flags().Bool("required", false, "обязательное поле")
	cmd.Flags().Bool("active", true, "активное поле")
	cmd.Flags().String("applies-to", string(dynfield.TargetRequirement), "сущность (requirement, project, user)")
	cmd.Flags().String("order", "", "порядковый номер")
	cmd.Flags().String("rules", "", "правила валидации в JSON")
}

// applyDefinitionFlags переносит измененные флаги в определение
func applyDefinitionFlags(cmd *cobra.Command, def *dynfield.Definition) error {
	flags := cmd.Flags()

	if flags.Changed("name") {
		def.FieldName, _ = flags.GetString("name")
	}
	if flags.Changed("label") {
		def.FieldLabel, _ = flags.GetString("label")
	}
	if flags.Changed("description") {
		def.FieldDescription, _ = flags.GetString("description")
	}
	if flags.Changed("required") {
		def.IsRequired, _ = flags.GetBool("required")
	}
	if flags.Changed("active") || def.ID == "" {
		def.IsActive, _ = flags.GetBool("active")
	}
	if flags.Changed("applies-to") || def.AppliesTo == "" {
		target, _ := flags.GetString("applies-to")
		def.AppliesTo = dynfield.Target(target)
	}

	if flags.Changed("type") || flags.Changed("option") {
		name := ""
		if def.Type != nil {
			name = def.Type.Name()
		}
		if flags.Changed("type") {
			name, _ = flags.GetString("type")
		}
		options := def.Options()
		if flags.Changed("option") {
			options, _ = flags.GetStringSlice("option")
		}
		fieldType, err := dynfield.ParseFieldType(name, options)
		if err != nil {
			return err
		}
		def.Type = fieldType
	}

	if flags.Changed("order") {
		raw, _ := flags.GetString("order")
		order, err := dynfield.ParseOrderIndex(raw)
		if err != nil {
			return pkgerrors.New(pkgerrors.ErrValidation, err.Error())
		}
		def.OrderIndex = order
	}
	if flags.Changed("rules") {
		raw, _ := flags.GetString("rules")
		if raw == "" {
			def.ValidationRules = nil
		} else {
			if !json.Valid([]byte(raw)) {
				return pkgerrors.New(pkgerrors.ErrValidation, "validation rules must be valid JSON")
			}
			def.ValidationRules = json.RawMessage(raw)
		}
	}
	return nil
}

func parseBoolFilter(raw string) (*bool, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.ErrValidation, "expected true or false, got "+strconv.Quote(raw))
	}
	return &v, nil
}

func (a *App) handleFieldsList(cmd *cobra.Command) error {
	ctx := cmd.Context()
	if _, err := a.requireSession(ctx); err != nil {
		return handleError(err, cmd, a.logger)
	}

	target, _ := cmd.Flags().GetString("applies-to")
	rawActive, _ := cmd.Flags().GetString("active")
	active, err := parseBoolFilter(rawActive)
	if err != nil {
		return handleError(err, cmd, a.logger)
	}
	if target != "" && !dynfield.Target(target).Valid() {
		return handleError(pkgerrors.New(pkgerrors.ErrValidation, "unknown applies-to "+strconv.Quote(target)), cmd, a.logger)
	}

	defs, err := a.fields.List(ctx, dynfield.ListFilter{AppliesTo: dynfield.Target(target), IsActive: active})
	if err != nil {
		return handleError(err, cmd, a.logger)
	}
	return a.printer.Print(defs, func() *output.TableData {
		return fieldsTable(defs)
	})
}

func fieldsTable(defs []dynfield.Definition) *output.TableData {
	table := output.NewTableData("ID", "NAME", "LABEL", "TYPE", "APPLIES TO", "ORDER", "REQUIRED", "ACTIVE")
	table.Empty = "No fields defined"
	for _, def := range defs {
		style := output.StyleDefault
		if !def.IsActive {
			style = output.StyleMuted
		}
		typeName := ""
		if def.Type != nil {
			typeName = def.Type.Name()
		}
		table.AddRowWithStyle(style,
			def.ID,
			def.FieldName,
			output.Truncate(def.Label(), 40),
			typeName,
			string(def.AppliesTo),
			def.OrderIndex.String(),
			output.YesNo(def.IsRequired),
			output.YesNo(def.IsActive),
		)
	}
	return table
}

func (a *App) handleFieldsGet(cmd *cobra.Command, id string) error {
	ctx := cmd.Context()
	if _, err := a.requireSession(ctx); err != nil {
		return handleError(err, cmd, a.logger)
	}

	def, err := a.fields.Get(ctx, id)
	if err != nil {
		return handleError(err, cmd, a.logger)
	}
	return a.printDefinition(def)
}

func (a *App) printDefinition(def *dynfield.Definition) error {
	return a.printer.Print(def, func() *output.TableData {
		typeName := ""
		if def.Type != nil {
			typeName = def.Type.Name()
		}
		return output.KeyValue(
			"ID", def.ID,
			"Name", def.FieldName,
			"Label", def.FieldLabel,
			"Description", def.FieldDescription,
			"Type", typeName,
			"Options", strings.Join(def.Options(), ", "),
			"Applies to", string(def.AppliesTo),
			"Order", def.OrderIndex.String(),
			"Required", output.YesNo(def.IsRequired),
			"Active", output.YesNo(def.IsActive),
			"Validation rules", string(def.ValidationRules),
			"Created", def.CreatedAt,
			"Updated", def.UpdatedAt,
		)
	})
}

func (a *App) handleFieldsCreate(cmd *cobra.Command) error {
	ctx := cmd.Context()
	if _, err := a.requireSession(ctx); err != nil {
		return handleError(err, cmd, a.logger)
	}

	var def dynfield.Definition
	if err := applyDefinitionFlags(cmd, &def); err != nil {
		return handleError(err, cmd, a.logger)
	}
	// Список нужен для проверки уникальности имени до запроса
	if _, err := a.fields.Reload(ctx); err != nil {
		return handleError(err, cmd, a.logger)
	}

	created, err := a.fields.Create(ctx, def)
	if err != nil {
		return handleError(err, cmd, a.logger)
	}
	return a.printDefinition(created)
}

func (a *App) handleFieldsUpdate(cmd *cobra.Command, id string) error {
	ctx := cmd.Context()
	if _, err := a.requireSession(ctx); err != nil {
		return handleError(err, cmd, a.logger)
	}

	if _, err := a.fields.Reload(ctx); err != nil {
		return handleError(err, cmd, a.logger)
	}
	def, err := a.fields.Get(ctx, id)
	if err != nil {
		return handleError(err, cmd, a.logger)
	}
	if err := applyDefinitionFlags(cmd, def); err != nil {
		return handleError(err, cmd, a.logger)
	}

	updated, err := a.fields.Update(ctx, id, *def)
	if err != nil {
		return handleError(err, cmd, a.logger)
	}
	return a.printDefinition(updated)
}

func (a *App) handleFieldsDelete(cmd *cobra.Command, id string) error {
	ctx := cmd.Context()
	if _, err := a.requireSession(ctx); err != nil {
		return handleError(err, cmd, a.logger)
	}

	if _, err := a.fields.Reload(ctx); err != nil {
		return handleError(err, cmd, a.logger)
	}
	if _, err := a.fields.Delete(ctx, id, a.confirmer()); err != nil {
		return handleError(err, cmd, a.logger)
	}
	return nil
}

func (a *App) handleFieldsToggle(cmd *cobra.Command, id string, active bool) error {
	ctx := cmd.Context()
	if _, err := a.requireSession(ctx); err != nil {
		return handleError(err, cmd, a.logger)
	}

	var err error
	if active {
		err = a.fields.Activate(ctx, id)
	} else {
		err = a.fields.Deactivate(ctx, id)
	}
	return handleError(err, cmd, a.logger)
}

func (a *App) handleFieldsInitDefaults(cmd *cobra.Command) error {
	ctx := cmd.Context()
	if _, err := a.requireSession(ctx); err != nil {
		return handleError(err, cmd, a.logger)
	}

	if err := a.fields.InitializeDefaults(ctx); err != nil {
		return handleError(err, cmd, a.logger)
	}
	return a.printer.Print(a.fields.Fields(), func() *output.TableData {
		return fieldsTable(a.fields.Fields())
	})
}
