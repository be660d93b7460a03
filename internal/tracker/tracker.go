// Package tracker чтение проектов, требований, пользователей и отчетов.
package tracker

import (
	"context"
	"net/url"
	"strconv"

	pkgerrors "ReqTrack/pkg/errors"
	"ReqTrack/pkg/validation"

	"ReqTrack/internal/apiclient"
	"ReqTrack/internal/dynfield"
	"ReqTrack/internal/session"
)

const apiPrefix = "/api/v1"

// Допустимые значения фильтров
var (
	ProjectStatuses     = []string{"em_andamento", "concluido", "cancelado", "pausado"}
	Priorities          = []string{"baixa", "media", "alta", "critica"}
	RequirementTypes    = []string{"funcional", "nao_funcional", "regra_negocio"}
	RequirementStatuses = []string{"pendente", "em_analise", "aprovado", "em_desenvolvimento", "concluido", "cancelado"}
)

// MaxLimit максимальный размер страницы на бэкенде
const MaxLimit = 1000

// Page параметры пагинации; нулевые значения не передаются
type Page struct {
	Skip  int
	Limit int
}

func (p Page) apply(q url.Values) {
	if p.Skip > 0 {
		q.Set("skip", strconv.Itoa(p.Skip))
	}
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
}

// ProjectFilter фильтры списка проектов
type ProjectFilter struct {
	Status     string
	Priority   string
	ClientName string
	IsActive   *bool
	Search     string
	Page
}

// RequirementFilter фильтры списка требований
type RequirementFilter struct {
	ProjectID  string
	Type       string
	Priority   string
	Status     string
	Complexity string
	AssignedTo string
	IsOverdue  *bool
	Search     string
	Page
}

var validator = validation.NewValidator()

func validatePage(p Page) error {
	if p.Skip < 0 {
		return pkgerrors.New(pkgerrors.ErrValidation, "skip must not be negative")
	}
	if p.Limit != 0 {
		if err := validator.ValidateRange(p.Limit, 1, MaxLimit, "limit"); err != nil {
			return pkgerrors.Wrap(err, pkgerrors.ErrValidation, err.Error())
		}
	}
	return nil
}

func validateOptional(value string, allowed []string, name string) error {
	if err := validator.ValidateOptionalEnum(value, allowed, name); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.ErrValidation, err.Error())
	}
	return nil
}

func setIf(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}

func setBool(q url.Values, key string, value *bool) {
	if value != nil {
		q.Set(key, strconv.FormatBool(*value))
	}
}

// Query проверяет фильтр и строит параметры запроса
func (f ProjectFilter) Query() (url.Values, error) {
	if err := validateOptional(f.Status, ProjectStatuses, "status"); err != nil {
		return nil, err
	}
	if err := validateOptional(f.Priority, Priorities, "priority"); err != nil {
		return nil, err
	}
	if err := validatePage(f.Page); err != nil {
		return nil, err
	}

	q := url.Values{}
	setIf(q, "status", f.Status)
	setIf(q, "priority", f.Priority)
	setIf(q, "client_name", f.ClientName)
	setBool(q, "is_active", f.IsActive)
	setIf(q, "search", f.Search)
	f.Page.apply(q)
	return q, nil
}

// Query проверяет фильтр и строит параметры запроса
func (f RequirementFilter) Query() (url.Values, error) {
	if err := validateOptional(f.Type, RequirementTypes, "type"); err != nil {
		return nil, err
	}
	if err := validateOptional(f.Priority, Priorities, "priority"); err != nil {
		return nil, err
	}
	if err := validateOptional(f.Status, RequirementStatuses, "status"); err != nil {
		return nil, err
	}
	if err := validatePage(f.Page); err != nil {
		return nil, err
	}

	q := url.Values{}
	setIf(q, "project_id", f.ProjectID)
	setIf(q, "type", f.Type)
	setIf(q, "priority", f.Priority)
	setIf(q, "status", f.Status)
	setIf(q, "complexity", f.Complexity)
	setIf(q, "assigned_to", f.AssignedTo)
	setBool(q, "is_overdue", f.IsOverdue)
	setIf(q, "search", f.Search)
	f.Page.apply(q)
	return q, nil
}

// Service доступ к данным трекера
type Service struct {
	client *apiclient.Client
}

// NewService создает новый Service
func NewService(client *apiclient.Client) *Service {
	return &Service{client: client}
}

// ListProjects возвращает проекты по фильтру
func (s *Service) ListProjects(ctx context.Context, filter ProjectFilter) ([]Project, error) {
	q, err := filter.Query()
	if err != nil {
		return nil, err
	}
	projects := []Project{}
	if err := s.client.Get(ctx, apiPrefix+"/projects", &projects, apiclient.WithQuery(q)); err != nil {
		return nil, pkgerrors.WithContext(err, "failed to load projects")
	}
	return projects, nil
}

// GetProject возвращает проект
func (s *Service) GetProject(ctx context.Context, id string) (*Project, error) {
	var project Project
	if err := s.client.Get(ctx, apiPrefix+"/projects/"+url.PathEscape(id), &project); err != nil {
		return nil, pkgerrors.WithContext(err, "failed to load project")
	}
	return &project, nil
}

// ListRequirements возвращает требования по фильтру
func (s *Service) ListRequirements(ctx context.Context, filter RequirementFilter) ([]Requirement, error) {
	q, err := filter.Query()
	if err != nil {
		return nil, err
	}
	reqs := []Requirement{}
	if err := s.client.Get(ctx, apiPrefix+"/requirements", &reqs, apiclient.WithQuery(q)); err != nil {
		return nil, pkgerrors.WithContext(err, "failed to load requirements")
	}
	return reqs, nil
}

// GetRequirement возвращает требование
func (s *Service) GetRequirement(ctx context.Context, id string) (*Requirement, error) {
	var req Requirement
	if err := s.client.Get(ctx, apiPrefix+"/requirements/"+url.PathEscape(id), &req); err != nil {
		return nil, pkgerrors.WithContext(err, "failed to load requirement")
	}
	return &req, nil
}

// ListUsers возвращает пользователей
func (s *Service) ListUsers(ctx context.Context, page Page) ([]session.User, error) {
	if err := validatePage(page); err != nil {
		return nil, err
	}
	q := url.Values{}
	page.apply(q)

	users := []session.User{}
	if err := s.client.Get(ctx, apiPrefix+"/users", &users, apiclient.WithQuery(q)); err != nil {
		return nil, pkgerrors.WithContext(err, "failed to load users")
	}
	return users, nil
}

// UserUpdate изменяемые поля профиля; nil не передается
type UserUpdate struct {
	Email     *string `json:"email,omitempty"`
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
}

// Empty сообщает, что изменений нет
func (u UserUpdate) Empty() bool {
	return u.Email == nil && u.FirstName == nil && u.LastName == nil
}

// UpdateUser изменяет пользователя и возвращает его новое состояние
func (s *Service) UpdateUser(ctx context.Context, id string, update UserUpdate) (*session.User, error) {
	if update.Empty() {
		return nil, pkgerrors.New(pkgerrors.ErrValidation, "nothing to update")
	}
	if update.Email != nil {
		if err := validator.ValidateEmail(*update.Email, "email"); err != nil {
			return nil, pkgerrors.Wrap(err, pkgerrors.ErrValidation, err.Error())
		}
	}

	var user session.User
	if err := s.client.Put(ctx, apiPrefix+"/users/"+url.PathEscape(id), update, &user, apiclient.WithAction("update profile")); err != nil {
		return nil, pkgerrors.WithContext(err, "failed to update user")
	}
	return &user, nil
}

// Dashboard возвращает сводный отчет
func (s *Service) Dashboard(ctx context.Context) (*Dashboard, error) {
	var d Dashboard
	if err := s.client.Get(ctx, apiPrefix+"/reports/dashboard", &d); err != nil {
		return nil, pkgerrors.WithContext(err, "failed to load dashboard")
	}
	return &d, nil
}

// ProjectSummary возвращает отчет по проекту
func (s *Service) ProjectSummary(ctx context.Context, id string) (*ProjectSummary, error) {
	var summary ProjectSummary
	if err := s.client.Get(ctx, apiPrefix+"/reports/project/"+url.PathEscape(id)+"/summary", &summary); err != nil {
		return nil, pkgerrors.WithContext(err, "failed to load project summary")
	}
	return &summary, nil
}

// SchemaSource источник определений динамических полей
type SchemaSource interface {
	Loaded() bool
	Fields() []dynfield.Definition
	Reload(ctx context.Context) ([]dynfield.Definition, error)
}

func schema(ctx context.Context, src SchemaSource) ([]dynfield.Definition, error) {
	if src.Loaded() {
		return src.Fields(), nil
	}
	return src.Reload(ctx)
}

// RequirementDetail требование с интерпретированными динамическими полями
type RequirementDetail struct {
	Requirement Requirement
	Fields      dynfield.Interpretation
}

// GetRequirementDetail загружает требование и сопоставляет его
// dynamic_fields с текущей схемой
func (s *Service) GetRequirementDetail(ctx context.Context, id string, src SchemaSource) (*RequirementDetail, error) {
	req, err := s.GetRequirement(ctx, id)
	if err != nil {
		return nil, err
	}
	defs, err := schema(ctx, src)
	if err != nil {
		return nil, err
	}
	return &RequirementDetail{
		Requirement: *req,
		Fields:      dynfield.Interpret(req.DynamicFields, defs, dynfield.TargetRequirement),
	}, nil
}

// ProjectDetail проект с интерпретированными динамическими полями
type ProjectDetail struct {
	Project Project
	Fields  dynfield.Interpretation
}

// GetProjectDetail загружает проект и сопоставляет его dynamic_fields со схемой
func (s *Service) GetProjectDetail(ctx context.Context, id string, src SchemaSource) (*ProjectDetail, error) {
	project, err := s.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	defs, err := schema(ctx, src)
	if err != nil {
		return nil, err
	}
	return &ProjectDetail{
		Project: *project,
		Fields:  dynfield.Interpret(project.DynamicFields, defs, dynfield.TargetProject),
	}, nil
}
