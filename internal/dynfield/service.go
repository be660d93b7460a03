package dynfield

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"

	pkgerrors "ReqTrack/pkg/errors"
	"ReqTrack/pkg/logger"

	"ReqTrack/internal/apiclient"
	"ReqTrack/internal/notify"
)

const basePath = "/api/v1/dynamic-fields"

// Confirmer запрашивает подтверждение необратимого действия
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// ConfirmFunc адаптер функции к Confirmer
type ConfirmFunc func(ctx context.Context, prompt string) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) (bool, error) {
	return f(ctx, prompt)
}

// AlwaysConfirm подтверждает без вопроса (флаг --yes)
var AlwaysConfirm Confirmer = ConfirmFunc(func(context.Context, string) (bool, error) { return true, nil })

// ListFilter фильтры списка, поддерживаемые бэкендом
type ListFilter struct {
	AppliesTo Target
	IsActive  *bool
}

func (f ListFilter) empty() bool {
	return f.AppliesTo == "" && f.IsActive == nil
}

func (f ListFilter) query() url.Values {
	q := url.Values{}
	if f.AppliesTo != "" {
		q.Set("applies_to", string(f.AppliesTo))
	}
	if f.IsActive != nil {
		q.Set("is_active", strconv.FormatBool(*f.IsActive))
	}
	return q
}

// Service администрирование определений динамических полей.
// Держит кэш полного списка; после каждой успешной мутации список
// перезагружается с сервера, при ошибке кэш не меняется.
type Service struct {
	client   *apiclient.Client
	notifier notify.Notifier
	logger   logger.Logger

	mu     sync.RWMutex
	fields []Definition
	loaded bool
}

// NewService создает новый Service
func NewService(client *apiclient.Client, notifier notify.Notifier, log logger.Logger) *Service {
	if notifier == nil {
		notifier = notify.Discard
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{client: client, notifier: notifier, logger: log}
}

// Fields возвращает копию кэшированного списка
func (s *Service) Fields() []Definition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Definition, len(s.fields))
	copy(out, s.fields)
	return out
}

// Loaded сообщает, был ли список загружен
func (s *Service) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Reload загружает полный список и обновляет кэш
func (s *Service) Reload(ctx context.Context) ([]Definition, error) {
	var defs []Definition
	if err := s.client.Get(ctx, basePath, &defs); err != nil {
		return nil, pkgerrors.WithContext(err, "failed to load fields")
	}
	Sort(defs)

	s.mu.Lock()
	s.fields = defs
	s.loaded = true
	s.mu.Unlock()

	return s.Fields(), nil
}

// List возвращает определения в порядке отображения. Без фильтров
// загружается и кэшируется полный список.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Definition, error) {
	if filter.empty() {
		return s.Reload(ctx)
	}

	var defs []Definition
	if err := s.client.Get(ctx, basePath, &defs, apiclient.WithQuery(filter.query())); err != nil {
		return nil, pkgerrors.WithContext(err, "failed to load fields")
	}
	Sort(defs)
	return defs, nil
}

// Get возвращает определение по идентификатору
func (s *Service) Get(ctx context.Context, id string) (*Definition, error) {
	var def Definition
	if err := s.client.Get(ctx, fieldPath(id), &def); err != nil {
		return nil, pkgerrors.WithContext(err, "failed to load field")
	}
	return &def, nil
}

// Create создает определение; сервер присваивает идентификатор и время
func (s *Service) Create(ctx context.Context, def Definition) (*Definition, error) {
	const action = "create field"

	if err := def.Validate(); err != nil {
		return nil, s.fail(ctx, action, err, true)
	}
	if err := validator.ValidateMachineName(def.FieldName, "field name"); err != nil {
		return nil, s.fail(ctx, action, pkgerrors.Wrap(err, pkgerrors.ErrValidation, err.Error()), true)
	}
	if err := s.checkUnique(def, ""); err != nil {
		return nil, s.fail(ctx, action, err, true)
	}

	var created Definition
	if err := s.client.Post(ctx, basePath, def.payload(), &created, apiclient.WithAction(action)); err != nil {
		return nil, s.fail(ctx, action, err, false)
	}

	s.afterMutation(ctx, action)
	notify.Success(ctx, s.notifier, fmt.Sprintf("Field %q created", created.FieldName))
	return &created, nil
}

// Update заменяет изменяемые поля определения id.
// Идентификатор и время создания не меняются.
func (s *Service) Update(ctx context.Context, id string, def Definition) (*Definition, error) {
	const action = "update field"

	if err := def.Validate(); err != nil {
		return nil, s.fail(ctx, action, err, true)
	}
	if err := s.checkUnique(def, id); err != nil {
		return nil, s.fail(ctx, action, err, true)
	}

	var updated Definition
	if err := s.client.Put(ctx, fieldPath(id), def.payload(), &updated, apiclient.WithAction(action)); err != nil {
		return nil, s.fail(ctx, action, err, false)
	}

	s.afterMutation(ctx, action)
	notify.Success(ctx, s.notifier, fmt.Sprintf("Field %q updated", updated.FieldName))
	return &updated, nil
}

// Delete безвозвратно удаляет определение после подтверждения.
// Возвращает false, если пользователь отказался.
func (s *Service) Delete(ctx context.Context, id string, confirmer Confirmer) (bool, error) {
	const action = "delete field"

	if confirmer == nil {
		return false, s.fail(ctx, action, pkgerrors.New(pkgerrors.ErrValidation, "confirmation is required"), true)
	}

	name := id
	if def, ok := s.cached(id); ok {
		name = def.FieldName
	}

	ok, err := confirmer.Confirm(ctx, fmt.Sprintf("Delete field %q permanently? This cannot be undone.", name))
	if err != nil {
		return false, pkgerrors.Wrap(err, pkgerrors.ErrUnexpected, "confirmation failed")
	}
	if !ok {
		notify.Info(ctx, s.notifier, "Deletion cancelled")
		return false, nil
	}

	if err := s.client.Delete(ctx, fieldPath(id), nil, apiclient.WithAction(action)); err != nil {
		return false, s.fail(ctx, action, err, false)
	}

	s.afterMutation(ctx, action)
	notify.Success(ctx, s.notifier, fmt.Sprintf("Field %q deleted", name))
	return true, nil
}

// Activate делает поле активным. Повторный вызов успешен.
func (s *Service) Activate(ctx context.Context, id string) error {
	return s.toggle(ctx, id, "activate")
}

// Deactivate делает поле неактивным. Повторный вызов успешен.
func (s *Service) Deactivate(ctx context.Context, id string) error {
	return s.toggle(ctx, id, "deactivate")
}

func (s *Service) toggle(ctx context.Context, id, verb string) error {
	action := verb + " field"

	var resp struct {
		Message string `json:"message"`
	}
	if err := s.client.Post(ctx, fieldPath(id)+"/"+verb, nil, &resp, apiclient.WithAction(action)); err != nil {
		return s.fail(ctx, action, err, false)
	}

	s.afterMutation(ctx, action)
	notify.Success(ctx, s.notifier, fmt.Sprintf("Field %sd", verb))
	return nil
}

// InitializeDefaults создает стандартный набор полей на пустом сервере
func (s *Service) InitializeDefaults(ctx context.Context) error {
	const action = "initialize default fields"

	var resp struct {
		Message string `json:"message"`
	}
	if err := s.client.Post(ctx, basePath+"/initialize-defaults", nil, &resp, apiclient.WithAction(action)); err != nil {
		return s.fail(ctx, action, err, false)
	}

	s.afterMutation(ctx, action)
	notify.Success(ctx, s.notifier, "Default fields initialized")
	return nil
}

// checkUnique проверяет имя по кэшу; без загруженного списка проверку выполняет сервер
func (s *Service) checkUnique(def Definition, id string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, existing := range s.fields {
		if existing.ID != id && existing.AppliesTo == def.AppliesTo && existing.FieldName == def.FieldName {
			return pkgerrors.New(pkgerrors.ErrConflict,
				fmt.Sprintf("field %q already exists for %s", def.FieldName, def.AppliesTo))
		}
	}
	return nil
}

func (s *Service) cached(id string) (Definition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.fields {
		if d.ID == id {
			return d, true
		}
	}
	return Definition{}, false
}

// afterMutation перезагружает список. Ошибка перезагрузки не отменяет мутацию.
func (s *Service) afterMutation(ctx context.Context, action string) {
	if _, err := s.Reload(ctx); err != nil {
		s.logger.Warn("Failed to reload fields after mutation",
			logger.String("action", action),
			logger.Error(err))
	}
}

// fail возвращает ошибку с контекстом действия. Для локальных ошибок
// (local) уведомление выдается здесь; ошибки запроса уже сообщены
// клиентом с названием действия.
func (s *Service) fail(ctx context.Context, action string, err error, local bool) error {
	s.logger.Debug("Field operation failed", logger.String("action", action), logger.Error(err))

	if local {
		message := "Failed to " + action
		var appErr *pkgerrors.Error
		if errors.As(err, &appErr) {
			message += ": " + appErr.Message
		}
		notify.Error(ctx, s.notifier, message)
	}
	return pkgerrors.WithContext(err, "failed to "+action)
}

func fieldPath(id string) string {
	return basePath + "/" + url.PathEscape(id)
}
