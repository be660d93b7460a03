package dynfield

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	pkgerrors "ReqTrack/pkg/errors"

	"ReqTrack/internal/apiclient"
	"ReqTrack/internal/mocks"
	"ReqTrack/internal/notify"
	"ReqTrack/internal/testserver"
)

type staticToken string

func (s staticToken) Token() string                           { return string(s) }
func (s staticToken) Invalidate(context.Context, string) bool { return false }

func newService(t *testing.T) (*Service, *testserver.Server, *notify.Recorder) {
	t.Helper()
	server := testserver.New(t)
	server.AddUser("admin", "secret123", "admin")

	notices := notify.NewRecorder()
	client := apiclient.New(apiclient.Options{BaseURL: server.URL, Notifier: notices})
	client.SetTokenSource(staticToken(server.IssueToken("admin")))

	return NewService(client, notices, nil), server, notices
}

func textField(name string) Definition {
	return Definition{FieldName: name, FieldLabel: name, Type: TextType{}, IsActive: true, AppliesTo: TargetRequirement}
}

func TestService_CreateReloadsList(t *testing.T) {
	svc, server, notices := newService(t)
	ctx := context.Background()

	def := textField("source")
	def.OrderIndex = Order(2)
	created, err := svc.Create(ctx, def)
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.NotEmpty(t, created.CreatedAt)
	assert.Equal(t, Order(2), created.OrderIndex)

	fields := svc.Fields()
	require.Len(t, fields, 1)
	assert.Equal(t, created.ID, fields[0].ID)
	assert.Equal(t, 1, server.Hits(http.MethodGet, "/api/v1/dynamic-fields"))
	assert.Equal(t, []string{`Field "source" created`}, notices.Messages(notify.LevelSuccess))
}

func TestService_ListOrdersFields(t *testing.T) {
	svc, server, _ := newService(t)
	server.AddField(testserver.Field{FieldName: "c", FieldType: "text", AppliesTo: "project", OrderIndex: "1"})
	server.AddField(testserver.Field{FieldName: "b", FieldType: "text", OrderIndex: 2})
	server.AddField(testserver.Field{FieldName: "a", FieldType: "text", OrderIndex: "1"})
	server.AddField(testserver.Field{FieldName: "d", FieldType: "text"})

	fields, err := svc.List(context.Background(), ListFilter{})
	require.NoError(t, err)

	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.FieldName
	}
	assert.Equal(t, []string{"a", "b", "d", "c"}, names)
	assert.True(t, svc.Loaded())
}

func TestService_ListWithFilterKeepsCache(t *testing.T) {
	svc, server, _ := newService(t)
	server.AddField(testserver.Field{FieldName: "req", FieldType: "text", IsActive: true})
	server.AddField(testserver.Field{FieldName: "proj", FieldType: "text", AppliesTo: "project", IsActive: false})

	_, err := svc.List(context.Background(), ListFilter{})
	require.NoError(t, err)

	active := true
	filtered, err := svc.List(context.Background(), ListFilter{IsActive: &active})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "req", filtered[0].FieldName)

	projects, err := svc.List(context.Background(), ListFilter{AppliesTo: TargetProject})
	require.NoError(t, err)
	require.Len(t, projects, 1)

	assert.Len(t, svc.Fields(), 2)
}

func TestService_DeactivateTwice(t *testing.T) {
	svc, server, notices := newService(t)
	field := server.AddField(testserver.Field{FieldName: "source", FieldType: "text", IsActive: true})
	ctx := context.Background()

	require.NoError(t, svc.Deactivate(ctx, field.ID))
	require.NoError(t, svc.Deactivate(ctx, field.ID))

	stored, ok := server.Field(field.ID)
	require.True(t, ok)
	assert.False(t, stored.IsActive)
	assert.Equal(t, []string{"Field deactivated", "Field deactivated"}, notices.Messages(notify.LevelSuccess))

	require.NoError(t, svc.Activate(ctx, field.ID))
	assert.True(t, svc.Fields()[0].IsActive)
}

func TestService_FailureLeavesCacheUnchanged(t *testing.T) {
	svc, server, notices := newService(t)
	field := server.AddField(testserver.Field{FieldName: "source", FieldType: "text", IsActive: true})
	ctx := context.Background()

	_, err := svc.List(ctx, ListFilter{})
	require.NoError(t, err)
	before := svc.Fields()
	notices.Reset()

	server.Fail(http.MethodPost, "/api/v1/dynamic-fields/{id}/deactivate", http.StatusInternalServerError, map[string]string{"detail": "boom"})

	err = svc.Deactivate(ctx, field.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrInternal))
	assert.Equal(t, before, svc.Fields())
	assert.Equal(t, []string{"Failed to deactivate field: " + apiclient.MsgServerError}, notices.Messages(""))
	assert.Equal(t, 1, server.Hits(http.MethodGet, "/api/v1/dynamic-fields"))
}

func TestService_CreateValidationAggregated(t *testing.T) {
	svc, server, notices := newService(t)
	server.Fail(http.MethodPost, "/api/v1/dynamic-fields", http.StatusUnprocessableEntity, map[string]interface{}{
		"detail": []map[string]interface{}{
			{"loc": []string{"body", "field_name"}, "msg": "a", "type": "value_error"},
			{"loc": []string{"body", "field_label"}, "msg": "b", "type": "value_error"},
		},
	})

	_, err := svc.Create(context.Background(), textField("source"))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrValidation))

	messages := notices.Messages("")
	require.Len(t, messages, 1)
	assert.Contains(t, messages[0], "a")
	assert.Contains(t, messages[0], "b")
	assert.Contains(t, messages[0], "create field")
	assert.Empty(t, svc.Fields())
}

func TestService_CreateRejectedLocally(t *testing.T) {
	svc, server, notices := newService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		def  Definition
		code pkgerrors.ErrorCode
	}{
		{"select without options", Definition{FieldName: "level", Type: SelectType{}, AppliesTo: TargetRequirement}, pkgerrors.ErrValidation},
		{"not a machine name", textField("Data Source"), pkgerrors.ErrValidation},
		{"missing type", Definition{FieldName: "x", AppliesTo: TargetRequirement}, pkgerrors.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			notices.Reset()
			_, err := svc.Create(ctx, tt.def)
			require.Error(t, err)
			assert.True(t, pkgerrors.IsCode(err, tt.code))
			require.Len(t, notices.Messages(notify.LevelError), 1)
		})
	}

	assert.Zero(t, server.Hits(http.MethodPost, "/api/v1/dynamic-fields"))
}

func TestService_CreateDuplicateDetectedFromCache(t *testing.T) {
	svc, server, _ := newService(t)
	server.AddField(testserver.Field{FieldName: "source", FieldType: "text", IsActive: true})
	ctx := context.Background()

	_, err := svc.List(ctx, ListFilter{})
	require.NoError(t, err)

	_, err = svc.Create(ctx, textField("source"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrConflict))
	assert.Zero(t, server.Hits(http.MethodPost, "/api/v1/dynamic-fields"))

	// Для другой сущности имя свободно
	other := textField("source")
	other.AppliesTo = TargetProject
	_, err = svc.Create(ctx, other)
	require.NoError(t, err)
}

func TestService_Update(t *testing.T) {
	svc, server, _ := newService(t)
	field := server.AddField(testserver.Field{FieldName: "level", FieldType: "select", Options: []string{"Low"}, IsActive: true})
	ctx := context.Background()

	def, err := svc.Get(ctx, field.ID)
	require.NoError(t, err)

	def.Type = NewSelectType("Low", "High")
	def.FieldLabel = "Level"
	updated, err := svc.Update(ctx, def.ID, *def)
	require.NoError(t, err)

	assert.Equal(t, field.ID, updated.ID)
	assert.Equal(t, field.CreatedAt, updated.CreatedAt)
	assert.Equal(t, []string{"Low", "High"}, updated.Options())

	stored, _ := server.Field(field.ID)
	assert.Equal(t, "Level", stored.FieldLabel)
}

func TestService_UpdateClearsOptionalFields(t *testing.T) {
	svc, server, _ := newService(t)
	field := server.AddField(testserver.Field{
		FieldName:        "level",
		FieldType:        "select",
		FieldLabel:       "Level",
		FieldDescription: "Delivery level",
		Options:          []string{"Low", "High"},
		ValidationRules:  map[string]interface{}{"max": 3},
		IsActive:         true,
	})
	ctx := context.Background()

	updated, err := svc.Update(ctx, field.ID, Definition{
		FieldName: "level",
		Type:      TextType{},
		IsActive:  true,
		AppliesTo: TargetRequirement,
	})
	require.NoError(t, err)
	assert.Equal(t, TextType{}, updated.Type)
	assert.Empty(t, updated.FieldLabel)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(server.LastBody(http.MethodPut, "/api/v1/dynamic-fields/{id}"), &body))
	assert.Equal(t, "text", body["field_type"])
	for _, key := range []string{"field_label", "field_description", "options", "validation_rules"} {
		require.Contains(t, body, key)
		assert.Nil(t, body[key], key)
	}

	stored, ok := server.Field(field.ID)
	require.True(t, ok)
	assert.Equal(t, "text", stored.FieldType)
	assert.Empty(t, stored.FieldLabel)
	assert.Empty(t, stored.FieldDescription)
	assert.Empty(t, stored.Options)
	assert.Empty(t, stored.ValidationRules)
}

func TestService_DeleteRequiresConfirmation(t *testing.T) {
	svc, server, notices := newService(t)
	field := server.AddField(testserver.Field{FieldName: "source", FieldType: "text", IsActive: true})
	ctx := context.Background()

	var prompts []string
	decline := ConfirmFunc(func(_ context.Context, prompt string) (bool, error) {
		prompts = append(prompts, prompt)
		return false, nil
	})

	deleted, err := svc.Delete(ctx, field.ID, decline)
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.Len(t, prompts, 1)
	assert.Zero(t, server.Hits(http.MethodDelete, "/api/v1/dynamic-fields/{id}"))

	_, err = svc.Delete(ctx, field.ID, nil)
	require.Error(t, err)
	assert.Zero(t, server.Hits(http.MethodDelete, "/api/v1/dynamic-fields/{id}"))

	notices.Reset()
	deleted, err = svc.Delete(ctx, field.ID, AlwaysConfirm)
	require.NoError(t, err)
	assert.True(t, deleted)

	_, ok := server.Field(field.ID)
	assert.False(t, ok)
	assert.Empty(t, svc.Fields())
	assert.Len(t, notices.Messages(notify.LevelSuccess), 1)
}

func TestService_DeleteConfirmationError(t *testing.T) {
	svc, server, _ := newService(t)
	field := server.AddField(testserver.Field{FieldName: "source", FieldType: "text", IsActive: true})
	ctx := context.Background()
	_, err := svc.Reload(ctx)
	require.NoError(t, err)

	confirmer := &mocks.MockConfirmer{}
	confirmer.On("Confirm", mock.Anything, `Delete field "source" permanently? This cannot be undone.`).
		Return(false, errors.New("stdin closed")).Once()

	deleted, err := svc.Delete(ctx, field.ID, confirmer)
	require.Error(t, err)
	assert.False(t, deleted)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrUnexpected))
	assert.Zero(t, server.Hits(http.MethodDelete, "/api/v1/dynamic-fields/{id}"))
	confirmer.AssertExpectations(t)
}

func TestService_DeleteNotFound(t *testing.T) {
	svc, _, notices := newService(t)

	deleted, err := svc.Delete(context.Background(), "missing", AlwaysConfirm)
	require.Error(t, err)
	assert.False(t, deleted)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrNotFound))
	assert.Equal(t, []string{"Failed to delete field: " + apiclient.MsgNotFound}, notices.Messages(notify.LevelError))
}

func TestService_InitializeDefaults(t *testing.T) {
	svc, _, notices := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.InitializeDefaults(ctx))
	assert.Len(t, svc.Fields(), 5)

	err := svc.InitializeDefaults(ctx)
	require.Error(t, err)
	assert.Len(t, svc.Fields(), 5)
	assert.Len(t, notices.Messages(notify.LevelError), 1)
}
