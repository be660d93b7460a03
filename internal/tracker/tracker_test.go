package tracker

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "ReqTrack/pkg/errors"

	"ReqTrack/internal/apiclient"
	"ReqTrack/internal/dynfield"
	"ReqTrack/internal/notify"
	"ReqTrack/internal/testserver"
)

type staticToken string

func (s staticToken) Token() string                           { return string(s) }
func (s staticToken) Invalidate(context.Context, string) bool { return false }

func newTracker(t *testing.T) (*Service, *dynfield.Service, *testserver.Server, *notify.Recorder) {
	t.Helper()
	server := testserver.New(t)
	server.AddUser("alice", "secret123", "admin")
	server.AddUser("bob", "secret123", "analyst")

	notices := notify.NewRecorder()
	client := apiclient.New(apiclient.Options{BaseURL: server.URL, Notifier: notices})
	client.SetTokenSource(staticToken(server.IssueToken("alice")))

	return NewService(client), dynfield.NewService(client, notices, nil), server, notices
}

func TestListProjects_Filters(t *testing.T) {
	svc, _, server, _ := newTracker(t)
	server.AddProject(map[string]interface{}{"name": "Portal", "status": "em_andamento", "priority": "alta", "client_name": "ACME"})
	server.AddProject(map[string]interface{}{"name": "Billing", "status": "concluido", "priority": "media", "client_name": "ACME"})
	ctx := context.Background()

	all, err := svc.ListProjects(ctx, ProjectFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	running, err := svc.ListProjects(ctx, ProjectFilter{Status: "em_andamento"})
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, "Portal", running[0].Name)

	found, err := svc.ListProjects(ctx, ProjectFilter{Search: "bill"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Billing", found[0].Name)
}

func TestProjectFilter_Query(t *testing.T) {
	active := false
	q, err := ProjectFilter{Priority: "alta", ClientName: "ACME", IsActive: &active, Page: Page{Skip: 10, Limit: 5}}.Query()
	require.NoError(t, err)
	assert.Equal(t, "alta", q.Get("priority"))
	assert.Equal(t, "ACME", q.Get("client_name"))
	assert.Equal(t, "false", q.Get("is_active"))
	assert.Equal(t, "10", q.Get("skip"))
	assert.Equal(t, "5", q.Get("limit"))
	assert.NotContains(t, q, "status")

	tests := []ProjectFilter{
		{Status: "done"},
		{Priority: "urgent"},
		{Page: Page{Skip: -1}},
		{Page: Page{Limit: MaxLimit + 1}},
		{Page: Page{Limit: -5}},
	}
	for _, f := range tests {
		_, err := f.Query()
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrValidation), "%+v", f)
	}
}

func TestRequirementFilter_Query(t *testing.T) {
	overdue := true
	q, err := RequirementFilter{ProjectID: "p1", Type: "funcional", Status: "pendente", IsOverdue: &overdue}.Query()
	require.NoError(t, err)
	assert.Equal(t, "p1", q.Get("project_id"))
	assert.Equal(t, "funcional", q.Get("type"))
	assert.Equal(t, "true", q.Get("is_overdue"))

	_, err = RequirementFilter{Type: "visual"}.Query()
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrValidation))
}

func TestListRequirements_ByProject(t *testing.T) {
	svc, _, server, _ := newTracker(t)
	p1 := server.AddProject(map[string]interface{}{"name": "Portal", "status": "em_andamento"})
	p2 := server.AddProject(map[string]interface{}{"name": "Billing", "status": "em_andamento"})
	server.AddRequirement(map[string]interface{}{"project_id": p1, "title": "Login", "status": "pendente", "type": "funcional"})
	server.AddRequirement(map[string]interface{}{"project_id": p2, "title": "Invoice", "status": "concluido", "type": "funcional"})

	reqs, err := svc.ListRequirements(context.Background(), RequirementFilter{ProjectID: p1})
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, "Login", reqs[0].Title)
}

func TestGetProject_NotFoundNotifiesOnce(t *testing.T) {
	svc, _, _, notices := newTracker(t)

	_, err := svc.GetProject(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrNotFound))
	assert.Equal(t, []string{apiclient.MsgNotFound}, notices.Messages(notify.LevelError))
}

func TestListUsers(t *testing.T) {
	svc, _, _, _ := newTracker(t)

	users, err := svc.ListUsers(context.Background(), Page{})
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "alice", users[0].Username)
	assert.True(t, users[0].IsSuperuser)
	assert.Equal(t, "bob", users[1].Username)
}

func TestDashboard(t *testing.T) {
	svc, _, server, _ := newTracker(t)
	p := server.AddProject(map[string]interface{}{"name": "Portal", "status": "em_andamento"})
	server.AddRequirement(map[string]interface{}{"project_id": p, "title": "A", "status": "concluido", "type": "funcional", "priority": "alta"})
	server.AddRequirement(map[string]interface{}{"project_id": p, "title": "B", "status": "pendente", "type": "funcional", "priority": "alta", "is_overdue": true})

	d, err := svc.Dashboard(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, d.Summary.TotalProjects)
	assert.Equal(t, 1, d.Summary.ActiveProjects)
	assert.Equal(t, 2, d.Summary.TotalRequirements)
	assert.Equal(t, 1, d.Summary.CompletedRequirements)
	assert.Equal(t, 1, d.Summary.OverdueRequirements)
	assert.Equal(t, Breakdown{{Key: "concluido", Count: 1}, {Key: "pendente", Count: 1}}, d.RequirementsByStatus)
	assert.Equal(t, 2, d.RequirementsByType.Total())
}

func TestProjectSummary(t *testing.T) {
	svc, _, server, _ := newTracker(t)
	p := server.AddProject(map[string]interface{}{"name": "Portal", "status": "em_andamento"})
	server.AddRequirement(map[string]interface{}{"project_id": p, "title": "A", "status": "concluido"})
	server.AddRequirement(map[string]interface{}{"project_id": p, "title": "B", "status": "pendente"})

	summary, err := svc.ProjectSummary(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "Portal", summary.Project.Name)
	assert.Equal(t, 2, summary.Statistics.TotalRequirements)
	assert.InDelta(t, 50.0, summary.Statistics.CompletionRate, 0.001)
}

func TestBreakdown_UnmarshalJSON(t *testing.T) {
	var b Breakdown
	require.NoError(t, json.Unmarshal([]byte(`[{"priority":"alta","count":3},{"count":1,"priority":"baixa"}]`), &b))
	assert.Equal(t, Breakdown{{Key: "alta", Count: 3}, {Key: "baixa", Count: 1}}, b)
}

func TestGetRequirementDetail_InterpretsDynamicFields(t *testing.T) {
	svc, fields, server, _ := newTracker(t)
	server.AddField(testserver.Field{FieldName: "estimate", FieldType: "number", IsActive: true, IsRequired: true, OrderIndex: "1"})
	server.AddField(testserver.Field{FieldName: "legacy", FieldType: "text", IsActive: false, OrderIndex: "2"})
	server.AddField(testserver.Field{FieldName: "owner", FieldType: "text", IsActive: true, IsRequired: true, OrderIndex: "3"})
	p := server.AddProject(map[string]interface{}{"name": "Portal"})
	id := server.AddRequirement(map[string]interface{}{
		"project_id": p,
		"title":      "Login",
		"dynamic_fields": map[string]interface{}{
			"estimate": 8,
			"legacy":   "old value",
			"deleted":  "still here",
		},
	})

	detail, err := svc.GetRequirementDetail(context.Background(), id, fields)
	require.NoError(t, err)

	require.Len(t, detail.Fields.Values, 3)
	assert.Equal(t, dynfield.ValueActive, detail.Fields.Values[0].Status)
	assert.Equal(t, dynfield.ValueInactive, detail.Fields.Values[1].Status)
	assert.Equal(t, dynfield.ValueOrphan, detail.Fields.Values[2].Status)
	require.Len(t, detail.Fields.Missing, 1)
	assert.Equal(t, "owner", detail.Fields.Missing[0].FieldName)

	assert.True(t, fields.Loaded())
	assert.Equal(t, 1, server.Hits(http.MethodGet, "/api/v1/dynamic-fields"))

	// Повторный вызов использует загруженную схему
	_, err = svc.GetRequirementDetail(context.Background(), id, fields)
	require.NoError(t, err)
	assert.Equal(t, 1, server.Hits(http.MethodGet, "/api/v1/dynamic-fields"))
}

func TestGetProjectDetail(t *testing.T) {
	svc, fields, server, _ := newTracker(t)
	server.AddField(testserver.Field{FieldName: "budget_code", FieldType: "text", AppliesTo: "project", IsActive: true})
	p := server.AddProject(map[string]interface{}{"name": "Portal", "dynamic_fields": map[string]interface{}{"budget_code": "BC-1"}})

	detail, err := svc.GetProjectDetail(context.Background(), p, fields)
	require.NoError(t, err)
	require.Len(t, detail.Fields.Values, 1)
	assert.Equal(t, dynfield.ValueActive, detail.Fields.Values[0].Status)
	assert.True(t, detail.Fields.Valid())
}

func TestUpdateUser(t *testing.T) {
	svc, _, server, notices := newTracker(t)
	ctx := context.Background()
	carol := server.AddUser("carol", "secret123", "analyst")

	name := "Carol"
	updated, err := svc.UpdateUser(ctx, carol.ID, UserUpdate{FirstName: &name})
	require.NoError(t, err)
	assert.Equal(t, "Carol", updated.FirstName)
	assert.Equal(t, "carol@example.com", updated.Email)

	taken := "alice@example.com"
	_, err = svc.UpdateUser(ctx, carol.ID, UserUpdate{Email: &taken})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, apiclient.StatusOf(err))
	assert.Equal(t, []string{"Failed to update profile: Usuario ou email ja existe"}, notices.Messages(notify.LevelError))
}

func TestUpdateUser_LocalValidation(t *testing.T) {
	svc, _, server, _ := newTracker(t)
	ctx := context.Background()

	_, err := svc.UpdateUser(ctx, "any", UserUpdate{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrValidation))

	bad := "not-an-email"
	_, err = svc.UpdateUser(ctx, "any", UserUpdate{Email: &bad})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrValidation))
	assert.Zero(t, server.Hits(http.MethodPut, "/api/v1/users/{id}"))
}
