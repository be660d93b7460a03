package testserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

func withUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

func currentUser(r *http.Request) *User {
	u, _ := r.Context().Value(userKey{}).(*User)
	return u
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		detail(w, http.StatusBadRequest, "invalid body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[creds.Username]
	if !ok || u.password != creds.Password {
		detail(w, http.StatusUnauthorized, "Credenciais invalidas")
		return
	}
	if !u.IsActive {
		detail(w, http.StatusBadRequest, "Usuario inativo")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"access_token": s.issueLocked(u.Username),
		"token_type":   "bearer",
		"expires_in":   1800,
		"user":         u,
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, currentUser(r))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logout realizado com sucesso"})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	u := currentUser(r)
	old := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tokens, old)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"access_token": s.issueLocked(u.Username),
		"token_type":   "bearer",
		"expires_in":   1800,
		"user":         u,
	})
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users := make([]*User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var patch struct {
		Email     *string `json:"email"`
		FirstName *string `json:"first_name"`
		LastName  *string `json:"last_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		detail(w, http.StatusBadRequest, "invalid body")
		return
	}
	current := currentUser(r)
	id := mux.Vars(r)["id"]

	s.mu.Lock()
	defer s.mu.Unlock()

	var target *User
	for _, u := range s.users {
		if u.ID == id {
			target = u
		}
	}
	if target == nil {
		detail(w, http.StatusNotFound, "Usuario nao encontrado")
		return
	}
	if target.ID != current.ID && !current.IsSuperuser {
		detail(w, http.StatusForbidden, "Permissoes insuficientes")
		return
	}
	if patch.Email != nil {
		for _, u := range s.users {
			if u.ID != id && u.Email == *patch.Email {
				detail(w, http.StatusBadRequest, "Usuario ou email ja existe")
				return
			}
		}
		target.Email = *patch.Email
	}
	if patch.FirstName != nil {
		target.FirstName = *patch.FirstName
	}
	if patch.LastName != nil {
		target.LastName = *patch.LastName
	}
	writeJSON(w, http.StatusOK, target)
}

// Поля

var (
	validFieldTypes = map[string]bool{"text": true, "number": true, "date": true, "select": true, "textarea": true, "boolean": true, "checkbox": true}
	validTargets    = map[string]bool{"requirement": true, "project": true, "user": true}
)

// AddField добавляет определение поля напрямую
func (s *Server) AddField(f Field) *Field {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addFieldLocked(f)
}

func (s *Server) addFieldLocked(f Field) *Field {
	f.ID = uuid.NewString()
	f.CreatedAt = s.tick()
	f.UpdatedAt = f.CreatedAt
	if f.AppliesTo == "" {
		f.AppliesTo = "requirement"
	}
	s.fields = append(s.fields, &f)
	return &f
}

// Field возвращает копию определения по id
func (s *Server) Field(id string) (Field, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f := s.findField(id); f != nil {
		return *f, true
	}
	return Field{}, false
}

func (s *Server) findField(id string) *Field {
	for _, f := range s.fields {
		if f.ID == id {
			return f
		}
	}
	return nil
}

func (s *Server) handleListFields(w http.ResponseWriter, r *http.Request) {
	appliesTo := r.URL.Query().Get("applies_to")
	isActive := r.URL.Query().Get("is_active")

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Field, 0, len(s.fields))
	for _, f := range s.fields {
		if appliesTo != "" && f.AppliesTo != appliesTo {
			continue
		}
		if isActive != "" && (isActive == "true") != f.IsActive {
			continue
		}
		out = append(out, f)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetField(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := s.findField(mux.Vars(r)["id"])
	if f == nil {
		detail(w, http.StatusNotFound, "Campo dinamico nao encontrado")
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func validationError(w http.ResponseWriter, loc, msg string) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
		"detail": []map[string]interface{}{
			{"loc": []string{"body", loc}, "msg": msg, "type": "value_error"},
		},
	})
}

func (s *Server) validateField(w http.ResponseWriter, f *Field, id string) bool {
	if !validFieldTypes[f.FieldType] {
		validationError(w, "field_type", "invalid field type")
		return false
	}
	if !validTargets[f.AppliesTo] {
		validationError(w, "applies_to", "invalid target entity")
		return false
	}
	if f.FieldType == "select" && len(f.Options) == 0 {
		validationError(w, "options", "select field requires options")
		return false
	}
	for _, other := range s.fields {
		if other.ID != id && other.FieldName == f.FieldName && other.AppliesTo == f.AppliesTo {
			detail(w, http.StatusBadRequest, "Campo dinamico ja existe")
			return false
		}
	}
	return true
}

func (s *Server) handleCreateField(w http.ResponseWriter, r *http.Request) {
	var f Field
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		detail(w, http.StatusBadRequest, "invalid body")
		return
	}
	if f.AppliesTo == "" {
		f.AppliesTo = "requirement"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.validateField(w, &f, "") {
		return
	}
	writeJSON(w, http.StatusCreated, s.addFieldLocked(f))
}

// handleUpdateField меняет только присланные ключи; null очищает значение
func (s *Server) handleUpdateField(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	var keys map[string]json.RawMessage
	if err == nil {
		err = json.Unmarshal(data, &keys)
	}
	if err != nil {
		detail(w, http.StatusBadRequest, "invalid body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f := s.findField(mux.Vars(r)["id"])
	if f == nil {
		detail(w, http.StatusNotFound, "Campo dinamico nao encontrado")
		return
	}

	in := *f
	if _, ok := keys["options"]; ok {
		in.Options = nil
	}
	if _, ok := keys["validation_rules"]; ok {
		in.ValidationRules = nil
	}
	if err := json.Unmarshal(data, &in); err != nil {
		detail(w, http.StatusBadRequest, "invalid body")
		return
	}
	for key, value := range keys {
		if string(bytes.TrimSpace(value)) != "null" {
			continue
		}
		switch key {
		case "field_label":
			in.FieldLabel = ""
		case "field_description":
			in.FieldDescription = ""
		}
	}
	if !s.validateField(w, &in, f.ID) {
		return
	}

	in.ID = f.ID
	in.CreatedAt = f.CreatedAt
	in.UpdatedAt = s.tick()
	*f = in
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) handleDeleteField(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, f := range s.fields {
		if f.ID == id {
			s.fields = append(s.fields[:i], s.fields[i+1:]...)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	detail(w, http.StatusNotFound, "Campo dinamico nao encontrado")
}

func (s *Server) handleToggleField(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()

		f := s.findField(mux.Vars(r)["id"])
		if f == nil {
			detail(w, http.StatusNotFound, "Campo dinamico nao encontrado")
			return
		}
		f.IsActive = active
		if active {
			writeJSON(w, http.StatusOK, map[string]string{"message": "Campo dinamico ativado com sucesso"})
		} else {
			writeJSON(w, http.StatusOK, map[string]string{"message": "Campo dinamico desativado com sucesso"})
		}
	}
}

func (s *Server) handleInitDefaults(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.fields) > 0 {
		detail(w, http.StatusBadRequest, "Campos dinamicos ja foram inicializados")
		return
	}
	for _, f := range []Field{
		{FieldName: "fonte_dados", FieldType: "text", FieldLabel: "Fonte de Dados", IsActive: true},
		{FieldName: "kpis_envolvidos", FieldType: "select", FieldLabel: "KPIs Envolvidos", Options: []string{"Vendas", "Lucratividade", "Custo", "ROI", "Produtividade"}, IsActive: true},
		{FieldName: "data_entrega_estimada", FieldType: "date", FieldLabel: "Data de Entrega Estimada", IsActive: true},
		{FieldName: "complexidade", FieldType: "select", FieldLabel: "Complexidade", Options: []string{"Baixa", "Media", "Alta"}, IsActive: true},
		{FieldName: "observacoes", FieldType: "textarea", FieldLabel: "Observacoes", IsActive: true},
	} {
		s.addFieldLocked(f)
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Campos dinamicos padrao inicializados com sucesso"})
}

// Проекты и требования

// AddProject добавляет проект; id присваивается, если не задан
func (s *Server) AddProject(p map[string]interface{}) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := p["id"]; !ok {
		p["id"] = uuid.NewString()
	}
	p["created_at"] = s.tick()
	s.projects = append(s.projects, p)
	return p["id"].(string)
}

// AddRequirement добавляет требование; id присваивается, если не задан
func (s *Server) AddRequirement(req map[string]interface{}) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := req["id"]; !ok {
		req["id"] = uuid.NewString()
	}
	req["created_at"] = s.tick()
	s.requirements = append(s.requirements, req)
	return req["id"].(string)
}

func matches(item map[string]interface{}, r *http.Request, keys ...string) bool {
	q := r.URL.Query()
	for _, k := range keys {
		want := q.Get(k)
		if want == "" {
			continue
		}
		if got, _ := item[k].(string); got != want {
			return false
		}
	}
	if search := strings.ToLower(q.Get("search")); search != "" {
		name, _ := item["name"].(string)
		title, _ := item["title"].(string)
		if !strings.Contains(strings.ToLower(name+title), search) {
			return false
		}
	}
	return true
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []map[string]interface{}{}
	for _, p := range s.projects {
		if matches(p, r, "status", "priority", "client_name") {
			out = append(out, p)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.projects {
		if p["id"] == mux.Vars(r)["id"] {
			writeJSON(w, http.StatusOK, p)
			return
		}
	}
	detail(w, http.StatusNotFound, "Projeto nao encontrado")
}

func (s *Server) handleListRequirements(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []map[string]interface{}{}
	for _, req := range s.requirements {
		if matches(req, r, "project_id", "type", "priority", "status", "complexity", "assigned_to") {
			out = append(out, req)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetRequirement(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, req := range s.requirements {
		if req["id"] == mux.Vars(r)["id"] {
			writeJSON(w, http.StatusOK, req)
			return
		}
	}
	detail(w, http.StatusNotFound, "Requisito nao encontrado")
}

func countBy(items []map[string]interface{}, key string) []map[string]interface{} {
	counts := map[string]int{}
	var order []string
	for _, item := range items {
		v, _ := item[key].(string)
		if _, seen := counts[v]; !seen {
			order = append(order, v)
		}
		counts[v]++
	}
	out := make([]map[string]interface{}, 0, len(order))
	for _, v := range order {
		out = append(out, map[string]interface{}{key: v, "count": counts[v]})
	}
	return out
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	active, completed, overdue := 0, 0, 0
	for _, p := range s.projects {
		if p["status"] == "em_andamento" {
			active++
		}
	}
	for _, req := range s.requirements {
		if req["status"] == "concluido" {
			completed++
		}
		if o, _ := req["is_overdue"].(bool); o {
			overdue++
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"summary": map[string]int{
			"total_projects":         len(s.projects),
			"active_projects":        active,
			"total_requirements":     len(s.requirements),
			"completed_requirements": completed,
			"overdue_requirements":   overdue,
			"recent_projects":        len(s.projects),
			"recent_requirements":    len(s.requirements),
		},
		"projects_by_status":       countBy(s.projects, "status"),
		"requirements_by_status":   countBy(s.requirements, "status"),
		"requirements_by_type":     countBy(s.requirements, "type"),
		"requirements_by_priority": countBy(s.requirements, "priority"),
	})
}

func (s *Server) handleProjectSummary(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := mux.Vars(r)["id"]
	var project map[string]interface{}
	for _, p := range s.projects {
		if p["id"] == id {
			project = p
		}
	}
	if project == nil {
		detail(w, http.StatusNotFound, "Projeto nao encontrado")
		return
	}

	var reqs []map[string]interface{}
	completed := 0
	for _, req := range s.requirements {
		if req["project_id"] == id {
			reqs = append(reqs, req)
			if req["status"] == "concluido" {
				completed++
			}
		}
	}
	rate := 0.0
	if len(reqs) > 0 {
		rate = float64(completed) / float64(len(reqs)) * 100
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"project": project,
		"statistics": map[string]interface{}{
			"total_requirements":     len(reqs),
			"completed_requirements": completed,
			"overdue_requirements":   0,
			"completion_rate":        rate,
		},
		"requirements_by_status":   countBy(reqs, "status"),
		"requirements_by_type":     countBy(reqs, "type"),
		"requirements_by_priority": countBy(reqs, "priority"),
	})
}

// Логотипы

var allowedLogoTypes = map[string]string{
	"image/jpeg":    ".jpg",
	"image/jpg":     ".jpg",
	"image/png":     ".png",
	"image/gif":     ".gif",
	"image/svg+xml": ".svg",
}

func (s *Server) handleUploadLogo(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		validationError(w, "file", "field required")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	ext, ok := allowedLogoTypes[contentType]
	if !ok {
		detail(w, http.StatusBadRequest, "Tipo de arquivo nao permitido. Use apenas: JPEG, JPG, PNG, GIF ou SVG")
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		detail(w, http.StatusBadRequest, "invalid file")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := "logo_" + strings.ReplaceAll(uuid.NewString(), "-", "") + ext
	logo := &Logo{
		Filename:    name,
		ContentType: contentType,
		Data:        data,
		Size:        len(data),
		URL:         "/api/v1/upload/logo/" + name,
		CreatedAt:   s.tick(),
	}
	s.logos = append(s.logos, logo)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":       "Logo enviada com sucesso",
		"filename":      logo.Filename,
		"original_name": header.Filename,
		"size":          logo.Size,
		"url":           logo.URL,
		"uploaded_at":   logo.CreatedAt,
	})
}

func (s *Server) handleListLogos(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	logos := make([]*Logo, len(s.logos))
	copy(logos, s.logos)
	writeJSON(w, http.StatusOK, map[string]interface{}{"logos": logos})
}

func (s *Server) handleGetLogo(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, l := range s.logos {
		if l.Filename == mux.Vars(r)["filename"] {
			w.Header().Set("Content-Type", l.ContentType)
			w.WriteHeader(http.StatusOK)
			w.Write(l.Data)
			return
		}
	}
	detail(w, http.StatusNotFound, "Logo nao encontrada")
}

func (s *Server) handleDeleteLogo(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, l := range s.logos {
		if l.Filename == mux.Vars(r)["filename"] {
			s.logos = append(s.logos[:i], s.logos[i+1:]...)
			writeJSON(w, http.StatusOK, map[string]string{"message": "Logo removida com sucesso"})
			return
		}
	}
	detail(w, http.StatusNotFound, "Logo nao encontrada")
}
