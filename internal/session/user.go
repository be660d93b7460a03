package session

// User учетная запись текущего пользователя
type User struct {
	ID          string   `json:"id"`
	Username    string   `json:"username"`
	Email       string   `json:"email"`
	FirstName   string   `json:"first_name,omitempty"`
	LastName    string   `json:"last_name,omitempty"`
	FullName    string   `json:"full_name,omitempty"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
	IsActive    bool     `json:"is_active"`
	IsSuperuser bool     `json:"is_superuser"`
	LastLogin   string   `json:"last_login,omitempty"`
	CreatedAt   string   `json:"created_at,omitempty"`
	UpdatedAt   string   `json:"updated_at,omitempty"`
}

// DisplayName возвращает отображаемое имя
func (u *User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	if u.FirstName != "" || u.LastName != "" {
		switch {
		case u.FirstName == "":
			return u.LastName
		case u.LastName == "":
			return u.FirstName
		default:
			return u.FirstName + " " + u.LastName
		}
	}
	return u.Username
}

// HasPermission проверяет наличие права; суперпользователь имеет все права
func (u *User) HasPermission(permission string) bool {
	if u.IsSuperuser {
		return true
	}
	for _, p := range u.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// IdentityPatch частичное обновление учетной записи; nil поля не меняются
type IdentityPatch struct {
	Username    *string
	Email       *string
	FirstName   *string
	LastName    *string
	FullName    *string
	Role        *string
	Permissions []string
	IsActive    *bool
}

// Apply возвращает копию user с примененными изменениями
func (p IdentityPatch) Apply(user User) User {
	if p.Username != nil {
		user.Username = *p.Username
	}
	if p.Email != nil {
		user.Email = *p.Email
	}
	if p.FirstName != nil {
		user.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		user.LastName = *p.LastName
	}
	if p.FullName != nil {
		user.FullName = *p.FullName
	}
	if p.Role != nil {
		user.Role = *p.Role
	}
	if p.Permissions != nil {
		user.Permissions = append([]string(nil), p.Permissions...)
	}
	if p.IsActive != nil {
		user.IsActive = *p.IsActive
	}
	return user
}

// Credentials учетные данные для входа
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthResponse ответ login и refresh-token
type AuthResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	User        User   `json:"user"`
}
