package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"

	pkgerrors "ReqTrack/pkg/errors"

	"ReqTrack/internal/notify"
	"ReqTrack/internal/output"
	"ReqTrack/internal/session"
	"ReqTrack/internal/tracker"
)

func (a *App) newAuthCmd() *cobra.Command {
	authCmd := &cobra.Command{
		Use:   "auth",
		Short: "Управление аутентификацией",
		Long: `Команды для управления сессией пользователя:
вход, выход, проверка статуса и профиль.`,
	}

	loginCmd := &cobra.Command{
		Use:   "login [username]",
		Short: "Войти в систему",
		Long: `Выполняет вход по имени пользователя и паролю.
Токен и пользователь сохраняются в хранилище сессии.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.handleLogin(cmd, args)
		},
	}
	loginCmd.Flags().StringP("password", "p", "", "пароль")

	logoutCmd := &cobra.Command{
		Use:   "logout",
		Short: "Выйти из системы",
		Long:  `Удаляет сохраненную сессию.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.handleLogout(cmd)
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Проверить статус аутентификации",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.handleAuthStatus(cmd)
		},
	}

	whoamiCmd := &cobra.Command{
		Use:   "whoami",
		Short: "Показать текущего пользователя",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.handleWhoami(cmd)
		},
	}

	refreshCmd := &cobra.Command{
		Use:   "refresh",
		Short: "Обновить токен",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.handleRefresh(cmd)
		},
	}

	profileCmd := &cobra.Command{
		Use:   "profile",
		Short: "Показать или изменить профиль",
		Long: `Без флагов показывает профиль текущего пользователя.
С флагами изменяет профиль на сервере и обновляет сохраненную сессию.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.handleProfile(cmd)
		},
	}
	profileCmd.Flags().String("email", "", "email")
	profileCmd.Flags().String("first-name", "", "имя")
	profileCmd.Flags().String("last-name", "", "фамилия")

	authCmd.AddCommand(loginCmd, logoutCmd, statusCmd, whoamiCmd, refreshCmd, profileCmd)
	return authCmd
}

func (a *App) handleLogin(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var creds session.Credentials
	if len(args) > 0 {
		creds.Username = args[0]
	}
	creds.Password, _ = cmd.Flags().GetString("password")

	var err error
	if creds.Username == "" {
		if creds.Username, err = a.prompt("Username: "); err != nil {
			return handleError(err, cmd, a.logger)
		}
	}
	if creds.Password == "" {
		if creds.Password, err = a.prompt("Password: "); err != nil {
			return handleError(err, cmd, a.logger)
		}
	}
	if creds.Username == "" || creds.Password == "" {
		return handleError(pkgerrors.New(pkgerrors.ErrValidation, "username and password are required"), cmd, a.logger)
	}

	if err := a.connect(ctx); err != nil {
		return handleError(err, cmd, a.logger)
	}
	user, err := a.session.Login(ctx, creds)
	if err != nil {
		return handleError(err, cmd, a.logger)
	}
	return a.printUser(user)
}

func (a *App) handleLogout(cmd *cobra.Command) error {
	ctx := cmd.Context()
	if err := a.connect(ctx); err != nil {
		return handleError(err, cmd, a.logger)
	}
	return handleError(a.session.Logout(ctx), cmd, a.logger)
}

// AuthStatus состояние сессии для вывода
type AuthStatus struct {
	LoggedIn  bool       `json:"logged_in"`
	Username  string     `json:"username,omitempty"`
	Role      string     `json:"role,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Server    string     `json:"server"`
}

func (a *App) handleAuthStatus(cmd *cobra.Command) error {
	ctx := cmd.Context()
	if err := a.connect(ctx); err != nil {
		return handleError(err, cmd, a.logger)
	}
	a.session.Restore(ctx)

	status := AuthStatus{Server: a.client.BaseURL()}
	if user := a.session.User(); user != nil {
		status.LoggedIn = true
		status.Username = user.Username
		status.Role = user.Role
		status.ExpiresAt = tokenExpiry(a.session.Token())
	}

	return a.printer.Print(status, func() *output.TableData {
		if !status.LoggedIn {
			return output.KeyValue("Status", "not logged in", "Server", status.Server)
		}
		expires := "unknown"
		if status.ExpiresAt != nil {
			expires = status.ExpiresAt.Local().Format(time.RFC1123)
			if time.Until(*status.ExpiresAt) <= 0 {
				expires += " (expired)"
			}
		}
		return output.KeyValue(
			"Status", "logged in",
			"User", status.Username,
			"Role", status.Role,
			"Token expires", expires,
			"Server", status.Server,
		)
	})
}

// tokenExpiry читает exp из JWT без проверки подписи; ключ есть только у сервера
func tokenExpiry(token string) *time.Time {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return nil
	}
	if claims.ExpiresAt == nil {
		return nil
	}
	t := claims.ExpiresAt.Time
	return &t
}

func (a *App) handleWhoami(cmd *cobra.Command) error {
	user, err := a.requireSession(cmd.Context())
	if err != nil {
		return handleError(err, cmd, a.logger)
	}
	return a.printUser(user)
}

func (a *App) handleRefresh(cmd *cobra.Command) error {
	ctx := cmd.Context()
	if _, err := a.requireSession(ctx); err != nil {
		return handleError(err, cmd, a.logger)
	}

	resp, err := a.session.RefreshToken(ctx)
	if err != nil {
		return handleError(err, cmd, a.logger)
	}
	fmt.Fprintf(a.errOut, "Token refreshed, valid for %s\n", time.Duration(resp.ExpiresIn)*time.Second)
	return nil
}

func (a *App) handleProfile(cmd *cobra.Command) error {
	ctx := cmd.Context()
	user, err := a.requireSession(ctx)
	if err != nil {
		return handleError(err, cmd, a.logger)
	}

	var update tracker.UserUpdate
	var patch session.IdentityPatch
	if cmd.Flags().Changed("email") {
		v, _ := cmd.Flags().GetString("email")
		update.Email = &v
	}
	if cmd.Flags().Changed("first-name") {
		v, _ := cmd.Flags().GetString("first-name")
		update.FirstName = &v
	}
	if cmd.Flags().Changed("last-name") {
		v, _ := cmd.Flags().GetString("last-name")
		update.LastName = &v
	}
	if update.Empty() {
		return a.printUser(user)
	}

	updated, err := a.tracker.UpdateUser(ctx, user.ID, update)
	if err != nil {
		return handleError(err, cmd, a.logger)
	}

	patch.Email = &updated.Email
	patch.FirstName = &updated.FirstName
	patch.LastName = &updated.LastName
	if err := a.session.UpdateIdentity(ctx, patch); err != nil {
		return handleError(err, cmd, a.logger)
	}
	notify.Success(ctx, a.notifier, "Profile updated")
	return a.printUser(a.session.User())
}

func (a *App) printUser(user *session.User) error {
	return a.printer.Print(user, func() *output.TableData {
		return output.KeyValue(
			"ID", user.ID,
			"Username", user.Username,
			"Name", user.DisplayName(),
			"Email", user.Email,
			"Role", user.Role,
			"Permissions", strings.Join(user.Permissions, ", "),
			"Active", output.YesNo(user.IsActive),
			"Superuser", output.YesNo(user.IsSuperuser),
		)
	})
}
