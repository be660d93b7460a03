package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	pkgerrors "ReqTrack/pkg/errors"
	"ReqTrack/pkg/logger"

	"ReqTrack/internal/notify"
)

// Тексты уведомлений
const (
	MsgSessionExpired = "Session expired. Please log in again."
	MsgForbidden      = "You do not have permission to perform this action."
	MsgNotFound       = "Resource not found."
	MsgValidation     = "Validation error"
	MsgServerError    = "Internal server error. Try again later."
	MsgConnection     = "Connection error. Check your internet connection."
	MsgUnexpected     = "Unexpected error"
)

// errorBody тело ошибки бэкенда: {"message": ...} или {"detail": ...},
// где detail строка либо список ошибок валидации
type errorBody struct {
	Message string          `json:"message"`
	Detail  json.RawMessage `json:"detail"`
}

// ValidationIssue элемент списка detail ответа 422
type ValidationIssue struct {
	Loc  []interface{} `json:"loc"`
	Msg  string        `json:"msg"`
	Type string        `json:"type"`
}

func parseErrorBody(data []byte) (message string, issues []ValidationIssue) {
	var body errorBody
	if err := json.Unmarshal(data, &body); err != nil {
		return "", nil
	}

	message = body.Message
	if len(body.Detail) == 0 {
		return message, nil
	}

	var detail string
	if err := json.Unmarshal(body.Detail, &detail); err == nil {
		if message == "" {
			message = detail
		}
		return message, nil
	}

	if err := json.Unmarshal(body.Detail, &issues); err == nil {
		return message, issues
	}
	return message, nil
}

// classify переводит ответ с ошибкой в уведомление и *errors.Error
func (c *Client) classify(ctx context.Context, status int, data []byte, token string, o *requestOptions) *pkgerrors.Error {
	serverMessage, issues := parseErrorBody(data)

	var message string
	switch {
	case status == http.StatusUnauthorized:
		message = MsgSessionExpired
	case status == http.StatusForbidden:
		message = MsgForbidden
	case status == http.StatusNotFound:
		message = MsgNotFound
	case status == http.StatusUnprocessableEntity && len(issues) > 0:
		msgs := make([]string, 0, len(issues))
		for _, issue := range issues {
			msgs = append(msgs, issue.Msg)
		}
		message = MsgValidation + ": " + strings.Join(msgs, ", ")
	case status == http.StatusUnprocessableEntity:
		message = fallback(serverMessage, MsgValidation)
	case status == http.StatusInternalServerError:
		message = MsgServerError
	default:
		message = fallback(serverMessage, MsgUnexpected)
	}

	appErr := pkgerrors.New(pkgerrors.FromHTTPStatus(status), message).WithStatus(status)
	if serverMessage != "" && serverMessage != message {
		appErr = appErr.WithDetails(serverMessage)
	}

	c.logger.Debug("HTTP error response",
		logger.CtxField(ctx),
		logger.Int("status", status),
		logger.String("message", message))

	if o.silent {
		return appErr
	}

	if status == http.StatusUnauthorized {
		// Сессия сбрасывается один раз на поколение токена. Повторные 401
		// по уже сброшенному токену и запросы без токена молча возвращают ошибку.
		if c.tokens == nil || token == "" || !c.tokens.Invalidate(ctx, token) {
			return appErr
		}
		c.navigator.ToLogin()
	}

	notify.Error(ctx, c.notifier, o.notice(message))
	return appErr
}

func fallback(value, def string) string {
	if value != "" {
		return value
	}
	return def
}
