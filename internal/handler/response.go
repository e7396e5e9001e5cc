// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/hitoshi/fonomed/internal/middleware"
	"github.com/hitoshi/fonomed/internal/model"
)

// maxBodyBytes はJSONリクエストボディの上限サイズ。
const maxBodyBytes = 1 << 20

// messageResponse は処理結果のメッセージのみを返すレスポンス。
type messageResponse struct {
	Message string `json:"message"`
}

// validate はリクエスト検証用のバリデーター。
// エラーメッセージにはJSONタグ（フォームの場合はformタグ）の名前を使う。
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"json", "form"} {
			name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
			if name != "" && name != "-" {
				return name
			}
		}
		return f.Name
	})
	return v
}

// writeJSON はvをJSONで書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeMessage はメッセージのみのJSONレスポンスを書き込む。
func writeMessage(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusOK, messageResponse{Message: message})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPレスポンスに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteAPIError(w, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// decodeJSON はJSONボディをdstに読み込み、validateタグで検証する。
// 未知のフィールドは拒否する。
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return model.NewInvalidRequestError(describeDecodeError(err))
	}
	return validateStruct(dst)
}

// validateStruct はvalidateタグに従ってsを検証する。
func validateStruct(s any) error {
	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return model.NewInvalidRequestError(describeValidationErrors(verrs))
		}
		return model.NewInvalidRequestError(err.Error())
	}
	return nil
}

func describeDecodeError(err error) string {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &syntaxErr):
		return "JSONの形式が正しくありません"
	case errors.As(err, &typeErr):
		return fmt.Sprintf("%s の型が正しくありません", typeErr.Field)
	case errors.As(err, &maxErr):
		return "リクエストボディが大きすぎます"
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		return fmt.Sprintf("未知のフィールドです: %s", strings.TrimPrefix(err.Error(), "json: unknown field "))
	default:
		return "リクエストボディの解析に失敗しました"
	}
}

func describeValidationErrors(verrs validator.ValidationErrors) string {
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s は必須です", fe.Field()))
		case "email":
			msgs = append(msgs, fmt.Sprintf("%s はメールアドレスの形式ではありません", fe.Field()))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s は %s 文字以内で指定してください", fe.Field(), fe.Param()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s は %s のいずれかを指定してください", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s が不正です (%s)", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(msgs, ", ")
}

// requireUser は認証ゲートが注入したユーザーを取り出す。
// 取り出せない場合は401を書き込んでfalseを返す。
func requireUser(w http.ResponseWriter, r *http.Request) (*model.User, bool) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return nil, false
	}
	return user, true
}
