package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/tinytasks/internal/middleware"
	"github.com/hitoshi/tinytasks/internal/model"
)

// maxRequestBodySize はJSONリクエストボディの上限サイズ（1MB）。
const maxRequestBodySize = 1 << 20

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// messageErrorResponse は認証フローで使う単純なエラーレスポンス。
type messageErrorResponse struct {
	Error string `json:"error"`
}

// writeJSON はステータスコードとJSONボディを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeErrorMessage は{"error": message}形式のエラーを書き込む。
func writeErrorMessage(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, messageErrorResponse{Error: message})
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	writeJSON(w, statusCode, apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// writeUnauthorized はゲートを通過したのにユーザーが特定できない場合のレスポンスを書き込む。
func writeUnauthorized(w http.ResponseWriter) {
	writeErrorMessage(w, http.StatusUnauthorized, "Invalid token")
}

// writeInvalidBody はリクエストボディの解析失敗を書き込む。
func writeInvalidBody(w http.ResponseWriter) {
	writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
		Code:     "INVALID_REQUEST",
		Message:  "Failed to parse request body.",
		Category: "validation",
		Action:   "Send a valid JSON body.",
	})
}

// decodeJSONBody はリクエストボディをJSONとして読み込む。
// 空ボディはエラーにせずvをそのまま残す。
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeTaskNotFound, model.ErrCodeUserNotFound:
		return http.StatusNotFound
	case model.ErrCodeInvalidTaskInput, model.ErrCodeInvalidFilter, model.ErrCodeInvalidProfileInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
